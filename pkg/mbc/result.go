package mbc

// Result is a convenience wrapper around SessionResult with predicate
// accessors, for callers that prefer methods over field access.
type Result struct {
	inner SessionResult
}

// NewResult wraps a SessionResult.
func NewResult(r SessionResult) Result { return Result{inner: r} }

func (r Result) UUID() string                { return r.inner.UUID }
func (r Result) Status() SessionStatus       { return r.inner.Status }
func (r Result) IsCompleted() bool           { return r.inner.Status == StatusCompleted }
func (r Result) IsFailed() bool              { return r.inner.Status == StatusFailed }
func (r Result) FinalMessage() string        { return r.inner.FinalMessage }
func (r Result) TotalTurns() int             { return r.inner.TotalTurns }
func (r Result) TotalInputTokens() int       { return r.inner.TotalInputTokens }
func (r Result) TotalOutputTokens() int      { return r.inner.TotalOutputTokens }
func (r Result) EstimatedCostUSD() float64   { return r.inner.EstimatedCostUSD }
func (r Result) Metadata() map[string]any    { return r.inner.Metadata }
func (r Result) SessionResult() SessionResult { return r.inner }
