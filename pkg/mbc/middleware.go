package mbc

// ResponseNext continues the afterResponse chain.
type ResponseNext func(*ProviderResponse) (*ProviderResponse, error)

// ToolResultsNext continues the afterToolExecution chain.
type ToolResultsNext func([]ToolResult) ([]ToolResult, error)

// Middleware intercepts the provider response and the tool-execution
// results each turn. A middleware may inspect, mutate, short-circuit by
// not calling next, or wrap and forward.
type Middleware interface {
	AfterResponse(resp *ProviderResponse, next ResponseNext) (*ProviderResponse, error)
	AfterToolExecution(results []ToolResult, next ToolResultsNext) ([]ToolResult, error)
}

// composeAfterResponse builds the middleware chain right-to-left so that
// the first middleware in the list wraps outermost.
func composeAfterResponse(middleware []Middleware) ResponseNext {
	chain := func(r *ProviderResponse) (*ProviderResponse, error) { return r, nil }
	for i := len(middleware) - 1; i >= 0; i-- {
		mw := middleware[i]
		next := chain
		chain = func(r *ProviderResponse) (*ProviderResponse, error) {
			return mw.AfterResponse(r, next)
		}
	}
	return chain
}

func composeAfterToolExecution(middleware []Middleware) ToolResultsNext {
	chain := func(rs []ToolResult) ([]ToolResult, error) { return rs, nil }
	for i := len(middleware) - 1; i >= 0; i-- {
		mw := middleware[i]
		next := chain
		chain = func(rs []ToolResult) ([]ToolResult, error) {
			return mw.AfterToolExecution(rs, next)
		}
	}
	return chain
}
