package middleware

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/undergrace/mbc/pkg/mbc"
	"github.com/undergrace/mbc/pkg/renderer"
)

const reviewPrompt = "Review the rendered result. If there are design problems " +
	"(contrast, spacing, hierarchy, balance), use the available tools to fix " +
	"them. If everything looks professional, finish."

// Capturer screenshots a URL at the given viewports. Satisfied by
// *renderer.Renderer.
type Capturer interface {
	Capture(ctx context.Context, url string, viewports []renderer.Viewport) (map[string]string, error)
}

// VisualFeedback watches tool executions for a successful trigger tool
// carrying a preview URL, captures screenshots of that URL, and appends a
// synthetic tool result with the images so the model can review its own
// output. Capture failures are swallowed; the turn proceeds without the
// feedback.
type VisualFeedback struct {
	capturer      Capturer
	logger        zerolog.Logger
	triggerTools  []string
	previewURLKey string
	viewports     []renderer.Viewport
}

// VisualFeedbackOption customizes the middleware.
type VisualFeedbackOption func(*VisualFeedback)

// WithTriggerTools replaces the tool names that trigger a capture.
func WithTriggerTools(names ...string) VisualFeedbackOption {
	return func(m *VisualFeedback) { m.triggerTools = names }
}

// WithPreviewURLKey replaces the content key holding the preview URL.
func WithPreviewURLKey(key string) VisualFeedbackOption {
	return func(m *VisualFeedback) { m.previewURLKey = key }
}

// WithViewports replaces the capture viewports.
func WithViewports(viewports ...renderer.Viewport) VisualFeedbackOption {
	return func(m *VisualFeedback) { m.viewports = viewports }
}

// NewVisualFeedback creates the middleware. Default trigger is the
// assemble_site tool with a preview_url content key, captured at the
// renderer's default viewports.
func NewVisualFeedback(capturer Capturer, logger zerolog.Logger, opts ...VisualFeedbackOption) *VisualFeedback {
	m := &VisualFeedback{
		capturer:      capturer,
		logger:        logger,
		triggerTools:  []string{"assemble_site"},
		previewURLKey: "preview_url",
		viewports:     renderer.DefaultViewports,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *VisualFeedback) AfterResponse(resp *mbc.ProviderResponse, next mbc.ResponseNext) (*mbc.ProviderResponse, error) {
	return next(resp)
}

func (m *VisualFeedback) AfterToolExecution(results []mbc.ToolResult, next mbc.ToolResultsNext) ([]mbc.ToolResult, error) {
	results, err := next(results)
	if err != nil {
		return nil, err
	}

	trigger, ok := m.findTrigger(results)
	if !ok {
		return results, nil
	}

	previewURL := m.extractPreviewURL(trigger)
	if previewURL == "" {
		return results, nil
	}

	captures, err := m.capturer.Capture(context.Background(), previewURL, m.viewports)
	if err != nil {
		m.logger.Warn().
			Err(err).
			Str("preview_url", previewURL).
			Msg("Visual feedback capture failed")
		return results, nil
	}

	blocks := make([]mbc.ContentBlock, 0, len(captures)+1)
	for _, vp := range m.viewports {
		data, ok := captures[vp.Name]
		if !ok {
			continue
		}
		blocks = append(blocks, mbc.ContentBlock{
			Type: mbc.BlockImage,
			Source: &mbc.ImageSource{
				Type:      "base64",
				MediaType: "image/png",
				Data:      data,
			},
		})
	}
	blocks = append(blocks, mbc.TextBlock(reviewPrompt))

	results = append(results, mbc.ToolResult{
		ToolUseID: trigger.ToolUseID + "_visual",
		ToolName:  "_visual_feedback",
		Content:   blocks,
	})

	m.logger.Info().
		Str("preview_url", previewURL).
		Int("viewports", len(captures)).
		Msg("Visual feedback captured")

	return results, nil
}

func (m *VisualFeedback) findTrigger(results []mbc.ToolResult) (mbc.ToolResult, bool) {
	for _, result := range results {
		if result.IsError {
			continue
		}
		for _, name := range m.triggerTools {
			if result.ToolName == name {
				return result, true
			}
		}
	}
	return mbc.ToolResult{}, false
}

func (m *VisualFeedback) extractPreviewURL(result mbc.ToolResult) string {
	switch content := result.Content.(type) {
	case map[string]any:
		if url, ok := content[m.previewURLKey].(string); ok {
			return url
		}
	case string:
		var decoded map[string]any
		if err := json.Unmarshal([]byte(content), &decoded); err == nil {
			if url, ok := decoded[m.previewURLKey].(string); ok {
				return url
			}
		}
	}
	return ""
}
