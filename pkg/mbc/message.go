package mbc

// Content block kinds used in the backend-agnostic message format. The
// format mirrors Anthropic's content-block layout; adapters for other
// backends translate from it.
const (
	BlockText       = "text"
	BlockToolUse    = "tool_use"
	BlockToolResult = "tool_result"
	BlockImage      = "image"
)

// ImageSource carries inline image data for an image block.
type ImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

// ContentBlock is one typed unit of message content.
type ContentBlock struct {
	Type string `json:"type"`

	// text
	Text string `json:"text,omitempty"`

	// tool_use
	ID    string         `json:"id,omitempty"`
	Name  string         `json:"name,omitempty"`
	Input map[string]any `json:"input,omitempty"`

	// tool_result
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   any    `json:"content,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`

	// image
	Source *ImageSource `json:"source,omitempty"`
}

// Message is a role-tagged entry in the conversation history.
type Message struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

// TextBlock builds a text content block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockText, Text: text}
}

// UserMessage builds a user message with a single text block.
func UserMessage(text string) Message {
	return Message{Role: "user", Content: []ContentBlock{TextBlock(text)}}
}

// AssistantMessage builds an assistant message from raw content blocks.
func AssistantMessage(content []ContentBlock) Message {
	return Message{Role: "assistant", Content: content}
}

// ToolResultMessage builds the user message that carries tool results back
// to the provider. A result whose content is itself a block list keeps its
// text inside the tool_result block and hoists image blocks to siblings,
// since providers accept images only as top-level user content.
func ToolResultMessage(results []ToolResult) Message {
	blocks := make([]ContentBlock, 0, len(results))
	for _, r := range results {
		nested, ok := r.Content.([]ContentBlock)
		if !ok {
			blocks = append(blocks, r.Block())
			continue
		}

		text := ""
		images := make([]ContentBlock, 0, len(nested))
		for _, b := range nested {
			switch b.Type {
			case BlockText:
				if text != "" {
					text += "\n"
				}
				text += b.Text
			case BlockImage:
				images = append(images, b)
			}
		}

		blocks = append(blocks, ContentBlock{
			Type:      BlockToolResult,
			ToolUseID: r.ToolUseID,
			Content:   text,
			IsError:   r.IsError,
		})
		blocks = append(blocks, images...)
	}
	return Message{Role: "user", Content: blocks}
}

// LeadsWithToolResult reports whether the message starts with a tool_result
// block. Used by the trimming algorithm to keep tool_use/tool_result pairs
// on the same side of the cut.
func (m Message) LeadsWithToolResult() bool {
	return len(m.Content) > 0 && m.Content[0].Type == BlockToolResult
}

// HasToolUse reports whether any block in the message is a tool invocation.
func (m Message) HasToolUse() bool {
	for _, b := range m.Content {
		if b.Type == BlockToolUse {
			return true
		}
	}
	return false
}

// Text concatenates the message's text blocks with newlines.
func (m Message) TextContent() string {
	out := ""
	for _, b := range m.Content {
		if b.Type != BlockText {
			continue
		}
		if out != "" {
			out += "\n"
		}
		out += b.Text
	}
	return out
}
