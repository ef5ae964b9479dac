package parley

import "fmt"

// Role identifies who produced a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// BlockType identifies the kind of content a block carries.
type BlockType string

const (
	BlockText       BlockType = "text"
	BlockThinking   BlockType = "thinking"
	BlockToolUse    BlockType = "tool_use"
	BlockToolResult BlockType = "tool_result"
	BlockImage      BlockType = "image"
	BlockAudio      BlockType = "audio"
	BlockVideo      BlockType = "video"
)

// ContentBlock is a single unit of message content. A Msg carries exactly
// one block; multi-part turns are expressed as multiple messages.
type ContentBlock interface {
	Type() BlockType
}

// TextBlock carries plain text.
type TextBlock struct {
	Text string `json:"text"`
}

func (*TextBlock) Type() BlockType { return BlockText }

// ThinkingBlock carries model reasoning that is shown to consumers but
// excluded from final reply aggregation.
type ThinkingBlock struct {
	Text string `json:"thinking"`
}

func (*ThinkingBlock) Type() BlockType { return BlockThinking }

// ToolUseBlock is a request from the model to invoke a tool.
// During streaming a single logical call arrives as several partial blocks;
// Raw carries the unparsed argument fragment of each chunk so the
// accumulator can reassemble arguments that split mid-JSON.
type ToolUseBlock struct {
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Input map[string]any `json:"input,omitempty"`
	Raw   string         `json:"-"`
}

func (*ToolUseBlock) Type() BlockType { return BlockToolUse }

// ToolResultBlock carries the outcome of a tool call back to the model.
// ID and Name echo the originating ToolUseBlock.
type ToolResultBlock struct {
	ID     string       `json:"id"`
	Name   string       `json:"name"`
	Output ContentBlock `json:"output,omitempty"`
}

func (*ToolResultBlock) Type() BlockType { return BlockToolResult }

// Source locates media content.
type Source interface {
	isSource()
}

// URLSource references media by URL. Bare local paths are accepted;
// formatters rewrite paths that exist on disk to file:// URLs.
type URLSource struct {
	URL string `json:"url"`
}

func (URLSource) isSource() {}

// Base64Source carries inline media. MediaType is a MIME type such as
// "image/png".
type Base64Source struct {
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

func (Base64Source) isSource() {}

// DataURL renders the source as a data: URL.
func (s Base64Source) DataURL() string {
	return "data:" + s.MediaType + ";base64," + s.Data
}

// ImageBlock carries an image.
type ImageBlock struct {
	Source Source `json:"source"`
}

func (*ImageBlock) Type() BlockType { return BlockImage }

// AudioBlock carries audio.
type AudioBlock struct {
	Source Source `json:"source"`
}

func (*AudioBlock) Type() BlockType { return BlockAudio }

// VideoBlock carries video.
type VideoBlock struct {
	Source Source `json:"source"`
}

func (*VideoBlock) Type() BlockType { return BlockVideo }

// Msg is one immutable conversation message. Name is the speaker (agent or
// user display name), which multi-agent formatters surface in transcripts.
type Msg struct {
	ID      string       `json:"id"`
	Name    string       `json:"name"`
	Role    Role         `json:"role"`
	Content ContentBlock `json:"content"`
}

// NewMsg creates a message with a fresh unique ID.
func NewMsg(name string, role Role, content ContentBlock) Msg {
	return Msg{ID: NewID(), Name: name, Role: role, Content: content}
}

// TextMsg creates a text message.
func TextMsg(name string, role Role, text string) Msg {
	return NewMsg(name, role, &TextBlock{Text: text})
}

// ThinkingMsg creates an assistant message carrying model reasoning.
func ThinkingMsg(name, text string) Msg {
	return NewMsg(name, RoleAssistant, &ThinkingBlock{Text: text})
}

// ToolUseMsg creates an assistant message carrying a tool call.
func ToolUseMsg(name string, call *ToolUseBlock) Msg {
	return NewMsg(name, RoleAssistant, call)
}

// ToolResultMsg creates a tool-role message carrying a tool result.
func ToolResultMsg(name string, result *ToolResultBlock) Msg {
	return NewMsg(name, RoleTool, result)
}

// ImageMsg creates a message carrying an image.
func ImageMsg(name string, role Role, src Source) Msg {
	return NewMsg(name, role, &ImageBlock{Source: src})
}

// AudioMsg creates a message carrying audio.
func AudioMsg(name string, role Role, src Source) Msg {
	return NewMsg(name, role, &AudioBlock{Source: src})
}

// VideoMsg creates a message carrying video.
func VideoMsg(name string, role Role, src Source) Msg {
	return NewMsg(name, role, &VideoBlock{Source: src})
}

// Text returns the message's text when the content is a text or thinking
// block, and "" otherwise.
func (m Msg) Text() string {
	return blockText(m.Content)
}

// HasText reports whether the content is a text or thinking block.
func (m Msg) HasText() bool {
	switch m.Content.(type) {
	case *TextBlock, *ThinkingBlock:
		return true
	}
	return false
}

// ToolUse returns the content as a tool call when present.
func (m Msg) ToolUse() (*ToolUseBlock, bool) {
	tu, ok := m.Content.(*ToolUseBlock)
	return tu, ok
}

// ContentText renders the content as display text: text blocks verbatim,
// media as bracketed descriptions, tool blocks as "".
func (m Msg) ContentText() string {
	return blockDisplayText(m.Content)
}

// blockText extracts plain text from text-bearing blocks.
func blockText(b ContentBlock) string {
	switch v := b.(type) {
	case *TextBlock:
		return v.Text
	case *ThinkingBlock:
		return v.Text
	}
	return ""
}

// blockDisplayText renders any block as display text. Media degrades to a
// description so text-only surfaces (snapshots, history transcripts) keep a
// trace of what was sent.
func blockDisplayText(b ContentBlock) string {
	switch v := b.(type) {
	case nil:
		return ""
	case *TextBlock:
		return v.Text
	case *ThinkingBlock:
		return v.Text
	case *ImageBlock:
		return mediaDescription("Image", v.Source)
	case *AudioBlock:
		return mediaDescription("Audio", v.Source)
	case *VideoBlock:
		return mediaDescription("Video", v.Source)
	}
	return ""
}

func mediaDescription(kind string, src Source) string {
	switch s := src.(type) {
	case URLSource:
		return fmt.Sprintf("[%s content from URL: %s]", kind, s.URL)
	case Base64Source:
		return fmt.Sprintf("[%s content (base64 encoded, type: %s)]", kind, s.MediaType)
	}
	return fmt.Sprintf("[%s content]", kind)
}

// mediaSource returns the source of a media block, or nil for other blocks.
func mediaSource(b ContentBlock) Source {
	switch v := b.(type) {
	case *ImageBlock:
		return v.Source
	case *AudioBlock:
		return v.Source
	case *VideoBlock:
		return v.Source
	}
	return nil
}
