package extraction

import "context"

// Attachment is binary media sent alongside the prompt.
type Attachment struct {
	MediaType string
	Data      []byte
}

// IsPDF reports whether the attachment is a PDF document.
func (a *Attachment) IsPDF() bool {
	return a != nil && a.MediaType == "application/pdf"
}

type TokenUsage struct {
	InputTokens  int32
	OutputTokens int32
	TotalTokens  int32
}

// LLMRequest is a single-turn completion with an optional attachment.
type LLMRequest struct {
	Model       string
	System      string
	Prompt      string
	Attachment  *Attachment
	MaxTokens   int32
	Temperature float32
}

type LLMResponse struct {
	Text       string
	Usage      TokenUsage
	StopReason string
}

// LLMClient is implemented by each model backend.
type LLMClient interface {
	Complete(ctx context.Context, req LLMRequest) (LLMResponse, error)
}
