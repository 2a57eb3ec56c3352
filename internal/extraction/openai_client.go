package extraction

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

type openAIChatAPI interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// OpenAIClient implements LLMClient using the chat completions API. Any
// OpenAI-compatible endpoint works through baseURL.
type OpenAIClient struct {
	chat  openAIChatAPI
	model string
}

// NewOpenAIClient builds a client; model defaults to gpt-4o-mini.
func NewOpenAIClient(apiKey, baseURL, model string) (*OpenAIClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("extraction: openai api key is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if strings.TrimSpace(baseURL) != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(opts...)
	if strings.TrimSpace(model) == "" {
		model = string(openai.ChatModelGPT4oMini)
	}
	return &OpenAIClient{chat: &client.Chat.Completions, model: model}, nil
}

func (c *OpenAIClient) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	var parts []openai.ChatCompletionContentPartUnionParam
	if att := req.Attachment; att != nil && len(att.Data) > 0 {
		if att.IsPDF() {
			return LLMResponse{}, errors.New("extraction: openai backend does not accept pdf tickets")
		}
		mediaType := att.MediaType
		if mediaType == "" {
			mediaType = "image/jpeg"
		}
		dataURL := "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(att.Data)
		parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: dataURL}))
	}
	if prompt := strings.TrimSpace(req.Prompt); prompt != "" {
		parts = append(parts, openai.TextContentPart(prompt))
	}
	if len(parts) == 0 {
		return LLMResponse{}, errors.New("extraction: empty openai request")
	}

	var messages []openai.ChatCompletionMessageParamUnion
	if system := strings.TrimSpace(req.System); system != "" {
		messages = append(messages, openai.SystemMessage(system))
	}
	messages = append(messages, openai.UserMessage(parts))

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(firstNonEmpty(req.Model, c.model)),
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.Temperature >= 0 {
		params.Temperature = openai.Float(float64(req.Temperature))
	}

	resp, err := c.chat.New(ctx, params)
	if err != nil {
		return LLMResponse{}, fmt.Errorf("extraction: openai completion failed: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return LLMResponse{}, errors.New("extraction: openai returned no choices")
	}
	return LLMResponse{
		Text:       strings.TrimSpace(resp.Choices[0].Message.Content),
		StopReason: string(resp.Choices[0].FinishReason),
		Usage: TokenUsage{
			InputTokens:  int32(resp.Usage.PromptTokens),
			OutputTokens: int32(resp.Usage.CompletionTokens),
			TotalTokens:  int32(resp.Usage.TotalTokens),
		},
	}, nil
}
