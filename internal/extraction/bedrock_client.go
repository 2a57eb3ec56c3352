package extraction

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

// BedrockConverseAPI is the subset of the Bedrock runtime client used here.
type BedrockConverseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// BedrockClient runs completions through the Bedrock Converse API.
type BedrockClient struct {
	api   BedrockConverseAPI
	model string
}

func NewBedrockClient(api BedrockConverseAPI, model string) *BedrockClient {
	if api == nil {
		panic("extraction: bedrock converse client cannot be nil")
	}
	return &BedrockClient{api: api, model: model}
}

func (c *BedrockClient) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	model := firstNonEmpty(req.Model, c.model)
	if model == "" {
		return LLMResponse{}, errors.New("extraction: bedrock model id is required")
	}

	content := make([]brtypes.ContentBlock, 0, 2)
	if att := req.Attachment; att != nil && len(att.Data) > 0 {
		block, err := bedrockAttachmentBlock(att)
		if err != nil {
			return LLMResponse{}, err
		}
		content = append(content, block)
	}
	if prompt := strings.TrimSpace(req.Prompt); prompt != "" {
		content = append(content, &brtypes.ContentBlockMemberText{Value: prompt})
	}
	if len(content) == 0 {
		return LLMResponse{}, errors.New("extraction: empty bedrock request")
	}

	input := &bedrockruntime.ConverseInput{
		ModelId: aws.String(model),
		Messages: []brtypes.Message{{
			Role:    brtypes.ConversationRoleUser,
			Content: content,
		}},
	}
	if system := strings.TrimSpace(req.System); system != "" {
		input.System = []brtypes.SystemContentBlock{&brtypes.SystemContentBlockMemberText{Value: system}}
	}
	inference := &brtypes.InferenceConfiguration{}
	if req.MaxTokens > 0 {
		inference.MaxTokens = aws.Int32(req.MaxTokens)
	}
	if req.Temperature >= 0 {
		inference.Temperature = aws.Float32(req.Temperature)
	}
	input.InferenceConfig = inference

	out, err := c.api.Converse(ctx, input)
	if err != nil {
		return LLMResponse{}, fmt.Errorf("extraction: bedrock converse: %w", err)
	}
	text, err := bedrockOutputText(out)
	if err != nil {
		return LLMResponse{}, err
	}
	resp := LLMResponse{Text: strings.TrimSpace(text), StopReason: string(out.StopReason)}
	if out.Usage != nil {
		resp.Usage = TokenUsage{
			InputTokens:  int32OrZero(out.Usage.InputTokens),
			OutputTokens: int32OrZero(out.Usage.OutputTokens),
			TotalTokens:  int32OrZero(out.Usage.TotalTokens),
		}
	}
	return resp, nil
}

func bedrockAttachmentBlock(att *Attachment) (brtypes.ContentBlock, error) {
	if att.IsPDF() {
		return &brtypes.ContentBlockMemberDocument{Value: brtypes.DocumentBlock{
			Format: brtypes.DocumentFormatPdf,
			Name:   aws.String("ticket"),
			Source: &brtypes.DocumentSourceMemberBytes{Value: att.Data},
		}}, nil
	}
	var format brtypes.ImageFormat
	switch att.MediaType {
	case "image/jpeg", "image/jpg", "":
		format = brtypes.ImageFormatJpeg
	case "image/png":
		format = brtypes.ImageFormatPng
	case "image/webp":
		format = brtypes.ImageFormatWebp
	case "image/gif":
		format = brtypes.ImageFormatGif
	default:
		return nil, fmt.Errorf("extraction: unsupported media type %q", att.MediaType)
	}
	return &brtypes.ContentBlockMemberImage{Value: brtypes.ImageBlock{
		Format: format,
		Source: &brtypes.ImageSourceMemberBytes{Value: att.Data},
	}}, nil
}

func bedrockOutputText(out *bedrockruntime.ConverseOutput) (string, error) {
	if out == nil {
		return "", errors.New("extraction: bedrock response is nil")
	}
	msg, ok := out.Output.(*brtypes.ConverseOutputMemberMessage)
	if !ok {
		return "", errors.New("extraction: bedrock response did not include a message output")
	}
	var b strings.Builder
	for _, block := range msg.Value.Content {
		if text, ok := block.(*brtypes.ContentBlockMemberText); ok {
			b.WriteString(text.Value)
		}
	}
	if strings.TrimSpace(b.String()) == "" {
		return "", errors.New("extraction: bedrock response contained no text")
	}
	return b.String(), nil
}

func int32OrZero(v *int32) int32 {
	if v == nil {
		return 0
	}
	return *v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
