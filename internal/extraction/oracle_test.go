package extraction

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arteita/fretebot/pkg/logging"
)

type stubLLM struct {
	reply    string
	err      error
	requests []LLMRequest
	block    bool
}

func (s *stubLLM) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	s.requests = append(s.requests, req)
	if s.block {
		<-ctx.Done()
		return LLMResponse{}, ctx.Err()
	}
	if s.err != nil {
		return LLMResponse{}, s.err
	}
	return LLMResponse{Text: s.reply}, nil
}

type stubPrompts struct {
	prompts Prompts
	err     error
}

func (s stubPrompts) ActivePrompts(ctx context.Context) (Prompts, error) { return s.prompts, s.err }

const ticketReply = "```json\n" + `{"data":"2024-05-10","origem":"Uberaba","destino":"Santos","toneladas":"32,5","precoTonelada":120,"valorTotal":null,"transportadora":"Trans Rapido","ticketNota":889,"placa":"ABC1D23","motorista":"Joao","observacao":"carga seca"}` + "\n```"

func TestExtractFreightFromImage(t *testing.T) {
	llm := &stubLLM{reply: ticketReply}
	svc := NewService(llm, WithModel("model-x"), WithLogger(logging.Discard()))

	image := base64.StdEncoding.EncodeToString([]byte{0xff, 0xd8, 0xff})
	draft, err := svc.ExtractFreight(context.Background(), Input{ImageBase64: image, MediaType: "image/png"})
	require.NoError(t, err)

	require.Len(t, llm.requests, 1)
	req := llm.requests[0]
	assert.Equal(t, "model-x", req.Model)
	require.NotNil(t, req.Attachment)
	assert.Equal(t, "image/png", req.Attachment.MediaType)
	assert.Equal(t, []byte{0xff, 0xd8, 0xff}, req.Attachment.Data)
	assert.Contains(t, req.System, "ticketNota")

	assert.Equal(t, "Uberaba", *draft.Origin)
	assert.Equal(t, 32.5, *draft.Tons)
	assert.Equal(t, 120.0, *draft.PricePerTon)
	assert.Nil(t, draft.TotalValue)
	assert.Equal(t, "889", *draft.TicketNumber)
	assert.Equal(t, "carga seca", *draft.Note)
	assert.Empty(t, draft.Missing())
}

func TestExtractFreightRequiresInput(t *testing.T) {
	llm := &stubLLM{}
	svc := NewService(llm, WithLogger(logging.Discard()))
	_, err := svc.ExtractFreight(context.Background(), Input{Text: "   "})
	assert.ErrorIs(t, err, ErrEmptyInput)
	assert.Empty(t, llm.requests)
}

func TestExtractFreightMalformed(t *testing.T) {
	svc := NewService(&stubLLM{reply: "desculpe"}, WithLogger(logging.Discard()))
	_, err := svc.ExtractFreight(context.Background(), Input{Text: "frete 30t"})
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestExtractFreightTimeout(t *testing.T) {
	svc := NewService(&stubLLM{block: true}, WithTimeout(10*time.Millisecond), WithLogger(logging.Discard()))
	_, err := svc.ExtractFreight(context.Background(), Input{Text: "frete 30t"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestExtractFreightUsesPromptOverrides(t *testing.T) {
	llm := &stubLLM{reply: `{}`}
	svc := NewService(llm,
		WithModel("default-model"),
		WithPromptSource(stubPrompts{prompts: Prompts{Model: "custom-model", FreightExtract: "PROMPT CUSTOM"}}),
		WithLogger(logging.Discard()),
	)
	_, err := svc.ExtractFreight(context.Background(), Input{Text: "origem Uberaba"})
	require.NoError(t, err)
	assert.Equal(t, "custom-model", llm.requests[0].Model)
	assert.Equal(t, "PROMPT CUSTOM", llm.requests[0].System)
	assert.Equal(t, "origem Uberaba", llm.requests[0].Prompt)
}

func TestPromptSourceErrorFallsBackToDefaults(t *testing.T) {
	llm := &stubLLM{reply: `{}`}
	svc := NewService(llm, WithPromptSource(stubPrompts{err: errors.New("db down")}), WithLogger(logging.Discard()))
	_, err := svc.ExtractFreight(context.Background(), Input{Text: "x"})
	require.NoError(t, err)
	assert.Equal(t, defaultExtractPrompt, llm.requests[0].System)
}

func TestClassifyOpportunity(t *testing.T) {
	llm := &stubLLM{reply: `{"isOpportunity":true,"tipoCarga":"soja","origem":"Rio Verde","destino":"Santos","tonelagem":37,"precoOferecido":"150,00","urgencia":"hoje","contato":"(64) 99999-0000","prioridade":"alta"}`}
	svc := NewService(llm, WithLogger(logging.Discard()))

	got, err := svc.ClassifyOpportunity(context.Background(), "Carga de soja Rio Verde x Santos 37t R$150", ClassifyOptions{
		Keywords:        []string{"soja", "milho"},
		PreferredRoutes: []string{"Rio Verde", "Santos"},
		MinPricePerTon:  0,
	})
	require.NoError(t, err)
	assert.True(t, got.IsOpportunity)
	assert.Equal(t, "ALTA", got.Priority)
	assert.Equal(t, 150.0, *got.OfferedPrice)
	assert.Equal(t, 37.0, *got.Tons)

	system := llm.requests[0].System
	assert.Contains(t, system, "soja, milho")
	assert.Contains(t, system, "Rio Verde, Santos")
	assert.Contains(t, system, "R$ 0")
	assert.False(t, strings.Contains(system, "{{"))
}

func TestRenderClassifyPromptAppendsCriteriaToCustomPrompt(t *testing.T) {
	out := renderClassifyPrompt("Classifique.", ClassifyOptions{Keywords: []string{"milho"}, MinPricePerTon: 90.5})
	assert.True(t, strings.HasPrefix(out, "Classifique."))
	assert.Contains(t, out, "Palavras-chave de interesse: milho")
	assert.Contains(t, out, "R$ 90.5")
}
