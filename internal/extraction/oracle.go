package extraction

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/arteita/fretebot/internal/freight"
	"github.com/arteita/fretebot/internal/observability/metrics"
	"github.com/arteita/fretebot/pkg/logging"
)

// Input is what the oracle reads a freight ticket from. At least one of
// ImageBase64 or Text must be set.
type Input struct {
	ImageBase64 string
	MediaType   string
	Text        string
}

// ClassifyOptions carries the operator's interest criteria.
type ClassifyOptions struct {
	Keywords        []string
	PreferredRoutes []string
	MinPricePerTon  float64
}

// Classification is the oracle verdict on a group message.
type Classification struct {
	IsOpportunity bool
	CargoType     *string
	Origin        *string
	Destination   *string
	Tons          *float64
	OfferedPrice  *float64
	Urgency       *string
	Contact       *string
	// Priority is the raw tier reported by the model (e.g. ALTA, MEDIA, BAIXA).
	Priority string
}

// Oracle turns unstructured content into structured records.
type Oracle interface {
	ExtractFreight(ctx context.Context, in Input) (freight.Draft, error)
	ClassifyOpportunity(ctx context.Context, text string, opts ClassifyOptions) (Classification, error)
}

// Prompts overrides the built-in instructions. Blank fields keep the defaults.
type Prompts struct {
	Model          string
	FreightExtract string
	GroupMonitor   string
}

// PromptSource supplies operator-managed prompt overrides.
type PromptSource interface {
	ActivePrompts(ctx context.Context) (Prompts, error)
}

// ErrEmptyInput is returned when neither media nor text was provided.
var ErrEmptyInput = errors.New("extraction: no image or text provided")

const (
	modeExtract  = "extract"
	modeClassify = "classify"
)

// Service implements Oracle over any LLMClient.
type Service struct {
	client  LLMClient
	model   string
	timeout time.Duration
	prompts PromptSource
	logger  *logging.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

// Option configures a Service.
type Option func(*Service)

func WithModel(model string) Option          { return func(s *Service) { s.model = model } }
func WithTimeout(d time.Duration) Option     { return func(s *Service) { s.timeout = d } }
func WithPromptSource(p PromptSource) Option { return func(s *Service) { s.prompts = p } }
func WithLogger(l *logging.Logger) Option    { return func(s *Service) { s.logger = l } }
func WithMetrics(m *metrics.Metrics) Option  { return func(s *Service) { s.metrics = m } }

// NewService builds the oracle. Calls are bounded by a 60s timeout unless overridden.
func NewService(client LLMClient, opts ...Option) *Service {
	if client == nil {
		panic("extraction: llm client required")
	}
	s := &Service{
		client:  client,
		timeout: 60 * time.Second,
		tracer:  otel.Tracer("fretebot.internal.extraction"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.Default()
	}
	return s
}

var _ Oracle = (*Service)(nil)

// Close releases the backend client.
func (s *Service) Close() error {
	return closeClient(s.client)
}

type freightPayload struct {
	Data           looseString `json:"data"`
	Origem         looseString `json:"origem"`
	Destino        looseString `json:"destino"`
	Toneladas      looseFloat  `json:"toneladas"`
	PrecoTonelada  looseFloat  `json:"precoTonelada"`
	ValorTotal     looseFloat  `json:"valorTotal"`
	Transportadora looseString `json:"transportadora"`
	TicketNota     looseString `json:"ticketNota"`
	Placa          looseString `json:"placa"`
	Motorista      looseString `json:"motorista"`
	Observacao     looseString `json:"observacao"`
}

func (p freightPayload) draft() freight.Draft {
	return freight.Draft{
		Date:         p.Data.Value,
		Origin:       p.Origem.Value,
		Destination:  p.Destino.Value,
		Tons:         p.Toneladas.Value,
		PricePerTon:  p.PrecoTonelada.Value,
		TotalValue:   p.ValorTotal.Value,
		Carrier:      p.Transportadora.Value,
		TicketNumber: p.TicketNota.Value,
		Plate:        p.Placa.Value,
		DriverName:   p.Motorista.Value,
		Note:         p.Observacao.Value,
	}
}

// ExtractFreight reads a freight ticket from an image/document and/or text.
func (s *Service) ExtractFreight(ctx context.Context, in Input) (freight.Draft, error) {
	req := LLMRequest{MaxTokens: 1024, Temperature: 0}
	if strings.TrimSpace(in.ImageBase64) != "" {
		data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(in.ImageBase64))
		if err != nil {
			return freight.Draft{}, fmt.Errorf("extraction: decode media: %w", err)
		}
		req.Attachment = &Attachment{MediaType: in.MediaType, Data: data}
	}
	req.Prompt = strings.TrimSpace(in.Text)
	if req.Attachment == nil && req.Prompt == "" {
		return freight.Draft{}, ErrEmptyInput
	}

	prompts := s.activePrompts(ctx)
	req.Model = firstNonEmpty(prompts.Model, s.model)
	req.System = firstNonEmpty(prompts.FreightExtract, defaultExtractPrompt)
	if req.Prompt == "" {
		req.Prompt = "Extraia os dados deste ticket de frete."
	}

	text, err := s.complete(ctx, modeExtract, req)
	if err != nil {
		return freight.Draft{}, err
	}
	var payload freightPayload
	if err := decodeJSON(text, &payload); err != nil {
		s.metrics.ObserveOracle(modeExtract, "malformed", 0)
		return freight.Draft{}, err
	}
	return payload.draft(), nil
}

type classificationPayload struct {
	IsOpportunity  bool        `json:"isOpportunity"`
	TipoCarga      looseString `json:"tipoCarga"`
	Origem         looseString `json:"origem"`
	Destino        looseString `json:"destino"`
	Tonelagem      looseFloat  `json:"tonelagem"`
	PrecoOferecido looseFloat  `json:"precoOferecido"`
	Urgencia       looseString `json:"urgencia"`
	Contato        looseString `json:"contato"`
	Prioridade     string      `json:"prioridade"`
}

// ClassifyOpportunity decides whether a group message offers freight and how attractive it is.
func (s *Service) ClassifyOpportunity(ctx context.Context, text string, opts ClassifyOptions) (Classification, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Classification{}, ErrEmptyInput
	}
	prompts := s.activePrompts(ctx)
	req := LLMRequest{
		Model:       firstNonEmpty(prompts.Model, s.model),
		System:      renderClassifyPrompt(firstNonEmpty(prompts.GroupMonitor, defaultClassifyPrompt), opts),
		Prompt:      text,
		MaxTokens:   1024,
		Temperature: 0,
	}

	reply, err := s.complete(ctx, modeClassify, req)
	if err != nil {
		return Classification{}, err
	}
	var payload classificationPayload
	if err := decodeJSON(reply, &payload); err != nil {
		s.metrics.ObserveOracle(modeClassify, "malformed", 0)
		return Classification{}, err
	}
	return Classification{
		IsOpportunity: payload.IsOpportunity,
		CargoType:     payload.TipoCarga.Value,
		Origin:        payload.Origem.Value,
		Destination:   payload.Destino.Value,
		Tons:          payload.Tonelagem.Value,
		OfferedPrice:  payload.PrecoOferecido.Value,
		Urgency:       payload.Urgencia.Value,
		Contact:       payload.Contato.Value,
		Priority:      strings.ToUpper(strings.TrimSpace(payload.Prioridade)),
	}, nil
}

func (s *Service) complete(ctx context.Context, mode string, req LLMRequest) (string, error) {
	ctx, span := s.tracer.Start(ctx, "extraction."+mode)
	defer span.End()
	span.SetAttributes(
		attribute.String("oracle.mode", mode),
		attribute.Bool("oracle.has_media", req.Attachment != nil),
	)

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := s.client.Complete(ctx, req)
	elapsed := time.Since(start)
	if err != nil {
		status := "error"
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			status = "timeout"
		}
		s.metrics.ObserveOracle(mode, status, elapsed)
		span.RecordError(err)
		return "", fmt.Errorf("extraction: %s call failed: %w", mode, err)
	}
	s.metrics.ObserveOracle(mode, "ok", elapsed)
	s.logger.Debug("oracle call completed",
		"mode", mode,
		"elapsed_ms", elapsed.Milliseconds(),
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens,
	)
	return resp.Text, nil
}

func (s *Service) activePrompts(ctx context.Context) Prompts {
	if s.prompts == nil {
		return Prompts{}
	}
	p, err := s.prompts.ActivePrompts(ctx)
	if err != nil {
		s.logger.Warn("failed to load prompt overrides; using defaults", "error", err)
		return Prompts{}
	}
	return p
}
