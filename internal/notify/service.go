package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/arteita/fretebot/internal/events"
	"github.com/arteita/fretebot/internal/opportunity"
	"github.com/arteita/fretebot/pkg/logging"
)

// TextSender delivers a chat message to an operator phone.
type TextSender interface {
	SendText(ctx context.Context, to, text string) error
}

// Recipients lists who receives back-office alerts.
type Recipients struct {
	Emails []string
	Phones []string
}

// Service sends alerts to the back office over email and chat.
type Service struct {
	email      EmailSender
	text       TextSender
	recipients Recipients
	logger     *logging.Logger
}

// NewService creates a notification service. Either channel may be nil.
func NewService(email EmailSender, text TextSender, recipients Recipients, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		email:      email,
		text:       text,
		recipients: recipients.clean(),
		logger:     logger,
	}
}

var _ opportunity.Alerter = (*Service)(nil)

func (r Recipients) clean() Recipients {
	return Recipients{Emails: nonBlank(r.Emails), Phones: nonBlank(r.Phones)}
}

func nonBlank(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// OpportunityAlert tells operators about a high-priority load offer.
func (s *Service) OpportunityAlert(ctx context.Context, o opportunity.Opportunity, groupName string) error {
	route := routeLabel(o.Origin, o.Destination)
	subject := fmt.Sprintf("Oportunidade %s: %s", o.Priority, route)

	var lines []string
	lines = append(lines, fmt.Sprintf("Grupo: %s", fallback(groupName, o.RemoteGroupID)))
	lines = append(lines, fmt.Sprintf("Rota: %s", route))
	if o.CargoType != "" {
		lines = append(lines, fmt.Sprintf("Carga: %s", o.CargoType))
	}
	if o.Tons != nil {
		lines = append(lines, fmt.Sprintf("Toneladas: %.1f", *o.Tons))
	}
	if o.OfferedPrice != nil {
		lines = append(lines, fmt.Sprintf("Preco oferecido: R$ %.2f", *o.OfferedPrice))
	}
	if o.Urgency != "" {
		lines = append(lines, fmt.Sprintf("Urgencia: %s", o.Urgency))
	}
	if o.Contact != "" {
		lines = append(lines, fmt.Sprintf("Contato: %s", o.Contact))
	}
	lines = append(lines, fmt.Sprintf("Expira em: %s", o.ExpiresAt.Format("02/01 15:04")))

	body := strings.Join(lines, "\n") + "\n\nMensagem original:\n" + truncate(o.MessageText, 1000)
	chat := fmt.Sprintf("*%s*\n%s", subject, strings.Join(lines, "\n"))

	return s.deliver(ctx, CategoryOpportunity, subject, body, chat)
}

// NotifyFreightRegistered tells the back office a freight awaits validation.
func (s *Service) NotifyFreightRegistered(ctx context.Context, evt events.FreightRegisteredV1) error {
	subject := "Novo frete aguardando validacao"
	if evt.TicketNumber != "" {
		subject = fmt.Sprintf("Novo frete aguardando validacao (ticket %s)", evt.TicketNumber)
	}
	lines := []string{
		fmt.Sprintf("Frete: %s", evt.FreightID),
		fmt.Sprintf("Motorista: %s", evt.DriverID),
	}
	if evt.Tons > 0 {
		lines = append(lines, fmt.Sprintf("Toneladas: %.1f", evt.Tons))
	}
	if evt.TotalValue > 0 {
		lines = append(lines, fmt.Sprintf("Valor total: R$ %.2f", evt.TotalValue))
	}
	lines = append(lines, fmt.Sprintf("Registrado em: %s", evt.RegisteredAt.Format("02/01/2006 15:04")))

	// Registrations are frequent; chat is reserved for opportunities.
	return s.deliver(ctx, CategoryFreightRegistered, subject, strings.Join(lines, "\n"), "")
}

// Handle implements events.DeliveryHandler for outbox fan-out. Event types
// without a notification are acknowledged.
func (s *Service) Handle(ctx context.Context, entry events.OutboxEntry) error {
	if entry.Type != events.TypeFreightRegistered {
		return nil
	}
	env, err := entry.Envelope()
	if err != nil {
		return err
	}
	var evt events.FreightRegisteredV1
	if err := json.Unmarshal(env.Payload, &evt); err != nil {
		return fmt.Errorf("notify: decode %s: %w", entry.Type, err)
	}
	return s.NotifyFreightRegistered(ctx, evt)
}

// deliver fans a notification out to every recipient. It fails only when
// every attempted delivery failed.
func (s *Service) deliver(ctx context.Context, kind, subject, body, chat string) error {
	var errs []error
	attempts := 0

	if s.email != nil {
		htmlBody := "<pre style=\"font-family: sans-serif\">" + html.EscapeString(body) + "</pre>"
		for _, to := range s.recipients.Emails {
			attempts++
			if err := s.email.Send(ctx, EmailMessage{To: to, Subject: subject, Body: body, HTML: htmlBody, Category: kind}); err != nil {
				s.logger.Error("notify: failed to send email", "error", err, "to", to, "kind", kind)
				errs = append(errs, err)
				continue
			}
			s.logger.Info("notify: email sent", "to", to, "kind", kind)
		}
	}

	if s.text != nil && chat != "" {
		for _, to := range s.recipients.Phones {
			attempts++
			if err := s.text.SendText(ctx, to, chat); err != nil {
				s.logger.Error("notify: failed to send chat alert", "error", err, "to", to, "kind", kind)
				errs = append(errs, err)
				continue
			}
			s.logger.Info("notify: chat alert sent", "to", to, "kind", kind)
		}
	}

	if attempts == 0 {
		s.logger.Debug("notify: no recipients configured", "kind", kind)
		return nil
	}
	if len(errs) == attempts {
		return fmt.Errorf("notify: all %d deliveries failed: %w", attempts, errors.Join(errs...))
	}
	return nil
}

func routeLabel(origin, destination string) string {
	return fallback(origin, "?") + " -> " + fallback(destination, "?")
}

func fallback(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func truncate(s string, maxLen int) string {
	if len([]rune(s)) <= maxLen {
		return s
	}
	return string([]rune(s)[:maxLen]) + "..."
}
