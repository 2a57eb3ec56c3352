package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/arteita/fretebot/pkg/logging"
)

const (
	defaultFromName      = "Fretebot"
	defaultSubjectPrefix = "[Fretebot]"
)

// Alert categories. Providers use them to tag messages so the back office can
// filter registrations from load offers.
const (
	CategoryOpportunity       = "opportunity"
	CategoryFreightRegistered = "freight_registered"
)

// EmailSender sends one back-office alert email.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// EmailMessage is one alert addressed to one operator.
type EmailMessage struct {
	To       string
	ToName   string
	Subject  string
	Body     string
	HTML     string
	Category string
}

// Identity is how alert emails present themselves to operators.
type Identity struct {
	FromEmail string
	FromName  string
	// SubjectPrefix is prepended to every subject. Empty uses "[Fretebot]".
	SubjectPrefix string
	// ReplyTo routes operator replies to the dispatch desk instead of the
	// sending address.
	ReplyTo string
}

func (id Identity) withDefaults() Identity {
	if strings.TrimSpace(id.FromName) == "" {
		id.FromName = defaultFromName
	}
	if strings.TrimSpace(id.SubjectPrefix) == "" {
		id.SubjectPrefix = defaultSubjectPrefix
	}
	id.ReplyTo = strings.TrimSpace(id.ReplyTo)
	return id
}

// subject tags the alert so inbox rules can sort it. Subjects already
// carrying the prefix are left alone.
func (id Identity) subject(msg EmailMessage) string {
	subject := strings.TrimSpace(msg.Subject)
	if strings.HasPrefix(subject, id.SubjectPrefix) {
		return subject
	}
	return strings.TrimSpace(id.SubjectPrefix + " " + subject)
}

// SendGridSender delivers alerts through SendGrid.
type SendGridSender struct {
	client   *sendgrid.Client
	identity Identity
	logger   *logging.Logger
}

// SendGridConfig holds the API key and sender identity.
type SendGridConfig struct {
	APIKey string
	Identity
}

// NewSendGridSender returns nil when no API key is configured.
func NewSendGridSender(cfg SendGridConfig, logger *logging.Logger) *SendGridSender {
	if cfg.APIKey == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &SendGridSender{
		client:   sendgrid.NewSendClient(cfg.APIKey),
		identity: cfg.Identity.withDefaults(),
		logger:   logger,
	}
}

func (s *SendGridSender) message(msg EmailMessage) *mail.SGMailV3 {
	html := msg.HTML
	if html == "" {
		html = msg.Body
	}
	from := mail.NewEmail(s.identity.FromName, s.identity.FromEmail)
	m := mail.NewSingleEmail(from, s.identity.subject(msg), mail.NewEmail(msg.ToName, msg.To), msg.Body, html)
	if s.identity.ReplyTo != "" {
		m.SetReplyTo(mail.NewEmail("", s.identity.ReplyTo))
	}
	if msg.Category != "" {
		m.AddCategories(msg.Category)
	}
	return m
}

func (s *SendGridSender) Send(ctx context.Context, msg EmailMessage) error {
	if s.client == nil {
		return fmt.Errorf("notify: sendgrid client not configured")
	}

	response, err := s.client.SendWithContext(ctx, s.message(msg))
	if err != nil {
		s.logger.Error("sendgrid send failed", "error", err, "to", msg.To, "category", msg.Category)
		return fmt.Errorf("notify: sendgrid send failed: %w", err)
	}
	if response.StatusCode >= 400 {
		s.logger.Error("sendgrid returned error status", "status", response.StatusCode, "body", response.Body, "to", msg.To)
		return fmt.Errorf("notify: sendgrid returned status %d", response.StatusCode)
	}
	s.logger.Info("alert email sent via sendgrid", "to", msg.To, "category", msg.Category, "status", response.StatusCode)
	return nil
}

// StubEmailSender logs instead of sending. Used when no provider is configured.
type StubEmailSender struct {
	logger *logging.Logger
}

func NewStubEmailSender(logger *logging.Logger) *StubEmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &StubEmailSender{logger: logger}
}

func (s *StubEmailSender) Send(ctx context.Context, msg EmailMessage) error {
	s.logger.Info("alert email not sent: no provider", "to", msg.To, "category", msg.Category, "subject", msg.Subject)
	return nil
}
