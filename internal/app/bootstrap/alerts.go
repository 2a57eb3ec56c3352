package bootstrap

import (
	"strings"

	appconfig "github.com/arteita/fretebot/internal/config"
	"github.com/arteita/fretebot/internal/notify"
	"github.com/arteita/fretebot/pkg/logging"
)

// BuildEmailSender picks SES when a sender address and client are available,
// then SendGrid, then a stub that only logs.
func BuildEmailSender(cfg *appconfig.Config, ses notify.SESAPI, logger *logging.Logger) notify.EmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	if ses != nil && strings.TrimSpace(cfg.SESFromEmail) != "" {
		if sender := notify.NewSESSender(ses, notify.SESConfig{Identity: alertIdentity(cfg, cfg.SESFromEmail)}, logger); sender != nil {
			logger.Info("alert email via ses", "from", cfg.SESFromEmail)
			return sender
		}
	}
	if sender := notify.NewSendGridSender(notify.SendGridConfig{
		APIKey:   cfg.SendGridAPIKey,
		Identity: alertIdentity(cfg, cfg.SendGridFromEmail),
	}, logger); sender != nil {
		logger.Info("alert email via sendgrid", "from", cfg.SendGridFromEmail)
		return sender
	}
	logger.Warn("no email provider configured; alert emails are only logged")
	return notify.NewStubEmailSender(logger)
}

func alertIdentity(cfg *appconfig.Config, from string) notify.Identity {
	return notify.Identity{
		FromEmail:     from,
		FromName:      cfg.SendGridFromName,
		SubjectPrefix: cfg.AlertSubjectPrefix,
		ReplyTo:       cfg.AlertReplyTo,
	}
}

// BuildNotifier wires operator alerts over email and the messaging gateway.
func BuildNotifier(cfg *appconfig.Config, email notify.EmailSender, text notify.TextSender, logger *logging.Logger) *notify.Service {
	recipients := notify.Recipients{Phones: cfg.AlertPhones}
	if to := strings.TrimSpace(cfg.AlertEmailTo); to != "" {
		recipients.Emails = strings.Split(to, ",")
	}
	return notify.NewService(email, text, recipients, logger)
}
