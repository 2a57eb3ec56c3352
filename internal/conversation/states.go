package conversation

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/arteita/fretebot/internal/archive"
	"github.com/arteita/fretebot/internal/events"
	"github.com/arteita/fretebot/internal/extraction"
	"github.com/arteita/fretebot/internal/freight"
	"github.com/arteita/fretebot/internal/messaging"
	"github.com/arteita/fretebot/internal/session"
)

var errNoTicketContent = errors.New("conversation: message has no ticket media or text")

func (e *Engine) onIdle(ctx context.Context, key string, sess *session.Session, msg messaging.Message) turn {
	sess.State = session.StateAwaitingTicket
	if msg.IsTicketMedia() {
		return e.onTicket(ctx, key, sess, msg)
	}
	return turn{reply: welcome(sess.DriverName)}
}

func (e *Engine) onTicket(ctx context.Context, key string, sess *session.Session, msg messaging.Message) turn {
	input, ticket, err := e.ticketInput(ctx, msg)
	if errors.Is(err, errNoTicketContent) {
		return turn{reply: msgSendTicket}
	}
	if err != nil {
		e.logger.Warn("ticket media unavailable", "sender", key, "error", err)
		return turn{reply: msgExtractionFailed}
	}

	draft, err := e.extract(ctx, input)
	if err != nil {
		e.logger.Warn("ticket extraction failed", "sender", key, "error", err)
		return turn{reply: msgExtractionFailed}
	}
	draft.DeriveTotal()

	sess.Draft = draft
	sess.Ticket = ticket
	return e.afterDraftChange(sess)
}

// ticketInput builds the oracle request for msg, downloading ticket media
// when present.
func (e *Engine) ticketInput(ctx context.Context, msg messaging.Message) (extraction.Input, *session.TicketMedia, error) {
	if msg.IsTicketMedia() {
		data, err := e.download(ctx, msg.MediaRef)
		if err != nil {
			return extraction.Input{}, nil, err
		}
		ticket := &session.TicketMedia{
			Ref:       msg.MediaRef,
			MediaType: msg.DeclaredMediaType(),
			FileName:  msg.FileName,
			MessageID: msg.ID,
		}
		return extraction.Input{
			ImageBase64: base64.StdEncoding.EncodeToString(data),
			MediaType:   ticket.MediaType,
			Text:        strings.TrimSpace(msg.Text),
		}, ticket, nil
	}
	if msg.HasText() {
		return extraction.Input{Text: strings.TrimSpace(msg.Text)}, nil, nil
	}
	return extraction.Input{}, nil, errNoTicketContent
}

func (e *Engine) download(ctx context.Context, ref string) ([]byte, error) {
	data, err := e.messenger.DownloadMedia(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("download media: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("download media: empty payload")
	}
	return data, nil
}

// archiveTicket stores the confirmed ticket media best effort and returns its
// object key. The media is fetched again so unconfirmed tickets never reach
// the archive.
func (e *Engine) archiveTicket(ctx context.Context, key string, sess *session.Session) string {
	if e.archive == nil || sess.Ticket == nil {
		return ""
	}
	data, err := e.download(ctx, sess.Ticket.Ref)
	if err != nil {
		e.logger.Warn("ticket archive skipped", "sender", key, "error", err)
		return ""
	}
	objectKey, err := e.archive.ArchiveTicket(ctx, archive.Ticket{
		DriverID:   sess.DriverID,
		Sender:     key,
		MessageID:  sess.Ticket.MessageID,
		MediaType:  sess.Ticket.MediaType,
		FileName:   sess.Ticket.FileName,
		Data:       data,
		ReceivedAt: e.now(),
	})
	if err != nil {
		e.logger.Warn("ticket archive failed", "sender", key, "error", err)
		return ""
	}
	return objectKey
}

// afterDraftChange moves to confirmation or asks for whatever is still missing.
func (e *Engine) afterDraftChange(sess *session.Session) turn {
	missing := sess.Draft.Missing()
	if len(missing) == 0 {
		sess.State = session.StateAwaitingConfirmation
		sess.Missing = nil
		return turn{reply: summary(sess.Draft)}
	}
	sess.State = session.StateAwaitingMissingFields
	sess.Missing = missing
	return turn{reply: missingPrompt(missing)}
}

func (e *Engine) onMissingFields(ctx context.Context, key string, sess *session.Session, msg messaging.Message) turn {
	if msg.Kind != messaging.KindText || !msg.HasText() {
		return turn{reply: msgSendMissingText}
	}
	supplement, err := e.extract(ctx, extraction.Input{Text: strings.TrimSpace(msg.Text)})
	if err != nil {
		e.logger.Warn("missing field extraction failed", "sender", key, "error", err)
		return turn{reply: msgExtractionFailed}
	}
	sess.Draft.Fill(supplement, sess.Missing)
	sess.Draft.DeriveTotal()
	return e.afterDraftChange(sess)
}

func (e *Engine) onConfirmation(ctx context.Context, key string, sess *session.Session, msg messaging.Message) turn {
	switch classifyAnswer(msg.Text) {
	case answerYes:
		return e.register(ctx, key, sess, msg)
	case answerNo:
		e.logger.Info("freight cancelled by driver", "sender", key, "driver_id", sess.DriverID)
		return turn{reply: msgCancelled, closed: true}
	default:
		return turn{reply: msgConfirmReprompt}
	}
}

// register persists the confirmed draft. The session ends either way so a
// failing database cannot leave the driver stuck in confirmation.
func (e *Engine) register(ctx context.Context, key string, sess *session.Session, msg messaging.Message) turn {
	created, err := e.registrar.Register(ctx, freight.Registration{
		Draft:    sess.Draft,
		DriverID: sess.DriverID,
		MediaKey: e.archiveTicket(ctx, key, sess),
	})
	if err != nil {
		e.logger.Error("freight registration failed", "sender", key, "driver_id", sess.DriverID, "error", err)
		return turn{reply: msgRegisterFailed, closed: true}
	}
	e.logger.Info("freight registered", "sender", key, "driver_id", sess.DriverID, "freight_id", created.ID)
	e.publishRegistered(ctx, created, msg.ID)
	return turn{reply: msgRegistered, closed: true}
}

func (e *Engine) publishRegistered(ctx context.Context, f freight.Freight, messageID string) {
	if e.publisher == nil {
		return
	}
	evt := events.FreightRegisteredV1{
		FreightID:     f.ID,
		DriverID:      f.DriverID,
		TicketNumber:  f.TicketNumber,
		OriginID:      f.OriginID,
		DestinationID: f.DestinationID,
		Tons:          f.Tons,
		TotalValue:    f.TotalValue,
		MediaKey:      f.MediaKey,
		RegisteredAt:  f.CreatedAt,
	}
	if err := e.publisher.Publish(ctx, "freight:"+f.ID, evt, events.WithCorrelationID(messageID)); err != nil {
		e.logger.Warn("failed to publish freight event", "freight_id", f.ID, "error", err)
	}
}
