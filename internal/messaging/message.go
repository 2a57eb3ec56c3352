package messaging

import "strings"

// Kind tags the content of a normalized inbound message.
type Kind string

const (
	KindText        Kind = "text"
	KindImage       Kind = "image"
	KindDocument    Kind = "document"
	KindAudio       Kind = "audio"
	KindVideo       Kind = "video"
	KindUnsupported Kind = "unsupported"
)

// Message is a flat, backend-independent view of one chat message. Wrappers
// such as view-once envelopes are already removed.
type Message struct {
	ID   string `json:"id"`
	Kind Kind   `json:"kind"`
	// Text is the body for text messages and the caption (or file name) for media.
	Text string `json:"text,omitempty"`
	// MediaRef identifies downloadable media for the backend that delivered it.
	MediaRef  string `json:"media_ref,omitempty"`
	MediaType string `json:"media_type,omitempty"`
	FileName  string `json:"file_name,omitempty"`
}

// IsTicketMedia reports whether the message carries an image or document the
// oracle can read a ticket from.
func (m Message) IsTicketMedia() bool {
	return (m.Kind == KindImage || m.Kind == KindDocument) && m.MediaRef != ""
}

// HasText reports whether the message carries non-blank text.
func (m Message) HasText() bool {
	return strings.TrimSpace(m.Text) != ""
}

// DeclaredMediaType returns the media type announced by the backend, with a
// default per kind when the payload omitted it.
func (m Message) DeclaredMediaType() string {
	if mt := strings.TrimSpace(strings.SplitN(m.MediaType, ";", 2)[0]); mt != "" {
		return mt
	}
	switch m.Kind {
	case KindDocument:
		return "application/pdf"
	default:
		return "image/jpeg"
	}
}

// Channel separates direct conversations from group broadcasts.
type Channel string

const (
	ChannelPrivate Channel = "private"
	ChannelGroup   Channel = "group"
)

// Inbound is one normalized message ready for dispatch.
type Inbound struct {
	Provider string  `json:"provider"`
	Channel  Channel `json:"channel"`
	// From is the sender's phone digits (the participant for group messages).
	From    string  `json:"from"`
	GroupID string  `json:"group_id,omitempty"`
	Message Message `json:"message"`
}

// SenderKey is the key used to order and deduplicate work for this inbound.
func (in Inbound) SenderKey() string {
	if in.Channel == ChannelGroup {
		return in.GroupID
	}
	return in.From
}

const (
	privateJIDSuffix = "@s.whatsapp.net"
	groupJIDSuffix   = "@g.us"
)

// jidUser strips the server part (and any device suffix) from a JID.
func jidUser(jid string) string {
	user := jid
	if i := strings.IndexByte(user, '@'); i >= 0 {
		user = user[:i]
	}
	if i := strings.IndexByte(user, ':'); i >= 0 {
		user = user[:i]
	}
	return user
}
