package messaging

import (
	"encoding/json"
	"fmt"
	"strings"
)

// EvolutionEventMessagesUpsert is the only self-hosted event that carries new messages.
const EvolutionEventMessagesUpsert = "messages.upsert"

type evolutionWebhook struct {
	Event    string          `json:"event"`
	Instance string          `json:"instance"`
	Data     json.RawMessage `json:"data"`
}

type evolutionMessageData struct {
	Key struct {
		RemoteJID   string `json:"remoteJid"`
		FromMe      bool   `json:"fromMe"`
		ID          string `json:"id"`
		Participant string `json:"participant"`
	} `json:"key"`
	Participant string            `json:"participant"`
	PushName    string            `json:"pushName"`
	Message     *evolutionContent `json:"message"`
}

type evolutionMedia struct {
	Caption  string `json:"caption"`
	Mimetype string `json:"mimetype"`
	FileName string `json:"fileName"`
}

type evolutionContent struct {
	Conversation        string `json:"conversation"`
	ExtendedTextMessage *struct {
		Text string `json:"text"`
	} `json:"extendedTextMessage"`
	ImageMessage      *evolutionMedia `json:"imageMessage"`
	DocumentMessage   *evolutionMedia `json:"documentMessage"`
	AudioMessage      *evolutionMedia `json:"audioMessage"`
	VideoMessage      *evolutionMedia `json:"videoMessage"`
	ViewOnceMessage   *evolutionWrap  `json:"viewOnceMessage"`
	ViewOnceMessageV2 *evolutionWrap  `json:"viewOnceMessageV2"`
}

type evolutionWrap struct {
	Message *evolutionContent `json:"message"`
}

// maxUnwrapDepth bounds view-once unwrapping against hostile payloads.
const maxUnwrapDepth = 8

// normalize flattens the content into a Message, unwrapping view-once envelopes.
func (c *evolutionContent) normalize(id string, depth int) Message {
	msg := Message{ID: id, Kind: KindUnsupported}
	if c == nil || depth > maxUnwrapDepth {
		return msg
	}
	switch {
	case c.Conversation != "":
		msg.Kind, msg.Text = KindText, c.Conversation
	case c.ExtendedTextMessage != nil:
		msg.Kind, msg.Text = KindText, c.ExtendedTextMessage.Text
	case c.ImageMessage != nil:
		msg.Kind, msg.Text = KindImage, c.ImageMessage.Caption
		msg.MediaRef, msg.MediaType = id, c.ImageMessage.Mimetype
	case c.DocumentMessage != nil:
		msg.Kind = KindDocument
		msg.Text = firstNonBlank(c.DocumentMessage.Caption, c.DocumentMessage.FileName)
		msg.MediaRef, msg.MediaType = id, c.DocumentMessage.Mimetype
		msg.FileName = c.DocumentMessage.FileName
	case c.AudioMessage != nil:
		msg.Kind = KindAudio
		msg.MediaRef, msg.MediaType = id, c.AudioMessage.Mimetype
	case c.VideoMessage != nil:
		msg.Kind, msg.Text = KindVideo, c.VideoMessage.Caption
		msg.MediaRef, msg.MediaType = id, c.VideoMessage.Mimetype
	case c.ViewOnceMessage != nil:
		return c.ViewOnceMessage.Message.normalize(id, depth+1)
	case c.ViewOnceMessageV2 != nil:
		return c.ViewOnceMessageV2.Message.normalize(id, depth+1)
	}
	return msg
}

// ParseEvolutionWebhook normalizes a self-hosted gateway delivery. Events other
// than messages.upsert, messages sent by the bot itself and unknown chat types
// yield no inbound messages.
func ParseEvolutionWebhook(body []byte) ([]Inbound, error) {
	var hook evolutionWebhook
	if err := json.Unmarshal(body, &hook); err != nil {
		return nil, fmt.Errorf("messaging: decode evolution webhook: %w", err)
	}
	// the event name arrives as messages.upsert or MESSAGES_UPSERT depending on delivery mode
	event := strings.ReplaceAll(strings.ToLower(hook.Event), "_", ".")
	if event != EvolutionEventMessagesUpsert || len(hook.Data) == 0 {
		return nil, nil
	}

	// messages.upsert carries one message object, some versions wrap several in an array
	var items []evolutionMessageData
	trimmed := strings.TrimSpace(string(hook.Data))
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal(hook.Data, &items); err != nil {
			return nil, fmt.Errorf("messaging: decode evolution data: %w", err)
		}
	} else {
		var item evolutionMessageData
		if err := json.Unmarshal(hook.Data, &item); err != nil {
			return nil, fmt.Errorf("messaging: decode evolution data: %w", err)
		}
		items = append(items, item)
	}

	var out []Inbound
	for _, item := range items {
		if in, ok := item.inbound(); ok {
			out = append(out, in)
		}
	}
	return out, nil
}

func (d evolutionMessageData) inbound() (Inbound, bool) {
	if d.Key.FromMe || d.Message == nil || d.Key.RemoteJID == "" {
		return Inbound{}, false
	}
	msg := d.Message.normalize(d.Key.ID, 0)

	switch {
	case strings.HasSuffix(d.Key.RemoteJID, privateJIDSuffix):
		return Inbound{
			Provider: ProviderEvolution,
			Channel:  ChannelPrivate,
			From:     jidUser(d.Key.RemoteJID),
			Message:  msg,
		}, true
	case strings.HasSuffix(d.Key.RemoteJID, groupJIDSuffix):
		// groups only feed the opportunity monitor, which reads text and captions
		if !msg.HasText() {
			return Inbound{}, false
		}
		participant := firstNonBlank(d.Key.Participant, d.Participant)
		return Inbound{
			Provider: ProviderEvolution,
			Channel:  ChannelGroup,
			From:     jidUser(participant),
			GroupID:  d.Key.RemoteJID,
			Message:  Message{ID: msg.ID, Kind: KindText, Text: msg.Text},
		}, true
	default:
		return Inbound{}, false
	}
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
