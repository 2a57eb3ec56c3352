package messaging

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// OfficialWebhookObject identifies deliveries from the official cloud API.
const OfficialWebhookObject = "whatsapp_business_account"

// SignatureHeader carries the app-secret HMAC of official deliveries.
const SignatureHeader = "X-Hub-Signature-256"

type officialWebhook struct {
	Object string `json:"object"`
	Entry  []struct {
		ID      string `json:"id"`
		Changes []struct {
			Field string `json:"field"`
			Value struct {
				Metadata struct {
					PhoneNumberID string `json:"phone_number_id"`
				} `json:"metadata"`
				Messages []officialMessage `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type officialMedia struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	Caption  string `json:"caption"`
	Filename string `json:"filename"`
}

type officialMessage struct {
	From string `json:"from"`
	ID   string `json:"id"`
	Type string `json:"type"`
	Text *struct {
		Body string `json:"body"`
	} `json:"text"`
	Image    *officialMedia `json:"image"`
	Document *officialMedia `json:"document"`
	Audio    *officialMedia `json:"audio"`
	Video    *officialMedia `json:"video"`
}

func (m officialMessage) normalize() Message {
	msg := Message{ID: m.ID, Kind: KindUnsupported}
	switch {
	case m.Type == "text" && m.Text != nil:
		msg.Kind, msg.Text = KindText, m.Text.Body
	case m.Type == "image" && m.Image != nil:
		msg.Kind, msg.Text = KindImage, m.Image.Caption
		msg.MediaRef, msg.MediaType = m.Image.ID, m.Image.MimeType
	case m.Type == "document" && m.Document != nil:
		msg.Kind = KindDocument
		msg.Text = firstNonBlank(m.Document.Caption, m.Document.Filename)
		msg.MediaRef, msg.MediaType = m.Document.ID, m.Document.MimeType
		msg.FileName = m.Document.Filename
	case m.Type == "audio" && m.Audio != nil:
		msg.Kind = KindAudio
		msg.MediaRef, msg.MediaType = m.Audio.ID, m.Audio.MimeType
	case m.Type == "video" && m.Video != nil:
		msg.Kind, msg.Text = KindVideo, m.Video.Caption
		msg.MediaRef, msg.MediaType = m.Video.ID, m.Video.MimeType
	}
	return msg
}

// IsOfficialWebhook sniffs the envelope object without a full decode.
func IsOfficialWebhook(body []byte) bool {
	var probe struct {
		Object string `json:"object"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return false
	}
	return probe.Object == OfficialWebhookObject
}

// ParseOfficialWebhook normalizes an official cloud API delivery. Status
// callbacks carry no messages and yield an empty result.
func ParseOfficialWebhook(body []byte) ([]Inbound, error) {
	var hook officialWebhook
	if err := json.Unmarshal(body, &hook); err != nil {
		return nil, fmt.Errorf("messaging: decode official webhook: %w", err)
	}
	if hook.Object != OfficialWebhookObject {
		return nil, fmt.Errorf("messaging: unexpected webhook object %q", hook.Object)
	}

	var out []Inbound
	for _, entry := range hook.Entry {
		for _, change := range entry.Changes {
			for _, m := range change.Value.Messages {
				if m.From == "" {
					continue
				}
				out = append(out, Inbound{
					Provider: ProviderOfficial,
					Channel:  ChannelPrivate,
					From:     m.From,
					Message:  m.normalize(),
				})
			}
		}
	}
	return out, nil
}

// VerifyOfficialSignature checks the sha256 HMAC the cloud API computes over
// the raw body with the app secret.
func VerifyOfficialSignature(body []byte, header, appSecret string) bool {
	if appSecret == "" {
		return false
	}
	sig := strings.TrimPrefix(strings.TrimSpace(header), "sha256=")
	got, err := hex.DecodeString(sig)
	if err != nil || len(got) == 0 {
		return false
	}
	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}
