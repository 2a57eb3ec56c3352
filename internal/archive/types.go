package archive

import "time"

// Ticket is a downloaded ticket image or document awaiting archival.
type Ticket struct {
	DriverID   string
	Sender     string
	MessageID  string
	MediaType  string
	FileName   string
	Data       []byte
	ReceivedAt time.Time
}

// ManifestEntry is one JSONL line in the monthly manifest file.
type ManifestEntry struct {
	S3Key      string `json:"s3_key"`
	DriverID   string `json:"driver_id"`
	SenderHash string `json:"sender_hash"`
	MessageID  string `json:"message_id,omitempty"`
	MediaType  string `json:"media_type"`
	FileName   string `json:"file_name,omitempty"`
	SizeBytes  int    `json:"size_bytes"`
	ArchivedAt string `json:"archived_at"`
}
