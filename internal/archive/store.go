package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"
	"time"

	"github.com/arteita/fretebot/pkg/logging"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
)

// S3API is the subset of the S3 client used by MediaStore.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// MediaStore keeps the ticket images and PDFs drivers send so operators can
// audit a freight against the original document.
type MediaStore struct {
	bucket   string
	s3Client S3API
	logger   *logging.Logger
	now      func() time.Time
	newID    func() string
}

// NewMediaStore creates a MediaStore. If bucket is empty, all operations are no-ops.
func NewMediaStore(s3Client S3API, bucket string, logger *logging.Logger) *MediaStore {
	if logger == nil {
		logger = logging.Default()
	}
	return &MediaStore{
		bucket:   strings.TrimSpace(bucket),
		s3Client: s3Client,
		logger:   logger,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Enabled returns true if archival is configured (bucket is set).
func (s *MediaStore) Enabled() bool {
	return s != nil && s.bucket != "" && s.s3Client != nil
}

// ArchiveTicket uploads the ticket and returns its object key. It returns an
// empty key when archival is disabled.
func (s *MediaStore) ArchiveTicket(ctx context.Context, t Ticket) (string, error) {
	if !s.Enabled() {
		return "", nil
	}
	if len(t.Data) == 0 {
		return "", fmt.Errorf("archive: empty ticket payload")
	}

	now := t.ReceivedAt
	if now.IsZero() {
		now = s.now()
	}
	now = now.UTC()
	mediaType := strings.TrimSpace(t.MediaType)
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}
	owner := strings.TrimSpace(t.DriverID)
	if owner == "" {
		owner = "unassigned"
	}

	key := fmt.Sprintf("tickets/v1/by-date/%d/%02d/%02d/%s/%s%s",
		now.Year(), now.Month(), now.Day(), owner, s.newID(), extensionFor(mediaType))

	_, err := s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(t.Data),
		ContentType: aws.String(mediaType),
		Metadata: map[string]string{
			"driver-id":  t.DriverID,
			"message-id": t.MessageID,
		},
	})
	if err != nil {
		return "", fmt.Errorf("archive: s3 put %s: %w", key, err)
	}

	s.logger.Info("archived ticket media",
		"s3_key", key,
		"driver_id", t.DriverID,
		"media_type", mediaType,
		"size_bytes", len(t.Data),
	)

	entry := ManifestEntry{
		S3Key:      key,
		DriverID:   t.DriverID,
		SenderHash: HashPhone(t.Sender),
		MessageID:  t.MessageID,
		MediaType:  mediaType,
		FileName:   t.FileName,
		SizeBytes:  len(t.Data),
		ArchivedAt: now.Format(time.RFC3339),
	}
	if err := s.appendManifest(ctx, now, entry); err != nil {
		s.logger.Warn("failed to append manifest", "error", err, "s3_key", key)
	}
	return key, nil
}

// appendManifest appends a JSONL line to the monthly manifest file.
// S3 has no append, so this is a read-modify-write.
func (s *MediaStore) appendManifest(ctx context.Context, now time.Time, entry ManifestEntry) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("archive: marshal manifest entry: %w", err)
	}
	manifestKey := fmt.Sprintf("tickets/v1/manifests/%d-%02d.jsonl", now.Year(), now.Month())

	var existing []byte
	getResp, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(manifestKey),
	})
	switch {
	case err == nil:
		existing, err = io.ReadAll(getResp.Body)
		getResp.Body.Close()
		if err != nil {
			return fmt.Errorf("archive: read manifest: %w", err)
		}
	case isNotFound(err):
		s.logger.Debug("manifest not found, creating new", "key", manifestKey)
	default:
		return fmt.Errorf("archive: get manifest: %w", err)
	}

	var buf bytes.Buffer
	if len(existing) > 0 {
		buf.Write(existing)
		if existing[len(existing)-1] != '\n' {
			buf.WriteByte('\n')
		}
	}
	buf.Write(line)
	buf.WriteByte('\n')

	_, err = s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(manifestKey),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return fmt.Errorf("archive: s3 put manifest: %w", err)
	}
	return nil
}

func isNotFound(err error) bool {
	var nsk *s3types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "NoSuchKey") || strings.Contains(msg, "StatusCode: 404")
}

var knownExtensions = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/webp":      ".webp",
	"image/heic":      ".heic",
	"application/pdf": ".pdf",
}

func extensionFor(mediaType string) string {
	base, _, err := mime.ParseMediaType(mediaType)
	if err != nil {
		base = mediaType
	}
	if ext, ok := knownExtensions[strings.ToLower(base)]; ok {
		return ext
	}
	if exts, err := mime.ExtensionsByType(base); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}
