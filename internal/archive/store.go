package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/lumalaser/concierge/internal/conversation"
	"github.com/lumalaser/concierge/pkg/logging"
)

// S3API is the subset of the S3 client used by Store.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Store archives conversation transcripts to S3 as JSONL, one message per
// line, keyed by archive date.
type Store struct {
	bucket   string
	s3Client S3API
	logger   *logging.Logger
}

// NewStore creates an archive Store. If bucket is empty, archiving is
// disabled and Archive returns an error.
func NewStore(s3Client S3API, bucket string, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{bucket: bucket, s3Client: s3Client, logger: logger}
}

// Enabled returns true if archival is configured.
func (s *Store) Enabled() bool {
	return s != nil && s.bucket != "" && s.s3Client != nil
}

// Archive writes a transcript to S3 and returns the object location.
func (s *Store) Archive(ctx context.Context, conversationID string, messages []conversation.TranscriptMessage) (string, error) {
	if !s.Enabled() {
		return "", fmt.Errorf("archive: no bucket configured")
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, msg := range messages {
		if err := enc.Encode(msg); err != nil {
			return "", fmt.Errorf("archive: encode message: %w", err)
		}
	}

	now := time.Now().UTC()
	key := fmt.Sprintf("transcripts/v1/%d/%02d/%02d/%s.jsonl",
		now.Year(), now.Month(), now.Day(), conversationID)

	_, err := s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return "", fmt.Errorf("archive: s3 put %s: %w", key, err)
	}

	location := fmt.Sprintf("s3://%s/%s", s.bucket, key)
	s.logger.Info("transcript archived",
		"conversation_id", conversationID,
		"location", location,
		"messages", len(messages),
	)
	return location, nil
}

var _ conversation.TranscriptArchiver = (*Store)(nil)
