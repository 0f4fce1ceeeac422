// Package reports archives tick summaries to the object store so
// operators can audit past batch runs without trawling logs.
package reports

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"

	"github.com/indexr-labs/indexr-go/internal/engine"
)

// Archiver writes one JSON object per tick. It is optional; when the
// archive strategy is disabled at startup the keeper simply holds no
// Archiver.
type Archiver struct {
	client *minio.Client
	bucket string
}

func NewArchiver(client *minio.Client, bucket string) (*Archiver, error) {
	if client == nil {
		return nil, errors.New("object store client is required")
	}
	if strings.TrimSpace(bucket) == "" {
		return nil, errors.New("reports bucket is required")
	}
	return &Archiver{client: client, bucket: bucket}, nil
}

type tickReport struct {
	TickAt    time.Time        `json:"tick_at"`
	Processed int              `json:"processed"`
	Executed  int              `json:"executed"`
	Failed    int              `json:"failed"`
	Skipped   int              `json:"skipped"`
	Results   []engine.Outcome `json:"results"`
}

// Archive uploads the summary under ticks/<date>/<time>-<id>.json.
func (a *Archiver) Archive(ctx context.Context, tickAt time.Time, summary engine.Summary) (string, error) {
	report := tickReport{
		TickAt:    tickAt.UTC(),
		Processed: summary.Processed,
		Executed:  summary.Executed,
		Failed:    summary.Failed,
		Skipped:   summary.Skipped,
		Results:   summary.Results,
	}
	payload, err := json.Marshal(report)
	if err != nil {
		return "", fmt.Errorf("marshal tick report: %w", err)
	}

	key := fmt.Sprintf("ticks/%s/%s-%s.json",
		tickAt.UTC().Format("2006-01-02"),
		tickAt.UTC().Format("150405"),
		uuid.NewString())
	_, err = a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(payload), int64(len(payload)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return "", fmt.Errorf("upload tick report: %w", err)
	}
	return key, nil
}
