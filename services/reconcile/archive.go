package reconcile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"filippo.io/age"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	gos3 "factsync/pkg/s3"
	"factsync/services/inventory"
)

// ObjectStore uploads archived reports. *s3.Client implements it.
type ObjectStore interface {
	Put(ctx context.Context, obj gos3.Object) (string, error)
}

// ArchiveObserver uploads every run report as zstd-compressed JSON, optionally encrypted to
// an age recipient.
type ArchiveObserver struct {
	store     ObjectStore
	bucket    string
	recipient age.Recipient
}

// NewArchiveObserver validates the bucket and parses recipient when it is set.
func NewArchiveObserver(store ObjectStore, bucket, recipient string) (*ArchiveObserver, error) {
	if store == nil {
		return nil, errors.New("object store is required")
	}
	if bucket == "" {
		return nil, errors.New("archive bucket is required")
	}
	obs := &ArchiveObserver{store: store, bucket: bucket}
	if recipient != "" {
		r, err := age.ParseX25519Recipient(recipient)
		if err != nil {
			return nil, fmt.Errorf("parse age recipient: %w", err)
		}
		obs.recipient = r
	}
	return obs, nil
}

func (o *ArchiveObserver) Name() string { return "archive" }

func (o *ArchiveObserver) FactsPushed(context.Context, uuid.UUID, inventory.Document) error {
	return nil
}

func (o *ArchiveObserver) RunFinished(ctx context.Context, report *Report) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	body, err := compress(payload)
	if err != nil {
		return err
	}

	key := reportKey(report)
	contentType := "application/zstd"
	if o.recipient != nil {
		body, err = encrypt(body, o.recipient)
		if err != nil {
			return err
		}
		key += ".age"
		contentType = "application/octet-stream"
	}

	_, err = o.store.Put(ctx, gos3.Object{
		Bucket:      o.bucket,
		Key:         key,
		Body:        body,
		ContentType: contentType,
		Metadata: map[string]string{
			"run-id": report.ID.String(),
			"mode":   string(report.Mode),
		},
	})
	if err != nil {
		return fmt.Errorf("upload report %s: %w", key, err)
	}
	return nil
}

func reportKey(report *Report) string {
	return fmt.Sprintf("reports/%s/%s.json.zst", report.StartedAt.UTC().Format("2006/01/02"), report.ID)
}

func compress(data []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	defer enc.Close()
	return enc.EncodeAll(data, nil), nil
}

func encrypt(data []byte, recipient age.Recipient) ([]byte, error) {
	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, recipient)
	if err != nil {
		return nil, fmt.Errorf("encrypt report: %w", err)
	}
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("encrypt report: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("encrypt report: %w", err)
	}
	return buf.Bytes(), nil
}
