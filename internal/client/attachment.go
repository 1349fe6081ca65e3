package client

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/lumivid/messaging/internal/domain"
	"github.com/lumivid/messaging/pkg/log"
	"github.com/lumivid/messaging/pkg/storage"
)

// AttachmentStore writes message attachments to blob storage and hands
// back a serving URL for the message payload.
type AttachmentStore struct {
	store   storage.Storage
	maxSize int64
	urlTTL  time.Duration
}

// NewAttachmentStore creates an attachment store over the configured
// storage backend.
func NewAttachmentStore(store storage.Storage, maxSize int64) *AttachmentStore {
	return &AttachmentStore{
		store:   store,
		maxSize: maxSize,
		urlTTL:  24 * time.Hour,
	}
}

// Upload stores the attachment and returns its serving URL. Size is
// checked before any bytes are written.
func (a *AttachmentStore) Upload(ctx context.Context, fileName string, r io.Reader, size int64, contentType string) (string, error) {
	l := log.Ctx(ctx)

	if size > a.maxSize {
		return "", domain.ErrAttachmentTooLarge
	}

	key := fmt.Sprintf("attachments/%s/%s%s",
		time.Now().UTC().Format("2006/01/02"),
		uuid.New().String(),
		filepath.Ext(fileName),
	)

	if err := a.store.Write(ctx, key, io.LimitReader(r, a.maxSize), size, contentType); err != nil {
		l.Error().Err(err).Str("key", key).Msg("attachment write failed")
		return "", err
	}

	url, err := a.store.GetURL(ctx, key, a.urlTTL)
	if err != nil {
		return "", err
	}

	l.Info().Str("key", key).Int64("size", size).Msg("attachment stored")
	return url, nil
}

// Delete removes a stored attachment by key.
func (a *AttachmentStore) Delete(ctx context.Context, key string) error {
	return a.store.Delete(ctx, key)
}
