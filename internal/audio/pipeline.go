// Package audio renders AI interview turns into playable speech: synthesize,
// upload to object storage, and hand out time-limited signed URLs.
package audio

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Synthesizer produces audio bytes for a piece of text.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// ObjectStore persists audio objects and signs playback URLs.
type ObjectStore interface {
	Upload(ctx context.Context, key, contentType string, data []byte) error
	SignedURL(ctx context.Context, bucket, key string, expiresIn time.Duration) (string, error)
	Bucket() string
}

type Pipeline struct {
	tts     Synthesizer
	storage ObjectStore
	ttl     time.Duration
}

func NewPipeline(tts Synthesizer, storage ObjectStore, ttl time.Duration) *Pipeline {
	return &Pipeline{tts: tts, storage: storage, ttl: ttl}
}

// Render synthesizes speech for text, stores it under a fresh key, and signs
// a playback URL. The key/bucket pair is what gets persisted with the
// message; the URL is transient.
func (p *Pipeline) Render(ctx context.Context, applicationID, text string) (key, bucket, url string, err error) {
	data, err := p.tts.Synthesize(ctx, text)
	if err != nil {
		return "", "", "", fmt.Errorf("synthesis failed: %w", err)
	}

	key = fmt.Sprintf("interviews/%s/%s.mp3", applicationID, uuid.NewString())
	bucket = p.storage.Bucket()
	if err := p.storage.Upload(ctx, key, "audio/mpeg", data); err != nil {
		return "", "", "", fmt.Errorf("audio upload failed: %w", err)
	}

	url, err = p.storage.SignedURL(ctx, bucket, key, p.ttl)
	if err != nil {
		// The object is already stored; return its coordinates so the caller
		// can persist them and re-sign on a later fetch instead of orphaning
		// the upload.
		return key, bucket, "", fmt.Errorf("audio signing failed: %w", err)
	}
	return key, bucket, url, nil
}

// Sign issues a fresh signed URL for an already stored object. Safe to call
// repeatedly; the stored object is never touched.
func (p *Pipeline) Sign(ctx context.Context, key, bucket string) (string, error) {
	return p.storage.SignedURL(ctx, bucket, key, p.ttl)
}
