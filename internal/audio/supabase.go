package audio

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/supabase-community/supabase-go"
)

// SupabaseStore implements ObjectStore on top of Supabase Storage.
type SupabaseStore struct {
	client *supabase.Client
	bucket string
}

func NewSupabaseStore(baseURL, serviceKey, bucket string) (*SupabaseStore, error) {
	client, err := supabase.NewClient(baseURL, serviceKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to create Supabase client: %w", err)
	}
	return &SupabaseStore{client: client, bucket: bucket}, nil
}

func (s *SupabaseStore) Bucket() string {
	return s.bucket
}

func (s *SupabaseStore) Upload(ctx context.Context, key, contentType string, data []byte) error {
	_, err := s.client.Storage.UploadFile(s.bucket, key, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to upload to Supabase: %w", err)
	}
	return nil
}

func (s *SupabaseStore) SignedURL(ctx context.Context, bucket, key string, expiresIn time.Duration) (string, error) {
	resp, err := s.client.Storage.CreateSignedUrl(bucket, key, int(expiresIn.Seconds()))
	if err != nil {
		return "", fmt.Errorf("failed to sign URL: %w", err)
	}
	return resp.SignedURL, nil
}
