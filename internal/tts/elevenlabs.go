package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const defaultBaseURL = "https://api.elevenlabs.io"

// ElevenLabsClient synthesizes speech over the ElevenLabs HTTP API.
type ElevenLabsClient struct {
	APIKey  string
	VoiceID string
	BaseURL string
	Client  *http.Client
}

func NewElevenLabsClient(apiKey, voiceID string) *ElevenLabsClient {
	return &ElevenLabsClient{
		APIKey:  apiKey,
		VoiceID: voiceID,
		BaseURL: defaultBaseURL,
		Client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// Synthesize renders text to MP3 bytes. Callers treat failure as non-fatal;
// the interview continues without audio.
func (e *ElevenLabsClient) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if e.APIKey == "" || e.VoiceID == "" {
		return nil, fmt.Errorf("elevenlabs: api key or voice id missing")
	}
	if text == "" {
		return nil, fmt.Errorf("elevenlabs: empty text")
	}

	endpoint := fmt.Sprintf("%s/v1/text-to-speech/%s", e.BaseURL, url.PathEscape(e.VoiceID))
	q := url.Values{}
	q.Set("output_format", "mp3_44100_128")

	body := map[string]any{
		"model_id": "eleven_flash_v2_5",
		"text":     text,
		"voice_settings": map[string]any{
			"stability":        0.4,
			"similarity_boost": 0.7,
		},
	}
	buf, _ := json.Marshal(body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+"?"+q.Encode(), bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	req.Header.Set("xi-api-key", e.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs request error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("elevenlabs status=%d body=%s", resp.StatusCode, string(b))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs read error: %w", err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("elevenlabs returned no audio")
	}
	return audio, nil
}
