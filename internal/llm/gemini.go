package llm

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"hirelane.com/interview-orchestrator/internal/store"
)

// Service wraps the Gemini client for interview replies and evaluations.
type Service struct {
	client *genai.Client
	model  string
}

func NewService(ctx context.Context, apiKey, model string) (*Service, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &Service{client: client, model: model}, nil
}

func (s *Service) Close() {
	if s.client != nil {
		if err := s.client.Close(); err != nil {
			log.Printf("Error closing GenAI client: %v", err)
		}
	}
}

// Respond generates the next interviewer turn. The transcript history is
// replayed as chat context; system messages are skipped.
func (s *Service) Respond(ctx context.Context, instruction string, history []store.Message, userMessage string) (string, error) {
	model := s.client.GenerativeModel(s.model)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(instruction)},
	}

	chatSession := model.StartChat()
	chatSession.History = toGenaiHistory(history)

	resp, err := chatSession.SendMessage(ctx, genai.Text(userMessage))
	if err != nil {
		return "", fmt.Errorf("gemini chat SendMessage failed: %w", err)
	}

	text := candidateText(resp)
	if text == "" {
		return "", fmt.Errorf("gemini returned an empty response")
	}
	return text, nil
}

// Evaluate runs a single-shot generation for the evaluation prompt.
func (s *Service) Evaluate(ctx context.Context, prompt string) (string, error) {
	model := s.client.GenerativeModel(s.model)

	temp := float32(0.2)
	model.GenerationConfig = genai.GenerationConfig{Temperature: &temp}

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini evaluation request failed: %w", err)
	}

	text := candidateText(resp)
	if text == "" {
		return "", fmt.Errorf("gemini returned an empty evaluation")
	}
	return text, nil
}

func toGenaiHistory(history []store.Message) []*genai.Content {
	var contents []*genai.Content
	for _, m := range history {
		// Gemini requires chat history to open with a user turn; the
		// transcript opens with the AI greeting, so skip leading AI messages.
		if len(contents) == 0 && m.Sender == store.SenderAI {
			continue
		}
		var role string
		switch m.Sender {
		case store.SenderUser:
			role = "user"
		case store.SenderAI:
			role = "model"
		default:
			continue
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(m.Text)},
		})
	}
	return contents
}

func candidateText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	return strings.TrimSpace(b.String())
}
