package interview

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"hirelane.com/interview-orchestrator/internal/store"
)

var (
	ErrSessionNotFound = errors.New("interview session not found")
	ErrNotCompleted    = errors.New("interview not completed")
)

// TranscriptStore is the persistence surface the service needs; satisfied by
// store.SQLiteStore.
type TranscriptStore interface {
	GetSession(ctx context.Context, applicationID string) (*store.SessionDocument, error)
	AppendAndUpdate(ctx context.Context, applicationID string, newMessages []store.Message, update func(*store.InterviewState), retries int) (*store.SessionDocument, error)
	DeleteSession(ctx context.Context, applicationID string) error
}

// Responder generates conversational replies and evaluation text.
type Responder interface {
	Respond(ctx context.Context, instruction string, history []store.Message, userMessage string) (string, error)
	Evaluate(ctx context.Context, prompt string) (string, error)
}

// AudioRenderer turns AI text into stored, signable audio. A nil renderer
// disables audio entirely; every audio failure is non-fatal.
type AudioRenderer interface {
	Render(ctx context.Context, applicationID, text string) (key, bucket, url string, err error)
	Sign(ctx context.Context, key, bucket string) (string, error)
}

type Service struct {
	store   TranscriptStore
	llm     Responder
	audio   AudioRenderer
	machine *PhaseMachine
	tracker *QuestionTracker

	timerMinutes int
	retries      int

	// afterEvaluate, when set, is invoked once the asynchronous evaluation
	// attempt for an application finishes. Tests use it to synchronize.
	afterEvaluate func(applicationID string)
}

func NewService(ts TranscriptStore, llm Responder, audio AudioRenderer, endCommands []string, timerMinutes, retries int) *Service {
	return &Service{
		store:        ts,
		llm:          llm,
		audio:        audio,
		machine:      NewPhaseMachine(endCommands),
		tracker:      NewQuestionTracker(),
		timerMinutes: timerMinutes,
		retries:      retries,
	}
}

type InitResult struct {
	Greeting    *string         `json:"greeting"`
	ChatHistory []store.Message `json:"chatHistory"`
	IsCompleted bool            `json:"isCompleted"`
	AudioURL    string          `json:"audioUrl,omitempty"`
}

type ChatResult struct {
	Response           string          `json:"response"`
	IsCompleted        bool            `json:"isCompleted,omitempty"`
	CompletionMessage  string          `json:"completionMessage,omitempty"`
	AudioURL           string          `json:"audioUrl,omitempty"`
	UpdatedChatHistory []store.Message `json:"updatedChatHistory"`
}

type EvalResult struct {
	Feedback       store.Feedback `json:"feedback"`
	EvaluationText string         `json:"evaluationText"`
}

type StateResult struct {
	IsCompleted         bool            `json:"isCompleted"`
	HasEvaluation       bool            `json:"hasEvaluation"`
	Feedback            *store.Feedback `json:"feedback,omitempty"`
	TechnicalQuestions  int             `json:"technicalQuestions"`
	ProjectQuestions    int             `json:"projectQuestions"`
	BehavioralQuestions int             `json:"behavioralQuestions"`
}

// Initialize starts (or resumes) the interview for an application. A restart
// discards the prior transcript and state before starting fresh.
func (s *Service) Initialize(ctx context.Context, applicationID string, forceRestart bool) (*InitResult, error) {
	if forceRestart {
		if err := s.store.DeleteSession(ctx, applicationID); err != nil {
			return nil, fmt.Errorf("failed to reset interview: %w", err)
		}
	}

	doc, err := s.store.GetSession(ctx, applicationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load interview: %w", err)
	}

	if doc != nil {
		return &InitResult{
			ChatHistory: s.refreshAudioURLs(ctx, doc.History),
			IsCompleted: doc.State.CurrentPhase == store.PhaseCompleted,
		}, nil
	}

	greeting := greetingMessage
	aiMsg := newMessage(store.SenderAI, greeting)
	audioURL := s.renderAudio(ctx, applicationID, &aiMsg)

	now := time.Now().UTC()
	timerMinutes := s.timerMinutes
	_, err = s.store.AppendAndUpdate(ctx, applicationID, []store.Message{aiMsg}, func(state *store.InterviewState) {
		state.CurrentPhase = store.PhaseIntroduction
		state.TimerStartedAt = &now
		state.TimerDurationMinutes = timerMinutes
	}, s.retries)
	if err != nil {
		// Degraded: the greeting still goes out even if persistence failed.
		log.Printf("interview init: persistence failed for application %s: %v", applicationID, err)
	}

	aiMsg.AudioURL = audioURL
	return &InitResult{
		Greeting:    &greeting,
		ChatHistory: []store.Message{aiMsg},
		AudioURL:    audioURL,
	}, nil
}

// Chat processes one candidate turn: advance the phase machine, generate the
// AI reply, synthesize audio, and persist both messages.
func (s *Service) Chat(ctx context.Context, applicationID, message string) (*ChatResult, error) {
	doc, err := s.store.GetSession(ctx, applicationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load interview: %w", err)
	}
	if doc == nil {
		return nil, ErrSessionNotFound
	}

	if doc.State.CurrentPhase == store.PhaseCompleted {
		return &ChatResult{
			Response:           alreadyCompletedMessage,
			IsCompleted:        true,
			CompletionMessage:  alreadyCompletedMessage,
			UpdatedChatHistory: s.refreshAudioURLs(ctx, doc.History),
		}, nil
	}

	decision := s.machine.Advance(&doc.State, message)

	userMsg := newMessage(store.SenderUser, message)
	if q := doc.State.QuestionByID(doc.State.LastQuestion); q != nil {
		userMsg.QuestionID = q.ID
		userMsg.QuestionCategory = q.Category
	}

	var response string
	if decision.EndCommand {
		response = decision.CannedResponse
	} else {
		response, err = s.llm.Respond(ctx, systemInstruction+"\n\n"+decision.Instruction, doc.History, message)
		if err != nil {
			// Substitute an apology and leave the state untouched so the
			// candidate's turn is effectively restored.
			log.Printf("interview chat: LLM failed for application %s: %v", applicationID, err)
			apology := newMessage(store.SenderAI, apologyMessage)
			return &ChatResult{
				Response:           apologyMessage,
				UpdatedChatHistory: append(s.refreshAudioURLs(ctx, doc.History), userMsg, apology),
			}, nil
		}
	}

	tracked := s.tracker.Track(response, decision.NextPhase)

	aiMsg := newMessage(store.SenderAI, response)
	if tracked != nil {
		aiMsg.QuestionID = tracked.ID
		aiMsg.QuestionCategory = tracked.Category
	}
	audioURL := s.renderAudio(ctx, applicationID, &aiMsg)

	newDoc, err := s.store.AppendAndUpdate(ctx, applicationID, []store.Message{userMsg, aiMsg}, func(state *store.InterviewState) {
		decision.Apply(state)
		if tracked != nil {
			state.AskedQuestions = append(state.AskedQuestions, *tracked)
			state.LastQuestion = tracked.ID
		}
		if timerExpired(state) {
			state.IsTimerExpired = true
		}
	}, s.retries)

	result := &ChatResult{
		Response: response,
		AudioURL: audioURL,
	}
	if decision.NextPhase == store.PhaseCompleted {
		result.IsCompleted = true
		result.CompletionMessage = response
	}

	if err != nil {
		// Persistence is uncertain but the turn still succeeds for the
		// candidate; reconstruct the history we would have stored.
		log.Printf("interview chat: persistence failed for application %s: %v", applicationID, err)
		aiMsg.AudioURL = audioURL
		result.UpdatedChatHistory = append(s.refreshAudioURLs(ctx, doc.History), userMsg, aiMsg)
	} else {
		result.UpdatedChatHistory = s.refreshAudioURLs(ctx, newDoc.History)
	}

	if decision.TriggerEvaluation {
		// Fire and forget: evaluation failure must never block the closing
		// message.
		go s.evaluateAsync(applicationID)
	}

	return result, nil
}

func (s *Service) evaluateAsync(applicationID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if _, err := s.Evaluate(ctx, applicationID, false); err != nil {
		log.Printf("interview evaluation failed for application %s: %v", applicationID, err)
	}
	if s.afterEvaluate != nil {
		s.afterEvaluate(applicationID)
	}
}

// Evaluate produces (or returns) the structured feedback for a completed
// interview. Unless refresh is set, an existing complete record is returned
// unchanged, and a persisted backup evaluation is re-parsed in preference to
// calling the LLM again.
func (s *Service) Evaluate(ctx context.Context, applicationID string, refresh bool) (*EvalResult, error) {
	doc, err := s.store.GetSession(ctx, applicationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load interview: %w", err)
	}
	if doc == nil {
		return nil, ErrSessionNotFound
	}

	backup := findBackupEvaluation(doc.History)

	if doc.State.CurrentPhase != store.PhaseCompleted {
		if FeedbackComplete(doc.State.Feedback) {
			return &EvalResult{Feedback: *doc.State.Feedback, EvaluationText: backup}, nil
		}
		return nil, ErrNotCompleted
	}

	if !refresh && FeedbackComplete(doc.State.Feedback) {
		return &EvalResult{Feedback: *doc.State.Feedback, EvaluationText: backup}, nil
	}

	if !refresh && backup != "" {
		// Feedback record lost or incomplete, but the raw response survives
		// in the transcript: re-parse instead of spending another LLM call.
		fb := ParseEvaluation(backup)
		s.persistFeedback(ctx, applicationID, fb, nil)
		return &EvalResult{Feedback: fb, EvaluationText: backup}, nil
	}

	evaluationText, err := s.llm.Evaluate(ctx, evaluationPrompt+transcriptText(doc.History))
	if err != nil {
		return nil, fmt.Errorf("evaluation generation failed: %w", err)
	}

	fb := ParseEvaluation(evaluationText)
	backupMsg := newMessage(store.SenderSystem, BackupPrefix+evaluationText)
	s.persistFeedback(ctx, applicationID, fb, []store.Message{backupMsg})

	return &EvalResult{Feedback: fb, EvaluationText: evaluationText}, nil
}

func (s *Service) persistFeedback(ctx context.Context, applicationID string, fb store.Feedback, backup []store.Message) {
	now := time.Now().UTC()
	_, err := s.store.AppendAndUpdate(ctx, applicationID, backup, func(state *store.InterviewState) {
		state.Feedback = &fb
		state.FeedbackGeneratedAt = &now
	}, s.retries)
	if err != nil {
		log.Printf("interview evaluation: persistence failed for application %s: %v", applicationID, err)
	}
}

// State summarizes interview progress for dashboards.
func (s *Service) State(ctx context.Context, applicationID string) (*StateResult, error) {
	doc, err := s.store.GetSession(ctx, applicationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load interview: %w", err)
	}
	if doc == nil {
		return nil, ErrSessionNotFound
	}

	return &StateResult{
		IsCompleted:         doc.State.CurrentPhase == store.PhaseCompleted,
		HasEvaluation:       FeedbackComplete(doc.State.Feedback),
		Feedback:            doc.State.Feedback,
		TechnicalQuestions:  doc.State.TechnicalQuestionsAsked,
		ProjectQuestions:    doc.State.ProjectQuestionsAsked,
		BehavioralQuestions: doc.State.BehavioralQuestionsAsked,
	}, nil
}

// ClearHistory discards the transcript and state for an application.
func (s *Service) ClearHistory(ctx context.Context, applicationID string) error {
	return s.store.DeleteSession(ctx, applicationID)
}

// renderAudio synthesizes and stores speech for an AI message, stamping the
// storage coordinates onto the message. The signed URL is returned separately
// and never persisted: it expires, and history fetches re-sign on the fly.
func (s *Service) renderAudio(ctx context.Context, applicationID string, msg *store.Message) string {
	if s.audio == nil {
		return ""
	}
	key, bucket, url, err := s.audio.Render(ctx, applicationID, msg.Text)
	if key != "" {
		// Stored audio keeps its coordinates even when signing failed; the
		// next history fetch re-signs it.
		msg.AudioS3Key = key
		msg.AudioS3Bucket = bucket
	}
	if err != nil {
		log.Printf("interview audio: rendering failed for application %s: %v", applicationID, err)
		return ""
	}
	return url
}

// refreshAudioURLs re-signs playback URLs for AI messages that have stored
// audio. Re-signing is idempotent and leaves the stored object untouched.
func (s *Service) refreshAudioURLs(ctx context.Context, history []store.Message) []store.Message {
	if s.audio == nil {
		return history
	}
	for i := range history {
		m := &history[i]
		if m.Sender != store.SenderAI || m.AudioS3Key == "" || m.AudioS3Bucket == "" || m.AudioURL != "" {
			continue
		}
		url, err := s.audio.Sign(ctx, m.AudioS3Key, m.AudioS3Bucket)
		if err != nil {
			log.Printf("interview audio: re-signing %s failed: %v", m.AudioS3Key, err)
			continue
		}
		m.AudioURL = url
	}
	return history
}

func newMessage(sender store.Sender, text string) store.Message {
	return store.Message{
		ID:        uuid.NewString(),
		Sender:    sender,
		Text:      text,
		Timestamp: time.Now().UTC(),
	}
}

func findBackupEvaluation(history []store.Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		m := history[i]
		if m.Sender == store.SenderSystem && strings.HasPrefix(m.Text, BackupPrefix) {
			return strings.TrimPrefix(m.Text, BackupPrefix)
		}
	}
	return ""
}

func transcriptText(history []store.Message) string {
	var b strings.Builder
	for _, m := range history {
		switch m.Sender {
		case store.SenderAI:
			b.WriteString("Interviewer: ")
		case store.SenderUser:
			b.WriteString("Candidate: ")
		default:
			continue
		}
		b.WriteString(m.Text)
		b.WriteString("\n")
	}
	return b.String()
}
