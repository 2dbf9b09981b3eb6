package interview

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hirelane.com/interview-orchestrator/internal/store"
)

// fakeStore is an in-memory TranscriptStore mirroring the optimistic-append
// semantics of the SQLite implementation.
type fakeStore struct {
	mu   sync.Mutex
	docs map[string]*store.SessionDocument
}

func newFakeStore() *fakeStore {
	return &fakeStore{docs: make(map[string]*store.SessionDocument)}
}

func (f *fakeStore) GetSession(_ context.Context, applicationID string) (*store.SessionDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[applicationID]
	if !ok {
		return nil, nil
	}
	copied := *doc
	copied.History = append([]store.Message(nil), doc.History...)
	return &copied, nil
}

func (f *fakeStore) AppendAndUpdate(_ context.Context, applicationID string, newMessages []store.Message, update func(*store.InterviewState), _ int) (*store.SessionDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[applicationID]
	if !ok {
		doc = &store.SessionDocument{
			ApplicationID: applicationID,
			State:         store.InterviewState{CurrentPhase: store.PhaseIntroduction},
		}
		f.docs[applicationID] = doc
	}
	if update != nil {
		update(&doc.State)
	}
	if doc.State.CurrentPhase == store.PhaseCompleted && doc.State.CompletedAt == nil {
		now := time.Now().UTC()
		doc.State.CompletedAt = &now
	}
	doc.History = append(doc.History, newMessages...)
	doc.Version++
	copied := *doc
	copied.History = append([]store.Message(nil), doc.History...)
	return &copied, nil
}

func (f *fakeStore) DeleteSession(_ context.Context, applicationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.docs, applicationID)
	return nil
}

type fakeResponder struct {
	mu            sync.Mutex
	respondText   string
	respondErr    error
	respondCalls  int
	evaluateText  string
	evaluateErr   error
	evaluateCalls int
}

func (f *fakeResponder) Respond(context.Context, string, []store.Message, string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.respondCalls++
	return f.respondText, f.respondErr
}

func (f *fakeResponder) Evaluate(context.Context, string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.evaluateCalls++
	return f.evaluateText, f.evaluateErr
}

type fakeAudio struct {
	mu        sync.Mutex
	signCalls int
	fail      bool
	signFail  bool
}

func (f *fakeAudio) Render(_ context.Context, applicationID, _ string) (string, string, string, error) {
	if f.fail {
		return "", "", "", errors.New("tts unavailable")
	}
	key := fmt.Sprintf("interviews/%s/audio.mp3", applicationID)
	if f.signFail {
		return key, "interview-audio", "", errors.New("signer down")
	}
	return key, "interview-audio", "https://signed.example/" + key, nil
}

func (f *fakeAudio) Sign(_ context.Context, key, bucket string) (string, error) {
	f.mu.Lock()
	f.signCalls++
	f.mu.Unlock()
	return fmt.Sprintf("https://signed.example/%s/%s", bucket, key), nil
}

func newTestService(fs *fakeStore, fr *fakeResponder, fa AudioRenderer) *Service {
	return NewService(fs, fr, fa, []string{"end interview"}, 30, 3)
}

func TestService_InitializeCreatesSessionWithGreetingAudio(t *testing.T) {
	fs := newFakeStore()
	fr := &fakeResponder{respondText: "unused"}
	svc := newTestService(fs, fr, &fakeAudio{})

	result, err := svc.Initialize(context.Background(), "app-1", false)
	require.NoError(t, err)
	require.NotNil(t, result.Greeting)
	assert.False(t, result.IsCompleted)
	assert.NotEmpty(t, result.AudioURL)
	require.Len(t, result.ChatHistory, 1)
	assert.Equal(t, store.SenderAI, result.ChatHistory[0].Sender)
	assert.NotEmpty(t, result.ChatHistory[0].AudioS3Key)

	doc, err := fs.GetSession(context.Background(), "app-1")
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, store.PhaseIntroduction, doc.State.CurrentPhase)
	require.NotNil(t, doc.State.TimerStartedAt)
	assert.Equal(t, 30, doc.State.TimerDurationMinutes)
}

func TestService_InitializeResumesExistingSession(t *testing.T) {
	fs := newFakeStore()
	fr := &fakeResponder{}
	svc := newTestService(fs, fr, &fakeAudio{})

	_, err := svc.Initialize(context.Background(), "app-1", false)
	require.NoError(t, err)

	result, err := svc.Initialize(context.Background(), "app-1", false)
	require.NoError(t, err)
	assert.Nil(t, result.Greeting)
	require.Len(t, result.ChatHistory, 1)
	// The stored message has no URL; it must be re-signed on fetch.
	assert.NotEmpty(t, result.ChatHistory[0].AudioURL)
}

func TestService_InitializeForceRestartDiscardsState(t *testing.T) {
	fs := newFakeStore()
	fr := &fakeResponder{respondText: "Nice to meet you. What drew you to this role?"}
	svc := newTestService(fs, fr, nil)

	_, err := svc.Initialize(context.Background(), "app-1", false)
	require.NoError(t, err)
	_, err = svc.Chat(context.Background(), "app-1", "hello, I'm Sam")
	require.NoError(t, err)

	result, err := svc.Initialize(context.Background(), "app-1", true)
	require.NoError(t, err)
	require.NotNil(t, result.Greeting)
	assert.Len(t, result.ChatHistory, 1)

	doc, _ := fs.GetSession(context.Background(), "app-1")
	assert.Equal(t, store.PhaseIntroduction, doc.State.CurrentPhase)
}

func TestService_ChatAdvancesPhaseAndTracksQuestion(t *testing.T) {
	fs := newFakeStore()
	fr := &fakeResponder{respondText: "Thanks! Could you describe your experience with Go concurrency?"}
	svc := newTestService(fs, fr, nil)

	_, err := svc.Initialize(context.Background(), "app-1", false)
	require.NoError(t, err)

	// introduction -> candidate_introduction
	_, err = svc.Chat(context.Background(), "app-1", "Hi, I'm Sam, a backend engineer")
	require.NoError(t, err)
	// candidate_introduction -> technical_questions; the reply contains a
	// question, so it must be tracked as technical.
	result, err := svc.Chat(context.Background(), "app-1", "I love building services")
	require.NoError(t, err)
	assert.False(t, result.IsCompleted)

	doc, _ := fs.GetSession(context.Background(), "app-1")
	assert.Equal(t, store.PhaseTechnicalQuestions, doc.State.CurrentPhase)
	assert.Equal(t, 1, doc.State.TechnicalQuestionsAsked)
	require.Len(t, doc.State.AskedQuestions, 1)
	assert.Equal(t, store.CategoryTechnical, doc.State.AskedQuestions[0].Category)
	assert.Equal(t, doc.State.AskedQuestions[0].ID, doc.State.LastQuestion)

	// The AI message carries the question reference.
	last := doc.History[len(doc.History)-1]
	assert.Equal(t, store.SenderAI, last.Sender)
	assert.Equal(t, doc.State.LastQuestion, last.QuestionID)
}

func TestService_ChatPairsAnswerWithLastQuestion(t *testing.T) {
	fs := newFakeStore()
	fr := &fakeResponder{respondText: "Interesting. How would you design a rate limiter?"}
	svc := newTestService(fs, fr, nil)

	_, err := svc.Initialize(context.Background(), "app-1", false)
	require.NoError(t, err)
	_, err = svc.Chat(context.Background(), "app-1", "Hi, I'm Sam")
	require.NoError(t, err)
	_, err = svc.Chat(context.Background(), "app-1", "backend mostly")
	require.NoError(t, err)

	doc, _ := fs.GetSession(context.Background(), "app-1")
	questionID := doc.State.LastQuestion
	require.NotEmpty(t, questionID)

	_, err = svc.Chat(context.Background(), "app-1", "token bucket with a refill goroutine")
	require.NoError(t, err)

	doc, _ = fs.GetSession(context.Background(), "app-1")
	// The candidate's answer is stamped with the previous question.
	var answer *store.Message
	for i := range doc.History {
		if doc.History[i].Sender == store.SenderUser && doc.History[i].QuestionID == questionID {
			answer = &doc.History[i]
		}
	}
	require.NotNil(t, answer)
	assert.Equal(t, store.CategoryTechnical, answer.QuestionCategory)
}

func TestService_ChatMissingSession(t *testing.T) {
	svc := newTestService(newFakeStore(), &fakeResponder{}, nil)
	_, err := svc.Chat(context.Background(), "nope", "hello")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestService_ChatLLMFailureRestoresTurn(t *testing.T) {
	fs := newFakeStore()
	fr := &fakeResponder{respondErr: errors.New("model overloaded")}
	svc := newTestService(fs, fr, nil)

	_, err := svc.Initialize(context.Background(), "app-1", false)
	require.NoError(t, err)

	before, _ := fs.GetSession(context.Background(), "app-1")
	result, err := svc.Chat(context.Background(), "app-1", "hello")
	require.NoError(t, err)
	assert.Equal(t, apologyMessage, result.Response)

	after, _ := fs.GetSession(context.Background(), "app-1")
	// Nothing advanced, nothing persisted: the candidate can just retry.
	assert.Equal(t, before.State.CurrentPhase, after.State.CurrentPhase)
	assert.Len(t, after.History, len(before.History))
}

func TestService_ChatAudioFailureIsNonFatal(t *testing.T) {
	fs := newFakeStore()
	fr := &fakeResponder{respondText: "Welcome! What's your background?"}
	svc := newTestService(fs, fr, &fakeAudio{fail: true})

	_, err := svc.Initialize(context.Background(), "app-1", false)
	require.NoError(t, err)
	result, err := svc.Chat(context.Background(), "app-1", "hello")
	require.NoError(t, err)
	assert.Empty(t, result.AudioURL)
	assert.Equal(t, "Welcome! What's your background?", result.Response)
}

func TestService_ChatSigningFailureKeepsAudioReference(t *testing.T) {
	fs := newFakeStore()
	fr := &fakeResponder{respondText: "Welcome! What's your background?"}
	svc := newTestService(fs, fr, &fakeAudio{signFail: true})

	_, err := svc.Initialize(context.Background(), "app-1", false)
	require.NoError(t, err)
	result, err := svc.Chat(context.Background(), "app-1", "hello")
	require.NoError(t, err)
	assert.Empty(t, result.AudioURL)

	// The uploaded object's coordinates survive, so the next fetch can
	// re-sign instead of leaving the audio orphaned.
	doc, _ := fs.GetSession(context.Background(), "app-1")
	last := doc.History[len(doc.History)-1]
	require.Equal(t, store.SenderAI, last.Sender)
	assert.NotEmpty(t, last.AudioS3Key)
	assert.NotEmpty(t, last.AudioS3Bucket)
}

func TestService_EndCommandSkipsLLMAndCompletes(t *testing.T) {
	fs := newFakeStore()
	fr := &fakeResponder{evaluateText: sampleEvaluation}
	svc := newTestService(fs, fr, nil)

	evalDone := make(chan string, 1)
	svc.afterEvaluate = func(applicationID string) { evalDone <- applicationID }

	_, err := svc.Initialize(context.Background(), "app-1", false)
	require.NoError(t, err)

	result, err := svc.Chat(context.Background(), "app-1", "end interview")
	require.NoError(t, err)
	assert.True(t, result.IsCompleted)
	assert.NotEmpty(t, result.CompletionMessage)
	assert.Zero(t, fr.respondCalls, "no LLM call for the canned closing")

	select {
	case <-evalDone:
	case <-time.After(5 * time.Second):
		t.Fatal("asynchronous evaluation never ran")
	}

	doc, _ := fs.GetSession(context.Background(), "app-1")
	assert.Equal(t, store.PhaseCompleted, doc.State.CurrentPhase)
	require.NotNil(t, doc.State.CompletedAt)
	require.NotNil(t, doc.State.Feedback)
	assert.True(t, FeedbackComplete(doc.State.Feedback))
	assert.NotEmpty(t, findBackupEvaluation(doc.History))
}

func TestService_ChatAfterCompletionDoesNotAppend(t *testing.T) {
	fs := newFakeStore()
	fr := &fakeResponder{evaluateText: sampleEvaluation}
	svc := newTestService(fs, fr, nil)
	evalDone := make(chan struct{})
	svc.afterEvaluate = func(string) { close(evalDone) }

	_, err := svc.Initialize(context.Background(), "app-1", false)
	require.NoError(t, err)
	_, err = svc.Chat(context.Background(), "app-1", "end interview")
	require.NoError(t, err)

	select {
	case <-evalDone:
	case <-time.After(5 * time.Second):
		t.Fatal("asynchronous evaluation never ran")
	}

	before, _ := fs.GetSession(context.Background(), "app-1")
	result, err := svc.Chat(context.Background(), "app-1", "hello again")
	require.NoError(t, err)
	assert.True(t, result.IsCompleted)

	after, _ := fs.GetSession(context.Background(), "app-1")
	assert.Len(t, after.History, len(before.History))
}

func TestService_EvaluateReturnsExistingWithoutRefresh(t *testing.T) {
	fs := newFakeStore()
	fr := &fakeResponder{evaluateText: sampleEvaluation}
	svc := newTestService(fs, fr, nil)

	_, err := fs.AppendAndUpdate(context.Background(), "app-1", nil, func(s *store.InterviewState) {
		s.CurrentPhase = store.PhaseCompleted
		fb := ParseEvaluation(sampleEvaluation)
		s.Feedback = &fb
	}, 1)
	require.NoError(t, err)

	result, err := svc.Evaluate(context.Background(), "app-1", false)
	require.NoError(t, err)
	assert.Equal(t, 4, result.Feedback.TechnicalSkills)
	assert.Zero(t, fr.evaluateCalls)
}

func TestService_EvaluateRefreshForcesRegeneration(t *testing.T) {
	fs := newFakeStore()
	fr := &fakeResponder{evaluateText: sampleEvaluation}
	svc := newTestService(fs, fr, nil)

	_, err := fs.AppendAndUpdate(context.Background(), "app-1", nil, func(s *store.InterviewState) {
		s.CurrentPhase = store.PhaseCompleted
		fb := ParseEvaluation(sampleEvaluation)
		s.Feedback = &fb
	}, 1)
	require.NoError(t, err)

	_, err = svc.Evaluate(context.Background(), "app-1", true)
	require.NoError(t, err)
	assert.Equal(t, 1, fr.evaluateCalls)
}

func TestService_EvaluateRecoversFromBackup(t *testing.T) {
	fs := newFakeStore()
	fr := &fakeResponder{evaluateErr: errors.New("should not be called")}
	svc := newTestService(fs, fr, nil)

	backup := store.Message{
		ID: "backup-1", Sender: store.SenderSystem,
		Text: BackupPrefix + sampleEvaluation, Timestamp: time.Now(),
	}
	_, err := fs.AppendAndUpdate(context.Background(), "app-1", []store.Message{backup}, func(s *store.InterviewState) {
		s.CurrentPhase = store.PhaseCompleted
	}, 1)
	require.NoError(t, err)

	result, err := svc.Evaluate(context.Background(), "app-1", false)
	require.NoError(t, err)
	assert.Equal(t, 4, result.Feedback.TechnicalSkills)
	assert.Equal(t, sampleEvaluation, result.EvaluationText)
	assert.Zero(t, fr.evaluateCalls)

	doc, _ := fs.GetSession(context.Background(), "app-1")
	assert.True(t, FeedbackComplete(doc.State.Feedback))
}

func TestService_EvaluateNotCompleted(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs, &fakeResponder{}, nil)

	_, err := fs.AppendAndUpdate(context.Background(), "app-1", nil, nil, 1)
	require.NoError(t, err)

	_, err = svc.Evaluate(context.Background(), "app-1", false)
	assert.ErrorIs(t, err, ErrNotCompleted)
}

func TestService_StateSummarizesProgress(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs, &fakeResponder{}, nil)

	_, err := fs.AppendAndUpdate(context.Background(), "app-1", nil, func(s *store.InterviewState) {
		s.CurrentPhase = store.PhaseProjectDiscussion
		s.TechnicalQuestionsAsked = 3
		s.ProjectQuestionsAsked = 2
	}, 1)
	require.NoError(t, err)

	state, err := svc.State(context.Background(), "app-1")
	require.NoError(t, err)
	assert.False(t, state.IsCompleted)
	assert.False(t, state.HasEvaluation)
	assert.Equal(t, 3, state.TechnicalQuestions)
	assert.Equal(t, 2, state.ProjectQuestions)
	assert.Equal(t, 0, state.BehavioralQuestions)
}
