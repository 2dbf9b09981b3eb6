package store

import "time"

// Phase is a named stage of the fixed interview sequence. Phases only move
// forward; the only way back is a full restart.
type Phase string

const (
	PhaseIntroduction          Phase = "introduction"
	PhaseCandidateIntroduction Phase = "candidate_introduction"
	PhaseTechnicalQuestions    Phase = "technical_questions"
	PhaseProjectDiscussion     Phase = "project_discussion"
	PhaseBehavioralQuestions   Phase = "behavioral_questions"
	PhaseConclusion            Phase = "conclusion"
	PhaseCompleted             Phase = "completed"
)

// phaseOrder fixes the forward-only ordering of phases.
var phaseOrder = map[Phase]int{
	PhaseIntroduction:          0,
	PhaseCandidateIntroduction: 1,
	PhaseTechnicalQuestions:    2,
	PhaseProjectDiscussion:     3,
	PhaseBehavioralQuestions:   4,
	PhaseConclusion:            5,
	PhaseCompleted:             6,
}

// Index returns the position of p in the fixed phase sequence, or -1 for an
// unknown phase.
func (p Phase) Index() int {
	if i, ok := phaseOrder[p]; ok {
		return i
	}
	return -1
}

type Sender string

const (
	SenderAI     Sender = "ai"
	SenderUser   Sender = "user"
	SenderSystem Sender = "system"
)

type QuestionCategory string

const (
	CategoryTechnical  QuestionCategory = "technical"
	CategoryProject    QuestionCategory = "project"
	CategoryBehavioral QuestionCategory = "behavioral"
)

// Message is one entry of the append-only interview transcript. Messages are
// never edited or deleted except by a full restart.
type Message struct {
	ID               string           `json:"id"`
	Text             string           `json:"text"`
	Sender           Sender           `json:"sender"`
	Timestamp        time.Time        `json:"timestamp"`
	QuestionID       string           `json:"questionId,omitempty"`
	QuestionCategory QuestionCategory `json:"questionCategory,omitempty"`
	AudioS3Key       string           `json:"audioS3Key,omitempty"`
	AudioS3Bucket    string           `json:"audioS3Bucket,omitempty"`
	AudioURL         string           `json:"audioUrl,omitempty"`
}

// AskedQuestion records a question extracted from an AI message so the next
// candidate message can be paired with it. Never mutated after creation.
type AskedQuestion struct {
	ID       string           `json:"id"`
	Question string           `json:"question"`
	Category QuestionCategory `json:"category"`
}

// Feedback is the structured evaluation extracted from the LLM's freeform
// response. Ratings are bounded to 1..5; unparsed ratings default to 3.
type Feedback struct {
	TechnicalSkills     int      `json:"technicalSkills"`
	CommunicationSkills int      `json:"communicationSkills"`
	ProblemSolving      int      `json:"problemSolving"`
	CultureFit          int      `json:"cultureFit"`
	OverallImpression   string   `json:"overallImpression"`
	Strengths           []string `json:"strengths"`
	AreasOfImprovement  []string `json:"areasOfImprovement"`
}

// InterviewState is the mutable session record for one application.
type InterviewState struct {
	CurrentPhase             Phase           `json:"currentPhase"`
	TechnicalQuestionsAsked  int             `json:"technicalQuestionsAsked"`
	ProjectQuestionsAsked    int             `json:"projectQuestionsAsked"`
	BehavioralQuestionsAsked int             `json:"behavioralQuestionsAsked"`
	AskedQuestions           []AskedQuestion `json:"askedQuestions"`
	LastQuestion             string          `json:"lastQuestion,omitempty"`
	TimerStartedAt           *time.Time      `json:"timerStartedAt,omitempty"`
	TimerDurationMinutes     int             `json:"timerDurationMinutes"`
	IsTimerExpired           bool            `json:"isTimerExpired"`
	Feedback                 *Feedback       `json:"feedback,omitempty"`
	CompletedAt              *time.Time      `json:"completedAt,omitempty"`
	FeedbackGeneratedAt      *time.Time      `json:"feedbackGeneratedAt,omitempty"`
}

// QuestionByID finds a tracked question in the state, or nil.
func (s *InterviewState) QuestionByID(id string) *AskedQuestion {
	for i := range s.AskedQuestions {
		if s.AskedQuestions[i].ID == id {
			return &s.AskedQuestions[i]
		}
	}
	return nil
}

// SessionDocument is the stored unit the optimistic-update protocol operates
// on: the state plus the full message history, guarded by a version counter.
type SessionDocument struct {
	ApplicationID string         `json:"applicationId"`
	State         InterviewState `json:"state"`
	History       []Message      `json:"history"`
	Version       int64          `json:"version"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}
