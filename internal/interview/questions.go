package interview

import (
	"regexp"
	"strings"

	"github.com/google/uuid"

	"hirelane.com/interview-orchestrator/internal/store"
)

// questionLead matches common question-introducing phrasings through to the
// closing question mark. Best effort: when the LLM phrases a question in a
// way none of these catch, the turn simply goes untracked.
var questionLead = regexp.MustCompile(`(?i)(?:can you|could you|would you|tell me|describe|explain|walk me through|what|when|where|which|who|why|how)\b[^?]*\?`)

// anyQuestion falls back to the last sentence ending in a question mark.
var anyQuestion = regexp.MustCompile(`[^.!?\n]+\?`)

// QuestionTracker heuristically extracts the question asked in a freshly
// generated AI message so the next candidate answer can be paired with it.
type QuestionTracker struct{}

func NewQuestionTracker() *QuestionTracker {
	return &QuestionTracker{}
}

// CategoryForPhase maps a question-asking phase to its question category.
// Phases that don't ask categorized questions return "".
func CategoryForPhase(phase store.Phase) store.QuestionCategory {
	switch phase {
	case store.PhaseTechnicalQuestions:
		return store.CategoryTechnical
	case store.PhaseProjectDiscussion:
		return store.CategoryProject
	case store.PhaseBehavioralQuestions:
		return store.CategoryBehavioral
	}
	return ""
}

// Track inspects an AI message generated while phase was active. If the
// message contains a question-like substring, a new AskedQuestion is
// returned; otherwise nil. A nil result is an accepted gap, not an error.
func (t *QuestionTracker) Track(messageText string, phase store.Phase) *store.AskedQuestion {
	category := CategoryForPhase(phase)
	if category == "" {
		return nil
	}

	match := questionLead.FindString(messageText)
	if match == "" {
		match = anyQuestion.FindString(messageText)
	}
	match = strings.TrimSpace(match)
	if match == "" {
		return nil
	}

	return &store.AskedQuestion{
		ID:       uuid.NewString(),
		Question: match,
		Category: category,
	}
}
