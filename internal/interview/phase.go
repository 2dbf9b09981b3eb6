package interview

import (
	"strings"
	"time"

	"hirelane.com/interview-orchestrator/internal/store"
)

const maxQuestionsPerPhase = 3

// Decision is the outcome of advancing the phase machine by one candidate
// turn: the instruction for the LLM, the phase and counters to persist, and
// whether the terminal evaluation should be kicked off.
type Decision struct {
	Instruction       string
	NextPhase         store.Phase
	TechnicalAsked    int
	ProjectAsked      int
	BehavioralAsked   int
	TriggerEvaluation bool

	// EndCommand is set when the candidate message matched a configured
	// end-of-interview command; CannedResponse then replaces the LLM call.
	EndCommand     bool
	CannedResponse string
}

// Apply writes the decision's phase and counters into the state. Counters are
// clamped so they never exceed the per-phase question budget.
func (d Decision) Apply(s *store.InterviewState) {
	// Phases only move forward.
	if d.NextPhase.Index() >= s.CurrentPhase.Index() {
		s.CurrentPhase = d.NextPhase
	}
	s.TechnicalQuestionsAsked = clampCount(d.TechnicalAsked)
	s.ProjectQuestionsAsked = clampCount(d.ProjectAsked)
	s.BehavioralQuestionsAsked = clampCount(d.BehavioralAsked)
}

func clampCount(n int) int {
	if n < 0 {
		return 0
	}
	if n > maxQuestionsPerPhase {
		return maxQuestionsPerPhase
	}
	return n
}

// PhaseMachine decides how the interview progresses after each candidate
// message. It is stateless; all interview state lives in the store.
type PhaseMachine struct {
	endCommands []string
}

func NewPhaseMachine(endCommands []string) *PhaseMachine {
	return &PhaseMachine{endCommands: endCommands}
}

// Advance computes the next move for the interview given its current state
// and the incoming candidate message.
func (m *PhaseMachine) Advance(state *store.InterviewState, candidateMessage string) Decision {
	d := Decision{
		NextPhase:       state.CurrentPhase,
		TechnicalAsked:  state.TechnicalQuestionsAsked,
		ProjectAsked:    state.ProjectQuestionsAsked,
		BehavioralAsked: state.BehavioralQuestionsAsked,
	}

	if m.isEndCommand(candidateMessage) {
		d.NextPhase = store.PhaseCompleted
		d.EndCommand = true
		d.TriggerEvaluation = true
		d.CannedResponse = endCommandClosing
		return d
	}

	if timerExpired(state) && state.CurrentPhase.Index() < store.PhaseConclusion.Index() {
		d.NextPhase = store.PhaseConclusion
		d.Instruction = instructionTimerConclusion
		return d
	}

	switch state.CurrentPhase {
	case store.PhaseIntroduction:
		// First candidate message is the self-introduction prompt response.
		d.NextPhase = store.PhaseCandidateIntroduction
		d.Instruction = instructionCandidateIntroduction

	case store.PhaseCandidateIntroduction:
		d.NextPhase = store.PhaseTechnicalQuestions
		d.TechnicalAsked = 1
		d.Instruction = instructionTechnical

	case store.PhaseTechnicalQuestions:
		if state.TechnicalQuestionsAsked < maxQuestionsPerPhase {
			d.TechnicalAsked = state.TechnicalQuestionsAsked + 1
			d.Instruction = instructionTechnical
		} else {
			d.NextPhase = store.PhaseProjectDiscussion
			d.ProjectAsked = 1
			d.Instruction = instructionProject
		}

	case store.PhaseProjectDiscussion:
		if state.ProjectQuestionsAsked < maxQuestionsPerPhase {
			d.ProjectAsked = state.ProjectQuestionsAsked + 1
			d.Instruction = instructionProject
		} else {
			d.NextPhase = store.PhaseBehavioralQuestions
			d.BehavioralAsked = 1
			d.Instruction = instructionBehavioral
		}

	case store.PhaseBehavioralQuestions:
		if state.BehavioralQuestionsAsked < maxQuestionsPerPhase {
			d.BehavioralAsked = state.BehavioralQuestionsAsked + 1
			d.Instruction = instructionBehavioral
		} else {
			d.NextPhase = store.PhaseConclusion
			d.Instruction = instructionConclusion
		}

	case store.PhaseConclusion:
		d.NextPhase = store.PhaseCompleted
		d.TriggerEvaluation = true
		d.Instruction = instructionCompletion

	case store.PhaseCompleted:
		d.Instruction = instructionAlreadyCompleted
	}

	return d
}

func (m *PhaseMachine) isEndCommand(message string) bool {
	trimmed := strings.TrimSpace(message)
	for _, cmd := range m.endCommands {
		if strings.EqualFold(trimmed, cmd) {
			return true
		}
	}
	return false
}

func timerExpired(state *store.InterviewState) bool {
	if state.IsTimerExpired {
		return true
	}
	if state.TimerStartedAt == nil || state.TimerDurationMinutes <= 0 {
		return false
	}
	deadline := state.TimerStartedAt.Add(time.Duration(state.TimerDurationMinutes) * time.Minute)
	return time.Now().After(deadline)
}
