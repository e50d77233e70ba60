package domain

// Phase is the Project Session lifecycle position
type Phase string

const (
	PhaseIdle               Phase = "idle"
	PhaseAwaitingBasePrompt Phase = "awaiting_base_prompt"
	PhasePromptReady        Phase = "prompt_ready"
	PhaseDraftReady         Phase = "draft_ready"
	PhaseLooping            Phase = "looping"
	PhaseRefined            Phase = "refined"
)

// ValidPhases returns list of valid phases
func ValidPhases() []Phase {
	return []Phase{
		PhaseIdle,
		PhaseAwaitingBasePrompt,
		PhasePromptReady,
		PhaseDraftReady,
		PhaseLooping,
		PhaseRefined,
	}
}

// IsValidPhase checks if a phase is valid
func IsValidPhase(phase Phase) bool {
	for _, p := range ValidPhases() {
		if p == phase {
			return true
		}
	}
	return false
}

// IsTransitional reports phases that only exist while a gateway call is in flight
func (p Phase) IsTransitional() bool {
	return p == PhaseAwaitingBasePrompt || p == PhaseLooping
}

// Status is the coarse lifecycle used by session listings
type Status string

const (
	StatusDraft   Status = "draft"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// StatusOf derives the listing status from phase, in-flight work and the last error
func StatusOf(phase Phase, inFlight bool, failed bool) Status {
	switch {
	case inFlight || phase.IsTransitional():
		return StatusRunning
	case failed:
		return StatusFailed
	case phase == PhaseRefined:
		return StatusDone
	default:
		return StatusDraft
	}
}
