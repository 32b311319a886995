package policy

// Phase is a state of the collection state machine.
type Phase uint8

// Collection phases.
//
//	Attempt ──ok──────────────────────────────▶ Done
//	Attempt ──fail, retries left──▶ Retry ──▶ Attempt
//	Attempt ──fail, never worked──────────────▶ Fault
//	Attempt ──fail, worked before─▶ Degraded ──fail count > limit──▶ Restart
const (
	PhaseAttempt Phase = iota
	PhaseRetry
	PhaseDone
	PhaseFault
	PhaseDegraded
	PhaseRestart
)

var phaseNames = [...]string{"attempt", "retry", "done", "fault", "degraded", "restart"}

func (p Phase) String() string {
	if int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return "unknown"
}

// AfterAttempt returns the phase following an attempt.
func AfterAttempt(ok bool, state CollectState, retryLimit int) Phase {
	switch {
	case ok:
		return PhaseDone
	case state.ErrCount < retryLimit:
		return PhaseRetry
	case !state.Normal:
		return PhaseFault
	default:
		return PhaseDegraded
	}
}

// AfterDegraded returns PhaseRestart once failCount exceeds failLimit.
func AfterDegraded(failCount, failLimit int) Phase {
	if failCount > failLimit {
		return PhaseRestart
	}
	return PhaseDegraded
}
