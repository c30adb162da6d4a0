package agent

import "context"

// Phase is a step of the per-call state machine.
type Phase string

const (
	PhaseIdle             Phase = "idle"
	PhaseScanning         Phase = "scanning"
	PhaseContextBuilt     Phase = "context_built"
	PhasePrompting        Phase = "prompting"
	PhaseAwaitingProvider Phase = "awaiting_provider"
	PhaseDone             Phase = "done"
	PhaseFailed           Phase = "failed"
)

// Terminal reports whether no further transitions follow.
func (p Phase) Terminal() bool {
	return p == PhaseDone || p == PhaseFailed
}

// PhaseObserver is called synchronously on every transition.
type PhaseObserver func(Phase)

type observerKey struct{}

// WithPhaseObserver attaches fn to calls made with the returned context.
func WithPhaseObserver(ctx context.Context, fn PhaseObserver) context.Context {
	if fn == nil {
		return ctx
	}
	return context.WithValue(ctx, observerKey{}, fn)
}

func observerFrom(ctx context.Context) PhaseObserver {
	fn, _ := ctx.Value(observerKey{}).(PhaseObserver)
	return fn
}
