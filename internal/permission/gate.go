// ABOUTME: Permission gate tracking foreground/background location grants
// ABOUTME: Mediates platform prompts and caches decisions per axis

package permission

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Decision is the grant state of one permission axis.
type Decision string

const (
	DecisionUnknown Decision = "unknown"
	DecisionGranted Decision = "granted"
	DecisionDenied  Decision = "denied"
)

// State is a read-only snapshot of both axes. Only the Gate mutates the
// underlying decisions.
type State struct {
	ForegroundGranted bool
	BackgroundGranted bool
}

// Prompter is the platform permission surface.
type Prompter interface {
	// PromptForeground shows the foreground location prompt and resolves
	// to the user's decision.
	PromptForeground(ctx context.Context) (bool, error)

	// PromptBackground shows the background location prompt.
	// Only called on platforms where HasBackgroundConcept is true.
	PromptBackground(ctx context.Context) (bool, error)

	// HasBackgroundConcept reports whether this platform has a separate
	// background-location permission at all. Browsers do not.
	HasBackgroundConcept() bool

	// PersistsForegroundGrant reports whether a foreground decision
	// survives across requests. Browsers without persistent grants
	// re-prompt on every call.
	PersistsForegroundGrant() bool
}

// Gate tracks permission state across two independent axes and mediates
// prompts so repeated requests do not re-prompt on platforms that persist
// decisions.
type Gate struct {
	mu         sync.Mutex
	prompter   Prompter
	foreground Decision
	background Decision
	logger     *slog.Logger
}

// NewGate creates a Gate over the given platform prompter.
func NewGate(prompter Prompter) *Gate {
	return &Gate{
		prompter:   prompter,
		foreground: DecisionUnknown,
		background: DecisionUnknown,
		logger:     slog.Default().With("component", "permission"),
	}
}

// RequestForeground resolves the foreground axis. Idempotent once decided,
// except on platforms that never persist the grant, where every call is a
// live prompt.
func (g *Gate) RequestForeground(ctx context.Context) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.foreground != DecisionUnknown && g.prompter.PersistsForegroundGrant() {
		return g.foreground == DecisionGranted, nil
	}

	granted, err := g.prompter.PromptForeground(ctx)
	if err != nil {
		return false, fmt.Errorf("requesting foreground permission: %w", err)
	}

	g.foreground = decisionFor(granted)
	g.logger.Info("foreground permission decided", "granted", granted)
	return granted, nil
}

// RequestBackground resolves the background axis. It is a no-op returning
// denied when foreground is not granted or the platform has no background
// permission concept. Background denial never blocks foreground tracking.
func (g *Gate) RequestBackground(ctx context.Context) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.foreground != DecisionGranted {
		g.logger.Debug("background request skipped, foreground not granted")
		return false, nil
	}

	if !g.prompter.HasBackgroundConcept() {
		g.background = DecisionDenied
		return false, nil
	}

	if g.background != DecisionUnknown {
		return g.background == DecisionGranted, nil
	}

	granted, err := g.prompter.PromptBackground(ctx)
	if err != nil {
		return false, fmt.Errorf("requesting background permission: %w", err)
	}

	g.background = decisionFor(granted)
	g.logger.Info("background permission decided", "granted", granted)
	return granted, nil
}

// State returns a snapshot of both axes.
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return State{
		ForegroundGranted: g.foreground == DecisionGranted,
		BackgroundGranted: g.background == DecisionGranted,
	}
}

func decisionFor(granted bool) Decision {
	if granted {
		return DecisionGranted
	}
	return DecisionDenied
}
