// ABOUTME: Policy-configured prompter for headless deployments
// ABOUTME: Grants are decided by configuration instead of a user dialog

package permission

import "context"

// StaticPrompter answers permission prompts from configuration. Used where
// no interactive dialog exists and the operator grants access up front.
type StaticPrompter struct {
	Foreground bool
	Background bool
}

func (p StaticPrompter) PromptForeground(ctx context.Context) (bool, error) {
	return p.Foreground, nil
}

func (p StaticPrompter) PromptBackground(ctx context.Context) (bool, error) {
	return p.Background, nil
}

// HasBackgroundConcept is true: the grant axis exists, the operator just
// decides it in config.
func (p StaticPrompter) HasBackgroundConcept() bool { return true }

func (p StaticPrompter) PersistsForegroundGrant() bool { return true }

var _ Prompter = StaticPrompter{}
