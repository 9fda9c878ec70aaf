// ABOUTME: Tests for the policy-configured prompter

package permission

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticPrompter_DrivesGateFromConfig(t *testing.T) {
	gate := NewGate(StaticPrompter{Foreground: true, Background: true})

	granted, err := gate.RequestForeground(context.Background())
	require.NoError(t, err)
	assert.True(t, granted)

	granted, err = gate.RequestBackground(context.Background())
	require.NoError(t, err)
	assert.True(t, granted)
}

func TestStaticPrompter_DeniedBackground(t *testing.T) {
	gate := NewGate(StaticPrompter{Foreground: true})

	granted, err := gate.RequestForeground(context.Background())
	require.NoError(t, err)
	assert.True(t, granted)

	granted, err = gate.RequestBackground(context.Background())
	require.NoError(t, err)
	assert.False(t, granted)
}
