package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRefreshTestMode(t *testing.T) {
	t.Setenv(testModeEnv, "0")
	RefreshTestMode()
	assert.False(t, InTestMode())

	t.Setenv(testModeEnv, "1")
	assert.False(t, InTestMode(), "the flag is cached until refreshed")
	RefreshTestMode()
	assert.True(t, InTestMode())
}
