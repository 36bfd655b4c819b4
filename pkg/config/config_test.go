package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, 104, cfg.Recurrence.MaxInstances)
	assert.Equal(t, 7*24*time.Hour, cfg.Invitations.TTL)
	assert.Equal(t, DispatchStrict, cfg.Invitations.DispatchPolicy)
	assert.True(t, cfg.Scheduling.SignupRequiresConfirmation)
	assert.False(t, cfg.Scheduling.AllowMultiRole)
}

func TestLoadReadsEnvironment(t *testing.T) {
	chdirTemp(t)
	t.Setenv("INVITATION_DISPATCH_POLICY", "simulate-on-restriction")
	t.Setenv("SCHEDULING_ALLOW_MULTI_ROLE", "true")
	t.Setenv("RECURRENCE_MAX_INSTANCES", "52")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DispatchSimulateOnRestriction, cfg.Invitations.DispatchPolicy)
	assert.True(t, cfg.Scheduling.AllowMultiRole)
	assert.Equal(t, 52, cfg.Recurrence.MaxInstances)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
}

func TestNormalizePolicy(t *testing.T) {
	assert.Equal(t, DispatchStrict, normalizePolicy(""))
	assert.Equal(t, DispatchStrict, normalizePolicy("whatever"))
	assert.Equal(t, DispatchSimulateOnRestriction, normalizePolicy(" Simulate-On-Restriction "))
}

func chdirTemp(t *testing.T) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}
