package utils

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestGetEnvReturnsSetValue(t *testing.T) {
	os.Setenv("AIOPS_TEST_VAR", "configured")
	defer os.Unsetenv("AIOPS_TEST_VAR")

	value, usedDefault := GetEnv("AIOPS_TEST_VAR", "fallback", zap.NewNop())
	require.Equal(t, "configured", value)
	require.False(t, usedDefault)
}

func TestGetEnvFallsBackToDefault(t *testing.T) {
	os.Unsetenv("AIOPS_TEST_VAR_UNSET")

	value, usedDefault := GetEnv("AIOPS_TEST_VAR_UNSET", "fallback", zap.NewNop())
	require.Equal(t, "fallback", value)
	require.True(t, usedDefault)
}
