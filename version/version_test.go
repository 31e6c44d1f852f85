package version

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCurrentReturnsInfoPopulatedFromPackageVars(t *testing.T) {
	oldVersion, oldCommit, oldDate := Version, CommitHash, BuildDate
	defer func() { Version, CommitHash, BuildDate = oldVersion, oldCommit, oldDate }()

	Version, CommitHash, BuildDate = "1.2.3", "abcdef01", "2026-01-01 00:00:00"

	info := Current()
	require.Equal(t, "1.2.3", info.Version)
	require.Equal(t, "abcdef01", info.CommitHash)
	require.Equal(t, "2026-01-01 00:00:00", info.BuildDate)
}

func TestInfoStringIsJSON(t *testing.T) {
	info := Info{Version: "1.0.0", CommitHash: "deadbeef", BuildDate: "2026-01-01"}
	require.Contains(t, info.String(), `"version":"1.0.0"`)
}
