package clustermodel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeverityAtLeast(t *testing.T) {
	assert.True(t, SeverityCritical.AtLeast(SeverityWarning))
	assert.True(t, SeverityWarning.AtLeast(SeverityWarning))
	assert.False(t, SeverityInfo.AtLeast(SeverityWarning))
	assert.True(t, SeverityCritical.AtLeast(SeverityInfo))
}

func TestNewClusterEventTruncatesAnnotations(t *testing.T) {
	anns := make(map[string]string, 20)
	for i := 0; i < 20; i++ {
		anns[string(rune('a'+i))] = "v"
	}
	ev := NewClusterEvent(CrashLoop, SeverityCritical, "Pod", "prod", "nginx-abc", time.Now(), anns)
	assert.LessOrEqual(t, len(ev.Annotations), maxAnnotations)
}

func TestKeyOfIdentity(t *testing.T) {
	ev := NewClusterEvent(CrashLoop, SeverityCritical, "Pod", "prod", "nginx-abc", time.Now(), nil)
	key := KeyOf(ev)
	require.Equal(t, KnownIssueKey{ResourceKind: "Pod", Namespace: "prod", ResourceName: "nginx-abc", Kind: CrashLoop}, key)
}

func TestFieldResolution(t *testing.T) {
	ev := NewClusterEvent(CrashLoop, SeverityCritical, "Pod", "prod", "nginx-abc", time.Now(), map[string]string{"container": "app"})

	v, ok := ev.Field("resource_name")
	require.True(t, ok)
	assert.Equal(t, "nginx-abc", v)

	v, ok = ev.Field("annotations.container")
	require.True(t, ok)
	assert.Equal(t, "app", v)

	_, ok = ev.Field("annotations.missing")
	assert.False(t, ok)

	_, ok = ev.Field("nonsense")
	assert.False(t, ok)
}
