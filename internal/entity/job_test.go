package entity

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestJobProgress(t *testing.T) {
	j := &Job{ID: "j1", SourceURL: "http://example.com/data.db", Name: "data"}

	j.SetProgress(10, 100)
	j.SetProgress(50, 100)

	s := j.Snapshot()
	require.Equal(t, int64(50), s.DoneBytes)
	require.Equal(t, int64(100), s.TodoBytes)
	require.False(t, s.Done)
	require.Nil(t, s.Error)

	// Progress never goes backwards.
	j.SetProgress(40, 100)
	require.Equal(t, int64(50), j.Snapshot().DoneBytes)
}

func TestJobTerminalStateIsFrozen(t *testing.T) {
	j := &Job{ID: "j1"}

	j.Fail("download failed: boom")

	// Only the first terminal transition takes effect.
	j.Succeed()
	j.Fail("other")
	j.SetProgress(99, 100)

	s := j.Snapshot()
	require.True(t, s.Done)
	require.NotNil(t, s.Error)
	require.Equal(t, "download failed: boom", *s.Error)
	require.Equal(t, int64(0), s.DoneBytes)
}

func TestJobSucceedLeavesErrorUnset(t *testing.T) {
	j := &Job{ID: "j1"}
	j.Succeed()

	s := j.Snapshot()
	require.True(t, s.Done)
	require.Nil(t, s.Error)
}
