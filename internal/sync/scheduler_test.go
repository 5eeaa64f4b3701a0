package sync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reservation-sync-backend/pkg/logger"
)

func TestScheduler_RunsImmediatelyOnStart(t *testing.T) {
	ran := make(chan struct{}, 1)
	s := NewScheduler("test", time.Minute, func(context.Context) {
		ran <- struct{}{}
	}, logger.NewNop())

	require.NoError(t, s.Start())
	defer s.Stop()

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("the first run must fire immediately on start")
	}
}

func TestScheduler_StartIsIdempotent(t *testing.T) {
	s := NewScheduler("test", time.Minute, func(context.Context) {}, logger.NewNop())
	require.NoError(t, s.Start())
	defer s.Stop()

	assert.NoError(t, s.Start(), "a second start is a no-op, not an error")
}

func TestScheduler_OverlappingRunsAreSuppressed(t *testing.T) {
	block := make(chan struct{})
	started := make(chan struct{})
	s := NewScheduler("test", time.Minute, func(context.Context) {
		close(started)
		<-block
	}, logger.NewNop())

	go s.TriggerNow()
	<-started

	assert.False(t, s.TriggerNow(), "a trigger during a run must be rejected")
	close(block)
}

func TestScheduler_StopBeforeStart(t *testing.T) {
	s := NewScheduler("test", time.Minute, func(context.Context) {}, logger.NewNop())
	assert.NotPanics(t, func() { s.Stop() })
}
