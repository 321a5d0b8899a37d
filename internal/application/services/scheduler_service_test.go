package services

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestScheduler_RejectsBadSpecs(t *testing.T) {
	s := NewSchedulerService(nil)
	err := s.AddJob("broken", "every now and then", func(context.Context) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
}

func TestScheduler_RunsJobsUntilStopped(t *testing.T) {
	s := NewSchedulerService(zap.NewNop())
	var runs atomic.Int32
	stopped := make(chan struct{})

	require.NoError(t, s.AddJob("tick", "@every 1s", func(ctx context.Context) error {
		if runs.Add(1) == 1 {
			go func() {
				<-ctx.Done()
				close(stopped)
			}()
		}
		return fmt.Errorf("failures are logged, not fatal")
	}))

	s.Start()
	s.Start()
	assert.Eventually(t, func() bool { return runs.Load() >= 2 }, 5*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	require.NoError(t, s.Stop(ctx), "stopping twice is a no-op")

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("job context was not cancelled on stop")
	}

	after := runs.Load()
	s.Start()
	time.Sleep(1200 * time.Millisecond)
	assert.Equal(t, after, runs.Load(), "a stopped scheduler cannot be restarted")
}

func TestConsistencyJob_LogsDrift(t *testing.T) {
	k := newTestKernel(t)
	createTestObject(t, k, dealDefinition())

	core, logs := observer.New(zapcore.DebugLevel)
	job := ConsistencyJob(k.Metadata, zap.New(core))

	require.NoError(t, job(context.Background()))
	assert.Equal(t, 0, logs.FilterLevelExact(zapcore.WarnLevel).Len())

	delete(k.schema.tables["deal"], "region")
	require.NoError(t, job(context.Background()))
	warns := logs.FilterLevelExact(zapcore.WarnLevel).All()
	require.Len(t, warns, 1)
	assert.Equal(t, "deal", warns[0].ContextMap()["object"])
}
