package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "limsd/pkg/domain"
)

type failingSink struct{ calls int }

func (s *failingSink) Name() string { return "failing" }
func (s *failingSink) Deliver(context.Context, Event) error {
	s.calls++
	return errors.New("sink down")
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestDispatcherDeliversToAllSinks(t *testing.T) {
	rec1 := NewRecorder()
	rec2 := NewRecorder()
	d := NewDispatcher(16, []Sink{rec1, rec2})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		_ = d.Run(ctx)
		close(done)
	}()

	sampleID := id.NewSampleID()
	d.Emit(context.Background(), Event{Kind: KindSampleStatusChanged, SampleID: sampleID})

	waitFor(t, func() bool { return len(rec1.Events()) == 1 && len(rec2.Events()) == 1 })
	assert.Equal(t, sampleID, rec1.Events()[0].SampleID)

	cancel()
	<-done
}

func TestDispatcherFailingSinkDoesNotBlockOthers(t *testing.T) {
	failing := &failingSink{}
	rec := NewRecorder()
	d := NewDispatcher(16, []Sink{failing, rec})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = d.Run(ctx) }()

	d.Emit(context.Background(), Event{Kind: KindOOSDetected})
	waitFor(t, func() bool { return len(rec.Events()) == 1 })
}

func TestEmitNeverBlocksWhenInboxFull(t *testing.T) {
	// No Run loop draining: the inbox fills and further emits must return
	// immediately.
	d := NewDispatcher(2, nil)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			d.Emit(context.Background(), Event{Kind: KindQCViolation})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Emit blocked on a full inbox")
	}
}

func TestDispatcherConcurrentEmit(t *testing.T) {
	rec := NewRecorder()
	d := NewDispatcher(1024, []Sink{rec})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = d.Run(ctx) }()

	const emitters = 20
	const perEmitter = 10
	var wg sync.WaitGroup
	wg.Add(emitters)
	for i := 0; i < emitters; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perEmitter; j++ {
				d.Emit(context.Background(), Event{Kind: KindSampleStatusChanged})
			}
		}()
	}
	wg.Wait()

	waitFor(t, func() bool { return len(rec.Events()) == emitters*perEmitter })
	require.Len(t, rec.Events(), emitters*perEmitter)
}
