package dispatcher

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/OCAP2/draw/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testLogger implements Logger for testing
type testLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *testLogger) Debug(msg string, keysAndValues ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("DEBUG: %s %v", msg, keysAndValues))
}

func (l *testLogger) Info(msg string, keysAndValues ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("INFO: %s %v", msg, keysAndValues))
}

func (l *testLogger) Error(msg string, keysAndValues ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("ERROR: %s %v", msg, keysAndValues))
}

func (l *testLogger) count(prefix string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, m := range l.messages {
		if strings.HasPrefix(m, prefix) {
			n++
		}
	}
	return n
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *testLogger) {
	logger := &testLogger{}

	d, err := New(logger)
	require.NoError(t, err)
	t.Cleanup(d.Close)

	return d, logger
}

func TestDispatcher_SyncHandlersRunInOrder(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var order []string
	d.Register(core.EventSet, func(e core.Event) error {
		order = append(order, "first:"+e.ID)
		return nil
	})
	d.Register(core.EventSet, func(e core.Event) error {
		order = append(order, "second:"+e.ID)
		return nil
	})

	d.Emit(core.Event{Kind: core.EventSet, ID: "a"})

	assert.Equal(t, []string{"first:a", "second:a"}, order)
}

func TestDispatcher_OnlyMatchingKind(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var deletes int
	d.Register(core.EventDelete, func(core.Event) error {
		deletes++
		return nil
	})

	d.Emit(core.Event{Kind: core.EventSet, ID: "a"})
	d.Emit(core.Event{Kind: core.EventSelectionStart, ID: "a"})
	d.Emit(core.Event{Kind: core.EventDelete, ID: "a"})

	assert.Equal(t, 1, deletes)
}

func TestDispatcher_NoHandlerIsNoop(t *testing.T) {
	d, logger := newTestDispatcher(t)

	d.Emit(core.Event{Kind: core.EventDelete, ID: "x"})

	assert.Zero(t, logger.count("ERROR"))
}

func TestDispatcher_HandlerErrorDoesNotStopDelivery(t *testing.T) {
	d, logger := newTestDispatcher(t)

	var reached bool
	d.Register(core.EventSet, func(core.Event) error { return errors.New("boom") })
	d.Register(core.EventSet, func(core.Event) error {
		reached = true
		return nil
	})

	d.Emit(core.Event{Kind: core.EventSet, ID: "a"})

	assert.True(t, reached)
	assert.Equal(t, 1, logger.count("ERROR"))
}

func TestDispatcher_RegisterAll(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var seen []core.EventKind
	d.RegisterAll(func(e core.Event) error {
		seen = append(seen, e.Kind)
		return nil
	})

	for _, k := range core.EventKinds {
		d.Emit(core.Event{Kind: k, ID: "a"})
	}

	assert.Equal(t, core.EventKinds, seen)
}

func TestDispatcher_BufferedHandler(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var processed atomic.Int32
	var wg sync.WaitGroup
	wg.Add(3)

	d.Register(core.EventSet, func(core.Event) error {
		processed.Add(1)
		wg.Done()
		return nil
	}, Buffered(100))

	for i := 0; i < 3; i++ {
		d.Emit(core.Event{Kind: core.EventSet, ID: fmt.Sprint(i)})
	}

	wg.Wait()
	assert.Equal(t, int32(3), processed.Load())
}

func TestDispatcher_BufferedDropsWhenFull(t *testing.T) {
	d, logger := newTestDispatcher(t)

	// Block the handler so queue fills up
	block := make(chan struct{})
	started := make(chan struct{}, 1)
	d.Register(core.EventSet, func(core.Event) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-block
		return nil
	}, Buffered(2))

	d.Emit(core.Event{Kind: core.EventSet}) // being processed
	<-started
	d.Emit(core.Event{Kind: core.EventSet}) // queued
	d.Emit(core.Event{Kind: core.EventSet}) // queued

	// This one is dropped
	d.Emit(core.Event{Kind: core.EventSet})

	assert.Equal(t, 1, logger.count("ERROR"))
	close(block)
}

func TestDispatcher_BufferedBlocking(t *testing.T) {
	d, _ := newTestDispatcher(t)

	block := make(chan struct{})
	started := make(chan struct{}, 1)
	d.Register(core.EventSet, func(core.Event) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-block
		return nil
	}, Buffered(1), Blocking())

	d.Emit(core.Event{Kind: core.EventSet})
	<-started
	d.Emit(core.Event{Kind: core.EventSet})

	done := make(chan struct{})
	go func() {
		d.Emit(core.Event{Kind: core.EventSet})
		close(done)
	}()

	select {
	case <-done:
		t.Error("emit should have blocked")
	case <-time.After(50 * time.Millisecond):
	}

	close(block)
	<-done
}

func TestDispatcher_LoggedHandler(t *testing.T) {
	d, logger := newTestDispatcher(t)

	d.Register(core.EventSelectionStart, func(core.Event) error { return nil }, Logged())
	d.Emit(core.Event{Kind: core.EventSelectionStart, ID: "a"})

	assert.GreaterOrEqual(t, logger.count("DEBUG"), 2)
}

func TestDispatcher_LoggedHandlerError(t *testing.T) {
	d, logger := newTestDispatcher(t)

	d.Register(core.EventDelete, func(core.Event) error {
		return fmt.Errorf("test error")
	}, Logged())

	d.Emit(core.Event{Kind: core.EventDelete, ID: "a"})

	// one from the logging wrapper, one from Emit
	assert.Equal(t, 2, logger.count("ERROR"))
}

func TestDispatcher_HasHandler(t *testing.T) {
	d, _ := newTestDispatcher(t)

	d.Register(core.EventSet, func(core.Event) error { return nil })

	assert.True(t, d.HasHandler(core.EventSet))
	assert.False(t, d.HasHandler(core.EventDelete))
}

func TestDispatcher_CloseDrainsBuffered(t *testing.T) {
	d, err := New(&testLogger{})
	require.NoError(t, err)

	var processed atomic.Int32
	d.Register(core.EventSet, func(core.Event) error {
		time.Sleep(time.Millisecond)
		processed.Add(1)
		return nil
	}, Buffered(10))

	for i := 0; i < 5; i++ {
		d.Emit(core.Event{Kind: core.EventSet})
	}
	d.Close()

	assert.Equal(t, int32(5), processed.Load())

	// emits after close are ignored
	d.Emit(core.Event{Kind: core.EventSet})
	d.Close()
	assert.Equal(t, int32(5), processed.Load())
}

func TestDispatcher_EmitDuringClose(t *testing.T) {
	for round := 0; round < 50; round++ {
		d, err := New(&testLogger{})
		require.NoError(t, err)

		var delivered atomic.Int32
		count := func(core.Event) error {
			delivered.Add(1)
			return nil
		}
		d.Register(core.EventSet, count, Buffered(1))
		d.Register(core.EventSet, count, Buffered(4), Blocking())
		d.RegisterAll(count, Buffered(2))

		var wg sync.WaitGroup
		start := make(chan struct{})
		for g := 0; g < 4; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				for i := 0; i < 100; i++ {
					d.Emit(core.Event{Kind: core.EventSet, ID: fmt.Sprint(i)})
				}
			}()
		}
		close(start)
		d.Close()
		wg.Wait()

		after := delivered.Load()
		d.Emit(core.Event{Kind: core.EventSet})
		assert.Equal(t, after, delivered.Load())
	}
}

func TestDispatcher_RegisterAfterClose(t *testing.T) {
	d, err := New(&testLogger{})
	require.NoError(t, err)
	d.Close()

	called := false
	d.Register(core.EventSet, func(core.Event) error {
		called = true
		return nil
	}, Buffered(4))
	d.RegisterAll(func(core.Event) error { return nil })
	d.Emit(core.Event{Kind: core.EventSet})

	assert.False(t, called)
	assert.False(t, d.HasHandler(core.EventSet))
	assert.False(t, d.HasHandler(core.EventDelete))
	d.Close()
}

func TestDispatcher_RegisterAllBufferedKeepsOrder(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var mu sync.Mutex
	var got []core.EventKind
	var wg sync.WaitGroup
	d.RegisterAll(func(e core.Event) error {
		mu.Lock()
		got = append(got, e.Kind)
		mu.Unlock()
		wg.Done()
		return nil
	}, Buffered(64), Blocking())

	var want []core.EventKind
	for i := 0; i < 20; i++ {
		want = append(want, core.EventSelectionEnd, core.EventSet)
	}
	wg.Add(len(want))
	for _, kind := range want {
		d.Emit(core.Event{Kind: kind, ID: "a"})
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, want, got)
}
