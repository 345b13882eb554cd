package capture

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferConcurrentAppendsKeepUniqueSequence(t *testing.T) {
	buf := NewBuffer()
	var wg sync.WaitGroup
	for _, stream := range []Stream{StreamStdout, StreamStderr} {
		wg.Add(1)
		go func(stream Stream) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				buf.Append(stream, fmt.Sprintf("%s-%d", stream, i))
			}
		}(stream)
	}
	wg.Wait()

	lines := buf.Lines()
	require.Len(t, lines, 1000)

	next := map[Stream]int{}
	for i, line := range lines {
		assert.Equal(t, uint64(i+1), line.Seq)
		assert.Equal(t, fmt.Sprintf("%s-%d", line.Stream, next[line.Stream]), line.Text, "per-stream order must be preserved")
		next[line.Stream]++
	}
}

func TestBufferTailIsBounded(t *testing.T) {
	buf := NewBuffer()
	assert.Empty(t, buf.Tail(40))

	for i := 0; i < 100; i++ {
		buf.Append(StreamStdout, fmt.Sprintf("line %d", i))
	}
	buf.Append(StreamStderr, "boom")

	tail := buf.Tail(3)
	assert.Equal(t, []string{"line 98", "line 99", "[stderr] boom"}, tail)
	assert.Len(t, buf.Tail(1000), 101)
	assert.Nil(t, buf.Tail(0))
}

func TestSignalResolvesOnce(t *testing.T) {
	sig := NewSignal()
	assert.False(t, sig.Resolved())
	sig.Resolve()
	sig.Resolve()
	assert.True(t, sig.Resolved())
	select {
	case <-sig.Done():
	default:
		t.Fatal("expected done channel to be closed")
	}
}

func TestStateSignalsMatchRedirectedStreams(t *testing.T) {
	st := NewState(true, false, nil, false)
	assert.Len(t, st.Signals(), 1)
	assert.NotNil(t, st.Signal(StreamStdout))
	assert.Nil(t, st.Signal(StreamStderr))

	exitOnly := NewState(false, false, nil, false)
	assert.Empty(t, exitOnly.Signals())
	select {
	case <-exitOnly.Drained():
	case <-time.After(time.Second):
		t.Fatal("exit-only state should be drained immediately")
	}
}

func TestStateWaitDrained(t *testing.T) {
	st := NewState(true, true, nil, false)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, st.WaitDrained(ctx), context.DeadlineExceeded)

	st.Signal(StreamStdout).Resolve()
	st.Signal(StreamStderr).Resolve()
	require.NoError(t, st.WaitDrained(context.Background()))
}

func TestStateRecordLogsAtStreamSeverity(t *testing.T) {
	var out bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&out, &slog.HandlerOptions{Level: slog.LevelDebug}))
	st := NewState(true, true, logger, true)

	st.Record(StreamStdout, "hello")
	st.Record(StreamStderr, "uh oh")

	logged := out.String()
	assert.True(t, strings.Contains(logged, "level=INFO msg=hello"), logged)
	assert.True(t, strings.Contains(logged, `level=WARN msg="uh oh"`), logged)
	assert.Equal(t, []string{"hello", "[stderr] uh oh"}, st.Buffer.Strings())
}

func TestAppendFuncForwardsInBufferOrder(t *testing.T) {
	buf := NewBuffer()
	var forwarded []uint64
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, stream := range []Stream{StreamStdout, StreamStderr} {
		wg.Add(1)
		go func(stream Stream) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				buf.AppendFunc(stream, "x", func(l Line) {
					mu.Lock()
					forwarded = append(forwarded, l.Seq)
					mu.Unlock()
				})
			}
		}(stream)
	}
	wg.Wait()

	require.Len(t, forwarded, 400)
	for i, seq := range forwarded {
		require.Equal(t, uint64(i+1), seq)
	}
}
