package cli

import (
	"bytes"
	"context"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syncBuffer provides thread-safe access to a bytes.Buffer.
type syncBuffer struct {
	buf bytes.Buffer
	mu  sync.Mutex
}

func (s *syncBuffer) Write(p []byte) (n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

func TestNewInterruptHandler(t *testing.T) {
	tests := []struct {
		writer io.Writer
		name   string
	}{
		{name: "with custom writer", writer: &bytes.Buffer{}},
		{name: "with nil writer", writer: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewInterruptHandler(tt.writer)
			assert.NotNil(t, handler.writer)
			assert.False(t, handler.WasInterrupted())
		})
	}
}

func TestHandleInterruptsCancelsOnSignal(t *testing.T) {
	output := &syncBuffer{}
	handler := NewInterruptHandler(output)
	defer handler.Stop()

	ctx := handler.HandleInterrupts(context.Background())
	select {
	case <-ctx.Done():
		t.Fatal("context cancelled before any signal")
	default:
	}

	handler.signals <- os.Interrupt

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context not cancelled after signal")
	}
	require.Eventually(t, handler.WasInterrupted, time.Second, 5*time.Millisecond)
	assert.Contains(t, output.String(), "Load interrupted!")
	assert.Contains(t, output.String(), "Committed batches are kept")
}

func TestStopReleasesWithoutMessage(t *testing.T) {
	output := &syncBuffer{}
	handler := NewInterruptHandler(output)

	ctx := handler.HandleInterrupts(context.Background())
	handler.Stop()
	handler.Stop()

	<-ctx.Done()
	assert.False(t, handler.WasInterrupted())
	assert.Empty(t, output.String())
}

func TestParentCancellationIsNotAnInterrupt(t *testing.T) {
	handler := NewInterruptHandler(&syncBuffer{})
	defer handler.Stop()

	parent, cancel := context.WithCancel(context.Background())
	ctx := handler.HandleInterrupts(parent)
	cancel()

	<-ctx.Done()
	assert.False(t, handler.WasInterrupted())
}
