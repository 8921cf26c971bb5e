package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// InterruptHandler cancels a run on SIGINT or SIGTERM and tells the operator
// what happens to the work already committed.
type InterruptHandler struct {
	writer      io.Writer
	signals     chan os.Signal
	stop        func()
	interrupted bool
	mu          sync.Mutex
}

// NewInterruptHandler creates a new interrupt handler.
func NewInterruptHandler(writer io.Writer) *InterruptHandler {
	if writer == nil {
		writer = os.Stderr
	}
	return &InterruptHandler{
		writer:  writer,
		signals: make(chan os.Signal, 1),
	}
}

// HandleInterrupts returns a context that is cancelled on the first signal.
// Call Stop once the run is over to release the signal registration.
func (h *InterruptHandler) HandleInterrupts(ctx context.Context) context.Context {
	ctx, cancel := context.WithCancel(ctx)
	signal.Notify(h.signals, os.Interrupt, syscall.SIGTERM)

	done := make(chan struct{})
	h.stop = func() {
		signal.Stop(h.signals)
		close(done)
		cancel()
	}

	go func() {
		select {
		case <-h.signals:
		case <-done:
			return
		}
		h.mu.Lock()
		if !h.interrupted {
			h.interrupted = true
			h.showInterruptMessage()
		}
		h.mu.Unlock()
		cancel()
	}()

	return ctx
}

// Stop unregisters the handler. It is safe to call more than once.
func (h *InterruptHandler) Stop() {
	h.mu.Lock()
	stop := h.stop
	h.stop = nil
	h.mu.Unlock()
	if stop != nil {
		stop()
	}
}

func (h *InterruptHandler) showInterruptMessage() {
	msg := "\n\n" + FormatWarning("Load interrupted!") +
		"\n" + FormatInfo("Committed batches are kept; the run is recorded as failed.") +
		"\n" + FormatInfo("Rerun with the same input to pick up the remaining rows.") + "\n"

	if _, err := fmt.Fprint(h.writer, msg); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write interrupt message: %v\n", err)
	}
}

// WasInterrupted returns true if a signal cancelled the run.
func (h *InterruptHandler) WasInterrupted() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.interrupted
}
