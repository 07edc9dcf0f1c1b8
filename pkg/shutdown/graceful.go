package shutdown

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/CodeMonkeyCybersecurity/siteprobe/internal/logger"
)

// Handler turns SIGINT/SIGTERM into context cancellation and runs the
// registered cleanup functions once.
type Handler struct {
	shutdownFuncs []func() error
	mu            sync.Mutex
	once          sync.Once
	done          chan struct{}
	logger        *logger.Logger
}

func NewHandler(log *logger.Logger) *Handler {
	if log == nil {
		log = logger.NewNop()
	}
	return &Handler{
		shutdownFuncs: make([]func() error, 0),
		done:          make(chan struct{}),
		logger:        log.WithComponent("shutdown"),
	}
}

// RegisterShutdownFunc registers a function to be called during shutdown
func (h *Handler) RegisterShutdownFunc(fn func() error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.shutdownFuncs = append(h.shutdownFuncs, fn)
}

// NotifyContext returns a child of parent that is cancelled on the first
// interrupt. The returned stop function releases the signal subscription.
func (h *Handler) NotifyContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go h.watch(ctx, sigChan, cancel)

	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}

func (h *Handler) watch(ctx context.Context, sigs <-chan os.Signal, cancel context.CancelFunc) {
	select {
	case sig := <-sigs:
		h.logger.Warnw("Received signal, cancelling scan", "signal", sig.String())
		cancel()
	case <-ctx.Done():
	}
}

// Shutdown executes all registered shutdown functions in reverse order.
// Later calls are no-ops.
func (h *Handler) Shutdown() {
	h.once.Do(func() {
		h.mu.Lock()
		defer h.mu.Unlock()

		for i := len(h.shutdownFuncs) - 1; i >= 0; i-- {
			if err := h.shutdownFuncs[i](); err != nil {
				h.logger.Errorw("Error during shutdown", "error", err)
			}
		}
		close(h.done)
	})
}

// Done returns a channel that's closed when shutdown is complete
func (h *Handler) Done() <-chan struct{} {
	return h.done
}

// ShutdownWithTimeout executes shutdown with a timeout
func (h *Handler) ShutdownWithTimeout(timeout time.Duration) error {
	go h.Shutdown()

	select {
	case <-h.done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("shutdown timeout after %v", timeout)
	}
}
