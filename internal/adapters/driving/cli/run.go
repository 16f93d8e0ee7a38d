package cli

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/s-edling/quackdas-sub000/internal/core/domain"
	"github.com/s-edling/quackdas-sub000/internal/core/ports/driving"
	"github.com/s-edling/quackdas-sub000/internal/logger"
)

// interrupts delivers interrupt signals to running jobs. Tests replace it.
var interrupts = func() (<-chan os.Signal, func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	return ch, func() { signal.Stop(ch) }
}

// runJob starts req in the current session and passes each non-terminal
// event to onEvent. An interrupt sends a cooperative cancel; the loop still
// waits for the terminal event, which is returned together with its error.
func runJob(cmd *cobra.Command, req driving.JobRequest, onEvent func(domain.JobEvent)) (domain.JobEvent, error) {
	if jobManager == nil {
		return domain.JobEvent{}, errNotConfigured("job manager")
	}

	handle, err := jobManager.Start(cmd.Context(), sessionID, req)
	if err != nil {
		return domain.JobEvent{}, fmt.Errorf("start %s job: %w", req.Kind, err)
	}

	sig, stop := interrupts()
	defer stop()

	for {
		select {
		case <-sig:
			logger.Info("Cancelling %s job...", req.Kind)
			if err := jobManager.Cancel(sessionID, req.Kind); err != nil && !errors.Is(err, domain.ErrNoJob) {
				logger.Warn("Cancel failed: %v", err)
			}

		case ev, ok := <-handle.Events:
			if !ok {
				return domain.JobEvent{}, fmt.Errorf("%s job ended without a result", req.Kind)
			}
			if ev.Type.IsTerminal() {
				return ev, terminalError(ev)
			}
			onEvent(ev)
		}
	}
}

// terminalError converts a cancelled or error event into an error.
func terminalError(ev domain.JobEvent) error {
	switch ev.Type {
	case domain.EventDone:
		return nil
	case domain.EventCancelled:
		return domain.NewError(ev.Code, fmt.Sprintf("%s cancelled", ev.Kind))
	default:
		if err, ok := ev.Payload.(error); ok {
			return err
		}
		return domain.NewError(ev.Code, fmt.Sprintf("%s failed", ev.Kind))
	}
}
