package browser

import (
	"context"
	"errors"
	"fmt"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/autopilot/pkg/execution"
)

// driverFailure classifies timeouts, cancellation and lost browsers reported
// by a driver call as execution failures. Any other error is the page
// refusing the step and is returned unchanged.
func driverFailure(op string, err error) error {
	if err == nil || errors.Is(err, execution.ErrFailure) {
		return err
	}
	command := fmt.Sprintf("browser %s", op)
	switch {
	case errors.Is(err, ErrDisconnected), errors.Is(err, playwright.ErrTargetClosed):
		return execution.NewFailure(execution.ReasonUnreachable, command, err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, playwright.ErrTimeout):
		return execution.NewFailure(execution.ReasonTimeout, command, err)
	case errors.Is(err, context.Canceled):
		return execution.NewFailure(execution.ReasonCanceled, command, err)
	default:
		return err
	}
}
