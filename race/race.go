// Package race waits on multiple completion signals and yields the first
// one to finish. It backs every "composer appeared OR navigation completed
// OR grace delay elapsed" style wait in the workflow.
package race

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrCeiling is returned when no signal completes before the ceiling.
var ErrCeiling = errors.New("no signal completed before the ceiling")

// Signal is one independently cancellable completion condition.
type Signal struct {
	Name string
	Wait func(ctx context.Context) error
}

// Sleep returns a signal that completes after d.
func Sleep(name string, d time.Duration) Signal {
	return Signal{
		Name: name,
		Wait: func(ctx context.Context) error {
			select {
			case <-time.After(d):
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	}
}

// First runs every signal concurrently and returns the name of the first
// one to complete successfully. Signals that fail are discarded; losing
// signals are cancelled. When every signal fails the combined failure is
// returned, and when nothing completes before the ceiling the result is
// ErrCeiling.
func First(ctx context.Context, ceiling time.Duration, signals ...Signal) (string, error) {
	if len(signals) == 0 {
		return "", errors.New("no signals to wait on")
	}

	ctx, cancel := context.WithTimeout(ctx, ceiling)
	defer cancel()

	type outcome struct {
		name string
		err  error
	}

	results := make(chan outcome, len(signals))
	for _, sig := range signals {
		sig := sig
		go func() {
			results <- outcome{name: sig.Name, err: sig.Wait(ctx)}
		}()
	}

	var failures []error
	for range signals {
		select {
		case res := <-results:
			if res.err == nil {
				return res.name, nil
			}
			if errors.Is(res.err, context.DeadlineExceeded) || errors.Is(res.err, context.Canceled) {
				return "", ceilingError(ctx)
			}
			failures = append(failures, fmt.Errorf("%s: %w", res.name, res.err))
		case <-ctx.Done():
			return "", ceilingError(ctx)
		}
	}

	return "", errors.Join(failures...)
}

func ceilingError(ctx context.Context) error {
	if err := context.Cause(ctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return ErrCeiling
}
