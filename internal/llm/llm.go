package llm

import (
	"context"
	"errors"
	"fmt"
)

// Request kinds select the prompt shape and exploration temperature: fresh
// generation explores, revision and repair prefer minimal targeted edits.
type Kind string

const (
	KindGenerate Kind = "generate"
	KindRevise   Kind = "revise"
	KindRepair   Kind = "repair"
)

const (
	TemperatureGenerate = 0.7
	TemperatureEdit     = 0.3
)

// Request carries one assembled prompt to the collaborator.
type Request struct {
	Kind        Kind
	Prompt      string
	Temperature float64
}

// Client is the generation collaborator boundary: one prompt in, raw module
// source text out. The caller strips any non-code wrapping before use.
type Client interface {
	Name() string
	GenerateCode(ctx context.Context, req Request) (string, error)
	Close() error
}

// ErrUnavailable means the collaborator cannot be reached at all. It is
// fatal to the request and consumes no repair budget.
var ErrUnavailable = errors.New("llm: generation service unavailable")

// ErrEmptyResponse means the collaborator answered with no usable text.
var ErrEmptyResponse = errors.New("llm: empty response from model")

// markUnavailable wraps a transport failure in ErrUnavailable. Empty
// responses and caller cancellation keep their own identity.
func markUnavailable(err error) error {
	if err == nil ||
		errors.Is(err, ErrEmptyResponse) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

// PermanentError marks an error that will not resolve with retries.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

func NewPermanentError(err error) error {
	return &PermanentError{Err: err}
}

// Middleware wraps a Client with cross-cutting behavior.
type Middleware func(Client) Client

// Wrap applies middlewares outermost-first.
func Wrap(c Client, mws ...Middleware) Client {
	for i := len(mws) - 1; i >= 0; i-- {
		c = mws[i](c)
	}
	return c
}
