package llm

import "context"

// Hook observes collaborator calls for logging and diagnostics.
type Hook interface {
	Before(ctx context.Context, req Request)
	After(ctx context.Context, req Request, output string, err error)
}

type hookKey struct{}

func WithHook(ctx context.Context, h Hook) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, hookKey{}, h)
}

func HookFrom(ctx context.Context) Hook {
	if ctx == nil {
		return nil
	}
	if h, ok := ctx.Value(hookKey{}).(Hook); ok {
		return h
	}
	return nil
}
