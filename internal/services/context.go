package services

import "context"

type contextKey int

const (
	jobIDKey contextKey = iota
	stageKey
	providerKey
	requestIDKey
)

func withValue(ctx context.Context, key contextKey, value string) context.Context {
	if value == "" {
		return ctx
	}
	return context.WithValue(ctx, key, value)
}

func lookup(ctx context.Context, key contextKey) (string, bool) {
	v, _ := ctx.Value(key).(string)
	return v, v != ""
}

// WithJobID annotates ctx with the job identifier. Empty ids are ignored.
func WithJobID(ctx context.Context, id string) context.Context {
	return withValue(ctx, jobIDKey, id)
}

// JobIDFromContext returns the job identifier carried by ctx.
func JobIDFromContext(ctx context.Context) (string, bool) { return lookup(ctx, jobIDKey) }

// WithStage annotates ctx with the running pipeline stage.
func WithStage(ctx context.Context, stage string) context.Context {
	return withValue(ctx, stageKey, stage)
}

// StageFromContext returns the stage carried by ctx.
func StageFromContext(ctx context.Context) (string, bool) { return lookup(ctx, stageKey) }

// WithProvider annotates ctx with the backend serving the stage.
func WithProvider(ctx context.Context, provider string) context.Context {
	return withValue(ctx, providerKey, provider)
}

// ProviderFromContext returns the backend name carried by ctx.
func ProviderFromContext(ctx context.Context) (string, bool) { return lookup(ctx, providerKey) }

// WithRequestID annotates ctx with the caller's correlation id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return withValue(ctx, requestIDKey, id)
}

// RequestIDFromContext returns the correlation id carried by ctx.
func RequestIDFromContext(ctx context.Context) (string, bool) { return lookup(ctx, requestIDKey) }
