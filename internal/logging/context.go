package logging

import (
	"context"

	"go.uber.org/zap"
)

type shardCtxKey struct{}
type runCtxKey struct{}

// WithShard tags ctx with the shard file being processed.
func WithShard(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, shardCtxKey{}, name)
}

// ShardFromContext returns the shard name set by WithShard.
func ShardFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(shardCtxKey{}).(string); ok {
		return v
	}
	return ""
}

// WithRunID tags ctx with the id of the current batch run.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runCtxKey{}, id)
}

// RunIDFromContext returns the run id set by WithRunID.
func RunIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(runCtxKey{}).(string); ok {
		return v
	}
	return ""
}

// ContextFields extracts correlation data from context.
func ContextFields(ctx context.Context) []zap.Field {
	if ctx == nil {
		return nil
	}
	fields := make([]zap.Field, 0, 2)
	if id := RunIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("run.id", id))
	}
	if shard := ShardFromContext(ctx); shard != "" {
		fields = append(fields, zap.String("shard", shard))
	}
	return fields
}
