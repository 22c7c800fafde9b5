package token

import "context"

type snapshotContextKey struct{}

// ContextWithSnapshot attaches the verified credential snapshot to the context.
func ContextWithSnapshot(ctx context.Context, s Snapshot) context.Context {
	return context.WithValue(ctx, snapshotContextKey{}, &s)
}

// SnapshotFromContext extracts the verified credential snapshot, if any.
func SnapshotFromContext(ctx context.Context) (Snapshot, bool) {
	if ctx == nil {
		return Snapshot{}, false
	}
	v, ok := ctx.Value(snapshotContextKey{}).(*Snapshot)
	if !ok || v == nil {
		return Snapshot{}, false
	}
	return *v, true
}
