package domain

import "context"

type progressObserverKey struct{}

// ContextWithObserver returns a context carrying a progress observer, letting
// layers below the orchestrator report their own stages without widening
// their interfaces.
func ContextWithObserver(ctx context.Context, obs ProgressObserver) context.Context {
	return context.WithValue(ctx, progressObserverKey{}, obs)
}

// ObserverFromContext returns the observer carried by the context, or nil.
func ObserverFromContext(ctx context.Context) ProgressObserver {
	obs, _ := ctx.Value(progressObserverKey{}).(ProgressObserver)
	return obs
}
