package application

import "context"

type guardKey struct{ engine *Engine }

func (e *Engine) enter(ctx context.Context) context.Context {
	return context.WithValue(ctx, guardKey{engine: e}, true)
}

// entered reports whether ctx was handed out by an operation still running on e.
func (e *Engine) entered(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	inside, _ := ctx.Value(guardKey{engine: e}).(bool)
	return inside
}
