// Package safego runs background work whose panics must not take the CLI down.
package safego

import "log/slog"

// Go runs fn in a new goroutine. A panic in fn is recovered and logged under
// name. The returned channel is closed once fn has returned or panicked.
func Go(name string, fn func()) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer func() {
			if r := recover(); r != nil {
				slog.Error("recovered panic in background goroutine", "goroutine", name, "panic", r)
			}
		}()
		fn()
	}()
	return done
}
