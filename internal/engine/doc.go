// Package engine adapts container engines behind a uniform event stream.
//
// An [Engine] builds a context into an image, pushes a tag, and runs a
// container. Two backends implement the contract: [Docker] drives the
// Docker Engine API directly, and [CLI] shells out to a docker or podman
// binary. Both present their output as a lazy, single-pass sequence of
// [Event] values: one progress event per output line, and exactly one
// terminal error event when the underlying operation fails.
//
// Streams are restartable per invocation but must not be reused after
// exhaustion. Temporary resources a backend creates for one invocation are
// released when its stream ends, whether or not the consumer drained it.
//
// Example usage:
//
//	eng, err := engine.New(ctx, "")
//	if err != nil {
//	    return err
//	}
//	for ev := range eng.Build(ctx, opts) {
//	    if ev.Kind == engine.Error {
//	        return fmt.Errorf("%w: %s", engine.ErrBuild, ev.Line)
//	    }
//	    slog.Info(ev.Line)
//	}
package engine
