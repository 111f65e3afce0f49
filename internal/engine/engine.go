package engine

import (
	"bufio"
	"context"
	"io"
	"iter"

	"github.com/docker/go-connections/nat"
	"github.com/pkg/errors"
)

// Discriminates the two event shapes a stream can carry.
type Kind int

const (
	Progress Kind = iota // One line of engine output.
	Error                // Terminal failure; at most one per stream, always last.
)

// A single item in an engine output stream.
type Event struct {
	Kind Kind
	Line string
}

// Controls a build invocation.
type BuildOptions struct {
	Context     io.Reader         // Tar stream of the build context.
	Tag         string            // Image name to tag the result with.
	BuildArgs   map[string]string // Per-key build arguments.
	Labels      map[string]string // Labels to set on the image.
	MemoryLimit int64             // Build memory limit in bytes; zero means unlimited.
	CacheFrom   []string          // Images to reuse build cache from.
	ForceRemove bool              // Always remove intermediate containers.
}

// Controls a run invocation.
type RunOptions struct {
	Image       string            // Image to run.
	Command     []string          // Command to run; empty uses the image default.
	Environment []string          // "key=value" entries for the container environment.
	Ports       nat.PortMap       // Container-to-host port bindings.
	PublishAll  bool              // Publish every exposed port to a random host port.
	Volumes     map[string]string // Host path to container path bind mounts.
}

// The contract both backends implement.
//
// Every operation returns a lazy event stream. Iteration drives the
// operation; stopping early terminates it and releases its resources.
type Engine interface {
	Build(ctx context.Context, opts BuildOptions) iter.Seq[Event]
	Push(ctx context.Context, tag string) iter.Seq[Event]
	Run(ctx context.Context, opts RunOptions) iter.Seq[Event]
}

// Selects and constructs a backend.
//
// An empty name prefers the engine API when it is reachable and falls back
// to the docker binary. "api" forces the API backend; "docker" and "podman"
// force the subprocess backend with that binary. Returns [ErrUnavailable]
// when the chosen backend cannot be reached, before any pipeline stage
// begins.
func New(ctx context.Context, name string) (Engine, error) {
	switch name {
	case "":
		if eng, err := NewDocker(ctx); err == nil {
			return eng, nil
		}
		return NewCLI(ctx, "docker")
	case "api":
		return NewDocker(ctx)
	case "docker", "podman":
		return NewCLI(ctx, name)
	default:
		return nil, errors.Wrap(ErrUnknown, name)
	}
}

// Shorthand for a progress event.
func progress(line string) Event {
	return Event{Kind: Progress, Line: line}
}

// Shorthand for a terminal error event.
func failure(line string) Event {
	return Event{Kind: Error, Line: line}
}

// Longest output line either backend accepts before treating the stream as
// broken.
const maxLineBytes = 1024 * 1024

// Yields one progress event per line read from r.
//
// Returns the last observed line, whether the consumer is still draining,
// and any read error. A read error means the stream could not be followed
// to its end; callers must surface it as a terminal failure rather than
// keep waiting on the producer.
func yieldLines(r io.Reader, yield func(Event) bool) (string, bool, error) {
	last := ""
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		last = scanner.Text()
		if !yield(progress(last)) {
			return last, false, nil
		}
	}
	return last, true, scanner.Err()
}
