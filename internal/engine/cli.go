package engine

import (
	"context"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"strconv"
	"strings"

	"github.com/docker/docker/pkg/archive"
	"github.com/pkg/errors"
)

// Subprocess backend driving a docker-compatible binary.
//
// Build contexts arrive as tar streams; each build extracts its context
// into a private temporary directory that is removed when the stream ends,
// regardless of outcome.
type CLI struct {
	binary string
}

// Creates a subprocess backend for the given binary.
//
// Probes the engine with "<binary> info"; a failed probe means no usable
// daemon and returns [ErrUnavailable].
func NewCLI(ctx context.Context, binary string) (*CLI, error) {
	probe := exec.CommandContext(ctx, binary, "info")
	probe.Stdout = io.Discard
	probe.Stderr = io.Discard
	if err := probe.Run(); err != nil {
		return nil, errors.Wrap(ErrUnavailable, binary)
	}

	slog.Debug("engine selected", "backend", "cli", "binary", binary)
	return &CLI{binary: binary}, nil
}

// Builds the context by invoking "<binary> build".
//
// The context tar is extracted to a scratch directory, the command line is
// composed from the options, and the child's combined output is yielded
// line by line. A non-zero exit appends one terminal error event carrying
// the last observed line.
func (c *CLI) Build(ctx context.Context, opts BuildOptions) iter.Seq[Event] {
	return func(yield func(Event) bool) {
		workdir, err := os.MkdirTemp("", "kiln-build-")
		if err != nil {
			yield(failure(err.Error()))
			return
		}
		defer os.RemoveAll(workdir)

		if err := archive.Untar(opts.Context, workdir, &archive.TarOptions{NoLchown: true}); err != nil {
			yield(failure(err.Error()))
			return
		}

		cmd := exec.CommandContext(ctx, c.binary, c.buildCommand(opts, workdir)...)
		cmd.Env = append(os.Environ(), "DOCKER_BUILDKIT=1", "PROGRESS_NO_TRUNC=1")
		streamCommand(cmd, yield)
	}
}

// Pushes a tag by invoking "<binary> push".
func (c *CLI) Push(ctx context.Context, tag string) iter.Seq[Event] {
	return func(yield func(Event) bool) {
		cmd := exec.CommandContext(ctx, c.binary, "push", tag)
		streamCommand(cmd, yield)
	}
}

// Runs a container by invoking "<binary> run --rm" and streams its output
// until it exits.
func (c *CLI) Run(ctx context.Context, opts RunOptions) iter.Seq[Event] {
	return func(yield func(Event) bool) {
		cmd := exec.CommandContext(ctx, c.binary, c.runCommand(opts)...)
		streamCommand(cmd, yield)
	}
}

// Composes the argument list for a build invocation.
//
// Map-backed options are emitted in sorted key order so the command line is
// deterministic for identical inputs.
func (c *CLI) buildCommand(opts BuildOptions, contextDir string) []string {
	args := []string{"build", "--progress", "plain", "--tag", opts.Tag}

	for _, key := range sortedKeys(opts.BuildArgs) {
		args = append(args, "--build-arg", key+"="+opts.BuildArgs[key])
	}
	for _, key := range sortedKeys(opts.Labels) {
		args = append(args, "--label", key+"="+opts.Labels[key])
	}
	if opts.MemoryLimit > 0 {
		args = append(args, "--memory", strconv.FormatInt(opts.MemoryLimit, 10))
	}
	for _, cache := range opts.CacheFrom {
		args = append(args, "--cache-from", cache)
	}
	if opts.ForceRemove {
		args = append(args, "--force-rm")
	}

	return append(args, contextDir)
}

// Composes the argument list for a run invocation.
func (c *CLI) runCommand(opts RunOptions) []string {
	args := []string{"run", "--rm"}

	if opts.PublishAll {
		args = append(args, "--publish-all")
	}

	ports := make([]string, 0, len(opts.Ports))
	for port, bindings := range opts.Ports {
		for _, binding := range bindings {
			if binding.HostPort == "" {
				ports = append(ports, string(port))
				continue
			}
			ports = append(ports, binding.HostPort+":"+string(port))
		}
	}
	sort.Strings(ports)
	for _, p := range ports {
		args = append(args, "--publish", p)
	}

	for _, env := range opts.Environment {
		args = append(args, "--env", env)
	}
	for _, src := range sortedKeys(opts.Volumes) {
		args = append(args, "--volume", src+":"+opts.Volumes[src])
	}

	args = append(args, opts.Image)
	return append(args, opts.Command...)
}

// Runs a child process and yields its combined output line by line.
//
// stdout and stderr share one pipe so lines arrive interleaved in write
// order. After the stream drains, a non-zero exit yields a single terminal
// error event carrying the last observed line. If the consumer stops
// early, or the output cannot be followed to its end, the child is killed
// and reaped before returning; waiting on a child whose pipe nobody reads
// would block forever.
func streamCommand(cmd *exec.Cmd, yield func(Event) bool) {
	r, w, err := os.Pipe()
	if err != nil {
		yield(failure(err.Error()))
		return
	}
	cmd.Stdout = w
	cmd.Stderr = w

	slog.Debug("exec", "command", strings.Join(cmd.Args, " "))

	if err := cmd.Start(); err != nil {
		w.Close()
		r.Close()
		yield(failure(err.Error()))
		return
	}
	w.Close()
	defer r.Close()

	last, draining, scanErr := yieldLines(r, yield)
	if !draining {
		cmd.Process.Kill()
		cmd.Wait()
		return
	}
	if scanErr != nil {
		cmd.Process.Kill()
		cmd.Wait()
		yield(failure(fmt.Sprintf("reading engine output: %v", scanErr)))
		return
	}

	if err := cmd.Wait(); err != nil {
		if last == "" {
			last = err.Error()
		}
		yield(failure(fmt.Sprintf("%s (%v)", last, err)))
	}
}

// Returns the map's keys in sorted order.
func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
