package engine

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
	"github.com/pkg/errors"
)

// API backend driving the Docker Engine directly.
type Docker struct {
	cli *client.Client
}

// Creates an API backend from the environment's Docker configuration.
//
// The daemon is pinged once; an unreachable daemon returns
// [ErrUnavailable] so the caller can fall back to another backend before
// the pipeline starts.
func NewDocker(ctx context.Context) (*Docker, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, errors.Wrap(ErrUnavailable, err.Error())
	}
	if _, err := cli.Ping(ctx); err != nil {
		return nil, errors.Wrap(ErrUnavailable, err.Error())
	}

	slog.Debug("engine selected", "backend", "api")
	return &Docker{cli: cli}, nil
}

// Builds the context through the engine API.
//
// The context is handed to the daemon as a tar stream; the daemon's JSON
// progress stream is decoded into events.
func (d *Docker) Build(ctx context.Context, opts BuildOptions) iter.Seq[Event] {
	return func(yield func(Event) bool) {
		buildArgs := make(map[string]*string, len(opts.BuildArgs))
		for key, value := range opts.BuildArgs {
			buildArgs[key] = &value
		}

		resp, err := d.cli.ImageBuild(ctx, opts.Context, types.ImageBuildOptions{
			Tags:        []string{opts.Tag},
			Dockerfile:  "Dockerfile",
			Remove:      true,
			ForceRemove: opts.ForceRemove,
			BuildArgs:   buildArgs,
			Labels:      opts.Labels,
			CacheFrom:   opts.CacheFrom,
			Memory:      opts.MemoryLimit,
		})
		if err != nil {
			yield(failure(err.Error()))
			return
		}
		defer resp.Body.Close()

		decodeStream(resp.Body, yield)
	}
}

// Pushes a tag through the engine API.
func (d *Docker) Push(ctx context.Context, tag string) iter.Seq[Event] {
	return func(yield func(Event) bool) {
		resp, err := d.cli.ImagePush(ctx, tag, types.ImagePushOptions{
			RegistryAuth: anonymousAuth(),
		})
		if err != nil {
			yield(failure(err.Error()))
			return
		}
		defer resp.Close()

		decodeStream(resp, yield)
	}
}

// Runs a container through the engine API and streams its output until it
// exits.
//
// The container is created with the requested ports, volumes, and
// environment, started, and followed via its log stream. A non-zero exit
// status yields one terminal error event. The container is force-removed
// when the stream ends.
func (d *Docker) Run(ctx context.Context, opts RunOptions) iter.Seq[Event] {
	return func(yield func(Event) bool) {
		exposed := make(nat.PortSet, len(opts.Ports))
		for port := range opts.Ports {
			exposed[port] = struct{}{}
		}

		binds := make([]string, 0, len(opts.Volumes))
		for _, src := range sortedKeys(opts.Volumes) {
			binds = append(binds, src+":"+opts.Volumes[src])
		}

		created, err := d.cli.ContainerCreate(ctx,
			&container.Config{
				Image:        opts.Image,
				Cmd:          opts.Command,
				Env:          opts.Environment,
				ExposedPorts: exposed,
			},
			&container.HostConfig{
				PortBindings:    opts.Ports,
				PublishAllPorts: opts.PublishAll,
				Binds:           binds,
			},
			nil, nil, "")
		if err != nil {
			yield(failure(err.Error()))
			return
		}
		defer d.cli.ContainerRemove(context.WithoutCancel(ctx), created.ID,
			types.ContainerRemoveOptions{Force: true})

		if err := d.cli.ContainerStart(ctx, created.ID, types.ContainerStartOptions{}); err != nil {
			yield(failure(err.Error()))
			return
		}

		logs, err := d.cli.ContainerLogs(ctx, created.ID, types.ContainerLogsOptions{
			ShowStdout: true,
			ShowStderr: true,
			Follow:     true,
		})
		if err != nil {
			yield(failure(err.Error()))
			return
		}
		defer logs.Close()

		// The log stream is multiplexed; demux both channels into one pipe
		// so lines arrive in write order.
		pr, pw := io.Pipe()
		go func() {
			_, err := stdcopy.StdCopy(pw, pw, logs)
			pw.CloseWithError(err)
		}()
		defer pr.Close()

		last, draining, scanErr := yieldLines(pr, yield)
		if !draining {
			return
		}
		if scanErr != nil {
			yield(failure(fmt.Sprintf("reading container logs: %v", scanErr)))
			return
		}

		statusC, errC := d.cli.ContainerWait(ctx, created.ID, container.WaitConditionNotRunning)
		select {
		case err := <-errC:
			yield(failure(err.Error()))
		case status := <-statusC:
			if status.StatusCode != 0 {
				yield(failure(fmt.Sprintf("%s (exit code %d)", last, status.StatusCode)))
			}
		}
	}
}

// Decodes the engine's JSON progress stream into events.
//
// Build and push responses share the shape: "stream" and "status" carry
// progress text, "error" carries a terminal failure.
func decodeStream(r io.Reader, yield func(Event) bool) {
	type message struct {
		Stream string `json:"stream"`
		Status string `json:"status"`
		Error  string `json:"error"`
	}

	dec := json.NewDecoder(r)
	for {
		var msg message
		if err := dec.Decode(&msg); err != nil {
			if err != io.EOF {
				yield(failure(err.Error()))
			}
			return
		}

		if msg.Error != "" {
			yield(failure(msg.Error))
			return
		}

		text := msg.Stream
		if text == "" {
			text = msg.Status
		}
		for _, line := range splitLines(text) {
			if !yield(progress(line)) {
				return
			}
		}
	}
}

// Splits progress text into non-empty lines.
func splitLines(text string) []string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// Returns the encoded empty credentials the push endpoint requires when no
// registry login is configured.
func anonymousAuth() string {
	auth, _ := json.Marshal(map[string]string{})
	return base64.URLEncoding.EncodeToString(auth)
}
