package cli

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"github.com/pkg/errors"

	"github.com/kilnworks/kiln/internal/buildpack/stacks"
	"github.com/kilnworks/kiln/internal/config"
	"github.com/kilnworks/kiln/internal/pipeline"
)

// Represents the 'kiln build' command.
type BuildCmd struct {
	Repo string   `arg:"" help:"Repository to build: local path or git URL."`
	Cmd  []string `arg:"" optional:"" passthrough:"" help:"Command to run in the container after building."`

	Image  string `help:"Name of the image to build. Autogenerated when unset." placeholder:"NAME"`
	Ref    string `help:"Git reference (branch, tag, or commit) to check out." placeholder:"REF"`
	Subdir string `help:"Build from a subdirectory of the repository." placeholder:"DIR"`

	NoBuild bool `help:"Stop after detection and rendering (dry run)."`
	NoRun   bool `help:"Do not run the container after building."`
	NoClean bool `help:"Keep fetched checkouts instead of removing them."`
	Push    bool `help:"Push the image after building."`

	Publish    []string `short:"p" help:"Port mappings, host:container[/proto] or container[/proto]." placeholder:"PORT"`
	PublishAll bool     `short:"P" help:"Publish all exposed ports to random host ports."`
	Volume     []string `short:"v" help:"Volumes to mount inside the container, in form src:dest." placeholder:"SRC:DEST"`
	Env        []string `short:"e" help:"Environment variables to define at container run time." placeholder:"KEY[=VALUE]"`
	Editable   bool     `short:"E" help:"Mount the local repository in edit mode."`

	Label            []string `help:"Extra labels to set on the image, in form name=value." placeholder:"NAME=VALUE"`
	BuildArg         []string `help:"Extra build args to pass to the build process, in form name=value." placeholder:"NAME=VALUE"`
	BuildMemoryLimit string   `help:"Total memory the build process may use (e.g. 2g)." placeholder:"SIZE"`
	CacheFrom        []string `help:"Images to reuse build cache from." placeholder:"IMAGE"`

	Engine   string `help:"Container engine backend: api, docker, or podman." placeholder:"NAME"`
	UserID   int    `help:"User ID of the primary user in the image." default:"-1"`
	UserName string `help:"Username of the primary user in the image." placeholder:"NAME"`
	Config   string `help:"Path to a kiln configuration file." placeholder:"PATH" type:"path"`
}

// Executes the build command.
//
// Translates flags into a pipeline request, merges configuration-file
// defaults, and runs the pipeline. Configuration violations surface before
// the pipeline touches the repository or the engine.
func (c *BuildCmd) Run(ctx context.Context) error {
	req, err := c.request()
	if err != nil {
		return err
	}

	cfg, err := config.Load(c.Config)
	if err != nil {
		return err
	}
	cfg.Apply(req)

	return pipeline.New(req, stacks.Default()).Execute(ctx)
}

// Builds the pipeline request from the parsed flags.
func (c *BuildCmd) request() (*pipeline.Request, error) {
	req := pipeline.NewRequest(c.Repo)

	req.Ref = c.Ref
	req.Subdir = c.Subdir
	req.ImageName = c.Image
	req.DryRun = c.NoBuild
	req.Run = !c.NoRun
	req.Push = c.Push
	req.CleanCheckout = !c.NoClean
	req.Editable = c.Editable
	req.RunCommand = c.Cmd
	req.Ports = c.Publish
	req.PublishAll = c.PublishAll
	req.Environment = resolveEnv(c.Env)
	req.MemoryLimit = c.BuildMemoryLimit
	req.CacheFrom = c.CacheFrom
	req.Engine = c.Engine

	if c.UserID >= 0 {
		req.UserID = c.UserID
	}
	if c.UserName != "" {
		req.UserName = c.UserName
	}

	for _, v := range c.Volume {
		src, dest, ok := strings.Cut(v, ":")
		if !ok {
			return nil, errors.Wrapf(pipeline.ErrConfig, "volume %q: want src:dest", v)
		}
		req.Volumes[src] = dest
	}

	for _, l := range c.Label {
		key, value, _ := strings.Cut(l, "=")
		req.Labels[key] = value
	}
	for _, a := range c.BuildArg {
		key, value, _ := strings.Cut(a, "=")
		req.BuildArgs[key] = value
	}

	return req, nil
}

// Resolves run-time environment entries the way the engine CLIs do.
//
// "key=value" and "key=" pass through unchanged. A bare "key" takes its
// value from the invoking environment, and is dropped when unset there.
func resolveEnv(entries []string) []string {
	var resolved []string
	for _, entry := range entries {
		if strings.Contains(entry, "=") {
			resolved = append(resolved, entry)
			continue
		}
		if value, ok := os.LookupEnv(entry); ok {
			resolved = append(resolved, entry+"="+value)
			continue
		}
		slog.Debug("dropping unset environment variable", "key", entry)
	}
	return resolved
}
