package pipeline

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/docker/docker/pkg/archive"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/kilnworks/kiln/internal/buildpack"
	"github.com/kilnworks/kiln/internal/engine"
	"github.com/kilnworks/kiln/internal/fetch"
	"github.com/kilnworks/kiln/internal/render"
)

// Pipeline execution states, in transition order.
type State string

const (
	StateConfigured State = "configured"
	StateDetected   State = "detected"
	StateRendered   State = "rendered"
	StateBuilt      State = "built"
	StatePushed     State = "pushed"
	StateRan        State = "ran"
	StateCleanedUp  State = "cleaned-up"
	StateFailed     State = "failed"
)

// Drives one request through the build stages.
type Pipeline struct {
	req     *Request
	catalog buildpack.Catalog
	state   State

	// Collaborators, replaceable in tests.
	fetcher   func(ctx context.Context, repo, ref, subdir string) (*fetch.Checkout, error)
	newEngine func(ctx context.Context, name string) (engine.Engine, error)
}

// Creates a pipeline for a request and a buildpack catalog.
func New(req *Request, catalog buildpack.Catalog) *Pipeline {
	return &Pipeline{
		req:       req,
		catalog:   catalog,
		state:     StateConfigured,
		fetcher:   fetch.Fetch,
		newEngine: engine.New,
	}
}

// Returns the pipeline's current state.
func (p *Pipeline) State() State {
	return p.state
}

// Executes the pipeline end-to-end.
//
// Stages run strictly in order and fail fast; the first error moves the
// pipeline to the failed state and is returned. The build context and any
// fetched checkout are released on every path out.
func (p *Pipeline) Execute(ctx context.Context) error {
	if err := p.req.Validate(); err != nil {
		return p.fail(err)
	}

	checkout, err := p.fetcher(ctx, p.req.Repo, p.req.Ref, p.req.Subdir)
	if err != nil {
		return p.fail(err)
	}
	defer p.cleanupCheckout(checkout)

	if p.req.ImageName == "" {
		p.req.ImageName = autoImageName(p.req.Repo)
		slog.Info("generated image name", "image", p.req.ImageName)
	}

	merged, err := buildpack.Compose(p.catalog, checkout.Root)
	if err != nil {
		return p.fail(err)
	}
	p.to(StateDetected)

	contextDir, err := render.Render(merged, checkout.Root, render.Options{
		User:      p.req.UserName,
		UID:       p.req.UserID,
		TargetDir: p.req.TargetDir,
		Appendix:  p.req.Appendix,
	})
	if err != nil {
		return p.fail(err)
	}
	defer os.RemoveAll(contextDir)
	p.to(StateRendered)

	if p.req.DryRun {
		slog.Info("dry run requested, skipping build", "context", contextDir)
		p.to(StateCleanedUp)
		return nil
	}

	eng, err := p.newEngine(ctx, p.req.Engine)
	if err != nil {
		return p.fail(err)
	}

	if err := p.build(ctx, eng, contextDir, merged); err != nil {
		return p.fail(err)
	}
	p.to(StateBuilt)

	if p.req.Push {
		if err := drain(eng.Push(ctx, p.req.ImageName), engine.ErrImageLoad); err != nil {
			return p.fail(err)
		}
		p.to(StatePushed)
	}

	if p.req.Run {
		if err := p.run(ctx, eng); err != nil {
			return p.fail(err)
		}
		p.to(StateRan)
	}

	p.to(StateCleanedUp)
	return nil
}

// Builds the rendered context into the target image.
//
// The context directory is packaged as a tar stream for the engine. Build
// arguments declared by the merged contract but not supplied by the user
// are filled from the invoking environment when set.
func (p *Pipeline) build(ctx context.Context, eng engine.Engine, contextDir string, merged *buildpack.Composite) error {
	tar, err := archive.TarWithOptions(contextDir, &archive.TarOptions{})
	if err != nil {
		return err
	}
	defer tar.Close()

	buildArgs := make(map[string]string, len(p.req.BuildArgs))
	for _, name := range merged.BuildArgs() {
		if value, ok := os.LookupEnv(name); ok {
			buildArgs[name] = value
		}
	}
	for key, value := range p.req.BuildArgs {
		buildArgs[key] = value
	}

	slog.Info("building image", "image", p.req.ImageName)

	return drain(eng.Build(ctx, engine.BuildOptions{
		Context:     tar,
		Tag:         p.req.ImageName,
		BuildArgs:   buildArgs,
		Labels:      p.labels(),
		MemoryLimit: p.req.MemoryBytes(),
		CacheFrom:   p.req.CacheFrom,
		ForceRemove: true,
	}), engine.ErrBuild)
}

// Runs the built image and streams its output until the container exits.
func (p *Pipeline) run(ctx context.Context, eng engine.Engine) error {
	slog.Info("running container", "image", p.req.ImageName, "command", p.req.RunCommand)

	return drain(eng.Run(ctx, engine.RunOptions{
		Image:       p.req.ImageName,
		Command:     p.req.RunCommand,
		Environment: p.req.Environment,
		Ports:       p.req.PortMap(),
		PublishAll:  p.req.PublishAll,
		Volumes:     p.req.Volumes,
	}), ErrRun)
}

// Consumes an engine event stream, logging progress lines and converting
// the terminal error event, if any, into a typed error.
func drain(stream iter.Seq[engine.Event], sentinel error) error {
	var failure error
	for ev := range stream {
		switch ev.Kind {
		case engine.Progress:
			slog.Info(ev.Line)
		case engine.Error:
			failure = fmt.Errorf("%w: %s", sentinel, ev.Line)
		}
	}
	return failure
}

// Removes a fetched checkout unless it is a pre-existing local path or the
// user asked to keep it.
func (p *Pipeline) cleanupCheckout(checkout *fetch.Checkout) {
	if !p.req.CleanCheckout {
		return
	}
	if err := checkout.Remove(); err != nil {
		slog.Warn("failed to remove checkout", "root", checkout.Root, "error", err)
	}
}

// Moves the pipeline to the next state.
func (p *Pipeline) to(state State) {
	slog.Debug("pipeline state", "from", p.state, "to", state)
	p.state = state
}

// Moves the pipeline to the failed state and passes the error through.
func (p *Pipeline) fail(err error) error {
	p.state = StateFailed
	return err
}

// Returns the image labels: user-supplied labels over the standard OCI
// annotations describing the source repository.
func (p *Pipeline) labels() map[string]string {
	labels := map[string]string{
		ocispec.AnnotationCreated: time.Now().UTC().Format(time.RFC3339),
		ocispec.AnnotationSource:  p.req.Repo,
	}
	if p.req.Ref != "" {
		labels[ocispec.AnnotationRevision] = p.req.Ref
	}
	for key, value := range p.req.Labels {
		labels[key] = value
	}
	return labels
}

var imageNameSanitizer = regexp.MustCompile(`[^a-z0-9._-]+`)

// Derives an image name from a repository reference.
//
// The reference is lowercased and reduced to the character set image names
// permit, then suffixed with a timestamp so repeated builds of the same
// repository stay distinguishable.
func autoImageName(repo string) string {
	slug := strings.ToLower(repo)
	slug = imageNameSanitizer.ReplaceAllString(slug, "-")
	slug = strings.Trim(slug, "-.")
	if len(slug) > 40 {
		slug = slug[len(slug)-40:]
		slug = strings.TrimLeft(slug, "-.")
	}
	if slug == "" {
		slug = "repo"
	}
	return fmt.Sprintf("kiln-%s-%d", slug, time.Now().Unix())
}
