package pipeline

import (
	"context"
	"errors"
	"io"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kilnworks/kiln/internal/buildpack"
	"github.com/kilnworks/kiln/internal/engine"
	"github.com/kilnworks/kiln/internal/fetch"
)

// Engine double recording the operations the pipeline invokes.
type fakeEngine struct {
	calls []string

	buildEvents []engine.Event
	pushEvents  []engine.Event
	runEvents   []engine.Event

	buildOpts engine.BuildOptions
}

func (f *fakeEngine) Build(ctx context.Context, opts engine.BuildOptions) iter.Seq[engine.Event] {
	f.calls = append(f.calls, "build")
	f.buildOpts = opts
	// The pipeline hands over a live tar stream; consume it like a real
	// backend would.
	if opts.Context != nil {
		io.Copy(io.Discard, opts.Context)
	}
	return replay(f.buildEvents)
}

func (f *fakeEngine) Push(ctx context.Context, tag string) iter.Seq[engine.Event] {
	f.calls = append(f.calls, "push")
	return replay(f.pushEvents)
}

func (f *fakeEngine) Run(ctx context.Context, opts engine.RunOptions) iter.Seq[engine.Event] {
	f.calls = append(f.calls, "run")
	return replay(f.runEvents)
}

func replay(events []engine.Event) iter.Seq[engine.Event] {
	return func(yield func(engine.Event) bool) {
		for _, ev := range events {
			if !yield(ev) {
				return
			}
		}
	}
}

// Buildpack double that always applies.
type alwaysPack struct {
	buildpack.Core
}

func (p *alwaysPack) Detect() bool      { return true }
func (p *alwaysPack) BaseImage() string { return "ubuntu:22.04" }

func testCatalog() buildpack.Catalog {
	return buildpack.Catalog{
		{
			Name: "always",
			New: func(root string) buildpack.Buildpack {
				return &alwaysPack{Core: buildpack.NewCore("always", 10, root)}
			},
		},
	}
}

// Pipeline wired to a repository directory and a fake engine, bypassing
// git and any real container engine.
func testPipeline(t *testing.T, req *Request, eng *fakeEngine) *Pipeline {
	t.Helper()

	repo := t.TempDir()
	if err := os.WriteFile(filepath.Join(repo, "README"), []byte("hi\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	p := New(req, testCatalog())
	p.fetcher = func(ctx context.Context, _, _, _ string) (*fetch.Checkout, error) {
		return &fetch.Checkout{Root: repo}, nil
	}
	p.newEngine = func(ctx context.Context, name string) (engine.Engine, error) {
		return eng, nil
	}
	return p
}

func testRequest() *Request {
	req := NewRequest("example.test/repo")
	req.ImageName = "kiln-test:latest"
	req.UserID = 1000
	req.UserName = "builder"
	return req
}

func TestExecuteBuildAndRun(t *testing.T) {
	eng := &fakeEngine{
		buildEvents: []engine.Event{{Kind: engine.Progress, Line: "step 1/4"}},
		runEvents:   []engine.Event{{Kind: engine.Progress, Line: "hello"}},
	}
	req := testRequest()
	p := testPipeline(t, req, eng)

	if err := p.Execute(context.Background()); err != nil {
		t.Fatal(err)
	}

	if got := strings.Join(eng.calls, ","); got != "build,run" {
		t.Fatalf("engine calls = %s, want build,run", got)
	}
	if p.State() != StateCleanedUp {
		t.Fatalf("state = %s, want %s", p.State(), StateCleanedUp)
	}
	if eng.buildOpts.Tag != "kiln-test:latest" {
		t.Fatalf("build tag = %q", eng.buildOpts.Tag)
	}
	if !eng.buildOpts.ForceRemove {
		t.Fatal("expected intermediate containers to be force-removed")
	}
}

func TestExecuteDryRunSkipsEngine(t *testing.T) {
	req := testRequest()
	req.DryRun = true

	p := testPipeline(t, req, &fakeEngine{})
	engineRequested := false
	p.newEngine = func(ctx context.Context, name string) (engine.Engine, error) {
		engineRequested = true
		return &fakeEngine{}, nil
	}

	if err := p.Execute(context.Background()); err != nil {
		t.Fatal(err)
	}

	if engineRequested {
		t.Fatal("dry run must not construct an engine")
	}
	if p.State() != StateCleanedUp {
		t.Fatalf("state = %s, want %s", p.State(), StateCleanedUp)
	}
}

func TestExecuteBuildFailure(t *testing.T) {
	eng := &fakeEngine{
		buildEvents: []engine.Event{
			{Kind: engine.Progress, Line: "step 1/4"},
			{Kind: engine.Error, Line: "RUN exited with status 1"},
		},
	}
	req := testRequest()
	p := testPipeline(t, req, eng)

	err := p.Execute(context.Background())
	if !errors.Is(err, engine.ErrBuild) {
		t.Fatalf("err = %v, want ErrBuild", err)
	}
	if !strings.Contains(err.Error(), "RUN exited with status 1") {
		t.Fatalf("err = %v, want the engine's terminal line", err)
	}
	if p.State() != StateFailed {
		t.Fatalf("state = %s, want %s", p.State(), StateFailed)
	}
	if got := strings.Join(eng.calls, ","); got != "build" {
		t.Fatalf("engine calls = %s, want build only", got)
	}
}

func TestExecutePushFailure(t *testing.T) {
	eng := &fakeEngine{
		pushEvents: []engine.Event{{Kind: engine.Error, Line: "denied"}},
	}
	req := testRequest()
	req.Push = true
	req.Run = false
	p := testPipeline(t, req, eng)

	err := p.Execute(context.Background())
	if !errors.Is(err, engine.ErrImageLoad) {
		t.Fatalf("err = %v, want ErrImageLoad", err)
	}
	if p.State() != StateFailed {
		t.Fatalf("state = %s, want %s", p.State(), StateFailed)
	}
}

func TestExecuteRunFailure(t *testing.T) {
	eng := &fakeEngine{
		runEvents: []engine.Event{{Kind: engine.Error, Line: "exit status 7"}},
	}
	req := testRequest()
	p := testPipeline(t, req, eng)

	err := p.Execute(context.Background())
	if !errors.Is(err, ErrRun) {
		t.Fatalf("err = %v, want ErrRun", err)
	}
	if p.State() != StateFailed {
		t.Fatalf("state = %s, want %s", p.State(), StateFailed)
	}
}

func TestExecuteInvalidRequestFailsEarly(t *testing.T) {
	req := testRequest()
	req.Run = false
	req.Volumes["/src"] = "/dest"

	fetched := false
	p := New(req, testCatalog())
	p.fetcher = func(ctx context.Context, _, _, _ string) (*fetch.Checkout, error) {
		fetched = true
		return nil, nil
	}

	err := p.Execute(context.Background())
	if !errors.Is(err, ErrConfig) {
		t.Fatalf("err = %v, want ErrConfig", err)
	}
	if fetched {
		t.Fatal("invalid request must fail before fetching")
	}
	if p.State() != StateFailed {
		t.Fatalf("state = %s, want %s", p.State(), StateFailed)
	}
}

func TestExecuteGeneratesImageName(t *testing.T) {
	eng := &fakeEngine{}
	req := testRequest()
	req.ImageName = ""
	req.Run = false
	p := testPipeline(t, req, eng)

	if err := p.Execute(context.Background()); err != nil {
		t.Fatal(err)
	}

	if !strings.HasPrefix(req.ImageName, "kiln-") {
		t.Fatalf("generated name = %q", req.ImageName)
	}
	if eng.buildOpts.Tag != req.ImageName {
		t.Fatalf("build tag = %q, want %q", eng.buildOpts.Tag, req.ImageName)
	}
}

func TestExecuteRemovesFetchedCheckout(t *testing.T) {
	checkoutDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(checkoutDir, "README"), []byte("hi\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	req := testRequest()
	req.DryRun = true
	p := New(req, testCatalog())
	p.fetcher = func(ctx context.Context, _, _, _ string) (*fetch.Checkout, error) {
		return &fetch.Checkout{Root: checkoutDir, Cleanup: true}, nil
	}

	if err := p.Execute(context.Background()); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(checkoutDir); !os.IsNotExist(err) {
		t.Fatalf("checkout %s still exists", checkoutDir)
	}
}

func TestExecuteKeepsCheckoutWhenAsked(t *testing.T) {
	checkoutDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(checkoutDir, "README"), []byte("hi\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	req := testRequest()
	req.DryRun = true
	req.CleanCheckout = false
	p := New(req, testCatalog())
	p.fetcher = func(ctx context.Context, _, _, _ string) (*fetch.Checkout, error) {
		return &fetch.Checkout{Root: checkoutDir, Cleanup: true}, nil
	}

	if err := p.Execute(context.Background()); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(checkoutDir); err != nil {
		t.Fatalf("checkout should have been kept: %v", err)
	}
}

func TestLabelsUserOverridesDefaults(t *testing.T) {
	req := testRequest()
	req.Ref = "v1.2.3"
	req.Labels["org.opencontainers.image.source"] = "custom"
	p := New(req, testCatalog())

	labels := p.labels()
	if labels["org.opencontainers.image.source"] != "custom" {
		t.Fatalf("source label = %q, want the user override", labels["org.opencontainers.image.source"])
	}
	if labels["org.opencontainers.image.revision"] != "v1.2.3" {
		t.Fatalf("revision label = %q", labels["org.opencontainers.image.revision"])
	}
	if labels["org.opencontainers.image.created"] == "" {
		t.Fatal("created label missing")
	}
}

func TestAutoImageName(t *testing.T) {
	tests := []struct {
		repo string
		want string
	}{
		{"https://github.com/Example/My_Repo", "kiln-https-github.com-example-my_repo-"},
		{"/home/me/projects/demo", "kiln-home-me-projects-demo-"},
		{"///", "kiln-repo-"},
	}

	for _, tt := range tests {
		got := autoImageName(tt.repo)
		if !strings.HasPrefix(got, tt.want) {
			t.Errorf("autoImageName(%q) = %q, want prefix %q", tt.repo, got, tt.want)
		}
		if strings.ToLower(got) != got {
			t.Errorf("autoImageName(%q) = %q, want lowercase", tt.repo, got)
		}
	}
}
