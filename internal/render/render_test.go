package render

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kilnworks/kiln/internal/buildpack"
)

// Buildpack double contributing one of everything.
type richPack struct {
	buildpack.Core
}

func (p *richPack) Detect() bool        { return true }
func (p *richPack) BaseImage() string   { return "buildpack-deps:jammy" }
func (p *richPack) Packages() []string  { return []string{"git", "curl"} }
func (p *richPack) BuildArgs() []string { return []string{"EXTRA_CHANNEL"} }
func (p *richPack) Env() []buildpack.EnvEntry {
	return []buildpack.EnvEntry{{Key: "APP_BASE", Value: "/srv"}}
}
func (p *richPack) Path() []string { return []string{"/opt/venv/bin"} }
func (p *richPack) BuildScriptFiles() map[string]string {
	return map[string]string{"install-tools": "#!/bin/sh\necho tools\n"}
}
func (p *richPack) BuildScripts() []buildpack.Script {
	return []buildpack.Script{{Privileged: true, Command: "/opt/kiln/scripts/install-tools"}}
}
func (p *richPack) PreassembleScripts() []buildpack.Script {
	return []buildpack.Script{{Command: "echo preassemble"}}
}
func (p *richPack) AssembleScripts() []buildpack.Script {
	return []buildpack.Script{{Command: "pip install -r requirements.txt"}}
}
func (p *richPack) PostBuildScripts() []buildpack.Script {
	return []buildpack.Script{{Command: "./postBuild"}}
}

func composed(t *testing.T, root string) *buildpack.Composite {
	t.Helper()

	catalog := buildpack.Catalog{
		{
			Name: "rich",
			New: func(root string) buildpack.Buildpack {
				return &richPack{Core: buildpack.NewCore("rich", 10, root)}
			},
		},
	}

	merged, err := buildpack.Compose(catalog, root)
	if err != nil {
		t.Fatal(err)
	}
	return merged
}

func testOptions() Options {
	return Options{
		User:      "builder",
		UID:       1000,
		TargetDir: "/srv/repo",
	}
}

func TestDockerfileContents(t *testing.T) {
	merged := composed(t, t.TempDir())

	dockerfile, err := Dockerfile(merged, testOptions())
	if err != nil {
		t.Fatal(err)
	}

	for _, want := range []string{
		"FROM buildpack-deps:jammy",
		"ARG EXTRA_CHANNEL",
		"ENV KILN_USER=builder",
		"ENV KILN_UID=1000",
		"ENV APP_BASE=/srv",
		"apt-get -qq install --yes --no-install-recommends git curl",
		"useradd --create-home --uid ${KILN_UID}",
		"COPY scripts/ /opt/kiln/scripts/",
		"RUN /opt/kiln/scripts/install-tools",
		"COPY src/ /srv/repo",
		"WORKDIR /srv/repo",
		"ENV PATH=/opt/venv/bin:${PATH}",
	} {
		if !strings.Contains(dockerfile, want) {
			t.Errorf("Dockerfile missing %q:\n%s", want, dockerfile)
		}
	}
}

func TestDockerfileInstructionOrder(t *testing.T) {
	merged := composed(t, t.TempDir())

	dockerfile, err := Dockerfile(merged, testOptions())
	if err != nil {
		t.Fatal(err)
	}

	// Later instructions must appear after earlier ones.
	sequence := []string{
		"FROM ",
		"apt-get -qq install",
		"useradd",
		"COPY scripts/",
		"RUN /opt/kiln/scripts/install-tools",
		"RUN echo preassemble",
		"COPY src/",
		"WORKDIR ",
		"RUN pip install -r requirements.txt",
		"RUN ./postBuild",
		"USER ${KILN_USER}",
	}

	offset := 0
	for _, marker := range sequence {
		idx := strings.Index(dockerfile[offset:], marker)
		if idx < 0 {
			t.Fatalf("instruction %q missing or out of order:\n%s", marker, dockerfile)
		}
		offset += idx + len(marker)
	}
}

func TestDockerfilePrivilegeToggles(t *testing.T) {
	merged := composed(t, t.TempDir())

	dockerfile, err := Dockerfile(merged, testOptions())
	if err != nil {
		t.Fatal(err)
	}

	// The privileged build script runs as root, the unprivileged
	// preassemble script as the primary user.
	if !strings.Contains(dockerfile, "USER root\nRUN /opt/kiln/scripts/install-tools") {
		t.Fatalf("privileged script not run as root:\n%s", dockerfile)
	}
	if !strings.Contains(dockerfile, "USER ${KILN_USER}\nRUN echo preassemble") {
		t.Fatalf("unprivileged script not run as the primary user:\n%s", dockerfile)
	}
}

func TestDockerfileAppendix(t *testing.T) {
	merged := composed(t, t.TempDir())

	opts := testOptions()
	opts.Appendix = "RUN echo appended"

	dockerfile, err := Dockerfile(merged, opts)
	if err != nil {
		t.Fatal(err)
	}

	idx := strings.Index(dockerfile, "RUN echo appended")
	if idx < 0 {
		t.Fatalf("appendix missing:\n%s", dockerfile)
	}
	if idx < strings.Index(dockerfile, "USER ${KILN_USER}") {
		t.Fatalf("appendix must come after the final user switch:\n%s", dockerfile)
	}
}

func TestRenderPopulatesContext(t *testing.T) {
	repo := t.TempDir()
	if err := os.WriteFile(filepath.Join(repo, "requirements.txt"), []byte("flask\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	merged := composed(t, repo)
	dir, err := Render(merged, repo, testOptions())
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	if _, err := os.Stat(filepath.Join(dir, "Dockerfile")); err != nil {
		t.Fatalf("Dockerfile missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "src", "requirements.txt")); err != nil {
		t.Fatalf("repository copy missing: %v", err)
	}

	script, err := os.Stat(filepath.Join(dir, "scripts", "install-tools"))
	if err != nil {
		t.Fatalf("script file missing: %v", err)
	}
	if script.Mode().Perm()&0o111 == 0 {
		t.Fatalf("script mode = %v, want executable", script.Mode())
	}
}
