package render

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/docker/docker/pkg/archive"
	"github.com/pkg/errors"

	"github.com/kilnworks/kiln/internal/buildpack"
	"github.com/kilnworks/kiln/internal/paths"
)

// Controls context rendering.
type Options struct {
	User      string // Primary image user name.
	UID       int    // Primary image user ID.
	TargetDir string // Directory inside the image the repository is copied to.
	Appendix  string // Extra build instructions appended verbatim.
}

// Renders the merged contract into a build context directory.
//
// The returned directory is a scoped temporary resource; the caller must
// remove it once the engine call completes, on success and failure alike.
func Render(merged *buildpack.Composite, repoRoot string, opts Options) (string, error) {
	dir, err := os.MkdirTemp("", "kiln-context-")
	if err != nil {
		return "", errors.Wrap(ErrRender, err.Error())
	}

	if err := fill(dir, merged, repoRoot, opts); err != nil {
		os.RemoveAll(dir)
		return "", err
	}

	slog.Debug("build context rendered", "dir", dir)
	return dir, nil
}

// Populates a context directory with scripts, sources, and the Dockerfile.
func fill(dir string, merged *buildpack.Composite, repoRoot string, opts Options) error {
	if err := writeScripts(filepath.Join(dir, "scripts"), merged.BuildScriptFiles()); err != nil {
		return err
	}
	if err := writeScripts(filepath.Join(dir, "preassemble"), merged.PreassembleScriptFiles()); err != nil {
		return err
	}

	if err := archive.NewDefaultArchiver().CopyWithTar(repoRoot, filepath.Join(dir, "src")); err != nil {
		return errors.Wrap(ErrRender, err.Error())
	}

	dockerfile, err := Dockerfile(merged, opts)
	if err != nil {
		return err
	}

	path := filepath.Join(dir, "Dockerfile")
	if err := os.WriteFile(path, []byte(dockerfile), paths.DefaultFileMode); err != nil {
		return errors.Wrap(ErrRender, err.Error())
	}

	return nil
}

// Writes a script-file map into a directory, one executable file per
// logical name.
func writeScripts(dir string, files map[string]string) error {
	if len(files) == 0 {
		return nil
	}

	if err := os.MkdirAll(dir, paths.DefaultDirMode); err != nil {
		return errors.Wrap(ErrRender, err.Error())
	}

	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), paths.ScriptFileMode); err != nil {
			return errors.Wrap(ErrRender, err.Error())
		}
	}

	return nil
}

// Generates the Dockerfile text for a merged contract.
//
// Instruction order is load-bearing: packages and user creation first, then
// contributed script files and build scripts, then preassemble scripts, the
// repository copy, assemble scripts, and post-build scripts last. Script
// blocks toggle between root and the primary user according to each
// script's privilege flag.
func Dockerfile(merged *buildpack.Composite, opts Options) (string, error) {
	data := struct {
		BaseImage   string
		User        string
		UID         int
		TargetDir   string
		Appendix    string
		BuildArgs   []string
		Packages    []string
		Env         []buildpack.EnvEntry
		BuildEnv    []buildpack.EnvEntry
		Path        []string
		HasScripts  bool
		HasPre      bool
		Build       []buildpack.Script
		Preassemble []buildpack.Script
		Assemble    []buildpack.Script
		PostBuild   []buildpack.Script
	}{
		BaseImage:   merged.BaseImage(),
		User:        opts.User,
		UID:         opts.UID,
		TargetDir:   opts.TargetDir,
		Appendix:    opts.Appendix,
		BuildArgs:   merged.BuildArgs(),
		Packages:    append(merged.BasePackages(), merged.Packages()...),
		Env:         merged.Env(),
		BuildEnv:    merged.BuildEnv(),
		Path:        merged.Path(),
		HasScripts:  len(merged.BuildScriptFiles()) > 0,
		HasPre:      len(merged.PreassembleScriptFiles()) > 0,
		Build:       merged.BuildScripts(),
		Preassemble: merged.PreassembleScripts(),
		Assemble:    merged.AssembleScripts(),
		PostBuild:   merged.PostBuildScripts(),
	}

	var sb strings.Builder
	if err := dockerfileTemplate.Execute(&sb, data); err != nil {
		return "", errors.Wrap(ErrRender, err.Error())
	}
	return sb.String(), nil
}

var dockerfileTemplate = template.Must(template.New("Dockerfile").
	Funcs(template.FuncMap{"join": strings.Join}).
	Parse(`FROM {{.BaseImage}}

{{range .BuildArgs}}ARG {{.}}
{{end -}}
ENV KILN_USER={{.User}}
ENV KILN_UID={{.UID}}
{{range .Env}}ENV {{.Key}}={{.Value}}
{{end -}}
{{range .BuildEnv}}ENV {{.Key}}={{.Value}}
{{end -}}
{{if .Packages}}
RUN apt-get -qq update && \
    apt-get -qq install --yes --no-install-recommends {{join .Packages " "}} && \
    apt-get -qq purge && apt-get -qq clean && rm -rf /var/lib/apt/lists/*
{{end}}
RUN groupadd --gid ${KILN_UID} ${KILN_USER} && \
    useradd --create-home --uid ${KILN_UID} --gid ${KILN_UID} ${KILN_USER}
{{if .HasScripts}}
COPY scripts/ /opt/kiln/scripts/
{{end -}}
{{range .Build}}
USER {{if .Privileged}}root{{else}}${KILN_USER}{{end}}
RUN {{.Command}}
{{end -}}
{{if .HasPre}}
COPY preassemble/ /opt/kiln/preassemble/
{{end -}}
{{range .Preassemble}}
USER {{if .Privileged}}root{{else}}${KILN_USER}{{end}}
RUN {{.Command}}
{{end}}
USER root
COPY src/ {{.TargetDir}}
RUN chown -R ${KILN_UID}:${KILN_UID} {{.TargetDir}}
WORKDIR {{.TargetDir}}
{{range .Assemble}}
USER {{if .Privileged}}root{{else}}${KILN_USER}{{end}}
RUN {{.Command}}
{{end -}}
{{range .PostBuild}}
USER {{if .Privileged}}root{{else}}${KILN_USER}{{end}}
RUN {{.Command}}
{{end}}
{{if .Path}}ENV PATH={{join .Path ":"}}:${PATH}
{{end -}}
USER ${KILN_USER}
{{if .Appendix}}
{{.Appendix}}
{{end -}}
`))
