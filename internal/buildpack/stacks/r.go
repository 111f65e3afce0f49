package stacks

import "github.com/kilnworks/kiln/internal/buildpack"

// Handles repositories driven by an install.R script or an R package
// DESCRIPTION file.
type r struct {
	buildpack.Core
}

func newR(root string) *r {
	return &r{Core: buildpack.NewCore("r", orderR, root)}
}

func (b *r) Detect() bool {
	return exists(b.Root(), "install.R") || exists(b.Root(), "DESCRIPTION")
}

func (b *r) Packages() []string {
	return []string{"r-base", "r-base-dev", "libcurl4-openssl-dev", "libssl-dev", "libxml2-dev"}
}

func (b *r) Env() []buildpack.EnvEntry {
	return []buildpack.EnvEntry{{Key: "R_LIBS_USER", Value: "/opt/r-libs"}}
}

func (b *r) BuildScripts() []buildpack.Script {
	return []buildpack.Script{
		{Privileged: true, Command: "mkdir -p /opt/r-libs && chown -R ${KILN_UID}:${KILN_UID} /opt/r-libs"},
	}
}

func (b *r) AssembleScripts() []buildpack.Script {
	var scripts []buildpack.Script
	if exists(b.Root(), "install.R") {
		scripts = append(scripts, buildpack.Script{
			Command: "Rscript " + RepoDir + "/install.R",
		})
	}
	if exists(b.Root(), "DESCRIPTION") {
		scripts = append(scripts, buildpack.Script{
			Command: `R --quiet -e "install.packages('remotes'); remotes::install_local('` + RepoDir + `')"`,
		})
	}
	return scripts
}
