package stacks

import "github.com/kilnworks/kiln/internal/buildpack"

// Directory inside the image that the repository is copied to.
const RepoDir = "/srv/repo"

// The generic foundation every other variant builds on.
//
// It never detects on its own; it is selected through the ancestor relation
// of the variants that do.
type base struct {
	buildpack.Core
}

func newBase(root string) *base {
	return &base{Core: buildpack.NewCore("base", orderBase, root)}
}

func (b *base) BaseImage() string {
	return "docker.io/library/buildpack-deps:jammy"
}

func (b *base) BasePackages() []string {
	return []string{"ca-certificates", "curl", "locales", "less", "unzip"}
}

func (b *base) Env() []buildpack.EnvEntry {
	return []buildpack.EnvEntry{
		{Key: "APP_BASE", Value: "/srv"},
		{Key: "REPO_DIR", Value: RepoDir},
		{Key: "LC_ALL", Value: "en_US.UTF-8"},
		{Key: "LANG", Value: "en_US.UTF-8"},
	}
}

func (b *base) BuildScripts() []buildpack.Script {
	return []buildpack.Script{
		{Privileged: true, Command: `echo "en_US.UTF-8 UTF-8" > /etc/locale.gen && locale-gen`},
	}
}

// Runs the repository's own postBuild hook when one is present, matching
// the convention of executable setup scripts at the checkout root.
func (b *base) PostBuildScripts() []buildpack.Script {
	if !exists(b.Root(), "postBuild") {
		return nil
	}
	return []buildpack.Script{
		{Command: "chmod +x " + RepoDir + "/postBuild && " + RepoDir + "/postBuild"},
	}
}
