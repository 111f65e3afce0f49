package stacks

import "github.com/kilnworks/kiln/internal/buildpack"

// Location of the conda installation.
const condaDir = "/opt/conda"

// Handles repositories driven by an environment.yml.
type conda struct {
	buildpack.Core
}

func newConda(root string) *conda {
	return &conda{Core: buildpack.NewCore("conda", orderConda, root)}
}

func (c *conda) Detect() bool {
	return exists(c.Root(), "environment.yml") || exists(c.Root(), "environment.yaml")
}

func (c *conda) Env() []buildpack.EnvEntry {
	return []buildpack.EnvEntry{{Key: "CONDA_DIR", Value: condaDir}}
}

func (c *conda) Path() []string {
	return []string{condaDir + "/bin"}
}

func (c *conda) BuildScriptFiles() map[string]string {
	return map[string]string{"install-miniforge": installMiniforge}
}

func (c *conda) BuildScripts() []buildpack.Script {
	return []buildpack.Script{
		{Privileged: true, Command: "/opt/kiln/scripts/install-miniforge"},
	}
}

func (c *conda) AssembleScripts() []buildpack.Script {
	name := "environment.yml"
	if !exists(c.Root(), name) {
		name = "environment.yaml"
	}
	return []buildpack.Script{
		{Command: condaDir + "/bin/mamba env update --prefix " + condaDir + " --file " + RepoDir + "/" + name},
		{Command: condaDir + "/bin/mamba clean --all --yes"},
	}
}

// Installer script contributed as a build script file so later variants can
// override it by name.
const installMiniforge = `#!/bin/bash
set -euo pipefail

URL="https://github.com/conda-forge/miniforge/releases/latest/download/Miniforge3-$(uname)-$(uname -m).sh"
INSTALLER="$(mktemp)"

curl -fsSL "${URL}" -o "${INSTALLER}"
bash "${INSTALLER}" -b -u -p "${CONDA_DIR}"
rm -f "${INSTALLER}"
chown -R "${KILN_UID}:${KILN_UID}" "${CONDA_DIR}"
`
