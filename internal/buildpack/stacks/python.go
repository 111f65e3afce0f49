package stacks

import "github.com/kilnworks/kiln/internal/buildpack"

// Location of the virtualenv the python scripts create.
const venvDir = "/opt/venv"

// Handles repositories driven by requirements.txt or setup.py.
type python struct {
	buildpack.Core
}

func newPython(root string) *python {
	return &python{Core: buildpack.NewCore("python", orderPython, root)}
}

func (p *python) Detect() bool {
	return exists(p.Root(), "requirements.txt") || exists(p.Root(), "setup.py")
}

func (p *python) Packages() []string {
	return []string{"python3", "python3-pip", "python3-venv"}
}

func (p *python) Env() []buildpack.EnvEntry {
	return []buildpack.EnvEntry{{Key: "VIRTUAL_ENV", Value: venvDir}}
}

func (p *python) Path() []string {
	return []string{venvDir + "/bin"}
}

func (p *python) BuildScripts() []buildpack.Script {
	return []buildpack.Script{
		{Privileged: true, Command: "python3 -m venv " + venvDir + " && chown -R ${KILN_UID}:${KILN_UID} " + venvDir},
		{Command: venvDir + "/bin/pip install --no-cache-dir --upgrade pip"},
	}
}

func (p *python) AssembleScripts() []buildpack.Script {
	var scripts []buildpack.Script
	if exists(p.Root(), "requirements.txt") {
		scripts = append(scripts, buildpack.Script{
			Command: venvDir + "/bin/pip install --no-cache-dir -r " + RepoDir + "/requirements.txt",
		})
	}
	if exists(p.Root(), "setup.py") {
		scripts = append(scripts, buildpack.Script{
			Command: venvDir + "/bin/pip install --no-cache-dir " + RepoDir,
		})
	}
	return scripts
}
