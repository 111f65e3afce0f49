package stacks

import "github.com/kilnworks/kiln/internal/buildpack"

// Handles repositories driven by Pipfile / Pipfile.lock.
//
// Specializes the python variant: pipenv reuses the virtualenv the python
// build scripts create.
type pipfile struct {
	buildpack.Core
}

func newPipfile(root string) *pipfile {
	return &pipfile{Core: buildpack.NewCore("pipfile", orderPipfile, root)}
}

func (p *pipfile) Detect() bool {
	return exists(p.Root(), "Pipfile") || exists(p.Root(), "Pipfile.lock")
}

func (p *pipfile) BuildScripts() []buildpack.Script {
	return []buildpack.Script{
		{Command: venvDir + "/bin/pip install --no-cache-dir pipenv"},
	}
}

func (p *pipfile) AssembleScripts() []buildpack.Script {
	deploy := ""
	if exists(p.Root(), "Pipfile.lock") {
		deploy = " --deploy"
	}
	return []buildpack.Script{
		{Command: "cd " + RepoDir + " && " + venvDir + "/bin/pipenv install --system" + deploy},
	}
}
