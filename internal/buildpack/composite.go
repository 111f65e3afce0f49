package buildpack

import (
	"log/slog"
	"maps"
	"sort"

	"github.com/pkg/errors"
)

// The merged contract of every buildpack that applies to a repository.
//
// A Composite satisfies [Buildpack] itself, so consumers read the combined
// contributions exactly as they would read a single variant's. The member
// list is fixed at composition time and never mutated afterwards.
type Composite struct {
	Core
	members []Buildpack
}

// Selects the applicable buildpacks from the catalog and merges them.
//
// Each catalog entry is instantiated fresh and asked to detect against the
// checkout root. Detected variants pull in their ancestors transitively, so
// a specialization always carries its generic base's contributions.
// Duplicates are removed, the survivors are sorted by ascending order value
// with catalog order breaking ties, and fresh instances are created for the
// merged set. Returns [ErrNoBuildpack] when nothing detects.
func Compose(catalog Catalog, root string) (*Composite, error) {
	selected := make(map[string]bool)

	for _, entry := range catalog {
		if !entry.New(root).Detect() {
			continue
		}
		slog.Debug("buildpack detected", "buildpack", entry.Name)
		if err := selectEntry(catalog, entry, selected); err != nil {
			return nil, err
		}
	}

	if len(selected) == 0 {
		return nil, ErrNoBuildpack
	}

	// Rebuild in catalog order so the later stable sort breaks order-value
	// ties deterministically.
	members := make([]Buildpack, 0, len(selected))
	for _, entry := range catalog {
		if selected[entry.Name] {
			members = append(members, entry.New(root))
		}
	}

	sort.SliceStable(members, func(i, j int) bool {
		return members[i].Order() < members[j].Order()
	})

	names := make([]string, len(members))
	for i, m := range members {
		names[i] = m.Name()
	}
	slog.Info("using buildpacks", "buildpacks", names)

	return &Composite{
		Core:    NewCore("composite", 0, root),
		members: members,
	}, nil
}

// Marks an entry and, transitively, its ancestors as selected.
//
// A variant reachable through multiple paths is recorded once.
func selectEntry(catalog Catalog, entry Entry, selected map[string]bool) error {
	if selected[entry.Name] {
		return nil
	}
	selected[entry.Name] = true

	for _, name := range entry.Ancestors {
		ancestor, ok := catalog.lookup(name)
		if !ok {
			return errors.Wrapf(ErrUnknownAncestor, "%s needs %s", entry.Name, name)
		}
		if err := selectEntry(catalog, ancestor, selected); err != nil {
			return err
		}
	}
	return nil
}

// Returns the member buildpack names in merge order.
func (c *Composite) Members() []string {
	names := make([]string, len(c.members))
	for i, m := range c.members {
		names[i] = m.Name()
	}
	return names
}

// A composite with members always applies.
func (c *Composite) Detect() bool {
	return len(c.members) > 0
}

// Returns the last non-empty base image contribution in merge order, so a
// specialization's choice overrides its ancestors'.
func (c *Composite) BaseImage() string {
	image := ""
	for _, m := range c.members {
		if v := m.BaseImage(); v != "" {
			image = v
		}
	}
	return image
}

// Returns the union of all package contributions, ordered by first
// occurrence in merge order.
func (c *Composite) Packages() []string {
	return c.union(Buildpack.Packages)
}

// Returns the union of all base package contributions, ordered by first
// occurrence in merge order.
func (c *Composite) BasePackages() []string {
	return c.union(Buildpack.BasePackages)
}

// Returns all build-time environment entries concatenated in merge order.
func (c *Composite) BuildEnv() []EnvEntry {
	var env []EnvEntry
	for _, m := range c.members {
		env = append(env, m.BuildEnv()...)
	}
	return env
}

// Returns all build-and-run environment entries concatenated in merge order.
func (c *Composite) Env() []EnvEntry {
	var env []EnvEntry
	for _, m := range c.members {
		env = append(env, m.Env()...)
	}
	return env
}

// Returns all PATH contributions concatenated in merge order.
func (c *Composite) Path() []string {
	var path []string
	for _, m := range c.members {
		path = append(path, m.Path()...)
	}
	return path
}

// Returns the union of all declared build argument names, ordered by first
// occurrence in merge order.
func (c *Composite) BuildArgs() []string {
	return c.union(Buildpack.BuildArgs)
}

// Returns all build script files merged by name, last writer wins.
func (c *Composite) BuildScriptFiles() map[string]string {
	return c.files(Buildpack.BuildScriptFiles)
}

// Returns all preassemble script files merged by name, last writer wins.
func (c *Composite) PreassembleScriptFiles() map[string]string {
	return c.files(Buildpack.PreassembleScriptFiles)
}

// Returns all build scripts concatenated in merge order.
func (c *Composite) BuildScripts() []Script {
	return c.scripts(Buildpack.BuildScripts)
}

// Returns all preassemble scripts concatenated in merge order.
func (c *Composite) PreassembleScripts() []Script {
	return c.scripts(Buildpack.PreassembleScripts)
}

// Returns all assemble scripts concatenated in merge order.
func (c *Composite) AssembleScripts() []Script {
	return c.scripts(Buildpack.AssembleScripts)
}

// Returns all post-build scripts concatenated in merge order.
func (c *Composite) PostBuildScripts() []Script {
	return c.scripts(Buildpack.PostBuildScripts)
}

// Merges a string-set accessor across members: union, first occurrence
// keeps its position.
func (c *Composite) union(get func(Buildpack) []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, m := range c.members {
		for _, v := range get(m) {
			if seen[v] {
				continue
			}
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

// Merges a script-file accessor across members: last writer wins per name.
func (c *Composite) files(get func(Buildpack) map[string]string) map[string]string {
	out := make(map[string]string)
	for _, m := range c.members {
		maps.Copy(out, get(m))
	}
	return out
}

// Merges a script-sequence accessor across members by concatenation.
func (c *Composite) scripts(get func(Buildpack) []Script) []Script {
	var out []Script
	for _, m := range c.members {
		out = append(out, get(m)...)
	}
	return out
}
