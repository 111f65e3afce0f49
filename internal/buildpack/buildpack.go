package buildpack

// An ordered build instruction contributed by a buildpack.
type Script struct {
	Privileged bool   // Run as root rather than the primary image user.
	Command    string // Shell command text.
}

// A single key/value environment contribution.
//
// Entries are kept as an ordered sequence rather than a map: later
// buildpacks may shadow earlier keys at consumption time, but the merged
// order must stay deterministic.
type EnvEntry struct {
	Key   string
	Value string
}

// The contract every buildpack variant implements.
//
// Detection must be side-effect free apart from logging; instances are
// created fresh for detection and again for the merged set, so no state
// may survive between the two.
type Buildpack interface {

	// Identity of the variant, unique within a catalog.
	Name() string

	// Ordering key. Lower values apply first when multiple buildpacks
	// compose, so generic variants use low values and specializations
	// higher ones.
	Order() int

	// Whether this buildpack applies to the repository checkout.
	Detect() bool

	// Base image for the generated build instructions. Empty means no
	// opinion; the last non-empty contribution in merge order wins.
	BaseImage() string

	// Package identifiers to install during the build.
	Packages() []string

	// Package identifiers required by the base image itself.
	BasePackages() []string

	// Environment for build time only.
	BuildEnv() []EnvEntry

	// Environment for both build and run time.
	Env() []EnvEntry

	// Entries prepended to PATH inside the image.
	Path() []string

	// Names of build arguments the build instructions declare.
	BuildArgs() []string

	// Script files copied into the image before the build scripts run,
	// keyed by their logical name.
	BuildScriptFiles() map[string]string

	// Script files available to the preassemble scripts, keyed by their
	// logical name.
	PreassembleScriptFiles() map[string]string

	// Scripts that prepare the base system.
	BuildScripts() []Script

	// Scripts that run before the repository contents are copied in.
	PreassembleScripts() []Script

	// Scripts that run after the repository contents are copied in.
	AssembleScripts() []Script

	// Scripts that run at the very end of the build.
	PostBuildScripts() []Script
}

// Embeddable no-op implementation of the contract.
//
// Variants embed Core and override the accessors they contribute to.
type Core struct {
	name  string
	order int
	root  string
}

// Creates a [Core] bound to a repository checkout.
func NewCore(name string, order int, root string) Core {
	return Core{name: name, order: order, root: root}
}

// Returns the variant name.
func (c Core) Name() string { return c.name }

// Returns the ordering key.
func (c Core) Order() int { return c.order }

// Returns the repository checkout root this instance inspects.
func (c Core) Root() string { return c.root }

// Defaults to not applying; variants reachable only through the ancestor
// relation keep this.
func (c Core) Detect() bool { return false }

func (c Core) BaseImage() string                         { return "" }
func (c Core) Packages() []string                        { return nil }
func (c Core) BasePackages() []string                    { return nil }
func (c Core) BuildEnv() []EnvEntry                      { return nil }
func (c Core) Env() []EnvEntry                           { return nil }
func (c Core) Path() []string                            { return nil }
func (c Core) BuildArgs() []string                       { return nil }
func (c Core) BuildScriptFiles() map[string]string       { return nil }
func (c Core) PreassembleScriptFiles() map[string]string { return nil }
func (c Core) BuildScripts() []Script                    { return nil }
func (c Core) PreassembleScripts() []Script              { return nil }
func (c Core) AssembleScripts() []Script                 { return nil }
func (c Core) PostBuildScripts() []Script                { return nil }
