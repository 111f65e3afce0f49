package pipeline

import (
	"os"
	"path/filepath"

	"github.com/docker/go-connections/nat"
	units "github.com/docker/go-units"
	"github.com/pkg/errors"
)

// Default directory inside the image the repository is copied to.
const DefaultTargetDir = "/srv/repo"

// Configuration for one pipeline invocation.
//
// A request is mutated only during the configuration phase. Validate
// resolves the raw fields into their parsed forms and enforces the
// combination rules; after that the pipeline treats the request as
// read-only.
type Request struct {
	Repo   string // Repository reference: local path or git URL.
	Ref    string // Git reference to check out; empty for the default.
	Subdir string // Subdirectory of the repository to build from.

	ImageName string // Target image name; autogenerated after fetch when empty.

	DryRun        bool // Stop after detection and rendering.
	Run           bool // Run the container after building.
	Push          bool // Push the image after building.
	CleanCheckout bool // Remove fetched checkouts when done.
	Editable      bool // Mount the local repository instead of relying on the copy.

	RunCommand  []string          // Command to run in the container.
	Ports       []string          // Raw port specifications.
	PublishAll  bool              // Publish all exposed ports to random host ports.
	Volumes     map[string]string // Host path to container path mounts.
	Environment []string          // "key=value" entries for the running container.

	Labels      map[string]string // Extra labels for the image.
	BuildArgs   map[string]string // Extra build arguments.
	MemoryLimit string            // Raw build memory limit (e.g. "2g").
	CacheFrom   []string          // Images to reuse build cache from.

	Engine    string // Engine backend selection; empty for automatic.
	UserID    int    // Primary image user ID.
	UserName  string // Primary image user name.
	TargetDir string // Directory inside the image for the repository.
	Appendix  string // Extra build instructions appended to the Dockerfile.

	portMap     nat.PortMap // Parsed form of Ports.
	memoryBytes int64       // Parsed form of MemoryLimit.
}

// Creates a request with the defaults of a plain "build and run" call.
func NewRequest(repo string) *Request {
	return &Request{
		Repo:          repo,
		Run:           true,
		CleanCheckout: true,
		Volumes:       make(map[string]string),
		Labels:        make(map[string]string),
		BuildArgs:     make(map[string]string),
		UserID:        os.Getuid(),
		UserName:      defaultUserName(),
		TargetDir:     DefaultTargetDir,
	}
}

// Resolves raw fields and enforces the configuration rules.
//
// All violations surface here, before the repository is fetched and before
// any engine call. A dry run forces push and run off instead of failing.
func (r *Request) Validate() error {
	if r.Repo == "" {
		return errors.Wrap(ErrConfig, "no repository given")
	}

	if r.DryRun {
		r.Run = false
		r.Push = false
	}

	if r.Editable {
		info, err := os.Stat(r.Repo)
		if err != nil || !info.IsDir() {
			return errors.Wrapf(ErrConfig, "cannot mount %q in editable mode: not a directory", r.Repo)
		}
		abs, err := filepath.Abs(r.Repo)
		if err != nil {
			return errors.Wrap(ErrConfig, err.Error())
		}
		r.Volumes[abs] = r.TargetDir
	}

	if len(r.Volumes) > 0 && !r.Run {
		return errors.Wrap(ErrConfig, "mounting volumes requires running the container")
	}
	if len(r.Environment) > 0 && !r.Run {
		return errors.Wrap(ErrConfig, "run-time environment variables require running the container")
	}
	if (len(r.Ports) > 0 || r.PublishAll) && !r.Run {
		return errors.Wrap(ErrConfig, "publishing ports requires running the container")
	}
	if len(r.Ports) > 0 && len(r.RunCommand) == 0 {
		return errors.Wrap(ErrConfig, "publishing ports requires a command to run in the container")
	}

	// A running container must never default to elevated privilege.
	if r.UserID == 0 && !r.DryRun {
		return errors.Wrap(ErrConfig, "root as the primary user in the image is not permitted")
	}

	ports, err := parsePorts(r.Ports)
	if err != nil {
		return err
	}
	r.portMap = ports

	if r.MemoryLimit != "" {
		bytes, err := units.RAMInBytes(r.MemoryLimit)
		if err != nil {
			return errors.Wrapf(ErrConfig, "memory limit %q: %v", r.MemoryLimit, err)
		}
		r.memoryBytes = bytes
	}

	return nil
}

// Returns the parsed port map. Only valid after Validate.
func (r *Request) PortMap() nat.PortMap {
	return r.portMap
}

// Returns the parsed build memory limit in bytes. Only valid after
// Validate; zero means unlimited.
func (r *Request) MemoryBytes() int64 {
	return r.memoryBytes
}

// Returns the invoking user's name, or a fixed fallback when it cannot be
// determined.
func defaultUserName() string {
	if name := os.Getenv("USER"); name != "" {
		return name
	}
	return "kiln"
}
