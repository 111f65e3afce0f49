package config

import (
	"log/slog"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/kilnworks/kiln/internal/paths"
	"github.com/kilnworks/kiln/internal/pipeline"
)

// Name of the configuration file looked up in the working directory.
const localFile = "kiln.yaml"

var ErrConfig = errors.New("loading configuration failed")

// Persistent defaults merged into every build request.
type File struct {
	Engine      string            `yaml:"engine"`
	Labels      map[string]string `yaml:"labels"`
	BuildArgs   map[string]string `yaml:"build_args"`
	CacheFrom   []string          `yaml:"cache_from"`
	MemoryLimit string            `yaml:"build_memory_limit"`
	TargetDir   string            `yaml:"target_repo_dir"`
	Appendix    string            `yaml:"appendix"`
}

// Loads a configuration file.
//
// An explicit path must exist. Without one, the working directory is tried
// first and the user-level file second; when neither exists the zero value
// is returned, so callers always get usable defaults.
func Load(path string) (*File, error) {
	if path != "" {
		return read(path)
	}

	for _, candidate := range []string{localFile, paths.ConfigFile()} {
		if _, err := os.Stat(candidate); err == nil {
			return read(candidate)
		}
	}

	return &File{}, nil
}

// Reads and decodes one configuration file.
func read(path string) (*File, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(ErrConfig, err.Error())
	}

	var f File
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, errors.Wrapf(ErrConfig, "%s: %v", path, err)
	}

	slog.Debug("configuration loaded", "path", path)
	return &f, nil
}

// Merges the file's defaults into a request.
//
// Only fields the request leaves unset are filled; flags always win over
// file values.
func (f *File) Apply(req *pipeline.Request) {
	if req.Engine == "" {
		req.Engine = f.Engine
	}
	if req.MemoryLimit == "" {
		req.MemoryLimit = f.MemoryLimit
	}
	if f.TargetDir != "" && req.TargetDir == pipeline.DefaultTargetDir {
		req.TargetDir = f.TargetDir
	}
	if req.Appendix == "" {
		req.Appendix = f.Appendix
	}

	for key, value := range f.Labels {
		if _, ok := req.Labels[key]; !ok {
			req.Labels[key] = value
		}
	}
	for key, value := range f.BuildArgs {
		if _, ok := req.BuildArgs[key]; !ok {
			req.BuildArgs[key] = value
		}
	}

	if len(req.CacheFrom) == 0 {
		req.CacheFrom = f.CacheFrom
	}
}
