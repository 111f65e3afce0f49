package pipeline

import (
	"github.com/docker/go-connections/nat"
	"github.com/pkg/errors"
)

// Parses user-supplied port specifications into a port map.
//
// Accepted forms are "container[/proto]" and "host:container[/proto]".
// The protocol defaults to tcp. A container-only form maps to an empty
// host port, which the engine resolves to a random free port. Malformed
// specifications are configuration errors, raised before any engine call.
func parsePorts(specs []string) (nat.PortMap, error) {
	if len(specs) == 0 {
		return nil, nil
	}

	ports := make(nat.PortMap, len(specs))
	for _, spec := range specs {
		mappings, err := nat.ParsePortSpec(spec)
		if err != nil {
			return nil, errors.Wrapf(ErrConfig, "port %q: %v", spec, err)
		}
		for _, m := range mappings {
			ports[m.Port] = append(ports[m.Port], m.Binding)
		}
	}

	return ports, nil
}
