package catalog

import (
	"fmt"
	"strconv"

	"github.com/docker/go-connections/nat"

	"github.com/edvin/panel/internal/model"
)

// ParsePort parses a "[ip:]host:container[/proto]" mapping in the engine's
// publish syntax. A bare "container" port publishes on an ephemeral host
// port. Ranges are not accepted.
func ParsePort(s string) (model.PortMapping, error) {
	specs, err := nat.ParsePortSpec(s)
	if err != nil {
		return model.PortMapping{}, fmt.Errorf("port %q: %w", s, err)
	}
	if len(specs) != 1 {
		return model.PortMapping{}, fmt.Errorf("port %q: ranges are not supported", s)
	}

	spec := specs[0]
	pm := model.PortMapping{
		HostIP:        spec.Binding.HostIP,
		ContainerPort: spec.Port.Int(),
		Protocol:      spec.Port.Proto(),
	}
	if pm.Protocol != "tcp" && pm.Protocol != "udp" {
		return pm, fmt.Errorf("port %q: unknown protocol %q", s, pm.Protocol)
	}
	if pm.ContainerPort < 1 {
		return pm, fmt.Errorf("port %q: invalid container port", s)
	}
	if spec.Binding.HostPort != "" {
		h, err := strconv.Atoi(spec.Binding.HostPort)
		if err != nil || h < 1 || h > 65535 {
			return pm, fmt.Errorf("port %q: invalid host port", s)
		}
		pm.HostPort = h
	}
	return pm, nil
}
