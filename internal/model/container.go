package model

import "time"

// Container states as reported by the engine.
const (
	ContainerCreated    = "created"
	ContainerRunning    = "running"
	ContainerPaused     = "paused"
	ContainerRestarting = "restarting"
	ContainerExited     = "exited"
	ContainerDead       = "dead"
)

// ContainerActive reports whether state counts as not stopped.
func ContainerActive(state string) bool {
	switch state {
	case ContainerRunning, ContainerPaused, ContainerRestarting:
		return true
	}
	return false
}

type Container struct {
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	Image    string            `json:"image"`
	State    string            `json:"state"`
	Status   string            `json:"status,omitempty"`
	Ports    []PortMapping     `json:"ports"`
	Volumes  []string          `json:"volumes"`
	Networks []string          `json:"networks"`
	Labels   map[string]string `json:"labels,omitempty"`
	Env      []string          `json:"env,omitempty"`
	Created  time.Time         `json:"created"`
}

type PortMapping struct {
	HostIP        string `json:"host_ip,omitempty"`
	HostPort      int    `json:"host_port"`
	ContainerPort int    `json:"container_port"`
	Protocol      string `json:"protocol"`
}

type Image struct {
	ID         string    `json:"id"`
	Tags       []string  `json:"tags"`
	Size       int64     `json:"size"`
	Containers int64     `json:"containers"`
	Created    time.Time `json:"created"`
}

type Volume struct {
	Name       string            `json:"name"`
	Driver     string            `json:"driver"`
	Mountpoint string            `json:"mountpoint"`
	Labels     map[string]string `json:"labels,omitempty"`
	CreatedAt  string            `json:"created_at,omitempty"`
}

// ContainerSpec describes a container to create.
type ContainerSpec struct {
	Name    string
	Image   string
	Env     map[string]string
	Ports   []PortMapping
	Volumes []string
	Labels  map[string]string
}

// Deployment is the registry's record of a container created from a template.
type Deployment struct {
	ContainerID string            `json:"container_id"`
	Name        string            `json:"name"`
	TemplateID  string            `json:"template_id"`
	Image       string            `json:"image"`
	Env         map[string]string `json:"env"`
	Requires    []ServiceRef      `json:"requires,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// ServiceRef pins a deployment to a host service version it depends on.
type ServiceRef struct {
	Service string `json:"service"`
	Version string `json:"version"`
}

type Network struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Driver     string            `json:"driver"`
	Scope      string            `json:"scope"`
	Internal   bool              `json:"internal"`
	Subnet     string            `json:"subnet,omitempty"`
	Gateway    string            `json:"gateway,omitempty"`
	Containers []string          `json:"containers"`
	Labels     map[string]string `json:"labels,omitempty"`
	Created    time.Time         `json:"created"`
}

// ContainerStats is a one-shot resource sample of a container.
type ContainerStats struct {
	CPUPercent    float64   `json:"cpu_percent"`
	MemoryUsage   uint64    `json:"memory_usage"`
	MemoryLimit   uint64    `json:"memory_limit"`
	MemoryPercent float64   `json:"memory_percent"`
	NetworkRx     uint64    `json:"network_rx"`
	NetworkTx     uint64    `json:"network_tx"`
	BlockRead     uint64    `json:"block_read"`
	BlockWrite    uint64    `json:"block_write"`
	PIDs          uint64    `json:"pids"`
	Read          time.Time `json:"read"`
}
