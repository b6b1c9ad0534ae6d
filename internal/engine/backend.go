// Package engine manages containers on the local container engine. Backend
// is the raw engine API; Engine adds per-container serialisation, lifecycle
// timeouts and registry bookkeeping on top of it.
package engine

import (
	"context"

	"github.com/edvin/panel/internal/model"
)

// Backend is the subset of the container engine API the panel uses. Every
// list call goes to the engine; nothing is cached.
type Backend interface {
	Ping(ctx context.Context) error

	ListContainers(ctx context.Context) ([]model.Container, error)
	ListImages(ctx context.Context) ([]model.Image, error)
	ListVolumes(ctx context.Context) ([]model.Volume, error)

	Inspect(ctx context.Context, id string) (model.Container, error)
	Start(ctx context.Context, id string) error
	Stop(ctx context.Context, id string) error
	Restart(ctx context.Context, id string) error
	Remove(ctx context.Context, id string, force bool) error
	Logs(ctx context.Context, id string, tail int) (string, error)
	Stats(ctx context.Context, id string) (model.ContainerStats, error)

	PullImage(ctx context.Context, ref string) error
	Create(ctx context.Context, spec model.ContainerSpec) (string, error)

	RemoveImage(ctx context.Context, id string, force bool) error
	CreateVolume(ctx context.Context, name string) (model.Volume, error)
	RemoveVolume(ctx context.Context, name string, force bool) error

	ListNetworks(ctx context.Context) ([]model.Network, error)
	CreateNetwork(ctx context.Context, name, driver string, internal bool) (model.Network, error)
	RemoveNetwork(ctx context.Context, id string) error
	ConnectNetwork(ctx context.Context, network, containerID string) error
	DisconnectNetwork(ctx context.Context, network, containerID string, force bool) error
}
