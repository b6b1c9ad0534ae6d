package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/api/types/volume"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
	"github.com/rs/zerolog"

	"github.com/edvin/panel/internal/core"
	"github.com/edvin/panel/internal/model"
)

// LabelManaged marks containers created by the panel.
const LabelManaged = "panel.managed"

// Docker implements Backend against the Docker Engine API.
type Docker struct {
	cli    *client.Client
	logger zerolog.Logger
}

// NewDocker connects to the engine at host, or to the one described by the
// DOCKER_* environment when host is empty.
func NewDocker(host string, logger zerolog.Logger) (*Docker, error) {
	opts := []client.Opt{
		client.FromEnv,
		client.WithAPIVersionNegotiation(),
	}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}
	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return &Docker{cli: cli, logger: logger.With().Str("component", "docker").Logger()}, nil
}

func (d *Docker) Close() error {
	return d.cli.Close()
}

func (d *Docker) Ping(ctx context.Context) error {
	if _, err := d.cli.Ping(ctx); err != nil {
		return core.Wrap(core.Unavailable, err, "docker daemon not reachable")
	}
	return nil
}

func (d *Docker) ListContainers(ctx context.Context) ([]model.Container, error) {
	list, err := d.cli.ContainerList(ctx, container.ListOptions{All: true})
	if err != nil {
		return nil, fmt.Errorf("list containers: %w", err)
	}
	out := make([]model.Container, 0, len(list))
	for _, c := range list {
		out = append(out, fromSummary(c))
	}
	return out, nil
}

func fromSummary(c container.Summary) model.Container {
	mc := model.Container{
		ID:       c.ID,
		Image:    c.Image,
		State:    c.State,
		Status:   c.Status,
		Labels:   c.Labels,
		Created:  time.Unix(c.Created, 0).UTC(),
		Ports:    make([]model.PortMapping, 0, len(c.Ports)),
		Volumes:  make([]string, 0, len(c.Mounts)),
		Networks: []string{},
	}
	if len(c.Names) > 0 {
		mc.Name = strings.TrimPrefix(c.Names[0], "/")
	}
	for _, p := range c.Ports {
		mc.Ports = append(mc.Ports, model.PortMapping{
			HostIP:        p.IP,
			HostPort:      int(p.PublicPort),
			ContainerPort: int(p.PrivatePort),
			Protocol:      p.Type,
		})
	}
	for _, m := range c.Mounts {
		src := m.Name
		if src == "" {
			src = m.Source
		}
		mc.Volumes = append(mc.Volumes, src+":"+m.Destination)
	}
	if c.NetworkSettings != nil {
		for name := range c.NetworkSettings.Networks {
			mc.Networks = append(mc.Networks, name)
		}
		sort.Strings(mc.Networks)
	}
	return mc
}

func (d *Docker) ListImages(ctx context.Context) ([]model.Image, error) {
	list, err := d.cli.ImageList(ctx, image.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	out := make([]model.Image, 0, len(list))
	for _, img := range list {
		tags := img.RepoTags
		if tags == nil {
			tags = []string{}
		}
		out = append(out, model.Image{
			ID:         img.ID,
			Tags:       tags,
			Size:       img.Size,
			Containers: img.Containers,
			Created:    time.Unix(img.Created, 0).UTC(),
		})
	}
	return out, nil
}

func (d *Docker) ListVolumes(ctx context.Context) ([]model.Volume, error) {
	resp, err := d.cli.VolumeList(ctx, volume.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("list volumes: %w", err)
	}
	out := make([]model.Volume, 0, len(resp.Volumes))
	for _, v := range resp.Volumes {
		if v == nil {
			continue
		}
		out = append(out, fromVolume(*v))
	}
	return out, nil
}

func fromVolume(v volume.Volume) model.Volume {
	return model.Volume{
		Name:       v.Name,
		Driver:     v.Driver,
		Mountpoint: v.Mountpoint,
		Labels:     v.Labels,
		CreatedAt:  v.CreatedAt,
	}
}

func (d *Docker) Inspect(ctx context.Context, id string) (model.Container, error) {
	info, err := d.cli.ContainerInspect(ctx, id)
	if err != nil {
		return model.Container{}, engineError(err, "inspect container %s", id)
	}

	c := model.Container{
		Ports:    []model.PortMapping{},
		Volumes:  []string{},
		Networks: []string{},
	}
	if info.ContainerJSONBase != nil {
		c.ID = info.ID
		c.Name = strings.TrimPrefix(info.Name, "/")
		if t, err := time.Parse(time.RFC3339Nano, info.Created); err == nil {
			c.Created = t.UTC()
		}
		if info.State != nil {
			c.State = info.State.Status
		}
	}
	if info.Config != nil {
		c.Image = info.Config.Image
		c.Labels = info.Config.Labels
		c.Env = info.Config.Env
	}
	for _, m := range info.Mounts {
		src := m.Name
		if src == "" {
			src = m.Source
		}
		c.Volumes = append(c.Volumes, src+":"+m.Destination)
	}
	if info.NetworkSettings != nil {
		for name := range info.NetworkSettings.Networks {
			c.Networks = append(c.Networks, name)
		}
		sort.Strings(c.Networks)
		for port, bindings := range info.NetworkSettings.Ports {
			for _, b := range bindings {
				hp, _ := strconv.Atoi(b.HostPort)
				c.Ports = append(c.Ports, model.PortMapping{
					HostIP:        b.HostIP,
					HostPort:      hp,
					ContainerPort: port.Int(),
					Protocol:      port.Proto(),
				})
			}
		}
	}
	return c, nil
}

func (d *Docker) Start(ctx context.Context, id string) error {
	if err := d.cli.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		return engineError(err, "start container %s", id)
	}
	return nil
}

func (d *Docker) Stop(ctx context.Context, id string) error {
	if err := d.cli.ContainerStop(ctx, id, container.StopOptions{}); err != nil {
		return engineError(err, "stop container %s", id)
	}
	return nil
}

func (d *Docker) Restart(ctx context.Context, id string) error {
	if err := d.cli.ContainerRestart(ctx, id, container.StopOptions{}); err != nil {
		return engineError(err, "restart container %s", id)
	}
	return nil
}

func (d *Docker) Remove(ctx context.Context, id string, force bool) error {
	if err := d.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: force}); err != nil {
		return engineError(err, "remove container %s", id)
	}
	return nil
}

// Logs returns the last tail lines of stdout and stderr. Non-TTY output is
// demultiplexed from the engine's framed stream.
func (d *Docker) Logs(ctx context.Context, id string, tail int) (string, error) {
	info, err := d.cli.ContainerInspect(ctx, id)
	if err != nil {
		return "", engineError(err, "inspect container %s", id)
	}

	reader, err := d.cli.ContainerLogs(ctx, id, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Tail:       strconv.Itoa(tail),
	})
	if err != nil {
		return "", engineError(err, "logs of container %s", id)
	}
	defer reader.Close()

	var buf bytes.Buffer
	if info.Config != nil && info.Config.Tty {
		_, err = io.Copy(&buf, reader)
	} else {
		_, err = stdcopy.StdCopy(&buf, &buf, reader)
	}
	if err != nil {
		return "", fmt.Errorf("read logs of %s: %w", id, err)
	}
	return buf.String(), nil
}

func (d *Docker) PullImage(ctx context.Context, ref string) error {
	reader, err := d.cli.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return engineError(err, "pull image %s", ref)
	}
	defer reader.Close()
	// Drain the pull output; the pull is finished when the stream ends.
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return fmt.Errorf("pull image %s: %w", ref, err)
	}
	d.logger.Debug().Str("image", ref).Msg("image pulled")
	return nil
}

func (d *Docker) Create(ctx context.Context, spec model.ContainerSpec) (string, error) {
	env := make([]string, 0, len(spec.Env))
	for k, v := range spec.Env {
		env = append(env, k+"="+v)
	}
	sort.Strings(env)

	exposedPorts := nat.PortSet{}
	portBindings := nat.PortMap{}
	for _, pm := range spec.Ports {
		proto := pm.Protocol
		if proto == "" {
			proto = "tcp"
		}
		cp, err := nat.NewPort(proto, strconv.Itoa(pm.ContainerPort))
		if err != nil {
			return "", core.Wrap(core.InvalidInput, err, "port %d", pm.ContainerPort)
		}
		exposedPorts[cp] = struct{}{}
		hostPort := strconv.Itoa(pm.HostPort)
		if pm.HostPort == 0 {
			hostPort = "" // let Docker pick an ephemeral port
		}
		portBindings[cp] = append(portBindings[cp], nat.PortBinding{HostIP: pm.HostIP, HostPort: hostPort})
	}

	labels := map[string]string{LabelManaged: "true"}
	for k, v := range spec.Labels {
		labels[k] = v
	}

	config := &container.Config{
		Image:        spec.Image,
		Env:          env,
		ExposedPorts: exposedPorts,
		Labels:       labels,
	}
	hostConfig := &container.HostConfig{
		PortBindings:  portBindings,
		Binds:         spec.Volumes,
		RestartPolicy: container.RestartPolicy{Name: container.RestartPolicyUnlessStopped},
	}

	resp, err := d.cli.ContainerCreate(ctx, config, hostConfig, nil, nil, spec.Name)
	if err != nil {
		return "", engineError(err, "create container %s", spec.Name)
	}
	for _, w := range resp.Warnings {
		d.logger.Warn().Str("container", spec.Name).Msg(w)
	}
	return resp.ID, nil
}

func (d *Docker) RemoveImage(ctx context.Context, id string, force bool) error {
	if _, err := d.cli.ImageRemove(ctx, id, image.RemoveOptions{Force: force, PruneChildren: true}); err != nil {
		return engineError(err, "remove image %s", id)
	}
	return nil
}

func (d *Docker) CreateVolume(ctx context.Context, name string) (model.Volume, error) {
	v, err := d.cli.VolumeCreate(ctx, volume.CreateOptions{
		Name:   name,
		Labels: map[string]string{LabelManaged: "true"},
	})
	if err != nil {
		return model.Volume{}, engineError(err, "create volume %s", name)
	}
	return fromVolume(v), nil
}

func (d *Docker) RemoveVolume(ctx context.Context, name string, force bool) error {
	if err := d.cli.VolumeRemove(ctx, name, force); err != nil {
		return engineError(err, "remove volume %s", name)
	}
	return nil
}

// Stats takes a single stats sample. CPU percent is computed against the
// previous sample the engine includes in a one-shot read.
func (d *Docker) Stats(ctx context.Context, id string) (model.ContainerStats, error) {
	resp, err := d.cli.ContainerStatsOneShot(ctx, id)
	if err != nil {
		return model.ContainerStats{}, engineError(err, "stats of container %s", id)
	}
	defer resp.Body.Close()

	var st container.StatsResponse
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return model.ContainerStats{}, fmt.Errorf("decode stats of %s: %w", id, err)
	}
	return fromStats(st), nil
}

func fromStats(st container.StatsResponse) model.ContainerStats {
	out := model.ContainerStats{
		MemoryUsage: st.MemoryStats.Usage,
		MemoryLimit: st.MemoryStats.Limit,
		PIDs:        st.PidsStats.Current,
		Read:        st.Read,
	}

	// Page cache is reclaimable; cgroup v2 reports it as inactive_file.
	if cache, ok := st.MemoryStats.Stats["inactive_file"]; ok && cache < out.MemoryUsage {
		out.MemoryUsage -= cache
	}
	if out.MemoryLimit > 0 {
		out.MemoryPercent = float64(out.MemoryUsage) / float64(out.MemoryLimit) * 100
	}

	cpus := float64(st.CPUStats.OnlineCPUs)
	if cpus == 0 {
		cpus = float64(len(st.CPUStats.CPUUsage.PercpuUsage))
	}
	cpuDelta := float64(st.CPUStats.CPUUsage.TotalUsage) - float64(st.PreCPUStats.CPUUsage.TotalUsage)
	sysDelta := float64(st.CPUStats.SystemUsage) - float64(st.PreCPUStats.SystemUsage)
	if cpuDelta > 0 && sysDelta > 0 {
		out.CPUPercent = cpuDelta / sysDelta * cpus * 100
	}

	for _, n := range st.Networks {
		out.NetworkRx += n.RxBytes
		out.NetworkTx += n.TxBytes
	}
	for _, e := range st.BlkioStats.IoServiceBytesRecursive {
		switch strings.ToLower(e.Op) {
		case "read":
			out.BlockRead += e.Value
		case "write":
			out.BlockWrite += e.Value
		}
	}
	return out
}

func (d *Docker) ListNetworks(ctx context.Context) ([]model.Network, error) {
	list, err := d.cli.NetworkList(ctx, network.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("list networks: %w", err)
	}
	out := make([]model.Network, 0, len(list))
	for _, n := range list {
		out = append(out, fromNetwork(n))
	}
	return out, nil
}

func fromNetwork(n network.Summary) model.Network {
	mn := model.Network{
		ID:         n.ID,
		Name:       n.Name,
		Driver:     n.Driver,
		Scope:      n.Scope,
		Internal:   n.Internal,
		Labels:     n.Labels,
		Created:    n.Created.UTC(),
		Containers: make([]string, 0, len(n.Containers)),
	}
	if len(n.IPAM.Config) > 0 {
		mn.Subnet = n.IPAM.Config[0].Subnet
		mn.Gateway = n.IPAM.Config[0].Gateway
	}
	for _, ep := range n.Containers {
		mn.Containers = append(mn.Containers, ep.Name)
	}
	sort.Strings(mn.Containers)
	return mn
}

func (d *Docker) CreateNetwork(ctx context.Context, name, driver string, internal bool) (model.Network, error) {
	resp, err := d.cli.NetworkCreate(ctx, name, network.CreateOptions{
		Driver:   driver,
		Internal: internal,
		Labels:   map[string]string{LabelManaged: "true"},
	})
	if err != nil {
		return model.Network{}, engineError(err, "create network %s", name)
	}
	if resp.Warning != "" {
		d.logger.Warn().Str("network", name).Msg(resp.Warning)
	}
	n, err := d.cli.NetworkInspect(ctx, resp.ID, network.InspectOptions{})
	if err != nil {
		return model.Network{}, engineError(err, "inspect network %s", name)
	}
	return fromNetwork(n), nil
}

func (d *Docker) RemoveNetwork(ctx context.Context, id string) error {
	if err := d.cli.NetworkRemove(ctx, id); err != nil {
		return engineError(err, "remove network %s", id)
	}
	return nil
}

func (d *Docker) ConnectNetwork(ctx context.Context, net, containerID string) error {
	if err := d.cli.NetworkConnect(ctx, net, containerID, nil); err != nil {
		return engineError(err, "connect %s to network %s", containerID, net)
	}
	return nil
}

func (d *Docker) DisconnectNetwork(ctx context.Context, net, containerID string, force bool) error {
	if err := d.cli.NetworkDisconnect(ctx, net, containerID, force); err != nil {
		return engineError(err, "disconnect %s from network %s", containerID, net)
	}
	return nil
}

// engineError maps engine error classes onto panel kinds.
func engineError(err error, format string, args ...any) error {
	switch {
	case errdefs.IsNotFound(err):
		return core.Wrap(core.NotFound, err, format, args...)
	case errdefs.IsConflict(err):
		return core.Wrap(core.Conflict, err, format, args...)
	case errdefs.IsInvalidParameter(err):
		return core.Wrap(core.InvalidInput, err, format, args...)
	default:
		return fmt.Errorf(format+": %w", append(args, err)...)
	}
}

var _ Backend = (*Docker)(nil)
