package runtime

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

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/strslice"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/archive"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
)

// DockerRuntime implements ContainerRuntime against a Docker daemon.
type DockerRuntime struct {
	cli *client.Client
}

// NewDockerRuntime connects to the Docker daemon using the standard
// environment configuration (DOCKER_HOST etc.).
func NewDockerRuntime() (*DockerRuntime, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("cannot connect to Docker daemon: %w", err)
	}
	return &DockerRuntime{cli: cli}, nil
}

func (r *DockerRuntime) BuildImage(ctx context.Context, contextDir, dockerfile, tag string) (string, string, error) {
	buildCtx, err := archive.TarWithOptions(contextDir, &archive.TarOptions{})
	if err != nil {
		return "", "", fmt.Errorf("cannot create build context archive: %w", err)
	}
	defer buildCtx.Close()

	resp, err := r.cli.ImageBuild(ctx, buildCtx, types.ImageBuildOptions{
		Dockerfile: dockerfile,
		Tags:       []string{tag},
		Remove:     true,
	})
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()

	// The build response is a stream of JSON messages; the image id arrives
	// in an aux message once the build succeeds.
	var logs strings.Builder
	var imageID string
	dec := json.NewDecoder(resp.Body)
	for {
		var msg struct {
			Stream string `json:"stream"`
			Error  string `json:"error"`
			Aux    struct {
				ID string `json:"ID"`
			} `json:"aux"`
		}
		if err := dec.Decode(&msg); err != nil {
			if err == io.EOF {
				break
			}
			return "", logs.String(), fmt.Errorf("malformed build output: %w", err)
		}
		if msg.Error != "" {
			return "", logs.String(), fmt.Errorf("image build failed: %s", msg.Error)
		}
		logs.WriteString(msg.Stream)
		if msg.Aux.ID != "" {
			imageID = msg.Aux.ID
		}
	}
	if imageID == "" {
		return "", logs.String(), fmt.Errorf("image build produced no image id")
	}
	return imageID, logs.String(), nil
}

func (r *DockerRuntime) RunContainer(ctx context.Context, cfg RunConfig) (Container, error) {
	portKey := nat.Port(fmt.Sprintf("%d/tcp", cfg.ContainerPort))

	var devices []container.DeviceMapping
	for _, d := range cfg.Devices {
		devices = append(devices, container.DeviceMapping{
			PathOnHost:        d,
			PathInContainer:   d,
			CgroupPermissions: "rwm",
		})
	}

	created, err := r.cli.ContainerCreate(ctx,
		&container.Config{
			Image:        cfg.Image,
			Cmd:          strslice.StrSlice(cfg.Command),
			Env:          flattenEnv(cfg.Env),
			ExposedPorts: nat.PortSet{portKey: struct{}{}},
		},
		&container.HostConfig{
			PortBindings: nat.PortMap{
				portKey: []nat.PortBinding{{HostPort: strconv.Itoa(int(cfg.HostPort))}},
			},
			ShmSize:   cfg.ShmSize,
			Resources: container.Resources{Devices: devices},
		},
		nil, nil, cfg.Name)
	if err != nil {
		return nil, fmt.Errorf("cannot create container %s: %w", cfg.Name, err)
	}
	if err := r.cli.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("cannot start container %s: %w", cfg.Name, err)
	}
	return &dockerContainer{cli: r.cli, id: created.ID, name: cfg.Name}, nil
}

func (r *DockerRuntime) GetContainer(ctx context.Context, name string) (Container, error) {
	inspect, err := r.cli.ContainerInspect(ctx, name)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return nil, fmt.Errorf("container %s: %w", name, ErrNotFound)
		}
		return nil, err
	}
	return &dockerContainer{cli: r.cli, id: inspect.ID, name: name}, nil
}

func (r *DockerRuntime) RemoveImage(ctx context.Context, ref string) error {
	_, err := r.cli.ImageRemove(ctx, ref, image.RemoveOptions{Force: true})
	if err != nil && errdefs.IsNotFound(err) {
		return fmt.Errorf("image %s: %w", ref, ErrNotFound)
	}
	return err
}

func flattenEnv(env map[string]string) []string {
	var out []string
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

type dockerContainer struct {
	cli  *client.Client
	id   string
	name string
}

func (c *dockerContainer) Name() string { return c.name }

func (c *dockerContainer) Status(ctx context.Context) (string, error) {
	inspect, err := c.cli.ContainerInspect(ctx, c.id)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return "", fmt.Errorf("container %s: %w", c.name, ErrNotFound)
		}
		return "", err
	}
	return inspect.State.Status, nil
}

func (c *dockerContainer) Logs(ctx context.Context, since time.Time) ([]byte, error) {
	rc, err := c.cli.ContainerLogs(ctx, c.id, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Since:      since.Format(time.RFC3339Nano),
	})
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	// Container output is multiplexed when the container has no TTY.
	var buf bytes.Buffer
	if _, err := stdcopy.StdCopy(&buf, &buf, rc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *dockerContainer) Stop(ctx context.Context, timeout time.Duration) error {
	secs := int(timeout.Seconds())
	return c.cli.ContainerStop(ctx, c.id, container.StopOptions{Timeout: &secs})
}

func (c *dockerContainer) Wait(ctx context.Context, timeout time.Duration) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	statusCh, errCh := c.cli.ContainerWait(waitCtx, c.id, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		return err
	case <-statusCh:
		return nil
	}
}

func (c *dockerContainer) Remove(ctx context.Context) error {
	err := c.cli.ContainerRemove(ctx, c.id, container.RemoveOptions{Force: true})
	if err != nil && errdefs.IsNotFound(err) {
		return fmt.Errorf("container %s: %w", c.name, ErrNotFound)
	}
	return err
}
