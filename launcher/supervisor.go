package launcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/alessio/shellescape"

	"github.com/modelserving/tgi-container-tests/framework"
	"github.com/modelserving/tgi-container-tests/runtime"
	"github.com/modelserving/tgi-container-tests/servicedef"
)

const (
	// stopTimeout bounds both the graceful stop and the wait that follows it
	// during teardown. It is independent of the health-check timeout.
	stopTimeout = 60 * time.Second

	// containerPort is the port the TGI router listens on inside the container.
	containerPort = 80

	shmSize = 1 << 30 // 1G

	cacheRepoID     = "optimum/neuron-testing-cache"
	serviceLogLevel = "info,text_generation_router=debug"
)

// tuningVariables is the fixed allow-list of performance-tuning variables
// forwarded into the container, and only when set in the harness's own
// environment. Nothing else from the host environment leaks in.
var tuningVariables = []string{
	"HF_BATCH_SIZE",
	"HF_SEQUENCE_LENGTH",
	"HF_AUTO_CAST_TYPE",
	"HF_NUM_CORES",
}

var osLookupEnv = os.LookupEnv

// ContainerHandle owns the runtime reference to one running service
// container. Only the Supervisor that created it may stop or remove it.
type ContainerHandle struct {
	Name      string
	Port      uint16
	Container runtime.Container
}

// ContainerName computes the unique container name for a service and port.
// Uniqueness within a run comes from the randomized port; collisions with
// stale containers from aborted earlier runs are handled at start time.
func ContainerName(service string, port uint16) string {
	return fmt.Sprintf("tgi-tests-%s-%d", service, port)
}

// Supervisor starts service containers and guarantees their removal.
type Supervisor struct {
	Runtime runtime.ContainerRuntime
	Logger  framework.Logger
}

// Start runs a new detached service container. If a container with the
// computed name already exists, it is first stopped and waited on; that is
// stale state from a previous aborted run, and "not found" is not an error.
func (s *Supervisor) Start(
	ctx context.Context,
	image ImageRef,
	spec servicedef.ServiceSpec,
	modelID string,
	port uint16,
	devices []string,
) (*ContainerHandle, error) {
	name := ContainerName(spec.Service, port)

	stale, err := s.Runtime.GetContainer(ctx, name)
	switch {
	case err == nil:
		s.Logger.Printf("Found stale container %s from a previous run, stopping it", name)
		if err := stale.Stop(ctx, stopTimeout); err != nil {
			s.Logger.Printf("Ignoring error while stopping stale container %s: %s", name, err)
		}
		if err := stale.Wait(ctx, stopTimeout); err != nil {
			s.Logger.Printf("Ignoring error while waiting for stale container %s: %s", name, err)
		}
	case errors.Is(err, runtime.ErrNotFound):
		// Nothing to clean up.
	default:
		return nil, fmt.Errorf("checking for stale container %s: %w", name, err)
	}

	args := []string{"--model-id", modelID, "--env"}
	if spec.TrustRemoteCode {
		args = append(args, "--trust-remote-code")
	}

	s.Logger.Printf("Starting container %s: %s", name, commandLine(image.Tag, args))
	c, err := s.Runtime.RunContainer(ctx, runtime.RunConfig{
		Image:         image.Tag,
		Name:          name,
		Command:       args,
		Env:           ComposeEnv(spec, osLookupEnv),
		ContainerPort: containerPort,
		HostPort:      port,
		Devices:       devices,
		ShmSize:       shmSize,
	})
	if err != nil {
		return nil, fmt.Errorf("starting container %s: %w", name, err)
	}
	return &ContainerHandle{Name: name, Port: port, Container: c}, nil
}

// Teardown stops and removes the container, then removes the image if it was
// derived. Every step is best-effort: errors are logged and suppressed, and
// each step proceeds even if the previous one failed. Teardown typically runs
// during failure unwinding and must neither mask the original failure nor
// leak resources because of a secondary one.
func (s *Supervisor) Teardown(ctx context.Context, handle *ContainerHandle, image ImageRef) {
	c := handle.Container
	if err := c.Stop(ctx, stopTimeout); err != nil {
		s.Logger.Printf("Ignoring error while stopping container %s: %s", handle.Name, err)
	}
	if err := c.Wait(ctx, stopTimeout); err != nil {
		s.Logger.Printf("Ignoring error while waiting for container %s: %s", handle.Name, err)
	}

	s.Logger.Printf("Removing container %s", handle.Name)
	if err := c.Remove(ctx); err != nil {
		s.Logger.Printf("Error while removing container %s, skipping: %s", handle.Name, err)
	}

	if image.Derived {
		s.Logger.Printf("Cleaning image %s", image.BuiltID)
		switch err := s.Runtime.RemoveImage(ctx, image.BuiltID); {
		case err == nil, errors.Is(err, runtime.ErrNotFound):
			// An already-removed image is the end state we wanted.
		default:
			s.Logger.Printf("Error while removing image %s, skipping: %s", image.BuiltID, err)
		}
	}
}

// ComposeEnv builds the container environment from the harness's own
// environment, via the given lookup function. The log-level and
// cache-repository variables are always set; an auth token found under
// HF_TOKEN or HUGGING_FACE_HUB_TOKEN is forwarded under both names; the
// tuning allow-list is forwarded verbatim when present. The spec's extra
// variables are merged last.
func ComposeEnv(spec servicedef.ServiceSpec, lookup func(string) (string, bool)) map[string]string {
	env := map[string]string{
		"LOG_LEVEL":         serviceLogLevel,
		"CUSTOM_CACHE_REPO": cacheRepoID,
	}

	token, ok := lookup("HF_TOKEN")
	if !ok {
		token, ok = lookup("HUGGING_FACE_HUB_TOKEN")
	}
	if ok && token != "" {
		env["HUGGING_FACE_HUB_TOKEN"] = token
		env["HF_TOKEN"] = token
	}

	for _, v := range tuningVariables {
		if value, ok := lookup(v); ok {
			env[v] = value
		}
	}

	for k, v := range spec.Env {
		env[k] = v
	}
	return env
}

func commandLine(image string, args []string) string {
	quoted := []string{shellescape.Quote(image)}
	for _, a := range args {
		quoted = append(quoted, shellescape.Quote(a))
	}
	return strings.Join(quoted, " ")
}
