// Package runtime abstracts the container runtime operations the harness
// needs: building images, running containers, and inspecting/stopping/removing
// them. The production implementation talks to a Docker daemon; tests use the
// fake in the runtimetest subpackage.
package runtime

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned (possibly wrapped) when a container or image with
// the requested name does not exist.
var ErrNotFound = errors.New("no such container or image")

// Container status values, as reported by the runtime.
const (
	StatusCreated = "created"
	StatusRunning = "running"
	StatusExited  = "exited"
	StatusDead    = "dead"
)

// RunConfig describes a container to run. The container is always started
// detached and never auto-removed: the supervisor owns its full lifecycle and
// needs the container to still exist after a crash so its logs and exit state
// remain inspectable.
type RunConfig struct {
	Image   string
	Name    string
	Command []string
	Env     map[string]string
	// ContainerPort is the TCP port the service listens on inside the
	// container; HostPort is the port it is published to on localhost.
	ContainerPort uint16
	HostPort      uint16
	// Devices are host device paths bound into the container at the same path.
	Devices []string
	// ShmSize is the size of /dev/shm in bytes.
	ShmSize int64
}

// ContainerRuntime is the set of mutating and inspecting operations the
// harness issues against the container runtime. All calls are synchronous;
// there is exactly one container per service handle, so none of these are
// ever issued concurrently for the same name.
type ContainerRuntime interface {
	// BuildImage builds contextDir/dockerfile and tags the result. The
	// returned id is the built image id. Build output is streamed to the
	// returned logs string.
	BuildImage(ctx context.Context, contextDir, dockerfile, tag string) (id string, logs string, err error)

	// RunContainer creates and starts a detached container.
	RunContainer(ctx context.Context, cfg RunConfig) (Container, error)

	// GetContainer looks up an existing container by name, returning
	// ErrNotFound if there is none.
	GetContainer(ctx context.Context, name string) (Container, error)

	// RemoveImage force-removes an image by tag or id, returning ErrNotFound
	// if it does not exist.
	RemoveImage(ctx context.Context, ref string) error
}

// Container is a handle to a single container managed by the runtime.
type Container interface {
	Name() string

	// Status returns the container's current status string (StatusRunning etc.).
	Status(ctx context.Context) (string, error)

	// Logs returns the container output produced at or after the since
	// timestamp, with the stdout/stderr multiplexing already undone.
	Logs(ctx context.Context, since time.Time) ([]byte, error)

	// Stop requests a graceful stop, escalating to a kill after the timeout.
	Stop(ctx context.Context, timeout time.Duration) error

	// Wait blocks until the container is no longer running, or the timeout
	// elapses.
	Wait(ctx context.Context, timeout time.Duration) error

	// Remove force-removes the container.
	Remove(ctx context.Context) error
}
