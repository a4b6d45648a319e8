package launcher

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/modelserving/tgi-container-tests/client"
	"github.com/modelserving/tgi-container-tests/framework"
	"github.com/modelserving/tgi-container-tests/runtime"
	"github.com/modelserving/tgi-container-tests/servicedef"
)

const (
	// DefaultBaseImage is used when neither the options nor the DOCKER_IMAGE
	// environment variable name a base image.
	DefaultBaseImage = "neuronx-tgi:latest"

	defaultHealthTimeoutSeconds = 60

	portRangeStart = 8000
	portRangeSize  = 2000
)

var defaultDevices = []string{"/dev/neuron0"}

// Options configures a Launch call. The zero value is usable.
type Options struct {
	// BaseImage overrides the base image tag.
	BaseImage string
	// Devices are host devices bound into the container. Defaults to the
	// first Neuron device.
	Devices []string
	// HealthTimeoutSeconds bounds the readiness wait. Defaults to 60.
	HealthTimeoutSeconds int
	// Logger receives launcher progress and container log output.
	Logger framework.Logger
	// HTTPClient is used for generation requests; nil means http.DefaultClient.
	HTTPClient *http.Client
}

func (o Options) baseImage() string {
	if o.BaseImage != "" {
		return o.BaseImage
	}
	if img := os.Getenv("DOCKER_IMAGE"); img != "" {
		return img
	}
	return DefaultBaseImage
}

// ServiceHandle is the caller-facing reference to a running, health-confirmed
// inference service. It exists only after the health probe confirmed
// readiness: holding one is the contract that requests may now be sent.
type ServiceHandle struct {
	Service   string
	Container *ContainerHandle
	Client    *client.InferenceClient

	closeOnce sync.Once
	teardown  func()
}

// Close tears down the container and any derived image. It is safe to call
// more than once; teardown runs exactly once. Callers must defer Close as
// soon as Launch returns successfully.
func (h *ServiceHandle) Close() {
	h.closeOnce.Do(h.teardown)
}

// Launch provisions an image for the service spec, starts a container from
// it on a random local port, and waits for the service to become ready.
//
// On success the returned handle owns the container; releasing it is the
// caller's only obligation, via Close. On any failure after the container
// started - crash, timeout, fatal probe error - the container and any derived
// image are torn down before the error is returned, so no resource outlives
// a failed Launch. The error identifies which of the three causes occurred
// and how long the service was given.
func Launch(
	ctx context.Context,
	rt runtime.ContainerRuntime,
	spec servicedef.ServiceSpec,
	opts Options,
) (*ServiceHandle, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = framework.NullLogger()
	}
	devices := opts.Devices
	if devices == nil {
		devices = defaultDevices
	}
	timeoutSeconds := opts.HealthTimeoutSeconds
	if timeoutSeconds == 0 {
		timeoutSeconds = defaultHealthTimeoutSeconds
	}

	port := randomPort()
	name := ContainerName(spec.Service, port)

	image, modelID, err := ProvisionImage(ctx, rt, opts.baseImage(), spec, name, logger)
	if err != nil {
		return nil, fmt.Errorf("provisioning image for %s: %w", spec.Service, err)
	}

	supervisor := &Supervisor{Runtime: rt, Logger: logger}
	handle, err := supervisor.Start(ctx, image, spec, modelID, port, devices)
	if err != nil {
		return nil, err
	}

	// From here on the container exists, so teardown must run no matter how
	// the rest of the launch goes. It uses a background context: teardown
	// often runs while the caller is unwinding a cancellation.
	teardown := func() {
		supervisor.Teardown(context.Background(), handle, image)
	}
	ready := false
	defer func() {
		if !ready {
			teardown()
		}
	}()

	serviceClient := client.New(fmt.Sprintf("http://localhost:%d", port), opts.HTTPClient)
	probe := &HealthProbe{Logger: logger}
	result, err := probe.AwaitReady(ctx, handle, serviceClient, timeoutSeconds)
	if err != nil {
		return nil, fmt.Errorf("health check for %s failed: %w", name, err)
	}
	switch result.State {
	case Crashed:
		return nil, fmt.Errorf("service %s crashed after %s", name, result.Elapsed.Round(time.Second))
	case TimedOut:
		return nil, fmt.Errorf("service %s failed to become ready within %s", name, result.Elapsed.Round(time.Second))
	}

	ready = true
	return &ServiceHandle{
		Service:   spec.Service,
		Container: handle,
		Client:    serviceClient,
		teardown:  teardown,
	}, nil
}

func randomPort() uint16 {
	return uint16(portRangeStart + rand.IntN(portRangeSize))
}
