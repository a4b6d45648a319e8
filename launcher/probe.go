package launcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"time"

	"github.com/modelserving/tgi-container-tests/client"
	"github.com/modelserving/tgi-container-tests/framework"
	"github.com/modelserving/tgi-container-tests/runtime"
)

// ProbeState is the terminal state of a readiness probe.
type ProbeState int

const (
	// Ready means the service answered a minimal generation request.
	Ready ProbeState = iota
	// Crashed means the container left the running/created states before the
	// service ever became ready.
	Crashed
	// TimedOut means the wall-clock budget elapsed with the container still
	// alive but the service never ready.
	TimedOut
)

func (s ProbeState) String() string {
	switch s {
	case Ready:
		return "ready"
	case Crashed:
		return "crashed"
	case TimedOut:
		return "timed out"
	default:
		return fmt.Sprintf("ProbeState(%d)", int(s))
	}
}

// ProbeResult is the outcome of one readiness probe. It is terminal once
// produced. Callers must handle all three states; a fatal probe error (the
// service answered, but incorrectly) is reported separately as an error.
type ProbeResult struct {
	State   ProbeState
	Elapsed time.Duration
}

// HealthProbe polls a service container until it is ready, crashes, or a
// timeout elapses. Readiness is application-level: one minimal real
// generation request must succeed; mere process liveness is not enough.
type HealthProbe struct {
	Logger framework.Logger

	// Sleep is the delay between attempts; tests replace it. Nil means
	// time.Sleep.
	Sleep func(time.Duration)
}

// AwaitReady runs up to timeoutSeconds probe iterations, one per elapsed
// second. Each iteration first checks container-level liveness: a dead
// container can never become ready, so that check takes priority and fails
// fast instead of waiting out the full timeout. While polling, container log
// output accumulated since the previous poll is forwarded to the probe's
// logger; the watermark advances each poll so no line is duplicated or
// dropped.
//
// Transient connection errors from the generation request (the service is not
// listening yet) continue the poll. Any other request error means the service
// answered but incorrectly, which will not heal with time: the probe aborts
// with that error rather than retrying it into a timeout.
func (p *HealthProbe) AwaitReady(
	ctx context.Context,
	handle *ContainerHandle,
	c *client.InferenceClient,
	timeoutSeconds int,
) (ProbeResult, error) {
	if timeoutSeconds < 1 {
		return ProbeResult{}, fmt.Errorf("health-check timeout must be at least 1 second, got %d", timeoutSeconds)
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	start := time.Now()
	watermark := start
	logWriter := &framework.LineWriter{Logger: p.Logger, Prefix: handle.Name + " | "}
	defer logWriter.Flush()

	for i := 0; i < timeoutSeconds; i++ {
		alive, err := p.checkContainer(ctx, handle, &watermark, logWriter)
		if err != nil {
			return ProbeResult{}, err
		}
		if !alive {
			return ProbeResult{State: Crashed, Elapsed: time.Since(start)}, nil
		}

		_, err = c.Generate(ctx, "test", client.GenerateOptions{MaxNewTokens: 1})
		if err == nil {
			elapsed := time.Since(start)
			p.Logger.Printf("Service %s started after %s", handle.Name, elapsed.Round(time.Second))
			return ProbeResult{State: Ready, Elapsed: elapsed}, nil
		}
		if !isTransientConnError(err) {
			return ProbeResult{}, fmt.Errorf("basic generation failed: %w", err)
		}
		sleep(time.Second)
	}
	return ProbeResult{State: TimedOut, Elapsed: time.Since(start)}, nil
}

// checkContainer reports whether the container is still in a state from which
// it can become ready, draining its log output as a side effect.
func (p *HealthProbe) checkContainer(
	ctx context.Context,
	handle *ContainerHandle,
	watermark *time.Time,
	logWriter *framework.LineWriter,
) (bool, error) {
	status, err := handle.Container.Status(ctx)
	if err != nil {
		if errors.Is(err, runtime.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("cannot query status of container %s: %w", handle.Name, err)
	}

	now := time.Now()
	output, err := handle.Container.Logs(ctx, *watermark)
	if err != nil {
		p.Logger.Printf("Ignoring error while reading logs of container %s: %s", handle.Name, err)
	} else {
		*watermark = now
		if len(output) > 0 {
			logWriter.Write(output)
		}
	}

	return status == runtime.StatusRunning || status == runtime.StatusCreated, nil
}

// isTransientConnError reports whether a generation request failed because
// the service is not accepting connections yet (refused, reset, or
// disconnected before responding), as opposed to answering with an error.
func isTransientConnError(err error) bool {
	switch {
	case errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF):
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && (opErr.Op == "dial" || opErr.Op == "read") {
		return true
	}
	return false
}
