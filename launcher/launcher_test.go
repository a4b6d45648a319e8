package launcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/launchdarkly/go-test-helpers/v2/httphelpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelserving/tgi-container-tests/client"
	"github.com/modelserving/tgi-container-tests/client/clienttest"
	"github.com/modelserving/tgi-container-tests/framework"
	"github.com/modelserving/tgi-container-tests/runtime"
	"github.com/modelserving/tgi-container-tests/runtime/runtimetest"
	"github.com/modelserving/tgi-container-tests/servicedef"
)

// redirectingTransport sends every request to a fixed test server, whatever
// host the request names. Launch builds its client URL from the random port
// it picked, so tests route those requests to their mock service this way.
type redirectingTransport struct {
	target *url.URL
}

func (rt redirectingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.URL.Scheme = rt.target.Scheme
	r.URL.Host = rt.target.Host
	return http.DefaultTransport.RoundTrip(r)
}

func serviceHTTPClient(t *testing.T, server *httptest.Server) *http.Client {
	t.Helper()
	target, err := url.Parse(server.URL)
	require.NoError(t, err)
	return &http.Client{Transport: redirectingTransport{target: target}}
}

func launchOptions(t *testing.T, server *httptest.Server) Options {
	return Options{
		BaseImage:            "neuronx-tgi:latest",
		HealthTimeoutSeconds: 5,
		Logger:               framework.NullLogger(),
		HTTPClient:           serviceHTTPClient(t, server),
	}
}

func TestLaunchReturnsReadyHandle(t *testing.T) {
	server := httptest.NewServer(clienttest.GenerateHandler())
	defer server.Close()
	rt := runtimetest.NewFakeRuntime()

	handle, err := Launch(context.Background(), rt, testSpec(), launchOptions(t, server))
	require.NoError(t, err)
	defer handle.Close()

	assert.Equal(t, "gpt2", handle.Service)
	assert.Equal(t, ContainerName("gpt2", handle.Container.Port), handle.Container.Name)
	assert.GreaterOrEqual(t, handle.Container.Port, uint16(8000))
	assert.Less(t, handle.Container.Port, uint16(10000))
	require.NotNil(t, handle.Client)
	assert.Equal(t, fmt.Sprintf("http://localhost:%d", handle.Container.Port), handle.Client.BaseURL)

	// The service is usable through the handle.
	resp, err := handle.Client.Generate(context.Background(), "test", client.GenerateOptions{MaxNewTokens: 1})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.GeneratedText)
}

func TestLaunchCloseTearsDownExactlyOnce(t *testing.T) {
	server := httptest.NewServer(clienttest.GenerateHandler())
	defer server.Close()
	rt := runtimetest.NewFakeRuntime()

	handle, err := Launch(context.Background(), rt, testSpec(), launchOptions(t, server))
	require.NoError(t, err)

	handle.Close()
	handle.Close()

	c := handle.Container.Container.(*runtimetest.FakeContainer)
	assert.Equal(t, 1, c.Stops())
	assert.Equal(t, 1, c.Removes())
	_, err = rt.GetContainer(context.Background(), handle.Container.Name)
	assert.ErrorIs(t, err, runtime.ErrNotFound)
}

func TestLaunchTearsDownWhenServiceCrashes(t *testing.T) {
	server := httptest.NewServer(httphelpers.HandlerWithStatus(404))
	defer server.Close()
	rt := runtimetest.NewFakeRuntime()
	rt.OnRun = func(c *runtimetest.FakeContainer) {
		c.SetStatus(runtime.StatusExited)
	}

	_, err := Launch(context.Background(), rt, testSpec(), launchOptions(t, server))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "crashed")

	runs := rt.Runs()
	require.Len(t, runs, 1)
	_, err = rt.GetContainer(context.Background(), runs[0].Name)
	assert.ErrorIs(t, err, runtime.ErrNotFound, "container should have been torn down")
}

func TestLaunchTearsDownOnFatalProbeError(t *testing.T) {
	server := httptest.NewServer(httphelpers.HandlerWithStatus(500))
	defer server.Close()
	rt := runtimetest.NewFakeRuntime()

	_, err := Launch(context.Background(), rt, testSpec(), launchOptions(t, server))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "health check")

	runs := rt.Runs()
	require.Len(t, runs, 1)
	_, err = rt.GetContainer(context.Background(), runs[0].Name)
	assert.ErrorIs(t, err, runtime.ErrNotFound, "container should have been torn down")
}

func TestLaunchReportsTimeoutDistinctly(t *testing.T) {
	rt := runtimetest.NewFakeRuntime()

	// The mock service is shut down before the launch, so every connection
	// is refused until the 1-second budget runs out.
	server := httptest.NewServer(clienttest.GenerateHandler())
	httpClient := serviceHTTPClient(t, server)
	server.Close()

	opts := Options{
		BaseImage:            "neuronx-tgi:latest",
		HealthTimeoutSeconds: 1,
		Logger:               framework.NullLogger(),
		HTTPClient:           httpClient,
	}
	_, err := Launch(context.Background(), rt, testSpec(), opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to become ready")
	assert.NotContains(t, err.Error(), "crashed")
}

func TestLaunchFailsWhenContainerCannotStart(t *testing.T) {
	rt := runtimetest.NewFakeRuntime()
	rt.RunErr = errors.New("no such image")

	_, err := Launch(context.Background(), rt, testSpec(), Options{Logger: framework.NullLogger()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such image")
}

func TestLaunchRejectsInvalidSpec(t *testing.T) {
	rt := runtimetest.NewFakeRuntime()
	_, err := Launch(context.Background(), rt, servicedef.ServiceSpec{}, Options{})
	assert.Error(t, err)
}
