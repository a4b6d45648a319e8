package tgitests_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelserving/tgi-container-tests/client/clienttest"
	"github.com/modelserving/tgi-container-tests/framework"
	"github.com/modelserving/tgi-container-tests/launcher"
	"github.com/modelserving/tgi-container-tests/runtime"
	"github.com/modelserving/tgi-container-tests/runtime/runtimetest"
	"github.com/modelserving/tgi-container-tests/servicedef"
	"github.com/modelserving/tgi-container-tests/tgitests"
)

// redirectingTransport routes the launcher's localhost requests to the mock
// service, whatever port the launcher happened to pick.
type redirectingTransport struct {
	target *url.URL
}

func (rt redirectingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.URL.Scheme = rt.target.Scheme
	r.URL.Host = rt.target.Host
	return http.DefaultTransport.RoundTrip(r)
}

func launchAgainstMockService(t *testing.T, handler http.Handler) (*launcher.ServiceHandle, servicedef.ServiceSpec, *runtimetest.FakeRuntime) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	target, err := url.Parse(server.URL)
	require.NoError(t, err)

	spec := servicedef.ServiceSpec{Service: "gpt2", Model: "gpt2"}
	rt := runtimetest.NewFakeRuntime()
	handle, err := launcher.Launch(context.Background(), rt, spec, launcher.Options{
		BaseImage:            "neuronx-tgi:latest",
		HealthTimeoutSeconds: 60,
		Logger:               framework.NullLogger(),
		HTTPClient:           &http.Client{Transport: redirectingTransport{target: target}},
	})
	require.NoError(t, err)
	t.Cleanup(handle.Close)
	return handle, spec, rt
}

func TestSuitePassesAgainstHealthyService(t *testing.T) {
	handle, spec, _ := launchAgainstMockService(t, clienttest.GenerateHandler())

	results := tgitests.RunTestSuite(handle, spec, 4, nil, nil)

	assert.True(t, results.OK(), "failures: %+v", results.Failures)
	assert.NotEmpty(t, results.Tests)
}

func TestSuiteReportsFailuresAgainstMisbehavingService(t *testing.T) {
	// This service accepts connections and answers validly shaped responses,
	// but always generates zero tokens - the generation tests must catch it.
	handler := http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"generated_text": "", "details": {"finish_reason": "length", "generated_tokens": 0, "tokens": []}}`))
	})
	handle, spec, _ := launchAgainstMockService(t, handler)

	results := tgitests.RunTestSuite(handle, spec, 4, nil, nil)

	assert.False(t, results.OK())
}

func TestSuiteHonorsFilters(t *testing.T) {
	handle, spec, _ := launchAgainstMockService(t, clienttest.GenerateHandler())

	var filters framework.RegexFilters
	require.NoError(t, filters.MustNotMatch.Set("^load"))

	results := tgitests.RunTestSuite(handle, spec, 4, filters.AsFilter, nil)

	assert.True(t, results.OK())
	for _, r := range results.Tests {
		assert.NotContains(t, r.TestID.String(), "load")
	}
}

func TestEndToEndScenarioLeavesNoContainerBehind(t *testing.T) {
	handle, spec, rt := launchAgainstMockService(t, clienttest.GenerateHandler())

	results := tgitests.RunTestSuite(handle, spec, 4, nil, nil)
	require.True(t, results.OK(), "failures: %+v", results.Failures)

	name := handle.Container.Name
	handle.Close()
	_, err := rt.GetContainer(context.Background(), name)
	assert.ErrorIs(t, err, runtime.ErrNotFound)
}
