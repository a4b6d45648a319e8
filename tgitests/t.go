// Package tgitests contains the suite of tests the harness runs against a
// launched inference service.
package tgitests

import (
	"github.com/modelserving/tgi-container-tests/client"
	"github.com/modelserving/tgi-container-tests/framework"
	"github.com/modelserving/tgi-container-tests/launcher"
	"github.com/modelserving/tgi-container-tests/servicedef"
)

type environment struct {
	handle      *launcher.ServiceHandle
	spec        servicedef.ServiceSpec
	concurrency int
}

// T is used similarly to *testing.T in the suite. It embeds the framework
// Context, so the standard assert/require packages work against it, and adds
// accessors for the service under test.
type T struct {
	*framework.Context
	env *environment
}

func (t *T) Run(name string, action func(*T)) {
	t.Context.Run(name, func(c *framework.Context) {
		action(&T{Context: c, env: t.env})
	})
}

// Client returns the generation client for the service under test.
func (t *T) Client() *client.InferenceClient {
	return t.env.handle.Client
}

// Spec returns the service configuration being tested.
func (t *T) Spec() servicedef.ServiceSpec {
	return t.env.spec
}

// Concurrency returns the request fan-out width configured for this run.
func (t *T) Concurrency() int {
	return t.env.concurrency
}
