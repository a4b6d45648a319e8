package tgitests

import (
	"github.com/modelserving/tgi-container-tests/framework"
	"github.com/modelserving/tgi-container-tests/launcher"
	"github.com/modelserving/tgi-container-tests/servicedef"
)

// The prompt used by the generation tests. Kept identical across requests so
// concurrent load results are comparable.
const testPrompt = "It was a bright cold day in April, and the clocks were striking thirteen."

const testMaxNewTokens = 20

// RunTestSuite runs all service tests against a ready service handle and
// returns the accumulated results.
func RunTestSuite(
	handle *launcher.ServiceHandle,
	spec servicedef.ServiceSpec,
	concurrency int,
	filter framework.Filter,
	testLogger framework.TestLogger,
) framework.Results {
	return framework.Run(filter, testLogger, func(c *framework.Context) {
		t := &T{
			Context: c,
			env: &environment{
				handle:      handle,
				spec:        spec,
				concurrency: concurrency,
			},
		}

		t.Run("generation", DoGenerateTests)
		t.Run("load", DoLoadTests)
	})
}
