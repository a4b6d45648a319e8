package tgitests

import (
	"context"
	"fmt"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelserving/tgi-container-tests/loadgen"
)

func DoLoadTests(t *T) {
	t.Run(fmt.Sprintf("%d concurrent generations", t.Concurrency()), func(t *T) {
		results := loadgen.Run(context.Background(), t.Client(), testPrompt, testMaxNewTokens, t.Concurrency())

		require.Len(t, results, t.Concurrency())
		for i, outcome := range results {
			if !assert.NoError(t, outcome.Err, "request %d failed", i) {
				continue
			}
			assert.NotEmpty(t, outcome.Response.GeneratedText, "request %d returned an empty generation", i)
			assert.Equal(t, uint(testMaxNewTokens), outcome.Response.Details.GeneratedTokens,
				"request %d generated an incorrect number of tokens", i)
		}
	})
}
