package tgitests

import (
	"context"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelserving/tgi-container-tests/client"
)

func DoGenerateTests(t *T) {
	t.Run("single generation", func(t *T) {
		resp, err := t.Client().Generate(context.Background(), testPrompt, client.GenerateOptions{
			MaxNewTokens: testMaxNewTokens,
		})
		require.NoError(t, err)

		assert.NotEmpty(t, resp.GeneratedText, "service returned an empty generation")
		assert.Equal(t, uint(testMaxNewTokens), resp.Details.GeneratedTokens,
			"incorrect number of generated tokens")
		assert.Len(t, resp.Details.Tokens, testMaxNewTokens,
			"token details do not match the generated token count")
		for i, token := range resp.Details.Tokens {
			if !token.Special {
				assert.NotNil(t, token.Logprob, "token %d has no log-probability", i)
			}
		}
	})

	t.Run("decoder input details", func(t *T) {
		resp, err := t.Client().Generate(context.Background(), testPrompt, client.GenerateOptions{
			MaxNewTokens: 1,
			DecoderInputDetails: true,
		})
		require.NoError(t, err)

		require.NotEmpty(t, resp.Details.Prefill, "service did not echo the decoder input tokens")
		t.Debug("prompt was tokenized into %d tokens", len(resp.Details.Prefill))
		for i, token := range resp.Details.Prefill {
			assert.NotEmpty(t, token.Text, "prefill token %d has no text", i)
		}
	})
}
