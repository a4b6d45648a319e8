// Package clienttest provides a mock generation endpoint for harness tests.
package clienttest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/modelserving/tgi-container-tests/client"
)

// GenerateHandler returns an HTTP handler that answers /generate requests the
// way a healthy TGI-compatible service would: it produces exactly the
// requested number of tokens, with log-probabilities, and echoes the prompt
// as prefill tokens when decoder input details are requested.
func GenerateHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Inputs     string `json:"inputs"`
			Parameters struct {
				MaxNewTokens        uint `json:"max_new_tokens"`
				DecoderInputDetails bool `json:"decoder_input_details"`
			} `json:"parameters"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}

		logprob := -0.42
		resp := client.GenerateResponse{
			Details: client.Details{
				FinishReason:    "length",
				GeneratedTokens: body.Parameters.MaxNewTokens,
			},
		}
		var text strings.Builder
		for i := uint(0); i < body.Parameters.MaxNewTokens; i++ {
			tokenText := fmt.Sprintf(" token%d", i)
			text.WriteString(tokenText)
			resp.Details.Tokens = append(resp.Details.Tokens, client.Token{
				ID:      uint32(1000 + i),
				Text:    tokenText,
				Logprob: &logprob,
			})
		}
		resp.GeneratedText = text.String()

		if body.Parameters.DecoderInputDetails {
			for i, word := range strings.Fields(body.Inputs) {
				resp.Details.Prefill = append(resp.Details.Prefill, client.Token{
					ID:      uint32(i),
					Text:    word,
					Logprob: &logprob,
				})
			}
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	})
}
