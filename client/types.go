package client

// GenerateOptions are the per-request generation parameters the harness uses.
type GenerateOptions struct {
	MaxNewTokens uint
	// DecoderInputDetails asks the service to echo the tokenized prompt
	// (prefill tokens) back in the response details.
	DecoderInputDetails bool
}

type generateRequest struct {
	Inputs     string             `json:"inputs"`
	Parameters generateParameters `json:"parameters"`
}

type generateParameters struct {
	MaxNewTokens        uint `json:"max_new_tokens"`
	DecoderInputDetails bool `json:"decoder_input_details,omitempty"`
	Details             bool `json:"details"`
}

// GenerateResponse is the decoded body of a successful generation call.
type GenerateResponse struct {
	GeneratedText string  `json:"generated_text"`
	Details       Details `json:"details"`
}

// Details carries the token-level information for one generation.
type Details struct {
	FinishReason    string  `json:"finish_reason"`
	GeneratedTokens uint    `json:"generated_tokens"`
	Seed            *uint64 `json:"seed,omitempty"`
	// Prefill holds the decoder input tokens; present only when the request
	// asked for decoder input details.
	Prefill []Token `json:"prefill,omitempty"`
	Tokens  []Token `json:"tokens"`
}

// Token is a single token with its log-probability.
type Token struct {
	ID      uint32   `json:"id"`
	Text    string   `json:"text"`
	Logprob *float64 `json:"logprob"`
	Special bool     `json:"special,omitempty"`
}
