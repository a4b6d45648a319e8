// Package loadgen fans out concurrent generation requests against a ready
// service and collects every outcome.
package loadgen

import (
	"context"
	"sync"

	"github.com/modelserving/tgi-container-tests/client"
)

// Outcome is the result of one request: exactly one of Response and Err is
// set.
type Outcome struct {
	Response *client.GenerateResponse
	Err      error
}

func (o Outcome) OK() bool {
	return o.Err == nil
}

// Result holds one Outcome per request, index-aligned with submission order
// regardless of completion order.
type Result []Outcome

// AllOK reports whether every request succeeded.
func (r Result) AllOK() bool {
	for _, o := range r {
		if !o.OK() {
			return false
		}
	}
	return true
}

// Errors returns the failed outcomes' errors, in submission order.
func (r Result) Errors() []error {
	var errs []error
	for _, o := range r {
		if o.Err != nil {
			errs = append(errs, o.Err)
		}
	}
	return errs
}

// Run issues concurrency generation requests for the same prompt, each asking
// for maxNewTokens tokens with decoder input details. All requests are
// launched before any is awaited, then all are joined: one request's failure
// never aborts the others, and no request is retried. In-flight requests are
// not cancelled by the harness; tests need full result sets.
func Run(
	ctx context.Context,
	c *client.InferenceClient,
	prompt string,
	maxNewTokens uint,
	concurrency int,
) Result {
	results := make(Result, concurrency)
	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := c.Generate(ctx, prompt, client.GenerateOptions{
				MaxNewTokens:        maxNewTokens,
				DecoderInputDetails: true,
			})
			results[i] = Outcome{Response: resp, Err: err}
		}(i)
	}
	wg.Wait()
	return results
}
