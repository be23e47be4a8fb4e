package llmrelay_test

import (
	"fmt"

	"github.com/skosovsky/llmrelay"
)

func ExampleErrorKind() {
	err := fmt.Errorf("generate: %w", &llmrelay.ProviderError{
		Provider:   llmrelay.Groq,
		StatusCode: 429,
		Kind:       llmrelay.ErrRateLimited,
	})
	fmt.Println(llmrelay.ErrorKind(err))
	// Output: rate_limited
}

func ExampleRedactKey() {
	fmt.Println(llmrelay.RedactKey("Bearer gsk-live-9f3a"))
	// Output: Bearer ****9f3a
}
