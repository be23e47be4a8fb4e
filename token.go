package llmrelay

import "unicode/utf8"

// TokenCounter estimates token count for a string.
// Used to fill Usage when a provider does not report it; callers can plug in an exact tokenizer.
type TokenCounter interface {
	Count(text string) (int, error)
}

// CharFallbackCounter estimates tokens as runes/CharsPerToken.
// Zero value uses 4 chars per token.
type CharFallbackCounter struct {
	CharsPerToken int
}

// Count returns estimated token count: ceil(rune_count / CharsPerToken).
// If CharsPerToken <= 0, uses 4.
func (c *CharFallbackCounter) Count(text string) (int, error) {
	cpt := c.CharsPerToken
	if cpt <= 0 {
		cpt = 4
	}
	n := utf8.RuneCountInString(text)
	return (n + cpt - 1) / cpt, nil
}

// EstimateUsage builds an estimated Usage for a prompt/completion pair.
// A nil counter uses CharFallbackCounter.
func EstimateUsage(tc TokenCounter, prompt, completion string) (*Usage, error) {
	if tc == nil {
		tc = &CharFallbackCounter{}
	}
	p, err := tc.Count(prompt)
	if err != nil {
		return nil, err
	}
	c, err := tc.Count(completion)
	if err != nil {
		return nil, err
	}
	return &Usage{
		PromptTokens:     int64(p),
		CompletionTokens: int64(c),
		TotalTokens:      int64(p + c),
		Estimated:        true,
	}, nil
}
