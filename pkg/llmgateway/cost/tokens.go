// Package cost provides the LLM Gateway's token-count fallback (§4.G,
// DOMAIN STACK), grounded in kadirpekel-hector's pkg/utils.TokenCounter: a
// cached tiktoken-go encoding per model behind CountTokens/CountMessages.
// Neither the step timeout derivation nor the token_usage path calls into
// this package.
package cost

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var (
	cacheMu  sync.RWMutex
	encCache = map[string]*tiktoken.Tiktoken{}
)

// encodingFor returns a cached tiktoken encoding for model, falling back to
// cl100k_base for models tiktoken-go doesn't recognize (every non-OpenAI
// provider this gateway wires up, plus future OpenAI models tiktoken-go's
// release lags behind).
func encodingFor(model string) (*tiktoken.Tiktoken, error) {
	cacheMu.RLock()
	enc, ok := encCache[model]
	cacheMu.RUnlock()
	if ok {
		return enc, nil
	}

	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, err
		}
	}

	cacheMu.Lock()
	encCache[model] = enc
	cacheMu.Unlock()
	return enc, nil
}

// CountTokens returns text's token count under model's encoding, or a rough
// chars/4 estimate if no encoding could be loaded at all.
func CountTokens(model, text string) int {
	enc, err := encodingFor(model)
	if err != nil {
		return len(text) / 4
	}
	return len(enc.Encode(text, nil, nil))
}

// CountMessages sums the token count of role+content pairs plus the
// per-message framing overhead tiktoken's own cookbook documents for chat
// models (3 tokens per message, 3 for the reply primer).
func CountMessages(model string, pairs [][2]string) int {
	enc, err := encodingFor(model)
	if err != nil {
		total := 0
		for _, p := range pairs {
			total += (len(p[0]) + len(p[1])) / 4
		}
		return total
	}

	total := 3
	for _, p := range pairs {
		total += 3
		total += len(enc.Encode(p[0], nil, nil))
		total += len(enc.Encode(p[1], nil, nil))
	}
	return total
}
