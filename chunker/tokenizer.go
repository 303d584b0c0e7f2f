package chunker

import (
	"log/slog"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter estimates how many tokens a piece of text costs against the
// chunk budget. Implementations must be deterministic.
type TokenCounter interface {
	Count(text string) int
}

// ApproxCounter counts whitespace-separated words. It is the deterministic
// fallback strategy and needs no external data.
type ApproxCounter struct{}

func (ApproxCounter) Count(text string) int {
	return len(strings.Fields(text))
}

// TiktokenCounter counts tokens with a BPE encoding, matching what
// OpenAI-compatible embedding models actually consume.
type TiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenCounter builds a counter for the named encoding, for example
// "cl100k_base". Fails when the encoding data is unavailable.
func NewTiktokenCounter(encoding string) (*TiktokenCounter, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, err
	}
	return &TiktokenCounter{enc: enc}, nil
}

func (c *TiktokenCounter) Count(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}

// NewCounter resolves a tokenizer strategy by name, degrading gracefully to
// the whitespace approximation when the richer tokenizer is unavailable.
func NewCounter(strategy string, logger *slog.Logger) TokenCounter {
	if logger == nil {
		logger = slog.Default()
	}
	switch strategy {
	case "", "approx":
		return ApproxCounter{}
	case "tiktoken":
		counter, err := NewTiktokenCounter("cl100k_base")
		if err != nil {
			logger.Warn("tiktoken unavailable, falling back to word approximation", "err", err)
			return ApproxCounter{}
		}
		return counter
	default:
		logger.Warn("unknown tokenizer strategy, using word approximation", "strategy", strategy)
		return ApproxCounter{}
	}
}
