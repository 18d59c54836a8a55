package adapter

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter estimates the token length of text.
type TokenCounter interface {
	Count(text string) int
}

// HeuristicCounter assumes roughly four characters per token.
type HeuristicCounter struct{}

// Count returns max(1, len(text)/4).
func (HeuristicCounter) Count(text string) int {
	n := len(text) / 4
	if n < 1 {
		return 1
	}
	return n
}

// TiktokenCounter counts with a BPE encoding, falling back to the heuristic
// when the encoding cannot be loaded.
type TiktokenCounter struct {
	encoding string
	once     sync.Once
	enc      *tiktoken.Tiktoken
	initErr  error
}

// NewTiktokenCounter creates a counter for the named encoding (cl100k_base when empty).
func NewTiktokenCounter(encoding string) *TiktokenCounter {
	if encoding == "" {
		encoding = "cl100k_base"
	}
	return &TiktokenCounter{encoding: encoding}
}

// Err reports the encoding load failure, if any.
func (c *TiktokenCounter) Err() error {
	c.init()
	return c.initErr
}

func (c *TiktokenCounter) init() {
	c.once.Do(func() {
		c.enc, c.initErr = tiktoken.GetEncoding(c.encoding)
	})
}

// Count returns the encoded length of text.
func (c *TiktokenCounter) Count(text string) int {
	c.init()
	if c.initErr != nil || c.enc == nil {
		return HeuristicCounter{}.Count(text)
	}
	n := len(c.enc.Encode(text, nil, nil))
	if n < 1 {
		return 1
	}
	return n
}
