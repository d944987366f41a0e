package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/danielpatrickdp/persuasion-state/internal/belief"
)

// #region types

// ErrProvider matches every *ProviderError.
var ErrProvider = errors.New("text generation failed")

// Options tune one generation call.
type Options struct {
	Temperature float64
	MaxTokens   int
	Persona     belief.Persona
}

// Generator turns a system and user prompt into text.
type Generator interface {
	Generate(ctx context.Context, system, user string, opts Options) (string, error)
}

// Streamer delivers generated text in chunks. fn returning an error stops
// the stream with that error.
type Streamer interface {
	Stream(ctx context.Context, system, user string, opts Options, fn func(chunk string) error) error
}

// ProviderError wraps a failure from a concrete generator.
type ProviderError struct {
	Provider  string
	Persona   belief.Persona
	Retryable bool
	Err       error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s provider (persona %s): %v", e.Provider, e.Persona, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrProvider) hold for any ProviderError.
func (e *ProviderError) Is(target error) bool { return target == ErrProvider }

// #endregion types

// #region stream-adapter

// Collect drains s into a single string.
func Collect(ctx context.Context, s Streamer, system, user string, opts Options) (string, error) {
	var b strings.Builder
	err := s.Stream(ctx, system, user, opts, func(chunk string) error {
		b.WriteString(chunk)
		return nil
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(b.String()), nil
}

// StreamGenerator adapts a Streamer to the Generator interface.
type StreamGenerator struct {
	Streamer Streamer
}

var _ Generator = StreamGenerator{}

// Generate collects the stream.
func (g StreamGenerator) Generate(ctx context.Context, system, user string, opts Options) (string, error) {
	return Collect(ctx, g.Streamer, system, user, opts)
}

// #endregion stream-adapter
