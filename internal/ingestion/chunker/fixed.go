package chunker

import (
	"context"

	"github.com/tmc/langchaingo/textsplitter"
)

// Fixed is a size-bounded recursive character splitter.
type Fixed struct {
	splitter textsplitter.RecursiveCharacter
}

func NewFixed(size, overlap int) *Fixed {
	return &Fixed{splitter: textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(size),
		textsplitter.WithChunkOverlap(overlap),
	)}
}

func (f *Fixed) Name() string { return StrategyFixed }

func (f *Fixed) Split(_ context.Context, text string) ([]string, error) {
	return f.splitter.SplitText(text)
}
