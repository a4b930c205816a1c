package llm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// GenkitStreamer implements Streamer on a Genkit model.
//
// GenkitStreamer is safe for concurrent use; each Stream call is an
// independent generation.
type GenkitStreamer struct {
	g      *genkit.Genkit
	model  string // provider-qualified, e.g. "googleai/gemini-2.5-flash"
	logger *slog.Logger
}

// NewGenkitStreamer creates a GenkitStreamer. logger may be nil.
func NewGenkitStreamer(g *genkit.Genkit, model string, logger *slog.Logger) *GenkitStreamer {
	if logger == nil {
		logger = slog.Default()
	}
	return &GenkitStreamer{g: g, model: model, logger: logger}
}

// Stream generates a response for the rendered prompt, forwarding each text
// part of each model chunk to onToken.
func (s *GenkitStreamer) Stream(ctx context.Context, rendered string, onToken TokenFunc) (string, error) {
	opts := []ai.GenerateOption{
		ai.WithPrompt("%s", rendered),
		ai.WithModelName(s.model),
	}
	if onToken != nil {
		opts = append(opts, ai.WithStreaming(func(ctx context.Context, chunk *ai.ModelResponseChunk) error {
			if chunk == nil {
				return nil
			}
			for _, part := range chunk.Content {
				if part.Text == "" {
					continue
				}
				if err := onToken(ctx, part.Text); err != nil {
					return err
				}
			}
			return nil
		}))
	}

	resp, err := genkit.Generate(ctx, s.g, opts...)
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}

	text := resp.Text()
	s.logger.Debug("generation finished", "model", s.model, "response_len", len(text))
	return text, nil
}
