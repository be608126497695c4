// Package llm provides the optional model-backed disambiguation collaborator.
// It is best-effort by contract: any failure or timeout degrades to the
// deterministic candidate-surfacing path, never to a turn failure.
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"

	"github.com/pharmguard/pharmguard/internal/domain/catalog"
	"github.com/pharmguard/pharmguard/internal/domain/nlu"
)

// Chooser asks a language model to pick one medicine out of an ambiguous
// candidate list. Implements nlu.Disambiguator.
type Chooser struct {
	model   llms.Model
	timeout time.Duration
	logger  zerolog.Logger
}

// Option configures a Chooser.
type Option func(*Chooser)

// WithTimeout overrides the per-call deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *Chooser) { c.timeout = d }
}

// WithModel injects a prebuilt model, mainly for tests.
func WithModel(m llms.Model) Option {
	return func(c *Chooser) { c.model = m }
}

// NewGoogleChooser builds a Chooser backed by the Google AI API.
func NewGoogleChooser(ctx context.Context, apiKey, modelName string, logger zerolog.Logger, opts ...Option) (*Chooser, error) {
	c := &Chooser{
		timeout: 5 * time.Second,
		logger:  logger,
	}
	for _, o := range opts {
		o(c)
	}

	if c.model == nil {
		model, err := googleai.New(ctx,
			googleai.WithAPIKey(apiKey),
			googleai.WithDefaultModel(modelName),
		)
		if err != nil {
			return nil, fmt.Errorf("create googleai client: %w", err)
		}
		c.model = model
	}
	return c, nil
}

// Choose implements nlu.Disambiguator. The model is shown the utterance and
// the candidate ids and must answer with exactly one id; anything else is
// treated as no choice.
func (c *Chooser) Choose(ctx context.Context, utterance string, candidates []catalog.ScoredMedicine) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	prompt := buildPrompt(utterance, candidates)
	out, err := llms.GenerateFromSinglePrompt(ctx, c.model, prompt)
	if err != nil {
		return "", fmt.Errorf("disambiguation call: %w", err)
	}

	answer := strings.TrimSpace(out)
	for _, cand := range candidates {
		if strings.Contains(answer, cand.Medicine.ID) {
			c.logger.Debug().
				Str("utterance", utterance).
				Str("choice", cand.Medicine.ID).
				Msg("model disambiguation")
			return cand.Medicine.ID, nil
		}
	}

	return "", nlu.ErrNoChoice
}

func buildPrompt(utterance string, candidates []catalog.ScoredMedicine) string {
	var b strings.Builder
	b.WriteString("A pharmacy customer wrote: \"")
	b.WriteString(utterance)
	b.WriteString("\"\n\nWhich catalog entry do they mean? Candidates:\n")
	for _, cand := range candidates {
		fmt.Fprintf(&b, "- %s: %s\n", cand.Medicine.ID, cand.Medicine.DisplayName())
	}
	b.WriteString("\nAnswer with the single candidate id and nothing else. ")
	b.WriteString("If none fits, answer NONE.")
	return b.String()
}
