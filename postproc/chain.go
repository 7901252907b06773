// Package postproc runs the ordered chain of content transforms over an
// engine result. Every step is independent and self-deciding; a failing
// step is logged and skipped, never fatal.
package postproc

import (
	"context"
	"log/slog"

	"github.com/use-agent/harvest/models"
)

// Input carries the request-scoped facts a postprocessor may consult.
// Applied accumulates the names of steps that have already run, so a
// step can make its predicate idempotent.
type Input struct {
	Options  models.ScrapeOptions
	FinalURL string
	Applied  []string
	Logger   *slog.Logger
}

// Postprocessor is one self-deciding transform step.
type Postprocessor interface {
	Name() string

	// ShouldRun decides whether the step applies to this request.
	ShouldRun(in *Input, doc *models.Document) bool

	// Run takes the prior document value and returns the next one. An
	// error leaves the prior value in effect.
	Run(in *Input, doc models.Document) (models.Document, error)
}

// Chain is an ordered list of postprocessors.
type Chain struct {
	steps []Postprocessor
}

// NewChain builds a chain that runs the given steps in order.
func NewChain(steps ...Postprocessor) *Chain {
	return &Chain{steps: steps}
}

// DefaultChain is the standard transform order: sanitize, selector
// filtering, main-content extraction, markdown conversion, then the
// extractors that read the raw HTML.
func DefaultChain() *Chain {
	return NewChain(
		&Sanitize{},
		&Filter{},
		&Readability{},
		NewMarkdown(),
		&Links{},
		&Images{},
		&Branding{},
	)
}

// Run folds the document through each applicable step once, in order.
// Step failures are non-fatal: the working value from before the step
// is kept and the chain continues. The returned document records the
// steps actually applied. Cancellation stops further steps; the caller
// is expected to check its abort coordinator after the chain returns.
func (c *Chain) Run(ctx context.Context, in *Input, doc models.Document) models.Document {
	if in.Logger == nil {
		in.Logger = slog.Default()
	}

	for _, step := range c.steps {
		if ctx.Err() != nil {
			break
		}
		if !step.ShouldRun(in, &doc) {
			continue
		}
		next, err := step.Run(in, doc)
		if err != nil {
			in.Logger.Warn("postprocessor failed, keeping prior result",
				"postprocessor", step.Name(), "url", in.FinalURL, "error", err)
			continue
		}
		doc = next
		in.Applied = append(in.Applied, step.Name())
	}

	doc.Metadata.PostprocessorsUsed = append([]string(nil), in.Applied...)
	return doc
}

// applied reports whether a step name is already in the applied list.
func applied(in *Input, name string) bool {
	for _, n := range in.Applied {
		if n == name {
			return true
		}
	}
	return false
}
