// Package stages holds the pipeline's stage adapters. Each adapter wraps one
// external capability behind a uniform contract: it mutates the workflow
// state on success and returns a tagged failure otherwise. No panic or
// untyped error crosses into the engine.
package stages

import (
	"context"

	"github.com/rendis/reportpipe/pkg/schema"
)

// Result is the per-stage summary attached to the stage-completed event.
type Result struct {
	Summary map[string]any
}

// Stage is one pipeline phase.
type Stage interface {
	Name() schema.Stage
	Run(ctx context.Context, state *schema.WorkflowState) (*Result, *schema.StageFailure)
}
