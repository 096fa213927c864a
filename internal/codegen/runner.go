// Package codegen defines the boundary to the external code-generation
// collaborator. The real integration (a subprocess invocation of a coding
// agent) is not wired up yet; PlaceholderRunner stands in for it so the
// workflow's Executing node has a complete contract to call.
package codegen

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Failure modes the Executing node must distinguish once a real runner is
// integrated: non-zero exit, timeout, and output the runner cannot parse.
var (
	ErrTimeout         = errors.New("code generation timed out")
	ErrMalformedOutput = errors.New("code generation produced malformed output")
)

// ExitError reports a non-zero exit from the collaborator process.
type ExitError struct {
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("code generation exited with status %d: %s", e.Code, e.Stderr)
}

// Result is the structured outcome of a code-generation run.
type Result struct {
	// Output is the generated content or a summary of what was produced.
	Output string

	// ChangedFiles lists files the run created or modified, when known.
	ChangedFiles []string
}

// Runner executes one refined task description.
type Runner interface {
	Run(ctx context.Context, task string) (Result, error)
}

// PlaceholderRunner is the inert stand-in used until a real collaborator is
// integrated. Its output describes the task instead of performing it;
// callers must not treat it as meaningful generated content.
type PlaceholderRunner struct{}

// NewPlaceholderRunner returns the inert runner.
func NewPlaceholderRunner() *PlaceholderRunner {
	return &PlaceholderRunner{}
}

// Run echoes the refined task back in a placeholder report.
func (r *PlaceholderRunner) Run(_ context.Context, task string) (Result, error) {
	var b strings.Builder
	b.WriteString("PLACEHOLDER CODE GENERATION\n\n")
	b.WriteString("Refined task:\n")
	b.WriteString(task)
	b.WriteString("\n\nThis step would normally invoke the external code-generation tool ")
	b.WriteString("with the task above and return the generated code or a file-change summary.")
	return Result{Output: b.String()}, nil
}
