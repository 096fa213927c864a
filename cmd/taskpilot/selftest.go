package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"taskpilot/internal/codegen"
	"taskpilot/internal/engine"
	"taskpilot/internal/llm"
	"taskpilot/internal/memory"
)

var selftestCmd = &cobra.Command{
	Use:   "selftest",
	Short: "Run the scripted workflow scenarios offline",
	Long: `Exercises the workflow end to end against scripted completion replies.
No network access or credentials are needed; failures exit non-zero.`,
	RunE: runSelftest,
}

var (
	passStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	nameStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

type scenario struct {
	name    string
	replies []string
	runner  codegen.Runner
	// inputs are sent in order; later inputs answer clarification
	// questions.
	inputs []string
	check  func(results []*engine.Result) error
}

func runSelftest(cmd *cobra.Command, _ []string) error {
	scenarios := []scenario{
		{
			name:    "question routes to a direct answer",
			replies: []string{"ANSWER", "REST uses fixed endpoints; GraphQL exposes a typed query language."},
			inputs:  []string{"What is the difference between REST and GraphQL?"},
			check: func(results []*engine.Result) error {
				res := results[0]
				if res.Route != engine.RouteAnswer {
					return fmt.Errorf("route = %s, want answer", res.Route)
				}
				if !strings.Contains(res.FinalResult, "GraphQL") {
					return fmt.Errorf("unexpected result %q", res.FinalResult)
				}
				return nil
			},
		},
		{
			name: "development request is refined and executed",
			replies: []string{
				"CODE",
				"Build a REST API for managing a book collection using Python and FastAPI.",
			},
			inputs: []string{"Build me a book collection API in Python"},
			check: func(results []*engine.Result) error {
				res := results[0]
				if res.Route != engine.RouteCode {
					return fmt.Errorf("route = %s, want code", res.Route)
				}
				if res.RefinedTask == "" || res.FinalResult == "" {
					return fmt.Errorf("missing refined task or result")
				}
				return nil
			},
		},
		{
			name: "vague request triggers a clarification dialogue",
			replies: []string{
				"CLARIFY",
				"QUESTION: What kind of project do you want to build?",
				"CLARIFIED: inventory web app",
			},
			inputs: []string{"I want to build something", "A web app for inventory"},
			check: func(results []*engine.Result) error {
				if results[0].Outcome != engine.OutcomeClarification {
					return fmt.Errorf("first run should suspend, got %v", results[0].Outcome)
				}
				final := results[1]
				if final.Outcome != engine.OutcomeResult || !final.Clarified {
					return fmt.Errorf("dialogue did not resolve: %+v", final)
				}
				if final.RefinedTask != "inventory web app" {
					return fmt.Errorf("refined task = %q, want the clarified summary", final.RefinedTask)
				}
				return nil
			},
		},
		{
			name:    "unrecognized classification falls back to clarify",
			replies: []string{"UNKNOWN-CLASSIFICATION", "CLARIFIED: a demo script"},
			inputs:  []string{"hmm"},
			check: func(results []*engine.Result) error {
				res := results[0]
				if res.Route != engine.RouteClarify {
					return fmt.Errorf("route = %s, want clarify fallback", res.Route)
				}
				for _, step := range res.Steps {
					if strings.Contains(step, "Routing fallback") {
						return nil
					}
				}
				return fmt.Errorf("fallback step missing from %v", res.Steps)
			},
		},
		{
			name: "clarification dialogue is bounded",
			replies: []string{
				"CLARIFY",
				"QUESTION: first?",
				"QUESTION: second?",
				"QUESTION: third?",
				"Refined despite open questions.",
			},
			inputs: []string{"vague", "still vague", "even vaguer"},
			check: func(results []*engine.Result) error {
				final := results[len(results)-1]
				if final.Outcome != engine.OutcomeResult {
					return fmt.Errorf("dialogue never force-resolved: %v", final.Outcome)
				}
				if final.ClarificationRounds != 2 {
					return fmt.Errorf("rounds = %d, want 2", final.ClarificationRounds)
				}
				return nil
			},
		},
		{
			name:    "collaborator failure surfaces as an error outcome",
			replies: []string{"CODE", "refined task"},
			runner:  failingRunner{},
			inputs:  []string{"build it"},
			check: func(results []*engine.Result) error {
				res := results[0]
				if res.Outcome != engine.OutcomeError {
					return fmt.Errorf("outcome = %v, want error", res.Outcome)
				}
				if res.FinalResult != "" {
					return fmt.Errorf("final result must stay empty on error")
				}
				return nil
			},
		},
	}

	failures := 0
	for _, sc := range scenarios {
		err := runScenario(cmd.Context(), sc)
		if err != nil {
			failures++
			fmt.Printf("%s %s\n    %v\n", failStyle.Render("FAIL"), nameStyle.Render(sc.name), err)
			continue
		}
		fmt.Printf("%s %s\n", passStyle.Render("PASS"), nameStyle.Render(sc.name))
	}

	if failures > 0 {
		return fmt.Errorf("%d of %d scenarios failed", failures, len(scenarios))
	}
	fmt.Printf("\n%d scenarios passed\n", len(scenarios))
	return nil
}

func runScenario(ctx context.Context, sc scenario) error {
	runner := sc.runner
	if runner == nil {
		runner = codegen.NewPlaceholderRunner()
	}
	eng := engine.New(llm.NewStubClient(sc.replies...), runner, memory.NewConversation(), engine.DefaultConfig(), logger)

	results := make([]*engine.Result, 0, len(sc.inputs))
	for _, input := range sc.inputs {
		results = append(results, eng.Run(ctx, input, nil))
	}
	return sc.check(results)
}

type failingRunner struct{}

func (failingRunner) Run(context.Context, string) (codegen.Result, error) {
	return codegen.Result{}, codegen.ErrTimeout
}
