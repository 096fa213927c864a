// Package engine implements the workflow state machine that turns a user
// request into a clarifying question, a delegated code-generation task, or a
// direct answer.
//
// The graph is: Routing -> {Clarifying, Refining, Answering} -> Executing ->
// Terminal. Routing runs exactly once per request; the clarification dialogue
// is bounded; exactly one of the final result and the error message is set
// when a run completes.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"taskpilot/internal/codegen"
	"taskpilot/internal/llm"
	"taskpilot/internal/memory"
)

// Outcome classifies how a run ended.
type Outcome int

const (
	// OutcomeResult: the run produced a final answer or generated content.
	OutcomeResult Outcome = iota

	// OutcomeError: the run reached Terminal with an error message.
	OutcomeError

	// OutcomeClarification: the run is suspended on a follow-up question;
	// the next Run call on this engine is treated as the answer.
	OutcomeClarification
)

// Result is the terminal record of one engine run.
type Result struct {
	Outcome      Outcome
	Route        Route
	Clarified    bool
	RefinedTask  string
	FinalResult  string
	ErrorMessage string
	Question     string
	Steps        []string

	// ClarificationRounds is how many follow-up questions have been asked
	// for this request so far.
	ClarificationRounds int
}

// Observer receives progress while a run executes. Step is called for every
// step-log entry and for gateway progress notes; RouteDecided fires once per
// request when the routing node commits. Implementations must not block.
type Observer interface {
	Step(text string)
	RouteDecided(route Route)
}

type nopObserver struct{}

func (nopObserver) Step(string)        {}
func (nopObserver) RouteDecided(Route) {}

// Config holds per-engine settings, passed at construction. There is no
// process-wide mode state.
type Config struct {
	// MaxClarificationRounds bounds the follow-up dialogue. After this many
	// questions without resolution the request is force-resolved.
	MaxClarificationRounds int

	// MaxTokens for classification, clarification and refinement calls.
	MaxTokens int

	// AnswerMaxTokens for the direct-answer node.
	AnswerMaxTokens int

	// ContextTurns is how many trailing memory turns the routing prompt
	// includes.
	ContextTurns int
}

// DefaultConfig returns the settings the workflow was tuned against.
func DefaultConfig() Config {
	return Config{
		MaxClarificationRounds: 2,
		MaxTokens:              llm.DefaultMaxTokens,
		AnswerMaxTokens:        llm.AnswerMaxTokens,
		ContextTurns:           3,
	}
}

// pendingClarification is the suspension record between a follow-up question
// and the user's next message.
type pendingClarification struct {
	input    string // accumulated request text ("original - answer - ...")
	question string
	rounds   int
}

// Engine drives the workflow for one session. It is not safe for concurrent
// runs; the session layer guarantees one request at a time and the internal
// mutex enforces it.
type Engine struct {
	mu      sync.Mutex
	client  llm.Client
	runner  codegen.Runner
	history *memory.Conversation
	cfg     Config
	logger  *zap.Logger

	// pending has its own lock so status reads never wait on an in-flight
	// run holding mu.
	pendingMu sync.Mutex
	pending   *pendingClarification
}

// New creates an engine bound to a session's conversation memory.
func New(client llm.Client, runner codegen.Runner, history *memory.Conversation, cfg Config, logger *zap.Logger) *Engine {
	if cfg.MaxClarificationRounds <= 0 {
		cfg.MaxClarificationRounds = DefaultConfig().MaxClarificationRounds
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultConfig().MaxTokens
	}
	if cfg.AnswerMaxTokens <= 0 {
		cfg.AnswerMaxTokens = DefaultConfig().AnswerMaxTokens
	}
	if cfg.ContextTurns <= 0 {
		cfg.ContextTurns = DefaultConfig().ContextTurns
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		client:  client,
		runner:  runner,
		history: history,
		cfg:     cfg,
		logger:  logger,
	}
}

// Memory returns the conversation this engine appends to.
func (e *Engine) Memory() *memory.Conversation {
	return e.history
}

// Pending reports whether the engine is suspended on a clarification
// question. Safe to call while a run is in flight.
func (e *Engine) Pending() bool {
	e.pendingMu.Lock()
	defer e.pendingMu.Unlock()
	return e.pending != nil
}

// PendingQuestion returns the open follow-up question, if any. Safe to call
// while a run is in flight.
func (e *Engine) PendingQuestion() string {
	e.pendingMu.Lock()
	defer e.pendingMu.Unlock()
	if e.pending == nil {
		return ""
	}
	return e.pending.question
}

func (e *Engine) setPending(p *pendingClarification) {
	e.pendingMu.Lock()
	e.pending = p
	e.pendingMu.Unlock()
}

func (e *Engine) takePending() *pendingClarification {
	e.pendingMu.Lock()
	defer e.pendingMu.Unlock()
	p := e.pending
	e.pending = nil
	return p
}

// state is the mutable record threaded through the workflow nodes.
type state struct {
	input               string
	clarified           bool
	clarificationRounds int
	route               Route
	refinedTask         string
	finalResult         string
	errorMessage        string
	steps               []string
	obs                 Observer
}

func (s *state) addStep(text string) {
	s.steps = append(s.steps, text)
	s.obs.Step(text)
}

// Run processes one user message to a terminal outcome or a clarification
// suspension. If a previous run suspended, input is consumed as the answer
// to the open question.
func (e *Engine) Run(ctx context.Context, input string, obs Observer) *Result {
	e.mu.Lock()
	defer e.mu.Unlock()

	if obs == nil {
		obs = nopObserver{}
	}
	gw := llm.NewGateway(e.client, obs.Step, e.logger)

	if p := e.takePending(); p != nil {
		return e.resumeClarification(ctx, gw, p, input, obs)
	}

	st := &state{input: input, obs: obs}
	e.history.Append(memory.RoleUser, input)
	st.addStep("Request received and processing started")

	e.routeRequest(ctx, gw, st)

	switch st.route {
	case RouteAnswer:
		e.answerDirectly(ctx, gw, st)
	case RouteCode:
		e.refineTask(ctx, gw, st)
		e.executeTask(ctx, st)
	default:
		if suspended := e.clarifyLoop(ctx, gw, st); suspended {
			return e.suspendResult(st)
		}
		e.refineTask(ctx, gw, st)
		e.executeTask(ctx, st)
	}

	return e.terminalResult(st)
}

// resumeClarification consumes the user's answer to an open follow-up
// question and re-runs the resolution check.
func (e *Engine) resumeClarification(ctx context.Context, gw *llm.Gateway, p *pendingClarification, input string, obs Observer) *Result {
	st := &state{
		input:               p.input,
		route:               RouteClarify,
		clarificationRounds: p.rounds,
		obs:                 obs,
	}

	answer := strings.TrimSpace(input)
	if answer == "" {
		// No usable answer: proceed with what we have.
		st.clarified = true
		st.addStep("No clarification response - proceeding with original request")
	} else {
		e.history.Append(memory.RoleUser, answer)
		st.input = p.input + " - " + answer
		st.addStep("Received clarification response: " + answer)

		if suspended := e.clarifyLoop(ctx, gw, st); suspended {
			return e.suspendResult(st)
		}
	}

	e.refineTask(ctx, gw, st)
	e.executeTask(ctx, st)
	return e.terminalResult(st)
}

// routeRequest classifies the request. Runs exactly once per request; the
// route is immutable afterwards.
func (e *Engine) routeRequest(ctx context.Context, gw *llm.Gateway, st *state) {
	st.addStep("Routing the request")

	prompt := fmt.Sprintf("User request: %q\n\nConversation context:\n%s\nHow should this request be routed?",
		st.input, formatTurns(e.history.LastN(e.cfg.ContextTurns)))
	reply := gw.Complete(ctx, llm.Prompt(routingSystemPrompt, prompt, e.cfg.MaxTokens))
	st.addStep("Routing analysis result: " + firstLine(reply))

	route, matched := ParseRoute(reply)
	if !matched {
		st.addStep("Routing fallback - defaulting to clarify")
	}
	st.route = route
	st.obs.RouteDecided(route)
	st.addStep("Route decision: " + route.String())
	e.logger.Debug("request routed", zap.String("route", route.String()))
}

// clarifyLoop runs the resolution check. It returns true when the run is
// suspended on a new follow-up question; otherwise the state is clarified
// (by resolution, bound exhaustion, or fallback) and the caller continues to
// the refinement node.
func (e *Engine) clarifyLoop(ctx context.Context, gw *llm.Gateway, st *state) bool {
	st.addStep("Checking whether the request is specific enough")

	prompt := fmt.Sprintf("User request: %q\n\nConversation context:\n%s\nFollow-up questions already asked: %d\n\nIs this request clear enough to proceed?",
		st.input, formatTurns(e.history.LastN(e.cfg.ContextTurns*2)), st.clarificationRounds)
	reply := gw.Complete(ctx, llm.Prompt(clarifySystemPrompt, prompt, e.cfg.MaxTokens))

	switch {
	case strings.HasPrefix(reply, markerClarified):
		st.clarified = true
		st.refinedTask = strings.TrimSpace(strings.TrimPrefix(reply, markerClarified))
		st.addStep("Clarification resolved: " + st.refinedTask)
		return false

	case strings.HasPrefix(reply, markerQuestion):
		question := strings.TrimSpace(strings.TrimPrefix(reply, markerQuestion))
		if st.clarificationRounds >= e.cfg.MaxClarificationRounds {
			// Bounded dialogue: stop asking and work with what we have.
			st.clarified = true
			st.addStep("Maximum clarification rounds reached - proceeding anyway")
			return false
		}
		st.clarificationRounds++
		e.history.Append(memory.RoleAssistant, question)
		st.addStep("Asked clarification question: " + question)
		e.setPending(&pendingClarification{
			input:    st.input,
			question: question,
			rounds:   st.clarificationRounds,
		})
		return true

	default:
		st.clarified = true
		st.addStep("Clarification fallback - proceeding with original request")
		return false
	}
}

// refineTask restates the request as an actionable task description for the
// code-generation collaborator. A summary produced by clarification
// resolution already is that description, so it passes through untouched.
func (e *Engine) refineTask(ctx context.Context, gw *llm.Gateway, st *state) {
	if st.refinedTask != "" {
		st.addStep("Using clarified summary as the task description")
		return
	}

	st.addStep("Refining the request into an actionable task")
	prompt := fmt.Sprintf("User request: %q\n\nConversation context:\n%s\nRefine this into a clear, actionable task description.",
		st.input, formatTurns(e.history.LastN(e.cfg.ContextTurns*2)))
	st.refinedTask = gw.Complete(ctx, llm.Prompt(refineSystemPrompt, prompt, e.cfg.MaxTokens))
	st.addStep("Task refinement completed")
}

// executeTask hands the refined task to the code-generation collaborator.
func (e *Engine) executeTask(ctx context.Context, st *state) {
	st.addStep("Executing code generation task")

	res, err := e.runner.Run(ctx, st.refinedTask)
	if err != nil {
		st.errorMessage = describeRunnerError(err)
		st.addStep("Code generation failed: " + st.errorMessage)
		e.logger.Warn("code generation failed", zap.Error(err))
		return
	}

	st.finalResult = res.Output
	e.history.Append(memory.RoleAssistant, res.Output)
	st.addStep("Code generation completed")
}

// answerDirectly produces an informational answer without the code path.
func (e *Engine) answerDirectly(ctx context.Context, gw *llm.Gateway, st *state) {
	st.addStep("Generating direct answer")

	prompt := fmt.Sprintf("User question: %q\n\nConversation context:\n%s\nProvide a complete answer to this question.",
		st.input, formatTurns(e.history.LastN(e.cfg.ContextTurns*2)))
	answer := gw.Complete(ctx, llm.CompletionRequest{
		System:    answerSystemPrompt,
		Messages:  []memory.Turn{{Role: memory.RoleUser, Content: prompt}},
		MaxTokens: e.cfg.AnswerMaxTokens,
	})

	st.finalResult = answer
	e.history.Append(memory.RoleAssistant, answer)
	st.addStep("Direct answer generated")
}

func (e *Engine) suspendResult(st *state) *Result {
	return &Result{
		Outcome:             OutcomeClarification,
		Route:               st.route,
		Clarified:           st.clarified,
		Question:            e.PendingQuestion(),
		Steps:               st.steps,
		ClarificationRounds: st.clarificationRounds,
	}
}

func (e *Engine) terminalResult(st *state) *Result {
	out := OutcomeResult
	if st.errorMessage != "" {
		out = OutcomeError
	}
	return &Result{
		Outcome:             out,
		Route:               st.route,
		Clarified:           st.clarified,
		RefinedTask:         st.refinedTask,
		FinalResult:         st.finalResult,
		ErrorMessage:        st.errorMessage,
		Steps:               st.steps,
		ClarificationRounds: st.clarificationRounds,
	}
}

func describeRunnerError(err error) string {
	var exitErr *codegen.ExitError
	switch {
	case errors.Is(err, codegen.ErrTimeout):
		return "code generation timed out"
	case errors.Is(err, codegen.ErrMalformedOutput):
		return "code generation produced malformed output"
	case errors.As(err, &exitErr):
		return fmt.Sprintf("code generation exited with status %d: %s", exitErr.Code, exitErr.Stderr)
	default:
		return fmt.Sprintf("code generation failed: %v", err)
	}
}

func formatTurns(turns []memory.Turn) string {
	if len(turns) == 0 {
		return "(none)\n"
	}
	var b strings.Builder
	for _, t := range turns {
		b.WriteString(t.Role)
		b.WriteString(": ")
		b.WriteString(t.Content)
		b.WriteString("\n")
	}
	return b.String()
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}
