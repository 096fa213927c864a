package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"taskpilot/internal/codegen"
	"taskpilot/internal/llm"
	"taskpilot/internal/memory"
)

// recordingObserver captures progress callbacks for assertions.
type recordingObserver struct {
	steps  []string
	routes []Route
}

func (o *recordingObserver) Step(text string)        { o.steps = append(o.steps, text) }
func (o *recordingObserver) RouteDecided(r Route)    { o.routes = append(o.routes, r) }
func (o *recordingObserver) hasStep(substr string) bool {
	for _, s := range o.steps {
		if strings.Contains(s, substr) {
			return true
		}
	}
	return false
}

// mockRunner lets tests script the code-generation boundary.
type mockRunner struct {
	RunFunc func(ctx context.Context, task string) (codegen.Result, error)
	tasks   []string
}

func (m *mockRunner) Run(ctx context.Context, task string) (codegen.Result, error) {
	m.tasks = append(m.tasks, task)
	if m.RunFunc != nil {
		return m.RunFunc(ctx, task)
	}
	return codegen.Result{Output: "generated: " + task}, nil
}

func newTestEngine(client llm.Client, runner codegen.Runner) *Engine {
	if runner == nil {
		runner = &mockRunner{}
	}
	return New(client, runner, memory.NewConversation(), DefaultConfig(), nil)
}

func TestRun_AnswerRoute(t *testing.T) {
	stub := llm.NewStubClient(
		"ANSWER",
		"REST exposes resources over fixed endpoints; GraphQL exposes a typed query language.",
	)
	eng := newTestEngine(stub, nil)
	obs := &recordingObserver{}

	res := eng.Run(context.Background(), "What is the difference between REST and GraphQL?", obs)

	if res.Outcome != OutcomeResult {
		t.Fatalf("expected result outcome, got %v (error: %q)", res.Outcome, res.ErrorMessage)
	}
	if res.Route != RouteAnswer {
		t.Errorf("expected answer route, got %v", res.Route)
	}
	if !strings.Contains(res.FinalResult, "GraphQL") {
		t.Errorf("unexpected final result: %q", res.FinalResult)
	}
	if res.ErrorMessage != "" {
		t.Errorf("error message must stay empty on success, got %q", res.ErrorMessage)
	}
	if stub.Calls() != 2 {
		t.Errorf("expected routing + answer calls, got %d", stub.Calls())
	}
	if len(obs.routes) != 1 || obs.routes[0] != RouteAnswer {
		t.Errorf("expected exactly one route decision (answer), got %v", obs.routes)
	}

	turns := eng.Memory().Turns()
	if len(turns) != 2 || turns[1].Role != memory.RoleAssistant {
		t.Errorf("expected user+assistant turns in memory, got %v", turns)
	}
}

func TestRun_CodeRoute(t *testing.T) {
	stub := llm.NewStubClient(
		"CODE",
		"Build a Python CLI that sorts CSV rows by a given column.",
	)
	runner := &mockRunner{}
	eng := newTestEngine(stub, runner)

	res := eng.Run(context.Background(), "Build me a CSV sorting tool in Python", &recordingObserver{})

	if res.Outcome != OutcomeResult {
		t.Fatalf("expected result outcome, got %v", res.Outcome)
	}
	if res.Route != RouteCode {
		t.Errorf("expected code route, got %v", res.Route)
	}
	if len(runner.tasks) != 1 || !strings.Contains(runner.tasks[0], "CSV") {
		t.Errorf("runner did not receive refined task: %v", runner.tasks)
	}
	if res.RefinedTask != "Build a Python CLI that sorts CSV rows by a given column." {
		t.Errorf("unexpected refined task: %q", res.RefinedTask)
	}
	if !strings.Contains(res.FinalResult, "generated:") {
		t.Errorf("unexpected final result: %q", res.FinalResult)
	}
}

func TestRun_ClarificationDialogue(t *testing.T) {
	stub := llm.NewStubClient(
		"CLARIFY",
		"QUESTION: What kind of project do you want to build?",
		"CLARIFIED: inventory web app",
	)
	runner := &mockRunner{}
	eng := newTestEngine(stub, runner)
	obs := &recordingObserver{}

	res := eng.Run(context.Background(), "I want to build something", obs)

	if res.Outcome != OutcomeClarification {
		t.Fatalf("expected clarification suspension, got %v", res.Outcome)
	}
	if res.Question != "What kind of project do you want to build?" {
		t.Errorf("unexpected question: %q", res.Question)
	}
	if res.ClarificationRounds != 1 {
		t.Errorf("expected 1 round, got %d", res.ClarificationRounds)
	}
	if !eng.Pending() {
		t.Fatal("engine should be suspended")
	}

	res = eng.Run(context.Background(), "A web app for inventory", obs)

	if res.Outcome != OutcomeResult {
		t.Fatalf("expected result outcome after resolution, got %v (error: %q)", res.Outcome, res.ErrorMessage)
	}
	if !res.Clarified {
		t.Error("request should be marked clarified")
	}
	// The resolution summary is the task description; no extra refinement
	// call happens.
	if res.RefinedTask != "inventory web app" {
		t.Errorf("refined task = %q, want the clarified summary", res.RefinedTask)
	}
	if stub.Calls() != 3 {
		t.Errorf("expected routing + 2 clarification calls, got %d", stub.Calls())
	}
	if eng.Pending() {
		t.Error("no question should remain open")
	}
	if len(runner.tasks) != 1 || runner.tasks[0] != "inventory web app" {
		t.Fatalf("runner should execute the clarified summary, got %v", runner.tasks)
	}
	if !obs.hasStep("Clarification resolved: inventory web app") {
		t.Errorf("missing resolution step, got %v", obs.steps)
	}

	// The question/answer pair lives in memory.
	turns := eng.Memory().Turns()
	var sawQuestion, sawAnswer bool
	for _, turn := range turns {
		if turn.Role == memory.RoleAssistant && strings.Contains(turn.Content, "What kind of project") {
			sawQuestion = true
		}
		if turn.Role == memory.RoleUser && turn.Content == "A web app for inventory" {
			sawAnswer = true
		}
	}
	if !sawQuestion || !sawAnswer {
		t.Errorf("question/answer pair missing from memory: %v", turns)
	}
}

func TestRun_UnrecognizedRoutingFallsBackToClarify(t *testing.T) {
	stub := llm.NewStubClient(
		"I am not sure how to classify this.",
		"CLARIFIED: a small demo script",
	)
	eng := newTestEngine(stub, nil)
	obs := &recordingObserver{}

	res := eng.Run(context.Background(), "hmm", obs)

	if res.Route != RouteClarify {
		t.Errorf("expected clarify fallback route, got %v", res.Route)
	}
	if !obs.hasStep("Routing fallback") {
		t.Errorf("expected fallback step in log, got %v", obs.steps)
	}
	if res.Outcome != OutcomeResult {
		t.Errorf("fallback run should still reach a terminal result, got %v", res.Outcome)
	}
}

func TestRun_ClarificationRoundsBounded(t *testing.T) {
	stub := llm.NewStubClient(
		"CLARIFY",
		"QUESTION: first question?",
		"QUESTION: second question?",
		"QUESTION: third question?",
		"Refined despite open questions.",
	)
	runner := &mockRunner{}
	eng := newTestEngine(stub, runner)
	obs := &recordingObserver{}

	res := eng.Run(context.Background(), "vague", obs)
	if res.Outcome != OutcomeClarification || res.ClarificationRounds != 1 {
		t.Fatalf("expected first suspension, got %+v", res)
	}

	res = eng.Run(context.Background(), "still vague", obs)
	if res.Outcome != OutcomeClarification || res.ClarificationRounds != 2 {
		t.Fatalf("expected second suspension, got %+v", res)
	}

	res = eng.Run(context.Background(), "even vaguer", obs)
	if res.Outcome != OutcomeResult {
		t.Fatalf("expected forced resolution after round limit, got %v", res.Outcome)
	}
	if res.ClarificationRounds != 2 {
		t.Errorf("rounds must never exceed the bound, got %d", res.ClarificationRounds)
	}
	if !res.Clarified {
		t.Error("forced resolution should mark the request clarified")
	}
	if !obs.hasStep("Maximum clarification rounds reached") {
		t.Errorf("expected force-resolution step, got %v", obs.steps)
	}

	// The accumulated dialogue text is what gets refined.
	if len(runner.tasks) != 1 {
		t.Fatalf("expected one code-generation run, got %d", len(runner.tasks))
	}
}

func TestRun_EmptyClarificationAnswerProceedsWithOriginal(t *testing.T) {
	stub := llm.NewStubClient(
		"CLARIFY",
		"QUESTION: what exactly?",
		"Refined from the original request.",
	)
	runner := &mockRunner{}
	eng := newTestEngine(stub, runner)
	obs := &recordingObserver{}

	res := eng.Run(context.Background(), "build a thing", obs)
	if res.Outcome != OutcomeClarification {
		t.Fatalf("expected suspension, got %v", res.Outcome)
	}

	res = eng.Run(context.Background(), "   ", obs)
	if res.Outcome != OutcomeResult {
		t.Fatalf("expected terminal result, got %v (error: %q)", res.Outcome, res.ErrorMessage)
	}
	if !obs.hasStep("No clarification response") {
		t.Errorf("expected proceed-with-original step, got %v", obs.steps)
	}
	// The blank reply is not recorded as a conversation turn.
	for _, turn := range eng.Memory().Turns() {
		if strings.TrimSpace(turn.Content) == "" {
			t.Errorf("blank turn leaked into memory: %v", eng.Memory().Turns())
		}
	}
}

func TestRun_RunnerFailureProducesErrorOutcome(t *testing.T) {
	stub := llm.NewStubClient("CODE", "refined task")
	runner := &mockRunner{
		RunFunc: func(ctx context.Context, task string) (codegen.Result, error) {
			return codegen.Result{}, codegen.ErrTimeout
		},
	}
	eng := newTestEngine(stub, runner)

	res := eng.Run(context.Background(), "build it", &recordingObserver{})

	if res.Outcome != OutcomeError {
		t.Fatalf("expected error outcome, got %v", res.Outcome)
	}
	if !strings.Contains(res.ErrorMessage, "timed out") {
		t.Errorf("unexpected error message: %q", res.ErrorMessage)
	}
	if res.FinalResult != "" {
		t.Errorf("final result must stay empty on error, got %q", res.FinalResult)
	}
}

func TestRun_RunnerExitErrorIsDescribed(t *testing.T) {
	stub := llm.NewStubClient("CODE", "refined task")
	runner := &mockRunner{
		RunFunc: func(ctx context.Context, task string) (codegen.Result, error) {
			return codegen.Result{}, &codegen.ExitError{Code: 2, Stderr: "syntax error"}
		},
	}
	eng := newTestEngine(stub, runner)

	res := eng.Run(context.Background(), "build it", &recordingObserver{})

	if res.Outcome != OutcomeError {
		t.Fatalf("expected error outcome, got %v", res.Outcome)
	}
	if !strings.Contains(res.ErrorMessage, "status 2") || !strings.Contains(res.ErrorMessage, "syntax error") {
		t.Errorf("unexpected error message: %q", res.ErrorMessage)
	}
}

func TestRun_GatewayFailureStillReachesTerminal(t *testing.T) {
	failing := &failingClient{err: errors.New("connection refused")}
	eng := newTestEngine(failing, nil)

	res := eng.Run(context.Background(), "anything", &recordingObserver{})

	// Completion failures surface as text and the run still terminates.
	if res.Outcome == OutcomeClarification {
		t.Fatalf("gateway failure must not suspend the run: %+v", res)
	}
	if res.Route != RouteClarify {
		t.Errorf("unparseable routing reply should fall back to clarify, got %v", res.Route)
	}
}

type failingClient struct {
	err error
}

func (f *failingClient) Complete(context.Context, llm.CompletionRequest) (string, error) {
	return "", f.err
}

// stallingClient holds every completion until released and signals when the
// first one starts.
type stallingClient struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (c *stallingClient) Complete(ctx context.Context, _ llm.CompletionRequest) (string, error) {
	c.once.Do(func() { close(c.entered) })
	select {
	case <-c.release:
		return "ANSWER", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func TestPendingReadableDuringRun(t *testing.T) {
	client := &stallingClient{entered: make(chan struct{}), release: make(chan struct{})}
	eng := newTestEngine(client, nil)

	done := make(chan struct{})
	go func() {
		eng.Run(context.Background(), "slow request", &recordingObserver{})
		close(done)
	}()
	<-client.entered

	// Status reads must not wait for the run to finish.
	got := make(chan bool, 1)
	go func() {
		eng.PendingQuestion()
		got <- eng.Pending()
	}()
	select {
	case pending := <-got:
		if pending {
			t.Error("no question is open, Pending should be false")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Pending blocked behind the in-flight run")
	}

	close(client.release)
	<-done
}

func TestParseRoute(t *testing.T) {
	cases := []struct {
		reply   string
		want    Route
		matched bool
	}{
		{"CODE", RouteCode, true},
		{"answer", RouteAnswer, true},
		{"I think CLARIFY fits best", RouteClarify, true},
		{"This needs more Code work", RouteCode, true},
		{"no category here", RouteClarify, false},
		{"", RouteClarify, false},
	}
	for _, tc := range cases {
		got, matched := ParseRoute(tc.reply)
		if got != tc.want || matched != tc.matched {
			t.Errorf("ParseRoute(%q) = (%v, %v), want (%v, %v)", tc.reply, got, matched, tc.want, tc.matched)
		}
	}
}
