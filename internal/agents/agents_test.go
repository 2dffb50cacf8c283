package agents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"github.com/darwinpool/go-controller/internal/genome"
	"github.com/darwinpool/go-controller/internal/orchestrator"
	"github.com/darwinpool/go-controller/internal/replay"
)

// #region fake-api

type fakeAPI struct {
	replies []string
	errs    []error
	reqs    []openai.ChatCompletionRequest
}

func (f *fakeAPI) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	i := len(f.reqs)
	f.reqs = append(f.reqs, req)
	if i < len(f.errs) && f.errs[i] != nil {
		return openai.ChatCompletionResponse{}, f.errs[i]
	}
	reply := ""
	if len(f.replies) > 0 {
		if i < len(f.replies) {
			reply = f.replies[i]
		} else {
			reply = f.replies[len(f.replies)-1]
		}
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: reply}},
		},
	}, nil
}

func testClient(api *fakeAPI) *Client {
	return NewClientWithAPI(api, Models{})
}

// #endregion fake-api

// #region helpers

func basePayload() json.RawMessage {
	return json.RawMessage(`{
		"persona": "You are the concierge of the Grand Meridian hotel.",
		"style_guide": ["Warm and professional tone."],
		"policy": ["Never promise refunds; only the duty manager approves refunds."],
		"knowledge_base": {"checkout": "11:00", "breakfast": "07:00-10:30"},
		"tools": [{"name": "lookup_reservation", "description": "fetch a reservation"}]
	}`)
}

func testReplayContext() replay.Context {
	return replay.Context{
		Transcript: []replay.Message{
			{Role: "user", Content: "The aircon was broken all night. I want a refund."},
			{Role: "assistant", Content: "I promise you a full refund immediately."},
		},
		FailureTurnIndex: 1,
		CannedResponses:  map[string]string{"lookup_reservation": `{"room":412,"nights":2}`},
	}
}

func testFailure() orchestrator.FailureContext {
	return orchestrator.FailureContext{
		Rule:       "no-refund-promises",
		Reason:     "agent promised a refund without manager approval",
		Generation: 1,
		Replay:     testReplayContext(),
	}
}

func mutationsReply(n int) string {
	var parts []string
	for i := 0; i < n; i++ {
		parts = append(parts, fmt.Sprintf(
			`{"payload":{"persona":"concierge variant %d","policy":["Never promise refunds."]},"rationale":"edit %d"}`, i+1, i+1))
	}
	return `{"mutations":[` + strings.Join(parts, ",") + `]}`
}

// #endregion helpers

// #region prompt-tests

func TestSystemPromptSections(t *testing.T) {
	prompt, err := SystemPrompt(basePayload())
	if err != nil {
		t.Fatalf("SystemPrompt: %v", err)
	}
	for _, want := range []string{
		"## PERSONA", "Grand Meridian",
		"## STYLE GUIDE", "## POLICY (NON-NEGOTIABLE)",
		"## KNOWLEDGE BASE", "## TOOLS", "lookup_reservation",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	// Knowledge base renders in sorted key order for stable prompts.
	if strings.Index(prompt, "breakfast") > strings.Index(prompt, "checkout") {
		t.Error("knowledge base keys not sorted")
	}
}

func TestSystemPromptRejectsCorruptPayload(t *testing.T) {
	cases := []struct {
		name    string
		payload string
	}{
		{"not json", `persona: hello`},
		{"missing persona", `{"policy":["x"]}`},
		{"blank persona", `{"persona":"   "}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := SystemPrompt(json.RawMessage(tc.payload)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestExtractJSON(t *testing.T) {
	cases := []struct {
		name  string
		reply string
		want  string
		ok    bool
	}{
		{"fenced", "Here you go:\n```json\n{\"a\":1}\n```\nDone.", `{"a":1}`, true},
		{"fenced no tag", "```\n{\"a\":1}\n```", `{"a":1}`, true},
		{"bare object", `Sure! {"a":1} hope that helps`, `{"a":1}`, true},
		{"array", `the list: [1,2,3].`, `[1,2,3]`, true},
		{"nothing", "I cannot produce JSON for that.", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ExtractJSON(tc.reply)
			if tc.ok != (err == nil) {
				t.Fatalf("err = %v, ok = %v", err, tc.ok)
			}
			if tc.ok && string(got) != tc.want {
				t.Fatalf("got %s, want %s", got, tc.want)
			}
		})
	}
}

// #endregion prompt-tests

// #region mutator-tests

func TestMutatorParsesReply(t *testing.T) {
	api := &fakeAPI{replies: []string{mutationsReply(3)}}
	m := NewMutator(testClient(api))

	out, err := m.Generate(context.Background(), basePayload(), testFailure())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("candidates = %d, want 3", len(out))
	}
	if out[0].Rationale != "edit 1" {
		t.Fatalf("rationale = %q", out[0].Rationale)
	}
	req := api.reqs[0]
	if req.Temperature != 0.8 {
		t.Fatalf("generation-1 temperature = %v, want 0.8", req.Temperature)
	}
	if !strings.Contains(req.Messages[1].Content, "no-refund-promises") {
		t.Error("user prompt missing violated rule")
	}
	if !strings.Contains(req.Messages[1].Content, "full refund immediately") {
		t.Error("user prompt missing failing response")
	}
}

func TestMutatorCoolsDownOnRetry(t *testing.T) {
	api := &fakeAPI{replies: []string{mutationsReply(3)}}
	m := NewMutator(testClient(api))

	fc := testFailure()
	fc.Generation = 2
	if _, err := m.Generate(context.Background(), basePayload(), fc); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if api.reqs[0].Temperature != 0.4 {
		t.Fatalf("retry temperature = %v, want 0.4", api.reqs[0].Temperature)
	}
}

func TestMutatorFallbackOnGarbage(t *testing.T) {
	api := &fakeAPI{replies: []string{"I'd rather not modify that prompt."}}
	m := NewMutator(testClient(api))

	out, err := m.Generate(context.Background(), basePayload(), testFailure())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("candidates = %d, want 3 fallbacks", len(out))
	}
	seen := map[string]bool{}
	for _, c := range out {
		if !strings.HasPrefix(c.Rationale, "fallback:") {
			t.Errorf("rationale = %q, want fallback", c.Rationale)
		}
		h, err := genome.ContentHash(c.Payload)
		if err != nil {
			t.Fatalf("ContentHash: %v", err)
		}
		if seen[h] {
			t.Error("fallback mutations not distinct")
		}
		seen[h] = true
	}
}

func TestMutatorPadsShortReply(t *testing.T) {
	api := &fakeAPI{replies: []string{mutationsReply(1)}}
	m := NewMutator(testClient(api))

	out, err := m.Generate(context.Background(), basePayload(), testFailure())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("candidates = %d, want 3 after padding", len(out))
	}
	if out[0].Rationale != "edit 1" {
		t.Fatalf("parsed candidate lost: %q", out[0].Rationale)
	}
	if !strings.HasPrefix(out[1].Rationale, "fallback:") || !strings.HasPrefix(out[2].Rationale, "fallback:") {
		t.Error("padding candidates should come from the fallback set")
	}
}

func TestMutatorPropagatesAPIError(t *testing.T) {
	api := &fakeAPI{errs: []error{errors.New("upstream 500")}}
	m := NewMutator(testClient(api))
	if _, err := m.Generate(context.Background(), basePayload(), testFailure()); err == nil {
		t.Fatal("expected error")
	}
}

// #endregion mutator-tests

// #region judge-tests

func judgeChallengers() []genome.Challenger {
	out := make([]genome.Challenger, 3)
	for i := range out {
		out[i] = genome.Challenger{
			AttemptIndex: i + 1,
			Payload: json.RawMessage(fmt.Sprintf(
				`{"persona":"concierge v%d","policy":["Never promise refunds; only the duty manager approves refunds."]}`, i+1)),
		}
	}
	return out
}

func TestJudgePicksWinner(t *testing.T) {
	api := &fakeAPI{replies: []string{
		"I understand, let me check with the duty manager.", // simulations
		"I'm sorry about the aircon, I will escalate this.",
		"Let me connect you with the duty manager about compensation.",
		`{"winner_id": 2, "reason": "apologizes and escalates correctly"}`,
		"COMPLIANT",
	}}
	j := NewJudge(testClient(api))

	verdict, err := j.Evaluate(context.Background(), genome.Version{Payload: basePayload()}, judgeChallengers(), testReplayContext())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if verdict.WinnerIndex != 2 {
		t.Fatalf("winner = %d, want 2", verdict.WinnerIndex)
	}
	if len(api.reqs) != 5 {
		t.Fatalf("api calls = %d, want 3 simulations + comparator + compliance", len(api.reqs))
	}
	for i, req := range api.reqs {
		if req.Temperature != 0 {
			t.Errorf("call %d temperature = %v, judging must be deterministic", i, req.Temperature)
		}
	}
	// Simulations run against canned tool results, not live calls.
	if !strings.Contains(api.reqs[0].Messages[0].Content, `{"room":412,"nights":2}`) {
		t.Error("simulation prompt missing canned tool result")
	}
}

func TestJudgeNoWinner(t *testing.T) {
	api := &fakeAPI{replies: []string{
		"reply one", "reply two", "reply three",
		`{"winner_id": -1, "reason": "all candidates still promise refunds"}`,
	}}
	j := NewJudge(testClient(api))

	verdict, err := j.Evaluate(context.Background(), genome.Version{Payload: basePayload()}, judgeChallengers(), testReplayContext())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if verdict.WinnerIndex != genome.NoWinner {
		t.Fatalf("winner = %d, want no winner", verdict.WinnerIndex)
	}
	if len(api.reqs) != 4 {
		t.Fatalf("api calls = %d, compliance must not run without a winner", len(api.reqs))
	}
}

func TestJudgeDemotesNoncompliantWinner(t *testing.T) {
	api := &fakeAPI{replies: []string{
		"reply one", "reply two", "reply three",
		`{"winner_id": 1, "reason": "best tone"}`,
		"NONCOMPLIANT",
	}}
	j := NewJudge(testClient(api))

	verdict, err := j.Evaluate(context.Background(), genome.Version{Payload: basePayload()}, judgeChallengers(), testReplayContext())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if verdict.WinnerIndex != genome.NoWinner {
		t.Fatalf("winner = %d, noncompliant winner must demote to no winner", verdict.WinnerIndex)
	}
	if !strings.Contains(verdict.Reason, "compliance") {
		t.Fatalf("reason = %q, want compliance failure", verdict.Reason)
	}
}

func TestJudgeRejectsOutOfRangeWinner(t *testing.T) {
	api := &fakeAPI{replies: []string{
		"reply one", "reply two", "reply three",
		`{"winner_id": 7, "reason": "?"}`,
	}}
	j := NewJudge(testClient(api))
	if _, err := j.Evaluate(context.Background(), genome.Version{Payload: basePayload()}, judgeChallengers(), testReplayContext()); err == nil {
		t.Fatal("expected error for out-of-range winner")
	}
}

// #endregion judge-tests

// #region supervisor-tests

func TestSupervisorVerdicts(t *testing.T) {
	cases := []struct {
		name       string
		reply      string
		approved   bool
		reasonCode string
	}{
		{"safe", "SAFE", true, "SAFE"},
		{"violation", "VIOLATION: instructs the agent to bypass refund policy", false, "POLICY_VIOLATION"},
		{"off script", "Well, it looks mostly fine to me!", false, "AUDIT_AMBIGUOUS"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			api := &fakeAPI{replies: []string{tc.reply}}
			s := NewSupervisor(testClient(api))
			v, err := s.Validate(context.Background(), basePayload())
			if err != nil {
				t.Fatalf("Validate: %v", err)
			}
			if v.Approved != tc.approved || v.ReasonCode != tc.reasonCode {
				t.Fatalf("verdict = %+v, want approved=%v code=%s", v, tc.approved, tc.reasonCode)
			}
		})
	}
}

func TestSupervisorRejectsStructuralCorruption(t *testing.T) {
	api := &fakeAPI{}
	s := NewSupervisor(testClient(api))
	v, err := s.Validate(context.Background(), json.RawMessage(`{"policy":["x"]}`))
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if v.Approved || v.ReasonCode != "STRUCTURAL_CORRUPTION" {
		t.Fatalf("verdict = %+v, want structural rejection", v)
	}
	if len(api.reqs) != 0 {
		t.Fatal("structural rejection must not call the model")
	}
}

func TestSupervisorFailsClosed(t *testing.T) {
	api := &fakeAPI{errs: []error{errors.New("gateway unreachable")}}
	s := NewSupervisor(testClient(api))
	v, err := s.Validate(context.Background(), basePayload())
	if err != nil {
		t.Fatalf("fail-closed rejection must not surface an error, got %v", err)
	}
	if v.Approved || v.ReasonCode != "AUDIT_UNAVAILABLE" {
		t.Fatalf("verdict = %+v, want fail-closed rejection", v)
	}
}

func TestSupervisorPropagatesDeadline(t *testing.T) {
	api := &fakeAPI{errs: []error{fmt.Errorf("call: %w", context.DeadlineExceeded)}}
	s := NewSupervisor(testClient(api))
	if _, err := s.Validate(context.Background(), basePayload()); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, deadline must propagate for escalation", err)
	}
}

// #endregion supervisor-tests
