package agents

// #region imports
import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/darwinpool/go-controller/internal/genome"
	"github.com/darwinpool/go-controller/internal/replay"
)

// #endregion

// #region prompts

const comparatorSystem = `You are a strict evaluator of conversational agents.
You are shown a guest conversation that ended in a policy-violating agent
response, followed by candidate replacement responses produced by mutated
agents replaying the same conversation. Pick the single candidate that fixes
the violation while best serving the guest, or -1 if none does.
Respond with JSON only: {"winner_id": <1-based index or -1>, "reason": "..."}`

const complianceSystem = `You are a compliance checker. You are shown an agent
response and the policy it must satisfy. Answer with exactly one word:
COMPLIANT or NONCOMPLIANT.`

// #endregion prompts

// #region judge

// Judge replays the failing interaction against each challenger, compares
// the outcomes, and confirms the picked winner against the genome's policy.
// All model calls run at temperature zero so a retried run with the same
// challengers reaches the same verdict.
type Judge struct {
	client *Client
}

// NewJudge wires a candidate evaluator to a shared client.
func NewJudge(c *Client) *Judge {
	return &Judge{client: c}
}

func (j *Judge) Evaluate(ctx context.Context, base genome.Version, challengers []genome.Challenger, rc replay.Context) (genome.JudgeVerdict, error) {
	replies := make([]string, len(challengers))
	for i, ch := range challengers {
		reply, err := j.simulate(ctx, ch.Payload, rc)
		if err != nil {
			return genome.JudgeVerdict{}, fmt.Errorf("simulate challenger %d: %w", i+1, err)
		}
		replies[i] = reply
	}

	verdict, err := j.compare(ctx, rc, replies)
	if err != nil {
		return genome.JudgeVerdict{}, err
	}
	if verdict.WinnerIndex == genome.NoWinner {
		return verdict, nil
	}
	if verdict.WinnerIndex < 1 || verdict.WinnerIndex > len(challengers) {
		return genome.JudgeVerdict{}, fmt.Errorf("comparator picked out-of-range winner %d", verdict.WinnerIndex)
	}

	ok, err := j.checkCompliance(ctx, challengers[verdict.WinnerIndex-1].Payload, replies[verdict.WinnerIndex-1])
	if err != nil {
		return genome.JudgeVerdict{}, err
	}
	if !ok {
		log.Printf("[AGENT] judge winner %d failed compliance check, demoting to no winner", verdict.WinnerIndex)
		return genome.JudgeVerdict{
			WinnerIndex: genome.NoWinner,
			Reason:      fmt.Sprintf("candidate %d won comparison but failed policy compliance", verdict.WinnerIndex),
		}, nil
	}
	return verdict, nil
}

// #endregion judge

// #region simulate

// simulate re-runs the truncated transcript under a challenger genome. Tool
// calls are satisfied from the canned responses so the run is hermetic.
func (j *Judge) simulate(ctx context.Context, payload json.RawMessage, rc replay.Context) (string, error) {
	system, err := SystemPrompt(payload)
	if err != nil {
		return "", err
	}
	if len(rc.CannedResponses) > 0 {
		var b strings.Builder
		b.WriteString(system)
		b.WriteString("\n## TOOL RESULTS (PRECOMPUTED)\nUse these fixed results instead of calling any tool:\n")
		names := make([]string, 0, len(rc.CannedResponses))
		for name := range rc.CannedResponses {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(&b, "- %s: %s\n", name, rc.CannedResponses[name])
		}
		system = b.String()
	}

	var convo strings.Builder
	for _, m := range rc.Truncated() {
		fmt.Fprintf(&convo, "%s: %s\n", m.Role, m.Content)
	}
	convo.WriteString("assistant:")

	return j.client.complete(ctx, j.client.models.Judge, system, convo.String(), 0)
}

// #endregion simulate

// #region compare

func (j *Judge) compare(ctx context.Context, rc replay.Context, replies []string) (genome.JudgeVerdict, error) {
	var user strings.Builder
	user.WriteString("Conversation before the failure:\n")
	for _, m := range rc.Truncated() {
		fmt.Fprintf(&user, "%s: %s\n", m.Role, m.Content)
	}
	fmt.Fprintf(&user, "\nOriginal violating response:\n%s\n", rc.FailedResponse())
	for i, reply := range replies {
		fmt.Fprintf(&user, "\nCandidate %d:\n%s\n", i+1, reply)
	}

	raw, err := j.client.complete(ctx, j.client.models.Judge, comparatorSystem, user.String(), 0)
	if err != nil {
		return genome.JudgeVerdict{}, fmt.Errorf("comparator: %w", err)
	}
	doc, err := ExtractJSON(raw)
	if err != nil {
		return genome.JudgeVerdict{}, fmt.Errorf("comparator reply: %w", err)
	}
	var parsed struct {
		WinnerID int    `json:"winner_id"`
		Reason   string `json:"reason"`
	}
	if err := json.Unmarshal(doc, &parsed); err != nil {
		return genome.JudgeVerdict{}, fmt.Errorf("decode comparator verdict: %w", err)
	}
	return genome.JudgeVerdict{WinnerIndex: parsed.WinnerID, Reason: parsed.Reason}, nil
}

// #endregion compare

// #region compliance

func (j *Judge) checkCompliance(ctx context.Context, payload json.RawMessage, reply string) (bool, error) {
	var p Payload
	if err := json.Unmarshal(payload, &p); err != nil {
		return false, fmt.Errorf("compliance check: %w", err)
	}
	if len(p.Policy) == 0 {
		return true, nil
	}

	var user strings.Builder
	user.WriteString("Policy:\n")
	for _, rule := range p.Policy {
		user.WriteString("- " + rule + "\n")
	}
	fmt.Fprintf(&user, "\nAgent response:\n%s\n", reply)

	raw, err := j.client.complete(ctx, j.client.models.Judge, complianceSystem, user.String(), 0)
	if err != nil {
		return false, fmt.Errorf("compliance check: %w", err)
	}
	up := strings.ToUpper(strings.TrimSpace(raw))
	if strings.Contains(up, "NONCOMPLIANT") {
		return false, nil
	}
	return strings.Contains(up, "COMPLIANT"), nil
}

// #endregion compliance
