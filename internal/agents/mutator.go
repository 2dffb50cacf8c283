package agents

// #region imports
import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/darwinpool/go-controller/internal/orchestrator"
)

// #endregion

// #region prompts

const mutatorSystem = `You improve system-prompt genomes for conversational agents.
Given the current genome, the policy rule it violated, and the failing
conversation, produce exactly 3 distinct mutated genomes. Each mutation must
keep the genome's JSON structure and address the failure differently.
Respond with JSON only:
{"mutations":[{"payload":{...},"rationale":"..."},{"payload":{...},"rationale":"..."},{"payload":{...},"rationale":"..."}]}`

// #endregion prompts

// #region mutator

// Mutator generates challenger genomes from a failure. The first generation
// runs hot for diversity; retries cool down so the model converges on safer
// edits.
type Mutator struct {
	client *Client
}

// NewMutator wires a mutation generator to a shared client.
func NewMutator(c *Client) *Mutator {
	return &Mutator{client: c}
}

func (m *Mutator) Generate(ctx context.Context, base json.RawMessage, fc orchestrator.FailureContext) ([]orchestrator.Candidate, error) {
	temp := float32(0.8)
	if fc.Generation > 1 {
		temp = 0.4
	}

	var user strings.Builder
	fmt.Fprintf(&user, "Current genome:\n%s\n\n", string(base))
	if fc.Rule != "" {
		fmt.Fprintf(&user, "Violated rule: %s\n", fc.Rule)
	}
	fmt.Fprintf(&user, "Failure reason: %s\n\n", fc.Reason)
	fmt.Fprintf(&user, "Guest turn that exposed the failure:\n%s\n\n", fc.Replay.LastUserMessage())
	fmt.Fprintf(&user, "Agent response that violated policy:\n%s\n", fc.Replay.FailedResponse())

	reply, err := m.client.complete(ctx, m.client.models.Mutator, mutatorSystem, user.String(), temp)
	if err != nil {
		return nil, fmt.Errorf("mutator: %w", err)
	}

	candidates, err := parseMutations(reply)
	if err != nil {
		// The model broke contract, not the pipeline: substitute the
		// deterministic fallback set instead of burning a retry.
		log.Printf("[AGENT] mutator reply unusable (%v), using fallback mutations", err)
		return fallbackMutations(base)
	}
	if len(candidates) > 3 {
		candidates = candidates[:3]
	}
	if len(candidates) < 3 {
		fill, ferr := fallbackMutations(base)
		if ferr != nil {
			return nil, ferr
		}
		candidates = append(candidates, fill[len(candidates):]...)
	}
	return candidates, nil
}

func parseMutations(reply string) ([]orchestrator.Candidate, error) {
	doc, err := ExtractJSON(reply)
	if err != nil {
		return nil, err
	}
	var parsed struct {
		Mutations []struct {
			Payload   json.RawMessage `json:"payload"`
			Rationale string          `json:"rationale"`
		} `json:"mutations"`
	}
	if err := json.Unmarshal(doc, &parsed); err != nil {
		return nil, fmt.Errorf("decode mutations: %w", err)
	}
	if len(parsed.Mutations) == 0 {
		return nil, fmt.Errorf("reply carried no mutations")
	}
	out := make([]orchestrator.Candidate, 0, len(parsed.Mutations))
	for i, mu := range parsed.Mutations {
		if _, err := SystemPrompt(mu.Payload); err != nil {
			return nil, fmt.Errorf("mutation %d: %w", i+1, err)
		}
		out = append(out, orchestrator.Candidate{Payload: mu.Payload, Rationale: mu.Rationale})
	}
	return out, nil
}

// #endregion mutator

// #region fallback

// fallbackMutations derives three deterministic edits from the base genome:
// stricter policy adherence, more empathy, more concision. Used when the
// model's reply cannot be parsed.
func fallbackMutations(base json.RawMessage) ([]orchestrator.Candidate, error) {
	edits := []struct {
		field     func(p *Payload, line string)
		line      string
		rationale string
	}{
		{
			field:     func(p *Payload, l string) { p.OperationalGuidelines = append(p.OperationalGuidelines, l) },
			line:      "Strictly follow every policy rule; never promise actions the policy does not allow.",
			rationale: "fallback: tighten policy adherence",
		},
		{
			field:     func(p *Payload, l string) { p.StyleGuide = append(p.StyleGuide, l) },
			line:      "Acknowledge the guest's frustration before giving your answer.",
			rationale: "fallback: add empathy to the style guide",
		},
		{
			field:     func(p *Payload, l string) { p.StyleGuide = append(p.StyleGuide, l) },
			line:      "Keep replies under three sentences unless the guest asks for detail.",
			rationale: "fallback: favor concise replies",
		},
	}

	out := make([]orchestrator.Candidate, 0, len(edits))
	for _, e := range edits {
		var p Payload
		if err := json.Unmarshal(base, &p); err != nil {
			return nil, fmt.Errorf("fallback mutations: %w", err)
		}
		e.field(&p, e.line)
		payload, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("fallback mutations: %w", err)
		}
		out = append(out, orchestrator.Candidate{Payload: payload, Rationale: e.rationale})
	}
	return out, nil
}

// #endregion fallback
