package agents

// #region imports
import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// #endregion

// #region payload

// Payload is the genome document every agent operates on. Unknown fields
// pass through untouched at the store layer; only the agents need this
// shape.
type Payload struct {
	Persona               string            `json:"persona"`
	StyleGuide            []string          `json:"style_guide,omitempty"`
	Objectives            []string          `json:"objectives,omitempty"`
	OperationalGuidelines []string          `json:"operational_guidelines,omitempty"`
	KnowledgeBase         map[string]string `json:"knowledge_base,omitempty"`
	Policy                []string          `json:"policy,omitempty"`
	Tools                 []Tool            `json:"tools,omitempty"`
}

// Tool declares an externally-callable capability the genome may reference.
type Tool struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// #endregion payload

// #region system-prompt

// SystemPrompt renders a genome payload into the system prompt its agent
// runs with. A payload that cannot render is structurally corrupt and must
// never be deployed.
func SystemPrompt(raw json.RawMessage) (string, error) {
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return "", fmt.Errorf("decode genome payload: %w", err)
	}
	if strings.TrimSpace(p.Persona) == "" {
		return "", errors.New("genome payload missing persona")
	}

	var b strings.Builder
	b.WriteString("## PERSONA\n")
	b.WriteString(p.Persona)
	b.WriteString("\n")

	writeList(&b, "STYLE GUIDE", p.StyleGuide)
	writeList(&b, "OBJECTIVES", p.Objectives)
	writeList(&b, "OPERATIONAL GUIDELINES", p.OperationalGuidelines)

	if len(p.KnowledgeBase) > 0 {
		b.WriteString("\n## KNOWLEDGE BASE\n")
		keys := make([]string, 0, len(p.KnowledgeBase))
		for k := range p.KnowledgeBase {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "- %s: %s\n", k, p.KnowledgeBase[k])
		}
	}

	writeList(&b, "POLICY (NON-NEGOTIABLE)", p.Policy)

	if len(p.Tools) > 0 {
		b.WriteString("\n## TOOLS\n")
		for _, t := range p.Tools {
			if t.Description != "" {
				fmt.Fprintf(&b, "- %s: %s\n", t.Name, t.Description)
			} else {
				fmt.Fprintf(&b, "- %s\n", t.Name)
			}
		}
	}
	return b.String(), nil
}

func writeList(b *strings.Builder, heading string, items []string) {
	if len(items) == 0 {
		return
	}
	b.WriteString("\n## " + heading + "\n")
	for _, it := range items {
		b.WriteString("- " + it + "\n")
	}
}

// #endregion system-prompt
