package replay

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// #region types

// Message is one turn of a recorded conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Context is the reproducible evaluation input for a single evolution run.
// The judge replays the triggering interaction against each challenger using
// the canned capability responses instead of live tool calls, so evaluation
// is deterministic and side-effect free. The orchestrator passes the same
// Context on every retry of a run: retries differ only in which challengers
// were generated, never in replay nondeterminism.
type Context struct {
	Transcript       []Message         `json:"transcript"`
	FailureTurnIndex int               `json:"failure_turn_index"`
	CannedResponses  map[string]string `json:"canned_responses,omitempty"` // capability name -> fixed result
}

// #endregion types

// #region accessors

// Truncated returns the transcript up to (excluding) the failing turn, the
// point from which challengers are re-simulated.
func (c Context) Truncated() []Message {
	if c.FailureTurnIndex < 0 || c.FailureTurnIndex > len(c.Transcript) {
		return c.Transcript
	}
	return c.Transcript[:c.FailureTurnIndex]
}

// FailedResponse returns the content of the turn that triggered evolution.
func (c Context) FailedResponse() string {
	if c.FailureTurnIndex < 0 || c.FailureTurnIndex >= len(c.Transcript) {
		return ""
	}
	return c.Transcript[c.FailureTurnIndex].Content
}

// LastUserMessage returns the most recent user turn before the failure.
func (c Context) LastUserMessage() string {
	trunc := c.Truncated()
	for i := len(trunc) - 1; i >= 0; i-- {
		if trunc[i].Role == "user" {
			return trunc[i].Content
		}
	}
	return ""
}

// #endregion accessors

// #region validate

// Validate checks that the context can drive a deterministic replay.
func (c Context) Validate() error {
	if len(c.Transcript) == 0 {
		return errors.New("replay context: empty transcript")
	}
	if c.FailureTurnIndex < 0 || c.FailureTurnIndex >= len(c.Transcript) {
		return fmt.Errorf("replay context: failure turn index %d out of range [0,%d)",
			c.FailureTurnIndex, len(c.Transcript))
	}
	if c.Transcript[c.FailureTurnIndex].Role != "assistant" {
		return fmt.Errorf("replay context: failing turn %d is %q, want an assistant turn",
			c.FailureTurnIndex, c.Transcript[c.FailureTurnIndex].Role)
	}
	return nil
}

// #endregion validate

// #region fixture

// LoadFixture reads a replay context from a JSON file.
func LoadFixture(path string) (Context, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Context{}, fmt.Errorf("read fixture: %w", err)
	}
	var c Context
	if err := json.Unmarshal(data, &c); err != nil {
		return Context{}, fmt.Errorf("parse fixture: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Context{}, err
	}
	return c, nil
}

// SaveFixture writes a replay context to a JSON file.
func SaveFixture(path string, c Context) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal fixture: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write fixture: %w", err)
	}
	return nil
}

// #endregion fixture
