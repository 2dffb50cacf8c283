package orchestrator

// #region imports
import (
	"context"
	"encoding/json"
	"errors"

	"github.com/darwinpool/go-controller/internal/genome"
	"github.com/darwinpool/go-controller/internal/replay"
)

// #endregion

// #region trigger

// Trigger is the external failure signal that starts an evolution run.
type Trigger struct {
	LineageID string         `json:"lineage_id"`
	Reason    string         `json:"reason"`
	Rule      string         `json:"rule,omitempty"` // critic rule that fired, if any
	Replay    replay.Context `json:"replay"`
}

// #endregion trigger

// #region failure-context

// FailureContext is what the mutator sees about why evolution was triggered.
// Generation counts mutation passes within the run (1-based) so the mutator
// can vary its sampling on retries.
type FailureContext struct {
	Rule       string
	Reason     string
	Generation int
	Replay     replay.Context
}

// #endregion failure-context

// #region candidate

// Candidate is one mutated genome payload proposed by the mutator, tagged
// with the rationale for the mutation.
type Candidate struct {
	Payload   json.RawMessage
	Rationale string
}

// #endregion candidate

// #region adapter-contracts

// Mutator produces exactly three distinct challenger payloads from the
// active genome and the failure context. Anything else is a stage failure.
type Mutator interface {
	Generate(ctx context.Context, base json.RawMessage, failure FailureContext) ([]Candidate, error)
}

// Judge replays the triggering interaction against each challenger using
// the deterministic replay context and selects at most one winner.
type Judge interface {
	Evaluate(ctx context.Context, base genome.Version, challengers []genome.Challenger, rc replay.Context) (genome.JudgeVerdict, error)
}

// Supervisor accepts or rejects a winning challenger before it may become
// active, with a machine-readable reason.
type Supervisor interface {
	Validate(ctx context.Context, candidate json.RawMessage) (genome.SupervisorVerdict, error)
}

// #endregion adapter-contracts

// #region errors

var (
	// ErrMalformedTrigger means the trigger is missing its lineage id or
	// carries an unusable replay context. The run is rejected immediately;
	// nothing is persisted.
	ErrMalformedTrigger = errors.New("malformed trigger input")

	// ErrRunInProgress means another evolution run holds the lineage. Runs
	// are serialized per lineage; a second trigger is rejected, never run in
	// parallel.
	ErrRunInProgress = errors.New("evolution run already in progress for lineage")

	// ErrRunNotFound means no in-flight run matches the given id.
	ErrRunNotFound = errors.New("no in-flight run with that id")

	// ErrCancelTooLate means the run has progressed past the cancellation
	// window (triggered/mutating) and will complete or escalate naturally.
	ErrCancelTooLate = errors.New("run past cancellation window")
)

// #endregion errors
