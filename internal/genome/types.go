package genome

import (
	"encoding/json"
	"time"
)

// #region sentinels

// RootSentinel is the parent_hash value marking the root version of a lineage.
const RootSentinel = "ROOT"

// #endregion

// #region origin

// Origin records who authored a version.
type Origin string

const (
	OriginHuman     Origin = "human"
	OriginEvolution Origin = "evolution"
)

// #endregion

// #region lifecycle

// Lifecycle is the deployment state of a version. Archival is a flag,
// never a row deletion.
type Lifecycle string

const (
	LifecycleDraft     Lifecycle = "draft"
	LifecycleCandidate Lifecycle = "candidate"
	LifecycleActive    Lifecycle = "active"
	LifecycleArchived  Lifecycle = "archived"
	LifecycleRejected  Lifecycle = "rejected"
)

// #endregion

// #region version

// Version is an immutable, content-addressed genome snapshot.
// Once written, neither the payload nor any other field ever changes.
type Version struct {
	LineageID   string
	VersionID   string
	ContentHash string
	ParentHash  string
	Origin      Origin
	Lifecycle   Lifecycle
	Rationale   string
	Payload     json.RawMessage
	CreatedAt   time.Time
}

// IsRoot reports whether this version is the lineage root.
func (v Version) IsRoot() bool {
	return v.ParentHash == RootSentinel
}

// Summary is the listing projection of a version (payload omitted).
type Summary struct {
	VersionID   string    `json:"version_id"`
	ContentHash string    `json:"content_hash"`
	ParentHash  string    `json:"parent_hash"`
	Origin      Origin    `json:"origin"`
	Lifecycle   Lifecycle `json:"lifecycle"`
	Rationale   string    `json:"rationale,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// #endregion

// #region challenger

// Challenger is a candidate version produced mid-pipeline. It is scoped to
// an evolution run and never reachable through the active pointer; promotion
// to a full Version happens only on supervisor approval.
type Challenger struct {
	RunID        string          `json:"run_id"`
	LineageID    string          `json:"lineage_id"`
	Generation   int             `json:"generation"`    // mutation pass within the run, 1-based
	AttemptIndex int             `json:"attempt_index"` // 1..3 within a generation
	ContentHash  string          `json:"content_hash"`
	Rationale    string          `json:"rationale"`
	Payload      json.RawMessage `json:"payload"`
	CreatedAt    time.Time       `json:"created_at"`
}

// #endregion

// #region stage

// Stage names a state of the evolution state machine.
type Stage string

const (
	StageTriggered   Stage = "triggered"
	StageMutating    Stage = "mutating"
	StageJudging     Stage = "judging"
	StageSupervising Stage = "supervising"
	StageDeployed    Stage = "deployed"
	StageEscalated   Stage = "escalated"
	StageAborted     Stage = "aborted"
)

// Terminal reports whether the stage ends a run. Terminated runs are never
// resumed.
func (s Stage) Terminal() bool {
	return s == StageDeployed || s == StageEscalated || s == StageAborted
}

// #endregion

// #region run

// RunStatus is the coarse outcome of an evolution run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunDeployed  RunStatus = "deployed"
	RunEscalated RunStatus = "escalated"
	RunAborted   RunStatus = "aborted"
)

// Transition is one entry in a run's ordered stage log.
type Transition struct {
	From   Stage     `json:"from"`
	To     Stage     `json:"to"`
	Reason string    `json:"reason,omitempty"`
	At     time.Time `json:"at"`
}

// Run tracks one execution of the mutate/judge/supervise pipeline.
// Counters and the transition log are persisted after every stage change so
// a crashed process can be inspected without double-spending retry budget.
type Run struct {
	RunID             string
	LineageID         string
	TriggerReason     string
	BaseVersionID     string // active pointer observed at trigger time
	Stage             Stage
	Status            RunStatus
	JudgeRetries      int
	SupervisorRetries int
	Transitions       []Transition
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// #endregion

// #region verdicts

// JudgeVerdict is the judge's outcome for one generation of challengers.
type JudgeVerdict struct {
	WinnerIndex int    `json:"winner_index"` // 1..3, or NoWinner
	Reason      string `json:"reason"`
}

// NoWinner is the WinnerIndex value when the judge selects no challenger.
const NoWinner = -1

// SupervisorVerdict is the safety validator's decision on a winning challenger.
type SupervisorVerdict struct {
	Approved   bool   `json:"approved"`
	ReasonCode string `json:"reason_code"`
	Detail     string `json:"detail,omitempty"`
}

// AttemptRecord captures one full generation: the challengers produced and
// every verdict reached. Rejection reasons are never discarded; the final
// ticket shows the whole chain.
type AttemptRecord struct {
	Generation  int                `json:"generation"`
	Challengers []Challenger       `json:"challengers"`
	Judge       *JudgeVerdict      `json:"judge,omitempty"`
	Supervisor  *SupervisorVerdict `json:"supervisor,omitempty"`
	StageError  string             `json:"stage_error,omitempty"`
}

// #endregion

// #region ticket

// TicketKind distinguishes escalation tickets from user-feedback tickets.
type TicketKind string

const (
	TicketSystem TicketKind = "SYSTEM"
	TicketUser   TicketKind = "USER"
)

// TicketStatus is OPEN until a human resolves the ticket.
type TicketStatus string

const (
	TicketOpen     TicketStatus = "OPEN"
	TicketResolved TicketStatus = "RESOLVED"
)

// Ticket is the durable record created when automated resolution is
// exhausted. Only MarkTicketResolved may mutate it.
type Ticket struct {
	TicketID   string
	RunID      string
	LineageID  string
	Kind       TicketKind
	Status     TicketStatus
	Reason     string
	History    []AttemptRecord
	CreatedAt  time.Time
	ResolvedAt time.Time
}

// #endregion
