package orchestrator

// #region imports
import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/darwinpool/go-controller/internal/genome"
	"github.com/darwinpool/go-controller/internal/store"
)

// #endregion

// #region constants

// maxStageRetries caps each loop's failure counter independently. A loop
// escalates once its counter reaches the cap; judge and supervisor budgets
// are never pooled.
const maxStageRetries = 2

// #endregion

// #region timeouts

// Timeouts bounds each external adapter call. Exceeding one is treated the
// same as an unrecoverable adapter error: the run escalates instead of
// hanging.
type Timeouts struct {
	Mutate    time.Duration
	Judge     time.Duration
	Supervise time.Duration
}

// DefaultTimeouts returns the stage budgets used in production.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Mutate:    60 * time.Second,
		Judge:     120 * time.Second,
		Supervise: 30 * time.Second,
	}
}

// #endregion

// #region engine

// Engine drives the evolution state machine: mutate, judge, supervise, with
// bounded retries, conflict-safe promotion, and escalation tickets.
// Concurrency exists across lineages only; runs within a lineage are
// serialized.
type Engine struct {
	store      *store.Store
	mutator    Mutator
	judge      Judge
	supervisor Supervisor
	timeouts   Timeouts

	mu        sync.Mutex
	byLineage map[string]*runHandle
	byRun     map[string]*runHandle
}

type runHandle struct {
	mu        sync.Mutex
	runID     string
	lineageID string
	stage     genome.Stage
	cancelled bool
}

func (h *runHandle) setStage(s genome.Stage) {
	h.mu.Lock()
	h.stage = s
	h.mu.Unlock()
}

func (h *runHandle) isCancelled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cancelled
}

// NewEngine creates a fully wired orchestrator.
func NewEngine(st *store.Store, m Mutator, j Judge, sup Supervisor, t Timeouts) *Engine {
	def := DefaultTimeouts()
	if t.Mutate <= 0 {
		t.Mutate = def.Mutate
	}
	if t.Judge <= 0 {
		t.Judge = def.Judge
	}
	if t.Supervise <= 0 {
		t.Supervise = def.Supervise
	}
	return &Engine{
		store:      st,
		mutator:    m,
		judge:      j,
		supervisor: sup,
		timeouts:   t,
		byLineage:  make(map[string]*runHandle),
		byRun:      make(map[string]*runHandle),
	}
}

// #endregion engine

// #region execute

// Execute runs one trigger through the full pipeline and returns the
// terminated run. The active pointer observed here is the compare-and-swap
// expectation at deploy time; a concurrent human deploy or rollback is never
// clobbered.
func (e *Engine) Execute(ctx context.Context, trig Trigger) (genome.Run, error) {
	if trig.LineageID == "" {
		log.Printf("[ORCH] rejected trigger without lineage id (reason=%q)", trig.Reason)
		return genome.Run{Status: genome.RunAborted}, ErrMalformedTrigger
	}
	if err := trig.Replay.Validate(); err != nil {
		return genome.Run{Status: genome.RunAborted}, fmt.Errorf("%w: %v", ErrMalformedTrigger, err)
	}

	runID := uuid.NewString()
	handle, err := e.acquire(trig.LineageID, runID)
	if err != nil {
		return genome.Run{}, err
	}
	defer e.release(handle)

	base, err := e.store.Resolve(trig.LineageID)
	if err != nil {
		return genome.Run{}, fmt.Errorf("resolve active genome: %w", err)
	}

	run := genome.Run{
		RunID:         runID,
		LineageID:     trig.LineageID,
		TriggerReason: trig.Reason,
		BaseVersionID: base.VersionID,
		Stage:         genome.StageTriggered,
		Status:        genome.RunRunning,
		CreatedAt:     time.Now().UTC(),
	}
	if err := e.store.SaveRun(run); err != nil {
		return run, fmt.Errorf("persist run: %w", err)
	}
	log.Printf("[ORCH] run %s triggered for %s (base=%s): %s",
		run.RunID, run.LineageID, run.BaseVersionID, run.TriggerReason)

	var history []genome.AttemptRecord
	reason := "trigger accepted"

	for gen := 1; ; gen++ {
		if handle.isCancelled() {
			if err := e.transition(&run, genome.StageAborted, "cancelled"); err != nil {
				return run, err
			}
			return run, nil
		}
		if err := e.transition(&run, genome.StageMutating, reason); err != nil {
			return run, err
		}
		handle.setStage(genome.StageMutating)

		rec := genome.AttemptRecord{Generation: gen}
		fc := FailureContext{Rule: trig.Rule, Reason: trig.Reason, Generation: gen, Replay: trig.Replay}

		mctx, cancel := context.WithTimeout(ctx, e.timeouts.Mutate)
		candidates, err := e.mutator.Generate(mctx, base.Payload, fc)
		cancel()
		if err == nil && len(candidates) != 3 {
			err = fmt.Errorf("mutator produced %d candidates, want 3", len(candidates))
		}
		if err != nil {
			done, res, rerr := e.stageFailure(&run, &history, rec, err, "mutation", &run.JudgeRetries, &reason)
			if done {
				return res, rerr
			}
			continue
		}

		challengers, err := e.recordChallengers(&run, gen, candidates)
		if err != nil {
			done, res, rerr := e.stageFailure(&run, &history, rec, err, "mutation", &run.JudgeRetries, &reason)
			if done {
				return res, rerr
			}
			continue
		}
		rec.Challengers = challengers

		// Last cancellation point: past here the run completes or rolls
		// into retry/escalation naturally.
		if handle.isCancelled() {
			if err := e.transition(&run, genome.StageAborted, "cancelled"); err != nil {
				return run, err
			}
			return run, nil
		}

		if err := e.transition(&run, genome.StageJudging, fmt.Sprintf("%d challengers produced", len(challengers))); err != nil {
			return run, err
		}
		handle.setStage(genome.StageJudging)

		jctx, cancel := context.WithTimeout(ctx, e.timeouts.Judge)
		verdict, err := e.judge.Evaluate(jctx, base, challengers, trig.Replay)
		cancel()
		if err == nil && verdict.WinnerIndex != genome.NoWinner &&
			(verdict.WinnerIndex < 1 || verdict.WinnerIndex > len(challengers)) {
			err = fmt.Errorf("judge selected out-of-range challenger %d", verdict.WinnerIndex)
		}
		if err != nil {
			done, res, rerr := e.stageFailure(&run, &history, rec, err, "judge", &run.JudgeRetries, &reason)
			if done {
				return res, rerr
			}
			continue
		}
		rec.Judge = &verdict

		if verdict.WinnerIndex == genome.NoWinner {
			history = append(history, rec)
			run.JudgeRetries++
			if run.JudgeRetries >= maxStageRetries {
				return e.escalate(&run, history, "no winner after judge retries exhausted: "+verdict.Reason)
			}
			reason = fmt.Sprintf("no winner (judge retry %d/%d)", run.JudgeRetries, maxStageRetries)
			continue
		}
		winner := challengers[verdict.WinnerIndex-1]

		if err := e.transition(&run, genome.StageSupervising, fmt.Sprintf("winner: challenger %d", verdict.WinnerIndex)); err != nil {
			return run, err
		}
		handle.setStage(genome.StageSupervising)

		sctx, cancel := context.WithTimeout(ctx, e.timeouts.Supervise)
		sv, err := e.supervisor.Validate(sctx, winner.Payload)
		cancel()
		if err != nil {
			done, res, rerr := e.stageFailure(&run, &history, rec, err, "supervisor", &run.SupervisorRetries, &reason)
			if done {
				return res, rerr
			}
			continue
		}
		rec.Supervisor = &sv
		history = append(history, rec)

		if !sv.Approved {
			run.SupervisorRetries++
			if run.SupervisorRetries >= maxStageRetries {
				return e.escalate(&run, history,
					fmt.Sprintf("supervisor rejected after retries exhausted: %s: %s", sv.ReasonCode, sv.Detail))
			}
			reason = fmt.Sprintf("rejected: %s (supervisor retry %d/%d)", sv.ReasonCode, run.SupervisorRetries, maxStageRetries)
			continue
		}

		return e.promote(&run, base, winner, history)
	}
}

// #endregion execute

// #region stage-failure

// stageFailure routes an adapter failure: a timeout escalates immediately,
// external cancellation surfaces, anything else consumes one retry slot of
// the owning stage and loops back to mutating. Returns done=true when the
// run has terminated.
func (e *Engine) stageFailure(run *genome.Run, history *[]genome.AttemptRecord, rec genome.AttemptRecord,
	err error, stage string, retries *int, reason *string) (bool, genome.Run, error) {

	if errors.Is(err, context.Canceled) {
		return true, *run, err
	}

	rec.StageError = stage + " stage: " + err.Error()
	*history = append(*history, rec)

	if errors.Is(err, context.DeadlineExceeded) {
		res, rerr := e.escalate(run, *history, stage+" stage timeout")
		return true, res, rerr
	}
	*retries++
	if *retries >= maxStageRetries {
		res, rerr := e.escalate(run, *history, rec.StageError)
		return true, res, rerr
	}
	*reason = fmt.Sprintf("%s failed (retry %d/%d)", stage, *retries, maxStageRetries)
	log.Printf("[ORCH] run %s: %s", run.RunID, rec.StageError)
	return false, genome.Run{}, nil
}

// #endregion stage-failure

// #region record-challengers

func (e *Engine) recordChallengers(run *genome.Run, gen int, candidates []Candidate) ([]genome.Challenger, error) {
	challengers := make([]genome.Challenger, 0, len(candidates))
	for i, cand := range candidates {
		hash, err := genome.ContentHash(cand.Payload)
		if err != nil {
			return nil, fmt.Errorf("candidate %d: %w", i+1, err)
		}
		ch := genome.Challenger{
			RunID:        run.RunID,
			LineageID:    run.LineageID,
			Generation:   gen,
			AttemptIndex: i + 1,
			ContentHash:  hash,
			Rationale:    cand.Rationale,
			Payload:      cand.Payload,
			CreatedAt:    time.Now().UTC(),
		}
		if err := e.store.SaveChallenger(ch); err != nil {
			return nil, err
		}
		challengers = append(challengers, ch)
	}
	return challengers, nil
}

// #endregion record-challengers

// #region promote

// promote mints the winning challenger as a full version and moves the
// active pointer, conditional on the pointer value observed at trigger
// time. A conflicting writer wins: the run re-resolves, retries the swap at
// most once if the expectation still holds, and otherwise escalates.
func (e *Engine) promote(run *genome.Run, base genome.Version, winner genome.Challenger,
	history []genome.AttemptRecord) (genome.Run, error) {

	now := time.Now().UTC()
	v := genome.Version{
		LineageID:   run.LineageID,
		VersionID:   genome.NewVersionID(now),
		ContentHash: winner.ContentHash,
		ParentHash:  base.ContentHash,
		Origin:      genome.OriginEvolution,
		Lifecycle:   genome.LifecycleActive,
		Rationale:   winner.Rationale,
		Payload:     winner.Payload,
		CreatedAt:   now,
	}
	if _, err := e.store.PutVersion(v); err != nil {
		if errors.Is(err, store.ErrDuplicateVersion) {
			return e.escalate(run, history, "winning challenger duplicates existing version "+winner.ContentHash)
		}
		return *run, fmt.Errorf("persist promoted version: %w", err)
	}

	err := e.store.Deploy(run.LineageID, v.VersionID, run.BaseVersionID)
	if errors.Is(err, store.ErrConflict) {
		cur, rerr := e.store.Resolve(run.LineageID)
		if rerr != nil {
			return *run, fmt.Errorf("re-resolve after deploy conflict: %w", rerr)
		}
		if cur.VersionID != run.BaseVersionID {
			log.Printf("[ORCH] run %s: pointer moved %s -> %s during run, refusing to overwrite",
				run.RunID, run.BaseVersionID, cur.VersionID)
			return e.escalate(run, history,
				fmt.Sprintf("active pointer moved to %s during run; promotion of %s needs manual review", cur.VersionID, v.VersionID))
		}
		// Expectation holds again: one retry, then give up.
		err = e.store.Deploy(run.LineageID, v.VersionID, run.BaseVersionID)
	}
	if err != nil {
		return e.escalate(run, history, "deploy failed: "+err.Error())
	}

	if err := e.transition(run, genome.StageDeployed, "promoted "+v.VersionID); err != nil {
		return *run, err
	}
	log.Printf("[ORCH] run %s deployed %s (hash=%s) on %s", run.RunID, v.VersionID, v.ContentHash, run.LineageID)
	return *run, nil
}

// #endregion promote

// #region escalate

// escalate writes a SYSTEM ticket carrying the full attempt history and
// terminates the run. The active pointer is untouched: the previously
// active version stays authoritative until a human resolves the ticket.
func (e *Engine) escalate(run *genome.Run, history []genome.AttemptRecord, reason string) (genome.Run, error) {
	ticket := genome.Ticket{
		TicketID:  uuid.NewString(),
		RunID:     run.RunID,
		LineageID: run.LineageID,
		Kind:      genome.TicketSystem,
		Status:    genome.TicketOpen,
		Reason:    reason,
		History:   history,
	}
	if err := e.store.CreateTicket(ticket); err != nil {
		return *run, fmt.Errorf("write escalation ticket: %w", err)
	}
	if err := e.transition(run, genome.StageEscalated, reason); err != nil {
		return *run, err
	}
	log.Printf("[ORCH] run %s escalated (ticket %s): %s", run.RunID, ticket.TicketID, reason)
	return *run, nil
}

// #endregion escalate

// #region transition

// transition appends to the run's stage log, derives the coarse status, and
// persists. Runs are saved after every transition so a crash never loses
// retry counters.
func (e *Engine) transition(run *genome.Run, to genome.Stage, reason string) error {
	from := run.Stage
	run.Transitions = append(run.Transitions, genome.Transition{
		From: from, To: to, Reason: reason, At: time.Now().UTC(),
	})
	run.Stage = to
	switch to {
	case genome.StageDeployed:
		run.Status = genome.RunDeployed
	case genome.StageEscalated:
		run.Status = genome.RunEscalated
	case genome.StageAborted:
		run.Status = genome.RunAborted
	}
	log.Printf("[ORCH] run %s: %s -> %s (%s)", run.RunID, from, to, reason)
	return e.store.SaveRun(*run)
}

// #endregion transition

// #region cancel

// Cancel requests external cancellation of an in-flight run. Allowed only
// while the run is in triggered or mutating; past that the run must
// complete to deployed or roll into retry/escalation rather than leave a
// half-applied promotion.
func (e *Engine) Cancel(runID string) error {
	e.mu.Lock()
	h := e.byRun[runID]
	e.mu.Unlock()
	if h == nil {
		return ErrRunNotFound
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stage != genome.StageTriggered && h.stage != genome.StageMutating {
		return fmt.Errorf("run %s in stage %s: %w", runID, h.stage, ErrCancelTooLate)
	}
	h.cancelled = true
	return nil
}

// #endregion cancel

// #region lineage-lock

func (e *Engine) acquire(lineageID, runID string) (*runHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.byLineage[lineageID]; busy {
		return nil, fmt.Errorf("lineage %s: %w", lineageID, ErrRunInProgress)
	}
	h := &runHandle{runID: runID, lineageID: lineageID, stage: genome.StageTriggered}
	e.byLineage[lineageID] = h
	e.byRun[runID] = h
	return h, nil
}

func (e *Engine) release(h *runHandle) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.byLineage, h.lineageID)
	delete(e.byRun, h.runID)
}

// #endregion lineage-lock
