package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/darwinpool/go-controller/internal/genome"
)

// #region save-run

// SaveRun upserts an evolution run. The orchestrator calls this after every
// stage transition so counters and the transition log survive a crash.
func (s *Store) SaveRun(r genome.Run) error {
	transitions, err := json.Marshal(r.Transitions)
	if err != nil {
		return fmt.Errorf("marshal transitions: %w", err)
	}
	now := time.Now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now

	_, err = s.db.Exec(
		`INSERT INTO evolution_runs (run_id, lineage_id, trigger_reason, base_version_id, stage, status, judge_retries, supervisor_retries, transitions_json, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(run_id) DO UPDATE SET
		   stage = excluded.stage,
		   status = excluded.status,
		   judge_retries = excluded.judge_retries,
		   supervisor_retries = excluded.supervisor_retries,
		   transitions_json = excluded.transitions_json,
		   updated_at = excluded.updated_at`,
		r.RunID, r.LineageID, r.TriggerReason, r.BaseVersionID, string(r.Stage), string(r.Status),
		r.JudgeRetries, r.SupervisorRetries, string(transitions),
		r.CreatedAt.Format(time.RFC3339Nano), r.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	return nil
}

// #endregion save-run

// #region get-run

// GetRun retrieves an evolution run by id.
func (s *Store) GetRun(runID string) (genome.Run, error) {
	var r genome.Run
	var transitionsJSON, createdStr, updatedStr string

	err := s.db.QueryRow(
		`SELECT run_id, lineage_id, trigger_reason, base_version_id, stage, status, judge_retries, supervisor_retries, transitions_json, created_at, updated_at
		 FROM evolution_runs WHERE run_id = ?`, runID,
	).Scan(&r.RunID, &r.LineageID, &r.TriggerReason, &r.BaseVersionID,
		(*string)(&r.Stage), (*string)(&r.Status), &r.JudgeRetries, &r.SupervisorRetries,
		&transitionsJSON, &createdStr, &updatedStr)
	if errors.Is(err, sql.ErrNoRows) {
		return genome.Run{}, ErrNotFound
	}
	if err != nil {
		return genome.Run{}, fmt.Errorf("get run %s: %w", runID, err)
	}
	if err := json.Unmarshal([]byte(transitionsJSON), &r.Transitions); err != nil {
		return genome.Run{}, fmt.Errorf("unmarshal transitions: %w", err)
	}
	r.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
	r.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedStr)
	return r, nil
}

// #endregion get-run

// #region save-challenger

// SaveChallenger persists one pipeline candidate, keyed by
// (run_id, generation, attempt_index).
func (s *Store) SaveChallenger(c genome.Challenger) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(
		`INSERT INTO challengers (run_id, generation, attempt_index, lineage_id, content_hash, rationale, payload, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.RunID, c.Generation, c.AttemptIndex, c.LineageID, c.ContentHash,
		nullIfEmpty(c.Rationale), []byte(c.Payload), c.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save challenger: %w", err)
	}
	return nil
}

// #endregion save-challenger

// #region list-challengers

// ListChallengers returns every challenger of a run ordered by generation
// then attempt index.
func (s *Store) ListChallengers(runID string) ([]genome.Challenger, error) {
	rows, err := s.db.Query(
		`SELECT run_id, generation, attempt_index, lineage_id, content_hash, rationale, payload, created_at
		 FROM challengers WHERE run_id = ? ORDER BY generation ASC, attempt_index ASC`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("list challengers: %w", err)
	}
	defer rows.Close()

	var out []genome.Challenger
	for rows.Next() {
		var c genome.Challenger
		var rationale sql.NullString
		var payload []byte
		var createdStr string
		if err := rows.Scan(&c.RunID, &c.Generation, &c.AttemptIndex, &c.LineageID,
			&c.ContentHash, &rationale, &payload, &createdStr); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		if rationale.Valid {
			c.Rationale = rationale.String
		}
		c.Payload = payload
		c.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		out = append(out, c)
	}
	return out, rows.Err()
}

// #endregion list-challengers
