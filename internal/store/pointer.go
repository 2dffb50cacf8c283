package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/darwinpool/go-controller/internal/genome"
)

// #region pointer-record

// Pointer is the single mutable record per lineage: the version currently
// answering requests.
type Pointer struct {
	LineageID string
	VersionID string
	UpdatedAt time.Time
}

// #endregion pointer-record

// #region get-pointer

// GetPointer reads the active pointer for a lineage.
func (s *Store) GetPointer(lineageID string) (Pointer, error) {
	var p Pointer
	var updatedStr string
	err := s.db.QueryRow(
		`SELECT lineage_id, version_id, updated_at FROM active_pointers WHERE lineage_id = ?`,
		lineageID,
	).Scan(&p.LineageID, &p.VersionID, &updatedStr)
	if errors.Is(err, sql.ErrNoRows) {
		return Pointer{}, fmt.Errorf("pointer %s: %w", lineageID, ErrLineageNotFound)
	}
	if err != nil {
		return Pointer{}, fmt.Errorf("get pointer: %w", err)
	}
	p.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedStr)
	return p, nil
}

// #endregion get-pointer

// #region resolve

// Resolve maps a lineage to its currently active version: pointer lookup,
// then version fetch. A pointer naming a missing version is a fatal
// integrity error, surfaced as ErrDanglingPointer and never defaulted.
func (s *Store) Resolve(lineageID string) (genome.Version, error) {
	p, err := s.GetPointer(lineageID)
	if err != nil {
		return genome.Version{}, err
	}
	v, err := s.GetVersion(lineageID, p.VersionID)
	if errors.Is(err, ErrNotFound) {
		log.Printf("[STORE] integrity: lineage %s pointer names missing version %s", lineageID, p.VersionID)
		return genome.Version{}, fmt.Errorf("resolve %s -> %s: %w", lineageID, p.VersionID, ErrDanglingPointer)
	}
	if err != nil {
		return genome.Version{}, err
	}
	return v, nil
}

// #endregion resolve

// #region deploy

// Deploy atomically moves the active pointer to versionID, conditional on
// the pointer still holding expectedPrior. SQLite has no native
// compare-and-swap, so the condition rides in the UPDATE's WHERE clause;
// zero rows affected means another writer won and the caller gets
// ErrConflict. The target version must already exist in the lineage.
func (s *Store) Deploy(lineageID, versionID, expectedPrior string) error {
	var exists int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM genome_versions WHERE lineage_id = ? AND version_id = ?`,
		lineageID, versionID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check target version: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("deploy %s/%s: %w", lineageID, versionID, ErrNotFound)
	}

	res, err := s.db.Exec(
		`UPDATE active_pointers SET version_id = ?, updated_at = ?
		 WHERE lineage_id = ? AND version_id = ?`,
		versionID, time.Now().UTC().Format(time.RFC3339Nano), lineageID, expectedPrior,
	)
	if err != nil {
		return fmt.Errorf("deploy: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deploy rows: %w", err)
	}
	if n == 0 {
		// Distinguish a missing pointer from a lost race.
		if _, perr := s.GetPointer(lineageID); perr != nil {
			return perr
		}
		return fmt.Errorf("deploy %s: expected %s: %w", lineageID, expectedPrior, ErrConflict)
	}
	return nil
}

// #endregion deploy

// #region rollback

// Rollback moves the active pointer to a version drawn from lineage
// history. Same conditional-write discipline as Deploy; ErrNotFound if the
// target does not exist, pointer untouched.
func (s *Store) Rollback(lineageID, targetVersionID, expectedPrior string) error {
	if err := s.Deploy(lineageID, targetVersionID, expectedPrior); err != nil {
		return err
	}
	log.Printf("[STORE] rollback: lineage %s now active at %s", lineageID, targetVersionID)
	return nil
}

// #endregion rollback
