package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/darwinpool/go-controller/internal/genome"
)

// #region create-lineage

// CreateLineage writes the root version and its active pointer in one
// transaction. The root's parent_hash is the root sentinel.
func (s *Store) CreateLineage(v genome.Version) (genome.Version, error) {
	if v.ParentHash == "" {
		v.ParentHash = genome.RootSentinel
	}
	if v.ParentHash != genome.RootSentinel {
		return genome.Version{}, fmt.Errorf("create lineage %s: root must carry the root sentinel, got %q", v.LineageID, v.ParentHash)
	}
	if v.ContentHash == "" {
		h, err := genome.ContentHash(v.Payload)
		if err != nil {
			return genome.Version{}, fmt.Errorf("create lineage %s: %w", v.LineageID, err)
		}
		v.ContentHash = h
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}
	if v.VersionID == "" {
		v.VersionID = genome.NewVersionID(v.CreatedAt)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return genome.Version{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := insertVersion(tx, v); err != nil {
		return genome.Version{}, fmt.Errorf("insert root: %w", err)
	}
	_, err = tx.Exec(
		`INSERT INTO active_pointers (lineage_id, version_id, updated_at) VALUES (?, ?, ?)`,
		v.LineageID, v.VersionID, v.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return genome.Version{}, fmt.Errorf("create pointer: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return genome.Version{}, fmt.Errorf("commit: %w", err)
	}
	return v, nil
}

// #endregion create-lineage

// #region put-version

// PutVersion appends a version to its lineage. The store is write-once: a
// retry carrying the same version_id and content_hash is an idempotent
// no-op, while a different version with an existing content_hash fails with
// ErrDuplicateVersion.
func (s *Store) PutVersion(v genome.Version) (string, error) {
	if v.ContentHash == "" {
		h, err := genome.ContentHash(v.Payload)
		if err != nil {
			return "", fmt.Errorf("put version: %w", err)
		}
		v.ContentHash = h
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}
	if v.VersionID == "" {
		v.VersionID = genome.NewVersionID(v.CreatedAt)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var existingID string
	err = tx.QueryRow(
		`SELECT version_id FROM genome_versions WHERE lineage_id = ? AND content_hash = ?`,
		v.LineageID, v.ContentHash,
	).Scan(&existingID)
	switch {
	case err == nil:
		if existingID == v.VersionID {
			return v.ContentHash, nil // identical retried write
		}
		return "", fmt.Errorf("put version %s/%s: %w", v.LineageID, v.ContentHash, ErrDuplicateVersion)
	case !errors.Is(err, sql.ErrNoRows):
		return "", fmt.Errorf("check content hash: %w", err)
	}

	if err := insertVersion(tx, v); err != nil {
		return "", fmt.Errorf("insert version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return v.ContentHash, nil
}

func insertVersion(tx *sql.Tx, v genome.Version) error {
	_, err := tx.Exec(
		`INSERT INTO genome_versions (lineage_id, version_id, content_hash, parent_hash, origin, lifecycle, rationale, payload, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.LineageID, v.VersionID, v.ContentHash, v.ParentHash, string(v.Origin), string(v.Lifecycle),
		nullIfEmpty(v.Rationale), []byte(v.Payload), v.CreatedAt.Format(time.RFC3339Nano),
	)
	return err
}

// #endregion put-version

// #region get-version

// GetVersion retrieves a specific version of a lineage.
func (s *Store) GetVersion(lineageID, versionID string) (genome.Version, error) {
	return s.scanVersion(
		`SELECT lineage_id, version_id, content_hash, parent_hash, origin, lifecycle, rationale, payload, created_at
		 FROM genome_versions WHERE lineage_id = ? AND version_id = ?`,
		lineageID, versionID,
	)
}

// GetVersionByHash retrieves a version by its content-addressed identity.
func (s *Store) GetVersionByHash(lineageID, contentHash string) (genome.Version, error) {
	return s.scanVersion(
		`SELECT lineage_id, version_id, content_hash, parent_hash, origin, lifecycle, rationale, payload, created_at
		 FROM genome_versions WHERE lineage_id = ? AND content_hash = ?`,
		lineageID, contentHash,
	)
}

func (s *Store) scanVersion(query string, args ...interface{}) (genome.Version, error) {
	var v genome.Version
	var rationale sql.NullString
	var payload []byte
	var createdStr string

	err := s.db.QueryRow(query, args...).Scan(
		&v.LineageID, &v.VersionID, &v.ContentHash, &v.ParentHash,
		(*string)(&v.Origin), (*string)(&v.Lifecycle), &rationale, &payload, &createdStr,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return genome.Version{}, ErrNotFound
	}
	if err != nil {
		return genome.Version{}, fmt.Errorf("get version: %w", err)
	}
	if rationale.Valid {
		v.Rationale = rationale.String
	}
	v.Payload = payload
	v.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
	return v, nil
}

// #endregion get-version

// #region list-versions

// ListVersions returns summaries of every version in a lineage ordered by
// version_id ascending (creation order).
func (s *Store) ListVersions(lineageID string) ([]genome.Summary, error) {
	rows, err := s.db.Query(
		`SELECT version_id, content_hash, parent_hash, origin, lifecycle, rationale, created_at
		 FROM genome_versions WHERE lineage_id = ? ORDER BY version_id ASC`,
		lineageID,
	)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	var out []genome.Summary
	for rows.Next() {
		var sum genome.Summary
		var rationale sql.NullString
		var createdStr string
		if err := rows.Scan(&sum.VersionID, &sum.ContentHash, &sum.ParentHash,
			(*string)(&sum.Origin), (*string)(&sum.Lifecycle), &rationale, &createdStr); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		if rationale.Valid {
			sum.Rationale = rationale.String
		}
		sum.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		out = append(out, sum)
	}
	return out, rows.Err()
}

// AllVersions returns every full version of a lineage, payloads included.
// The lineage tree builder consumes this.
func (s *Store) AllVersions(lineageID string) ([]genome.Version, error) {
	rows, err := s.db.Query(
		`SELECT lineage_id, version_id, content_hash, parent_hash, origin, lifecycle, rationale, payload, created_at
		 FROM genome_versions WHERE lineage_id = ? ORDER BY version_id ASC`,
		lineageID,
	)
	if err != nil {
		return nil, fmt.Errorf("all versions: %w", err)
	}
	defer rows.Close()

	var out []genome.Version
	for rows.Next() {
		var v genome.Version
		var rationale sql.NullString
		var payload []byte
		var createdStr string
		if err := rows.Scan(&v.LineageID, &v.VersionID, &v.ContentHash, &v.ParentHash,
			(*string)(&v.Origin), (*string)(&v.Lifecycle), &rationale, &payload, &createdStr); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		if rationale.Valid {
			v.Rationale = rationale.String
		}
		v.Payload = payload
		v.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		out = append(out, v)
	}
	return out, rows.Err()
}

// #endregion list-versions

// #region helpers

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
