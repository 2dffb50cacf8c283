package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/darwinpool/go-controller/internal/genome"
)

// #region create-ticket

// ticketTimeLayout is fixed-width so ORDER BY created_at stays
// chronological; RFC3339Nano trims trailing zeros and breaks lexical
// ordering. Reads still parse with RFC3339Nano, which accepts both forms.
const ticketTimeLayout = "2006-01-02T15:04:05.000000000Z"

// CreateTicket writes an escalation or feedback ticket. Tickets are mutable
// only through MarkTicketResolved; everything else is write-once.
func (s *Store) CreateTicket(t genome.Ticket) error {
	history, err := json.Marshal(t.History)
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	if t.Status == "" {
		t.Status = genome.TicketOpen
	}
	_, err = s.db.Exec(
		`INSERT INTO tickets (ticket_id, run_id, lineage_id, kind, status, reason, history_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.TicketID, t.RunID, t.LineageID, string(t.Kind), string(t.Status), t.Reason,
		string(history), t.CreatedAt.UTC().Format(ticketTimeLayout),
	)
	if err != nil {
		return fmt.Errorf("create ticket: %w", err)
	}
	return nil
}

// #endregion create-ticket

// #region get-ticket

// GetTicket retrieves a ticket by id.
func (s *Store) GetTicket(ticketID string) (genome.Ticket, error) {
	row := s.db.QueryRow(
		`SELECT ticket_id, run_id, lineage_id, kind, status, reason, history_json, created_at, resolved_at
		 FROM tickets WHERE ticket_id = ?`, ticketID,
	)
	t, err := scanTicket(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return genome.Ticket{}, ErrNotFound
	}
	return t, err
}

// #endregion get-ticket

// #region list-tickets

// ListTickets returns every ticket for a lineage, newest first.
func (s *Store) ListTickets(lineageID string) ([]genome.Ticket, error) {
	return s.queryTickets(
		`SELECT ticket_id, run_id, lineage_id, kind, status, reason, history_json, created_at, resolved_at
		 FROM tickets WHERE lineage_id = ? ORDER BY created_at DESC`, lineageID)
}

// ListOpenTickets returns every unresolved ticket across all lineages.
func (s *Store) ListOpenTickets() ([]genome.Ticket, error) {
	return s.queryTickets(
		`SELECT ticket_id, run_id, lineage_id, kind, status, reason, history_json, created_at, resolved_at
		 FROM tickets WHERE status = ? ORDER BY created_at DESC`, string(genome.TicketOpen))
}

func (s *Store) queryTickets(query string, args ...interface{}) ([]genome.Ticket, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	defer rows.Close()

	var out []genome.Ticket
	for rows.Next() {
		t, err := scanTicket(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTicket(scan func(...interface{}) error) (genome.Ticket, error) {
	var t genome.Ticket
	var historyJSON, createdStr string
	var resolvedStr sql.NullString

	err := scan(&t.TicketID, &t.RunID, &t.LineageID, (*string)(&t.Kind), (*string)(&t.Status),
		&t.Reason, &historyJSON, &createdStr, &resolvedStr)
	if err != nil {
		return genome.Ticket{}, err
	}
	if err := json.Unmarshal([]byte(historyJSON), &t.History); err != nil {
		return genome.Ticket{}, fmt.Errorf("unmarshal history: %w", err)
	}
	t.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
	if resolvedStr.Valid {
		t.ResolvedAt, _ = time.Parse(time.RFC3339Nano, resolvedStr.String)
	}
	return t, nil
}

// #endregion list-tickets

// #region mark-resolved

// MarkTicketResolved closes a ticket. This is the only mutation tickets
// support; the resolution flow itself lives outside this core.
func (s *Store) MarkTicketResolved(ticketID string) error {
	res, err := s.db.Exec(
		`UPDATE tickets SET status = ?, resolved_at = ? WHERE ticket_id = ? AND status = ?`,
		string(genome.TicketResolved), time.Now().UTC().Format(time.RFC3339Nano),
		ticketID, string(genome.TicketOpen),
	)
	if err != nil {
		return fmt.Errorf("resolve ticket: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("resolve ticket rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("resolve ticket %s: %w", ticketID, ErrNotFound)
	}
	return nil
}

// #endregion mark-resolved
