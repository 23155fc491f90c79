package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/TobiSchelling/deepresearch/internal/research"
)

// SaveState upserts a session snapshot. The full state is stored as JSON so
// a session can resume from its last completed phase; the scalar columns
// exist for listing without decoding every blob.
func (s *Store) SaveState(ctx context.Context, state *research.State) error {
	blob, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encoding session state: %w", err)
	}

	_, err = s.conn.ExecContext(ctx,
		`INSERT INTO sessions (id, query, phase, iteration, is_complete, completion_reason, state_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			phase = excluded.phase,
			iteration = excluded.iteration,
			is_complete = excluded.is_complete,
			completion_reason = excluded.completion_reason,
			state_json = excluded.state_json,
			updated_at = datetime('now')`,
		state.ID, state.OriginalQuery, string(state.Phase), state.Iteration,
		boolToInt(state.IsComplete), state.CompletionReason, string(blob),
	)
	if err != nil {
		return fmt.Errorf("saving session %s: %w", state.ID, err)
	}
	return nil
}

// LoadState returns the snapshot for a session, or nil if none exists.
func (s *Store) LoadState(ctx context.Context, sessionID string) (*research.State, error) {
	var blob string
	err := s.conn.QueryRowContext(ctx,
		"SELECT state_json FROM sessions WHERE id = ?", sessionID,
	).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading session %s: %w", sessionID, err)
	}

	var state research.State
	if err := json.Unmarshal([]byte(blob), &state); err != nil {
		return nil, fmt.Errorf("decoding session %s: %w", sessionID, err)
	}
	return &state, nil
}

// ListSessions returns all sessions, most recently updated first.
func (s *Store) ListSessions(ctx context.Context) ([]Summary, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, query, phase, iteration, is_complete, completion_reason, created_at, updated_at
		FROM sessions ORDER BY updated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Summary
	for rows.Next() {
		var sum Summary
		var complete int
		if err := rows.Scan(&sum.ID, &sum.Query, &sum.Phase, &sum.Iteration,
			&complete, &sum.CompletionReason, &sum.CreatedAt, &sum.UpdatedAt); err != nil {
			return nil, err
		}
		sum.IsComplete = complete != 0
		sessions = append(sessions, sum)
	}
	return sessions, rows.Err()
}

// SaveReport stores the final report of a completed session.
func (s *Store) SaveReport(ctx context.Context, state *research.State) error {
	if state.FinalReport == "" {
		return fmt.Errorf("session %s has no final report", state.ID)
	}

	title := "Research Report"
	if state.Plan != nil {
		title = fmt.Sprintf("Research Report: %s", state.Plan.MainQuery)
	}

	var words, sections, citations int
	if state.ReportMetadata != nil {
		words = state.ReportMetadata.WordCount
		sections = state.ReportMetadata.SectionCount
		citations = state.ReportMetadata.TotalCitations
	}

	_, err := s.conn.ExecContext(ctx,
		`INSERT OR REPLACE INTO reports
		(session_id, title, body_markdown, word_count, section_count, citation_count)
		VALUES (?, ?, ?, ?, ?, ?)`,
		state.ID, title, state.FinalReport, words, sections, citations)
	if err != nil {
		return fmt.Errorf("saving report for session %s: %w", state.ID, err)
	}
	return nil
}

// GetReport returns the report for a session, or nil if none exists.
func (s *Store) GetReport(ctx context.Context, sessionID string) (*Report, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT session_id, title, body_markdown, word_count, section_count, citation_count, generated_at
		FROM reports WHERE session_id = ?`, sessionID)

	var r Report
	if err := row.Scan(&r.SessionID, &r.Title, &r.BodyMarkdown,
		&r.WordCount, &r.SectionCount, &r.CitationCount, &r.GeneratedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &r, nil
}

// DeleteSession removes a session and its report.
func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	if _, err := s.conn.ExecContext(ctx, "DELETE FROM reports WHERE session_id = ?", sessionID); err != nil {
		return err
	}
	_, err := s.conn.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", sessionID)
	return err
}

// GetStats returns counts for the status command.
func (s *Store) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	if err := s.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM sessions").Scan(&stats.Sessions); err != nil {
		return nil, err
	}
	if err := s.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM sessions WHERE is_complete = 1").Scan(&stats.Completed); err != nil {
		return nil, err
	}
	if err := s.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM reports").Scan(&stats.Reports); err != nil {
		return nil, err
	}
	return stats, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
