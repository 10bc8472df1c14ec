package pg

import (
	"fmt"
	"time"

	"github.com/mindwell-dev/mindwell/internal/domain"
)

func (s *Storage) attachUnreadCounts(metadata *domain.ThreadMetadata) error {
	rows, err := s.db.Query(`
		SELECT participant_ref, unread FROM thread_unread WHERE thread_id = $1
	`, metadata.Id)
	if err != nil {
		return fmt.Errorf("failed to fetch unread counters: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.ParticipantRef]int)
	for rows.Next() {
		var ref domain.ParticipantRef
		var unread int
		if err := rows.Scan(&ref, &unread); err != nil {
			return fmt.Errorf("failed to scan unread counter: %w", err)
		}
		counts[ref] = unread
	}
	if err = rows.Err(); err != nil {
		return fmt.Errorf("rows iteration error: %w", err)
	}
	metadata.UnreadCounts = counts
	return nil
}

// MarkRead zeroes the participant's unread counter and records the ack
// in the ack log. When mustOwn is set (counselor callers) the update is
// keyed on current ownership, so a non-owner's ack silently does
// nothing. Idempotent: repeating it leaves the same state.
func (s *Storage) MarkRead(id domain.ThreadId, participant domain.ParticipantRef, mustOwn bool) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	ownerGuard := ""
	if mustOwn {
		ownerGuard = " AND owner_counselor_ref = $2"
	}
	var exists bool
	err = tx.QueryRow(fmt.Sprintf(`
		SELECT EXISTS (SELECT 1 FROM threads WHERE id = $1%s)
	`, ownerGuard), appendArg(id, participant, mustOwn)...).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check thread: %w", err)
	}
	if !exists {
		// Speculative acks are safe: not an error.
		return nil
	}

	ackedTs := time.Now().UTC().Round(time.Microsecond)
	if _, err := tx.Exec(`
		INSERT INTO thread_unread (thread_id, participant_ref, unread)
		VALUES ($1, $2, 0)
		ON CONFLICT (thread_id, participant_ref) DO UPDATE SET unread = 0
	`, id, participant); err != nil {
		return fmt.Errorf("failed to zero unread counter: %w", err)
	}
	if _, err := tx.Exec(`
		INSERT INTO read_acks (thread_id, participant_ref, acked_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (thread_id, participant_ref) DO UPDATE SET acked_at = $3
	`, id, participant, ackedTs); err != nil {
		return fmt.Errorf("failed to record read ack: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func appendArg(id domain.ThreadId, participant domain.ParticipantRef, mustOwn bool) []any {
	if mustOwn {
		return []any{id, participant}
	}
	return []any{id}
}

// DeriveUnread recomputes a participant's unread count from the
// message log and the ack log, ignoring the cached counter. The cached
// value must always match this derivation; recovery and tests rely on
// it.
func (s *Storage) DeriveUnread(id domain.ThreadId, participant domain.ParticipantRef) (int, error) {
	var derived int
	err := s.db.QueryRow(`
		SELECT COUNT(*)
		FROM messages m
		WHERE m.thread_id = $1
		  AND m.sender_ref <> $2
		  AND m.created_at > COALESCE(
			(SELECT acked_at FROM read_acks WHERE thread_id = $1 AND participant_ref = $2),
			'-infinity'::timestamptz)
	`, id, participant).Scan(&derived)
	if err != nil {
		return 0, fmt.Errorf("failed to derive unread count: %w", err)
	}
	return derived, nil
}
