package pg

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/mindwell-dev/mindwell/internal/domain"
	internal_errors "github.com/mindwell-dev/mindwell/internal/errors"
)

const threadColumns = `
	id, student_ref, anonymous, owner_counselor_ref, status,
	last_message_text, last_message_at, created_at, updated_at
`

func scanThreadMetadata(row interface{ Scan(...any) error }) (domain.ThreadMetadata, error) {
	var m domain.ThreadMetadata
	var owner sql.NullString
	var lastMessageAt sql.NullTime
	err := row.Scan(
		&m.Id, &m.StudentRef, &m.Anonymous, &owner, &m.Status,
		&m.LastMessageText, &lastMessageAt, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return domain.ThreadMetadata{}, err
	}
	if owner.Valid {
		ref := domain.ParticipantRef(owner.String)
		m.OwnerCounselor = &ref
	}
	if lastMessageAt.Valid {
		t := lastMessageAt.Time
		m.LastMessageAt = &t
	}
	return m, nil
}

// EnsureThread returns the student's single open thread, creating one
// if none exists. Concurrent calls for the same student context settle
// on the partial unique index: the losing insert re-reads the winning
// row. The bool result reports whether a new thread was created.
func (s *Storage) EnsureThread(creationData domain.ThreadCreationData) (domain.ThreadMetadata, bool, error) {
	row := s.db.QueryRow(fmt.Sprintf(`
		INSERT INTO threads (student_ref, anonymous)
		VALUES ($1, $2)
		ON CONFLICT (student_ref) WHERE status = 'open' DO NOTHING
		RETURNING %s
	`, threadColumns), creationData.StudentRef, creationData.Anonymous)

	metadata, err := scanThreadMetadata(row)
	if err == nil {
		metadata.UnreadCounts = map[domain.ParticipantRef]int{}
		return metadata, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		if isUniqueViolation(err) || isSerializationFailure(err) {
			return domain.ThreadMetadata{}, false, internal_errors.ErrTransientConflict
		}
		return domain.ThreadMetadata{}, false, fmt.Errorf("failed to insert thread: %w", err)
	}

	// Insert hit the unique index: another call won the race. Re-read
	// the now-existing open row.
	row = s.db.QueryRow(fmt.Sprintf(`
		SELECT %s FROM threads WHERE student_ref = $1 AND status = 'open'
	`, threadColumns), creationData.StudentRef)
	metadata, err = scanThreadMetadata(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// The open thread was closed between the conflict and the
			// re-read. Safe to retry from the top.
			return domain.ThreadMetadata{}, false, internal_errors.ErrTransientConflict
		}
		return domain.ThreadMetadata{}, false, fmt.Errorf("failed to re-read open thread: %w", err)
	}
	if err := s.attachUnreadCounts(&metadata); err != nil {
		return domain.ThreadMetadata{}, false, err
	}
	return metadata, false, nil
}

func (s *Storage) GetThreadMetadata(id domain.ThreadId) (domain.ThreadMetadata, error) {
	row := s.db.QueryRow(fmt.Sprintf(`
		SELECT %s FROM threads WHERE id = $1
	`, threadColumns), id)
	metadata, err := scanThreadMetadata(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ThreadMetadata{}, internal_errors.ThreadNotFound()
		}
		return domain.ThreadMetadata{}, fmt.Errorf("failed to fetch thread: %w", err)
	}
	if err := s.attachUnreadCounts(&metadata); err != nil {
		return domain.ThreadMetadata{}, err
	}
	return metadata, nil
}

// ListThreads returns threads visible to the caller, most recent
// activity first. An empty studentRef lists all threads system-wide.
func (s *Storage) ListThreads(studentRef domain.ParticipantRef) ([]domain.ThreadMetadata, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM threads
		ORDER BY last_message_at DESC NULLS LAST, created_at DESC
	`, threadColumns)
	args := []any{}
	if studentRef != "" {
		query = fmt.Sprintf(`
			SELECT %s FROM threads
			WHERE student_ref = $1
			ORDER BY last_message_at DESC NULLS LAST, created_at DESC
		`, threadColumns)
		args = append(args, studentRef)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list threads: %w", err)
	}
	defer rows.Close()

	var threads []domain.ThreadMetadata
	for rows.Next() {
		metadata, err := scanThreadMetadata(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan thread: %w", err)
		}
		threads = append(threads, metadata)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	for i := range threads {
		if err := s.attachUnreadCounts(&threads[i]); err != nil {
			return nil, err
		}
	}
	return threads, nil
}

// CloseThread marks a thread terminal. The last owner is retained for
// audit. Closing an already-closed thread is a no-op.
func (s *Storage) CloseThread(id domain.ThreadId) error {
	result, err := s.db.Exec(`
		UPDATE threads
		SET status = 'closed', updated_at = NOW() AT TIME ZONE 'utc'
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("failed to close thread: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return internal_errors.ThreadNotFound()
	}
	return nil
}
