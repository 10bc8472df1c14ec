package pg

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mindwell-dev/mindwell/internal/domain"
	internal_errors "github.com/mindwell-dev/mindwell/internal/errors"
)

const messageColumns = `
	id, thread_id, sender_role, sender_ref, text,
	COALESCE(client_correlation_id, ''), created_at
`

func scanMessage(row interface{ Scan(...any) error }) (domain.Message, error) {
	var msg domain.Message
	err := row.Scan(
		&msg.Id, &msg.ThreadId, &msg.Role, &msg.SenderRef, &msg.Text,
		&msg.ClientCorrelationId, &msg.CreatedAt,
	)
	return msg, err
}

// AppendMessage persists a message and performs the claim transition
// and unread bookkeeping in the same transaction.
//
// For a counselor sender the claim check and the append are keyed on
// "owner is still null" via a single conditional update: the first
// counselor reply claims the thread. observedUnclaimed is the
// sender-side observation from the lock-free pre-read; when a racing
// counselor loses the claim, their in-flight message is still accepted
// but attributed to the settled owner so the student keeps a single
// counselor identity.
func (s *Storage) AppendMessage(creationData domain.MessageCreationData, observedUnclaimed bool) (domain.Message, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return domain.Message{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // The rollback will be ignored if the tx has been committed later in the function.

	// Transport retries carrying the same correlation id return the
	// already-persisted message instead of appending twice.
	if creationData.ClientCorrelationId != "" {
		row := tx.QueryRow(fmt.Sprintf(`
			SELECT %s FROM messages
			WHERE thread_id = $1 AND sender_ref = $2 AND client_correlation_id = $3
		`, messageColumns), creationData.ThreadId, creationData.SenderRef, creationData.ClientCorrelationId)
		if msg, err := scanMessage(row); err == nil {
			return msg, nil
		} else if !errors.Is(err, sql.ErrNoRows) {
			return domain.Message{}, fmt.Errorf("failed to check correlation id: %w", err)
		}
	}

	createdTs := time.Now().UTC().Round(time.Microsecond) // database anyway round to microsecond
	effectiveSender := creationData.SenderRef

	var counterpart domain.ParticipantRef // participant whose unread counter grows, if any

	switch creationData.Role {
	case domain.RoleCounselor:
		// Claim attempt, keyed on "owner is still null". Rows affected
		// tells whether this send performed the claim transition.
		result, err := tx.Exec(`
			UPDATE threads
			SET owner_counselor_ref = $2
			WHERE id = $1 AND status = 'open' AND owner_counselor_ref IS NULL
		`, creationData.ThreadId, creationData.SenderRef)
		if err != nil {
			if isSerializationFailure(err) {
				return domain.Message{}, internal_errors.ErrTransientConflict
			}
			return domain.Message{}, fmt.Errorf("failed to claim thread: %w", err)
		}
		claimed, _ := result.RowsAffected()

		var settledOwner domain.ParticipantRef
		var studentRef domain.ParticipantRef
		err = tx.QueryRow(`
			UPDATE threads
			SET last_message_text = $2, last_message_at = $3, updated_at = $3
			WHERE id = $1 AND status = 'open'
			RETURNING owner_counselor_ref, student_ref
		`, creationData.ThreadId, creationData.Text, createdTs).Scan(&settledOwner, &studentRef)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return domain.Message{}, s.closedOrMissing(tx, creationData.ThreadId)
			}
			if isSerializationFailure(err) {
				return domain.Message{}, internal_errors.ErrTransientConflict
			}
			return domain.Message{}, fmt.Errorf("failed to update thread: %w", err)
		}
		if settledOwner != creationData.SenderRef {
			// Lost the claim race. The in-flight message is still
			// accepted but attributed to the settled owner, so the
			// student sees one consistent counselor identity.
			if !observedUnclaimed {
				return domain.Message{}, internal_errors.NotOwner()
			}
			effectiveSender = settledOwner
		}
		if claimed == 1 {
			// The first reply implies the new owner has read everything
			// sent so far; without this ack the cached counters would
			// not be derivable from the logs.
			if _, err := tx.Exec(`
				INSERT INTO read_acks (thread_id, participant_ref, acked_at)
				VALUES ($1, $2, $3)
				ON CONFLICT (thread_id, participant_ref) DO UPDATE SET acked_at = $3
			`, creationData.ThreadId, creationData.SenderRef, createdTs); err != nil {
				return domain.Message{}, fmt.Errorf("failed to record claim ack: %w", err)
			}
		}
		counterpart = studentRef

	case domain.RoleStudent:
		var owner sql.NullString
		err = tx.QueryRow(`
			UPDATE threads
			SET last_message_text = $3, last_message_at = $4, updated_at = $4
			WHERE id = $1 AND status = 'open' AND student_ref = $2
			RETURNING owner_counselor_ref
		`, creationData.ThreadId, creationData.SenderRef, creationData.Text, createdTs).Scan(&owner)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return domain.Message{}, s.studentAppendFailure(tx, creationData.ThreadId, creationData.SenderRef)
			}
			if isSerializationFailure(err) {
				return domain.Message{}, internal_errors.ErrTransientConflict
			}
			return domain.Message{}, fmt.Errorf("failed to update thread: %w", err)
		}
		// Unclaimed threads have no counselor entry to increment yet.
		if owner.Valid {
			counterpart = domain.ParticipantRef(owner.String)
		}

	default:
		return domain.Message{}, fmt.Errorf("unknown sender role %q", creationData.Role)
	}

	var correlationId sql.NullString
	if creationData.ClientCorrelationId != "" {
		correlationId = sql.NullString{String: creationData.ClientCorrelationId, Valid: true}
	}

	msg := domain.Message{
		ThreadId:            creationData.ThreadId,
		Role:                creationData.Role,
		SenderRef:           effectiveSender,
		Text:                creationData.Text,
		CreatedAt:           createdTs,
		ClientCorrelationId: creationData.ClientCorrelationId,
	}
	err = tx.QueryRow(`
		INSERT INTO messages (thread_id, sender_role, sender_ref, text, client_correlation_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, msg.ThreadId, msg.Role, msg.SenderRef, msg.Text, correlationId, createdTs).Scan(&msg.Id)
	if err != nil {
		if isUniqueViolation(err) {
			// Concurrent retry with the same correlation id won the
			// insert; the caller retries and hits the dedup read.
			return domain.Message{}, internal_errors.ErrTransientConflict
		}
		return domain.Message{}, fmt.Errorf("failed to insert message: %w", err)
	}

	if counterpart != "" {
		if _, err := tx.Exec(`
			INSERT INTO thread_unread (thread_id, participant_ref, unread)
			VALUES ($1, $2, 1)
			ON CONFLICT (thread_id, participant_ref) DO UPDATE SET unread = thread_unread.unread + 1
		`, msg.ThreadId, counterpart); err != nil {
			return domain.Message{}, fmt.Errorf("failed to bump unread counter: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.Message{}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return msg, nil
}

// closedOrMissing explains a failed counselor append: the conditional
// update matched no row either because the thread is closed or because
// it never existed.
func (s *Storage) closedOrMissing(tx *sql.Tx, id domain.ThreadId) error {
	var status domain.ThreadStatus
	err := tx.QueryRow("SELECT status FROM threads WHERE id = $1", id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return internal_errors.ThreadNotFound()
	}
	if err != nil {
		return fmt.Errorf("failed to inspect thread: %w", err)
	}
	if status == domain.StatusClosed {
		return internal_errors.ThreadClosed()
	}
	return internal_errors.ErrTransientConflict
}

func (s *Storage) studentAppendFailure(tx *sql.Tx, id domain.ThreadId, studentRef domain.ParticipantRef) error {
	var status domain.ThreadStatus
	var threadStudent domain.ParticipantRef
	err := tx.QueryRow("SELECT status, student_ref FROM threads WHERE id = $1", id).Scan(&status, &threadStudent)
	if errors.Is(err, sql.ErrNoRows) {
		return internal_errors.ThreadNotFound()
	}
	if err != nil {
		return fmt.Errorf("failed to inspect thread: %w", err)
	}
	if threadStudent != studentRef {
		return internal_errors.NotAuthorized()
	}
	if status == domain.StatusClosed {
		return internal_errors.ThreadClosed()
	}
	return internal_errors.ErrTransientConflict
}

// GetThreadMessages returns one page of a thread's messages in send
// order. Pages start at 1.
func (s *Storage) GetThreadMessages(id domain.ThreadId, page int) ([]*domain.Message, error) {
	perPage := s.cfg.Public.MessagesPerPage
	if page < 1 {
		page = 1
	}
	rows, err := s.db.Query(fmt.Sprintf(`
		SELECT %s FROM messages
		WHERE thread_id = $1
		ORDER BY created_at, id
		LIMIT $2 OFFSET $3
	`, messageColumns), id, perPage, (page-1)*perPage)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}
	defer rows.Close()

	var messages []*domain.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, &msg)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return messages, nil
}
