package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// ErrRetriesExhausted is returned when an optimistic update could not be
// committed within the configured number of attempts. Callers are expected
// to degrade gracefully rather than fail the user-visible turn.
var ErrRetriesExhausted = errors.New("optimistic update retries exhausted")

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	// _busy_timeout in the DSN applies to every pooled connection, unlike a
	// one-off PRAGMA exec.
	if !strings.Contains(dataSourceName, "?") {
		dataSourceName += "?_busy_timeout=5000"
	}
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err = store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS interview_sessions (
        application_id TEXT PRIMARY KEY,
        state_json TEXT NOT NULL,
        version INTEGER NOT NULL DEFAULT 1,
        updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );

    CREATE TABLE IF NOT EXISTS messages (
        id TEXT PRIMARY KEY,
        application_id TEXT NOT NULL,
        seq INTEGER NOT NULL,
        sender TEXT NOT NULL CHECK (sender IN ('ai', 'user', 'system')),
        text TEXT NOT NULL,
        question_id TEXT,
        question_category TEXT,
        audio_s3_key TEXT,
        audio_s3_bucket TEXT,
        audio_url TEXT,
        timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
        FOREIGN KEY (application_id) REFERENCES interview_sessions (application_id)
    );

    CREATE INDEX IF NOT EXISTS idx_messages_application ON messages (application_id, seq);
    `
	_, err := s.db.Exec(schema)
	return err
}

// GetSession loads the session document for an application, or nil if no
// interview has been initialized for it.
func (s *SQLiteStore) GetSession(ctx context.Context, applicationID string) (*SessionDocument, error) {
	var stateJSON string
	var version int64
	var updatedAt time.Time
	err := s.db.QueryRowContext(ctx,
		"SELECT state_json, version, updated_at FROM interview_sessions WHERE application_id = ?",
		applicationID).Scan(&stateJSON, &version, &updatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query session: %w", err)
	}

	var state InterviewState
	if err := json.Unmarshal([]byte(stateJSON), &state); err != nil {
		return nil, fmt.Errorf("failed to decode session state: %w", err)
	}

	history, err := s.getMessages(ctx, applicationID)
	if err != nil {
		return nil, err
	}

	return &SessionDocument{
		ApplicationID: applicationID,
		State:         state,
		History:       history,
		Version:       version,
		UpdatedAt:     updatedAt,
	}, nil
}

func (s *SQLiteStore) getMessages(ctx context.Context, applicationID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, sender, text, question_id, question_category,
               audio_s3_key, audio_s3_bucket, audio_url, timestamp
        FROM messages WHERE application_id = ? ORDER BY seq, timestamp`, applicationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		var questionID, questionCategory, audioKey, audioBucket, audioURL sql.NullString
		if err := rows.Scan(&m.ID, &m.Sender, &m.Text, &questionID, &questionCategory,
			&audioKey, &audioBucket, &audioURL, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.QuestionID = questionID.String
		m.QuestionCategory = QuestionCategory(questionCategory.String)
		m.AudioS3Key = audioKey.String
		m.AudioS3Bucket = audioBucket.String
		m.AudioURL = audioURL.String
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// AppendAndUpdate appends newMessages to the transcript and applies update to
// the interview state using an optimistic compare-and-swap on the session
// version. The update function always runs against a freshly read state, so a
// concurrent writer's changes are never overwritten with a stale base; its
// appended messages survive because the transcript table is append-only.
//
// On a version conflict or transient write error the whole read-merge-write
// cycle is retried with backoff. After retries attempts the call gives up and
// returns ErrRetriesExhausted; no appends from earlier attempts are visible
// because each attempt commits atomically.
//
// Creating the session row on first write is part of the same protocol: a
// missing row behaves like version 0 with a fresh introduction-phase state.
func (s *SQLiteStore) AppendAndUpdate(ctx context.Context, applicationID string, newMessages []Message, update func(*InterviewState), retries int) (*SessionDocument, error) {
	if retries < 1 {
		retries = 1
	}

	var lastErr error
	for attempt := 0; attempt < retries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * 25 * time.Millisecond
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		doc, err := s.tryAppendAndUpdate(ctx, applicationID, newMessages, update)
		if err == nil {
			return doc, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w: %v", ErrRetriesExhausted, lastErr)
}

func (s *SQLiteStore) tryAppendAndUpdate(ctx context.Context, applicationID string, newMessages []Message, update func(*InterviewState)) (*SessionDocument, error) {
	// Read the latest state outside the write transaction; the version CAS
	// below detects any interleaved writer.
	var stateJSON string
	var version int64
	state := InterviewState{CurrentPhase: PhaseIntroduction}
	err := s.db.QueryRowContext(ctx,
		"SELECT state_json, version FROM interview_sessions WHERE application_id = ?",
		applicationID).Scan(&stateJSON, &version)
	switch {
	case err == sql.ErrNoRows:
		version = 0
	case err != nil:
		return nil, fmt.Errorf("failed to read session: %w", err)
	default:
		if err := json.Unmarshal([]byte(stateJSON), &state); err != nil {
			return nil, fmt.Errorf("failed to decode session state: %w", err)
		}
	}

	if update != nil {
		update(&state)
	}
	if state.CurrentPhase == PhaseCompleted && state.CompletedAt == nil {
		now := time.Now().UTC()
		state.CompletedAt = &now
	}

	encoded, err := json.Marshal(&state)
	if err != nil {
		return nil, fmt.Errorf("failed to encode session state: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	if version == 0 {
		_, err = tx.ExecContext(ctx,
			"INSERT INTO interview_sessions (application_id, state_json, version, updated_at) VALUES (?, ?, 1, ?)",
			applicationID, string(encoded), now)
		if err != nil {
			// A concurrent writer created the row first; retry from a fresh read.
			return nil, fmt.Errorf("session insert conflict: %w", err)
		}
	} else {
		res, err := tx.ExecContext(ctx,
			"UPDATE interview_sessions SET state_json = ?, version = version + 1, updated_at = ? WHERE application_id = ? AND version = ?",
			string(encoded), now, applicationID, version)
		if err != nil {
			return nil, fmt.Errorf("failed to update session: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("failed to inspect update result: %w", err)
		}
		if affected == 0 {
			return nil, fmt.Errorf("version conflict for application %s at version %d", applicationID, version)
		}
	}

	var baseSeq int64
	if err := tx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(seq), 0) FROM messages WHERE application_id = ?",
		applicationID).Scan(&baseSeq); err != nil {
		return nil, fmt.Errorf("failed to read message sequence: %w", err)
	}

	for i, m := range newMessages {
		// INSERT OR IGNORE keeps a retried caller from duplicating a message
		// it already persisted on an earlier, partially observed attempt.
		_, err := tx.ExecContext(ctx, `
            INSERT OR IGNORE INTO messages
                (id, application_id, seq, sender, text, question_id, question_category,
                 audio_s3_key, audio_s3_bucket, audio_url, timestamp)
            VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			m.ID, applicationID, baseSeq+int64(i)+1, string(m.Sender), m.Text,
			nullable(m.QuestionID), nullable(string(m.QuestionCategory)),
			nullable(m.AudioS3Key), nullable(m.AudioS3Bucket), nullable(m.AudioURL),
			m.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("failed to insert message: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit append: %w", err)
	}

	return s.GetSession(ctx, applicationID)
}

// DeleteSession removes the transcript and state for an application. Used by
// the restart flow.
func (s *SQLiteStore) DeleteSession(ctx context.Context, applicationID string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM messages WHERE application_id = ?", applicationID); err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM interview_sessions WHERE application_id = ?", applicationID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
