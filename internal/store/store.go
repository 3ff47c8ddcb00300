// Package store persists per-user sandbox records. It is a plain key-value
// boundary: read, upsert, delete. Sensitive fields are stored encrypted by
// the caller; the store never sees key material.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when no record exists for a user.
var ErrNotFound = errors.New("record not found")

// ProvisioningStatus tracks the ordered provisioning milestones for a
// sandbox. Fields are monotonic within one attempt: a later step is never
// true while an earlier required step is false. LastError is sticky until
// the next successful step clears it.
type ProvisioningStatus struct {
	VMCreated          bool
	RuntimeInstalled   bool
	TelegramConfigured bool
	GatewayStarted     bool
	LastError          string
}

// Reset returns the status to uninitialized.
func (s *ProvisioningStatus) Reset() {
	*s = ProvisioningStatus{}
}

// Record is the persisted state for one user's sandbox. Credential, Email,
// TelegramToken and GatewayToken are secretbox ciphertext.
type Record struct {
	UserID        string
	Provider      string
	SandboxID     string
	Endpoint      string
	Credential    string
	Email         string
	TelegramToken string
	GatewayToken  string
	Model         string
	Status        ProvisioningStatus
	UpdatedAt     time.Time
}

// Store is a SQLite-backed record store.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS vm_records (
	user_id             TEXT PRIMARY KEY,
	provider            TEXT NOT NULL DEFAULT '',
	sandbox_id          TEXT NOT NULL DEFAULT '',
	endpoint            TEXT NOT NULL DEFAULT '',
	credential          TEXT NOT NULL DEFAULT '',
	email               TEXT NOT NULL DEFAULT '',
	telegram_token      TEXT NOT NULL DEFAULT '',
	gateway_token       TEXT NOT NULL DEFAULT '',
	model               TEXT NOT NULL DEFAULT '',
	vm_created          INTEGER NOT NULL DEFAULT 0,
	runtime_installed   INTEGER NOT NULL DEFAULT 0,
	telegram_configured INTEGER NOT NULL DEFAULT 0,
	gateway_started     INTEGER NOT NULL DEFAULT 0,
	last_error          TEXT NOT NULL DEFAULT '',
	updated_at          TIMESTAMP NOT NULL
);
`

// Open opens (creating if necessary) the store at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	// SQLite allows one writer; serialize at the pool level rather than
	// surfacing SQLITE_BUSY to callers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get loads the record for userID. Returns ErrNotFound when absent.
func (s *Store) Get(ctx context.Context, userID string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT user_id, provider, sandbox_id, endpoint, credential, email,
		       telegram_token, gateway_token, model,
		       vm_created, runtime_installed, telegram_configured, gateway_started,
		       last_error, updated_at
		FROM vm_records WHERE user_id = ?`, userID)

	var r Record
	err := row.Scan(&r.UserID, &r.Provider, &r.SandboxID, &r.Endpoint, &r.Credential,
		&r.Email, &r.TelegramToken, &r.GatewayToken, &r.Model,
		&r.Status.VMCreated, &r.Status.RuntimeInstalled, &r.Status.TelegramConfigured,
		&r.Status.GatewayStarted, &r.Status.LastError, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading record: %w", err)
	}
	return &r, nil
}

// Upsert writes the record, replacing any existing row for the same user.
func (s *Store) Upsert(ctx context.Context, r *Record) error {
	r.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO vm_records (
			user_id, provider, sandbox_id, endpoint, credential, email,
			telegram_token, gateway_token, model,
			vm_created, runtime_installed, telegram_configured, gateway_started,
			last_error, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			provider = excluded.provider,
			sandbox_id = excluded.sandbox_id,
			endpoint = excluded.endpoint,
			credential = excluded.credential,
			email = excluded.email,
			telegram_token = excluded.telegram_token,
			gateway_token = excluded.gateway_token,
			model = excluded.model,
			vm_created = excluded.vm_created,
			runtime_installed = excluded.runtime_installed,
			telegram_configured = excluded.telegram_configured,
			gateway_started = excluded.gateway_started,
			last_error = excluded.last_error,
			updated_at = excluded.updated_at`,
		r.UserID, r.Provider, r.SandboxID, r.Endpoint, r.Credential, r.Email,
		r.TelegramToken, r.GatewayToken, r.Model,
		r.Status.VMCreated, r.Status.RuntimeInstalled, r.Status.TelegramConfigured,
		r.Status.GatewayStarted, r.Status.LastError, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upserting record: %w", err)
	}
	return nil
}

// Delete removes the record for userID. Deleting a missing record is not an
// error.
func (s *Store) Delete(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM vm_records WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("deleting record: %w", err)
	}
	return nil
}

// List returns all records, used by the encryption migration pass.
func (s *Store) List(ctx context.Context) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT user_id FROM vm_records ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	records := make([]*Record, 0, len(ids))
	for _, id := range ids {
		r, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, nil
}
