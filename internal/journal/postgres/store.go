package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/DAOsign/daosign-go/internal/journal"
	"github.com/DAOsign/daosign-go/internal/proofmsg"
	"github.com/DAOsign/daosign-go/internal/submitter"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrInvalidConfig = errors.New("journal/postgres: invalid config")

// Postgres unique_violation.
const uniqueViolation = "23505"

type Store struct {
	pool *pgxpool.Pool
}

var _ journal.Store = (*Store)(nil)

func New(pool *pgxpool.Pool) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("%w: nil pool", ErrInvalidConfig)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("journal/postgres: ensure schema: %w", err)
	}
	return nil
}

func (s *Store) Create(ctx context.Context, rec journal.Record) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}
	if err := rec.Validate(); err != nil {
		return err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("journal/postgres: begin create tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO proof_calls (
			call_id,
			kind,
			proof_cid,
			signer,
			state,
			tx_hash,
			payload_digest,
			archive_key,
			error_code,
			error_message,
			created_at,
			updated_at
		) VALUES ($1::uuid,$2,$3,$4,$5,$6,$7,$8,$9,$10, COALESCE($11, now()), COALESCE($11, now()))
	`,
		rec.ID,
		rec.Kind.String(),
		strings.TrimSpace(rec.ProofCID),
		rec.Signer,
		stateToDB(rec.State),
		nullIfEmpty(rec.TxHash),
		nullIfEmpty(rec.PayloadDigest),
		nullIfEmpty(rec.ArchiveKey),
		nullIfEmpty(rec.ErrorCode),
		nullIfEmpty(rec.ErrorMessage),
		nullIfZero(rec.CreatedAt),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return journal.ErrAlreadyExists
		}
		return fmt.Errorf("journal/postgres: insert call: %w", err)
	}
	if err := appendEventTx(ctx, tx, rec.ID, 0, rec.State, map[string]any{
		"kind":      rec.Kind.String(),
		"proof_cid": rec.ProofCID,
	}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("journal/postgres: commit create: %w", err)
	}
	return nil
}

func (s *Store) Transition(ctx context.Context, id string, t journal.Transition) (journal.Record, error) {
	if s == nil || s.pool == nil {
		return journal.Record{}, fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return journal.Record{}, fmt.Errorf("journal/postgres: begin transition tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	cur, err := getCall(ctx, tx, id, true)
	if err != nil {
		return journal.Record{}, err
	}
	if err := journal.CheckTransition(cur.State, t.State); err != nil {
		return journal.Record{}, err
	}

	rec, err := scanCall(tx.QueryRow(ctx, `
		UPDATE proof_calls
		SET state = $2,
			tx_hash = COALESCE($3, tx_hash),
			error_code = COALESCE($4, error_code),
			error_message = COALESCE($5, error_message),
			updated_at = COALESCE($6, now())
		WHERE call_id = $1::uuid
		RETURNING `+callColumns,
		id,
		stateToDB(t.State),
		nullIfEmpty(t.TxHash),
		nullIfEmpty(t.ErrorCode),
		nullIfEmpty(t.ErrorMessage),
		nullIfZero(t.At),
	))
	if err != nil {
		return journal.Record{}, fmt.Errorf("journal/postgres: update call: %w", err)
	}

	payload := map[string]any{}
	if t.TxHash != "" {
		payload["tx_hash"] = t.TxHash
	}
	if t.ErrorCode != "" {
		payload["error_code"] = t.ErrorCode
	}
	if err := appendEventTx(ctx, tx, id, cur.State, t.State, payload); err != nil {
		return journal.Record{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return journal.Record{}, fmt.Errorf("journal/postgres: commit transition: %w", err)
	}
	return rec, nil
}

func (s *Store) Get(ctx context.Context, id string) (journal.Record, error) {
	if s == nil || s.pool == nil {
		return journal.Record{}, fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}
	return getCall(ctx, s.pool, id, false)
}

func (s *Store) ListByProofCID(ctx context.Context, proofCID string) ([]journal.Record, error) {
	if s == nil || s.pool == nil {
		return nil, fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+callColumns+`
		FROM proof_calls
		WHERE proof_cid = $1
		ORDER BY created_at, call_id
	`, proofCID)
	if err != nil {
		return nil, fmt.Errorf("journal/postgres: list calls: %w", err)
	}
	defer rows.Close()

	var out []journal.Record
	for rows.Next() {
		rec, err := scanCall(rows)
		if err != nil {
			return nil, fmt.Errorf("journal/postgres: scan call: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal/postgres: list calls: %w", err)
	}
	return out, nil
}

const callColumns = `
			call_id::text,
			kind,
			proof_cid,
			signer,
			state,
			tx_hash,
			payload_digest,
			archive_key,
			error_code,
			error_message,
			created_at,
			updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCall(row rowScanner) (journal.Record, error) {
	var (
		rec             journal.Record
		kindRaw         string
		stateRaw        int16
		txHashRaw       *string
		digestRaw       *string
		archiveKeyRaw   *string
		errorCodeRaw    *string
		errorMessageRaw *string
	)
	err := row.Scan(
		&rec.ID,
		&kindRaw,
		&rec.ProofCID,
		&rec.Signer,
		&stateRaw,
		&txHashRaw,
		&digestRaw,
		&archiveKeyRaw,
		&errorCodeRaw,
		&errorMessageRaw,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return journal.Record{}, err
	}
	kind, err := proofmsg.ParseKind(kindRaw)
	if err != nil {
		return journal.Record{}, fmt.Errorf("journal/postgres: %w", err)
	}
	state, err := stateFromDB(stateRaw)
	if err != nil {
		return journal.Record{}, err
	}
	rec.Kind = kind
	rec.State = state
	rec.TxHash = stringOrEmpty(txHashRaw)
	rec.PayloadDigest = stringOrEmpty(digestRaw)
	rec.ArchiveKey = stringOrEmpty(archiveKeyRaw)
	rec.ErrorCode = stringOrEmpty(errorCodeRaw)
	rec.ErrorMessage = stringOrEmpty(errorMessageRaw)
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	return rec, nil
}

func getCall(ctx context.Context, q interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}, id string, forUpdate bool) (journal.Record, error) {
	query := `SELECT ` + callColumns + ` FROM proof_calls WHERE call_id = $1::uuid`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	rec, err := scanCall(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return journal.Record{}, journal.ErrNotFound
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "22P02" {
			// invalid_text_representation: not a uuid, so no such call.
			return journal.Record{}, journal.ErrNotFound
		}
		return journal.Record{}, fmt.Errorf("journal/postgres: get call: %w", err)
	}
	return rec, nil
}

func appendEventTx(ctx context.Context, tx pgx.Tx, id string, from, to submitter.State, payload map[string]any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("journal/postgres: marshal event payload: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO proof_call_events (call_id, from_state, to_state, payload, created_at)
		VALUES ($1::uuid,$2,$3,$4::jsonb, now())
	`, id, int16(from), stateToDB(to), b); err != nil {
		return fmt.Errorf("journal/postgres: insert event: %w", err)
	}
	return nil
}

func stateToDB(state submitter.State) int16 {
	return int16(state)
}

func stateFromDB(v int16) (submitter.State, error) {
	s := submitter.State(v)
	if s < submitter.StateBuilt || s > submitter.StateFailed {
		return 0, fmt.Errorf("journal/postgres: invalid state %d", v)
	}
	return s, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullIfZero(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}

func stringOrEmpty(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
