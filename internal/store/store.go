package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/Josepassinato/camada-osprey-core-sub001/internal/validation"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

var ErrNotFound = errors.New("not found")

const schema = `
CREATE TABLE IF NOT EXISTS validation_results (
	document_id TEXT PRIMARY KEY,
	case_id     TEXT NOT NULL DEFAULT '',
	batch_id    TEXT NOT NULL DEFAULT '',
	doc_type    TEXT NOT NULL DEFAULT '',
	decision    TEXT NOT NULL,
	score       DOUBLE PRECISION NOT NULL DEFAULT 0,
	payload     TEXT NOT NULL,
	created_at  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_validation_results_case ON validation_results (case_id, created_at);

CREATE TABLE IF NOT EXISTS batch_results (
	batch_id       TEXT PRIMARY KEY,
	case_id        TEXT NOT NULL DEFAULT '',
	final_decision TEXT NOT NULL,
	score          DOUBLE PRECISION NOT NULL DEFAULT 0,
	document_count INTEGER NOT NULL DEFAULT 0,
	payload        TEXT NOT NULL,
	created_at     TEXT NOT NULL
);
`

// ResultStore persists validation and batch results as JSON payloads with a
// few indexed columns for lookups.
type ResultStore struct {
	db  *sqlx.DB
	now func() time.Time
}

const sqlitePragmas = "_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)"

// sqliteDSN appends the WAL and busy-timeout pragmas, keeping any query the
// configured DSN already carries.
func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, "?") {
		return dsn + "&" + sqlitePragmas
	}
	return dsn + "?" + sqlitePragmas
}

// Open connects to sqlite (dsn is a file path) or postgres (dsn is a pgx
// connection string) and creates the schema.
func Open(driver, dsn string) (*ResultStore, error) {
	var (
		db  *sqlx.DB
		err error
	)
	switch driver {
	case DriverSQLite, "":
		db, err = sqlx.Open(DriverSQLite, sqliteDSN(dsn))
		if err == nil {
			db.SetMaxOpenConns(1)
		}
	case DriverPostgres:
		db, err = sqlx.Open(DriverPostgres, dsn)
	default:
		return nil, fmt.Errorf("unsupported db driver %q", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &ResultStore{db: db, now: time.Now}, nil
}

func (s *ResultStore) Close() error {
	return s.db.Close()
}

func (s *ResultStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type validationRow struct {
	DocumentID string  `db:"document_id"`
	CaseID     string  `db:"case_id"`
	BatchID    string  `db:"batch_id"`
	DocType    string  `db:"doc_type"`
	Decision   string  `db:"decision"`
	Score      float64 `db:"score"`
	Payload    string  `db:"payload"`
	CreatedAt  string  `db:"created_at"`
}

type batchRow struct {
	BatchID       string  `db:"batch_id"`
	CaseID        string  `db:"case_id"`
	FinalDecision string  `db:"final_decision"`
	Score         float64 `db:"score"`
	DocumentCount int     `db:"document_count"`
	Payload       string  `db:"payload"`
	CreatedAt     string  `db:"created_at"`
}

// StoredValidation is a persisted result with its bookkeeping columns.
type StoredValidation struct {
	CaseID    string                      `json:"case_id,omitempty"`
	BatchID   string                      `json:"batch_id,omitempty"`
	CreatedAt time.Time                   `json:"created_at"`
	Result    validation.ValidationResult `json:"result"`
}

func (s *ResultStore) SaveValidation(ctx context.Context, caseID, batchID string, r validation.ValidationResult) error {
	if r.DocumentID == "" {
		return errors.New("validation result has no document id")
	}
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode validation result: %w", err)
	}
	_, err = s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO validation_results (document_id, case_id, batch_id, doc_type, decision, score, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (document_id) DO UPDATE SET
			case_id = excluded.case_id,
			batch_id = excluded.batch_id,
			doc_type = excluded.doc_type,
			decision = excluded.decision,
			score = excluded.score,
			payload = excluded.payload`),
		r.DocumentID, caseID, batchID, r.DocType, string(r.Decision), r.OverallScore, string(payload), formatTime(s.now()))
	if err != nil {
		return fmt.Errorf("save validation %s: %w", r.DocumentID, err)
	}
	return nil
}

// SaveBatch stores the batch payload and each individual result.
func (s *ResultStore) SaveBatch(ctx context.Context, caseID string, b validation.BatchResult) error {
	if b.BatchID == "" {
		return errors.New("batch result has no batch id")
	}
	payload, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("encode batch result: %w", err)
	}
	created := b.Timestamp
	if created.IsZero() {
		created = s.now()
	}
	_, err = s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO batch_results (batch_id, case_id, final_decision, score, document_count, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (batch_id) DO UPDATE SET
			case_id = excluded.case_id,
			final_decision = excluded.final_decision,
			score = excluded.score,
			document_count = excluded.document_count,
			payload = excluded.payload`),
		b.BatchID, caseID, string(b.FinalDecision), b.OverallScore, b.DocumentCount, string(payload), formatTime(created))
	if err != nil {
		return fmt.Errorf("save batch %s: %w", b.BatchID, err)
	}
	for _, r := range b.IndividualResults {
		if err := s.SaveValidation(ctx, caseID, b.BatchID, r); err != nil {
			return err
		}
	}
	return nil
}

func (s *ResultStore) GetValidation(ctx context.Context, documentID string) (StoredValidation, error) {
	var row validationRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`SELECT * FROM validation_results WHERE document_id = ?`), documentID)
	if errors.Is(err, sql.ErrNoRows) {
		return StoredValidation{}, fmt.Errorf("validation %s: %w", documentID, ErrNotFound)
	}
	if err != nil {
		return StoredValidation{}, fmt.Errorf("get validation %s: %w", documentID, err)
	}
	return row.decode()
}

// ListValidationsByCase returns the results recorded for a case, oldest first.
func (s *ResultStore) ListValidationsByCase(ctx context.Context, caseID string) ([]StoredValidation, error) {
	var rows []validationRow
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`
		SELECT * FROM validation_results WHERE case_id = ? ORDER BY created_at, document_id`), caseID)
	if err != nil {
		return nil, fmt.Errorf("list validations for case %s: %w", caseID, err)
	}
	out := make([]StoredValidation, 0, len(rows))
	for _, row := range rows {
		v, err := row.decode()
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *ResultStore) GetBatch(ctx context.Context, batchID string) (validation.BatchResult, error) {
	var row batchRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`SELECT * FROM batch_results WHERE batch_id = ?`), batchID)
	if errors.Is(err, sql.ErrNoRows) {
		return validation.BatchResult{}, fmt.Errorf("batch %s: %w", batchID, ErrNotFound)
	}
	if err != nil {
		return validation.BatchResult{}, fmt.Errorf("get batch %s: %w", batchID, err)
	}
	var b validation.BatchResult
	if err := json.Unmarshal([]byte(row.Payload), &b); err != nil {
		return validation.BatchResult{}, fmt.Errorf("decode batch %s: %w", batchID, err)
	}
	return b, nil
}

func (row validationRow) decode() (StoredValidation, error) {
	v := StoredValidation{CaseID: row.CaseID, BatchID: row.BatchID}
	if err := json.Unmarshal([]byte(row.Payload), &v.Result); err != nil {
		return StoredValidation{}, fmt.Errorf("decode validation %s: %w", row.DocumentID, err)
	}
	v.CreatedAt = parseTime(row.CreatedAt)
	return v, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
