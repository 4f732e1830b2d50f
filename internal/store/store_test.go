package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/Josepassinato/camada-osprey-core-sub001/internal/validation"
)

func openTestStore(t *testing.T) *ResultStore {
	t.Helper()
	s, err := Open(DriverSQLite, filepath.Join(t.TempDir(), "results.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	n := 0
	s.now = func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Second)
	}
	return s
}

func result(id, docType string, decision validation.Decision, score float64) validation.ValidationResult {
	return validation.ValidationResult{
		DocumentID:   id,
		DocType:      docType,
		Status:       validation.StatusDone,
		Decision:     decision,
		OverallScore: score,
		PolicyChecks: []validation.PolicyCheck{},
		Consistency:  []validation.PolicyCheck{},
		Messages:     []string{"✅ ok"},
	}
}

func TestSaveAndGetValidation(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.SaveValidation(ctx, "case-1", "", result("doc-1", "passport", validation.DecisionPass, 0.95)); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := s.GetValidation(ctx, "doc-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.CaseID != "case-1" || got.Result.DocType != "passport" || got.Result.OverallScore != 0.95 {
		t.Fatalf("unexpected stored result: %+v", got)
	}
	if got.CreatedAt.IsZero() {
		t.Fatal("expected created_at to be set")
	}

	// Upsert replaces the payload.
	if err := s.SaveValidation(ctx, "case-1", "", result("doc-1", "passport", validation.DecisionFail, 0.2)); err != nil {
		t.Fatalf("resave: %v", err)
	}
	got, _ = s.GetValidation(ctx, "doc-1")
	if got.Result.Decision != validation.DecisionFail {
		t.Fatalf("expected updated decision, got %s", got.Result.Decision)
	}
}

func TestGetValidationNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetValidation(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	_, err = s.GetBatch(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for batch, got %v", err)
	}
}

func TestSaveValidationRequiresID(t *testing.T) {
	s := openTestStore(t)
	if err := s.SaveValidation(context.Background(), "", "", validation.ValidationResult{}); err == nil {
		t.Fatal("expected error for result without id")
	}
}

func TestSaveBatchStoresIndividualResults(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	b := validation.BatchResult{
		BatchID:       "batch-1",
		Status:        validation.StatusDone,
		DocumentCount: 2,
		IndividualResults: []validation.ValidationResult{
			result("doc-a", "passport", validation.DecisionPass, 0.97),
			result("doc-b", "birth_certificate", validation.DecisionAlert, 0.75),
		},
		OverallScore:    0.88,
		FinalDecision:   validation.DecisionPass,
		SummaryIssues:   []validation.SummaryIssue{},
		Recommendations: []validation.Recommendation{},
		Timestamp:       time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC),
	}
	if err := s.SaveBatch(ctx, "case-9", b); err != nil {
		t.Fatalf("save batch: %v", err)
	}
	if err := s.SaveValidation(ctx, "case-other", "", result("doc-x", "passport", validation.DecisionPass, 1)); err != nil {
		t.Fatalf("save other: %v", err)
	}

	got, err := s.GetBatch(ctx, "batch-1")
	if err != nil {
		t.Fatalf("get batch: %v", err)
	}
	if got.FinalDecision != validation.DecisionPass || len(got.IndividualResults) != 2 {
		t.Fatalf("unexpected batch: %+v", got)
	}

	listed, err := s.ListValidationsByCase(ctx, "case-9")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listed) != 2 {
		t.Fatalf("expected 2 results for case, got %d", len(listed))
	}
	if listed[0].Result.DocumentID != "doc-a" || listed[1].Result.DocumentID != "doc-b" {
		t.Fatalf("unexpected order: %s, %s", listed[0].Result.DocumentID, listed[1].Result.DocumentID)
	}
	if listed[0].BatchID != "batch-1" {
		t.Fatalf("expected batch id on stored result, got %q", listed[0].BatchID)
	}

	empty, err := s.ListValidationsByCase(ctx, "nobody")
	if err != nil || len(empty) != 0 {
		t.Fatalf("expected empty list, got %v, %v", empty, err)
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := Open("mysql", "x"); err == nil {
		t.Fatal("expected error")
	}
}

func TestSQLiteDSNKeepsExistingQuery(t *testing.T) {
	if got := sqliteDSN("results.db"); got != "results.db?"+sqlitePragmas {
		t.Fatalf("dsn = %q", got)
	}
	if got := sqliteDSN("results.db?_txlock=immediate"); got != "results.db?_txlock=immediate&"+sqlitePragmas {
		t.Fatalf("dsn = %q", got)
	}
}

func TestOpenSQLiteWithQueryDSN(t *testing.T) {
	s, err := Open(DriverSQLite, filepath.Join(t.TempDir(), "results.db")+"?_txlock=immediate")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer s.Close()

	var mode string
	if err := s.db.Get(&mode, "PRAGMA journal_mode"); err != nil {
		t.Fatalf("journal mode: %v", err)
	}
	if mode != "wal" {
		t.Fatalf("journal mode = %q, want wal", mode)
	}
	ctx := context.Background()
	if err := s.SaveValidation(ctx, "case-q", "", result("doc-q", "passport", validation.DecisionPass, 0.91)); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := s.GetValidation(ctx, "doc-q"); err != nil {
		t.Fatalf("get: %v", err)
	}
}
