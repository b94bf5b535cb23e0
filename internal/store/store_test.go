package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/scanhub-io/coordinator/internal/config"
	"github.com/scanhub-io/coordinator/internal/database"
	"github.com/scanhub-io/coordinator/internal/rules"
)

func newTestStore(t *testing.T) (*Store, database.DB) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "store-test.db")
	db, err := database.NewSQLite(config.DatabaseConfig{Path: dbPath})
	if err != nil {
		t.Fatalf("new sqlite db: %v", err)
	}
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate db: %v", err)
	}
	return New(db), db
}

func seedRuleset(t *testing.T, s *Store, names ...string) rules.Snapshot {
	t.Helper()
	ctx := context.Background()
	if err := s.ReconcileRules(ctx, names); err != nil {
		t.Fatalf("reconcile rules: %v", err)
	}
	return rules.Snapshot{CommitHash: "abc123", RuleNames: names}
}

func TestInsertScanUniqueness(t *testing.T) {
	s, db := newTestStore(t)
	defer db.Close()
	ctx := context.Background()

	id, err := s.InsertScan(ctx, "left-pad", "1.0.0", []string{"https://example.com/left-pad-1.0.0.tar.gz"}, "discovery")
	if err != nil {
		t.Fatalf("insert scan: %v", err)
	}
	if id == "" {
		t.Fatal("expected non-empty scan id")
	}

	_, err = s.InsertScan(ctx, "left-pad", "1.0.0", []string{"https://example.com/left-pad-1.0.0.tar.gz"}, "discovery")
	if !errors.Is(err, ErrDuplicateScan) {
		t.Fatalf("expected ErrDuplicateScan, got %v", err)
	}
}

func TestInsertScanNormalizesName(t *testing.T) {
	s, db := newTestStore(t)
	defer db.Close()
	ctx := context.Background()

	if _, err := s.InsertScan(ctx, "Left-Pad", "1.0.0", []string{"https://x"}, "discovery"); err != nil {
		t.Fatalf("insert scan: %v", err)
	}
	scan, err := s.GetScanByNameVersion(ctx, "left-pad", "1.0.0")
	if err != nil {
		t.Fatalf("get scan: %v", err)
	}
	if scan.Name != "left-pad" {
		t.Fatalf("expected normalized name, got %q", scan.Name)
	}
}

// TestFullLifecycle covers scenario S1 of the testable-properties list.
func TestFullLifecycle(t *testing.T) {
	s, db := newTestStore(t)
	defer db.Close()
	ctx := context.Background()

	snapshot := seedRuleset(t, s, "r1", "r2")

	if _, err := s.InsertScan(ctx, "left-pad", "1.0.0", []string{"https://example.com/left-pad-1.0.0.tar.gz"}, "discovery"); err != nil {
		t.Fatalf("insert scan: %v", err)
	}

	job, err := s.ClaimNext(ctx, "w1", time.Now(), 120*time.Second, snapshot)
	if err != nil {
		t.Fatalf("claim next: %v", err)
	}
	if job == nil {
		t.Fatal("expected a job, got none")
	}
	if job.Status != "PENDING" || job.PendingBy == nil || *job.PendingBy != "w1" {
		t.Fatalf("unexpected job state: %+v", job)
	}
	if job.CommitHash == nil || *job.CommitHash != "abc123" {
		t.Fatalf("expected commit hash stamped, got %+v", job.CommitHash)
	}
	if len(job.RuleNames) != 2 {
		t.Fatalf("expected current ruleset snapshot, got %v", job.RuleNames)
	}

	err = s.Submit(ctx, job.ScanID, "w1", SubmitResult{
		Score:        10,
		InspectorURL: "https://inspector.example/1",
		RuleNames:    []string{"r1"},
		Files:        []byte(`{}`),
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	finished, err := s.GetScanByNameVersion(ctx, "left-pad", "1.0.0")
	if err != nil {
		t.Fatalf("get scan: %v", err)
	}
	if finished.Status != "FINISHED" {
		t.Fatalf("expected FINISHED, got %s", finished.Status)
	}
	if finished.Score == nil || *finished.Score != 10 {
		t.Fatalf("expected score 10, got %+v", finished.Score)
	}
	if len(finished.RuleNames) != 1 || finished.RuleNames[0] != "r1" {
		t.Fatalf("expected matched rules [r1], got %v", finished.RuleNames)
	}
}

// TestSingleDispatch covers scenario S4 sequentially: of two back-to-back
// claims on a single QUEUED scan, only the first receives it.
func TestSingleDispatch(t *testing.T) {
	s, db := newTestStore(t)
	defer db.Close()
	ctx := context.Background()
	snapshot := seedRuleset(t, s, "r1")

	if _, err := s.InsertScan(ctx, "pkg", "1.0.0", []string{"https://x"}, "discovery"); err != nil {
		t.Fatalf("insert scan: %v", err)
	}

	now := time.Now()
	first, err := s.ClaimNext(ctx, "w1", now, 120*time.Second, snapshot)
	if err != nil {
		t.Fatalf("claim 1: %v", err)
	}
	second, err := s.ClaimNext(ctx, "w2", now, 120*time.Second, snapshot)
	if err != nil {
		t.Fatalf("claim 2: %v", err)
	}
	if first == nil {
		t.Fatal("expected first claim to succeed")
	}
	if second != nil {
		t.Fatalf("expected second claim to return nil, got %+v", second)
	}
}

// TestLeaseReclaim covers scenario S3: a lease older than JOB_TIMEOUT is
// reassigned to the next dispatcher, and the prior leaseholder's submit is
// rejected with NotOwned while the new leaseholder's succeeds.
func TestLeaseReclaim(t *testing.T) {
	s, db := newTestStore(t)
	defer db.Close()
	ctx := context.Background()
	snapshot := seedRuleset(t, s, "r1")

	if _, err := s.InsertScan(ctx, "pkg", "1.0.0", []string{"https://x"}, "discovery"); err != nil {
		t.Fatalf("insert scan: %v", err)
	}

	past := time.Now().Add(-10 * time.Minute)
	job, err := s.ClaimNext(ctx, "w1", past, 120*time.Second, snapshot)
	if err != nil {
		t.Fatalf("claim by w1: %v", err)
	}
	if job == nil {
		t.Fatal("expected a job")
	}

	reclaimed, err := s.ClaimNext(ctx, "w2", time.Now(), 120*time.Second, snapshot)
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if reclaimed == nil || reclaimed.ScanID != job.ScanID {
		t.Fatalf("expected reclaim of same scan, got %+v", reclaimed)
	}
	if reclaimed.PendingBy == nil || *reclaimed.PendingBy != "w2" {
		t.Fatalf("expected w2 as new leaseholder, got %+v", reclaimed.PendingBy)
	}

	err = s.Submit(ctx, job.ScanID, "w1", SubmitResult{Score: 1, InspectorURL: "https://x", RuleNames: nil, Files: []byte(`{}`)})
	if !errors.Is(err, ErrNotOwned) {
		t.Fatalf("expected ErrNotOwned for stale leaseholder, got %v", err)
	}

	err = s.Submit(ctx, job.ScanID, "w2", SubmitResult{Score: 2, InspectorURL: "https://x", RuleNames: nil, Files: []byte(`{}`)})
	if err != nil {
		t.Fatalf("expected current leaseholder submit to succeed, got %v", err)
	}
}

// TestSubmitUnknownRuleKeepsScanPending covers scenario S5.
func TestSubmitUnknownRuleKeepsScanPending(t *testing.T) {
	s, db := newTestStore(t)
	defer db.Close()
	ctx := context.Background()
	snapshot := seedRuleset(t, s, "r1")

	if _, err := s.InsertScan(ctx, "pkg", "1.0.0", []string{"https://x"}, "discovery"); err != nil {
		t.Fatalf("insert scan: %v", err)
	}
	job, err := s.ClaimNext(ctx, "w1", time.Now(), 120*time.Second, snapshot)
	if err != nil || job == nil {
		t.Fatalf("claim next: %v", err)
	}

	err = s.Submit(ctx, job.ScanID, "w1", SubmitResult{Score: 1, InspectorURL: "https://x", RuleNames: []string{"ruleZ"}, Files: []byte(`{}`)})
	if !errors.Is(err, ErrUnknownRule) {
		t.Fatalf("expected ErrUnknownRule, got %v", err)
	}

	scan, err := s.GetScan(ctx, job.ScanID)
	if err != nil {
		t.Fatalf("get scan: %v", err)
	}
	if scan.Status != "PENDING" {
		t.Fatalf("expected scan to remain PENDING, got %s", scan.Status)
	}

	reclaimed, err := s.ClaimNext(ctx, "w2", time.Now().Add(121*time.Second), 120*time.Second, snapshot)
	if err != nil {
		t.Fatalf("re-dispatch after lease expiry: %v", err)
	}
	if reclaimed == nil || reclaimed.ScanID != job.ScanID {
		t.Fatalf("expected re-dispatch of same scan, got %+v", reclaimed)
	}
}

// TestReportIdempotence covers scenario S6 and property 6.
func TestReportIdempotence(t *testing.T) {
	s, db := newTestStore(t)
	defer db.Close()
	ctx := context.Background()
	snapshot := seedRuleset(t, s, "r1")

	if _, err := s.InsertScan(ctx, "pkg", "1.0.0", []string{"https://x"}, "discovery"); err != nil {
		t.Fatalf("insert scan: %v", err)
	}
	job, err := s.ClaimNext(ctx, "w1", time.Now(), 120*time.Second, snapshot)
	if err != nil || job == nil {
		t.Fatalf("claim next: %v", err)
	}
	if err := s.Submit(ctx, job.ScanID, "w1", SubmitResult{Score: 5, InspectorURL: "https://x", RuleNames: []string{"r1"}, Files: []byte(`{}`)}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	now := time.Now().UTC()
	if _, err := s.MarkReported(ctx, job.ScanID, "operator", now); err != nil {
		t.Fatalf("mark reported: %v", err)
	}
	_, err = s.MarkReported(ctx, job.ScanID, "operator", now)
	if !errors.Is(err, ErrAlreadyReported) {
		t.Fatalf("expected ErrAlreadyReported, got %v", err)
	}

	// Simulate the outbound reporter call failing: undo the CAS, and the
	// scan becomes eligible to be reported again.
	if err := s.UndoReported(ctx, job.ScanID); err != nil {
		t.Fatalf("undo reported: %v", err)
	}
	if _, err := s.MarkReported(ctx, job.ScanID, "operator", time.Now().UTC()); err != nil {
		t.Fatalf("expected reporting to succeed after undo, got %v", err)
	}
}

func TestFailTransitionsPendingToFailed(t *testing.T) {
	s, db := newTestStore(t)
	defer db.Close()
	ctx := context.Background()
	snapshot := seedRuleset(t, s, "r1")

	if _, err := s.InsertScan(ctx, "pkg", "1.0.0", []string{"https://x"}, "discovery"); err != nil {
		t.Fatalf("insert scan: %v", err)
	}
	job, err := s.ClaimNext(ctx, "w1", time.Now(), 120*time.Second, snapshot)
	if err != nil || job == nil {
		t.Fatalf("claim next: %v", err)
	}
	if err := s.Fail(ctx, job.ScanID, "w1", "download failed"); err != nil {
		t.Fatalf("fail: %v", err)
	}

	scan, err := s.GetScan(ctx, job.ScanID)
	if err != nil {
		t.Fatalf("get scan: %v", err)
	}
	if scan.Status != "FAILED" {
		t.Fatalf("expected FAILED, got %s", scan.Status)
	}
	if scan.FailReason == nil || *scan.FailReason != "download failed" {
		t.Fatalf("expected fail reason stamped, got %+v", scan.FailReason)
	}
}

func TestListFiltersAndPaginates(t *testing.T) {
	s, db := newTestStore(t)
	defer db.Close()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		version := "1." + string(rune('0'+i)) + ".0"
		if _, err := s.InsertScan(ctx, "pkg", version, []string{"https://x"}, "discovery"); err != nil {
			t.Fatalf("insert scan %s: %v", version, err)
		}
	}

	page, err := s.List(ctx, ListFilters{Status: "QUEUED", Name: "pkg"}, "", 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Scans) != 2 {
		t.Fatalf("expected page size 2, got %d", len(page.Scans))
	}
	if page.NextCursor == "" {
		t.Fatal("expected a next cursor for the remaining row")
	}

	next, err := s.List(ctx, ListFilters{Status: "QUEUED", Name: "pkg"}, page.NextCursor, 2)
	if err != nil {
		t.Fatalf("list page 2: %v", err)
	}
	if len(next.Scans) != 1 {
		t.Fatalf("expected 1 remaining scan, got %d", len(next.Scans))
	}
	if next.NextCursor != "" {
		t.Fatal("expected no further cursor")
	}
}

func TestReconcileRulesKeepsReferencedHistorical(t *testing.T) {
	s, db := newTestStore(t)
	defer db.Close()
	ctx := context.Background()
	snapshot := seedRuleset(t, s, "r1", "r2")

	if _, err := s.InsertScan(ctx, "pkg", "1.0.0", []string{"https://x"}, "discovery"); err != nil {
		t.Fatalf("insert scan: %v", err)
	}
	job, err := s.ClaimNext(ctx, "w1", time.Now(), 120*time.Second, snapshot)
	if err != nil || job == nil {
		t.Fatalf("claim next: %v", err)
	}
	if err := s.Submit(ctx, job.ScanID, "w1", SubmitResult{Score: 1, InspectorURL: "https://x", RuleNames: []string{"r1"}, Files: []byte(`{}`)}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	// r1 is now referenced by a scan↔rule link; a refresh that drops it
	// from the upstream ruleset must still keep the row.
	if err := s.ReconcileRules(ctx, []string{"r2", "r3"}); err != nil {
		t.Fatalf("reconcile rules: %v", err)
	}

	ids, err := s.ruleIDsForNames(ctx, []string{"r1", "r2", "r3"})
	if err != nil {
		t.Fatalf("expected r1 to remain resolvable (historical), r2 and r3 current: %v", err)
	}
	if len(ids) != 3 {
		t.Fatalf("expected 3 resolvable rule ids, got %d", len(ids))
	}
}
