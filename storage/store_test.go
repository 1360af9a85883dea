package storage

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/yairfalse/vaaka/telemetry"
	"github.com/yairfalse/vaaka/types"
)

func quietLogger() *telemetry.Logger {
	return &telemetry.Logger{Logger: zerolog.New(io.Discard)}
}

func testSummary(runID string) types.RunSummary {
	now := time.Now().UTC().Truncate(time.Second)
	return types.RunSummary{
		RunID:      runID,
		Region:     "us-east-1",
		StartedAt:  now.Add(-time.Minute),
		FinishedAt: now,
		Discovered: 2,
		Audited:    2,
		MeanScore:  85,
	}
}

func testResult(name string, score float64) types.AuditResult {
	return types.AuditResult{
		Name:        name,
		ARN:         "arn:aws:elasticloadbalancing:us-east-1:123456789012:loadbalancer/app/" + name + "/50dc6c495c0c9188",
		Kind:        types.KindApplication,
		HealthScore: score,
		AuditedAt:   time.Now().UTC().Truncate(time.Second),
	}
}

func TestStore_RecordRun(t *testing.T) {
	store, err := NewStore(t.TempDir(), quietLogger())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer func() { _ = store.Close() }()

	results := []types.AuditResult{
		testResult("web-prod", 85),
		testResult("api-prod", 72),
	}

	seq, err := store.RecordRun(context.Background(), testSummary("run-001"), results)
	if err != nil {
		t.Fatalf("RecordRun failed: %v", err)
	}
	if seq != 1 {
		t.Errorf("Expected first sequence to be 1, got %d", seq)
	}

	summary, latestSeq, err := store.LatestRun()
	if err != nil {
		t.Fatalf("LatestRun failed: %v", err)
	}
	if latestSeq != 1 {
		t.Errorf("LatestRun seq = %d, want 1", latestSeq)
	}
	if summary.RunID != "run-001" {
		t.Errorf("RunID = %v, want run-001", summary.RunID)
	}

	got, err := store.Results(seq)
	if err != nil {
		t.Fatalf("Results failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(got))
	}
	// Keys sort by ARN, so api-prod comes first.
	if got[0].Name != "api-prod" || got[1].Name != "web-prod" {
		t.Errorf("Results out of ARN order: %s, %s", got[0].Name, got[1].Name)
	}
}

func TestStore_LatestRunEmpty(t *testing.T) {
	store, err := NewStore(t.TempDir(), quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = store.Close() }()

	if _, _, err := store.LatestRun(); err == nil {
		t.Error("LatestRun on empty store should fail")
	}
}

func TestStore_ScoreHistory(t *testing.T) {
	store, err := NewStore(t.TempDir(), quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = store.Close() }()

	scores := []float64{60, 75, 90}
	for i, score := range scores {
		result := testResult("web-prod", score)
		_, err := store.RecordRun(context.Background(), testSummary(fmt.Sprintf("run-%03d", i+1)), []types.AuditResult{result})
		if err != nil {
			t.Fatalf("RecordRun failed: %v", err)
		}
	}

	arn := testResult("web-prod", 0).ARN
	points, err := store.ScoreHistory(arn, 10)
	if err != nil {
		t.Fatalf("ScoreHistory failed: %v", err)
	}
	if len(points) != 3 {
		t.Fatalf("Expected 3 points, got %d", len(points))
	}

	// Oldest first.
	for i, want := range scores {
		if points[i].Score != want {
			t.Errorf("points[%d].Score = %v, want %v", i, points[i].Score, want)
		}
	}
	if points[0].Seq != 1 || points[2].Seq != 3 {
		t.Errorf("Sequence order wrong: %d..%d", points[0].Seq, points[2].Seq)
	}
}

func TestStore_ScoreHistoryLimit(t *testing.T) {
	store, err := NewStore(t.TempDir(), quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = store.Close() }()

	for i := 0; i < 5; i++ {
		result := testResult("web-prod", float64(50+i*10))
		_, _ = store.RecordRun(context.Background(), testSummary(fmt.Sprintf("run-%03d", i+1)), []types.AuditResult{result})
	}

	points, err := store.ScoreHistory(testResult("web-prod", 0).ARN, 2)
	if err != nil {
		t.Fatalf("ScoreHistory failed: %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("Expected 2 points, got %d", len(points))
	}

	// The two newest runs, oldest first.
	if points[0].Score != 80 || points[1].Score != 90 {
		t.Errorf("Got scores %v, %v; want 80, 90", points[0].Score, points[1].Score)
	}
}

func TestStore_ScoreHistorySkipsFailedAudits(t *testing.T) {
	store, err := NewStore(t.TempDir(), quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = store.Close() }()

	good := testResult("web-prod", 80)
	_, _ = store.RecordRun(context.Background(), testSummary("run-001"), []types.AuditResult{good})

	failed := testResult("web-prod", 0)
	failed.Err = "topology fetch failed"
	_, _ = store.RecordRun(context.Background(), testSummary("run-002"), []types.AuditResult{failed})

	points, err := store.ScoreHistory(good.ARN, 10)
	if err != nil {
		t.Fatalf("ScoreHistory failed: %v", err)
	}
	if len(points) != 1 {
		t.Fatalf("Expected 1 point, got %d", len(points))
	}
	if points[0].Score != 80 {
		t.Errorf("Score = %v, want 80", points[0].Score)
	}
}

func TestStore_FleetState(t *testing.T) {
	store, err := NewStore(t.TempDir(), quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = store.Close() }()

	run1 := []types.AuditResult{
		testResult("web-prod", 60),
		testResult("api-prod", 90),
	}
	_, _ = store.RecordRun(context.Background(), testSummary("run-001"), run1)

	// Second run: web-prod improves, api-prod missing this time.
	run2 := []types.AuditResult{testResult("web-prod", 85)}
	_, _ = store.RecordRun(context.Background(), testSummary("run-002"), run2)

	fleet := store.FleetState()
	if len(fleet) != 2 {
		t.Fatalf("Expected 2 fleet entries, got %d", len(fleet))
	}

	// ARN order puts api-prod first.
	if fleet[0].Name != "api-prod" {
		t.Errorf("fleet[0].Name = %v, want api-prod", fleet[0].Name)
	}
	if fleet[0].LastSeq != 1 || fleet[0].LastScore != 90 {
		t.Errorf("api-prod entry = seq %d score %v, want seq 1 score 90", fleet[0].LastSeq, fleet[0].LastScore)
	}
	if fleet[1].LastSeq != 2 || fleet[1].LastScore != 85 {
		t.Errorf("web-prod entry = seq %d score %v, want seq 2 score 85", fleet[1].LastSeq, fleet[1].LastScore)
	}
}

func TestStore_FleetStateIgnoresFailedAudits(t *testing.T) {
	store, err := NewStore(t.TempDir(), quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = store.Close() }()

	good := testResult("web-prod", 70)
	_, _ = store.RecordRun(context.Background(), testSummary("run-001"), []types.AuditResult{good})

	failed := testResult("web-prod", 0)
	failed.Err = "throttled"
	_, _ = store.RecordRun(context.Background(), testSummary("run-002"), []types.AuditResult{failed})

	fleet := store.FleetState()
	if len(fleet) != 1 {
		t.Fatalf("Expected 1 fleet entry, got %d", len(fleet))
	}
	// The failed audit must not clobber the last good score.
	if fleet[0].LastSeq != 1 || fleet[0].LastScore != 70 {
		t.Errorf("Entry = seq %d score %v, want seq 1 score 70", fleet[0].LastSeq, fleet[0].LastScore)
	}
}

func TestStore_ReopenRebuildsFleetIndex(t *testing.T) {
	dir := t.TempDir()

	store, err := NewStore(dir, quietLogger())
	if err != nil {
		t.Fatal(err)
	}

	results := []types.AuditResult{
		testResult("web-prod", 60),
		testResult("api-prod", 90),
	}
	_, _ = store.RecordRun(context.Background(), testSummary("run-001"), results)
	_, _ = store.RecordRun(context.Background(), testSummary("run-002"), []types.AuditResult{testResult("web-prod", 75)})

	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := NewStore(dir, quietLogger())
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	defer func() { _ = reopened.Close() }()

	if reopened.CurrentSeq() != 2 {
		t.Errorf("CurrentSeq = %d, want 2", reopened.CurrentSeq())
	}

	fleet := reopened.FleetState()
	if len(fleet) != 2 {
		t.Fatalf("Expected 2 fleet entries after reopen, got %d", len(fleet))
	}
	if fleet[1].Name != "web-prod" || fleet[1].LastScore != 75 {
		t.Errorf("web-prod entry = %v score %v, want score 75", fleet[1].Name, fleet[1].LastScore)
	}

	// New runs continue the sequence.
	seq, err := reopened.RecordRun(context.Background(), testSummary("run-003"), nil)
	if err != nil {
		t.Fatalf("RecordRun after reopen failed: %v", err)
	}
	if seq != 3 {
		t.Errorf("seq = %d, want 3", seq)
	}
}

func TestStore_Compact(t *testing.T) {
	store, err := NewStore(t.TempDir(), quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = store.Close() }()

	for i := 0; i < 5; i++ {
		result := testResult("web-prod", float64(50+i*10))
		_, _ = store.RecordRun(context.Background(), testSummary(fmt.Sprintf("run-%03d", i+1)), []types.AuditResult{result})
	}

	if err := store.Compact(context.Background(), 2); err != nil {
		t.Fatalf("Compact failed: %v", err)
	}

	// Recent runs survive.
	if _, err := store.Run(5); err != nil {
		t.Errorf("Run(5) should survive compaction: %v", err)
	}
	if _, err := store.Run(4); err != nil {
		t.Errorf("Run(4) should survive compaction: %v", err)
	}

	// Older runs are gone, results included.
	if _, err := store.Run(3); err == nil {
		t.Error("Run(3) should be compacted away")
	}
	if results, _ := store.Results(1); len(results) != 0 {
		t.Errorf("Results(1) should be empty after compaction, got %d", len(results))
	}

	points, err := store.ScoreHistory(testResult("web-prod", 0).ARN, 10)
	if err != nil {
		t.Fatalf("ScoreHistory failed: %v", err)
	}
	if len(points) != 2 {
		t.Errorf("Expected 2 surviving points, got %d", len(points))
	}

	_, latestSeq, err := store.LatestRun()
	if err != nil {
		t.Fatalf("LatestRun failed: %v", err)
	}
	if latestSeq != 5 {
		t.Errorf("LatestRun seq = %d, want 5", latestSeq)
	}
}

func TestStore_CompactKeepsEverythingWhenFewRuns(t *testing.T) {
	store, err := NewStore(t.TempDir(), quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = store.Close() }()

	_, _ = store.RecordRun(context.Background(), testSummary("run-001"), []types.AuditResult{testResult("web-prod", 80)})

	if err := store.Compact(context.Background(), 10); err != nil {
		t.Fatalf("Compact failed: %v", err)
	}

	if _, err := store.Run(1); err != nil {
		t.Errorf("Run(1) should survive: %v", err)
	}
}

func TestStore_ConcurrentAccess(t *testing.T) {
	store, err := NewStore(t.TempDir(), quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = store.Close() }()

	done := make(chan bool, 2)

	go func() {
		for i := 0; i < 10; i++ {
			result := testResult(fmt.Sprintf("web-%02d", i), 80)
			_, _ = store.RecordRun(context.Background(), testSummary(fmt.Sprintf("run-%03d", i)), []types.AuditResult{result})
		}
		done <- true
	}()

	go func() {
		for i := 0; i < 20; i++ {
			_ = store.FleetState()
			_, _, _ = store.LatestRun()
			time.Sleep(time.Millisecond)
		}
		done <- true
	}()

	<-done
	<-done

	if store.CurrentSeq() != 10 {
		t.Errorf("CurrentSeq = %d, want 10", store.CurrentSeq())
	}
	if len(store.FleetState()) != 10 {
		t.Errorf("Fleet size = %d, want 10", len(store.FleetState()))
	}
}
