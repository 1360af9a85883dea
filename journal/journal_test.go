package journal

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/yairfalse/vaaka/types"
)

func TestJournal_AppendAndRead(t *testing.T) {
	dir := t.TempDir()

	j, err := Open(dir)
	if err != nil {
		t.Fatalf("Failed to open journal: %v", err)
	}

	arn := "arn:aws:elasticloadbalancing:us-east-1:123456789012:loadbalancer/app/web-prod/50dc6c495c0c9188"

	if err := j.Append(KindRunStarted, "", map[string]string{"run_id": "run-001"}); err != nil {
		t.Fatalf("Failed to append run_started: %v", err)
	}

	result := types.AuditResult{
		Name:        "web-prod",
		ARN:         arn,
		Kind:        types.KindApplication,
		HealthScore: 85,
	}
	if err := j.Append(KindResourceAudited, arn, result); err != nil {
		t.Fatalf("Failed to append resource_audited: %v", err)
	}

	if err := j.Append(KindRunCompleted, "", map[string]string{"run_id": "run-001"}); err != nil {
		t.Fatalf("Failed to append run_completed: %v", err)
	}

	if err := j.Close(); err != nil {
		t.Fatalf("Failed to close journal: %v", err)
	}

	files, _ := filepath.Glob(filepath.Join(dir, "vaaka-*.journal"))
	if len(files) == 0 {
		t.Fatal("No journal files found")
	}

	reader, err := NewReader(files[0])
	if err != nil {
		t.Fatalf("Failed to create reader: %v", err)
	}
	defer func() { _ = reader.Close() }()

	expectedKinds := []Kind{KindRunStarted, KindResourceAudited, KindRunCompleted}

	for i, expected := range expectedKinds {
		entry, err := reader.Next()
		if err != nil {
			t.Fatalf("Failed to read entry %d: %v", i, err)
		}

		if entry.Kind != expected {
			t.Errorf("Entry %d: kind = %v, want %v", i, entry.Kind, expected)
		}
		if entry.Sequence != int64(i+1) {
			t.Errorf("Entry %d: sequence = %v, want %v", i, entry.Sequence, i+1)
		}
	}

	_, err = reader.Next()
	if err != io.EOF {
		t.Errorf("Expected EOF, got %v", err)
	}
}

func TestJournal_AppendError(t *testing.T) {
	dir := t.TempDir()

	j, err := Open(dir)
	if err != nil {
		t.Fatalf("Failed to open journal: %v", err)
	}

	cause := fmt.Errorf("topology fetch failed: throttled")
	if err := j.AppendError(KindResourceFailed, "arn:aws:elasticloadbalancing:us-east-1:123456789012:loadbalancer/app/api/abc", nil, cause); err != nil {
		t.Fatalf("Failed to append error entry: %v", err)
	}

	_ = j.Close()

	files, _ := filepath.Glob(filepath.Join(dir, "vaaka-*.journal"))
	reader, _ := NewReader(files[0])
	defer func() { _ = reader.Close() }()

	entry, err := reader.Next()
	if err != nil {
		t.Fatalf("Failed to read entry: %v", err)
	}

	if entry.Kind != KindResourceFailed {
		t.Errorf("Entry kind = %v, want %v", entry.Kind, KindResourceFailed)
	}
	if entry.Error != cause.Error() {
		t.Errorf("Entry error = %v, want %v", entry.Error, cause.Error())
	}
}

func TestJournal_PayloadIntegrity(t *testing.T) {
	dir := t.TempDir()

	j, err := Open(dir)
	if err != nil {
		t.Fatalf("Failed to open journal: %v", err)
	}

	result := types.AuditResult{
		Name:        "web-prod",
		ARN:         "arn:aws:elasticloadbalancing:us-east-1:123456789012:loadbalancer/app/web-prod/50dc6c495c0c9188",
		Kind:        types.KindApplication,
		HealthScore: 62.5,
		Issues: []types.Issue{
			{
				Type:        "weak_tls_policy",
				Severity:    types.SeverityCritical,
				Category:    types.CategorySecurity,
				Description: "listener negotiates \"legacy\" protocols\nincluding TLS 1.0",
			},
		},
	}

	_ = j.Append(KindResourceAudited, result.ARN, result)
	_ = j.Close()

	files, _ := filepath.Glob(filepath.Join(dir, "vaaka-*.journal"))
	reader, _ := NewReader(files[0])
	defer func() { _ = reader.Close() }()

	entry, _ := reader.Next()

	var recovered types.AuditResult
	if err := json.Unmarshal(entry.Payload, &recovered); err != nil {
		t.Fatalf("Failed to unmarshal payload: %v", err)
	}

	if recovered.HealthScore != result.HealthScore {
		t.Errorf("HealthScore = %v, want %v", recovered.HealthScore, result.HealthScore)
	}
	if len(recovered.Issues) != 1 || recovered.Issues[0].Description != result.Issues[0].Description {
		t.Errorf("Issue description did not survive the round trip")
	}
}

func TestJournal_Replay(t *testing.T) {
	dir := t.TempDir()

	j, err := Open(dir)
	if err != nil {
		t.Fatalf("Failed to open journal: %v", err)
	}

	_ = j.Append(KindResourceAudited, "old-lb", nil)

	time.Sleep(10 * time.Millisecond)
	cutoff := time.Now()
	time.Sleep(10 * time.Millisecond)

	_ = j.Append(KindResourceAudited, "new-lb-1", nil)
	_ = j.Append(KindResourceFailed, "new-lb-2", nil)

	_ = j.Close()

	var replayed []string
	err = Replay(dir, cutoff, func(entry *Entry) error {
		replayed = append(replayed, entry.ResourceID)
		return nil
	})
	if err != nil {
		t.Fatalf("Replay failed: %v", err)
	}

	if len(replayed) != 2 {
		t.Fatalf("Replayed %d entries, want 2", len(replayed))
	}

	expected := []string{"new-lb-1", "new-lb-2"}
	for i, id := range replayed {
		if id != expected[i] {
			t.Errorf("Replayed[%d] = %v, want %v", i, id, expected[i])
		}
	}
}

func TestJournal_ReplayHandlerError(t *testing.T) {
	dir := t.TempDir()

	j, _ := Open(dir)
	_ = j.Append(KindResourceAudited, "lb-1", nil)
	_ = j.Close()

	wantErr := fmt.Errorf("handler gave up")
	err := Replay(dir, time.Time{}, func(entry *Entry) error {
		return wantErr
	})
	if err != wantErr {
		t.Errorf("Replay error = %v, want %v", err, wantErr)
	}
}

func TestJournal_SkipsCorruptLines(t *testing.T) {
	dir := t.TempDir()

	j, _ := Open(dir)
	_ = j.Append(KindResourceAudited, "lb-1", nil)
	_ = j.Append(KindResourceAudited, "lb-2", nil)
	_ = j.Close()

	// Simulate a crash-truncated line at the tail.
	files, _ := filepath.Glob(filepath.Join(dir, "vaaka-*.journal"))
	f, err := os.OpenFile(files[0], os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatalf("Failed to open journal for corruption: %v", err)
	}
	_, _ = f.WriteString(`{"timestamp":"2026-01-02T15:04:05Z","sequence":3,"kind":"resource_aud`)
	_ = f.Close()

	// Sequence continuation reads past the corrupt tail.
	j2, err := Open(dir)
	if err != nil {
		t.Fatalf("Failed to reopen journal: %v", err)
	}
	defer func() { _ = j2.Close() }()
	if j2.sequence != 2 {
		t.Errorf("Expected sequence 2, got %d", j2.sequence)
	}

	var seen int
	if err := Replay(dir, time.Time{}, func(entry *Entry) error {
		seen++
		return nil
	}); err != nil {
		t.Fatalf("Replay failed: %v", err)
	}
	if seen != 2 {
		t.Errorf("Replayed %d entries, want 2", seen)
	}
}

func TestOpen_EmptyDirectory(t *testing.T) {
	dir := t.TempDir()

	j, err := Open(dir)
	if err != nil {
		t.Fatalf("Failed to open journal: %v", err)
	}
	defer func() { _ = j.Close() }()

	if j.sequence != 0 {
		t.Errorf("Empty directory should start at sequence 0, got %d", j.sequence)
	}
}

func TestOpen_ContinuesSequence(t *testing.T) {
	dir := t.TempDir()

	j1, err := Open(dir)
	if err != nil {
		t.Fatalf("Failed to open journal: %v", err)
	}

	_ = j1.Append(KindResourceAudited, "lb-1", nil)
	_ = j1.Append(KindResourceAudited, "lb-2", nil)
	_ = j1.Append(KindResourceAudited, "lb-3", nil)

	_ = j1.Close()

	// A fresh journal in the same directory continues from 3.
	j2, err := Open(dir)
	if err != nil {
		t.Fatalf("Failed to open second journal: %v", err)
	}
	defer func() { _ = j2.Close() }()

	if j2.sequence != 3 {
		t.Errorf("Expected sequence 3, got %d", j2.sequence)
	}

	_ = j2.Append(KindResourceAudited, "lb-4", nil)
	if j2.sequence != 4 {
		t.Errorf("Expected sequence 4 after append, got %d", j2.sequence)
	}
}
