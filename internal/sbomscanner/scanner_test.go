package sbomscanner

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/dongwonkwak/ironpost/internal/ironcore"
)

func writeLockfile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestScanDirectory_NonRecursive(t *testing.T) {
	dir := t.TempDir()
	writeLockfile(t, dir, "go.sum", "github.com/google/uuid v1.6.0 h1:abc=\n")
	sub := filepath.Join(dir, "nested")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeLockfile(t, sub, "go.sum", "github.com/other/mod v2.0.0 h1:xyz=\n")

	pkgs, err := scanDirectory(zap.NewNop(), dir)
	if err != nil {
		t.Fatalf("scanDirectory: %v", err)
	}
	if len(pkgs) != 1 {
		t.Fatalf("expected only the top-level lockfile to be scanned, got %d packages", len(pkgs))
	}
}

func TestScanner_EndToEnd_EmitsFindingForMatchedVulnerability(t *testing.T) {
	dir := t.TempDir()
	writeLockfile(t, dir, "requirements.txt", "flask==2.0.0\n")

	dbPath := filepath.Join(t.TempDir(), "vuln.db")
	db, err := OpenVulnDB(dbPath)
	if err != nil {
		t.Fatalf("OpenVulnDB: %v", err)
	}
	if err := db.Put(ironcore.EcosystemPip, "flask", []ironcore.Vulnerability{
		{CVEID: "CVE-2021-XXXX", Package: "flask", Ecosystem: ironcore.EcosystemPip, AffectedRanges: []string{"2.0.0"}, Severity: ironcore.SeverityMedium},
	}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	out := make(chan ironcore.AlertEvent, 4)
	scanner := NewBuilder(Config{VulnDBPath: dbPath}, zap.NewNop(), out).Build()

	ctx := context.Background()
	if err := scanner.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if scanner.degraded {
		t.Fatal("expected non-degraded mode with a populated db")
	}

	doc, err := scanner.Scan(ctx, dir)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(doc.Packages) != 1 {
		t.Fatalf("expected 1 discovered package, got %d", len(doc.Packages))
	}

	select {
	case ev := <-out:
		if ev.Alert.Title == "" {
			t.Fatal("expected a populated alert")
		}
	case <-time.After(time.Second):
		t.Fatal("expected an alert event for the matched vulnerability")
	}
}

func TestScanner_MinSeverity_SuppressesLowerFindings(t *testing.T) {
	dir := t.TempDir()
	writeLockfile(t, dir, "requirements.txt", "flask==2.0.0\n")

	dbPath := filepath.Join(t.TempDir(), "vuln.db")
	db, err := OpenVulnDB(dbPath)
	if err != nil {
		t.Fatalf("OpenVulnDB: %v", err)
	}
	if err := db.Put(ironcore.EcosystemPip, "flask", []ironcore.Vulnerability{
		{CVEID: "CVE-2021-XXXX", Package: "flask", Ecosystem: ironcore.EcosystemPip, AffectedRanges: []string{"2.0.0"}, Severity: ironcore.SeverityMedium},
	}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	out := make(chan ironcore.AlertEvent, 4)
	scanner := NewBuilder(Config{VulnDBPath: dbPath, MinSeverity: ironcore.SeverityHigh}, zap.NewNop(), out).Build()

	ctx := context.Background()
	if err := scanner.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}

	if _, err := scanner.Scan(ctx, dir); err != nil {
		t.Fatalf("Scan: %v", err)
	}

	select {
	case ev := <-out:
		t.Fatalf("expected a medium-severity finding to be suppressed by a high min_severity, got %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestScanner_DegradedMode_WhenDBMissing(t *testing.T) {
	out := make(chan ironcore.AlertEvent, 1)
	scanner := NewBuilder(Config{VulnDBPath: filepath.Join(t.TempDir(), "nonexistent", "vuln.db")}, zap.NewNop(), out).Build()

	ctx := context.Background()
	if err := scanner.Init(ctx); err != nil {
		t.Fatalf("Init should not fail on a missing db: %v", err)
	}
	if !scanner.degraded {
		t.Fatal("expected degraded mode when the vulnerability db can't be opened")
	}
	health := scanner.HealthCheck(ctx)
	if !health.Degraded {
		t.Fatal("expected HealthCheck to report degraded")
	}
}
