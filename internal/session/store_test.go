package session

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/TobiSchelling/deepresearch/internal/research"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSaveAndLoadStateRoundTrip(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	state := research.NewState("s1", "quantum computing")
	state.Plan = research.DefaultPlan("quantum computing")
	state.Phase = research.PhaseCritiquing
	state.Iteration = 2
	state.Citations = []research.Citation{
		{ID: "[1]", URL: "https://a.test/1", Title: "T", Snippet: "sn", AccessedFor: "sq_x"},
	}

	if err := store.SaveState(ctx, state); err != nil {
		t.Fatalf("SaveState: %v", err)
	}

	loaded, err := store.LoadState(ctx, "s1")
	if err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if loaded == nil {
		t.Fatal("expected stored state")
	}
	if loaded.Phase != research.PhaseCritiquing || loaded.Iteration != 2 {
		t.Errorf("phase/iteration did not round-trip: %s/%d", loaded.Phase, loaded.Iteration)
	}
	if len(loaded.Plan.SubQuestions) != 5 {
		t.Errorf("plan lost sub-questions: %d", len(loaded.Plan.SubQuestions))
	}
	if len(loaded.Citations) != 1 || loaded.Citations[0].ID != "[1]" {
		t.Errorf("citations did not round-trip: %+v", loaded.Citations)
	}
}

func TestLoadStateMissing(t *testing.T) {
	store := testStore(t)

	state, err := store.LoadState(context.Background(), "nope")
	if err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if state != nil {
		t.Error("expected nil for missing session")
	}
}

func TestSaveStateUpserts(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	state := research.NewState("s1", "edge computing")
	if err := store.SaveState(ctx, state); err != nil {
		t.Fatalf("SaveState: %v", err)
	}

	state.Phase = research.PhaseResearching
	state.Iteration = 1
	if err := store.SaveState(ctx, state); err != nil {
		t.Fatalf("SaveState update: %v", err)
	}

	sessions, err := store.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("expected 1 session after upsert, got %d", len(sessions))
	}
	if sessions[0].Phase != string(research.PhaseResearching) {
		t.Errorf("phase = %q, want researching", sessions[0].Phase)
	}
}

func TestSaveAndGetReport(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	state := research.NewState("s1", "edge computing")
	state.Plan = research.DefaultPlan("edge computing")
	state.FinalReport = "# Report\n\n## Findings\n\nContent [1]."
	state.ReportMetadata = &research.ReportMetadata{WordCount: 5, SectionCount: 1, TotalCitations: 1}

	if err := store.SaveState(ctx, state); err != nil {
		t.Fatalf("SaveState: %v", err)
	}
	if err := store.SaveReport(ctx, state); err != nil {
		t.Fatalf("SaveReport: %v", err)
	}

	report, err := store.GetReport(ctx, "s1")
	if err != nil {
		t.Fatalf("GetReport: %v", err)
	}
	if report == nil {
		t.Fatal("expected stored report")
	}
	if report.Title != "Research Report: edge computing" {
		t.Errorf("title = %q", report.Title)
	}
	if report.WordCount != 5 || report.SectionCount != 1 {
		t.Errorf("metadata not stored: %+v", report)
	}
}

func TestSaveReportRequiresFinalReport(t *testing.T) {
	store := testStore(t)

	state := research.NewState("s1", "q")
	if err := store.SaveReport(context.Background(), state); err == nil {
		t.Error("expected error for session without a report")
	}
}

func TestGetStats(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	done := research.NewState("done", "q1")
	done.IsComplete = true
	done.FinalReport = "# R"
	running := research.NewState("running", "q2")

	store.SaveState(ctx, done)
	store.SaveState(ctx, running)
	store.SaveReport(ctx, done)

	stats, err := store.GetStats(ctx)
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if stats.Sessions != 2 || stats.Completed != 1 || stats.Reports != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestMigrateIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sessions.db")

	store, err := Open(path)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	store.Close()

	// Reopening must not re-run migrations or fail.
	store, err = Open(path)
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	defer store.Close()

	version, err := getSchemaVersion(store.conn)
	if err != nil {
		t.Fatalf("getSchemaVersion: %v", err)
	}
	if version != latestVersion() {
		t.Errorf("schema version = %d, want %d", version, latestVersion())
	}
}
