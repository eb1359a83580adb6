package storage

import "testing"

func TestBuildUploadPath(t *testing.T) {
	got, err := BuildUploadPath("tenant-1", "session-1", "Q3 Report (final).xlsx")
	if err != nil {
		t.Fatalf("BuildUploadPath() error = %v", err)
	}
	want := "tenant-1/sessions/session-1/upload/Q3_Report__final_.xlsx"
	if got != want {
		t.Fatalf("path = %q, want %q", got, want)
	}
}

func TestBuildUploadPathStripsDirectoryTraversal(t *testing.T) {
	got, err := BuildUploadPath("tenant-1", "session-1", "../../etc/passwd")
	if err != nil {
		t.Fatalf("BuildUploadPath() error = %v", err)
	}
	want := "tenant-1/sessions/session-1/upload/passwd"
	if got != want {
		t.Fatalf("path = %q, want %q", got, want)
	}
}

func TestBuildUploadPathFallsBackForUnusableName(t *testing.T) {
	got, err := BuildUploadPath("tenant-1", "session-1", "...")
	if err != nil {
		t.Fatalf("BuildUploadPath() error = %v", err)
	}
	want := "tenant-1/sessions/session-1/upload/upload"
	if got != want {
		t.Fatalf("path = %q, want %q", got, want)
	}
}

func TestBuildSnapshotPath(t *testing.T) {
	got, err := BuildSnapshotPath("tenant-1", "session-1")
	if err != nil {
		t.Fatalf("BuildSnapshotPath() error = %v", err)
	}
	if got != "tenant-1/sessions/session-1/snapshot.parquet" {
		t.Fatalf("path = %q", got)
	}
}

func TestBuildPathsValidateComponents(t *testing.T) {
	if _, err := BuildUploadPath("", "session-1", "a.csv"); err == nil {
		t.Fatal("expected error for empty tenant id")
	}
	if _, err := BuildUploadPath("tenant-1", "../evil", "a.csv"); err == nil {
		t.Fatal("expected error for invalid session id")
	}
	if _, err := BuildSnapshotPath("tenant/1", "session-1"); err == nil {
		t.Fatal("expected error for slash in tenant id")
	}
}
