package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "paris.json")
	content := `{
		"name": "Paris Weekend",
		"startDate": "2024-06-01",
		"endDate": "2024-06-03",
		"events": [
			{"category": "meal", "title": "Dinner", "date": "2024-06-01T19:00:00Z", "confirmation": "ABC123"}
		]
	}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	tr, err := loadTrip(path)
	if err != nil {
		t.Fatalf("loadTrip: %v", err)
	}
	// Missing id falls back to the file name.
	if tr.ID != "paris" {
		t.Fatalf("id = %q", tr.ID)
	}
	if len(tr.Events) != 1 {
		t.Fatalf("events = %d", len(tr.Events))
	}
	e := tr.Events[0]
	if e.Start != "2024-06-01T19:00:00Z" || e.ID == "" {
		t.Fatalf("event not normalized: %+v", e)
	}
	// Unknown fields survive in notes.
	if e.Notes == "" {
		t.Fatalf("quarantined field lost: %+v", e)
	}
}

func TestLoadTrip_Missing(t *testing.T) {
	if _, err := loadTrip(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
