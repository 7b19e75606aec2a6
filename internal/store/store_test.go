package store

import (
	"path/filepath"
	"testing"
	"time"
)

func TestInsertAndForImage(t *testing.T) {
	st, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	defer st.Close()

	now := time.Unix(1700000000, 0).UTC()
	rec := Record{
		Image:       "web",
		Version:     "1.0.0",
		Outcome:     "success",
		ArtifactIDs: []string{"ami-1", "ami-2"},
		StartedAt:   now,
		FinishedAt:  now.Add(5 * time.Minute),
	}
	if err := st.Insert(rec); err != nil {
		t.Fatalf("Insert returned error: %v", err)
	}

	got, err := st.ForImage("web")
	if err != nil {
		t.Fatalf("ForImage returned error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 record, got %d", len(got))
	}
	if got[0].Outcome != "success" || len(got[0].ArtifactIDs) != 2 {
		t.Errorf("unexpected record: %+v", got[0])
	}
}

func TestForImageIsAppendOnlyAndOrdered(t *testing.T) {
	st, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	defer st.Close()

	base := time.Unix(1700000000, 0).UTC()
	for i, outcome := range []string{"failure", "success"} {
		rec := Record{
			Image:      "web",
			Version:    "1.0.0",
			Outcome:    outcome,
			StartedAt:  base,
			FinishedAt: base.Add(time.Duration(i+1) * time.Hour),
		}
		if err := st.Insert(rec); err != nil {
			t.Fatalf("Insert returned error: %v", err)
		}
	}

	got, err := st.ForImage("web")
	if err != nil {
		t.Fatalf("ForImage returned error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}
	if got[0].Outcome != "success" {
		t.Errorf("expected most recent build first, got %q", got[0].Outcome)
	}
}

func TestLatestAcrossImages(t *testing.T) {
	st, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	defer st.Close()

	base := time.Unix(1700000000, 0).UTC()
	for i, image := range []string{"web", "db"} {
		rec := Record{
			Image:      image,
			Version:    "1.0.0",
			Outcome:    "success",
			StartedAt:  base,
			FinishedAt: base.Add(time.Duration(i+1) * time.Hour),
		}
		if err := st.Insert(rec); err != nil {
			t.Fatalf("Insert returned error: %v", err)
		}
	}

	got, err := st.Latest(1)
	if err != nil {
		t.Fatalf("Latest returned error: %v", err)
	}
	if len(got) != 1 || got[0].Image != "db" {
		t.Fatalf("expected the most recent record across images, got %+v", got)
	}
}
