package storage

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/codebuildervaibhav/recording-processor/internal/types"
)

func newTestDB(t *testing.T) *MetadataDB {
	t.Helper()
	db, err := NewMetadataDB(filepath.Join(t.TempDir(), "recordings.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSaveAndGetRecording(t *testing.T) {
	db := newTestDB(t)

	rec := Recording{
		Filename:  "rec.webm",
		SessionID: "conn-1",
		UserID:    "user-1",
		Plan:      types.PlanPro,
		State:     types.StateAssembled,
		SizeBytes: 1024,
	}
	if err := db.SaveRecording(rec); err != nil {
		t.Fatalf("save: %v", err)
	}

	rec.State = types.StateComplete
	rec.Transcript = "hello world"
	rec.SummaryTitle = "Greeting"
	if err := db.SaveRecording(rec); err != nil {
		t.Fatalf("save again: %v", err)
	}

	got, err := db.GetRecording("rec.webm")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.State != types.StateComplete || got.Transcript != "hello world" || got.SummaryTitle != "Greeting" {
		t.Fatalf("unexpected row: %+v", got)
	}
	if got.Plan != types.PlanPro || got.SizeBytes != 1024 || got.UserID != "user-1" {
		t.Fatalf("unexpected row: %+v", got)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.Before(got.CreatedAt) {
		t.Fatalf("bad timestamps: %v %v", got.CreatedAt, got.UpdatedAt)
	}
}

func TestUpdateStateAndList(t *testing.T) {
	db := newTestDB(t)

	for _, name := range []string{"a.webm", "b.webm", "c.webm"} {
		if err := db.SaveRecording(Recording{Filename: name, SessionID: "c", State: types.StateAssembled}); err != nil {
			t.Fatalf("save %s: %v", name, err)
		}
	}
	if err := db.UpdateState("b.webm", types.StateFailed, types.ReasonUploadFailed); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := db.UpdateState("missing.webm", types.StateFailed, types.ReasonUploadFailed); !errors.Is(err, ErrRecordingNotFound) {
		t.Fatalf("update missing err = %v", err)
	}

	failed, err := db.ListRecordings(types.StateFailed, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(failed) != 1 || failed[0].Filename != "b.webm" || failed[0].Reason != types.ReasonUploadFailed {
		t.Fatalf("failed = %+v", failed)
	}

	all, err := db.ListRecordings("", 0)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("len(all) = %d", len(all))
	}
}

func TestGetRecordingNotFound(t *testing.T) {
	db := newTestDB(t)
	if _, err := db.GetRecording("nope.webm"); !errors.Is(err, ErrRecordingNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestCompletedAndTracked(t *testing.T) {
	db := newTestDB(t)
	rows := map[string]types.State{
		"done.webm":   types.StateComplete,
		"failed.webm": types.StateFailed,
		"busy.webm":   types.StateUploading,
	}
	for name, state := range rows {
		if err := db.SaveRecording(Recording{Filename: name, SessionID: "c", State: state}); err != nil {
			t.Fatalf("save %s: %v", name, err)
		}
	}

	if !db.Completed("done.webm") || db.Completed("failed.webm") || db.Completed("nope.webm") {
		t.Fatalf("completed mismatch")
	}
	if db.Tracked("done.webm") || db.Tracked("nope.webm") {
		t.Fatalf("completed or unknown rows should not be tracked")
	}
	if !db.Tracked("failed.webm") || !db.Tracked("busy.webm") {
		t.Fatalf("unfinished rows should be tracked")
	}
}
