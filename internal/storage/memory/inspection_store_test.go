package memory

import (
	"context"
	"testing"
	"time"

	"github.com/typetrace/fontinspector/internal/inspector"
)

func TestInspectionStoreLifecycle(t *testing.T) {
	t.Parallel()

	store := NewInspectionStore(nil)
	ctx := context.Background()
	ins := inspector.Inspection{ID: "ins-1", URL: "https://example.com", Status: inspector.StatusPending}

	if err := store.CreateInspection(ctx, ins); err != nil {
		t.Fatalf("CreateInspection() error = %v", err)
	}
	if err := store.CreateInspection(ctx, ins); err == nil {
		t.Fatal("expected duplicate inspection error")
	}
	if err := store.UpdateStatus(ctx, ins.ID, inspector.StatusProcessing, 10, ""); err != nil {
		t.Fatalf("UpdateStatus processing error = %v", err)
	}
	result := inspector.InspectionResult{InspectionID: ins.ID, URL: ins.URL}
	if err := store.SaveResult(ctx, result); err != nil {
		t.Fatalf("SaveResult() error = %v", err)
	}
	if err := store.UpdateStatus(ctx, ins.ID, inspector.StatusCompleted, 100, ""); err != nil {
		t.Fatalf("UpdateStatus completed error = %v", err)
	}

	final, err := store.GetInspection(ctx, ins.ID)
	if err != nil {
		t.Fatalf("GetInspection() error = %v", err)
	}
	if final.Status != inspector.StatusCompleted || final.Started == nil || final.Finished == nil {
		t.Fatalf("expected timestamps set, got %+v", final)
	}
	if final.Progress != 100 {
		t.Fatalf("expected progress 100, got %d", final.Progress)
	}
	if _, err := store.GetResult(ctx, ins.ID); err != nil {
		t.Fatalf("GetResult() error = %v", err)
	}
}

func TestInspectionStoreProjectRefs(t *testing.T) {
	t.Parallel()

	store := NewInspectionStore(nil)
	ctx := context.Background()
	if err := store.CreateInspection(ctx, inspector.Inspection{ID: "ins-1"}); err != nil {
		t.Fatalf("CreateInspection() error = %v", err)
	}

	now := store.now()
	if err := store.SetProjectRef(ctx, "ins-1", "proj-a", now); err != nil {
		t.Fatalf("SetProjectRef() error = %v", err)
	}
	// Clearing with the wrong owner must be a no-op.
	if err := store.ClearProjectRef(ctx, "ins-1", "proj-b", now); err != nil {
		t.Fatalf("ClearProjectRef(mismatch) error = %v", err)
	}
	ins, err := store.GetInspection(ctx, "ins-1")
	if err != nil || ins.ProjectID != "proj-a" {
		t.Fatalf("expected back-ref preserved, got %+v err=%v", ins, err)
	}
	if err := store.ClearProjectRef(ctx, "ins-1", "proj-a", now); err != nil {
		t.Fatalf("ClearProjectRef(match) error = %v", err)
	}
	ins, err = store.GetInspection(ctx, "ins-1")
	if err != nil || ins.ProjectID != "" {
		t.Fatalf("expected back-ref cleared, got %+v err=%v", ins, err)
	}

	if err := store.SetProjectRef(ctx, "ghost", "proj-a", now); err == nil {
		t.Fatal("expected not found error")
	}
}

func TestProjectStoreSetSemantics(t *testing.T) {
	t.Parallel()

	store := NewProjectStore()
	ctx := context.Background()
	if err := store.CreateProject(ctx, inspector.Project{ID: "proj-a"}); err != nil {
		t.Fatalf("CreateProject() error = %v", err)
	}

	now := time.Now().UTC()
	for i := 0; i < 3; i++ {
		if err := store.AddInspection(ctx, "proj-a", "ins-1", now); err != nil {
			t.Fatalf("AddInspection() error = %v", err)
		}
	}
	project, err := store.GetProject(ctx, "proj-a")
	if err != nil {
		t.Fatalf("GetProject() error = %v", err)
	}
	if len(project.InspectionIDs) != 1 {
		t.Fatalf("expected set semantics, got %v", project.InspectionIDs)
	}

	// Returned slices must be copies.
	project.InspectionIDs[0] = "mutated"
	again, _ := store.GetProject(ctx, "proj-a")
	if again.InspectionIDs[0] != "ins-1" {
		t.Fatal("expected GetProject to return a copy")
	}

	if err := store.RemoveInspection(ctx, "proj-a", "ins-1", now); err != nil {
		t.Fatalf("RemoveInspection() error = %v", err)
	}
	project, _ = store.GetProject(ctx, "proj-a")
	if len(project.InspectionIDs) != 0 {
		t.Fatalf("expected empty set, got %v", project.InspectionIDs)
	}
}
