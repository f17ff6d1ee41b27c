package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/typetrace/fontinspector/internal/inspector"
)

// InspectionStore keeps inspection documents and results in memory.
type InspectionStore struct {
	mu          sync.RWMutex
	inspections map[string]inspector.Inspection
	results     map[string]inspector.InspectionResult
	clock       inspector.Clock
}

// NewInspectionStore constructs an InspectionStore. The clock stamps status
// transitions; pass nil to use wall-clock time.
func NewInspectionStore(clock inspector.Clock) *InspectionStore {
	return &InspectionStore{
		inspections: make(map[string]inspector.Inspection),
		results:     make(map[string]inspector.InspectionResult),
		clock:       clock,
	}
}

func (s *InspectionStore) now() time.Time {
	if s.clock != nil {
		return s.clock.Now()
	}
	return time.Now().UTC()
}

// CreateInspection stores a new inspection document.
func (s *InspectionStore) CreateInspection(_ context.Context, inspection inspector.Inspection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.inspections[inspection.ID]; exists {
		return fmt.Errorf("inspection %s: %w", inspection.ID, inspector.ErrAlreadyExists)
	}
	s.inspections[inspection.ID] = inspection
	return nil
}

// GetInspection fetches an inspection by ID.
func (s *InspectionStore) GetInspection(_ context.Context, inspectionID string) (inspector.Inspection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ins, ok := s.inspections[inspectionID]
	if !ok {
		return inspector.Inspection{}, fmt.Errorf("inspection %s: %w", inspectionID, inspector.ErrNotFound)
	}
	return ins, nil
}

// ListInspections returns every stored inspection.
func (s *InspectionStore) ListInspections(_ context.Context) ([]inspector.Inspection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]inspector.Inspection, 0, len(s.inspections))
	for _, ins := range s.inspections {
		out = append(out, ins)
	}
	return out, nil
}

// ListProjectInspections returns inspections whose back-reference equals projectID.
func (s *InspectionStore) ListProjectInspections(_ context.Context, projectID string) ([]inspector.Inspection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []inspector.Inspection
	for _, ins := range s.inspections {
		if ins.ProjectID == projectID {
			out = append(out, ins)
		}
	}
	return out, nil
}

// DeleteInspection removes an inspection and its result.
func (s *InspectionStore) DeleteInspection(_ context.Context, inspectionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.inspections[inspectionID]; !ok {
		return fmt.Errorf("inspection %s: %w", inspectionID, inspector.ErrNotFound)
	}
	delete(s.inspections, inspectionID)
	delete(s.results, inspectionID)
	return nil
}

// SetProjectRef points the inspection's back-reference at projectID.
func (s *InspectionStore) SetProjectRef(_ context.Context, inspectionID, projectID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ins, ok := s.inspections[inspectionID]
	if !ok {
		return fmt.Errorf("inspection %s: %w", inspectionID, inspector.ErrNotFound)
	}
	ins.ProjectID = projectID
	ins.UpdatedAt = at
	s.inspections[inspectionID] = ins
	return nil
}

// ClearProjectRef clears the back-reference only when it equals projectID.
func (s *InspectionStore) ClearProjectRef(_ context.Context, inspectionID, projectID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ins, ok := s.inspections[inspectionID]
	if !ok {
		return fmt.Errorf("inspection %s: %w", inspectionID, inspector.ErrNotFound)
	}
	if ins.ProjectID != projectID {
		return nil
	}
	ins.ProjectID = ""
	ins.UpdatedAt = at
	s.inspections[inspectionID] = ins
	return nil
}

// UpdateStatus updates status, progress, and error text, stamping the
// started/finished timestamps on the matching transitions.
func (s *InspectionStore) UpdateStatus(
	_ context.Context,
	inspectionID string,
	status inspector.Status,
	progress int,
	errText string,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ins, ok := s.inspections[inspectionID]
	if !ok {
		return fmt.Errorf("inspection %s: %w", inspectionID, inspector.ErrNotFound)
	}
	now := s.now()
	ins.Status = status
	ins.Progress = progress
	ins.Error = errText
	ins.UpdatedAt = now
	if status == inspector.StatusProcessing && ins.Started == nil {
		ins.Started = pointerTime(now)
	}
	if status.IsTerminal() {
		ins.Finished = pointerTime(now)
	}
	s.inspections[inspectionID] = ins
	return nil
}

// SaveResult stores the font report for an inspection.
func (s *InspectionStore) SaveResult(_ context.Context, result inspector.InspectionResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.inspections[result.InspectionID]; !ok {
		return fmt.Errorf("inspection %s: %w", result.InspectionID, inspector.ErrNotFound)
	}
	s.results[result.InspectionID] = result
	return nil
}

// GetResult returns the stored font report.
func (s *InspectionStore) GetResult(_ context.Context, inspectionID string) (inspector.InspectionResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result, ok := s.results[inspectionID]
	if !ok {
		return inspector.InspectionResult{}, fmt.Errorf("result %s: %w", inspectionID, inspector.ErrNotFound)
	}
	return result, nil
}

func pointerTime(t time.Time) *time.Time {
	ts := t
	return &ts
}
