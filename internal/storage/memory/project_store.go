package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/typetrace/fontinspector/internal/inspector"
)

// ProjectStore provides an in-memory implementation for development/testing.
type ProjectStore struct {
	mu       sync.RWMutex
	projects map[string]inspector.Project
}

// NewProjectStore constructs a ProjectStore.
func NewProjectStore() *ProjectStore {
	return &ProjectStore{
		projects: make(map[string]inspector.Project),
	}
}

// CreateProject stores a new project document.
func (s *ProjectStore) CreateProject(_ context.Context, project inspector.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.projects[project.ID]; exists {
		return fmt.Errorf("project %s: %w", project.ID, inspector.ErrAlreadyExists)
	}
	project.InspectionIDs = append([]string(nil), project.InspectionIDs...)
	s.projects[project.ID] = project
	return nil
}

// GetProject fetches a project by ID.
func (s *ProjectStore) GetProject(_ context.Context, projectID string) (inspector.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	project, ok := s.projects[projectID]
	if !ok {
		return inspector.Project{}, fmt.Errorf("project %s: %w", projectID, inspector.ErrNotFound)
	}
	project.InspectionIDs = append([]string(nil), project.InspectionIDs...)
	return project, nil
}

// ListProjects returns all stored projects.
func (s *ProjectStore) ListProjects(_ context.Context) ([]inspector.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]inspector.Project, 0, len(s.projects))
	for _, project := range s.projects {
		project.InspectionIDs = append([]string(nil), project.InspectionIDs...)
		out = append(out, project)
	}
	return out, nil
}

// DeleteProject removes a project document.
func (s *ProjectStore) DeleteProject(_ context.Context, projectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[projectID]; !ok {
		return fmt.Errorf("project %s: %w", projectID, inspector.ErrNotFound)
	}
	delete(s.projects, projectID)
	return nil
}

// AddInspection inserts the inspection ID into the project's set if absent.
func (s *ProjectStore) AddInspection(_ context.Context, projectID, inspectionID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	project, ok := s.projects[projectID]
	if !ok {
		return fmt.Errorf("project %s: %w", projectID, inspector.ErrNotFound)
	}
	if !project.HasInspection(inspectionID) {
		project.InspectionIDs = append(append([]string(nil), project.InspectionIDs...), inspectionID)
	}
	project.UpdatedAt = at
	s.projects[projectID] = project
	return nil
}

// RemoveInspection removes the inspection ID from the project's set.
func (s *ProjectStore) RemoveInspection(_ context.Context, projectID, inspectionID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	project, ok := s.projects[projectID]
	if !ok {
		return fmt.Errorf("project %s: %w", projectID, inspector.ErrNotFound)
	}
	kept := make([]string, 0, len(project.InspectionIDs))
	for _, id := range project.InspectionIDs {
		if id != inspectionID {
			kept = append(kept, id)
		}
	}
	project.InspectionIDs = kept
	project.UpdatedAt = at
	s.projects[projectID] = project
	return nil
}

// ReplaceInspections overwrites the project's inspection set wholesale.
func (s *ProjectStore) ReplaceInspections(_ context.Context, projectID string, inspectionIDs []string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	project, ok := s.projects[projectID]
	if !ok {
		return fmt.Errorf("project %s: %w", projectID, inspector.ErrNotFound)
	}
	project.InspectionIDs = append([]string(nil), inspectionIDs...)
	project.UpdatedAt = at
	s.projects[projectID] = project
	return nil
}
