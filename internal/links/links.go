// Package links maintains the bidirectional project/inspection relationship:
// a project's inspection set and each inspection's project back-reference are
// updated together, without transactions, matching the two-document update
// model of the backing store.
package links

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/typetrace/fontinspector/internal/inspector"
)

// Service applies link/unlink updates across the two stores. The two writes
// are not atomic: if the second write fails the first is not rolled back, so
// callers can observe one side updated. RebuildFromInspections repairs that.
type Service struct {
	projects    inspector.ProjectStore
	inspections inspector.InspectionStore
	clock       inspector.Clock
	logger      *zap.Logger
}

// NewService wires the stores, clock, and logger.
func NewService(
	projects inspector.ProjectStore,
	inspections inspector.InspectionStore,
	clock inspector.Clock,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		projects:    projects,
		inspections: inspections,
		clock:       clock,
		logger:      logger,
	}
}

// Link adds the inspection to the project's set (set-insert, no duplicates)
// and points the inspection's back-reference at the project. Both documents
// are stamped with the current time. Fails without rollback when either
// document is missing.
func (s *Service) Link(ctx context.Context, projectID, inspectionID string) error {
	now := s.clock.Now()

	if _, err := s.inspections.GetInspection(ctx, inspectionID); err != nil {
		return fmt.Errorf("link %s->%s: %w", inspectionID, projectID, err)
	}

	if err := s.projects.AddInspection(ctx, projectID, inspectionID, now); err != nil {
		s.logger.Error("add inspection to project set failed",
			zap.String("project_id", projectID),
			zap.String("inspection_id", inspectionID),
			zap.Error(err),
		)
		return fmt.Errorf("add to project set: %w", err)
	}

	if err := s.inspections.SetProjectRef(ctx, inspectionID, projectID, now); err != nil {
		// The project side already holds the ID. No rollback here; a later
		// RebuildFromInspections drops the orphaned entry.
		s.logger.Error("set inspection back-reference failed",
			zap.String("project_id", projectID),
			zap.String("inspection_id", inspectionID),
			zap.Error(err),
		)
		return fmt.Errorf("set project ref: %w", err)
	}
	return nil
}

// Unlink removes the inspection from the project's set and clears the
// back-reference only when it still equals projectID. A back-reference that
// meanwhile points at another project is left untouched.
func (s *Service) Unlink(ctx context.Context, projectID, inspectionID string) error {
	now := s.clock.Now()

	if err := s.projects.RemoveInspection(ctx, projectID, inspectionID, now); err != nil {
		s.logger.Error("remove inspection from project set failed",
			zap.String("project_id", projectID),
			zap.String("inspection_id", inspectionID),
			zap.Error(err),
		)
		return fmt.Errorf("remove from project set: %w", err)
	}

	if err := s.inspections.ClearProjectRef(ctx, inspectionID, projectID, now); err != nil {
		s.logger.Error("clear inspection back-reference failed",
			zap.String("project_id", projectID),
			zap.String("inspection_id", inspectionID),
			zap.Error(err),
		)
		return fmt.Errorf("clear project ref: %w", err)
	}
	return nil
}

// RebuildReport summarizes one rebuild pass.
type RebuildReport struct {
	ProjectsUpdated int            `json:"projects_updated"`
	Linked          map[string]int `json:"linked"`
	OrphanedRefs    int            `json:"orphaned_refs"`
}

// RebuildFromInspections reconciles every project's inspection set from the
// inspection documents, which act as the source of truth. Inspections whose
// back-reference names a project that no longer exists are counted as
// orphaned but not modified. The pass is idempotent: running it twice in a
// row produces identical sets.
func (s *Service) RebuildFromInspections(ctx context.Context) (RebuildReport, error) {
	now := s.clock.Now()
	report := RebuildReport{Linked: make(map[string]int)}

	inspections, err := s.inspections.ListInspections(ctx)
	if err != nil {
		return report, fmt.Errorf("list inspections: %w", err)
	}
	byProject := make(map[string][]string)
	for _, ins := range inspections {
		if ins.ProjectID == "" {
			continue
		}
		byProject[ins.ProjectID] = append(byProject[ins.ProjectID], ins.ID)
	}

	projects, err := s.projects.ListProjects(ctx)
	if err != nil {
		return report, fmt.Errorf("list projects: %w", err)
	}
	known := make(map[string]bool, len(projects))

	for _, project := range projects {
		known[project.ID] = true
		ids := byProject[project.ID]
		sort.Strings(ids)
		if sameSet(project.InspectionIDs, ids) {
			continue
		}
		if err := s.projects.ReplaceInspections(ctx, project.ID, ids, now); err != nil {
			return report, fmt.Errorf("replace inspection set for %s: %w", project.ID, err)
		}
		report.ProjectsUpdated++
		report.Linked[project.ID] = len(ids)
	}

	for projectID, ids := range byProject {
		if !known[projectID] {
			report.OrphanedRefs += len(ids)
			s.logger.Warn("inspections reference a missing project",
				zap.String("project_id", projectID),
				zap.Int("count", len(ids)),
			)
		}
	}
	return report, nil
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]int, len(a))
	for _, id := range a {
		seen[id]++
	}
	for _, id := range b {
		if seen[id] == 0 {
			return false
		}
		seen[id]--
	}
	return true
}
