// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/typetrace/fontinspector/internal/inspector"
)

// DocumentStoreConfig controls the Postgres connection pool used for the
// document tables.
type DocumentStoreConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// querier is the subset of pgxpool.Pool the store needs; pgxmock satisfies it.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// DocumentStore persists projects and inspections as JSONB documents. It
// implements both inspector.ProjectStore and inspector.InspectionStore.
type DocumentStore struct {
	pool querier
}

// NewDocumentStore creates a Postgres-backed DocumentStore using the provided config.
func NewDocumentStore(ctx context.Context, cfg DocumentStoreConfig) (*DocumentStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &DocumentStore{pool: pool}, nil
}

// NewDocumentStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewDocumentStoreWithPool(pool querier) (*DocumentStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &DocumentStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *DocumentStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// CreateProject inserts a project document.
func (s *DocumentStore) CreateProject(ctx context.Context, project inspector.Project) error {
	query := `
		INSERT INTO projects (id, doc)
		VALUES ($1, $2)
		ON CONFLICT (id) DO NOTHING;
	`
	tag, err := s.pool.Exec(ctx, query, project.ID, project)
	if err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("project %s: %w", project.ID, inspector.ErrAlreadyExists)
	}
	return nil
}

// GetProject loads one project document by ID.
func (s *DocumentStore) GetProject(ctx context.Context, projectID string) (inspector.Project, error) {
	query := `SELECT doc FROM projects WHERE id = $1;`
	var project inspector.Project
	if err := s.pool.QueryRow(ctx, query, projectID).Scan(&project); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return inspector.Project{}, fmt.Errorf("project %s: %w", projectID, inspector.ErrNotFound)
		}
		return inspector.Project{}, fmt.Errorf("get project: %w", err)
	}
	return project, nil
}

// ListProjects returns all project documents ordered by creation time.
func (s *DocumentStore) ListProjects(ctx context.Context) ([]inspector.Project, error) {
	query := `SELECT doc FROM projects ORDER BY doc->>'created_at';`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var projects []inspector.Project
	for rows.Next() {
		var project inspector.Project
		if err := rows.Scan(&project); err != nil {
			return nil, fmt.Errorf("scan project row: %w", err)
		}
		projects = append(projects, project)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate projects: %w", err)
	}
	return projects, nil
}

// DeleteProject removes a project document.
func (s *DocumentStore) DeleteProject(ctx context.Context, projectID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM projects WHERE id = $1;`, projectID)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("project %s: %w", projectID, inspector.ErrNotFound)
	}
	return nil
}

// AddInspection inserts the inspection ID into the project's set if absent.
func (s *DocumentStore) AddInspection(ctx context.Context, projectID, inspectionID string, at time.Time) error {
	project, err := s.GetProject(ctx, projectID)
	if err != nil {
		return err
	}
	if !project.HasInspection(inspectionID) {
		project.InspectionIDs = append(project.InspectionIDs, inspectionID)
	}
	project.UpdatedAt = at
	return s.updateProject(ctx, project)
}

// RemoveInspection removes the inspection ID from the project's set if present.
func (s *DocumentStore) RemoveInspection(ctx context.Context, projectID, inspectionID string, at time.Time) error {
	project, err := s.GetProject(ctx, projectID)
	if err != nil {
		return err
	}
	kept := project.InspectionIDs[:0]
	for _, id := range project.InspectionIDs {
		if id != inspectionID {
			kept = append(kept, id)
		}
	}
	project.InspectionIDs = kept
	project.UpdatedAt = at
	return s.updateProject(ctx, project)
}

// ReplaceInspections overwrites the project's set wholesale.
func (s *DocumentStore) ReplaceInspections(ctx context.Context, projectID string, inspectionIDs []string, at time.Time) error {
	project, err := s.GetProject(ctx, projectID)
	if err != nil {
		return err
	}
	ids := append([]string(nil), inspectionIDs...)
	sort.Strings(ids)
	project.InspectionIDs = ids
	project.UpdatedAt = at
	return s.updateProject(ctx, project)
}

func (s *DocumentStore) updateProject(ctx context.Context, project inspector.Project) error {
	tag, err := s.pool.Exec(ctx, `UPDATE projects SET doc = $2 WHERE id = $1;`, project.ID, project)
	if err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("project %s: %w", project.ID, inspector.ErrNotFound)
	}
	return nil
}

// CreateInspection inserts an inspection document.
func (s *DocumentStore) CreateInspection(ctx context.Context, inspection inspector.Inspection) error {
	query := `
		INSERT INTO inspections (id, doc)
		VALUES ($1, $2)
		ON CONFLICT (id) DO NOTHING;
	`
	tag, err := s.pool.Exec(ctx, query, inspection.ID, inspection)
	if err != nil {
		return fmt.Errorf("insert inspection: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("inspection %s: %w", inspection.ID, inspector.ErrAlreadyExists)
	}
	return nil
}

// GetInspection loads one inspection document by ID.
func (s *DocumentStore) GetInspection(ctx context.Context, inspectionID string) (inspector.Inspection, error) {
	query := `SELECT doc FROM inspections WHERE id = $1;`
	var inspection inspector.Inspection
	if err := s.pool.QueryRow(ctx, query, inspectionID).Scan(&inspection); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return inspector.Inspection{}, fmt.Errorf("inspection %s: %w", inspectionID, inspector.ErrNotFound)
		}
		return inspector.Inspection{}, fmt.Errorf("get inspection: %w", err)
	}
	return inspection, nil
}

// ListInspections returns all inspection documents ordered by creation time.
func (s *DocumentStore) ListInspections(ctx context.Context) ([]inspector.Inspection, error) {
	return s.queryInspections(ctx, `SELECT doc FROM inspections ORDER BY doc->>'created_at';`)
}

// ListProjectInspections returns inspections whose back-reference names the project.
func (s *DocumentStore) ListProjectInspections(ctx context.Context, projectID string) ([]inspector.Inspection, error) {
	query := `SELECT doc FROM inspections WHERE doc->>'project_id' = $1 ORDER BY doc->>'created_at';`
	return s.queryInspections(ctx, query, projectID)
}

func (s *DocumentStore) queryInspections(ctx context.Context, query string, args ...any) ([]inspector.Inspection, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list inspections: %w", err)
	}
	defer rows.Close()

	var inspections []inspector.Inspection
	for rows.Next() {
		var inspection inspector.Inspection
		if err := rows.Scan(&inspection); err != nil {
			return nil, fmt.Errorf("scan inspection row: %w", err)
		}
		inspections = append(inspections, inspection)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate inspections: %w", err)
	}
	return inspections, nil
}

// DeleteInspection removes an inspection document and its stored result.
func (s *DocumentStore) DeleteInspection(ctx context.Context, inspectionID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM inspections WHERE id = $1;`, inspectionID)
	if err != nil {
		return fmt.Errorf("delete inspection: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("inspection %s: %w", inspectionID, inspector.ErrNotFound)
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM inspection_results WHERE inspection_id = $1;`, inspectionID); err != nil {
		return fmt.Errorf("delete inspection result: %w", err)
	}
	return nil
}

// SetProjectRef sets the inspection's back-reference and stamps UpdatedAt.
func (s *DocumentStore) SetProjectRef(ctx context.Context, inspectionID, projectID string, at time.Time) error {
	inspection, err := s.GetInspection(ctx, inspectionID)
	if err != nil {
		return err
	}
	inspection.ProjectID = projectID
	inspection.UpdatedAt = at
	return s.updateInspection(ctx, inspection)
}

// ClearProjectRef clears the back-reference only when it currently equals
// projectID; a stale reference is left untouched.
func (s *DocumentStore) ClearProjectRef(ctx context.Context, inspectionID, projectID string, at time.Time) error {
	inspection, err := s.GetInspection(ctx, inspectionID)
	if err != nil {
		return err
	}
	if inspection.ProjectID != projectID {
		return nil
	}
	inspection.ProjectID = ""
	inspection.UpdatedAt = at
	return s.updateInspection(ctx, inspection)
}

// UpdateStatus transitions the inspection's lifecycle state and stamps the
// started/finished markers.
func (s *DocumentStore) UpdateStatus(ctx context.Context, inspectionID string, status inspector.Status, progress int, errText string) error {
	inspection, err := s.GetInspection(ctx, inspectionID)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	inspection.Status = status
	inspection.Progress = progress
	inspection.Error = errText
	inspection.UpdatedAt = now
	if status == inspector.StatusProcessing && inspection.Started == nil {
		started := now
		inspection.Started = &started
	}
	if status.IsTerminal() && inspection.Finished == nil {
		finished := now
		inspection.Finished = &finished
	}
	return s.updateInspection(ctx, inspection)
}

func (s *DocumentStore) updateInspection(ctx context.Context, inspection inspector.Inspection) error {
	tag, err := s.pool.Exec(ctx, `UPDATE inspections SET doc = $2 WHERE id = $1;`, inspection.ID, inspection)
	if err != nil {
		return fmt.Errorf("update inspection: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("inspection %s: %w", inspection.ID, inspector.ErrNotFound)
	}
	return nil
}

// SaveResult upserts the inspection's result document.
func (s *DocumentStore) SaveResult(ctx context.Context, result inspector.InspectionResult) error {
	query := `
		INSERT INTO inspection_results (inspection_id, doc)
		VALUES ($1, $2)
		ON CONFLICT (inspection_id) DO UPDATE SET doc = EXCLUDED.doc;
	`
	if _, err := s.pool.Exec(ctx, query, result.InspectionID, result); err != nil {
		return fmt.Errorf("save inspection result: %w", err)
	}
	return nil
}

// GetResult loads the result document for one inspection.
func (s *DocumentStore) GetResult(ctx context.Context, inspectionID string) (inspector.InspectionResult, error) {
	query := `SELECT doc FROM inspection_results WHERE inspection_id = $1;`
	var result inspector.InspectionResult
	if err := s.pool.QueryRow(ctx, query, inspectionID).Scan(&result); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return inspector.InspectionResult{}, fmt.Errorf("result %s: %w", inspectionID, inspector.ErrNotFound)
		}
		return inspector.InspectionResult{}, fmt.Errorf("get inspection result: %w", err)
	}
	return result, nil
}
