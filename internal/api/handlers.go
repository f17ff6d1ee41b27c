package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/typetrace/fontinspector/internal/inspector"
)

const enqueueTimeout = 5 * time.Second

type createProjectRequest struct {
	Name            string   `json:"name"`
	URLs            []string `json:"urls"`
	HeadlessAllowed *bool    `json:"headless_allowed"`
}

type createInspectionRequest struct {
	URL             string `json:"url"`
	ProjectID       string `json:"project_id"`
	HeadlessAllowed *bool  `json:"headless_allowed"`
}

func (s *Server) createProject(w http.ResponseWriter, r *http.Request) {
	var req createProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "project name required")
		return
	}
	if len(req.URLs) == 0 {
		writeError(w, http.StatusBadRequest, "at least one URL required")
		return
	}
	if max := s.cfg.Inspector.MaxURLsPerProject; max > 0 && len(req.URLs) > max {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("too many URLs, limit is %d", max))
		return
	}
	for _, raw := range req.URLs {
		if err := validateURL(raw); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	projectID, err := s.idGen.NewID()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "generate project id failed")
		return
	}
	now := s.clock.Now()
	project := inspector.Project{
		ID:        projectID,
		Name:      req.Name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.projects.CreateProject(r.Context(), project); err != nil {
		writeError(w, http.StatusInternalServerError, "create project failed")
		return
	}

	headless := s.headlessDefault(req.HeadlessAllowed)
	inspectionIDs := make([]string, 0, len(req.URLs))
	for _, raw := range req.URLs {
		inspectionID, err := s.startInspection(r.Context(), raw, projectID, headless)
		if err != nil {
			s.logger.Error("start inspection failed",
				zap.String("project_id", projectID),
				zap.String("url", raw),
				zap.Error(err),
			)
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		inspectionIDs = append(inspectionIDs, inspectionID)
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"project_id":     projectID,
		"inspection_ids": inspectionIDs,
	})
}

func (s *Server) listProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.projects.ListProjects(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list projects failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"projects": projects})
}

func (s *Server) getProject(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "project_id")
	project, err := s.projects.GetProject(r.Context(), projectID)
	if err != nil {
		writeError(w, http.StatusNotFound, "project not found")
		return
	}
	inspections, err := s.inspections.ListProjectInspections(r.Context(), projectID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list project inspections failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"project":     project,
		"inspections": inspections,
	})
}

func (s *Server) deleteProject(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "project_id")
	project, err := s.projects.GetProject(r.Context(), projectID)
	if err != nil {
		writeError(w, http.StatusNotFound, "project not found")
		return
	}
	// Unlink members first so no inspection keeps a dangling back-reference.
	for _, inspectionID := range project.InspectionIDs {
		if err := s.links.Unlink(r.Context(), projectID, inspectionID); err != nil {
			s.logger.Warn("unlink during project delete failed",
				zap.String("project_id", projectID),
				zap.String("inspection_id", inspectionID),
				zap.Error(err),
			)
		}
	}
	if err := s.projects.DeleteProject(r.Context(), projectID); err != nil {
		writeError(w, http.StatusInternalServerError, "delete project failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"project_id": projectID, "status": "deleted"})
}

func (s *Server) linkInspection(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "project_id")
	inspectionID := chi.URLParam(r, "inspection_id")
	if err := s.links.Link(r.Context(), projectID, inspectionID); err != nil {
		if errors.Is(err, inspector.ErrNotFound) {
			writeError(w, http.StatusNotFound, "project or inspection not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "link failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"project_id":    projectID,
		"inspection_id": inspectionID,
		"status":        "linked",
	})
}

func (s *Server) unlinkInspection(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "project_id")
	inspectionID := chi.URLParam(r, "inspection_id")
	if err := s.links.Unlink(r.Context(), projectID, inspectionID); err != nil {
		if errors.Is(err, inspector.ErrNotFound) {
			writeError(w, http.StatusNotFound, "project or inspection not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "unlink failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"project_id":    projectID,
		"inspection_id": inspectionID,
		"status":        "unlinked",
	})
}

func (s *Server) rebuildLinks(w http.ResponseWriter, r *http.Request) {
	report, err := s.links.RebuildFromInspections(r.Context())
	if err != nil {
		s.logger.Error("rebuild links failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "rebuild failed")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) createInspection(w http.ResponseWriter, r *http.Request) {
	var req createInspectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := validateURL(req.URL); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.ProjectID != "" {
		if _, err := s.projects.GetProject(r.Context(), req.ProjectID); err != nil {
			writeError(w, http.StatusNotFound, "project not found")
			return
		}
	}
	inspectionID, err := s.startInspection(
		r.Context(),
		req.URL,
		req.ProjectID,
		s.headlessDefault(req.HeadlessAllowed),
	)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"inspection_id": inspectionID})
}

func (s *Server) getInspection(w http.ResponseWriter, r *http.Request) {
	inspectionID := chi.URLParam(r, "inspection_id")
	insp, err := s.inspections.GetInspection(r.Context(), inspectionID)
	if err != nil {
		writeError(w, http.StatusNotFound, "inspection not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"inspection": insp})
}

func (s *Server) getInspectionResult(w http.ResponseWriter, r *http.Request) {
	inspectionID := chi.URLParam(r, "inspection_id")
	result, err := s.inspections.GetResult(r.Context(), inspectionID)
	if err == nil {
		writeJSON(w, http.StatusOK, result)
		return
	}
	insp, lookupErr := s.inspections.GetInspection(r.Context(), inspectionID)
	if lookupErr != nil {
		writeError(w, http.StatusNotFound, "inspection not found")
		return
	}
	writeError(w, http.StatusConflict, fmt.Sprintf("inspection is %s, no result yet", insp.Status))
}

func (s *Server) retryInspection(w http.ResponseWriter, r *http.Request) {
	inspectionID := chi.URLParam(r, "inspection_id")
	insp, err := s.inspections.GetInspection(r.Context(), inspectionID)
	if err != nil {
		writeError(w, http.StatusNotFound, "inspection not found")
		return
	}
	if insp.Status != inspector.StatusFailed {
		writeError(w, http.StatusConflict, "only failed inspections can be retried")
		return
	}
	if err := s.inspections.UpdateStatus(r.Context(), inspectionID, inspector.StatusPending, 0, ""); err != nil {
		writeError(w, http.StatusInternalServerError, "reset inspection failed")
		return
	}
	if err := s.enqueue(r.Context(), insp.ID, insp.URL, insp.HeadlessAllowed, 2); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"inspection_id": inspectionID,
		"status":        string(inspector.StatusPending),
	})
}

func (s *Server) getQueue(w http.ResponseWriter, r *http.Request) {
	inspections, err := s.inspections.ListInspections(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list inspections failed")
		return
	}
	items := make([]inspector.Inspection, 0)
	for _, insp := range inspections {
		if insp.Status != inspector.StatusCompleted {
			items = append(items, insp)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"visible": inspector.QueueVisible(inspections),
		"items":   items,
	})
}

// startInspection creates the inspection document, links it to the project
// when one is given, and enqueues it for the worker pool.
func (s *Server) startInspection(ctx context.Context, rawURL, projectID string, headless bool) (string, error) {
	inspectionID, err := s.idGen.NewID()
	if err != nil {
		return "", fmt.Errorf("generate inspection id: %w", err)
	}
	now := s.clock.Now()
	insp := inspector.Inspection{
		ID:              inspectionID,
		URL:             rawURL,
		Status:          inspector.StatusPending,
		HeadlessAllowed: headless,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.inspections.CreateInspection(ctx, insp); err != nil {
		return "", fmt.Errorf("create inspection: %w", err)
	}
	if projectID != "" {
		if err := s.links.Link(ctx, projectID, inspectionID); err != nil {
			return "", fmt.Errorf("link inspection: %w", err)
		}
	}
	if err := s.enqueue(ctx, inspectionID, rawURL, headless, 1); err != nil {
		return "", err
	}
	return inspectionID, nil
}

func (s *Server) enqueue(ctx context.Context, inspectionID, rawURL string, headless bool, attempt int) error {
	queueCtx, cancel := context.WithTimeout(ctx, enqueueTimeout)
	defer cancel()
	item := inspector.QueueItem{
		InspectionID: inspectionID,
		URL:          rawURL,
		Headless:     headless,
		Attempt:      attempt,
		Submitted:    s.clock.Now().Unix(),
	}
	if err := s.dispatcher.Enqueue(queueCtx, item); err != nil {
		return fmt.Errorf("enqueue inspection: %w", err)
	}
	return nil
}

func (s *Server) headlessDefault(ptr *bool) bool {
	if ptr == nil {
		return s.cfg.Headless.Enabled
	}
	return *ptr
}

func validateURL(raw string) error {
	if raw == "" {
		return errors.New("url required")
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("invalid url %q", raw)
	}
	return nil
}
