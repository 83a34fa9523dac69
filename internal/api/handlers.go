package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/JakeFAU/ai-scrapy-dashboard/internal/scraping"
)

const (
	defaultLogLimit = 100
	maxLogLimit     = 1000
)

// projectDTO carries the advisory drive check next to the record.
type projectDTO struct {
	scraping.Project
	DriveMismatch bool `json:"drive_mismatch"`
}

func (s *Server) toDTO(p scraping.Project) projectDTO {
	return projectDTO{Project: p, DriveMismatch: s.svc.DriveMismatch(p)}
}

func (s *Server) listProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.svc.ListProjects(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	out := make([]projectDTO, 0, len(projects))
	for _, p := range projects {
		out = append(out, s.toDTO(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{"projects": out})
}

func (s *Server) createProject(w http.ResponseWriter, r *http.Request) {
	var draft scraping.Draft
	if !decode(w, r, &draft) {
		return
	}
	p, err := s.svc.CreateProject(r.Context(), draft)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.toDTO(p))
}

func (s *Server) getProject(w http.ResponseWriter, r *http.Request) {
	p, err := s.svc.GetProject(r.Context(), chi.URLParam(r, "project_id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.toDTO(p))
}

func (s *Server) deleteProject(w http.ResponseWriter, _ *http.Request) {
	writeError(w, http.StatusNotImplemented, "project deletion is not supported")
}

type statusRequest struct {
	Status string `json:"status"`
}

func (s *Server) putStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if !decode(w, r, &req) {
		return
	}
	status, err := scraping.ParseStatus(req.Status)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.mutateAndRespond(w, r, func(id string) error {
		return s.svc.UpdateStatus(r.Context(), id, status)
	})
}

type codeRequest struct {
	Code *string `json:"code"`
}

func (s *Server) putCode(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Code == nil {
		writeError(w, http.StatusBadRequest, "code is required")
		return
	}
	s.mutateAndRespond(w, r, func(id string) error {
		return s.svc.UpdateCode(r.Context(), id, *req.Code)
	})
}

type driveRequest struct {
	Enabled *bool `json:"enabled"`
}

func (s *Server) putDrive(w http.ResponseWriter, r *http.Request) {
	var req driveRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Enabled == nil {
		writeError(w, http.StatusBadRequest, "enabled is required")
		return
	}
	s.mutateAndRespond(w, r, func(id string) error {
		return s.svc.UpdateDriveSetting(r.Context(), id, *req.Enabled)
	})
}

func (s *Server) mutateAndRespond(w http.ResponseWriter, r *http.Request, mutate func(id string) error) {
	id := chi.URLParam(r, "project_id")
	if err := mutate(id); err != nil {
		s.fail(w, err)
		return
	}
	p, err := s.svc.GetProject(r.Context(), id)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.toDTO(p))
}

func (s *Server) refactor(w http.ResponseWriter, r *http.Request) {
	p, err := s.svc.Refactor(r.Context(), chi.URLParam(r, "project_id"))
	if err != nil {
		status := statusFor(err)
		if status == http.StatusBadGateway {
			// The previous code is retained; report it with the failure.
			writeJSON(w, status, map[string]any{"error": err.Error(), "project": s.toDTO(p)})
			return
		}
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.toDTO(p))
}

func (s *Server) preview(w http.ResponseWriter, r *http.Request) {
	table, err := s.svc.Preview(r.Context(), chi.URLParam(r, "project_id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, table)
}

func (s *Server) export(w http.ResponseWriter, r *http.Request) {
	uri, err := s.svc.Export(r.Context(), chi.URLParam(r, "project_id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"uri": uri})
}

func (s *Server) diagnostics(w http.ResponseWriter, r *http.Request) {
	d, err := s.svc.Diagnose(r.Context(), chi.URLParam(r, "project_id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

type analyzeRequest struct {
	Intent    string `json:"intent"`
	TargetURL string `json:"target_url"`
}

func (s *Server) wizardAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Intent) == "" {
		writeError(w, http.StatusBadRequest, "intent is required")
		return
	}
	writeJSON(w, http.StatusOK, s.svc.AnalyzeIntent(r.Context(), req.Intent, req.TargetURL))
}

func (s *Server) wizardSpider(w http.ResponseWriter, r *http.Request) {
	var req scraping.SpiderRequest
	if !decode(w, r, &req) {
		return
	}
	code, err := s.svc.GenerateSpider(r.Context(), req)
	if err != nil {
		writeJSON(w, statusFor(err), map[string]string{"error": err.Error(), "code": code})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"code": code})
}

type preflightRequest struct {
	URL string `json:"url"`
}

func (s *Server) wizardPreflight(w http.ResponseWriter, r *http.Request) {
	var req preflightRequest
	if !decode(w, r, &req) {
		return
	}
	report, err := s.svc.Preflight(r.Context(), req.URL)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			status = http.StatusBadGateway
		}
		writeJSON(w, status, map[string]any{"error": err.Error(), "report": report})
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) listLogs(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r, defaultLogLimit, maxLogLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": s.svc.Logs(limit)})
}

type analyzeLogsRequest struct {
	Logs string `json:"logs"`
}

func (s *Server) analyzeLogs(w http.ResponseWriter, r *http.Request) {
	var req analyzeLogsRequest
	if !decode(w, r, &req) {
		return
	}
	sess, err := s.session(w, r)
	if err != nil {
		s.fail(w, err)
		return
	}
	msg, err := s.svc.AnalyzeLog(r.Context(), sess.ID, req.Logs)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (s *Server) getChat(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(w, r)
	if err != nil {
		s.fail(w, err)
		return
	}
	chat := sess.Snapshot().Chat
	if chat == nil {
		chat = []scraping.ChatMessage{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": chat})
}

type chatRequest struct {
	Message string `json:"message"`
}

func (s *Server) postChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !decode(w, r, &req) {
		return
	}
	sess, err := s.session(w, r)
	if err != nil {
		s.fail(w, err)
		return
	}
	reply, err := s.chat(r, sess, req.Message)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func (s *Server) driveFiles(w http.ResponseWriter, r *http.Request) {
	files, err := s.svc.DriveFiles(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": files})
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	st, err := s.svc.Stats(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return false
	}
	return true
}

func parseLimit(r *http.Request, def, maxLimit int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return def, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, errors.New("limit must be a positive integer")
	}
	if limit > maxLimit {
		return 0, fmt.Errorf("limit must be <= %d", maxLimit)
	}
	return limit, nil
}
