package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/ai-scrapy-dashboard/internal/activity"
	"github.com/JakeFAU/ai-scrapy-dashboard/internal/probe"
	"github.com/JakeFAU/ai-scrapy-dashboard/internal/scraping"
	"github.com/JakeFAU/ai-scrapy-dashboard/internal/view"
)

const uiLogLimit = 200

func (s *Server) mountUI(r chi.Router) {
	r.Get("/", s.page)
	r.Route("/ui", func(r chi.Router) {
		r.Post("/nav/{view}", s.uiNav)
		r.Post("/back", s.uiBack)
		r.Route("/wizard", func(r chi.Router) {
			r.Post("/open", s.uiWizardOpen)
			r.Post("/cancel", s.uiWizardCancel)
			r.Post("/analyze", s.uiWizardAnalyze)
			r.Post("/spider", s.uiWizardSpider)
			r.Post("/create", s.uiWizardCreate)
		})
		r.Route("/projects/{project_id}", func(r chi.Router) {
			r.Post("/select", s.uiSelect)
			r.Post("/status", s.uiStatus)
			r.Post("/drive", s.uiDrive)
			r.Post("/code", s.uiCode)
			r.Post("/refactor", s.uiRefactor)
			r.Post("/preview", s.uiPreview)
			r.Post("/export", s.uiExport)
		})
		r.Post("/logs/analyze", s.uiAnalyzeLogs)
		r.Post("/chat", s.uiChat)
	})
}

// uiAction wraps a state-mutating form post: it resolves the session, runs fn
// and redirects back to the dashboard page (post/redirect/get).
func (s *Server) uiAction(fn func(r *http.Request, sess *view.Session)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.session(w, r)
		if err != nil {
			s.fail(w, err)
			return
		}
		if err := r.ParseForm(); err != nil {
			flash(sess, view.FlashError, "Could not read the submitted form.")
		} else {
			fn(r, sess)
		}
		http.Redirect(w, r, "/", http.StatusSeeOther)
	}
}

func flash(sess *view.Session, kind view.FlashKind, msg string) {
	sess.Update(func(st *view.State) {
		st.Flash = &view.Flash{Kind: kind, Message: msg}
	})
}

func (s *Server) flashErr(sess *view.Session, action string, err error) {
	switch {
	case errors.Is(err, scraping.ErrBusy):
		flash(sess, view.FlashError, action+" is already in progress.")
	case errors.Is(err, scraping.ErrProjectNotFound):
		flash(sess, view.FlashError, "That project no longer exists.")
	default:
		s.logger.Warn("ui action failed", zap.String("action", action), zap.Error(err))
		flash(sess, view.FlashError, fmt.Sprintf("%s failed: %v", action, err))
	}
}

func (s *Server) uiNav(w http.ResponseWriter, r *http.Request) {
	s.uiAction(func(r *http.Request, sess *view.Session) {
		var navErr error
		sess.Update(func(st *view.State) {
			navErr = st.Router.Navigate(view.Name(chi.URLParam(r, "view")))
		})
		if navErr != nil {
			flash(sess, view.FlashError, navErr.Error())
		}
	})(w, r)
}

func (s *Server) uiBack(w http.ResponseWriter, r *http.Request) {
	s.uiAction(func(_ *http.Request, sess *view.Session) {
		sess.Update(func(st *view.State) { st.Router.Back() })
	})(w, r)
}

func (s *Server) uiSelect(w http.ResponseWriter, r *http.Request) {
	s.uiAction(func(r *http.Request, sess *view.Session) {
		id := chi.URLParam(r, "project_id")
		sess.Update(func(st *view.State) { st.Router.SelectProject(id) })
	})(w, r)
}

func (s *Server) uiWizardOpen(w http.ResponseWriter, r *http.Request) {
	s.uiAction(func(_ *http.Request, sess *view.Session) {
		sess.Update(func(st *view.State) { st.Router.OpenWizard() })
	})(w, r)
}

func (s *Server) uiWizardCancel(w http.ResponseWriter, r *http.Request) {
	s.uiAction(func(_ *http.Request, sess *view.Session) {
		sess.Update(func(st *view.State) {
			st.Router.CancelWizard()
			st.Wizard = view.WizardDraft{}
		})
	})(w, r)
}

func (s *Server) uiWizardAnalyze(w http.ResponseWriter, r *http.Request) {
	s.uiAction(func(r *http.Request, sess *view.Session) {
		intent := strings.TrimSpace(r.PostFormValue("intent"))
		target := strings.TrimSpace(r.PostFormValue("target_url"))
		if intent == "" || target == "" {
			flash(sess, view.FlashError, "Describe what to scrape and give a target URL.")
			sess.Update(func(st *view.State) {
				st.Wizard.Intent, st.Wizard.TargetURL = intent, target
			})
			return
		}
		res := s.svc.AnalyzeIntent(r.Context(), intent, target)

		var report *probe.Report
		var probeErr string
		if s.probeEnabled && r.PostFormValue("preflight") != "" {
			rep, err := s.svc.Preflight(r.Context(), target)
			if err != nil {
				probeErr = err.Error()
			} else {
				report = &rep
			}
		}
		sess.Update(func(st *view.State) {
			st.Wizard = view.WizardDraft{
				Intent:          intent,
				TargetURL:       target,
				Suggestion:      res.Suggestion,
				Analyzed:        true,
				AnalysisFailed:  !res.Available,
				Fields:          res.Suggestion.Fields,
				SaveToDrive:     st.Wizard.SaveToDrive,
				Preflight:       report,
				PreflightFailed: probeErr,
			}
		})
		if !res.Available {
			flash(sess, view.FlashError, "Intent analysis is unavailable right now. You can still continue manually.")
		}
	})(w, r)
}

func (s *Server) uiWizardSpider(w http.ResponseWriter, r *http.Request) {
	s.uiAction(func(r *http.Request, sess *view.Session) {
		draft := sess.Snapshot().Wizard
		fields := parseFields(r.PostFormValue("fields"))
		saveToDrive := formBool(r.PostFormValue("save_to_drive"))
		code, err := s.svc.GenerateSpider(r.Context(), scraping.SpiderRequest{
			Intent:      draft.Intent,
			TargetURL:   draft.TargetURL,
			Fields:      fields,
			SaveToDrive: saveToDrive,
		})
		sess.Update(func(st *view.State) {
			st.Wizard.Fields = fields
			st.Wizard.SaveToDrive = saveToDrive
			st.Wizard.SpiderCode = code
		})
		if err != nil {
			flash(sess, view.FlashError, "Spider generation failed. Edit the code by hand or try again.")
		}
	})(w, r)
}

func (s *Server) uiWizardCreate(w http.ResponseWriter, r *http.Request) {
	s.uiAction(func(r *http.Request, sess *view.Session) {
		draft := sess.Snapshot().Wizard
		code := draft.SpiderCode
		if v, ok := r.PostForm["spider_code"]; ok && len(v) > 0 {
			code = v[0]
		}
		name := strings.TrimSpace(r.PostFormValue("name"))
		if name == "" {
			name = draft.Suggestion.SuggestedName
		}
		p, err := s.svc.CreateProject(r.Context(), scraping.Draft{
			Name:               name,
			TargetURL:          draft.TargetURL,
			Intent:             draft.Intent,
			SpiderCode:         code,
			GoogleDriveEnabled: draft.SaveToDrive,
		})
		if err != nil {
			s.flashErr(sess, "Create project", err)
			return
		}
		sess.Update(func(st *view.State) {
			st.Router.CompleteWizard()
			st.Wizard = view.WizardDraft{}
			st.Flash = &view.Flash{Kind: view.FlashInfo, Message: "Created project " + p.Name + "."}
		})
	})(w, r)
}

func (s *Server) uiStatus(w http.ResponseWriter, r *http.Request) {
	s.uiAction(func(r *http.Request, sess *view.Session) {
		status, err := scraping.ParseStatus(r.PostFormValue("status"))
		if err == nil {
			err = s.svc.UpdateStatus(r.Context(), chi.URLParam(r, "project_id"), status)
		}
		if err != nil {
			s.flashErr(sess, "Status change", err)
		}
	})(w, r)
}

func (s *Server) uiDrive(w http.ResponseWriter, r *http.Request) {
	s.uiAction(func(r *http.Request, sess *view.Session) {
		enabled := formBool(r.PostFormValue("enabled"))
		if err := s.svc.UpdateDriveSetting(r.Context(), chi.URLParam(r, "project_id"), enabled); err != nil {
			s.flashErr(sess, "Drive setting", err)
		}
	})(w, r)
}

func (s *Server) uiCode(w http.ResponseWriter, r *http.Request) {
	s.uiAction(func(r *http.Request, sess *view.Session) {
		if err := s.svc.UpdateCode(r.Context(), chi.URLParam(r, "project_id"), r.PostFormValue("code")); err != nil {
			s.flashErr(sess, "Save code", err)
			return
		}
		flash(sess, view.FlashInfo, "Spider code saved.")
	})(w, r)
}

func (s *Server) uiRefactor(w http.ResponseWriter, r *http.Request) {
	s.uiAction(func(r *http.Request, sess *view.Session) {
		_, err := s.svc.Refactor(r.Context(), chi.URLParam(r, "project_id"))
		switch {
		case err == nil:
			flash(sess, view.FlashInfo, "Spider refactored.")
		case errors.Is(err, scraping.ErrBusy), errors.Is(err, scraping.ErrProjectNotFound):
			s.flashErr(sess, "Refactor", err)
		default:
			s.logger.Warn("refactor failed", zap.Error(err))
			flash(sess, view.FlashError, "Refactor failed. The previous code was kept.")
		}
	})(w, r)
}

func (s *Server) uiPreview(w http.ResponseWriter, r *http.Request) {
	s.uiAction(func(r *http.Request, sess *view.Session) {
		id := chi.URLParam(r, "project_id")
		table, err := s.svc.Preview(r.Context(), id)
		if err != nil {
			s.flashErr(sess, "Preview", err)
			return
		}
		sess.Update(func(st *view.State) { st.Previews[id] = table })
	})(w, r)
}

func (s *Server) uiExport(w http.ResponseWriter, r *http.Request) {
	s.uiAction(func(r *http.Request, sess *view.Session) {
		uri, err := s.svc.Export(r.Context(), chi.URLParam(r, "project_id"))
		if err != nil {
			s.flashErr(sess, "Export", err)
			return
		}
		flash(sess, view.FlashInfo, "Exported to "+uri)
	})(w, r)
}

func (s *Server) uiAnalyzeLogs(w http.ResponseWriter, r *http.Request) {
	s.uiAction(func(r *http.Request, sess *view.Session) {
		msg, err := s.svc.AnalyzeLog(r.Context(), sess.ID, r.PostFormValue("logs"))
		if err != nil {
			s.flashErr(sess, "Log analysis", err)
			return
		}
		sess.Update(func(st *view.State) { st.LogAnalysis = &msg })
	})(w, r)
}

func (s *Server) uiChat(w http.ResponseWriter, r *http.Request) {
	s.uiAction(func(r *http.Request, sess *view.Session) {
		if _, err := s.chat(r, sess, r.PostFormValue("message")); err != nil {
			s.flashErr(sess, "Chat", err)
		}
	})(w, r)
}

// page renders the session's current panel.
func (s *Server) page(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(w, r)
	if err != nil {
		s.fail(w, err)
		return
	}
	fl := sess.TakeFlash()
	st := sess.Snapshot()
	ctx := r.Context()

	projects, err := s.svc.ListProjects(ctx)
	if err != nil {
		s.fail(w, err)
		return
	}
	data := pageData{
		Nav:          navItems(st.Router.Current()),
		Flash:        fl,
		Panel:        view.Resolve(st.Router, projects),
		Stats:        scraping.ComputeStats(projects),
		Statuses:     scraping.Statuses(),
		Wizard:       st.Wizard,
		ProbeEnabled: s.probeEnabled,
	}
	for _, p := range projects {
		data.Projects = append(data.Projects, s.toDTO(p))
	}
	for _, m := range st.Chat {
		data.Chat = append(data.Chat, s.renderer.message(m))
	}
	switch data.Panel.View {
	case view.ProjectDetail:
		if !data.Panel.NotFound {
			data.Detail = s.detail(data.Panel.Project, st)
		}
	case view.Logs:
		data.Events = s.svc.Logs(uiLogLimit)
		if st.LogAnalysis != nil {
			m := s.renderer.message(*st.LogAnalysis)
			data.LogAnalysis = &m
		}
	case view.DriveExplorer:
		files, err := s.svc.DriveFiles(ctx)
		if err != nil {
			s.logger.Warn("list drive files failed", zap.Error(err))
			data.Flash = &view.Flash{Kind: view.FlashError, Message: "Could not list exported files."}
		}
		data.Files = files
	}
	s.renderer.page(w, data)
}

func (s *Server) detail(p scraping.Project, st view.State) *detailData {
	table, hasPreview := st.Previews[p.ID]
	return &detailData{
		Project:       s.toDTO(p),
		Preview:       table,
		HasPreview:    hasPreview,
		RefactorBusy:  s.svc.Busy(scraping.OpRefactorSpider, p.ID),
		PreviewBusy:   s.svc.Busy(scraping.OpMockResults, p.ID),
		RecentActions: s.projectEvents(p.ID),
	}
}

func (s *Server) projectEvents(id string) []activity.Event {
	var out []activity.Event
	for _, e := range s.svc.Logs(uiLogLimit) {
		if e.ProjectID == id {
			out = append(out, e)
		}
	}
	return out
}

func parseFields(raw string) []string {
	parts := strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == '\n' })
	seen := make(map[string]struct{}, len(parts))
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

func formBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "on", "true", "1", "yes":
		return true
	default:
		return false
	}
}
