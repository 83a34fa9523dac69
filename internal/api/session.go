package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/JakeFAU/ai-scrapy-dashboard/internal/scraping"
	"github.com/JakeFAU/ai-scrapy-dashboard/internal/view"
)

// session resolves the browser session from its cookie, starting a new one
// (and setting the cookie) when the cookie is missing or has been evicted.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*view.Session, error) {
	var id string
	if c, err := r.Cookie(s.cookieName); err == nil {
		id = c.Value
	}
	sess, created, err := s.sessions.GetOrCreate(id)
	if err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}
	if created {
		http.SetCookie(w, &http.Cookie{
			Name:     s.cookieName,
			Value:    sess.ID,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}
	return sess, nil
}

// chat sends message with the session's thread and appends both turns.
func (s *Server) chat(r *http.Request, sess *view.Session, message string) (scraping.ChatMessage, error) {
	history := sess.Snapshot().Chat
	reply, err := s.svc.Chat(r.Context(), sess.ID, history, message)
	if err != nil {
		return scraping.ChatMessage{}, err
	}
	sess.Update(func(st *view.State) {
		st.Chat = append(st.Chat,
			scraping.ChatMessage{Role: scraping.RoleUser, Text: strings.TrimSpace(message)},
			reply,
		)
	})
	return reply, nil
}
