package view

import (
	"container/list"
	"maps"
	"slices"
	"sync"

	"github.com/JakeFAU/ai-scrapy-dashboard/internal/probe"
	"github.com/JakeFAU/ai-scrapy-dashboard/internal/scraping"
)

// FlashKind styles a banner.
type FlashKind string

// Banner styles.
const (
	FlashInfo  FlashKind = "info"
	FlashError FlashKind = "error"
)

// Flash is a one-shot banner shown on the next render.
type Flash struct {
	Kind    FlashKind
	Message string
}

// WizardDraft is the in-progress project creation form.
type WizardDraft struct {
	Intent          string
	TargetURL       string
	Suggestion      scraping.IntentSuggestion
	Analyzed        bool
	AnalysisFailed  bool
	Fields          []string
	SaveToDrive     bool
	SpiderCode      string
	Preflight       *probe.Report
	PreflightFailed string
}

// State is everything one browser session owns.
type State struct {
	Router      Router
	Chat        []scraping.ChatMessage
	Previews    map[string]scraping.PreviewTable
	Flash       *Flash
	Wizard      WizardDraft
	LogAnalysis *scraping.ChatMessage
}

func (s State) clone() State {
	out := s
	out.Chat = slices.Clone(s.Chat)
	out.Previews = maps.Clone(s.Previews)
	out.Wizard.Fields = slices.Clone(s.Wizard.Fields)
	if s.Flash != nil {
		f := *s.Flash
		out.Flash = &f
	}
	if s.Wizard.Preflight != nil {
		r := *s.Wizard.Preflight
		out.Wizard.Preflight = &r
	}
	if s.LogAnalysis != nil {
		a := *s.LogAnalysis
		a.Sources = slices.Clone(a.Sources)
		out.LogAnalysis = &a
	}
	return out
}

// Session guards one State.
type Session struct {
	ID string

	mu    sync.Mutex
	state State
}

// Update mutates the state under the session lock.
func (s *Session) Update(fn func(*State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Previews == nil {
		s.state.Previews = make(map[string]scraping.PreviewTable)
	}
	fn(&s.state)
}

// Snapshot returns a copy safe to render without holding the lock.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// TakeFlash returns and clears the pending banner.
func (s *Session) TakeFlash() *Flash {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := s.state.Flash
	s.state.Flash = nil
	return f
}

// Sessions is a bounded session table; the least recently used session is evicted first.
type Sessions struct {
	mu    sync.Mutex
	max   int
	newID func() (string, error)
	order *list.List
	items map[string]*list.Element
}

// NewSessions builds a table holding at most max sessions.
func NewSessions(max int, newID func() (string, error)) *Sessions {
	if max <= 0 {
		max = 1000
	}
	return &Sessions{
		max:   max,
		newID: newID,
		order: list.New(),
		items: make(map[string]*list.Element),
	}
}

// Get returns the session for id and marks it recently used.
func (s *Sessions) Get(id string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	el, ok := s.items[id]
	if !ok {
		return nil, false
	}
	s.order.MoveToFront(el)
	return el.Value.(*Session), true
}

// Create allocates a new session, evicting the least recently used one when full.
func (s *Sessions) Create() (*Session, error) {
	id, err := s.newID()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.order.Len() >= s.max {
		oldest := s.order.Back()
		s.order.Remove(oldest)
		delete(s.items, oldest.Value.(*Session).ID)
	}
	sess := &Session{ID: id}
	s.items[id] = s.order.PushFront(sess)
	return sess, nil
}

// GetOrCreate returns the session for id, creating a fresh one when id is unknown.
func (s *Sessions) GetOrCreate(id string) (sess *Session, created bool, err error) {
	if id != "" {
		if sess, ok := s.Get(id); ok {
			return sess, false, nil
		}
	}
	sess, err = s.Create()
	if err != nil {
		return nil, false, err
	}
	return sess, true, nil
}

// Len returns the number of live sessions.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order.Len()
}
