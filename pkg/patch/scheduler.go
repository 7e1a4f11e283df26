package patch

import (
	"sync"
	"time"
)

// DefaultWindow is the debounce window used to coalesce keystrokes.
const DefaultWindow = 350 * time.Millisecond

// Outgoing is a coalesced section update ready to be broadcast.
type Outgoing struct {
	SectionID string
	Base      string
	Content   string
	Patch     string
}

// FlushFunc receives coalesced updates. It is called without the scheduler
// lock held.
type FlushFunc func(Outgoing)

type pending struct {
	base    string
	content string
	timer   *time.Timer
	gen     uint64
}

// Scheduler debounces outgoing updates per section. Each section owns at
// most one timer; scheduling again before it fires resets the window and
// keeps the oldest base so the eventual patch covers every coalesced edit.
type Scheduler struct {
	mu      sync.Mutex
	window  time.Duration
	flush   FlushFunc
	pending map[string]*pending
	gen     uint64
}

func NewScheduler(window time.Duration, flush FlushFunc) *Scheduler {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Scheduler{
		window:  window,
		flush:   flush,
		pending: make(map[string]*pending),
	}
}

// Schedule records that sectionID moved from base to content.
func (s *Scheduler) Schedule(sectionID, base, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.gen++
	gen := s.gen

	p, ok := s.pending[sectionID]
	if !ok {
		p = &pending{base: base}
		s.pending[sectionID] = p
	}
	p.content = content
	p.gen = gen

	if p.timer != nil {
		p.timer.Stop()
	}
	p.timer = time.AfterFunc(s.window, func() {
		s.fire(sectionID, gen)
	})
}

func (s *Scheduler) fire(sectionID string, gen uint64) {
	s.mu.Lock()
	p, ok := s.pending[sectionID]
	if !ok || p.gen != gen {
		s.mu.Unlock()
		return
	}
	out, send := s.take(sectionID, p)
	s.mu.Unlock()

	if send {
		s.flush(out)
	}
}

// take removes the pending entry. Caller holds s.mu.
func (s *Scheduler) take(sectionID string, p *pending) (Outgoing, bool) {
	if p.timer != nil {
		p.timer.Stop()
	}
	delete(s.pending, sectionID)

	text := Make(p.base, p.content)
	if text == "" {
		return Outgoing{}, false
	}
	return Outgoing{
		SectionID: sectionID,
		Base:      p.base,
		Content:   p.content,
		Patch:     text,
	}, true
}

// Flush sends the pending update for sectionID immediately. It reports
// whether anything was sent.
func (s *Scheduler) Flush(sectionID string) bool {
	s.mu.Lock()
	p, ok := s.pending[sectionID]
	if !ok {
		s.mu.Unlock()
		return false
	}
	out, send := s.take(sectionID, p)
	s.mu.Unlock()

	if send {
		s.flush(out)
	}
	return send
}

func (s *Scheduler) FlushAll() {
	s.mu.Lock()
	ids := make([]string, 0, len(s.pending))
	for id := range s.pending {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		s.Flush(id)
	}
}

// Cancel drops the pending update for sectionID without sending it.
func (s *Scheduler) Cancel(sectionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.pending[sectionID]; ok {
		if p.timer != nil {
			p.timer.Stop()
		}
		delete(s.pending, sectionID)
	}
}

func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, p := range s.pending {
		if p.timer != nil {
			p.timer.Stop()
		}
		delete(s.pending, id)
	}
}

// Pending returns the unsent base and content for sectionID.
func (s *Scheduler) Pending(sectionID string) (base, content string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pending[sectionID]
	if !ok {
		return "", "", false
	}
	return p.base, p.content, true
}

// Rebase replaces the pending entry's base and content after a remote
// update was folded into the local text. The timer keeps running.
func (s *Scheduler) Rebase(sectionID, base, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.pending[sectionID]; ok {
		p.base = base
		p.content = content
	}
}
