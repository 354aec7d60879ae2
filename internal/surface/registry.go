package surface

import (
	"io"
	"log/slog"
	"slices"
	"sync"
)

// Registry holds at most one live surface per title. Acquire and Release are serialized, so two surfaces
// with the same title never coexist.
type Registry struct {
	sink   Sink
	logger *slog.Logger

	mu       sync.Mutex
	surfaces map[string]*Surface
}

// NewRegistry creates an empty registry whose surfaces deliver their events to sink. A nil sink drops them.
func NewRegistry(sink Sink, logger *slog.Logger) *Registry {
	if sink == nil {
		sink = nopSink{}
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Registry{
		sink:     sink,
		logger:   logger.With(slog.String("module", "surface")),
		surfaces: make(map[string]*Surface),
	}
}

// Acquire returns the open surface for title and brings it into view, or creates and registers a new one.
// The second return value reports whether the surface was created by this call.
func (r *Registry) Acquire(title string) (*Surface, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.surfaces[title]; ok {
		r.logger.Debug("Revealing surface", slog.String("title", title), slog.String("id", s.ID()))
		s.reveal()
		return s, false
	}

	s := newSurface(title, r.sink, r.remove)
	r.surfaces[title] = s

	r.logger.Debug("Created surface", slog.String("title", title), slog.String("id", s.ID()))
	return s, true
}

// Get returns the open surface for title without revealing it.
func (r *Registry) Get(title string) (*Surface, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.surfaces[title]
	return s, ok
}

// Release closes the surface registered under title and removes it. Releasing a title that has no surface
// does nothing.
func (r *Registry) Release(title string) {
	r.mu.Lock()
	s, ok := r.surfaces[title]
	if ok {
		delete(r.surfaces, title)
	}
	r.mu.Unlock()

	if !ok {
		return
	}
	r.logger.Debug("Released surface", slog.String("title", title), slog.String("id", s.ID()))
	s.dispose()
}

// Titles returns the titles of the open surfaces in lexical order.
func (r *Registry) Titles() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	titles := make([]string, 0, len(r.surfaces))
	for title := range r.surfaces {
		titles = append(titles, title)
	}
	slices.Sort(titles)
	return titles
}

// Len returns the number of open surfaces.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.surfaces)
}

// CloseAll releases every open surface.
func (r *Registry) CloseAll() {
	for _, title := range r.Titles() {
		r.Release(title)
	}
}

// remove unregisters s if it is still the surface registered under its title. A surface that was already
// replaced must not evict its successor.
func (r *Registry) remove(s *Surface) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.surfaces[s.title]; ok && cur == s {
		delete(r.surfaces, s.title)
		r.logger.Debug("Surface closed by consumer", slog.String("title", s.title), slog.String("id", s.id))
	}
}
