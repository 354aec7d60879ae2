// Package surface keeps the long-lived output destinations of the assistant. A surface is identified by its
// title: asking for a title that is already open brings the existing surface back into view instead of
// opening a second one.
package surface

import (
	"context"
	"sync"

	"github.com/MegaGrindStone/ollama-assistant/internal/models"
	"github.com/google/uuid"
)

// EventType is the kind of change a surface reports to its sink.
type EventType string

const (
	EventLoading  EventType = "loading"
	EventSnapshot EventType = "snapshot"
	EventComplete EventType = "complete"
	EventFailed   EventType = "failed"
	EventReveal   EventType = "reveal"
	EventClosed   EventType = "closed"
)

// Event is a change of a surface. Content is the full text to display, never a delta.
type Event struct {
	Type      EventType
	SurfaceID string
	Title     string
	Heading   string
	Content   string
}

// Sink receives the events of every surface. Events of one surface are delivered in order, one at a time.
// Deliver must not call back into the surface or its registry.
type Sink interface {
	Deliver(ev Event)
}

type nopSink struct{}

func (nopSink) Deliver(Event) {}

// Surface is a live output destination. Its context is cancelled when the surface is closed, which is how
// a stream feeding the surface learns that nobody is watching anymore.
type Surface struct {
	id    string
	title string

	ctx    context.Context
	cancel context.CancelFunc

	sink      Sink
	onDispose func(*Surface)

	mu      sync.Mutex
	heading string
	state   models.StreamingState
	content string
	reveals int
	closed  bool

	run       int
	runCancel context.CancelFunc
}

func newSurface(title string, sink Sink, onDispose func(*Surface)) *Surface {
	ctx, cancel := context.WithCancel(context.Background())
	return &Surface{
		id:        uuid.New().String(),
		title:     title,
		ctx:       ctx,
		cancel:    cancel,
		sink:      sink,
		onDispose: onDispose,
		heading:   title,
		state:     models.StreamingStateEnded,
	}
}

// ID returns the identity of this surface. A surface created after its title was released gets a new ID.
func (s *Surface) ID() string { return s.id }

// Title returns the title the surface is registered under.
func (s *Surface) Title() string { return s.title }

// Context is cancelled once the surface is closed.
func (s *Surface) Context() context.Context { return s.ctx }

// Heading returns the heading displayed above the content.
func (s *Surface) Heading() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.heading
}

// State returns the streaming state of the displayed content.
func (s *Surface) State() models.StreamingState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Content returns the displayed content.
func (s *Surface) Content() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.content
}

// Reveals returns how many times the surface was brought back into view by a repeated acquire.
func (s *Surface) Reveals() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reveals
}

// Closed reports whether the surface was closed.
func (s *Surface) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Begin starts a new run on the surface and cancels the previous one. Only the newest run may change what
// the surface displays; the run context is cancelled by the next Begin and by Close.
func (s *Surface) Begin() *Run {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.runCancel != nil {
		s.runCancel()
	}
	s.run++
	ctx, cancel := context.WithCancel(s.ctx)
	s.runCancel = cancel
	return &Run{
		surface: s,
		id:      s.run,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Close is called when the consumer closes the surface. It cancels the surface context and frees the title
// for a new surface. Closing twice is a no-op.
func (s *Surface) Close() {
	if s.onDispose != nil {
		s.onDispose(s)
	}
	s.dispose()
}

func (s *Surface) set(run int, typ EventType, state models.StreamingState, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || run != s.run {
		return
	}
	s.state = state
	s.content = content
	s.deliverLocked(typ)
}

func (s *Surface) reveal() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.reveals++
	s.deliverLocked(EventReveal)
}

func (s *Surface) dispose() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	s.closed = true
	s.cancel()
	s.deliverLocked(EventClosed)
	return true
}

func (s *Surface) deliverLocked(typ EventType) {
	s.sink.Deliver(Event{
		Type:      typ,
		SurfaceID: s.id,
		Title:     s.title,
		Heading:   s.heading,
		Content:   s.content,
	})
}

// Run is one stream feeding a surface. Its updates are dropped once a newer run has begun or the surface was
// closed.
type Run struct {
	surface *Surface
	id      int

	ctx    context.Context
	cancel context.CancelFunc
}

// Context is cancelled when the run is superseded, the surface is closed or Done is called.
func (r *Run) Context() context.Context { return r.ctx }

// Surface returns the surface the run feeds.
func (r *Run) Surface() *Surface { return r.surface }

// Loading clears the content, restores the heading to the title and shows the loading state.
func (r *Run) Loading() {
	r.SetHeading(r.surface.title)
	r.surface.set(r.id, EventLoading, models.StreamingStateLoading, "")
}

// Update shows content as the partial result of the run.
func (r *Run) Update(content string) {
	r.surface.set(r.id, EventSnapshot, models.StreamingStateStreaming, content)
}

// Complete shows content as the final result.
func (r *Run) Complete(content string) {
	r.surface.set(r.id, EventComplete, models.StreamingStateEnded, content)
}

// Fail shows err in place of the content.
func (r *Run) Fail(err error) {
	r.surface.set(r.id, EventFailed, models.StreamingStateFailed, err.Error())
}

// SetHeading changes the heading displayed above the content. It takes effect with the next event.
func (r *Run) SetHeading(heading string) {
	s := r.surface
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || r.id != s.run {
		return
	}
	s.heading = heading
}

// Done releases the run context.
func (r *Run) Done() {
	r.cancel()
}
