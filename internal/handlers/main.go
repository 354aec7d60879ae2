package handlers

import (
	"context"
	"fmt"
	"html/template"
	"io"
	"iter"
	"log/slog"
	"sync"
	"time"

	assistant "github.com/MegaGrindStone/ollama-assistant"
	"github.com/MegaGrindStone/ollama-assistant/internal/models"
	"github.com/MegaGrindStone/ollama-assistant/internal/render"
	"github.com/MegaGrindStone/ollama-assistant/internal/session"
	"github.com/MegaGrindStone/ollama-assistant/internal/surface"
	"github.com/tmaxmax/go-sse"
)

// LLM represents the upstream language model server. The streaming methods return iterators that yield the
// cumulative response text, followed by at most one error.
type LLM interface {
	CheckConnection(ctx context.Context) bool
	ModelNames(ctx context.Context) ([]string, error)
	StreamGenerate(ctx context.Context, model, prompt string) iter.Seq2[string, error]
	StreamChat(ctx context.Context, model string, turns []models.Turn) iter.Seq2[string, error]
}

// Main handles the web interface of the assistant: the command endpoints that stream model output into
// surfaces, the chat endpoint, and the server-sent events that carry every update to the browser.
type Main struct {
	sseSrv    *sse.Server
	templates *template.Template
	markdown  render.Markdown

	llm      LLM
	model    string
	session  *session.Session
	surfaces *surface.Registry

	ctx     context.Context
	cancel  context.CancelFunc
	running *sync.WaitGroup

	logger *slog.Logger
}

// Config carries the settings Main needs from the configuration file.
type Config struct {
	Model          string
	SystemPrompt   string
	HighlightStyle string
}

const (
	chatSSETopic = "chat"

	errLoggerKey = "err"
)

// NewMain creates a new Main instance talking to llm. It parses the HTML templates from the embedded
// filesystem, creates the surface registry that publishes to the SSE server, and the chat session.
func NewMain(llm LLM, cfg Config, logger *slog.Logger) (Main, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	// We parse templates from three distinct directories to separate layout, pages, and partial views
	tmpl, err := template.ParseFS(
		assistant.TemplateFS,
		"templates/layout/*.html",
		"templates/pages/*.html",
		"templates/partials/*.html",
	)
	if err != nil {
		return Main{}, fmt.Errorf("failed to parse templates: %w", err)
	}

	sseSrv := &sse.Server{
		OnSession: func(s *sse.Session) (sse.Subscription, bool) {
			topics := []string{sse.DefaultTopic}

			// We add the surface topic if the client watches a surface, and the chat topic for the chat view
			if title := s.Req.URL.Query().Get("surface"); title != "" {
				topics = append(topics, surfaceTopic(title))
			}
			if s.Req.URL.Query().Get("chat") != "" {
				topics = append(topics, chatSSETopic)
			}

			return sse.Subscription{
				Client:      s,
				LastEventID: s.LastEventID,
				Topics:      topics,
			}, true
		},
	}

	md := render.NewMarkdown(cfg.HighlightStyle)
	logger = logger.With(slog.String("module", "handlers"))
	ctx, cancel := context.WithCancel(context.Background())

	m := Main{
		sseSrv:    sseSrv,
		templates: tmpl,
		markdown:  md,
		llm:       llm,
		model:     cfg.Model,
		session:   session.New(llm, cfg.Model, cfg.SystemPrompt, logger),
		ctx:       ctx,
		cancel:    cancel,
		running:   &sync.WaitGroup{},
		logger:    logger,
	}
	m.surfaces = surface.NewRegistry(sseSink{
		srv:       sseSrv,
		templates: tmpl,
		markdown:  md,
		logger:    logger,
	}, logger)

	return m, nil
}

func surfaceTopic(title string) string {
	return fmt.Sprintf("surface-%s", title)
}

// Surfaces returns the registry of open surfaces.
func (m Main) Surfaces() *surface.Registry {
	return m.surfaces
}

// Session returns the chat session.
func (m Main) Session() *session.Session {
	return m.session
}

// Wait blocks until every stream started by a handler has finished.
func (m Main) Wait() {
	m.running.Wait()
}

func (m Main) goStream(f func()) {
	m.running.Add(1)
	go func() {
		defer m.running.Done()
		f()
	}()
}

// Shutdown stops the running streams, closes every surface and terminates the SSE server. It broadcasts a
// close message to all connected clients and waits up to 5 seconds for connections to terminate. After the
// timeout, any remaining connections are forcefully closed.
func (m Main) Shutdown(ctx context.Context) error {
	m.cancel()
	m.surfaces.CloseAll()

	ctx, cancel := context.WithTimeout(ctx, time.Second*5)
	defer cancel()

	done := make(chan struct{})
	go func() {
		m.running.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		m.logger.Warn("Streams still running at shutdown")
	}

	e := &sse.Message{Type: sse.Type("closeChat")}
	// We create a close event that complies with SSE spec requiring data
	e.AppendData("bye")

	// We ignore the error here since we're shutting down anyway
	_ = m.sseSrv.Publish(e)

	return m.sseSrv.Shutdown(ctx)
}
