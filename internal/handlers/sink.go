package handlers

import (
	"html/template"
	"log/slog"
	"strings"

	"github.com/MegaGrindStone/ollama-assistant/internal/models"
	"github.com/MegaGrindStone/ollama-assistant/internal/render"
	"github.com/MegaGrindStone/ollama-assistant/internal/surface"
	"github.com/tmaxmax/go-sse"
)

// surfaceContent is the data of the surface_content template.
type surfaceContent struct {
	Heading string
	State   models.StreamingState
	Text    string
	HTML    template.HTML
}

// sseSink publishes surface events to the SSE topic of the surface. Content events carry the rendered
// surface_content partial, reveal and close events carry no payload beyond the surface id.
type sseSink struct {
	srv       *sse.Server
	templates *template.Template
	markdown  render.Markdown

	logger *slog.Logger
}

func (s sseSink) Deliver(ev surface.Event) {
	msg := sse.Message{
		Type: sse.Type(string(ev.Type)),
	}

	switch ev.Type {
	case surface.EventLoading, surface.EventSnapshot, surface.EventComplete, surface.EventFailed:
		data, err := s.renderContent(ev.Heading, eventState(ev.Type), ev.Content)
		if err != nil {
			s.logger.Error("Failed to render surface content",
				slog.String("title", ev.Title),
				slog.String(errLoggerKey, err.Error()))
			return
		}
		msg.AppendData(data)
	default:
		msg.AppendData(ev.SurfaceID)
	}

	s.logger.Debug("Publishing surface event",
		slog.String("title", ev.Title),
		slog.String("type", string(ev.Type)))

	if err := s.srv.Publish(&msg, surfaceTopic(ev.Title)); err != nil {
		s.logger.Error("Failed to publish surface event",
			slog.String("title", ev.Title),
			slog.String(errLoggerKey, err.Error()))
	}
}

func (s sseSink) renderContent(heading string, state models.StreamingState, content string) (string, error) {
	return renderSurfaceContent(s.templates, s.markdown, heading, state, content)
}

func renderSurfaceContent(
	tmpl *template.Template,
	md render.Markdown,
	heading string,
	state models.StreamingState,
	content string,
) (string, error) {
	data, err := newSurfaceContent(md, heading, state, content)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	if err := tmpl.ExecuteTemplate(&sb, "surface_content", data); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func newSurfaceContent(
	md render.Markdown,
	heading string,
	state models.StreamingState,
	content string,
) (surfaceContent, error) {
	data := surfaceContent{
		Heading: heading,
		State:   state,
		Text:    content,
	}
	if state == models.StreamingStateFailed || content == "" {
		return data, nil
	}

	html, err := md.Render(content)
	if err != nil {
		return surfaceContent{}, err
	}
	// goldmark omits raw HTML unless html.WithUnsafe is set
	data.HTML = template.HTML(html)
	return data, nil
}

func eventState(typ surface.EventType) models.StreamingState {
	switch typ {
	case surface.EventLoading:
		return models.StreamingStateLoading
	case surface.EventSnapshot:
		return models.StreamingStateStreaming
	case surface.EventFailed:
		return models.StreamingStateFailed
	default:
		return models.StreamingStateEnded
	}
}
