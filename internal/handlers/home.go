package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/MegaGrindStone/ollama-assistant/internal/models"
)

// ConnectionHint is shown when the upstream server cannot be reached.
const ConnectionHint = "Ollama not running. Start with: ollama serve"

type homePageData struct {
	Title     string
	Model     string
	Connected bool
	Surfaces  []string
	Messages  []chatMessage
}

type surfacePageData struct {
	Title   string
	Content surfaceContent
}

type statusResponse struct {
	Connected bool   `json:"connected"`
	Hint      string `json:"hint,omitempty"`
}

type modelsResponse struct {
	Models []string `json:"models"`
}

// HandleHome renders the main page: the connection warning, the open surfaces and the chat transcript.
func (m Main) HandleHome(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	transcript := m.session.Transcript()
	msgs := make([]chatMessage, 0, len(transcript))
	for i, turn := range transcript {
		msg, err := m.chatMessage(fmt.Sprintf("turn-%d", i), turn.Role, models.StreamingStateEnded, turn.Content)
		if err != nil {
			m.logger.Error("Failed to render transcript", slog.String(errLoggerKey, err.Error()))
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		msgs = append(msgs, msg)
	}

	data := homePageData{
		Title:     "Ollama Assistant",
		Model:     m.model,
		Connected: m.llm.CheckConnection(r.Context()),
		Surfaces:  m.surfaces.Titles(),
		Messages:  msgs,
	}
	if err := m.templates.ExecuteTemplate(w, "home.html", data); err != nil {
		m.logger.Error("Failed to execute home template", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// HandleSurface renders the page of the surface named by the path with its current content. The page then
// follows the surface through server-sent events.
func (m Main) HandleSurface(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	title := r.PathValue("title")
	s, ok := m.surfaces.Get(title)
	if !ok {
		http.Error(w, "Surface not found", http.StatusNotFound)
		return
	}

	content, err := newSurfaceContent(m.markdown, s.Heading(), s.State(), s.Content())
	if err != nil {
		m.logger.Error("Failed to render surface", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	data := surfacePageData{
		Title:   title,
		Content: content,
	}
	if err := m.templates.ExecuteTemplate(w, "surface.html", data); err != nil {
		m.logger.Error("Failed to execute surface template", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// HandleStatus reports whether the upstream server is reachable. An unreachable server is not an error of
// this endpoint; the response carries a remediation hint instead.
func (m Main) HandleStatus(w http.ResponseWriter, r *http.Request) {
	res := statusResponse{
		Connected: m.llm.CheckConnection(r.Context()),
	}
	if !res.Connected {
		res.Hint = ConnectionHint
	}
	m.writeJSON(w, res)
}

// HandleModels lists the names of the installed models. If the listing fails the list is empty.
func (m Main) HandleModels(w http.ResponseWriter, r *http.Request) {
	names, err := m.llm.ModelNames(r.Context())
	if err != nil {
		m.logger.Error("Error fetching models", slog.String(errLoggerKey, err.Error()))
		names = []string{}
	}
	m.writeJSON(w, modelsResponse{Models: names})
}

// HandleSSE serves the server-sent events stream. Clients pick their topics with the "surface" and "chat"
// query parameters.
func (m Main) HandleSSE(w http.ResponseWriter, r *http.Request) {
	m.sseSrv.ServeHTTP(w, r)
}

func (m Main) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		m.logger.Error("Failed to write response", slog.String(errLoggerKey, err.Error()))
	}
}
