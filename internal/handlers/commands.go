package handlers

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/MegaGrindStone/ollama-assistant/internal/prompts"
	"github.com/MegaGrindStone/ollama-assistant/internal/surface"
)

// Titles of the surfaces opened by the commands.
const (
	ExplainTitle         = "Code Explanation"
	ImproveTitle         = "AI File Edit"
	AnalyzeTitle         = "Project Analysis"
	AnalyzeCompleteTitle = "Project Analysis Complete"
	OutputTitle          = "Ollama Output"
)

const (
	maxFileContentLen = 2000
	maxUploadSize     = 32 << 20
)

// HandleExplain streams an explanation of the posted code selection into the "Code Explanation" surface and
// redirects to it. It expects a "code" form field and an optional "language" field.
func (m Main) HandleExplain(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	code := r.FormValue("code")
	if strings.TrimSpace(code) == "" {
		http.Error(w, "Please select some code first!", http.StatusBadRequest)
		return
	}
	language := formLanguage(r)

	run := m.startRun(ExplainTitle)
	m.goStream(func() {
		m.streamCompletion(run, prompts.ExplainCode(language, code), nil, "")
	})

	redirectToSurface(w, r, ExplainTitle)
}

// HandleImprove streams an improved version of the posted file into the "AI File Edit" surface and redirects
// to it. It expects a "content" form field and an optional "language" field.
func (m Main) HandleImprove(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	content := r.FormValue("content")
	if strings.TrimSpace(content) == "" {
		http.Error(w, "No active file open!", http.StatusBadRequest)
		return
	}
	language := formLanguage(r)

	present := func(code string) string {
		return "Improved code:\n\n" + prompts.FencedCode(language, code)
	}

	run := m.startRun(ImproveTitle)
	m.goStream(func() {
		m.streamCompletion(run, prompts.ImproveFile(language, content), present, "")
	})

	redirectToSurface(w, r, ImproveTitle)
}

// HandleAnalyze streams an analysis of the uploaded project files into the "Project Analysis" surface and
// redirects to it. Files are posted as multipart "file" parts; only the first prompts.MaxProjectFiles are read
// and each is truncated.
func (m Main) HandleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		m.logger.Error("Failed to parse project files", slog.String(errLoggerKey, err.Error()))
		http.Error(w, "Project files are required", http.StatusBadRequest)
		return
	}

	var files []string
	for _, fh := range r.MultipartForm.File["file"] {
		if len(files) == prompts.MaxProjectFiles {
			break
		}
		f, err := fh.Open()
		if err != nil {
			m.logger.Warn("Skipping unreadable project file",
				slog.String("name", fh.Filename),
				slog.String(errLoggerKey, err.Error()))
			continue
		}
		b, err := io.ReadAll(io.LimitReader(f, maxFileContentLen+utf8.UTFMax))
		f.Close()
		if err != nil {
			m.logger.Warn("Skipping unreadable project file",
				slog.String("name", fh.Filename),
				slog.String(errLoggerKey, err.Error()))
			continue
		}
		files = append(files, prompts.ProjectFile(fh.Filename, string(b), maxFileContentLen))
	}
	if len(files) == 0 {
		http.Error(w, "Project files are required", http.StatusBadRequest)
		return
	}

	run := m.startRun(AnalyzeTitle)
	m.goStream(func() {
		m.streamCompletion(run, prompts.AnalyzeProject(files), nil, AnalyzeCompleteTitle)
	})

	redirectToSurface(w, r, AnalyzeTitle)
}

// HandleShowSurface opens the surface named by the path, or brings it into view if it is already open.
func (m Main) HandleShowSurface(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	title := r.PathValue("title")
	if title == "" {
		title = OutputTitle
	}
	m.surfaces.Acquire(title)

	redirectToSurface(w, r, title)
}

// HandleCloseSurface is called when the consumer closes the surface named by the path. Any stream still
// feeding the surface is cancelled and the title becomes free. Closing an unknown surface is not an error.
func (m Main) HandleCloseSurface(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	title := r.PathValue("title")
	if s, ok := m.surfaces.Get(title); ok {
		s.Close()
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (m Main) startRun(title string) *surface.Run {
	s, created := m.surfaces.Acquire(title)
	m.logger.Debug("Starting command",
		slog.String("title", title),
		slog.String("surfaceID", s.ID()),
		slog.Bool("created", created))

	run := s.Begin()
	run.Loading()
	return run
}

// streamCompletion streams prompt into run. Every snapshot is passed through present, if given, before it is
// displayed. On success the heading is changed to finalHeading, if given. A failure replaces whatever was
// displayed with the error.
func (m Main) streamCompletion(run *surface.Run, prompt string, present func(string) string, finalHeading string) {
	defer run.Done()

	if present == nil {
		present = func(s string) string { return s }
	}

	ctx := run.Context()
	title := run.Surface().Title()

	var res string
	for snapshot, err := range m.llm.StreamGenerate(ctx, m.model, prompt) {
		if err != nil {
			m.logger.Error("Command stream failed",
				slog.String("title", title),
				slog.String(errLoggerKey, err.Error()))
			run.Fail(fmt.Errorf("ollama error: %w", err))
			return
		}
		res = snapshot
		run.Update(present(res))
	}

	if ctx.Err() != nil {
		m.logger.Debug("Command stream cancelled", slog.String("title", title))
		return
	}

	if finalHeading != "" {
		run.SetHeading(finalHeading)
	}
	run.Complete(present(res))
	m.logger.Info("Command complete", slog.String("title", title), slog.Int("length", len(res)))
}

func formLanguage(r *http.Request) string {
	if l := r.FormValue("language"); l != "" {
		return l
	}
	return "plaintext"
}

func redirectToSurface(w http.ResponseWriter, r *http.Request, title string) {
	http.Redirect(w, r, "/surfaces/"+url.PathEscape(title), http.StatusSeeOther)
}
