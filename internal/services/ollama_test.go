package services_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MegaGrindStone/ollama-assistant/internal/models"
	"github.com/MegaGrindStone/ollama-assistant/internal/services"
)

// upstream is a fake Ollama server. Each handler field serves one endpoint.
type upstream struct {
	tags     http.HandlerFunc
	generate http.HandlerFunc
	chat     http.HandlerFunc

	mu       sync.Mutex
	lastBody []byte
}

func (u *upstream) body() []byte {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.lastBody
}

func (u *upstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	u.mu.Lock()
	u.lastBody = body
	u.mu.Unlock()

	var h http.HandlerFunc
	switch r.URL.Path {
	case "/api/tags":
		h = u.tags
	case "/api/generate":
		h = u.generate
	case "/api/chat":
		h = u.chat
	}
	if h == nil {
		http.NotFound(w, r)
		return
	}
	h(w, r)
}

// ndjson writes chunks with a flush after each, so they reach the client as separate reads.
func ndjson(chunks ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/x-ndjson")
		w.WriteHeader(http.StatusOK)
		f, _ := w.(http.Flusher)
		for _, c := range chunks {
			_, _ = io.WriteString(w, c)
			if f != nil {
				f.Flush()
			}
		}
	}
}

// brokenStream writes chunks and then drops the connection without finishing the body.
func brokenStream(chunks ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ndjson(chunks...)(w, r)
		panic(http.ErrAbortHandler)
	}
}

func newTestOllama(t *testing.T, u *upstream) services.Ollama {
	t.Helper()

	srv := httptest.NewServer(u)
	t.Cleanup(srv.Close)

	o, err := services.NewOllama(srv.URL, 0, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewOllama() error = %v", err)
	}
	return o
}

func collect(t *testing.T, seq func(func(string, error) bool)) ([]string, error) {
	t.Helper()

	var snapshots []string
	for s, err := range seq {
		if err != nil {
			return snapshots, err
		}
		snapshots = append(snapshots, s)
	}
	return snapshots, nil
}

func TestNewOllama(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name    string
		host    string
		wantErr bool
	}{
		{name: "Valid host", host: "http://localhost:11434"},
		{name: "Trailing slash", host: "http://localhost:11434/"},
		{name: "Missing scheme", host: "localhost:11434", wantErr: true},
		{name: "Empty host", host: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := services.NewOllama(tt.host, 0, logger)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewOllama() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCheckConnection(t *testing.T) {
	tests := []struct {
		name string
		tags http.HandlerFunc
		want bool
	}{
		{
			name: "Server up",
			tags: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = io.WriteString(w, `{"models":[]}`)
			},
			want: true,
		},
		{
			name: "Server error",
			tags: func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "boom", http.StatusInternalServerError)
			},
			want: false,
		},
		{
			name: "Not found",
			tags: nil,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := newTestOllama(t, &upstream{tags: tt.tags})
			if got := o.CheckConnection(context.Background()); got != tt.want {
				t.Errorf("CheckConnection() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCheckConnectionUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	o, err := services.NewOllama(url, 0, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatal(err)
	}
	if o.CheckConnection(context.Background()) {
		t.Error("CheckConnection() = true for a closed server, want false")
	}

	_, err = o.ModelNames(context.Background())
	if !errors.Is(err, services.ErrConnectionUnavailable) {
		t.Errorf("ModelNames() error = %v, want %v", err, services.ErrConnectionUnavailable)
	}
}

func TestModelNames(t *testing.T) {
	o := newTestOllama(t, &upstream{
		tags: func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, `{"models":[
				{"name":"llama3:latest","modified_at":"2024-05-01T10:00:00Z","size":4661224676},
				{"name":"codellama:7b","modified_at":"2024-04-01T10:00:00Z","size":3825819519}
			]}`)
		},
	})

	names, err := o.ModelNames(context.Background())
	if err != nil {
		t.Fatalf("ModelNames() error = %v", err)
	}
	if want := []string{"llama3:latest", "codellama:7b"}; !slices.Equal(names, want) {
		t.Errorf("ModelNames() = %v, want %v", names, want)
	}

	ms, err := o.Models(context.Background())
	if err != nil {
		t.Fatalf("Models() error = %v", err)
	}
	if ms[0].Size != 4661224676 {
		t.Errorf("Models()[0].Size = %d, want 4661224676", ms[0].Size)
	}
}

func TestStreamGenerate(t *testing.T) {
	u := &upstream{
		generate: ndjson(
			`{"response":"Hel"}`+"\n"+`{"resp`,
			`onse":"lo"}`+"\n",
			"heartbeat\n",
			`{"response":"","done":true}`+"\n",
		),
	}
	o := newTestOllama(t, u)

	got, err := collect(t, o.StreamGenerate(context.Background(), "llama3", "Say hello"))
	if err != nil {
		t.Fatalf("StreamGenerate() error = %v", err)
	}
	if want := []string{"Hel", "Hello"}; !slices.Equal(got, want) {
		t.Errorf("StreamGenerate() snapshots = %q, want %q", got, want)
	}

	var req struct {
		Model  string `json:"model"`
		Prompt string `json:"prompt"`
		Stream *bool  `json:"stream"`
	}
	if err := json.Unmarshal(u.body(), &req); err != nil {
		t.Fatalf("request body is not JSON: %v", err)
	}
	if req.Model != "llama3" || req.Prompt != "Say hello" || req.Stream == nil || !*req.Stream {
		t.Errorf("request = %+v, want model llama3, prompt \"Say hello\", stream true", req)
	}
}

func TestStreamGenerateSnapshotsReconstructDeltas(t *testing.T) {
	deltas := []string{"The", " quick", " brown", " fox"}
	var chunks []string
	for _, d := range deltas {
		b, _ := json.Marshal(map[string]any{"response": d})
		chunks = append(chunks, string(b)+"\n")
	}
	o := newTestOllama(t, &upstream{generate: ndjson(chunks...)})

	got, err := collect(t, o.StreamGenerate(context.Background(), "llama3", "fox"))
	if err != nil {
		t.Fatalf("StreamGenerate() error = %v", err)
	}

	prev := ""
	var rebuilt []string
	for _, s := range got {
		if !strings.HasPrefix(s, prev) {
			t.Fatalf("snapshot %q does not extend %q", s, prev)
		}
		rebuilt = append(rebuilt, s[len(prev):])
		prev = s
	}
	if !slices.Equal(rebuilt, deltas) {
		t.Errorf("rebuilt deltas = %q, want %q", rebuilt, deltas)
	}
}

func TestStreamChat(t *testing.T) {
	u := &upstream{
		chat: ndjson(
			`{"message":{"role":"assistant","content":"Hi"},"done":false}`+"\n",
			`{"message":{"role":"assistant","content":" there"},"done":true}`+"\n",
			`{"message":{"role":"assistant","content":"!"},"done":false}`+"\n",
		),
	}
	o := newTestOllama(t, u)

	turns := []models.Turn{
		{Role: models.RoleSystem, Content: "Be brief."},
		{Role: models.RoleUser, Content: "hi"},
	}
	got, err := collect(t, o.StreamChat(context.Background(), "llama3", turns))
	if err != nil {
		t.Fatalf("StreamChat() error = %v", err)
	}
	if want := []string{"Hi", "Hi there", "Hi there!"}; !slices.Equal(got, want) {
		t.Errorf("StreamChat() snapshots = %q, want %q", got, want)
	}

	var req struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(u.body(), &req); err != nil {
		t.Fatalf("request body is not JSON: %v", err)
	}
	if len(req.Messages) != 2 || req.Messages[0].Role != "system" || req.Messages[1].Content != "hi" {
		t.Errorf("request messages = %+v, want system turn followed by user turn", req.Messages)
	}
}

func TestStreamUpstreamUnavailable(t *testing.T) {
	o := newTestOllama(t, &upstream{
		generate: func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"error":"model \"nope\" not found, try pulling it first"}`)
		},
	})

	got, err := collect(t, o.StreamGenerate(context.Background(), "nope", "hi"))
	if len(got) != 0 {
		t.Errorf("StreamGenerate() snapshots = %q, want none", got)
	}
	if !errors.Is(err, services.ErrUpstreamUnavailable) {
		t.Fatalf("StreamGenerate() error = %v, want %v", err, services.ErrUpstreamUnavailable)
	}

	var statusErr *services.StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("StreamGenerate() error = %T, want *services.StatusError", err)
	}
	if statusErr.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode = %d, want %d", statusErr.StatusCode, http.StatusNotFound)
	}
	if !strings.Contains(statusErr.Message, "not found") {
		t.Errorf("Message = %q, want the upstream error text", statusErr.Message)
	}
}

func TestStreamConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	o, err := services.NewOllama(url, 0, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatal(err)
	}

	_, err = collect(t, o.StreamChat(context.Background(), "llama3", nil))
	if !errors.Is(err, services.ErrUpstreamUnavailable) {
		t.Errorf("StreamChat() error = %v, want %v", err, services.ErrUpstreamUnavailable)
	}
}

func TestStreamReadFailure(t *testing.T) {
	o := newTestOllama(t, &upstream{
		chat: brokenStream(`{"message":{"role":"assistant","content":"par"}}` + "\n"),
	})

	got, err := collect(t, o.StreamChat(context.Background(), "llama3", nil))
	if !errors.Is(err, services.ErrStreamRead) {
		t.Fatalf("StreamChat() error = %v, want %v", err, services.ErrStreamRead)
	}
	if errors.Is(err, services.ErrUpstreamUnavailable) {
		t.Errorf("StreamChat() error = %v, must not match %v", err, services.ErrUpstreamUnavailable)
	}
	if want := []string{"par"}; !slices.Equal(got, want) {
		t.Errorf("StreamChat() snapshots before failure = %q, want %q", got, want)
	}
}

func TestStreamCancelled(t *testing.T) {
	release := make(chan struct{})
	o := newTestOllama(t, &upstream{
		generate: func(w http.ResponseWriter, r *http.Request) {
			ndjson(`{"response":"a"}`+"\n")(w, r)
			select {
			case <-release:
			case <-r.Context().Done():
			}
		},
	})
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var got []string
	for s, err := range o.StreamGenerate(ctx, "llama3", "hi") {
		if err != nil {
			t.Fatalf("StreamGenerate() error = %v, want silent end on cancel", err)
		}
		got = append(got, s)
		cancel()
	}
	if want := []string{"a"}; !slices.Equal(got, want) {
		t.Errorf("StreamGenerate() snapshots = %q, want %q", got, want)
	}
}

func TestStreamDeadlineMidBody(t *testing.T) {
	release := make(chan struct{})
	o := newTestOllama(t, &upstream{
		generate: func(w http.ResponseWriter, r *http.Request) {
			ndjson(`{"response":"Hel"}`+"\n")(w, r)
			select {
			case <-release:
			case <-r.Context().Done():
			}
		},
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	got, err := collect(t, o.StreamGenerate(ctx, "llama3", "hi"))
	if !errors.Is(err, services.ErrStreamRead) {
		t.Fatalf("StreamGenerate() error = %v, want %v", err, services.ErrStreamRead)
	}
	if want := []string{"Hel"}; !slices.Equal(got, want) {
		t.Errorf("StreamGenerate() snapshots = %q, want %q", got, want)
	}
}

func TestNewOllamaNilLogger(t *testing.T) {
	o, err := services.NewOllama("http://localhost:11434", 0, nil)
	if err != nil {
		t.Fatalf("NewOllama() error = %v", err)
	}
	if got := o.Host(); got != "http://localhost:11434" {
		t.Errorf("Host() = %q, want %q", got, "http://localhost:11434")
	}
}

func TestGenerate(t *testing.T) {
	o := newTestOllama(t, &upstream{
		generate: ndjson(`{"response":"4"}`+"\n", `{"response":"2"}`+"\n", `{"done":true}`),
	})

	got, err := o.Generate(context.Background(), "llama3", "6*7")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got != "42" {
		t.Errorf("Generate() = %q, want %q", got, "42")
	}
}
