// Package session keeps the transcript of a chat and streams each new turn through the upstream client.
package session

import (
	"context"
	"errors"
	"io"
	"iter"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/MegaGrindStone/ollama-assistant/internal/models"
)

// LLM streams a chat completion for an ordered list of turns. Each produced value is the cumulative response
// text so far.
type LLM interface {
	StreamChat(ctx context.Context, model string, turns []models.Turn) iter.Seq2[string, error]
}

// Session is a chat conversation with a single model. It owns its transcript: the user turn is appended
// before the request is sent, and the assistant turn only after the stream ended successfully. At most one
// Send may be outstanding at a time.
type Session struct {
	llm          LLM
	model        string
	systemPrompt string

	logger *slog.Logger

	mu         sync.Mutex
	transcript models.Transcript
	busy       bool
	generation int
}

var (
	// ErrBusy is returned by Send while another Send on the same session is still streaming.
	ErrBusy = errors.New("a response is already streaming in this session")
	// ErrEmptyMessage is returned by Send for a blank message.
	ErrEmptyMessage = errors.New("message is empty")
)

// New creates a session that talks to model through llm. The system prompt prefixes every request but is
// never stored in the transcript.
func New(llm LLM, model, systemPrompt string, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Session{
		llm:          llm,
		model:        model,
		systemPrompt: systemPrompt,
		logger:       logger.With(slog.String("module", "session")),
	}
}

// Model returns the model the session talks to.
func (s *Session) Model() string {
	return s.model
}

// Send appends message as a user turn and streams the assistant's answer. Each produced value is the answer
// accumulated so far. The whole transcript, prefixed with the system prompt, is sent on every call.
//
// When the sequence runs to its end without error the answer is appended to the transcript as an assistant
// turn. When it fails, is cancelled through ctx, or the caller stops iterating early, no assistant turn is
// appended but the user turn stays. Nothing happens until the sequence is iterated.
func (s *Session) Send(ctx context.Context, message string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		seq, err := s.Start(ctx, message)
		if err != nil {
			yield("", err)
			return
		}
		seq(yield)
	}
}

// Start is like Send, but the user turn is appended and the session reserved before Start returns, so
// ErrBusy and ErrEmptyMessage are reported immediately. The returned sequence is single use and must be
// iterated to release the session.
func (s *Session) Start(ctx context.Context, message string) (iter.Seq2[string, error], error) {
	if strings.TrimSpace(message) == "" {
		return nil, ErrEmptyMessage
	}

	turns, gen, err := s.begin(message)
	if err != nil {
		return nil, err
	}

	var once sync.Once
	return func(yield func(string, error) bool) {
		defer once.Do(s.end)

		var answer string
		for snapshot, err := range s.llm.StreamChat(ctx, s.model, turns) {
			if err != nil {
				s.logger.Error("Chat stream failed",
					slog.Int("turns", len(turns)),
					slog.String(errLoggerKey, err.Error()))
				yield("", err)
				return
			}
			answer = snapshot
			if !yield(snapshot, nil) {
				s.logger.Debug("Chat stream abandoned by consumer")
				return
			}
		}

		if ctx.Err() != nil {
			s.logger.Debug("Chat stream cancelled", slog.String(errLoggerKey, ctx.Err().Error()))
			return
		}

		s.appendAssistant(gen, answer)
	}, nil
}

// Transcript returns a copy of the conversation so far.
func (s *Session) Transcript() models.Transcript {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.transcript.Clone()
}

// Clear empties the transcript. An answer still streaming when Clear is called is not recorded.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.transcript = nil
	s.generation++
}

// Busy reports whether a Send is currently streaming.
func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.busy
}

func (s *Session) begin(message string) ([]models.Turn, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.busy {
		return nil, 0, ErrBusy
	}
	s.busy = true

	s.transcript = append(s.transcript, models.Turn{
		Role:    models.RoleUser,
		Content: message,
	})

	turns := slices.Insert(s.transcript.Clone(), 0, models.Turn{
		Role:    models.RoleSystem,
		Content: s.systemPrompt,
	})
	return turns, s.generation, nil
}

func (s *Session) end() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.busy = false
}

func (s *Session) appendAssistant(gen int, answer string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation {
		return
	}
	s.transcript = append(s.transcript, models.Turn{
		Role:    models.RoleAssistant,
		Content: answer,
	})
}

const errLoggerKey = "err"
