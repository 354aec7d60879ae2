package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MegaGrindStone/ollama-assistant/internal/models"
	"github.com/MegaGrindStone/ollama-assistant/internal/stream"
	"github.com/ollama/ollama/api"
)

// Ollama is the client of a local Ollama server. It probes connectivity, lists installed models and streams
// completions and chats. Streams are read through the incremental decoder in package stream, so each
// produced value is the whole response accumulated so far.
type Ollama struct {
	host    *url.URL
	timeout time.Duration

	client     *api.Client
	httpClient *http.Client

	logger *slog.Logger
}

const maxErrorBodySize = 4 << 10

// NewOllama creates a new Ollama client for the server at host, e.g. "http://localhost:11434". The timeout,
// if non-zero, bounds the non-streaming calls; streams are only bounded by their context.
func NewOllama(host string, timeout time.Duration, logger *slog.Logger) (Ollama, error) {
	u, err := url.Parse(strings.TrimRight(host, "/"))
	if err != nil {
		return Ollama{}, fmt.Errorf("invalid ollama host %q: %w", host, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return Ollama{}, fmt.Errorf("invalid ollama host %q: scheme and host are required", host)
	}

	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	httpClient := &http.Client{}
	return Ollama{
		host:       u,
		timeout:    timeout,
		client:     api.NewClient(u, httpClient),
		httpClient: httpClient,
		logger:     logger.With(slog.String("module", "ollama")),
	}, nil
}

// Host returns the base URL of the upstream server.
func (o Ollama) Host() string {
	return o.host.String()
}

// CheckConnection reports whether the server answers the model listing endpoint successfully. Any failure,
// including a non-success status, yields false.
func (o Ollama) CheckConnection(ctx context.Context) bool {
	if _, err := o.Models(ctx); err != nil {
		o.logger.Debug("Connection check failed", slog.String(errLoggerKey, err.Error()))
		return false
	}
	return true
}

// Models returns the models installed on the server in the order the server lists them.
func (o Ollama) Models(ctx context.Context) ([]models.Model, error) {
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	res, err := o.client.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionUnavailable, err)
	}

	ms := make([]models.Model, len(res.Models))
	for i, m := range res.Models {
		ms[i] = models.Model{
			Name:       m.Name,
			ModifiedAt: m.ModifiedAt,
			Size:       m.Size,
		}
	}
	return ms, nil
}

// ModelNames is like Models but only returns the names.
func (o Ollama) ModelNames(ctx context.Context) ([]string, error) {
	ms, err := o.Models(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(ms))
	for i, m := range ms {
		names[i] = m.Name
	}
	return names, nil
}

// StreamGenerate streams a single-prompt completion. Every value produced is the full response text so far.
// The sequence ends when the response body ends. A failure to open the stream yields an error matching
// ErrUpstreamUnavailable, a failure while reading the body yields an error matching ErrStreamRead; either
// one is the last element. Cancelling ctx ends the sequence without an error; a ctx deadline that expires
// while the body is read yields an error matching ErrStreamRead.
func (o Ollama) StreamGenerate(ctx context.Context, model, prompt string) iter.Seq2[string, error] {
	t := true
	req := api.GenerateRequest{
		Model:  model,
		Prompt: prompt,
		Stream: &t,
	}
	return o.stream(ctx, "/api/generate", req, models.RecordKindCompletion)
}

// StreamChat streams a chat completion for the given turns, which are sent as-is and in order. It follows
// the same contract as StreamGenerate.
func (o Ollama) StreamChat(ctx context.Context, model string, turns []models.Turn) iter.Seq2[string, error] {
	msgs := make([]api.Message, len(turns))
	for i, turn := range turns {
		msgs[i] = api.Message{
			Role:    string(turn.Role),
			Content: turn.Content,
		}
	}

	t := true
	req := api.ChatRequest{
		Model:    model,
		Messages: msgs,
		Stream:   &t,
	}
	return o.stream(ctx, "/api/chat", req, models.RecordKindChat)
}

// Generate runs a completion to its end and returns the whole response.
func (o Ollama) Generate(ctx context.Context, model, prompt string) (string, error) {
	var res string
	for snapshot, err := range o.StreamGenerate(ctx, model, prompt) {
		if err != nil {
			return "", err
		}
		res = snapshot
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return res, nil
}

func (o Ollama) stream(ctx context.Context, path string, body any, kind models.RecordKind) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		resp, err := o.post(ctx, path, body)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			o.logger.Error("Failed to open stream",
				slog.String("path", path),
				slog.String(errLoggerKey, err.Error()))
			yield("", err)
			return
		}
		defer resp.Body.Close()

		var sb strings.Builder
		for delta, err := range stream.Deltas(resp.Body, kind, o.logger) {
			if err != nil {
				if errors.Is(ctx.Err(), context.Canceled) {
					return
				}
				o.logger.Error("Failed to read stream",
					slog.String("path", path),
					slog.String(errLoggerKey, err.Error()))
				yield("", fmt.Errorf("%w: %w", ErrStreamRead, err))
				return
			}

			sb.WriteString(delta)
			if !yield(sb.String(), nil) {
				return
			}
		}
	}
}

func (o Ollama) post(ctx context.Context, path string, body any) (*http.Response, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("error marshaling request: %w", err)
	}

	o.logger.Debug("Request", slog.String("path", path), slog.String("body", string(jsonBody)))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.host.JoinPath(path).String(),
		bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/x-ndjson")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: error sending request: %w", ErrUpstreamUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return nil, newStatusError(resp.StatusCode, resp.Status, b)
	}

	return resp, nil
}
