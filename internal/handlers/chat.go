package handlers

import (
	"errors"
	"html/template"
	"iter"
	"log/slog"
	"net/http"
	"strings"

	"github.com/MegaGrindStone/ollama-assistant/internal/models"
	"github.com/MegaGrindStone/ollama-assistant/internal/prompts"
	"github.com/MegaGrindStone/ollama-assistant/internal/session"
	"github.com/google/uuid"
	"github.com/tmaxmax/go-sse"
)

type chatMessage struct {
	ID             string
	Role           string
	StreamingState models.StreamingState
	HTML           template.HTML
}

// SSE event types of the chat topic.
var (
	assistantChunkSSEType    = sse.Type("assistantChunk")
	assistantCompleteSSEType = sse.Type("assistantComplete")
	chatErrorSSEType         = sse.Type("error")
	clearChatSSEType         = sse.Type("clearChat")
)

// HandleChat sends a chat message through the session. It expects a "message" form field and an optional
// "file" field whose content is quoted before the message. The answer is streamed through the chat SSE topic;
// the response body is the rendered user message.
//
// A request while the previous answer is still streaming is rejected with 409 Conflict.
func (m Main) HandleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		m.logger.Error("Method not allowed", slog.String("method", r.Method))
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	msg := r.FormValue("message")
	if strings.TrimSpace(msg) == "" {
		m.logger.Error("Message is required")
		http.Error(w, "Message is required", http.StatusBadRequest)
		return
	}

	full := prompts.WithFileContext(r.FormValue("file"), msg)
	answer, err := m.session.Start(m.ctx, full)
	if err != nil {
		if errors.Is(err, session.ErrBusy) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	m.goStream(func() {
		m.chat(answer)
	})

	um, err := m.chatMessage(uuid.New().String(), models.RoleUser, models.StreamingStateEnded, msg)
	if err != nil {
		m.logger.Error("Failed to render user message", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if err := m.templates.ExecuteTemplate(w, "chat_message", um); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// HandleClearChat empties the chat transcript.
func (m Main) HandleClearChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	m.session.Clear()
	m.publishChat(clearChatSSEType, "bye")

	w.WriteHeader(http.StatusNoContent)
}

func (m Main) chat(answer iter.Seq2[string, error]) {
	aiMsgID := uuid.New().String()

	var text string
	for snapshot, err := range answer {
		if err != nil {
			m.publishChat(chatErrorSSEType, "Error: "+err.Error())
			return
		}
		text = snapshot

		am, err := m.chatMessage(aiMsgID, models.RoleAssistant, models.StreamingStateStreaming, text)
		if err != nil {
			m.logger.Error("Failed to render assistant message", slog.String(errLoggerKey, err.Error()))
			return
		}
		m.publishChatMessage(assistantChunkSSEType, am)
	}

	if m.ctx.Err() != nil {
		return
	}

	am, err := m.chatMessage(aiMsgID, models.RoleAssistant, models.StreamingStateEnded, text)
	if err != nil {
		m.logger.Error("Failed to render assistant message", slog.String(errLoggerKey, err.Error()))
		return
	}
	m.publishChatMessage(assistantCompleteSSEType, am)
}

func (m Main) chatMessage(id string, role models.Role, state models.StreamingState, content string) (chatMessage, error) {
	html, err := m.markdown.Render(content)
	if err != nil {
		return chatMessage{}, err
	}
	return chatMessage{
		ID:             id,
		Role:           string(role),
		StreamingState: state,
		HTML:           template.HTML(html),
	}, nil
}

func (m Main) publishChatMessage(typ sse.EventType, cm chatMessage) {
	var sb strings.Builder
	if err := m.templates.ExecuteTemplate(&sb, "chat_message", cm); err != nil {
		m.logger.Error("Failed to execute chat_message template", slog.String(errLoggerKey, err.Error()))
		return
	}
	m.publishChat(typ, sb.String())
}

func (m Main) publishChat(typ sse.EventType, data string) {
	msg := sse.Message{
		Type: typ,
	}
	msg.AppendData(data)
	if err := m.sseSrv.Publish(&msg, chatSSETopic); err != nil {
		m.logger.Error("Failed to publish chat event", slog.String(errLoggerKey, err.Error()))
	}
}
