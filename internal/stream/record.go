package stream

import (
	"encoding/json"
	"strings"

	"github.com/MegaGrindStone/ollama-assistant/internal/models"
	"github.com/ollama/ollama/api"
)

// ParseRecord decodes one line as a record of the given kind. It reports false for blank lines and for lines
// that are not a valid record; such lines carry no delta and are meant to be skipped.
func ParseRecord(line string, kind models.RecordKind) (models.Record, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return models.Record{}, false
	}

	switch kind {
	case models.RecordKindCompletion:
		var res api.GenerateResponse
		if err := json.Unmarshal([]byte(line), &res); err != nil {
			return models.Record{}, false
		}
		return models.Record{
			Kind:         models.RecordKindCompletion,
			ResponseText: res.Response,
			IsFinal:      res.Done,
		}, true
	case models.RecordKindChat:
		var res api.ChatResponse
		if err := json.Unmarshal([]byte(line), &res); err != nil {
			return models.Record{}, false
		}
		return models.Record{
			Kind:        models.RecordKindChat,
			MessageRole: res.Message.Role,
			MessageText: res.Message.Content,
			IsFinal:     res.Done,
		}, true
	default:
		return models.Record{}, false
	}
}

// Extract returns the text delta carried by rec. It reports false when the record contributes no text.
func Extract(rec models.Record) (string, bool) {
	switch rec.Kind {
	case models.RecordKindCompletion:
		return rec.ResponseText, rec.ResponseText != ""
	case models.RecordKindChat:
		return rec.MessageText, rec.MessageText != ""
	default:
		return "", false
	}
}
