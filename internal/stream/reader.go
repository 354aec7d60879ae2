package stream

import (
	"errors"
	"io"
	"iter"
	"log/slog"

	"github.com/MegaGrindStone/ollama-assistant/internal/models"
)

const readChunkSize = 4096

// Records reads r until it ends and yields every valid record of the given kind in arrival order. Lines
// that fail to decode are dropped and logged at debug level; they never end the sequence. A read error other
// than io.EOF is yielded once and ends the sequence. The "done" flag of a record does not end the sequence,
// only the end of r does.
func Records(r io.Reader, kind models.RecordKind, logger *slog.Logger) iter.Seq2[models.Record, error] {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return func(yield func(models.Record, error) bool) {
		var dec Decoder
		buf := make([]byte, readChunkSize)

		emit := func(lines []string) bool {
			for _, line := range lines {
				rec, ok := ParseRecord(line, kind)
				if !ok {
					if line != "" {
						logger.Debug("Dropped malformed record",
							slog.String("kind", kind.String()),
							slog.String("line", line))
					}
					continue
				}
				if !yield(rec, nil) {
					return false
				}
			}
			return true
		}

		for {
			n, err := r.Read(buf)
			if n > 0 {
				if !emit(dec.Feed(buf[:n])) {
					return
				}
			}
			if err == nil {
				continue
			}
			if errors.Is(err, io.EOF) {
				emit(dec.Finish())
				return
			}
			yield(models.Record{}, err)
			return
		}
	}
}

// Deltas is like Records but yields only the text deltas, skipping records that carry no text.
func Deltas(r io.Reader, kind models.RecordKind, logger *slog.Logger) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for rec, err := range Records(r, kind, logger) {
			if err != nil {
				yield("", err)
				return
			}
			delta, ok := Extract(rec)
			if !ok {
				continue
			}
			if !yield(delta, nil) {
				return
			}
		}
	}
}
