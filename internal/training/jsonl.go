package training

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

// ErrInvalidUTF8 rejects records that JSON Lines cannot carry.
var ErrInvalidUTF8 = errors.New("training text is not valid UTF-8")

type record struct {
	Text string `json:"text"`
}

// WriteJSONL writes one {"text": ...} object per line. Nothing is written
// if any text is invalid UTF-8.
func WriteJSONL(w io.Writer, texts []string) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, text := range texts {
		if !utf8.ValidString(text) {
			return fmt.Errorf("%w: record %d", ErrInvalidUTF8, i)
		}
		// Encode terminates each record with a newline.
		if err := enc.Encode(record{Text: text}); err != nil {
			return fmt.Errorf("encode record %d: %w", i, err)
		}
	}

	_, err := w.Write(buf.Bytes())
	return err
}
