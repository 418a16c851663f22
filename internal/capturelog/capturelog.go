// Package capturelog reads and writes capture logs: JSON Lines files holding
// one raw capture event per line, used for offline replay.
package capturelog

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"
	"unicode/utf8"

	"github.com/hpungsan/citelens/internal/interaction"
)

// Record is the on-disk form of one event. Text, when set, carries the
// payload as a UTF-8 string and takes precedence over Payload.
type Record struct {
	Timestamp time.Time             `json:"ts"`
	Kind      interaction.EventKind `json:"kind"`
	Payload   []byte                `json:"payload,omitempty"`
	Text      *string               `json:"text,omitempty"`
}

// Decoder reads events from a capture log. Malformed lines are skipped and
// recorded as DECODE warnings.
type Decoder struct {
	r        *bufio.Reader
	line     int
	warnings []interaction.Warning
}

// NewDecoder returns a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Next returns the next well-formed event, or io.EOF at the end of input.
// Any other error comes from the underlying reader.
func (d *Decoder) Next() (interaction.RawCaptureEvent, error) {
	for {
		line, err := d.r.ReadBytes('\n')
		if len(line) > 0 {
			d.line++
			if ev, ok := d.decodeLine(line); ok {
				return ev, nil
			}
		}
		if err != nil {
			return interaction.RawCaptureEvent{}, err
		}
	}
}

// Warnings returns the warnings for lines skipped so far.
func (d *Decoder) Warnings() []interaction.Warning {
	return d.warnings
}

func (d *Decoder) decodeLine(line []byte) (interaction.RawCaptureEvent, bool) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return interaction.RawCaptureEvent{}, false
	}

	var rec Record
	if err := json.Unmarshal(line, &rec); err != nil {
		d.warn("%v", err)
		return interaction.RawCaptureEvent{}, false
	}
	switch rec.Kind {
	case interaction.KindHTTP, interaction.KindSSE:
	default:
		d.warn("unknown kind %q", rec.Kind)
		return interaction.RawCaptureEvent{}, false
	}

	payload := rec.Payload
	if rec.Text != nil {
		payload = []byte(*rec.Text)
	}
	return interaction.RawCaptureEvent{Timestamp: rec.Timestamp, Kind: rec.Kind, Payload: payload}, true
}

func (d *Decoder) warn(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	d.warnings = append(d.warnings, interaction.NewDecodeWarning(interaction.NoEvent, "capture log line %d: %s", d.line, msg))
}

// ReadAll decodes every event in r.
func ReadAll(r io.Reader) ([]interaction.RawCaptureEvent, []interaction.Warning, error) {
	d := NewDecoder(r)
	var events []interaction.RawCaptureEvent
	for {
		ev, err := d.Next()
		if errors.Is(err, io.EOF) {
			return events, d.Warnings(), nil
		}
		if err != nil {
			return events, d.Warnings(), err
		}
		events = append(events, ev)
	}
}

// Pump sends decoded events to out as they are read and closes out when
// input ends. It stops early when ctx is cancelled.
func Pump(ctx context.Context, d *Decoder, out chan<- interaction.RawCaptureEvent) error {
	defer close(out)
	for {
		ev, err := d.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		select {
		case out <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Encoder writes events as capture log lines.
type Encoder struct {
	enc *json.Encoder
}

// NewEncoder returns an Encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &Encoder{enc: enc}
}

// Encode writes one event. UTF-8 payloads are written as text for
// readability; anything else is base64.
func (e *Encoder) Encode(ev interaction.RawCaptureEvent) error {
	rec := Record{Timestamp: ev.Timestamp, Kind: ev.Kind}
	if utf8.Valid(ev.Payload) {
		text := string(ev.Payload)
		rec.Text = &text
	} else {
		rec.Payload = ev.Payload
	}
	return e.enc.Encode(rec)
}
