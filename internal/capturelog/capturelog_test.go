package capturelog

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/citelens/internal/interaction"
)

func TestReadAll(t *testing.T) {
	input := strings.Join([]string{
		`{"ts": "2026-03-01T12:00:00Z", "kind": "sse", "text": "data: [DONE]"}`,
		``,
		`{"ts": "2026-03-01T12:00:01Z", "kind": "http", "payload": "H4sI"}`,
		`{"ts": "2026-03-01T12:00:02Z", "kind": "websocket", "text": "x"}`,
		`not json`,
		`{"ts": "2026-03-01T12:00:03Z", "kind": "sse", "payload": "!!!"}`,
		`{"kind": "sse", "text": "data: {}"}`,
	}, "\n")

	events, warnings, err := ReadAll(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, events, 3)

	assert.Equal(t, interaction.KindSSE, events[0].Kind)
	assert.Equal(t, "data: [DONE]", string(events[0].Payload))
	assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), events[0].Timestamp)

	assert.Equal(t, interaction.KindHTTP, events[1].Kind)
	assert.Equal(t, []byte{0x1f, 0x8b, 0x08}, events[1].Payload)

	assert.True(t, events[2].Timestamp.IsZero())

	require.Len(t, warnings, 3)
	for _, w := range warnings {
		assert.Equal(t, interaction.WarnDecode, w.Kind)
		assert.Equal(t, interaction.NoEvent, w.EventIndex)
	}
	assert.Contains(t, warnings[0].Message, "line 4")
	assert.Contains(t, warnings[1].Message, "line 5")
	assert.Contains(t, warnings[2].Message, "line 6")
}

func TestReadAll_NoTrailingNewline(t *testing.T) {
	events, warnings, err := ReadAll(strings.NewReader(`{"kind": "sse", "text": "a"}`))
	require.NoError(t, err)
	assert.Len(t, events, 1)
	assert.Empty(t, warnings)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	in := []interaction.RawCaptureEvent{
		{Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 6, time.UTC), Kind: interaction.KindSSE, Payload: []byte("data: {\"v\": \"<b>\"}")},
		{Timestamp: time.Date(2026, 1, 2, 3, 4, 6, 0, time.UTC), Kind: interaction.KindHTTP, Payload: []byte{0xff, 0x00, 0x8b}},
	}

	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	for _, ev := range in {
		require.NoError(t, enc.Encode(ev))
	}
	assert.Contains(t, buf.String(), `"text":"data: {\"v\": \"<b>\"}"`)
	assert.Contains(t, buf.String(), `"payload":"/wCL"`)

	out, warnings, err := ReadAll(&buf)
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, in, out)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("disk on fire") }

func TestReadAll_ReaderError(t *testing.T) {
	_, _, err := ReadAll(failingReader{})
	assert.EqualError(t, err, "disk on fire")
}

func TestPump(t *testing.T) {
	input := "{\"kind\": \"sse\", \"text\": \"a\"}\n{\"kind\": \"sse\", \"text\": \"b\"}\n"
	out := make(chan interaction.RawCaptureEvent)

	errc := make(chan error, 1)
	go func() { errc <- Pump(context.Background(), NewDecoder(strings.NewReader(input)), out) }()

	var got []string
	for ev := range out {
		got = append(got, string(ev.Payload))
	}
	require.NoError(t, <-errc)
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestPump_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := make(chan interaction.RawCaptureEvent)

	err := Pump(ctx, NewDecoder(strings.NewReader("{\"kind\": \"sse\", \"text\": \"a\"}\n")), out)
	assert.ErrorIs(t, err, context.Canceled)
	_, open := <-out
	assert.False(t, open)
}
