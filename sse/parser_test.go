package sse

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReader_BasicEvent(t *testing.T) {
	r := NewReader(strings.NewReader("event: message\ndata: hello\n\n"))
	ev, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "message", ev.Event)
	assert.Equal(t, "hello", ev.Data)

	_, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestReader_MultilineData(t *testing.T) {
	r := NewReader(strings.NewReader("data: line1\ndata: line2\n\n"))
	ev, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "line1\nline2", ev.Data)
}

func TestReader_DoneSentinel(t *testing.T) {
	r := NewReader(strings.NewReader("data: [DONE]\n\n"))
	ev, err := r.Next()
	require.NoError(t, err)
	assert.True(t, ev.Done)
}

func TestReader_CRLF(t *testing.T) {
	r := NewReader(strings.NewReader("data: hi\r\n\r\n"))
	ev, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "hi", ev.Data)
}

func TestReader_ClosesMidEventYieldsBuffered(t *testing.T) {
	r := NewReader(strings.NewReader("event: partial\ndata: buffered"))
	ev, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "buffered", ev.Data)

	_, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestReader_CommentsAndKeepAlivesSkipped(t *testing.T) {
	r := NewReader(strings.NewReader(":keep-alive\ndata: hi\n\n"))
	ev, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "hi", ev.Data)
}
