package services

import (
	"bufio"
	"bytes"
	"testing"

	"match-escrow-system/events"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteEvent_Frame(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)

	err := writeEvent(w, "moveMade", events.Event{Type: "moveMade", MatchID: "m-1", Attributes: map[string]string{"x": "2"}})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "event: moveMade\ndata: {")
	assert.Contains(t, buf.String(), `"match_id":"m-1"`)
	assert.True(t, bytes.HasSuffix(buf.Bytes(), []byte("\n\n")))
}

func TestWriteEvent_EncodeErrorWritesNothing(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)

	err := writeEvent(w, "bad", map[string]interface{}{"ch": make(chan int)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "encode bad event")
	require.NoError(t, w.Flush())
	assert.Empty(t, buf.String())
}
