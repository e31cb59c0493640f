package realm

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/bnetgo/internal/constants"
)

func TestDecoder_SingleFrame(t *testing.T) {
	d := NewDecoder()
	d.Feed([]byte{constants.ProtocolMCP, 0x06, 0x00, 0x12, 0xAA, 0xBB, 0xCC})

	frame, ok, err := d.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, byte(0x12), frame.Type)
	assert.Equal(t, []byte{0xAA, 0xBB, 0xCC}, frame.Payload)

	_, ok, err = d.Next()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDecoder_PartialFeed(t *testing.T) {
	d := NewDecoder()
	stream := []byte{constants.ProtocolMCP, 0x05, 0x00, 0x01, 0xDE, 0xAD}

	for i, b := range stream {
		d.Feed([]byte{b})
		frame, ok, err := d.Next()
		require.NoError(t, err)
		if i < len(stream)-1 {
			require.False(t, ok, "frame complete too early at byte %d", i)
			continue
		}
		require.True(t, ok)
		assert.Equal(t, byte(0x01), frame.Type)
		assert.Equal(t, []byte{0xDE, 0xAD}, frame.Payload)
	}
}

func TestDecoder_MultipleFrames(t *testing.T) {
	d := NewDecoder()
	d.Feed([]byte{
		constants.ProtocolMCP,
		0x03, 0x00, 0x12,
		0x04, 0x00, 0x19, 0x08,
	})

	first, ok, err := d.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, byte(0x12), first.Type)
	assert.Empty(t, first.Payload)

	second, ok, err := d.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, byte(0x19), second.Type)
	assert.Equal(t, []byte{0x08}, second.Payload)
}

func TestDecoder_BadSelectorFatal(t *testing.T) {
	d := NewDecoder()
	d.Feed([]byte{0x02, 0x03, 0x00, 0x01})

	_, _, err := d.Next()
	assert.ErrorIs(t, err, ErrBadSelector)
}

func TestDecoder_BadLengthFatal(t *testing.T) {
	d := NewDecoder()
	d.Feed([]byte{constants.ProtocolMCP, 0x02, 0x00, 0x01})

	_, _, err := d.Next()
	assert.ErrorIs(t, err, ErrBadLength)
}

func TestWriteFrame(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, 0x19, []byte{0x01, 0x02}))

	assert.Equal(t, []byte{0x05, 0x00, 0x19, 0x01, 0x02}, buf.Bytes())
}

func TestWriteFrame_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, 0x07, []byte("Conan\x00")))

	d := NewDecoder()
	d.Feed([]byte{constants.ProtocolMCP})
	d.Feed(buf.Bytes())

	frame, ok, err := d.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, byte(0x07), frame.Type)
	assert.Equal(t, []byte("Conan\x00"), frame.Payload)
}
