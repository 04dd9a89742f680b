package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGroupMessage(t *testing.T) {
	tests := []struct {
		name    string
		ct      ContentType
		content string
		media   string
		wantErr error
	}{
		{name: "text", ct: ContentText, content: " hi "},
		{name: "image", ct: ContentImage, media: "https://cdn.example/a.png"},
		{name: "text without body", ct: ContentText, content: "   ", wantErr: ErrEmptyContent},
		{name: "image without url", ct: ContentImage, wantErr: ErrEmptyContent},
		{name: "text with media", ct: ContentText, content: "hi", media: "x", wantErr: ErrAmbiguousContent},
		{name: "image with text", ct: ContentImage, content: "hi", media: "x", wantErr: ErrAmbiguousContent},
		{name: "unknown type", ct: "video", content: "hi", wantErr: ErrUnknownContentType},
		{name: "too long", ct: ContentText, content: strings.Repeat("a", MaxTextLength+1), wantErr: ErrContentTooLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := NewGroupMessage("r1", "alice", tt.ct, tt.content, tt.media)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, RoomID("r1"), msg.Room)
			assert.Equal(t, UserID("alice"), msg.Sender)
			assert.Empty(t, msg.ID)
		})
	}
}

func TestNewGroupMessageTrims(t *testing.T) {
	msg, err := NewGroupMessage("r1", "alice", ContentText, "  hi  ", "")
	require.NoError(t, err)
	assert.Equal(t, "hi", msg.Content)
}

func TestParseIDs(t *testing.T) {
	_, err := ParseUserID("  ")
	require.ErrorIs(t, err, ErrUserIDEmpty)
	_, err = ParseUserID(strings.Repeat("u", MaxUserIDLen+1))
	require.ErrorIs(t, err, ErrUserIDTooLong)
	u, err := ParseUserID(" bob ")
	require.NoError(t, err)
	assert.Equal(t, UserID("bob"), u)

	_, err = ParseRoomID("")
	require.ErrorIs(t, err, ErrRoomIDEmpty)
	r, err := ParseRoomID("R1")
	require.NoError(t, err)
	assert.Equal(t, RoomID("R1"), r)
}
