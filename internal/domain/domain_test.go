package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPairKeyIsOrderIndependent(t *testing.T) {
	require.Equal(t, PairKey("alice", "bob"), PairKey("bob", "alice"))
	require.Equal(t, "alice:bob", PairKey("bob", "alice"))
}

func TestMessageTypeValidation(t *testing.T) {
	for _, mt := range []MessageType{MessageText, MessageImage, MessageVideo, MessageVoice, MessageFile} {
		require.True(t, mt.Valid())
	}
	require.False(t, MessageType("STICKER").Valid())

	require.False(t, MessageText.HasAttachment())
	require.True(t, MessageImage.HasAttachment())
	require.False(t, MessageType("STICKER").HasAttachment())
}

func TestTombstoneSuppressesContent(t *testing.T) {
	msg := Message{
		ID:           "m1",
		SenderID:     "alice",
		Type:         MessageImage,
		Content:      "caption",
		FileURL:      "http://example.com/f",
		FileName:     "f.png",
		FileSize:     42,
		ThumbnailURL: "http://example.com/t",
		Duration:     7,
		CreatedAt:    time.Now(),
		IsRecalled:   true,
	}

	tomb := msg.Tombstone()
	require.Empty(t, tomb.Content)
	require.Empty(t, tomb.FileURL)
	require.Empty(t, tomb.FileName)
	require.Zero(t, tomb.FileSize)
	require.Empty(t, tomb.ThumbnailURL)
	require.Zero(t, tomb.Duration)

	// Identity and metadata survive.
	require.Equal(t, msg.ID, tomb.ID)
	require.Equal(t, msg.SenderID, tomb.SenderID)
	require.True(t, tomb.IsRecalled)
}

func TestMentionsRoundTripThroughModel(t *testing.T) {
	model := MessageModel{
		ID:             "m1",
		MentionedUsers: JoinMentions([]string{"bob", "carol"}),
	}
	require.Equal(t, []string{"bob", "carol"}, model.ToDomain().MentionedUsers)

	empty := MessageModel{ID: "m2"}
	require.Nil(t, empty.ToDomain().MentionedUsers)
}
