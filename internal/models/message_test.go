package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContentType(t *testing.T) {
	assert.False(t, ContentText.IsMedia())
	assert.True(t, ContentImage.IsMedia())
	assert.True(t, ContentVideo.IsMedia())
	assert.True(t, ContentType(7).IsMedia())
	assert.False(t, ContentType(7).Valid())
}

func TestCounterpart(t *testing.T) {
	bob := "bob"
	msg := Message{Sender: "alice", Recipient: &bob}

	assert.Equal(t, "bob", msg.Counterpart("alice"))
	assert.Equal(t, "alice", msg.Counterpart("bob"))
}

func TestProfileName(t *testing.T) {
	assert.Equal(t, "Alice", Profile{Identity: "a1", DisplayName: "Alice"}.Name())
	assert.Equal(t, "a1", Profile{Identity: "a1"}.Name())
}
