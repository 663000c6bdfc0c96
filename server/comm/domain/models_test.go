package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlanRestricted(t *testing.T) {
	assert.True(t, PlanBasic.Restricted())
	assert.False(t, PlanPremium.Restricted())
	assert.False(t, PlanElite.Restricted())
}

func TestMessageValid(t *testing.T) {
	assert.True(t, Message{Kind: MessageKindText, Content: "hi"}.Valid())
	assert.False(t, Message{Kind: MessageKindText}.Valid())

	withMedia := Message{Kind: MessageKindMedia, Media: []MediaFile{{URL: "/media/chat/a.pdf"}}}
	assert.True(t, withMedia.Valid())
	assert.True(t, Message{Kind: MessageKindMedia, Content: "caption only"}.Valid())
	assert.False(t, Message{Kind: MessageKindMedia}.Valid())

	assert.False(t, Message{Kind: "sticker", Content: "x"}.Valid())
}
