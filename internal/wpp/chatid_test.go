package wpp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeChatID(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"5511999999999", "5511999999999@c.us"},
		{" 5511999999999 ", "5511999999999@c.us"},
		{"5511999999999@c.us", "5511999999999@c.us"},
		{"5511999999999@s.whatsapp.net", "5511999999999@c.us"},
		{"5511999999999-1612345678", "5511999999999-1612345678@g.us"},
		{"120363025246125486", "120363025246125486@g.us"},
		{"120363025246125486@g.us", "120363025246125486@g.us"},
		{"status", "status@broadcast"},
		{"status@broadcast", "status@broadcast"},
		{"120363111111111111@newsletter", "120363111111111111@newsletter"},
		{"98765432101234@lid", "98765432101234@lid"},
		{"5511999999999@example.org", "5511999999999@c.us"},
		{"", ""},
		{"not a number", "not a number@c.us"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeChatID(tt.in))
		})
	}
}

func TestNormalizeChatID_Idempotent(t *testing.T) {
	for _, in := range []string{"5511999999999", "status", "1-2", "120363025246125486"} {
		once := NormalizeChatID(in)
		assert.Equal(t, once, NormalizeChatID(once), in)
	}
}

func TestIsGroup(t *testing.T) {
	assert.True(t, IsGroup(NormalizeChatID("120363025246125486")))
	assert.False(t, IsGroup(NormalizeChatID("5511999999999")))
}
