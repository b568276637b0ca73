package imap

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveThreadID(t *testing.T) {
	tests := []struct {
		name       string
		references []string
		inReplyTo  string
		messageID  string
		want       string
	}{
		{
			name:       "references chain anchors on the root",
			references: []string{"root@example.com", "mid@example.com"},
			inReplyTo:  "mid@example.com",
			messageID:  "leaf@example.com",
			want:       "root@example.com",
		},
		{
			name:      "in-reply-to without references",
			inReplyTo: "parent@example.com",
			messageID: "child@example.com",
			want:      "parent@example.com",
		},
		{
			name:      "no reply headers starts a new thread",
			messageID: "fresh@example.com",
			want:      "fresh@example.com",
		},
		{
			name:       "single reference wins over in-reply-to",
			references: []string{"root@example.com"},
			inReplyTo:  "other@example.com",
			messageID:  "leaf@example.com",
			want:       "root@example.com",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveThreadID(tt.references, tt.inReplyTo, tt.messageID)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveThreadIDDeepChainStaysAnchored(t *testing.T) {
	// Every reply in a long conversation must resolve to the same thread.
	refs := []string{"root@example.com"}
	for i := 0; i < 10; i++ {
		id := string(rune('a'+i)) + "@example.com"
		got := ResolveThreadID(refs, refs[len(refs)-1], id)
		assert.Equal(t, "root@example.com", got)
		refs = append(refs, id)
	}
}
