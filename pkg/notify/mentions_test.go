package notify

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseMentions(t *testing.T) {
	cases := []struct {
		name    string
		content string
		want    []string
	}{
		{"none", "just a plain comment", nil},
		{"single", "hey @alice take a look", []string{"alice"}},
		{"multiple", "@alice @bob please review", []string{"alice", "bob"}},
		{"lowercased", "ping @Alice and @BOB", []string{"alice", "bob"}},
		{"deduplicated", "@alice again @alice and @Alice", []string{"alice"}},
		{"order_preserved", "@zed then @alice then @mid", []string{"zed", "alice", "mid"}},
		{"hyphen_underscore", "cc @code-reviewer and @qa_bot", []string{"code-reviewer", "qa_bot"}},
		{"punctuation_terminated", "thanks @alice, and @bob.", []string{"alice", "bob"}},
		// handles are ASCII; a mid-word @ still opens a token
		{"mid_word_at", "mail me at alice@example.com", []string{"example"}},
		{"unicode_terminated", "hola @josé", []string{"jos"}},
		{"broadcast", "heads up @all", []string{"all"}},
		{"bare_at", "an @ sign alone", nil},
		{"empty", "", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, ParseMentions(tc.content))
		})
	}
}
