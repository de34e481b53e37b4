package turn

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateCopySessionName(t *testing.T) {
	cases := []struct {
		name string
		old  string
		want string
	}{
		{"empty", "", "New Chat (Copy)"},
		{"plain", "Some session", "Some session (Copy)"},
		{"already a copy", "Some session (Copy)", "Some session (Copy 2)"},
		{"numbered copy", "Some session (Copy 9)", "Some session (Copy 10)"},
		{"unicode whitespace and case", "Another session\t(COPY　7)\r\n", "Another session (Copy 8)"},
		{"inner spaces disqualify", "Yet another session ( Copy )", "Yet another session ( Copy ) (Copy)"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, generateCopySessionName(tc.old))
		})
	}
}

func TestGenerateCopySessionNameZeroNormalizes(t *testing.T) {
	assert.Equal(t, "Some session (Copy)", generateCopySessionName("Some session (Copy 0)"))
}
