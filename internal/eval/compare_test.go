package eval

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompareResponses(t *testing.T) {
	tests := []struct {
		name     string
		original string
		replayed string
		changed  bool
	}{
		{
			name:     "identical",
			original: "The next meetup is on Thursday at 6pm.",
			replayed: "The next meetup is on Thursday at 6pm.",
			changed:  false,
		},
		{
			name:     "both empty",
			original: "",
			replayed: "",
			changed:  false,
		},
		{
			name:     "length delta over threshold",
			original: "Short answer.",
			replayed: "This is a considerably longer answer that goes into a great deal more detail than the original ever did.",
			changed:  true,
		},
		{
			name:     "same words reordered",
			original: "billing status is current for your account",
			replayed: "your account billing status is current for",
			changed:  false,
		},
		{
			name:     "similar length different words",
			original: "Your payment went through fine yesterday",
			replayed: "The meetup starts at six pm sharp tonight",
			changed:  true,
		},
		{
			name:     "minor wording tweak keeps overlap high",
			original: "Your membership renews on the first of March and includes forum access.",
			replayed: "Your membership renews on the first of March and includes full forum access.",
			changed:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.changed, compareResponses(tt.original, tt.replayed))
		})
	}
}

func TestCompareTools(t *testing.T) {
	assert.False(t, compareTools(nil, nil))
	assert.False(t, compareTools([]string{"search_knowledge"}, []string{"search_knowledge"}))
	assert.False(t, compareTools(
		[]string{"search_knowledge", "get_recent_digest"},
		[]string{"get_recent_digest", "search_knowledge"},
	), "order must not matter")
	assert.True(t, compareTools([]string{"search_knowledge"}, nil))
	assert.True(t, compareTools(nil, []string{"search_knowledge"}))
	assert.True(t, compareTools([]string{"search_knowledge"}, []string{"get_billing_status"}))
}
