package toolset

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stewardhq/steward/internal/tools"
)

func stubTools(names ...string) SetBuilder {
	return func() []tools.Tool {
		out := make([]tools.Tool, 0, len(names))
		for _, name := range names {
			out = append(out, tools.Tool{
				Name:    name,
				Handler: func(context.Context, map[string]any) (string, error) { return "", nil },
			})
		}
		return out
	}
}

func TestBuildReplayRegistry_ExcludesUnsafeSets(t *testing.T) {
	c := Default()

	memberCalled := false
	registry, err := c.BuildReplayRegistry(map[string]SetBuilder{
		"knowledge": stubTools("search_knowledge", "get_recent_digest"),
		"billing":   stubTools("get_billing_status"),
		"members": func() []tools.Tool {
			memberCalled = true
			return stubTools("lookup_member")()
		},
		"admin":   stubTools("flag_content"),
		WebSearch: stubTools("web_lookup"),
	})
	require.NoError(t, err)

	assert.Equal(t,
		[]string{"search_knowledge", "get_recent_digest", "get_billing_status"},
		registry.Names())
	assert.False(t, memberCalled, "user-scoped builders must never run")
}

func TestBuildReplayRegistry_SkipsMissingBuilders(t *testing.T) {
	registry, err := Default().BuildReplayRegistry(map[string]SetBuilder{
		"knowledge": stubTools("search_knowledge"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"search_knowledge"}, registry.Names())
}
