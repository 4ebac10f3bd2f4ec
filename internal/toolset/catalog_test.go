package toolset

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHints map[string][2]string // name -> {hint, description}

func (f fakeHints) ToolHint(name string) (string, string, bool) {
	v, ok := f[name]
	return v[0], v[1], ok
}

func TestDefaultCatalog(t *testing.T) {
	c := Default()

	names := c.Names()
	assert.Equal(t, []string{"knowledge", "members", "billing", "admin", "web_search"}, names)

	billing, ok := c.Get("billing")
	require.True(t, ok)
	assert.True(t, billing.PrecisionCritical)

	knowledge, ok := c.Get("knowledge")
	require.True(t, ok)
	assert.False(t, knowledge.PrecisionCritical)
	assert.False(t, knowledge.UserScoped)
}

func TestCatalog_Validate(t *testing.T) {
	c := Default()

	assert.NoError(t, c.Validate([]string{"knowledge", "billing"}))
	assert.NoError(t, c.Validate(nil))

	err := c.Validate([]string{"knowledge", "teleport", "astrology"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "astrology, teleport")
}

func TestCatalog_RequiresPrecision(t *testing.T) {
	c := Default()

	assert.True(t, c.RequiresPrecision([]string{"billing"}))
	assert.True(t, c.RequiresPrecision([]string{"knowledge", "billing"}))
	assert.False(t, c.RequiresPrecision([]string{"knowledge"}))
	assert.False(t, c.RequiresPrecision(nil))
}

func TestCatalog_ReplaySets(t *testing.T) {
	c := Default()

	sets := c.ReplaySets()
	assert.NotContains(t, sets, "members")
	assert.NotContains(t, sets, "admin")
	assert.NotContains(t, sets, WebSearch)
	assert.Contains(t, sets, "knowledge")
	assert.Contains(t, sets, "billing")
}

func TestCatalog_Describe(t *testing.T) {
	c := Default()

	hints := fakeHints{
		"search_knowledge":  {"Search past discussions and answers.", ""},
		"get_recent_digest": {"", "Fetch the latest digest. It summarizes the week."},
	}

	out := c.Describe(hints)
	assert.Contains(t, out, "- knowledge: Search past discussions and answers. Fetch the latest digest.")
	// Sets with no registered tools keep their static description.
	assert.Contains(t, out, "- web_search: Search the web")
	// Every catalog entry is rendered.
	for _, name := range c.Names() {
		assert.True(t, strings.Contains(out, "- "+name+": "), "missing %s", name)
	}
}

func TestFirstSentence(t *testing.T) {
	assert.Equal(t, "One.", firstSentence("One. Two. Three."))
	assert.Equal(t, "No trailing period", firstSentence("No trailing period"))
	assert.Equal(t, "", firstSentence("   "))
}
