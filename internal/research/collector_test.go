package research

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCacheKey(t *testing.T) {
	a := Query{SystemInstruction: "sys", Prompt: "prompt", SearchDepth: "standard"}
	b := a
	assert.Equal(t, cacheKey(a), cacheKey(b))

	b.Prompt = "different prompt"
	assert.NotEqual(t, cacheKey(a), cacheKey(b))

	// Depth participates in the key: the same prompt at a different depth is a
	// different call.
	c := a
	c.SearchDepth = "deep"
	assert.NotEqual(t, cacheKey(a), cacheKey(c))

	// Field boundaries must not be ambiguous.
	d := Query{SystemInstruction: "sysp", Prompt: "rompt", SearchDepth: "standard"}
	assert.NotEqual(t, cacheKey(a), cacheKey(d))
}

func TestExtractURLs(t *testing.T) {
	text := "See https://example.com/case-1 and (https://nclt.gov.in/order.pdf). " +
		"Also https://example.com/case-1, reported again, plus http://sebi.gov.in/orders;"
	urls := extractURLs(text)
	assert.Equal(t, []string{
		"https://example.com/case-1",
		"https://nclt.gov.in/order.pdf",
		"http://sebi.gov.in/orders",
	}, urls)

	assert.Empty(t, extractURLs("no links in this text"))
}

func TestFallbackResults(t *testing.T) {
	c := &Collector{}
	q := Query{Prompt: "Research Acme."}

	partial := c.partialResult(q)
	assert.True(t, partial.Degraded)
	assert.NotNil(t, partial.Confidence)
	assert.InDelta(t, 0.3, *partial.Confidence, 0.001)
	assert.Contains(t, partial.Content, "partial")

	placeholder := c.placeholderResult(q)
	assert.True(t, placeholder.Degraded)
	assert.NotNil(t, placeholder.Confidence)
	assert.InDelta(t, 0.2, *placeholder.Confidence, 0.001)
	// The placeholder must not read as a clean bill of health.
	assert.Contains(t, placeholder.Content, "does not indicate an absence")
}
