package process

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeywordsDeterministic(t *testing.T) {
	title := "Shipping & Returns Policy"
	desc := "How we handle shipping, returns and refunds for your orders."

	first := Keywords(title, desc)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Keywords(title, desc))
	}
}

func TestKeywordsSortedAndDeduplicated(t *testing.T) {
	got := Keywords("Pricing pricing PRICING plans", "plans and pricing")
	require.Equal(t, []string{"plans", "pricing"}, got)
}

func TestKeywordsDropStopwordsAndShortTokens(t *testing.T) {
	got := Keywords("The quick brown fox is on a hill")
	assert.NotContains(t, got, "the")
	assert.NotContains(t, got, "is")
	assert.NotContains(t, got, "on")
	assert.NotContains(t, got, "a")
	assert.Contains(t, got, "quick")
	assert.Contains(t, got, "brown")
	assert.Contains(t, got, "fox")
	assert.Contains(t, got, "hill")
}

func TestKeywordsPunctuationSplit(t *testing.T) {
	got := Keywords("FAQ: billing/invoices, taxes (2024)")
	assert.Equal(t, []string{"2024", "billing", "faq", "invoices", "taxes"}, got)
}

func TestKeywordsEmptyInput(t *testing.T) {
	assert.Empty(t, Keywords(""))
	assert.Empty(t, Keywords("of the and"))
}

func TestTokenizeKeepsOrderAndDuplicates(t *testing.T) {
	got := Tokenize("support tickets support portal")
	assert.Equal(t, []string{"support", "tickets", "support", "portal"}, got)
}
