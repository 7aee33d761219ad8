package analysis

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildTextPrompt(t *testing.T) {
	p := buildTextPrompt("review my banner")
	assert.True(t, strings.HasPrefix(p, personaPrompt))
	assert.Contains(t, p, "review my banner")
	assert.Contains(t, p, `start with "SCORE:"`)
}

func TestBuildImagePrompt(t *testing.T) {
	p := buildImagePrompt("Japan", "restaurant")
	assert.True(t, strings.HasPrefix(p, personaPrompt))
	assert.Contains(t, p, "intended for Japan")
	assert.Contains(t, p, `business type of "restaurant"`)
	assert.Contains(t, p, "cultural appropriateness for Japan")
}

func TestExtractScore(t *testing.T) {
	text, score := extractScore("All good here.\n\nSCORE: 85")
	require.NotNil(t, score)
	assert.Equal(t, 85, *score)
	assert.Equal(t, "All good here.", text)
}

func TestExtractScore_NoScoreLine(t *testing.T) {
	text, score := extractScore("No numeric verdict given.")
	assert.Nil(t, score)
	assert.Equal(t, "No numeric verdict given.", text)
}

func TestExtractScore_ZeroAndHundred(t *testing.T) {
	_, score := extractScore("risky SCORE: 0")
	require.NotNil(t, score)
	assert.Equal(t, 0, *score)

	_, score = extractScore("safe SCORE: 100")
	require.NotNil(t, score)
	assert.Equal(t, 100, *score)
}

func TestExtractScore_WhitespaceVariants(t *testing.T) {
	_, score := extractScore("verdict\nSCORE:   73")
	require.NotNil(t, score)
	assert.Equal(t, 73, *score)
}
