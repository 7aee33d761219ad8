package analysis

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const personaPrompt = `You are a Senior Cultural Inclusivity & Design Ethics Specialist at a global creative agency. Your expertise lies in ensuring visual materials are impeccably inclusive and free from cultural insensitivity. You proactively identify inappropriate elements and propose constructive solutions for global brand perception.`

var scorePattern = regexp.MustCompile(`SCORE:\s*(\d+)`)

// buildTextPrompt wraps the user's prompt with the specialist persona and the
// trailing sensitivity-score instruction.
func buildTextPrompt(prompt string) string {
	return fmt.Sprintf(`%s

%s

Finally, on a new line at the very end, provide a "Cultural Sensitivity Score" from 0 (very high risk) to 100 (very low risk) based on your analysis. The line must start with "SCORE:" followed by the number. For example: SCORE: 85`, personaPrompt, prompt)
}

// buildImagePrompt produces the review instruction for an uploaded design,
// targeted at the given country and business type.
func buildImagePrompt(country, businessType string) string {
	return fmt.Sprintf(`%s

Analyze the provided image for potential cultural, symbolic or ethical issues. This image is intended for %s with a business type of %q. Identify any culturally insensitive or inappropriate elements and suggest changes to promote inclusive visual solutions suitable for a diverse international audience, with a focus on cultural appropriateness for %s. In the first sentence, give a short answer whether this element should be used in the selected country.`,
		personaPrompt, country, businessType, country)
}

// extractScore pulls the trailing "SCORE: N" line out of the model's answer.
// It returns the answer with the score line removed, and nil when no score
// line is present.
func extractScore(text string) (string, *int) {
	m := scorePattern.FindStringSubmatch(text)
	if m == nil {
		return text, nil
	}
	score, err := strconv.Atoi(m[1])
	if err != nil {
		return text, nil
	}
	cleaned := strings.TrimSpace(scorePattern.ReplaceAllString(text, ""))
	return cleaned, &score
}
