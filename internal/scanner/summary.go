package scanner

import (
	"strings"

	"github.com/clausecheck/clausecheck/internal/models"
)

// Canned summary sentences keyed off high-signal clause matches. The
// Hindi variants mirror the English ones.
var (
	arbitrationSentence = sentence{
		en: "This policy includes arbitration and class-action restrictions, limiting your ability to take legal action.",
		hi: "इस नीति में मध्यस्थता और सामूहिक मुकदमों से जुड़े प्रतिबंध शामिल हैं, जिससे आपके कानूनी अधिकार सीमित हो सकते हैं।",
	}
	liabilitySentence = sentence{
		en: "The company attempts to limit its legal responsibility for damages.",
		hi: "कंपनी अपनी कानूनी जिम्मेदारी को सीमित करने का प्रयास करती है।",
	}
	concernSentence = sentence{
		en: "Caution is required regarding data collection, tracking, and international transfers.",
		hi: "डेटा संग्रह, ट्रैकिंग और अंतरराष्ट्रीय स्थानांतरण को लेकर सावधानी आवश्यक है।",
	}
	safeSentence = sentence{
		en: "Some provisions grant users rights and control over their personal data.",
		hi: "कुछ प्रावधान उपयोगकर्ताओं को अपने डेटा पर अधिकार और नियंत्रण प्रदान करते हैं।",
	}
	noRiskSentence = sentence{
		en: "No major legal risks were detected in this document.",
		hi: "इस दस्तावेज़ में कोई प्रमुख कानूनी जोखिम नहीं पाया गया।",
	}
)

type sentence struct {
	en string
	hi string
}

// BuildSummary produces human-readable English and Hindi synopses from a
// scan result by concatenating the canned sentences that apply.
func BuildSummary(matches map[models.Category][]models.ClauseRule) (en, hi string) {
	var parts []sentence

	criticalIDs := matches[models.CategoryCritical]
	if anyIDContains(criticalIDs, "arbitration", "class") {
		parts = append(parts, arbitrationSentence)
	}
	if anyIDContains(criticalIDs, "liability") {
		parts = append(parts, liabilitySentence)
	}
	if len(matches[models.CategoryConcern]) > 0 {
		parts = append(parts, concernSentence)
	}
	if len(matches[models.CategorySafe]) > 0 {
		parts = append(parts, safeSentence)
	}

	if len(parts) == 0 {
		return noRiskSentence.en, noRiskSentence.hi
	}

	enParts := make([]string, len(parts))
	hiParts := make([]string, len(parts))
	for i, p := range parts {
		enParts[i] = p.en
		hiParts[i] = p.hi
	}
	return strings.Join(enParts, " "), strings.Join(hiParts, " ")
}

func anyIDContains(rules []models.ClauseRule, substrs ...string) bool {
	for _, r := range rules {
		for _, sub := range substrs {
			if strings.Contains(r.ID, sub) {
				return true
			}
		}
	}
	return false
}

// Answer returns a rule-grounded reply to a free-form question: the
// explanation of the first matched clause sharing a meaningful word
// (longer than 3 characters) with the question, or ok=false when no
// clause relates.
func Answer(question, lang string, matches map[models.Category][]models.ClauseRule) (string, bool) {
	words := strings.Fields(strings.ToLower(question))

	for _, cat := range models.Categories {
		for _, rule := range matches[cat] {
			explanation := strings.ToLower(rule.ExplanationEN)
			for _, w := range words {
				if len(w) > 3 && strings.Contains(explanation, w) {
					return rule.Explanation(lang), true
				}
			}
		}
	}
	return "", false
}
