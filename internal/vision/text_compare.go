package vision

import (
	"strings"
	"unicode/utf8"

	"github.com/arbovm/levenshtein"
	"github.com/codycollier/wer"
)

// TextComparison scores recognized text against the text the caller expected
type TextComparison struct {
	Expected      string  `json:"expected"`
	CharErrorRate float64 `json:"char_error_rate"`
	WordErrorRate float64 `json:"word_error_rate"`
	WordAccuracy  float64 `json:"word_accuracy"`
	ExactMatch    bool    `json:"exact_match"`
	EditDistance  int     `json:"edit_distance"`
}

// CompareText compares whitespace-normalized expected and actual text.
// Rates are 0 when both are empty and 1 when only expected is empty.
func CompareText(expected, actual string) TextComparison {
	exp := strings.Join(strings.Fields(expected), " ")
	act := strings.Join(strings.Fields(actual), " ")

	cmp := TextComparison{
		Expected:     expected,
		ExactMatch:   exp == act,
		EditDistance: levenshtein.Distance(exp, act),
	}

	if exp == "" {
		if act != "" {
			cmp.CharErrorRate, cmp.WordErrorRate = 1, 1
		} else {
			cmp.WordAccuracy = 1
		}
		return cmp
	}

	cmp.CharErrorRate = float64(cmp.EditDistance) / float64(utf8.RuneCountInString(exp))
	cmp.WordErrorRate, cmp.WordAccuracy = wer.WER(strings.Fields(exp), strings.Fields(act))
	return cmp
}
