package guard

import (
	"regexp"
	"strings"

	"github.com/telltaleatheist/bookforge-sub001/internal/segment"
)

// SkipSentinels are the tokens the provider is instructed to emit, alone,
// for input it cannot process (decorative fragments, tables of symbols, etc).
var SkipSentinels = []string{
	"[UNPROCESSABLE]",
	"[SKIP]",
	"[NO_TEXT]",
}

func isSkipSentinel(trimmed string) bool {
	for _, s := range SkipSentinels {
		if trimmed == s {
			return true
		}
	}
	return false
}

// leakHead is how much of the response is scanned for assistant-style openers.
const leakHead = 200

// conversationalPatterns match assistant-style openers that indicate the
// model chatted about the text instead of transforming it.
var conversationalPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^here('s| is| are)\b`),
	regexp.MustCompile(`(?i)^(sure|certainly|of course)[,!.]`),
	regexp.MustCompile(`(?i)^i('d| would) be happy to\b`),
	regexp.MustCompile(`(?i)^i (can|could|will|'ll) (help|assist|clean|rewrite)\b`),
	regexp.MustCompile(`(?i)^could you\b`),
	regexp.MustCompile(`(?i)^(it looks|it seems) like\b`),
	regexp.MustCompile(`(?i)^(the|this) (text|passage|excerpt) (you provided|appears|seems)\b`),
	regexp.MustCompile(`(?i)^as an ai\b`),
	regexp.MustCompile(`(?i)^i notice\b`),
	regexp.MustCompile(`(?i)^i'?m sorry\b`),
}

func isConversational(trimmed string) bool {
	head := trimmed
	if len(head) > leakHead {
		head = head[:leakHead]
	}
	for _, p := range conversationalPatterns {
		if p.MatchString(head) {
			return true
		}
	}
	return false
}

// refusalVocabulary marks responses that declined to reproduce the text.
var refusalVocabulary = []string{
	"copyright",
	"cannot reproduce",
	"can't reproduce",
	"cannot assist with",
	"can't assist with",
	"lengthy passage",
	"unable to help with",
	"can't help with",
	"cannot help with",
	"not able to reproduce",
}

func containsRefusal(trimmed string) bool {
	lower := strings.ToLower(trimmed)
	for _, v := range refusalVocabulary {
		if strings.Contains(lower, v) {
			return true
		}
	}
	return false
}

// halve reuses the segmenter's boundary search so bisection cuts at the same
// natural boundaries as initial chunking.
func halve(text string) (string, string) {
	return segment.Halve(text)
}
