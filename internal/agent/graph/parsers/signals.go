package parsers

import (
	"regexp"
	"strings"

	"github.com/iteira-dev/consult-agent/internal/agent/model"
)

// The classifier is told to append its verdict as shell-style variables on
// separate lines after the digit. These patterns mirror that instruction;
// anything else in the output is treated as display text.
var (
	offTopicRe   = regexp.MustCompile(`is_client_question_irrelevant_to_context\s*=\s*(\d)`)
	wantsHumanRe = regexp.MustCompile(`does_client_asks_human_support\s*=\s*(\d)`)
)

// ParseClassifierVerdict reads the retrieval-necessity verdict from raw
// classifier output. The classifier is instructed to answer YES or NO;
// anything containing YES means "retrieve". Callers that fail to obtain any
// output at all must default to retrieving, which this function cannot decide
// for them.
func ParseClassifierVerdict(content string) bool {
	return strings.Contains(strings.ToUpper(content), "YES")
}

// ParseSignals splits raw reply text into the client-facing portion and the
// moderation flags embedded as classifier variables. Variable lines are
// stripped from the display text; absent variables leave flags false.
func ParseSignals(content string) (string, model.ClassificationFlags) {
	var flags model.ClassificationFlags

	if m := offTopicRe.FindStringSubmatch(content); m != nil {
		flags.OffTopic = m[1] == "1"
	}
	if m := wantsHumanRe.FindStringSubmatch(content); m != nil {
		flags.WantsHuman = m[1] == "1"
	}

	text := offTopicRe.ReplaceAllString(content, "")
	text = wantsHumanRe.ReplaceAllString(text, "")
	return strings.TrimSpace(text), flags
}
