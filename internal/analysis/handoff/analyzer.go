package handoff

import (
	"strings"
)

// Label 表示一次回复的处理结果。
type Label string

const (
	Answered Label = "answered"
	Declined Label = "declined"
	Handoff  Label = "handoff"
)

// Decision 给出启发式判断结果。
type Decision struct {
	Label Label
	Score int
}

// Suggested reports whether the reply routes the user to a human.
func (d Decision) Suggested() bool {
	return d.Label == Handoff
}

var replyBuckets = map[Label][]string{
	Declined: {
		"i don't know", "i do not know", "i'm not sure", "i am not sure", "not able to answer",
		"unable to answer", "i don't have information", "i don't have that information",
		"i do not have information", "no information about", "can't help with", "cannot help with",
		"outside of what i can", "i'm afraid i", "unfortunately, i", "i couldn't find",
	},
	Handoff: {
		"human agent", "human representative", "live agent", "support team", "customer service team",
		"connect you with", "connect you to", "transfer you", "put you in touch", "reach out to our",
		"someone from our team", "a member of our team", "contact our support", "speak with a human",
	},
}

var userHandoffRequests = []string{
	"talk to a human", "speak to a human", "real person", "human agent", "live agent",
	"talk to someone", "speak to someone", "representative", "customer service",
}

// Analyze 根据用户最后一句话与助手回复判断是否发生了转人工。
func Analyze(userUtterance, reply string) Decision {
	scores := scoreText(reply, replyBuckets)

	if containsAny(normalize(userUtterance), userHandoffRequests) && scores[Handoff] > 0 {
		// 用户主动要求人工且回复有所回应，按转人工处理。
		scores[Handoff] += 2
	}

	if scores[Handoff] > 0 {
		return Decision{Label: Handoff, Score: scores[Handoff] + scores[Declined]}
	}
	if scores[Declined] > 0 {
		return Decision{Label: Declined, Score: scores[Declined]}
	}
	return Decision{Label: Answered, Score: 0}
}

func scoreText(text string, buckets map[Label][]string) map[Label]int {
	normalized := normalize(text)
	scores := make(map[Label]int, len(buckets))
	if normalized == "" {
		return scores
	}

	for label, phrases := range buckets {
		for _, phrase := range phrases {
			if strings.Contains(normalized, phrase) {
				scores[label] += 3
			}
		}
	}
	return scores
}

// normalize lowercases and folds typographic apostrophes so "don’t" matches "don't".
func normalize(text string) string {
	text = strings.ToLower(strings.TrimSpace(text))
	return strings.ReplaceAll(text, "’", "'")
}

func containsAny(text string, phrases []string) bool {
	for _, phrase := range phrases {
		if strings.Contains(text, phrase) {
			return true
		}
	}
	return false
}
