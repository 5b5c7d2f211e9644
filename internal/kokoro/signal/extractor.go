// Package signal derives per-turn semantic signals (emotions, topics and
// key points) from a persona reply and the user message that prompted it.
//
// Detection is pure keyword matching over constant tables. The tables are
// data, not code: tuning a vocabulary never touches control flow, and the
// relationship state machine consumes the emitted names without knowing any
// keyword.
package signal

import "strings"

// Emotion names form a closed vocabulary. The relationship layer maps them
// to memory phrasing and inferred user traits by name.
const (
	EmotionAnger      = "anger"
	EmotionSadness    = "sadness"
	EmotionJoy        = "joy"
	EmotionConflicted = "conflicted"
	EmotionFear       = "fear"
)

// Key-point tags form a closed set.
const (
	KeyPointPromise = "important_promise"
	KeyPointSecret  = "secret_revealed"
	KeyPointApology = "apology_or_forgiveness"
)

// EmotionCategory couples a canonical emotion name with its display label
// (used inside generated memory sentences) and detection keywords.
type EmotionCategory struct {
	Name     string
	Label    string
	Keywords []string
}

// emotionCategories is scanned in declaration order; a category is recorded
// once per turn on its first keyword hit in the response text.
var emotionCategories = []EmotionCategory{
	{Name: EmotionAnger, Label: "愤怒", Keywords: []string{"愤怒", "生气", "发怒", "怒火", "气愤"}},
	{Name: EmotionSadness, Label: "悲伤", Keywords: []string{"悲伤", "难过", "伤心", "哭泣", "悲痛"}},
	{Name: EmotionJoy, Label: "喜悦", Keywords: []string{"高兴", "开心", "喜悦", "微笑", "快乐"}},
	{Name: EmotionConflicted, Label: "矛盾", Keywords: []string{"矛盾", "纠结", "犹豫", "挣扎", "困惑"}},
	{Name: EmotionFear, Label: "恐惧", Keywords: []string{"害怕", "恐惧", "惊慌", "担心", "畏惧"}},
}

// topicKeywords is the domain topic vocabulary. A topic is recorded when its
// keyword appears in either the response or the user message.
var topicKeywords = []string{
	"剑", "战斗", "和平", "队友", "回忆", "魔王", "王国",
	"魔法", "使命", "复仇", "爱情", "友谊", "牺牲",
}

// keyPointRules maps keyword groups to key-point tags. The checks are
// independent: one turn can carry several tags.
var keyPointRules = []struct {
	tag      string
	keywords []string
}{
	{KeyPointPromise, []string{"永远", "承诺", "保证", "誓言", "约定"}},
	{KeyPointSecret, []string{"秘密", "真相", "隐藏", "揭露"}},
	{KeyPointApology, []string{"对不起", "抱歉", "原谅", "悔恨"}},
}

// Signals is the ephemeral extraction result for one turn. It is consumed by
// the relationship state machine and then discarded; nothing here persists.
type Signals struct {
	// Emotions lists detected emotion names in category declaration order.
	Emotions []string
	// Topics lists detected topic keywords.
	Topics []string
	// KeyPoints lists detected key-point tags.
	KeyPoints []string
}

// Extract scans the persona response and the user input and returns the
// turn's signals. It is pure and deterministic.
func Extract(responseText, userInput string) Signals {
	var sig Signals

	for _, cat := range emotionCategories {
		for _, kw := range cat.Keywords {
			if strings.Contains(responseText, kw) {
				sig.Emotions = append(sig.Emotions, cat.Name)
				break
			}
		}
	}

	for _, topic := range topicKeywords {
		if strings.Contains(responseText, topic) || strings.Contains(userInput, topic) {
			sig.Topics = append(sig.Topics, topic)
		}
	}

	combined := responseText + " " + userInput
	for _, rule := range keyPointRules {
		for _, kw := range rule.keywords {
			if strings.Contains(combined, kw) {
				sig.KeyPoints = append(sig.KeyPoints, rule.tag)
				break
			}
		}
	}

	return sig
}

// Label returns the display label for a canonical emotion name, or the name
// itself when it is not part of the vocabulary.
func Label(emotion string) string {
	for _, cat := range emotionCategories {
		if cat.Name == emotion {
			return cat.Label
		}
	}
	return emotion
}

// HasKeyPoint reports whether sig carries the given key-point tag.
func (s Signals) HasKeyPoint(tag string) bool {
	for _, kp := range s.KeyPoints {
		if kp == tag {
			return true
		}
	}
	return false
}
