package relationship

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/bdobrica/Kokoro/internal/kokoro/signal"
)

// TurnCounter reports the authoritative number of persisted messages for a
// (user, persona) pair. Stage recomputation uses this fresh count rather
// than the interaction counter carried in user traits; the two can diverge
// (failed or retried turns) and the persisted count is the source of truth.
type TurnCounter interface {
	CountTurns(ctx context.Context, userID, personaID string) (int, error)
}

// strongEmotions is the subset of the emotion vocabulary that produces a
// memory entry on its own. Conflicted feelings do not qualify.
var strongEmotions = map[string]bool{
	signal.EmotionAnger:   true,
	signal.EmotionSadness: true,
	signal.EmotionJoy:     true,
	signal.EmotionFear:    true,
}

// emotionTraits maps detected emotions to inferred user personality traits.
// Fear has no mapping.
var emotionTraits = map[string]string{
	signal.EmotionAnger:      "直接",
	signal.EmotionSadness:    "感性",
	signal.EmotionJoy:        "乐观",
	signal.EmotionConflicted: "谨慎",
}

// significantKeywords trigger a quoted memory when they appear in either
// side of the exchange: promise, vow, secret, truth, apology and thanks
// terms.
var significantKeywords = []string{
	"永远", "承诺", "保证", "誓言", "秘密", "真相", "对不起", "谢谢",
}

// memorySentenceRe splits an exchange into sentences when hunting for the
// one that carries a significant keyword.
var memorySentenceRe = regexp.MustCompile(`[。！？.!?]`)

// minMemorySentenceRunes filters out fragments too short to be worth
// remembering.
const minMemorySentenceRunes = 5

// memoryQuoteRunes caps how much of the source sentence a quoted memory
// keeps.
const memoryQuoteRunes = 50

// Machine advances relationship state. It is stateless apart from its
// collaborators and safe to share across pairs as long as the caller
// serializes Advance per pair.
type Machine struct {
	counter TurnCounter
	now     func() time.Time
}

// NewMachine returns a Machine using the given turn counter.
func NewMachine(counter TurnCounter) *Machine {
	return &Machine{counter: counter, now: time.Now}
}

// WithClock overrides the machine's time source. Tests use this to pin
// timestamps.
func (m *Machine) WithClock(now func() time.Time) *Machine {
	m.now = now
	return m
}

// Advance applies one completed turn to st: extracts durable memories,
// updates inferred user traits and topics, and recomputes the stage from
// the authoritative turn count. st is mutated in place; the caller persists
// it afterwards.
//
// A stage value outside the defined enum is a logic error and is surfaced,
// never coerced. A turn-count query failure propagates unchanged and leaves
// only the timestamps untouched; the caller must treat the turn as failed.
func (m *Machine) Advance(ctx context.Context, st *State, userID, personaID, userInput, responseText string, sig signal.Signals) error {
	if st == nil {
		return fmt.Errorf("relationship: advance on nil state")
	}
	if !st.Stage.Valid() {
		return fmt.Errorf("relationship: invariant violation: stage %d outside defined range", int(st.Stage))
	}

	now := m.now().UTC()
	st.LastInteractionAt = now
	st.UpdatedAt = now

	// Durable memories, bounded per turn and overall.
	st.KeyMemories = append(st.KeyMemories, extractKeyMemories(userInput, responseText, sig)...)
	if len(st.KeyMemories) > MaxKeyMemories {
		st.KeyMemories = st.KeyMemories[len(st.KeyMemories)-MaxKeyMemories:]
	}

	// Inferred user traits.
	st.UserTraits.InteractionCount++
	st.UserTraits.LastInteraction = now
	for _, topic := range sig.Topics {
		st.UserTraits.Interests = appendUnique(st.UserTraits.Interests, topic)
	}
	for _, emotion := range sig.Emotions {
		if trait, ok := emotionTraits[emotion]; ok {
			st.UserTraits.PersonalityTraits = appendUnique(st.UserTraits.PersonalityTraits, trait)
		}
	}

	// Conversation topics, most recent kept.
	for _, topic := range sig.Topics {
		st.ConversationTopics = appendUnique(st.ConversationTopics, topic)
	}
	if len(st.ConversationTopics) > MaxConversationTopics {
		st.ConversationTopics = st.ConversationTopics[len(st.ConversationTopics)-MaxConversationTopics:]
	}

	// Stage recomputation over the authoritative persisted count.
	count, err := m.counter.CountTurns(ctx, userID, personaID)
	if err != nil {
		return fmt.Errorf("relationship: count turns for stage: %w", err)
	}
	next := stageForCount(count)
	if next == StageFriendly && len(st.KeyMemories) > memoryOverrideCount {
		next = StageIntimate
	}
	if st.Stage != next {
		st.Stage = next
	}

	return nil
}

// extractKeyMemories derives at most two memory strings from one exchange:
// one for the first strong emotion detected, one quoting the first sentence
// that carries a significant keyword.
func extractKeyMemories(userInput, responseText string, sig signal.Signals) []string {
	var memories []string

	for _, emotion := range sig.Emotions {
		if strongEmotions[emotion] {
			memories = append(memories, "对话中表达了强烈的"+signal.Label(emotion)+"情绪")
			break
		}
	}

	combined := userInput + " " + responseText
	for _, keyword := range significantKeywords {
		if !strings.Contains(combined, keyword) {
			continue
		}
		if sentence := firstSentenceWith(combined, keyword); sentence != "" {
			memories = append(memories, "提到："+clipRunes(sentence, memoryQuoteRunes)+"...")
		}
		break
	}

	if len(memories) > maxNewMemoriesPerTurn {
		memories = memories[:maxNewMemoriesPerTurn]
	}
	for i, mem := range memories {
		memories[i] = clipRunes(mem, MaxMemoryRunes)
	}
	return memories
}

// firstSentenceWith returns the first sentence of text containing keyword
// and longer than the minimum, or "".
func firstSentenceWith(text, keyword string) string {
	for _, sentence := range memorySentenceRe.Split(text, -1) {
		sentence = strings.TrimSpace(sentence)
		if len([]rune(sentence)) > minMemorySentenceRunes && strings.Contains(sentence, keyword) {
			return sentence
		}
	}
	return ""
}

func clipRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func appendUnique(list []string, item string) []string {
	for _, existing := range list {
		if existing == item {
			return list
		}
	}
	return append(list, item)
}
