// Package relationship owns the durable per-(user, persona) state (key
// memories, inferred user traits, conversation topics and the discrete
// relationship stage) and the rules that advance it once per completed
// turn.
//
// The package is pure: it performs no I/O of its own. The single external
// dependency is the TurnCounter collaborator, whose failure is fatal for
// stage recomputation because no safe default stage exists.
package relationship

import (
	"fmt"
	"time"
)

// Stage is the discrete relationship-closeness level between a user and a
// persona. Stages are ordered; normal traffic only ever moves them forward.
type Stage int

const (
	StageStranger Stage = iota
	StageFamiliar
	StageFriendly
	StageIntimate
)

// Stage thresholds over the authoritative persisted-turn count.
const (
	familiarThreshold = 5
	friendlyThreshold = 15
	intimateThreshold = 30

	// memoryOverrideCount promotes Friendly to Intimate when more than this
	// many key memories have accumulated.
	memoryOverrideCount = 8
)

// Collection bounds enforced on every advance.
const (
	MaxKeyMemories        = 15
	MaxConversationTopics = 10
	MaxMemoryRunes        = 100
	maxNewMemoriesPerTurn = 2
)

var stageNames = [...]string{"stranger", "familiar", "friendly", "intimate"}

var stageLabels = [...]string{"陌生期", "熟悉期", "友好期", "亲密期"}

// String returns the canonical storage name of the stage, or a diagnostic
// form for out-of-range values.
func (s Stage) String() string {
	if !s.Valid() {
		return fmt.Sprintf("stage(%d)", int(s))
	}
	return stageNames[s]
}

// Label returns the display label used inside prompts.
func (s Stage) Label() string {
	if !s.Valid() {
		return ""
	}
	return stageLabels[s]
}

// Valid reports whether s is one of the defined stages.
func (s Stage) Valid() bool {
	return s >= StageStranger && s <= StageIntimate
}

// ParseStage maps a canonical stage name back to its Stage. Unknown names
// are an error; stored state must never silently coerce.
func ParseStage(name string) (Stage, error) {
	for i, n := range stageNames {
		if n == name {
			return Stage(i), nil
		}
	}
	return 0, fmt.Errorf("relationship: unknown stage %q", name)
}

// stageForCount maps the authoritative turn count onto a stage.
func stageForCount(count int) Stage {
	switch {
	case count < familiarThreshold:
		return StageStranger
	case count < friendlyThreshold:
		return StageFamiliar
	case count < intimateThreshold:
		return StageFriendly
	default:
		return StageIntimate
	}
}

// Traits are the characteristics inferred about the human user over time.
// Interests and PersonalityTraits keep set semantics with insertion order.
type Traits struct {
	InteractionCount  int       `json:"interaction_count"`
	LastInteraction   time.Time `json:"last_interaction"`
	Interests         []string  `json:"interests,omitempty"`
	PersonalityTraits []string  `json:"personality_traits,omitempty"`
}

// State is the relationship state for one (user, persona) pair. It is owned
// exclusively by the caller for the duration of a turn; the caller persists
// it after Advance and must serialize turns per pair.
type State struct {
	Stage              Stage     `json:"stage"`
	KeyMemories        []string  `json:"key_memories,omitempty"`
	UserTraits         Traits    `json:"user_traits"`
	ConversationTopics []string  `json:"conversation_topics,omitempty"`
	LastInteractionAt  time.Time `json:"last_interaction_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// NewState returns the initial state for a first-time pairing: Stranger,
// with empty collections.
func NewState() *State {
	return &State{Stage: StageStranger}
}

// RecentMemories returns up to n of the newest key memories, oldest of the
// window first.
func (s *State) RecentMemories(n int) []string {
	if n <= 0 || len(s.KeyMemories) == 0 {
		return nil
	}
	if len(s.KeyMemories) <= n {
		return s.KeyMemories
	}
	return s.KeyMemories[len(s.KeyMemories)-n:]
}
