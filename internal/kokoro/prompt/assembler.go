// Package prompt assembles the system and per-turn user prompts for a
// persona from its canonical profile and the current relationship state.
//
// Assembly is pure string building: no I/O, no mutation, deterministic for
// a given set of inputs apart from the caller-supplied timestamp. Missing
// optional profile fields render as empty sections, never as errors.
package prompt

import (
	"fmt"
	"strings"
	"time"

	"github.com/bdobrica/Kokoro/internal/kokoro/format"
	"github.com/bdobrica/Kokoro/internal/kokoro/profile"
	"github.com/bdobrica/Kokoro/internal/kokoro/relationship"
)

// recentMemoryCount is how many of the newest key memories the system
// prompt carries.
const recentMemoryCount = 3

// stageDescriptions are the fixed tone directives per relationship stage.
// Unknown stages render with an empty description.
var stageDescriptions = map[relationship.Stage]string{
	relationship.StageStranger: "警惕、正式、保持距离，对用户持有敌意或怀疑",
	relationship.StageFamiliar: "稍微放松，但仍保持礼貌，开始对用户有所了解",
	relationship.StageFriendly: "更加信任，愿意分享想法，可能有复杂的感情",
	relationship.StageIntimate: "非常信任，可能展现脆弱一面，关系深厚",
}

// OutputFormat is the persona's reply constraint block. Zero values fall
// back to the fixed defaults from the format package.
type OutputFormat struct {
	MaxLength   int
	FormatRules string
	Example     string
}

func (o OutputFormat) withDefaults() OutputFormat {
	if o.MaxLength <= 0 {
		o.MaxLength = format.DefaultMaxLength
	}
	if o.FormatRules == "" {
		o.FormatRules = format.DefaultFormatRules
	}
	if o.Example == "" {
		o.Example = format.DefaultExample
	}
	return o
}

// UserInfo describes the human user as seen by the persona.
type UserInfo struct {
	Name   string
	Gender string
	Traits string
}

// BuildSystemPrompt renders the persona's system prompt: identity fields,
// ability lists, background, the stage directive, the newest key memories
// (oldest of the window first) and the inferred user traits, closed by the
// output constraints.
//
// state may be nil (first turn before any state exists); the memory and
// trait sections are then omitted.
func BuildSystemPrompt(p *profile.Profile, backstory string, stage relationship.Stage, state *relationship.State, out OutputFormat) string {
	out = out.withDefaults()

	name := p.Name
	if name == "" {
		name = "未知角色"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "# 角色设定\n你正在扮演角色：%s\n\n", name)

	fmt.Fprintf(&sb, "## 基本信息\n性格：%s\n性别：%s\n年龄：%s\n外貌：%s\n服装：%s\n\n",
		p.Personality, p.Gender, p.Age, p.Appearance, p.Clothing)

	fmt.Fprintf(&sb, "## 能力与特质\n技能：%s\n特质：%s\n\n",
		strings.Join(p.Skills, ", "), strings.Join(p.Traits, ", "))

	fmt.Fprintf(&sb, "## 背景故事\n%s\n\n", backstory)

	fmt.Fprintf(&sb, "## 当前关系阶段：%s\n%s\n", stage.Label(), stageDescriptions[stage])

	sb.WriteString(memorySection(state))
	sb.WriteString(traitSection(state))

	fmt.Fprintf(&sb, "\n## 输出要求\n1. 回复长度：不超过%d字\n2. 格式：%s\n3. 根据当前阶段演绎角色的神态、动作和情绪\n4. 参考示例格式：\n%s\n\n",
		out.MaxLength, out.FormatRules, out.Example)

	sb.WriteString("## 重要提示\n- 保持角色一致性，不要跳出角色\n- 根据阶段调整语气和态度\n- 自然地推进剧情发展")

	return sb.String()
}

// memorySection renders the newest key memories, numbered with the oldest
// of the window first.
func memorySection(state *relationship.State) string {
	if state == nil {
		return ""
	}
	recent := state.RecentMemories(recentMemoryCount)
	if len(recent) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("\n## 重要记忆\n")
	for i, mem := range recent {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, mem)
	}
	return sb.String()
}

// traitSection renders the inferred user traits as key: value lines.
func traitSection(state *relationship.State) string {
	if state == nil {
		return ""
	}
	t := state.UserTraits
	if t.InteractionCount == 0 && len(t.Interests) == 0 && len(t.PersonalityTraits) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("\n## 用户特征\n")
	fmt.Fprintf(&sb, "- interaction_count: %d\n", t.InteractionCount)
	if !t.LastInteraction.IsZero() {
		fmt.Fprintf(&sb, "- last_interaction: %s\n", t.LastInteraction.UTC().Format(time.RFC3339))
	}
	if len(t.Interests) > 0 {
		fmt.Fprintf(&sb, "- interests: %s\n", strings.Join(t.Interests, ", "))
	}
	if len(t.PersonalityTraits) > 0 {
		fmt.Fprintf(&sb, "- personality_traits: %s\n", strings.Join(t.PersonalityTraits, ", "))
	}
	return sb.String()
}

// BuildUserPrompt renders the per-turn user prompt: the current timestamp,
// what the persona knows about the human user, the raw message, and the
// closing instruction naming the persona to reply as.
func BuildUserPrompt(userInput string, info UserInfo, personaDisplayName string, now time.Time) string {
	name := info.Name
	if name == "" {
		name = "用户"
	}
	gender := info.Gender
	if gender == "" {
		gender = "未知"
	}
	persona := personaDisplayName
	if persona == "" {
		persona = "角色"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "当前时间：%s\n\n", now.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&sb, "用户信息：\n- 称呼：%s\n- 性别：%s\n- 特征：%s\n\n", name, gender, info.Traits)
	fmt.Fprintf(&sb, "用户消息：%s\n\n", userInput)
	fmt.Fprintf(&sb, "请以%s的身份回复：", persona)
	return sb.String()
}
