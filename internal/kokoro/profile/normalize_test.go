package profile_test

import (
	"reflect"
	"testing"

	"github.com/bdobrica/Kokoro/internal/kokoro/profile"
)

// TestNormalize_ChineseAliases verifies the canonical scenario: a profile
// authored entirely with Chinese field names normalizes onto canonical
// fields and validates against the default schema.
func TestNormalize_ChineseAliases(t *testing.T) {
	p := profile.Normalize("莉娜", map[string]any{
		"姓名": "莉娜",
		"性格": "冷静",
	})

	if p.Name != "莉娜" {
		t.Errorf("Name = %q, want 莉娜", p.Name)
	}
	if p.Personality != "冷静" {
		t.Errorf("Personality = %q, want 冷静", p.Personality)
	}
	if p.SchemaType != profile.VariantDefault {
		t.Errorf("SchemaType = %q, want default", p.SchemaType)
	}
	if !p.Validated {
		t.Error("Validated = false, want true")
	}
	if p.Warning != "" {
		t.Errorf("unexpected warning %q", p.Warning)
	}
}

func TestNormalize_VariantDetection(t *testing.T) {
	tests := []struct {
		name string
		raw  map[string]any
		want profile.Variant
	}{
		{
			name: "fantasy keyword in value",
			raw:  map[string]any{"name": "亚瑟", "personality": "勇敢", "backstory": "一名骑士，持有圣剑"},
			want: profile.VariantFantasy,
		},
		{
			name: "scifi keyword",
			raw:  map[string]any{"name": "诺娃", "personality": "理性", "backstory": "星际飞船的领航员"},
			want: profile.VariantSciFi,
		},
		{
			name: "modern keyword",
			raw:  map[string]any{"name": "小林", "personality": "开朗", "backstory": "都市白领的日常"},
			want: profile.VariantModern,
		},
		{
			name: "historical keyword",
			raw:  map[string]any{"name": "李将军", "personality": "沉稳", "backstory": "古代王朝的名将"},
			want: profile.VariantHistorical,
		},
		{
			name: "fantasy wins over later sets",
			raw:  map[string]any{"name": "龙骑士", "personality": "坚毅", "backstory": "现代都市中的龙骑士"},
			want: profile.VariantFantasy,
		},
		{
			name: "no keywords selects default",
			raw:  map[string]any{"name": "阿青", "personality": "温柔"},
			want: profile.VariantDefault,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := profile.Normalize("测试", tt.raw)
			if p.SchemaType != tt.want {
				t.Errorf("SchemaType = %q, want %q", p.SchemaType, tt.want)
			}
			if !p.Validated {
				t.Errorf("Validated = false, warning: %q", p.Warning)
			}
		})
	}
}

// TestNormalize_Idempotent re-normalizes a normalized profile's canonical
// field map and expects identical canonical fields.
func TestNormalize_Idempotent(t *testing.T) {
	raw := map[string]any{
		"姓名": "艾拉",
		"性格": "沉默寡言",
		"性别": "女性",
		"技能": []any{"剑术", "追踪"},
		"武器": map[string]any{"name": "月影", "type": "长剑", "abilities": "吸收月光"},
		"称号": "夜之守望者", // custom field, no canonical mapping
	}

	first := profile.Normalize("艾拉", raw)
	second := profile.Normalize("艾拉", first.Fields())

	if !first.Validated || !second.Validated {
		t.Fatalf("both passes should validate: first=%v second=%v (warnings %q / %q)",
			first.Validated, second.Validated, first.Warning, second.Warning)
	}
	if !reflect.DeepEqual(first.Fields(), second.Fields()) {
		t.Errorf("canonical fields changed on second pass:\nfirst:  %#v\nsecond: %#v",
			first.Fields(), second.Fields())
	}
	if second.SchemaType != first.SchemaType {
		t.Errorf("SchemaType changed: %q → %q", first.SchemaType, second.SchemaType)
	}
}

func TestNormalize_CustomFieldsPreserved(t *testing.T) {
	p := profile.Normalize("琳", map[string]any{
		"name":        "琳",
		"personality": "活泼",
		"favorite_tea": "乌龙茶",
		"口头禅":         "没问题的！",
	})

	if !p.Validated {
		t.Fatalf("expected validated profile, warning: %q", p.Warning)
	}
	if got := p.Custom["favorite_tea"]; got != "乌龙茶" {
		t.Errorf("Custom[favorite_tea] = %v, want 乌龙茶", got)
	}
	if got := p.Custom["口头禅"]; got != "没问题的！" {
		t.Errorf("Custom[口头禅] = %v, want 没问题的！", got)
	}
	if _, ok := p.Fields()["favorite_tea"]; !ok {
		t.Error("Fields() dropped custom key favorite_tea")
	}
}

func TestNormalize_JSONStringInput(t *testing.T) {
	p := profile.Normalize("凯", `{"name": "凯", "personality": "果断", "gender": "男性"}`)
	if !p.Validated {
		t.Fatalf("expected validated profile, warning: %q", p.Warning)
	}
	if p.Gender != "男性" {
		t.Errorf("Gender = %q, want 男性", p.Gender)
	}
}

// TestNormalize_RepairedJSON exercises the lenient repair path: single
// quotes, bare keys and a trailing comma.
func TestNormalize_RepairedJSON(t *testing.T) {
	p := profile.Normalize("梅", `{name: '梅', personality: '倔强',}`)
	if !p.Validated {
		t.Fatalf("expected validated profile after repair, warning: %q", p.Warning)
	}
	if p.Name != "梅" || p.Personality != "倔强" {
		t.Errorf("got Name=%q Personality=%q", p.Name, p.Personality)
	}
}

func TestNormalize_OpaqueStringBecomesContent(t *testing.T) {
	p := profile.Normalize("无名", "她是一个喜欢雨天的画家")

	// No name/personality field, so validation fails and the profile is kept
	// raw with the text under a content key.
	if p.Validated {
		t.Fatal("expected raw fallback for opaque text")
	}
	if p.SchemaType != profile.VariantRaw {
		t.Errorf("SchemaType = %q, want raw", p.SchemaType)
	}
	if p.Name != "无名" {
		t.Errorf("Name = %q, want persona name fallback", p.Name)
	}
	if got := p.Custom["content"]; got != "她是一个喜欢雨天的画家" {
		t.Errorf("Custom[content] = %v", got)
	}
	if p.Warning == "" {
		t.Error("expected a validation warning")
	}
}

func TestNormalize_InvalidGenderDegradesToRaw(t *testing.T) {
	p := profile.Normalize("小七", map[string]any{
		"name":        "小七",
		"personality": "古灵精怪",
		"gender":      "喵",
	})

	if p.Validated {
		t.Fatal("expected validation failure for out-of-enum gender")
	}
	if p.SchemaType != profile.VariantRaw {
		t.Errorf("SchemaType = %q, want raw", p.SchemaType)
	}
	// Best-effort fields survive.
	if p.Name != "小七" || p.Personality != "古灵精怪" {
		t.Errorf("best-effort fields lost: Name=%q Personality=%q", p.Name, p.Personality)
	}
}

func TestNormalize_NilInputStub(t *testing.T) {
	p := profile.Normalize("蕾娜", nil)

	if p.Name != "蕾娜" {
		t.Errorf("Name = %q, want persona name", p.Name)
	}
	if p.Personality != "配置解析失败" {
		t.Errorf("Personality = %q, want 配置解析失败", p.Personality)
	}
	if p.Validated {
		t.Error("stub must not be marked validated")
	}
	if p.Warning == "" {
		t.Error("stub must carry an error message")
	}
}

func TestNormalize_BlankNameRejected(t *testing.T) {
	p := profile.Normalize("影", map[string]any{"name": "   ", "personality": "冷漠"})
	if p.Validated {
		t.Fatal("whitespace-only name must not validate")
	}
	if p.Name != "影" {
		t.Errorf("Name = %q, want persona name fallback", p.Name)
	}
}

func TestNormalize_WeaponAndTeammates(t *testing.T) {
	p := profile.Normalize("瑟恩", map[string]any{
		"name":        "瑟恩",
		"personality": "孤傲",
		"weapon":      map[string]any{"name": "霜咬", "type": "双刃斧"},
		"teammates": []any{
			map[string]any{"name": "米拉", "role": "治疗师", "status": "alive"},
			map[string]any{"name": "老约翰", "role": "铁匠"},
		},
	})

	if !p.Validated {
		t.Fatalf("expected validated profile, warning: %q", p.Warning)
	}
	if p.Weapon == nil || p.Weapon.Name != "霜咬" || p.Weapon.Type != "双刃斧" {
		t.Errorf("Weapon = %+v", p.Weapon)
	}
	if len(p.Teammates) != 2 || p.Teammates[0].Role != "治疗师" {
		t.Errorf("Teammates = %+v", p.Teammates)
	}
}

func TestTemplate_FallsBackToDefault(t *testing.T) {
	def := profile.Template(profile.VariantDefault)
	if _, ok := def["backstory"]; !ok {
		t.Error("default template missing backstory")
	}
	fantasy := profile.Template(profile.VariantFantasy)
	if _, ok := fantasy["magic_system"]; !ok {
		t.Error("fantasy template missing magic_system")
	}
	historical := profile.Template(profile.VariantHistorical)
	if !reflect.DeepEqual(historical, def) {
		t.Error("variants without a template should fall back to default")
	}
}
