package analysis

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// 分類命中但類別權重表沒有該類別時使用的分數
const defaultMatchedWeight = 6.0

// CategoryEntry 名稱片段與類別的對應，順序即比對順序
type CategoryEntry struct {
	Key      string   `yaml:"key" json:"key"`
	Category Category `yaml:"category" json:"category"`
}

// RuleKey 已排序的類別配對
type RuleKey struct {
	A Category
	B Category
}

// NewRuleKey 建立與順序無關的類別配對
func NewRuleKey(a, b Category) RuleKey {
	if b < a {
		a, b = b, a
	}
	return RuleKey{A: a, B: b}
}

// InteractionRule 類別層級的交互作用規則
type InteractionRule struct {
	Categories  [2]Category     `yaml:"categories" json:"categories"`
	Type        InteractionType `yaml:"type" json:"interaction_type"`
	Strength    Strength        `yaml:"strength" json:"strength"`
	Confidence  float64         `yaml:"confidence" json:"confidence"`
	Description string          `yaml:"description" json:"description"`
	Mechanism   string          `yaml:"mechanism" json:"mechanism"`
}

// DiversityStep 多樣性加分的階梯
type DiversityStep struct {
	MinCategories int     `yaml:"min_categories" json:"min_categories"`
	Bonus         float64 `yaml:"bonus" json:"bonus"`
}

// KnowledgeBase 分類與交互作用查詢表，建立後唯讀
type KnowledgeBase struct {
	entries       []CategoryEntry
	exact         map[string]Category
	weights       map[Category]float64
	matchedWeight float64
	rules         map[RuleKey]InteractionRule
	bonus         StrengthTable
	penalty       StrengthTable
	steps         []DiversityStep
	timing        map[Category]Timing
}

// knowledgeFile YAML 覆寫檔格式，未提供的區段沿用預設值
type knowledgeFile struct {
	Categories           []CategoryEntry      `yaml:"categories"`
	CategoryWeights      map[Category]float64 `yaml:"category_weights"`
	MatchedDefaultWeight *float64             `yaml:"matched_default_weight"`
	InteractionRules     []InteractionRule    `yaml:"interaction_rules"`
	BonusMultipliers     *StrengthTable       `yaml:"bonus_multipliers"`
	PenaltyMultipliers   *StrengthTable       `yaml:"penalty_multipliers"`
	DiversitySteps       []DiversityStep      `yaml:"diversity_steps"`
	Timing               map[Category]Timing  `yaml:"timing"`
}

func defaultEntries() []CategoryEntry {
	return []CategoryEntry{
		{"lactobacillus", CategoryProbiotic},
		{"bifidobacterium", CategoryProbiotic},
		{"saccharomyces", CategoryProbiotic},
		{"inulin", CategoryPrebiotic},
		{"fos", CategoryPrebiotic},
		{"gos", CategoryPrebiotic},
		{"psyllium", CategoryFiber},
		{"butyrate", CategoryPostbiotic},
		{"digestive_enzymes", CategoryDigestiveEnzyme},
		{"glutamine", CategoryTherapeutic},
		{"zinc", CategoryMineral},
		{"magnesium", CategoryMineral},
		{"calcium", CategoryMineral},
		{"iron", CategoryMineral},
		{"vitamin_d", CategoryVitamin},
		{"curcumin", CategoryAntioxidant},
		{"berberine", CategoryTherapeutic},
		{"ginger", CategoryHerb},
		{"peppermint", CategoryHerb},
	}
}

func defaultWeights() map[Category]float64 {
	return map[Category]float64{
		CategoryProbiotic:       8.5,
		CategoryPrebiotic:       7.8,
		CategoryDigestiveEnzyme: 7.2,
		CategoryPostbiotic:      8.0,
		CategoryTherapeutic:     6.5,
		CategoryFiber:           7.0,
		CategoryAntioxidant:     6.8,
		CategoryMineral:         6.0,
		CategoryVitamin:         5.8,
		CategoryHerb:            6.2,
		CategoryUnknown:         5.0,
	}
}

func defaultRules() []InteractionRule {
	return []InteractionRule{
		{
			Categories:  [2]Category{CategoryProbiotic, CategoryPrebiotic},
			Type:        InteractionSynergistic,
			Strength:    StrengthStrong,
			Confidence:  0.9,
			Description: "Prebiotics feed probiotics, enhancing their effectiveness",
			Mechanism:   "Prebiotic fibers provide nutrients for probiotic bacteria",
		},
		{
			Categories:  [2]Category{CategoryMineral, CategoryMineral},
			Type:        InteractionAntagonistic,
			Strength:    StrengthModerate,
			Confidence:  0.8,
			Description: "Calcium can reduce iron absorption",
			Mechanism:   "Calcium competes with iron for absorption pathways",
		},
	}
}

func defaultTiming() map[Category]Timing {
	return map[Category]Timing{
		CategoryProbiotic:       TimingWithMeals,
		CategoryPrebiotic:       TimingWithMeals,
		CategoryDigestiveEnzyme: TimingWithMeals,
		CategoryMineral:         TimingWithMeals,
		CategoryVitamin:         TimingWithMeals,
		CategoryTherapeutic:     TimingEmptyStomach,
		CategoryHerb:            TimingAnytime,
		CategoryAntioxidant:     TimingAnytime,
	}
}

// DefaultKnowledgeBase 回傳預設查詢表
func DefaultKnowledgeBase() *KnowledgeBase {
	kb, err := build(knowledgeFile{})
	if err != nil {
		panic(fmt.Sprintf("default knowledge base is invalid: %v", err))
	}
	return kb
}

// LoadKnowledgeBase 讀取 YAML 覆寫檔並與預設值合併；path 為空時回傳預設值
func LoadKnowledgeBase(path string) (*KnowledgeBase, error) {
	if path == "" {
		return DefaultKnowledgeBase(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read knowledge file: %w", err)
	}
	return ParseKnowledgeBase(data)
}

// ParseKnowledgeBase 解析 YAML 覆寫內容
func ParseKnowledgeBase(data []byte) (*KnowledgeBase, error) {
	var f knowledgeFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse knowledge file: %w", err)
	}
	return build(f)
}

func build(f knowledgeFile) (*KnowledgeBase, error) {
	kb := &KnowledgeBase{
		entries:       defaultEntries(),
		weights:       defaultWeights(),
		matchedWeight: defaultMatchedWeight,
		bonus:         StrengthTable{Weak: 0.2, Moderate: 0.5, Strong: 1.0},
		penalty:       StrengthTable{Weak: 0.3, Moderate: 0.7, Strong: 1.2},
		steps: []DiversityStep{
			{MinCategories: 4, Bonus: 1.0},
			{MinCategories: 3, Bonus: 0.6},
			{MinCategories: 2, Bonus: 0.3},
		},
		timing: defaultTiming(),
	}
	rules := defaultRules()

	if len(f.Categories) > 0 {
		kb.entries = f.Categories
	}
	for c, w := range f.CategoryWeights {
		kb.weights[c] = w
	}
	if f.MatchedDefaultWeight != nil {
		kb.matchedWeight = *f.MatchedDefaultWeight
	}
	if len(f.InteractionRules) > 0 {
		rules = f.InteractionRules
	}
	if f.BonusMultipliers != nil {
		kb.bonus = *f.BonusMultipliers
	}
	if f.PenaltyMultipliers != nil {
		kb.penalty = *f.PenaltyMultipliers
	}
	if len(f.DiversitySteps) > 0 {
		kb.steps = append([]DiversityStep(nil), f.DiversitySteps...)
	}
	for c, t := range f.Timing {
		kb.timing[c] = t
	}

	if err := kb.index(rules); err != nil {
		return nil, err
	}
	return kb, nil
}

// index 驗證內容並建立查詢索引
func (kb *KnowledgeBase) index(rules []InteractionRule) error {
	kb.exact = make(map[string]Category, len(kb.entries))
	for i, e := range kb.entries {
		if e.Key == "" {
			return fmt.Errorf("categories[%d]: empty key", i)
		}
		if !e.Category.Valid() || e.Category == CategoryUnknown {
			return fmt.Errorf("categories[%d]: invalid category %q", i, e.Category)
		}
		if _, exists := kb.exact[e.Key]; !exists {
			kb.exact[e.Key] = e.Category
		}
	}

	for c := range kb.weights {
		if !c.Valid() {
			return fmt.Errorf("category_weights: invalid category %q", c)
		}
	}

	kb.rules = make(map[RuleKey]InteractionRule, len(rules))
	for i, r := range rules {
		if !r.Categories[0].Valid() || !r.Categories[1].Valid() {
			return fmt.Errorf("interaction_rules[%d]: invalid categories %v", i, r.Categories)
		}
		if !r.Type.Valid() {
			return fmt.Errorf("interaction_rules[%d]: invalid type %q", i, r.Type)
		}
		if !r.Strength.Valid() {
			return fmt.Errorf("interaction_rules[%d]: invalid strength %q", i, r.Strength)
		}
		if r.Confidence < 0 || r.Confidence > 1 {
			return fmt.Errorf("interaction_rules[%d]: confidence must be between 0 and 1", i)
		}
		kb.rules[NewRuleKey(r.Categories[0], r.Categories[1])] = r
	}

	sort.SliceStable(kb.steps, func(i, j int) bool {
		return kb.steps[i].MinCategories > kb.steps[j].MinCategories
	})

	for c, t := range kb.timing {
		if !c.Valid() {
			return fmt.Errorf("timing: invalid category %q", c)
		}
		if !t.Valid() {
			return fmt.Errorf("timing: invalid bucket %q for %s", t, c)
		}
	}
	return nil
}

// Entries 回傳分類表副本
func (kb *KnowledgeBase) Entries() []CategoryEntry {
	return append([]CategoryEntry(nil), kb.entries...)
}

// Weight 回傳類別的基礎分數
func (kb *KnowledgeBase) Weight(c Category) float64 {
	if w, ok := kb.weights[c]; ok {
		return w
	}
	if c == CategoryUnknown {
		return defaultWeights()[CategoryUnknown]
	}
	return kb.matchedWeight
}

// Rule 查詢兩個類別間的規則
func (kb *KnowledgeBase) Rule(a, b Category) (InteractionRule, bool) {
	r, ok := kb.rules[NewRuleKey(a, b)]
	return r, ok
}

// Rules 回傳所有規則，依類別配對排序
func (kb *KnowledgeBase) Rules() []InteractionRule {
	out := make([]InteractionRule, 0, len(kb.rules))
	for _, r := range kb.rules {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		ki := NewRuleKey(out[i].Categories[0], out[i].Categories[1])
		kj := NewRuleKey(out[j].Categories[0], out[j].Categories[1])
		if ki.A != kj.A {
			return ki.A < kj.A
		}
		return ki.B < kj.B
	})
	return out
}

// BonusMultiplier 協同作用加分倍數
func (kb *KnowledgeBase) BonusMultiplier(s Strength) float64 {
	return kb.bonus.For(s)
}

// PenaltyMultiplier 拮抗作用扣分倍數
func (kb *KnowledgeBase) PenaltyMultiplier(s Strength) float64 {
	return kb.penalty.For(s)
}

// DiversityBonus 依不同類別數量回傳加分
func (kb *KnowledgeBase) DiversityBonus(uniqueCategories int) float64 {
	for _, step := range kb.steps {
		if uniqueCategories >= step.MinCategories {
			return step.Bonus
		}
	}
	return 0
}

// TimingFor 回傳類別建議時段，未列出者為 anytime
func (kb *KnowledgeBase) TimingFor(c Category) Timing {
	if t, ok := kb.timing[c]; ok {
		return t
	}
	return TimingAnytime
}
