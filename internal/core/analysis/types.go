package analysis

// Category 成分分析類別
type Category string

const (
	CategoryProbiotic       Category = "probiotic"
	CategoryPrebiotic       Category = "prebiotic"
	CategoryFiber           Category = "fiber"
	CategoryDigestiveEnzyme Category = "digestive_enzyme"
	CategoryPostbiotic      Category = "postbiotic"
	CategoryTherapeutic     Category = "therapeutic"
	CategoryMineral         Category = "mineral"
	CategoryVitamin         Category = "vitamin"
	CategoryHerb            Category = "herb"
	CategoryAntioxidant     Category = "antioxidant"
	CategoryUnknown         Category = "unknown"
)

// Categories 全部類別，依宣告順序
var Categories = []Category{
	CategoryProbiotic,
	CategoryPrebiotic,
	CategoryFiber,
	CategoryDigestiveEnzyme,
	CategoryPostbiotic,
	CategoryTherapeutic,
	CategoryMineral,
	CategoryVitamin,
	CategoryHerb,
	CategoryAntioxidant,
	CategoryUnknown,
}

// Valid 檢查類別是否屬於封閉集合
func (c Category) Valid() bool {
	switch c {
	case CategoryProbiotic, CategoryPrebiotic, CategoryFiber, CategoryDigestiveEnzyme,
		CategoryPostbiotic, CategoryTherapeutic, CategoryMineral, CategoryVitamin,
		CategoryHerb, CategoryAntioxidant, CategoryUnknown:
		return true
	}
	return false
}

// InteractionType 交互作用類型
type InteractionType string

const (
	InteractionSynergistic  InteractionType = "synergistic"
	InteractionAntagonistic InteractionType = "antagonistic"
	InteractionNeutral      InteractionType = "neutral"
	InteractionUnknown      InteractionType = "unknown"
)

// Valid 檢查交互作用類型
func (t InteractionType) Valid() bool {
	switch t {
	case InteractionSynergistic, InteractionAntagonistic, InteractionNeutral, InteractionUnknown:
		return true
	}
	return false
}

// Strength 交互作用強度
type Strength string

const (
	StrengthWeak     Strength = "weak"
	StrengthModerate Strength = "moderate"
	StrengthStrong   Strength = "strong"
)

// Valid 檢查強度
func (s Strength) Valid() bool {
	switch s {
	case StrengthWeak, StrengthModerate, StrengthStrong:
		return true
	}
	return false
}

// Timing 建議服用時段
type Timing string

const (
	TimingWithMeals    Timing = "with_meals"
	TimingEmptyStomach Timing = "empty_stomach"
	TimingBeforeBed    Timing = "before_bed"
	TimingMorning      Timing = "morning"
	TimingAnytime      Timing = "anytime"
)

// Timings 全部時段，依輸出順序
var Timings = []Timing{
	TimingWithMeals,
	TimingEmptyStomach,
	TimingBeforeBed,
	TimingMorning,
	TimingAnytime,
}

// Valid 檢查時段
func (t Timing) Valid() bool {
	switch t {
	case TimingWithMeals, TimingEmptyStomach, TimingBeforeBed, TimingMorning, TimingAnytime:
		return true
	}
	return false
}

// StrengthTable 各強度對應的倍數
type StrengthTable struct {
	Weak     float64 `yaml:"weak" json:"weak"`
	Moderate float64 `yaml:"moderate" json:"moderate"`
	Strong   float64 `yaml:"strong" json:"strong"`
}

// For 取得強度倍數
func (t StrengthTable) For(s Strength) float64 {
	switch s {
	case StrengthWeak:
		return t.Weak
	case StrengthModerate:
		return t.Moderate
	case StrengthStrong:
		return t.Strong
	}
	return 0
}

// Interaction 兩個成分間偵測到的交互作用
type Interaction struct {
	Ingredient1 string          `json:"ingredient1"`
	Ingredient2 string          `json:"ingredient2"`
	Type        InteractionType `json:"interaction_type"`
	Strength    Strength        `json:"strength"`
	Confidence  float64         `json:"confidence"`
	Description string          `json:"description"`
	Mechanism   string          `json:"mechanism,omitempty"`
}

// MealScore 餐點評分明細
type MealScore struct {
	TotalScore         float64            `json:"total_score"`
	IndividualScores   map[string]float64 `json:"individual_scores"`
	InteractionBonus   float64            `json:"interaction_bonus"`
	InteractionPenalty float64            `json:"interaction_penalty"`
	DiversityBonus     float64            `json:"diversity_bonus"`
}

// Diversity 類別多樣性分析
type Diversity struct {
	CategoryDistribution map[Category]int `json:"category_distribution"`
	UniqueCategories     int              `json:"unique_categories"`
	DiversityScore       float64          `json:"diversity_score"`
	Recommendations      []string         `json:"recommendations"`
}

// TimingAnalysis 服用時段分析
type TimingAnalysis struct {
	TimingGroups    map[Timing][]string `json:"timing_groups"`
	Recommendations []string            `json:"recommendations"`
	Conflicts       []string            `json:"conflicts"`
}

// GroupedInteractions 依類型分組的交互作用
type GroupedInteractions struct {
	Synergistic  []Interaction `json:"synergistic"`
	Antagonistic []Interaction `json:"antagonistic"`
	Neutral      []Interaction `json:"neutral"`
}

// MealAnalysis 完整餐點分析結果
type MealAnalysis struct {
	GutScore         float64             `json:"gut_score"`
	Score            MealScore           `json:"score"`
	IndividualScores map[string]float64  `json:"individual_scores"`
	Categories       map[string]Category `json:"categories"`
	Interactions     GroupedInteractions `json:"interactions"`
	Diversity        Diversity           `json:"diversity"`
	Recommendations  []string            `json:"recommendations"`
	Timing           TimingAnalysis      `json:"timing"`
	Warnings         []string            `json:"warnings"`
}
