package ingredient

// Category 成分在資料庫中的分類
type Category string

const (
	CategoryProbiotic  Category = "probiotic"
	CategoryPrebiotic  Category = "prebiotic"
	CategoryPostbiotic Category = "postbiotic"
	CategoryFiber      Category = "fiber"
	CategoryPolyphenol Category = "polyphenol"
	CategoryFattyAcid  Category = "fatty_acid"
	CategoryVitamin    Category = "vitamin"
	CategoryMineral    Category = "mineral"
	CategoryHerb       Category = "herb"
	CategoryOther      Category = "other"
)

// Valid 檢查分類
func (c Category) Valid() bool {
	switch c {
	case CategoryProbiotic, CategoryPrebiotic, CategoryPostbiotic, CategoryFiber, CategoryPolyphenol,
		CategoryFattyAcid, CategoryVitamin, CategoryMineral, CategoryHerb, CategoryOther:
		return true
	}
	return false
}

// EffectDirection 效果方向
type EffectDirection string

const (
	DirectionPositive EffectDirection = "positive"
	DirectionNegative EffectDirection = "negative"
	DirectionNeutral  EffectDirection = "neutral"
)

// Valid 檢查效果方向
func (d EffectDirection) Valid() bool {
	switch d {
	case DirectionPositive, DirectionNegative, DirectionNeutral:
		return true
	}
	return false
}

// EffectStrength 效果強度
type EffectStrength string

const (
	StrengthWeak     EffectStrength = "weak"
	StrengthModerate EffectStrength = "moderate"
	StrengthStrong   EffectStrength = "strong"
)

// Valid 檢查效果強度
func (s EffectStrength) Valid() bool {
	switch s {
	case StrengthWeak, StrengthModerate, StrengthStrong:
		return true
	}
	return false
}

// BacteriaLevel 對菌群數量的影響
type BacteriaLevel string

const (
	BacteriaIncrease BacteriaLevel = "increase"
	BacteriaDecrease BacteriaLevel = "decrease"
	BacteriaModulate BacteriaLevel = "modulate"
)

// Valid 檢查菌群影響
func (b BacteriaLevel) Valid() bool {
	switch b {
	case BacteriaIncrease, BacteriaDecrease, BacteriaModulate:
		return true
	}
	return false
}

// InteractionType 成分交互作用類型
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

// StudyType 研究類型
type StudyType string

const (
	StudyRCT           StudyType = "rct"
	StudyObservational StudyType = "observational"
	StudyMetaAnalysis  StudyType = "meta_analysis"
	StudyReview        StudyType = "review"
	StudyCaseStudy     StudyType = "case_study"
	StudyInVitro       StudyType = "in_vitro"
	StudyAnimal        StudyType = "animal"
)

// Valid 檢查研究類型
func (s StudyType) Valid() bool {
	switch s {
	case StudyRCT, StudyObservational, StudyMetaAnalysis, StudyReview, StudyCaseStudy, StudyInVitro, StudyAnimal:
		return true
	}
	return false
}
