// Package ingredient 定義成分知識庫的持久化模型與匯入文件結構。
package ingredient

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// DosageInfo 劑量資訊，匯入時不論字串或物件都會正規化成此結構
type DosageInfo struct {
	MinDose       *float64 `json:"min_dose,omitempty"`
	MaxDose       *float64 `json:"max_dose,omitempty"`
	Unit          string   `json:"unit,omitempty"`
	Frequency     string   `json:"frequency,omitempty"`
	Duration      string   `json:"duration,omitempty"`
	MinCFU        *float64 `json:"min_cfu,omitempty"`
	MaxCFU        *float64 `json:"max_cfu,omitempty"`
	Form          string   `json:"form,omitempty"`
	Timing        string   `json:"timing,omitempty"`
	Notes         string   `json:"notes,omitempty"`
	Concentration string   `json:"concentration,omitempty"`
}

// Ingredient 成分主檔
type Ingredient struct {
	ID              uuid.UUID                   `gorm:"type:uuid;primaryKey" json:"id"`
	Name            string                      `gorm:"size:255;not null;uniqueIndex" json:"name"`
	Slug            string                      `gorm:"size:255;not null;uniqueIndex" json:"slug"`
	Aliases         datatypes.JSONSlice[string] `json:"aliases"`
	Category        Category                    `gorm:"size:50;not null;index" json:"category"`
	Description     string                      `gorm:"type:text" json:"description,omitempty"`
	GutScore        *float64                    `gorm:"index" json:"gut_score,omitempty"`
	ConfidenceScore *float64                    `json:"confidence_score,omitempty"`
	DosageInfo      *DosageInfo                 `gorm:"serializer:json" json:"dosage_info,omitempty"`
	SafetyNotes     string                      `gorm:"type:text" json:"safety_notes,omitempty"`
	CreatedAt       time.Time                   `json:"created_at"`
	UpdatedAt       time.Time                   `json:"updated_at"`
}

// TableName 指定資料表名稱
func (Ingredient) TableName() string { return "ingredients" }

// MicrobiomeEffect 對特定菌群的影響
type MicrobiomeEffect struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	IngredientID   uuid.UUID      `gorm:"type:uuid;not null;index" json:"ingredient_id"`
	BacteriaName   string         `gorm:"size:255;not null;index" json:"bacteria_name"`
	BacteriaLevel  BacteriaLevel  `gorm:"size:20;not null" json:"bacteria_level"`
	EffectType     string         `gorm:"size:100" json:"effect_type,omitempty"`
	EffectStrength EffectStrength `gorm:"size:20;not null" json:"effect_strength"`
	Confidence     *float64       `json:"confidence,omitempty"`
	Mechanism      string         `gorm:"type:text" json:"mechanism,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// TableName 指定資料表名稱
func (MicrobiomeEffect) TableName() string { return "microbiome_effects" }

// MetabolicEffect 代謝影響
type MetabolicEffect struct {
	ID              uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	IngredientID    uuid.UUID       `gorm:"type:uuid;not null;index" json:"ingredient_id"`
	EffectName      string          `gorm:"size:255;not null" json:"effect_name"`
	EffectCategory  string          `gorm:"size:100" json:"effect_category,omitempty"`
	ImpactDirection EffectDirection `gorm:"size:20;not null" json:"impact_direction"`
	EffectStrength  EffectStrength  `gorm:"size:20;not null" json:"effect_strength"`
	Confidence      *float64        `json:"confidence,omitempty"`
	DosageDependent bool            `json:"dosage_dependent"`
	Mechanism       string          `gorm:"type:text" json:"mechanism,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// TableName 指定資料表名稱
func (MetabolicEffect) TableName() string { return "metabolic_effects" }

// SymptomEffect 症狀影響
type SymptomEffect struct {
	ID              uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	IngredientID    uuid.UUID       `gorm:"type:uuid;not null;index" json:"ingredient_id"`
	SymptomName     string          `gorm:"size:255;not null" json:"symptom_name"`
	SymptomCategory string          `gorm:"size:100" json:"symptom_category,omitempty"`
	EffectDirection EffectDirection `gorm:"size:20;not null" json:"effect_direction"`
	EffectStrength  EffectStrength  `gorm:"size:20;not null" json:"effect_strength"`
	Confidence      *float64        `json:"confidence,omitempty"`
	DosageDependent bool            `json:"dosage_dependent"`
	PopulationNotes string          `gorm:"type:text" json:"population_notes,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// TableName 指定資料表名稱
func (SymptomEffect) TableName() string { return "symptom_effects" }

// Citation 文獻引用
type Citation struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	IngredientID    uuid.UUID `gorm:"type:uuid;not null;index" json:"ingredient_id"`
	PMID            string    `gorm:"column:pmid;size:20" json:"pmid,omitempty"`
	DOI             string    `gorm:"column:doi;size:255" json:"doi,omitempty"`
	Title           string    `gorm:"type:text;not null" json:"title"`
	Authors         string    `gorm:"type:text;not null" json:"authors"`
	Journal         string    `gorm:"size:255" json:"journal,omitempty"`
	PublicationYear *int      `json:"publication_year,omitempty"`
	StudyType       StudyType `gorm:"size:30;not null" json:"study_type"`
	SampleSize      *int      `json:"sample_size,omitempty"`
	StudyQuality    *float64  `json:"study_quality,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// TableName 指定資料表名稱
func (Citation) TableName() string { return "citations" }

// Interaction 兩個成分間的已知交互作用
type Interaction struct {
	ID                uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	Ingredient1ID     uuid.UUID       `gorm:"column:ingredient_1_id;type:uuid;not null;index" json:"ingredient_1_id"`
	Ingredient2ID     uuid.UUID       `gorm:"column:ingredient_2_id;type:uuid;not null;index" json:"ingredient_2_id"`
	InteractionType   InteractionType `gorm:"size:20;not null" json:"interaction_type"`
	EffectDescription string          `gorm:"type:text" json:"effect_description,omitempty"`
	Confidence        *float64        `json:"confidence,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// TableName 指定資料表名稱
func (Interaction) TableName() string { return "ingredient_interactions" }

// Complete 成分與其所有子記錄，即匯入文件格式與 repository 的輸入
type Complete struct {
	Ingredient        Ingredient         `json:"ingredient"`
	MicrobiomeEffects []MicrobiomeEffect `json:"microbiome_effects"`
	MetabolicEffects  []MetabolicEffect  `json:"metabolic_effects"`
	SymptomEffects    []SymptomEffect    `json:"symptom_effects"`
	Citations         []Citation         `json:"citations"`
	Interactions      []Interaction      `json:"interactions"`
}

// Summary 成分摘要統計
type Summary struct {
	TotalEffects      int      `json:"total_effects"`
	AverageConfidence *float64 `json:"average_confidence,omitempty"`
	CitationsCount    int      `json:"citations_count"`
}

// Models 回傳需要遷移的所有模型
func Models() []interface{} {
	return []interface{}{
		&Ingredient{},
		&MicrobiomeEffect{},
		&MetabolicEffect{},
		&SymptomEffect{},
		&Citation{},
		&Interaction{},
	}
}

// TotalEffectsCount 三種效果的總數
func (c *Complete) TotalEffectsCount() int {
	return len(c.MicrobiomeEffects) + len(c.MetabolicEffects) + len(c.SymptomEffects)
}

// AverageConfidence 所有效果信心值的平均（四捨五入到小數第二位），沒有任何信心值時 ok 為 false
func (c *Complete) AverageConfidence() (avg float64, ok bool) {
	var sum float64
	var n int
	add := func(v *float64) {
		if v != nil {
			sum += *v
			n++
		}
	}
	for i := range c.MicrobiomeEffects {
		add(c.MicrobiomeEffects[i].Confidence)
	}
	for i := range c.MetabolicEffects {
		add(c.MetabolicEffects[i].Confidence)
	}
	for i := range c.SymptomEffects {
		add(c.SymptomEffects[i].Confidence)
	}
	if n == 0 {
		return 0, false
	}
	return roundTo(sum/float64(n), 2), true
}

// Summary 產生摘要
func (c *Complete) Summary() Summary {
	s := Summary{
		TotalEffects:   c.TotalEffectsCount(),
		CitationsCount: len(c.Citations),
	}
	if avg, ok := c.AverageConfidence(); ok {
		s.AverageConfidence = &avg
	}
	return s
}

// EnsureCollections 將 nil 子記錄清單換成空清單，讓序列化結果保有所有區段
func (c *Complete) EnsureCollections() {
	if c.MicrobiomeEffects == nil {
		c.MicrobiomeEffects = []MicrobiomeEffect{}
	}
	if c.MetabolicEffects == nil {
		c.MetabolicEffects = []MetabolicEffect{}
	}
	if c.SymptomEffects == nil {
		c.SymptomEffects = []SymptomEffect{}
	}
	if c.Citations == nil {
		c.Citations = []Citation{}
	}
	if c.Interactions == nil {
		c.Interactions = []Interaction{}
	}
}

// UpdatableColumns 可透過部分更新修改的欄位
var UpdatableColumns = []string{
	"name",
	"slug",
	"aliases",
	"category",
	"description",
	"gut_score",
	"confidence_score",
	"dosage_info",
	"safety_notes",
}

// CoreFields 成分核心欄位（不含 id 與時間戳記），用於覆寫既有成分
func (i *Ingredient) CoreFields() map[string]interface{} {
	return map[string]interface{}{
		"name":             i.Name,
		"slug":             i.Slug,
		"aliases":          i.Aliases,
		"category":         i.Category,
		"description":      i.Description,
		"gut_score":        i.GutScore,
		"confidence_score": i.ConfidenceScore,
		"dosage_info":      i.DosageInfo,
		"safety_notes":     i.SafetyNotes,
	}
}
