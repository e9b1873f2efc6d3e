// Package importer 驗證成分匯入文件並將其寫入知識庫。
package importer

import (
	"fmt"
	"strings"
	"time"

	"gut-health-kb/internal/core/ingredient"
	"gut-health-kb/internal/pkg/common"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// RequiredSections 匯入文件必須存在的頂層區段
var RequiredSections = []string{
	"ingredient",
	"microbiome_effects",
	"metabolic_effects",
	"symptom_effects",
	"citations",
	"interactions",
}

var dosageTextKeys = map[string]bool{
	"unit": true, "frequency": true, "duration": true, "form": true,
	"timing": true, "notes": true, "concentration": true,
}

var dosageNumberKeys = map[string]bool{
	"min_dose": true, "max_dose": true, "min_cfu": true, "max_cfu": true,
}

const minPublicationYear = 1900

// Validator 匯入文件驗證器，不持有狀態，可並行使用
type Validator struct {
	// MaxPublicationYear 出版年份上限，0 表示使用今年
	MaxPublicationYear int
}

// NewValidator 創建驗證器
func NewValidator() *Validator {
	return &Validator{}
}

func (v *Validator) maxYear() int {
	if v.MaxPublicationYear > 0 {
		return v.MaxPublicationYear
	}
	return time.Now().Year()
}

// Validate 解析並驗證匯入文件。
// JSON 無法解析時回傳 error；其餘問題全部收集在 FieldErrors，
// 有任何欄位錯誤時不回傳成分資料。
func (v *Validator) Validate(raw []byte) (*ingredient.Complete, FieldErrors, error) {
	var doc interface{}
	if err := common.ParseJSONBytes(raw, &doc); err != nil {
		return nil, nil, common.ErrInvalidDocument.Wrap(err)
	}
	root, ok := doc.(map[string]interface{})
	if !ok {
		return nil, nil, common.ErrInvalidDocument.Wrap(fmt.Errorf("document must be a JSON object"))
	}

	errs := FieldErrors{}
	for _, section := range RequiredSections {
		if _, ok := root[section]; !ok {
			errs = append(errs, FieldError{Field: section, Message: "missing required section"})
		}
	}

	complete := &ingredient.Complete{}
	complete.Ingredient = v.ingredient(root, &errs)
	owner := complete.Ingredient.ID

	for _, o := range list(root, "microbiome_effects", &errs) {
		complete.MicrobiomeEffects = append(complete.MicrobiomeEffects, ingredient.MicrobiomeEffect{
			ID:             recordID(o),
			IngredientID:   ownerRef(o, owner),
			BacteriaName:   o.str("bacteria_name", true, 255),
			BacteriaLevel:  ingredient.BacteriaLevel(o.enum("bacteria_level", true, func(s string) bool { return ingredient.BacteriaLevel(s).Valid() })),
			EffectType:     o.str("effect_type", false, 100),
			EffectStrength: ingredient.EffectStrength(o.enum("effect_strength", true, validStrength)),
			Confidence:     o.rounded("confidence", 0, 1, 2),
			Mechanism:      o.str("mechanism", false, 0),
		})
	}

	for _, o := range list(root, "metabolic_effects", &errs) {
		complete.MetabolicEffects = append(complete.MetabolicEffects, ingredient.MetabolicEffect{
			ID:              recordID(o),
			IngredientID:    ownerRef(o, owner),
			EffectName:      o.str("effect_name", true, 255),
			EffectCategory:  o.str("effect_category", false, 100),
			ImpactDirection: ingredient.EffectDirection(o.enum("impact_direction", true, validDirection)),
			EffectStrength:  ingredient.EffectStrength(o.enum("effect_strength", true, validStrength)),
			Confidence:      o.rounded("confidence", 0, 1, 2),
			DosageDependent: o.boolean("dosage_dependent"),
			Mechanism:       o.str("mechanism", false, 0),
		})
	}

	for _, o := range list(root, "symptom_effects", &errs) {
		complete.SymptomEffects = append(complete.SymptomEffects, ingredient.SymptomEffect{
			ID:              recordID(o),
			IngredientID:    ownerRef(o, owner),
			SymptomName:     o.str("symptom_name", true, 255),
			SymptomCategory: o.str("symptom_category", false, 100),
			EffectDirection: ingredient.EffectDirection(o.enum("effect_direction", true, validDirection)),
			EffectStrength:  ingredient.EffectStrength(o.enum("effect_strength", true, validStrength)),
			Confidence:      o.rounded("confidence", 0, 1, 2),
			DosageDependent: o.boolean("dosage_dependent"),
			PopulationNotes: o.str("population_notes", false, 0),
		})
	}

	for _, o := range list(root, "citations", &errs) {
		complete.Citations = append(complete.Citations, v.citation(o, owner))
	}

	for _, o := range list(root, "interactions", &errs) {
		complete.Interactions = append(complete.Interactions, interaction(o, owner))
	}

	if len(errs) > 0 {
		return nil, errs, nil
	}

	if complete.Ingredient.ConfidenceScore == nil {
		if avg, ok := complete.AverageConfidence(); ok {
			complete.Ingredient.ConfidenceScore = &avg
		}
	}
	complete.EnsureCollections()
	return complete, nil, nil
}

func validStrength(s string) bool  { return ingredient.EffectStrength(s).Valid() }
func validDirection(s string) bool { return ingredient.EffectDirection(s).Valid() }

// recordID 沿用既有 id，缺少時產生新的
func recordID(o object) uuid.UUID {
	id, present := o.id("id")
	if !present {
		return uuid.New()
	}
	return id
}

// ownerRef 回填或檢查子記錄指向的成分 id
func ownerRef(o object, owner uuid.UUID) uuid.UUID {
	ref, present := o.id("ingredient_id")
	if !present {
		return owner
	}
	// 無法解析的 id 已在 o.id 回報
	if ref == uuid.Nil && !o.nilUUID("ingredient_id") {
		return owner
	}
	if ref != owner {
		o.fail("ingredient_id", "must reference the owning ingredient")
	}
	return owner
}

func (v *Validator) ingredient(root map[string]interface{}, errs *FieldErrors) ingredient.Ingredient {
	values, ok := root["ingredient"].(map[string]interface{})
	if !ok {
		if _, present := root["ingredient"]; present {
			*errs = append(*errs, FieldError{Field: "ingredient", Message: "must be an object"})
		}
		values = map[string]interface{}{}
	}
	o := object{values: values, path: "ingredient", errs: errs}

	ing := ingredient.Ingredient{
		ID:          recordID(o),
		Name:        o.str("name", true, 255),
		Category:    ingredient.Category(o.enum("category", true, func(s string) bool { return ingredient.Category(s).Valid() })),
		Description: o.str("description", false, 0),
		GutScore:    o.rounded("gut_score", 0, 10, 1),
		SafetyNotes: o.str("safety_notes", false, 0),
	}
	ing.ConfidenceScore = o.rounded("confidence_score", 0, 1, 2)

	if _, present := o.get("slug"); present {
		ing.Slug = o.str("slug", true, 255)
		if ing.Slug != "" && !ingredient.ValidSlug(ing.Slug) {
			o.fail("slug", "must contain only lowercase letters, numbers and hyphens")
		}
	} else if ing.Name != "" {
		ing.Slug = ingredient.GenerateSlug(ing.Name)
		if ing.Slug == "" {
			o.fail("slug", "cannot be generated from name %q", ing.Name)
		}
	}

	if raw, present := o.get("aliases"); present {
		items, ok := raw.([]interface{})
		if !ok {
			o.fail("aliases", "must be an array of strings")
		} else {
			aliases := make([]string, 0, len(items))
			for i, item := range items {
				s, ok := item.(string)
				if !ok {
					o.fail(fmt.Sprintf("aliases[%d]", i), "must be a string")
					continue
				}
				aliases = append(aliases, s)
			}
			ing.Aliases = datatypes.NewJSONSlice(aliases)
		}
	}

	if raw, present := o.get("dosage_info"); present {
		ing.DosageInfo = dosage(o, raw)
	}
	return ing
}

// dosage 將字串或物件形式的劑量資訊正規化
func dosage(o object, raw interface{}) *ingredient.DosageInfo {
	var values map[string]interface{}
	switch t := raw.(type) {
	case map[string]interface{}:
		values = t
	case string:
		trimmed := strings.TrimSpace(t)
		if trimmed == "" {
			return nil
		}
		var parsed map[string]interface{}
		if strings.HasPrefix(trimmed, "{") && common.ParseJSON(trimmed, &parsed) == nil {
			values = parsed
		} else {
			return &ingredient.DosageInfo{Notes: t}
		}
	default:
		o.fail("dosage_info", "must be an object or a string")
		return nil
	}

	d := &ingredient.DosageInfo{}
	sub := object{values: values, path: o.at("dosage_info"), errs: o.errs}
	for key := range values {
		if !dosageTextKeys[key] && !dosageNumberKeys[key] {
			sub.fail(key, "unknown dosage field")
		}
	}

	textField := func(key string) string {
		v, ok := sub.get(key)
		if !ok {
			return ""
		}
		s, ok := text(v)
		if !ok {
			sub.fail(key, "must be a string")
		}
		return s
	}
	numberField := func(key string) *float64 {
		return sub.float(key, 0, 1e18)
	}

	d.MinDose = numberField("min_dose")
	d.MaxDose = numberField("max_dose")
	d.MinCFU = numberField("min_cfu")
	d.MaxCFU = numberField("max_cfu")
	d.Unit = textField("unit")
	d.Frequency = textField("frequency")
	d.Duration = textField("duration")
	d.Form = textField("form")
	d.Timing = textField("timing")
	d.Notes = textField("notes")
	d.Concentration = textField("concentration")

	if d.MinDose != nil && d.MaxDose != nil && *d.MinDose > *d.MaxDose {
		sub.fail("min_dose", "must not exceed max_dose")
	}
	return d
}

func (v *Validator) citation(o object, owner uuid.UUID) ingredient.Citation {
	c := ingredient.Citation{
		ID:              recordID(o),
		IngredientID:    ownerRef(o, owner),
		Title:           o.str("title", true, 0),
		Authors:         o.str("authors", true, 0),
		Journal:         o.str("journal", false, 255),
		PublicationYear: o.integer("publication_year", minPublicationYear, v.maxYear()),
		StudyType:       ingredient.StudyType(o.enum("study_type", true, func(s string) bool { return ingredient.StudyType(s).Valid() })),
		SampleSize:      o.integer("sample_size", 1, int(^uint32(0)>>1)),
		StudyQuality:    o.rounded("study_quality", 0, 1, 2),
	}

	if raw, present := o.get("pmid"); present {
		s, ok := text(raw)
		switch {
		case !ok:
			o.fail("pmid", "must be a string")
		case len(s) > 20:
			o.fail("pmid", "must be at most 20 characters")
		case !ingredient.ValidPMID(s):
			o.fail("pmid", "must be 1 to 8 digits")
		default:
			c.PMID = s
		}
	}

	if doi := o.str("doi", false, 255); doi != "" {
		if !ingredient.ValidDOI(doi) {
			o.fail("doi", "must start with 10.<registrant>/")
		} else {
			c.DOI = doi
		}
	}
	return c
}

func interaction(o object, owner uuid.UUID) ingredient.Interaction {
	in := ingredient.Interaction{
		ID:                recordID(o),
		InteractionType:   ingredient.InteractionType(o.enum("interaction_type", true, func(s string) bool { return ingredient.InteractionType(s).Valid() })),
		EffectDescription: o.str("effect_description", false, 0),
		Confidence:        o.rounded("confidence", 0, 1, 2),
	}

	first, present := o.id("ingredient_1_id")
	if !present {
		first = owner
	}
	second, present := o.id("ingredient_2_id")
	if !present {
		o.fail("ingredient_2_id", "field required")
	}
	in.Ingredient1ID = first
	in.Ingredient2ID = second

	for _, key := range []string{"ingredient_1_id", "ingredient_2_id"} {
		if o.nilUUID(key) {
			o.fail(key, "must reference an ingredient")
		}
	}
	if first == uuid.Nil || second == uuid.Nil {
		return in
	}
	if first == second {
		o.fail("ingredient_2_id", "ingredients cannot interact with themselves")
		return in
	}
	if first != owner && second != owner {
		o.fail("ingredient_1_id", "must reference the owning ingredient")
	}
	return in
}
