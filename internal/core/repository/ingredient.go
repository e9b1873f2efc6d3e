// Package repository 以 gorm 實現成分知識庫的持久化
package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"gut-health-kb/internal/core/ingredient"
	"gut-health-kb/internal/pkg/common"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	defaultPerPage = 20
	maxPerPage     = 100
	defaultLimit   = 50
)

// IngredientRepo 成分資料存取介面
type IngredientRepo interface {
	Create(ctx context.Context, c *ingredient.Complete) (uuid.UUID, error)
	GetByName(ctx context.Context, name string) (*ingredient.Ingredient, error)
	GetByID(ctx context.Context, id uuid.UUID) (*ingredient.Ingredient, error)
	GetComplete(ctx context.Context, name string) (*ingredient.Complete, error)
	Update(ctx context.Context, id uuid.UUID, fields map[string]interface{}) (bool, error)
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
	Replace(ctx context.Context, c *ingredient.Complete) (uuid.UUID, error)
	Search(ctx context.Context, filter SearchFilter) ([]ingredient.Ingredient, int64, error)
	SearchByBacteria(ctx context.Context, bacteria string, limit int) ([]ingredient.Ingredient, error)
	HighConfidence(ctx context.Context, minConfidence float64, limit int) ([]ingredient.Ingredient, error)
}

// Observer 接收資料庫與快取指標
type Observer interface {
	RecordDBOperation(operation string, err error, duration time.Duration)
	RecordDBRetry(operation string)
	RecordCacheLookup(cache string, hit bool)
}

type noopObserver struct{}

func (noopObserver) RecordDBOperation(string, error, time.Duration) {}
func (noopObserver) RecordDBRetry(string)                           {}
func (noopObserver) RecordCacheLookup(string, bool)                 {}

// Options repository 選項
type Options struct {
	MaxRetries    int
	RetryInterval time.Duration
	Cache         Cache
	Observer      Observer
}

// SearchFilter 成分查詢條件
type SearchFilter struct {
	Category    ingredient.Category
	MinGutScore *float64
	Page        int
	PerPage     int
}

// Normalize 套用分頁預設值與上限
func (f *SearchFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PerPage < 1 {
		f.PerPage = defaultPerPage
	}
	if f.PerPage > maxPerPage {
		f.PerPage = maxPerPage
	}
}

type ingredientRepo struct {
	db            *gorm.DB
	cache         Cache
	observer      Observer
	maxRetries    int
	retryInterval time.Duration
}

// NewIngredientRepo 創建成分 repository
func NewIngredientRepo(db *gorm.DB, opts Options) IngredientRepo {
	r := &ingredientRepo{
		db:            db,
		cache:         opts.Cache,
		observer:      opts.Observer,
		maxRetries:    opts.MaxRetries,
		retryInterval: opts.RetryInterval,
	}
	if r.observer == nil {
		r.observer = noopObserver{}
	}
	if r.retryInterval <= 0 {
		r.retryInterval = 500 * time.Millisecond
	}
	return r
}

// orderByScore gut_score 由高到低（NULL 置後），同分依名稱
func orderByScore(tx *gorm.DB) *gorm.DB {
	return tx.Order("gut_score IS NULL").Order("gut_score DESC").Order("name ASC")
}

func (r *ingredientRepo) Create(ctx context.Context, c *ingredient.Complete) (uuid.UUID, error) {
	err := r.run(ctx, "create", func(db *gorm.DB) error {
		return db.Transaction(func(tx *gorm.DB) error {
			exists, err := nameExists(tx, c.Ingredient.Name)
			if err != nil {
				return err
			}
			if exists {
				return common.ErrDuplicateIngredient.WithMessage(
					fmt.Sprintf("ingredient already exists: %s", c.Ingredient.Name))
			}
			return insertComplete(tx, c)
		})
	})
	if err != nil {
		return uuid.Nil, err
	}

	r.invalidate(ctx, &c.Ingredient)
	common.LogInfo("成分已建立",
		zap.String("id", c.Ingredient.ID.String()),
		zap.String("name", c.Ingredient.Name),
		zap.Int("effects", c.TotalEffectsCount()),
		zap.Int("citations", len(c.Citations)),
	)
	return c.Ingredient.ID, nil
}

func (r *ingredientRepo) Replace(ctx context.Context, c *ingredient.Complete) (uuid.UUID, error) {
	var previous []ingredient.Ingredient
	err := r.run(ctx, "replace", func(db *gorm.DB) error {
		previous = nil
		return db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Where("LOWER(name) = LOWER(?) OR id = ?", strings.TrimSpace(c.Ingredient.Name), c.Ingredient.ID).
				Find(&previous).Error; err != nil {
				return err
			}
			for i := range previous {
				if _, err := deleteComplete(tx, previous[i].ID); err != nil {
					return err
				}
			}
			return insertComplete(tx, c)
		})
	})
	if err != nil {
		return uuid.Nil, err
	}

	for i := range previous {
		r.invalidate(ctx, &previous[i])
	}
	r.invalidate(ctx, &c.Ingredient)
	common.LogInfo("成分已覆寫",
		zap.String("id", c.Ingredient.ID.String()),
		zap.String("name", c.Ingredient.Name),
		zap.Int("replaced", len(previous)),
	)
	return c.Ingredient.ID, nil
}

func nameExists(tx *gorm.DB, name string) (bool, error) {
	var count int64
	if err := tx.Model(&ingredient.Ingredient{}).
		Where("LOWER(name) = LOWER(?)", strings.TrimSpace(name)).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// insertComplete 在交易中寫入成分與所有子記錄
func insertComplete(tx *gorm.DB, c *ingredient.Complete) error {
	assignIDs(c)
	if err := tx.Create(&c.Ingredient).Error; err != nil {
		return err
	}
	if len(c.MicrobiomeEffects) > 0 {
		if err := tx.Create(&c.MicrobiomeEffects).Error; err != nil {
			return err
		}
	}
	if len(c.MetabolicEffects) > 0 {
		if err := tx.Create(&c.MetabolicEffects).Error; err != nil {
			return err
		}
	}
	if len(c.SymptomEffects) > 0 {
		if err := tx.Create(&c.SymptomEffects).Error; err != nil {
			return err
		}
	}
	if len(c.Citations) > 0 {
		if err := tx.Create(&c.Citations).Error; err != nil {
			return err
		}
	}
	if len(c.Interactions) > 0 {
		if err := tx.Create(&c.Interactions).Error; err != nil {
			return err
		}
	}
	return nil
}

// assignIDs 補上缺少的 id 並讓子記錄指向成分
func assignIDs(c *ingredient.Complete) {
	if c.Ingredient.ID == uuid.Nil {
		c.Ingredient.ID = uuid.New()
	}
	owner := c.Ingredient.ID
	for i := range c.MicrobiomeEffects {
		if c.MicrobiomeEffects[i].ID == uuid.Nil {
			c.MicrobiomeEffects[i].ID = uuid.New()
		}
		c.MicrobiomeEffects[i].IngredientID = owner
	}
	for i := range c.MetabolicEffects {
		if c.MetabolicEffects[i].ID == uuid.Nil {
			c.MetabolicEffects[i].ID = uuid.New()
		}
		c.MetabolicEffects[i].IngredientID = owner
	}
	for i := range c.SymptomEffects {
		if c.SymptomEffects[i].ID == uuid.Nil {
			c.SymptomEffects[i].ID = uuid.New()
		}
		c.SymptomEffects[i].IngredientID = owner
	}
	for i := range c.Citations {
		if c.Citations[i].ID == uuid.Nil {
			c.Citations[i].ID = uuid.New()
		}
		c.Citations[i].IngredientID = owner
	}
	for i := range c.Interactions {
		if c.Interactions[i].ID == uuid.Nil {
			c.Interactions[i].ID = uuid.New()
		}
	}
}

// deleteComplete 在交易中刪除成分與所有子記錄，回傳是否刪除了成分
func deleteComplete(tx *gorm.DB, id uuid.UUID) (bool, error) {
	children := []interface{}{
		&ingredient.MicrobiomeEffect{},
		&ingredient.MetabolicEffect{},
		&ingredient.SymptomEffect{},
		&ingredient.Citation{},
	}
	for _, model := range children {
		if err := tx.Where("ingredient_id = ?", id).Delete(model).Error; err != nil {
			return false, err
		}
	}
	if err := tx.Where("ingredient_1_id = ? OR ingredient_2_id = ?", id, id).
		Delete(&ingredient.Interaction{}).Error; err != nil {
		return false, err
	}
	res := tx.Where("id = ?", id).Delete(&ingredient.Ingredient{})
	return res.RowsAffected > 0, res.Error
}

func (r *ingredientRepo) GetByName(ctx context.Context, name string) (*ingredient.Ingredient, error) {
	if strings.TrimSpace(name) == "" {
		return nil, common.ErrValidation.WithMessage("ingredient name cannot be empty")
	}
	return r.cached(ctx, nameKey(name), "get_by_name", func(db *gorm.DB, ing *ingredient.Ingredient) error {
		return db.Where("LOWER(name) = LOWER(?)", strings.TrimSpace(name)).First(ing).Error
	})
}

func (r *ingredientRepo) GetByID(ctx context.Context, id uuid.UUID) (*ingredient.Ingredient, error) {
	return r.cached(ctx, idKey(id), "get_by_id", func(db *gorm.DB, ing *ingredient.Ingredient) error {
		return db.Where("id = ?", id).First(ing).Error
	})
}

// cached 先查快取，未命中時查詢資料庫並回寫
func (r *ingredientRepo) cached(ctx context.Context, key, op string, query func(*gorm.DB, *ingredient.Ingredient) error) (*ingredient.Ingredient, error) {
	if r.cache != nil {
		if ing, ok := r.cache.Get(ctx, key); ok {
			r.observer.RecordCacheLookup(r.cache.Name(), true)
			common.LogCacheHit(r.cache.Name(), key)
			return ing, nil
		}
		r.observer.RecordCacheLookup(r.cache.Name(), false)
		common.LogCacheMiss(r.cache.Name(), key)
	}

	var ing ingredient.Ingredient
	if err := r.run(ctx, op, func(db *gorm.DB) error {
		return query(db, &ing)
	}); err != nil {
		return nil, err
	}

	if r.cache != nil {
		for _, k := range keysFor(&ing) {
			r.cache.Set(ctx, k, &ing)
		}
	}
	return &ing, nil
}

func (r *ingredientRepo) GetComplete(ctx context.Context, name string) (*ingredient.Complete, error) {
	ing, err := r.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}

	c := &ingredient.Complete{Ingredient: *ing}
	err = r.run(ctx, "get_complete", func(db *gorm.DB) error {
		if err := db.Where("ingredient_id = ?", ing.ID).Order("bacteria_name").Find(&c.MicrobiomeEffects).Error; err != nil {
			return err
		}
		if err := db.Where("ingredient_id = ?", ing.ID).Order("effect_name").Find(&c.MetabolicEffects).Error; err != nil {
			return err
		}
		if err := db.Where("ingredient_id = ?", ing.ID).Order("symptom_name").Find(&c.SymptomEffects).Error; err != nil {
			return err
		}
		if err := db.Where("ingredient_id = ?", ing.ID).
			Order("publication_year IS NULL").Order("publication_year DESC").Order("title").
			Find(&c.Citations).Error; err != nil {
			return err
		}
		return db.Where("ingredient_1_id = ? OR ingredient_2_id = ?", ing.ID, ing.ID).
			Order("interaction_type").Order("effect_description").
			Find(&c.Interactions).Error
	})
	if err != nil {
		return nil, err
	}
	c.EnsureCollections()
	return c, nil
}

func (r *ingredientRepo) Update(ctx context.Context, id uuid.UUID, fields map[string]interface{}) (bool, error) {
	updates, err := normalizeUpdates(fields)
	if err != nil {
		return false, err
	}

	var before ingredient.Ingredient
	var updated bool
	err = r.run(ctx, "update", func(db *gorm.DB) error {
		return db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Where("id = ?", id).First(&before).Error; err != nil {
				if err == gorm.ErrRecordNotFound {
					updated = false
					return nil
				}
				return err
			}
			if name, ok := updates["name"].(string); ok && !strings.EqualFold(name, before.Name) {
				exists, err := nameExists(tx, name)
				if err != nil {
					return err
				}
				if exists {
					return common.ErrDuplicateIngredient.WithMessage(
						fmt.Sprintf("ingredient name '%s' already exists", name))
				}
			}
			res := tx.Model(&ingredient.Ingredient{}).Where("id = ?", id).Updates(updates)
			updated = res.RowsAffected > 0
			return res.Error
		})
	})
	if err != nil {
		return false, err
	}
	if updated {
		r.invalidate(ctx, &before)
		if name, ok := updates["name"].(string); ok {
			r.invalidateKeys(ctx, nameKey(name))
		}
		common.LogInfo("成分已更新", zap.String("id", id.String()), zap.Strings("fields", sortedKeys(updates)))
	}
	return updated, nil
}

func (r *ingredientRepo) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	var before ingredient.Ingredient
	var deleted bool
	err := r.run(ctx, "delete", func(db *gorm.DB) error {
		return db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Where("id = ?", id).First(&before).Error; err != nil {
				if err == gorm.ErrRecordNotFound {
					deleted = false
					return nil
				}
				return err
			}
			var err error
			deleted, err = deleteComplete(tx, id)
			return err
		})
	})
	if err != nil {
		return false, err
	}
	if deleted {
		r.invalidate(ctx, &before)
		common.LogInfo("成分已刪除", zap.String("id", id.String()), zap.String("name", before.Name))
	}
	return deleted, nil
}

func (r *ingredientRepo) Search(ctx context.Context, filter SearchFilter) ([]ingredient.Ingredient, int64, error) {
	filter.Normalize()
	if filter.Category != "" && !filter.Category.Valid() {
		return nil, 0, common.ErrValidation.WithMessage(fmt.Sprintf("invalid category %q", filter.Category))
	}

	var total int64
	results := []ingredient.Ingredient{}
	err := r.run(ctx, "search", func(db *gorm.DB) error {
		q := db.Model(&ingredient.Ingredient{})
		if filter.Category != "" {
			q = q.Where("category = ?", filter.Category)
		}
		if filter.MinGutScore != nil {
			q = q.Where("gut_score >= ?", *filter.MinGutScore)
		}
		if err := q.Count(&total).Error; err != nil {
			return err
		}
		return orderByScore(q).
			Limit(filter.PerPage).
			Offset((filter.Page - 1) * filter.PerPage).
			Find(&results).Error
	})
	if err != nil {
		return nil, 0, err
	}
	return results, total, nil
}

func (r *ingredientRepo) SearchByBacteria(ctx context.Context, bacteria string, limit int) ([]ingredient.Ingredient, error) {
	bacteria = strings.TrimSpace(bacteria)
	if bacteria == "" {
		return nil, common.ErrValidation.WithMessage("bacteria name cannot be empty")
	}
	if limit <= 0 {
		limit = defaultLimit
	}

	results := []ingredient.Ingredient{}
	err := r.run(ctx, "search_by_bacteria", func(db *gorm.DB) error {
		sub := db.Model(&ingredient.MicrobiomeEffect{}).
			Select("ingredient_id").
			Where("LOWER(bacteria_name) LIKE ?", "%"+strings.ToLower(bacteria)+"%")
		return orderByScore(db.Where("id IN (?)", sub)).Limit(limit).Find(&results).Error
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (r *ingredientRepo) HighConfidence(ctx context.Context, minConfidence float64, limit int) ([]ingredient.Ingredient, error) {
	if minConfidence < 0 || minConfidence > 1 {
		return nil, common.ErrValidation.WithMessage("confidence must be between 0 and 1")
	}
	if limit <= 0 {
		limit = defaultLimit
	}

	results := []ingredient.Ingredient{}
	err := r.run(ctx, "high_confidence", func(db *gorm.DB) error {
		return db.Where("confidence_score >= ?", minConfidence).
			Order("confidence_score DESC").
			Order("gut_score IS NULL").Order("gut_score DESC").Order("name ASC").
			Limit(limit).
			Find(&results).Error
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (r *ingredientRepo) invalidate(ctx context.Context, ing *ingredient.Ingredient) {
	r.invalidateKeys(ctx, keysFor(ing)...)
}

func (r *ingredientRepo) invalidateKeys(ctx context.Context, keys ...string) {
	if r.cache != nil {
		r.cache.Delete(ctx, keys...)
	}
}

// normalizeUpdates 檢查欄位白名單並將值轉為可寫入的型別
func normalizeUpdates(fields map[string]interface{}) (map[string]interface{}, error) {
	if len(fields) == 0 {
		return nil, common.ErrValidation.WithMessage("no updates provided")
	}

	allowed := make(map[string]bool, len(ingredient.UpdatableColumns))
	for _, col := range ingredient.UpdatableColumns {
		allowed[col] = true
	}
	var invalid []string
	for key := range fields {
		if !allowed[key] {
			invalid = append(invalid, key)
		}
	}
	if len(invalid) > 0 {
		sort.Strings(invalid)
		return nil, common.ErrValidation.WithMessage("invalid update fields: " + strings.Join(invalid, ", "))
	}

	out := make(map[string]interface{}, len(fields))
	for key, value := range fields {
		v, err := normalizeValue(key, value)
		if err != nil {
			return nil, common.ErrValidation.WithMessage(fmt.Sprintf("%s: %v", key, err))
		}
		out[key] = v
	}
	return out, nil
}

func normalizeValue(key string, value interface{}) (interface{}, error) {
	switch key {
	case "name":
		s, ok := value.(string)
		if !ok || strings.TrimSpace(s) == "" || len([]rune(s)) > 255 {
			return nil, fmt.Errorf("must be a non-empty string of at most 255 characters")
		}
		return s, nil
	case "slug":
		s, ok := value.(string)
		if !ok || !ingredient.ValidSlug(s) {
			return nil, fmt.Errorf("must contain only lowercase letters, numbers and hyphens")
		}
		return s, nil
	case "category":
		var c ingredient.Category
		switch t := value.(type) {
		case string:
			c = ingredient.Category(t)
		case ingredient.Category:
			c = t
		}
		if !c.Valid() {
			return nil, fmt.Errorf("invalid category %v", value)
		}
		return string(c), nil
	case "gut_score":
		return boundedNumber(value, 10)
	case "confidence_score":
		return boundedNumber(value, 1)
	case "aliases":
		return aliasesValue(value)
	case "dosage_info":
		return dosageValue(value)
	case "description", "safety_notes":
		if value == nil {
			return "", nil
		}
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("must be a string")
		}
		return s, nil
	}
	return nil, fmt.Errorf("unsupported field")
}

func boundedNumber(value interface{}, max float64) (interface{}, error) {
	var f float64
	switch t := value.(type) {
	case nil:
		return nil, nil
	case *float64:
		if t == nil {
			return nil, nil
		}
		f = *t
	case float64:
		f = t
	case int:
		f = float64(t)
	case json.Number:
		var err error
		if f, err = t.Float64(); err != nil {
			return nil, fmt.Errorf("must be a number")
		}
	default:
		return nil, fmt.Errorf("must be a number")
	}
	if f < 0 || f > max {
		return nil, fmt.Errorf("must be between 0 and %g", max)
	}
	return f, nil
}

func aliasesValue(value interface{}) (interface{}, error) {
	switch t := value.(type) {
	case nil:
		return datatypes.NewJSONSlice([]string{}), nil
	case datatypes.JSONSlice[string]:
		return t, nil
	case []string:
		return datatypes.NewJSONSlice(t), nil
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("must be an array of strings")
			}
			out = append(out, s)
		}
		return datatypes.NewJSONSlice(out), nil
	}
	return nil, fmt.Errorf("must be an array of strings")
}

// dosageValue 劑量資訊以 JSON 文字寫入，與 serializer:json 欄位格式一致
func dosageValue(value interface{}) (interface{}, error) {
	var info interface{}
	switch t := value.(type) {
	case nil:
		return nil, nil
	case *ingredient.DosageInfo:
		if t == nil {
			return nil, nil
		}
		info = t
	case ingredient.DosageInfo:
		info = t
	case map[string]interface{}:
		raw, err := json.Marshal(t)
		if err != nil {
			return nil, err
		}
		var d ingredient.DosageInfo
		if err := common.ParseJSONBytesStrict(raw, &d); err != nil {
			return nil, fmt.Errorf("invalid dosage info: %v", err)
		}
		info = d
	case string:
		info = ingredient.DosageInfo{Notes: t}
	default:
		return nil, fmt.Errorf("must be an object or a string")
	}
	raw, err := json.Marshal(info)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
