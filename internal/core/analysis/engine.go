// Package analysis 實作成分分類、交互作用偵測、腸道健康評分與建議產生。
//
// 所有方法都是純函式：只讀取建立時注入的 KnowledgeBase 與呼叫端傳入的名稱，
// 可在多個 goroutine 間共用同一個 Engine。
package analysis

import (
	"strings"
)

// Engine 餐點分析引擎
type Engine struct {
	kb *KnowledgeBase
}

// NewEngine 創建分析引擎，kb 為 nil 時使用預設查詢表
func NewEngine(kb *KnowledgeBase) *Engine {
	if kb == nil {
		kb = DefaultKnowledgeBase()
	}
	return &Engine{kb: kb}
}

// KnowledgeBase 回傳引擎使用的查詢表
func (e *Engine) KnowledgeBase() *KnowledgeBase {
	return e.kb
}

// Normalize 轉小寫並將空白與連字號換成底線
func Normalize(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(n)
}

// Classify 將成分名稱分類；先精確比對，再依宣告順序做雙向子字串比對
func (e *Engine) Classify(name string) Category {
	normalized := Normalize(name)
	if normalized == "" {
		return CategoryUnknown
	}
	if c, ok := e.kb.exact[normalized]; ok {
		return c
	}
	for _, entry := range e.kb.entries {
		if strings.Contains(normalized, entry.Key) || strings.Contains(entry.Key, normalized) {
			return entry.Category
		}
	}
	return CategoryUnknown
}

// classifyAll 依輸入順序分類
func (e *Engine) classifyAll(names []string) []Category {
	cats := make([]Category, len(names))
	for i, n := range names {
		cats[i] = e.Classify(n)
	}
	return cats
}

// DetectInteractions 列舉所有 i<j 配對並查詢類別規則
func (e *Engine) DetectInteractions(names []string) []Interaction {
	return e.detect(names, e.classifyAll(names))
}

func (e *Engine) detect(names []string, cats []Category) []Interaction {
	interactions := []Interaction{}
	for i := 0; i < len(names); i++ {
		for j := i + 1; j < len(names); j++ {
			rule, ok := e.kb.Rule(cats[i], cats[j])
			if !ok {
				continue
			}
			interactions = append(interactions, Interaction{
				Ingredient1: names[i],
				Ingredient2: names[j],
				Type:        rule.Type,
				Strength:    rule.Strength,
				Confidence:  rule.Confidence,
				Description: rule.Description,
				Mechanism:   rule.Mechanism,
			})
		}
	}
	return interactions
}

// CalculateMealScore 計算餐點的綜合腸道健康分數，空清單得 0 分
func (e *Engine) CalculateMealScore(names []string) MealScore {
	cats := e.classifyAll(names)
	return e.score(names, cats, e.detect(names, cats))
}

func (e *Engine) score(names []string, cats []Category, interactions []Interaction) MealScore {
	result := MealScore{IndividualScores: make(map[string]float64, len(names))}
	if len(names) == 0 {
		return result
	}

	var total float64
	for i, name := range names {
		base := e.kb.Weight(cats[i])
		result.IndividualScores[name] = base
		total += base
	}
	avg := total / float64(len(names))

	for _, in := range interactions {
		switch in.Type {
		case InteractionSynergistic:
			result.InteractionBonus += e.kb.BonusMultiplier(in.Strength) * in.Confidence
		case InteractionAntagonistic:
			result.InteractionPenalty += e.kb.PenaltyMultiplier(in.Strength) * in.Confidence
		case InteractionNeutral, InteractionUnknown:
		}
	}

	result.DiversityBonus = e.kb.DiversityBonus(uniqueKnown(cats))
	result.TotalScore = clamp(avg+result.InteractionBonus-result.InteractionPenalty+result.DiversityBonus, 0, 10)
	return result
}

// uniqueKnown 計算不同且非 unknown 的類別數
func uniqueKnown(cats []Category) int {
	seen := make(map[Category]struct{}, len(cats))
	for _, c := range cats {
		if c == CategoryUnknown {
			continue
		}
		seen[c] = struct{}{}
	}
	return len(seen)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// AnalyzeMeal 產生完整的餐點分析
func (e *Engine) AnalyzeMeal(names []string) MealAnalysis {
	cats := e.classifyAll(names)
	interactions := e.detect(names, cats)
	score := e.score(names, cats, interactions)

	grouped := GroupedInteractions{
		Synergistic:  []Interaction{},
		Antagonistic: []Interaction{},
		Neutral:      []Interaction{},
	}
	for _, in := range interactions {
		switch in.Type {
		case InteractionSynergistic:
			grouped.Synergistic = append(grouped.Synergistic, in)
		case InteractionAntagonistic:
			grouped.Antagonistic = append(grouped.Antagonistic, in)
		case InteractionNeutral:
			grouped.Neutral = append(grouped.Neutral, in)
		case InteractionUnknown:
		}
	}

	categories := make(map[string]Category, len(names))
	for i, n := range names {
		categories[n] = cats[i]
	}

	return MealAnalysis{
		GutScore:         score.TotalScore,
		Score:            score,
		IndividualScores: score.IndividualScores,
		Categories:       categories,
		Interactions:     grouped,
		Diversity:        e.diversity(cats),
		Recommendations:  recommendations(cats, score, interactions),
		Timing:           e.timing(names, cats),
		Warnings:         warnings(cats, interactions),
	}
}
