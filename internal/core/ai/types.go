// Package ai 定義 AI 輔助功能的請求與回應
package ai

import "gut-health-kb/internal/core/ai/provider"

// UserProfile 使用者健康概況
type UserProfile struct {
	Symptoms            []string `json:"symptoms"`
	Goals               []string `json:"goals"`
	DietaryRestrictions []string `json:"dietary_restrictions"`
	CurrentSupplements  []string `json:"current_supplements"`
	Age                 *int     `json:"age,omitempty"`
	Gender              string   `json:"gender,omitempty"`
	ActivityLevel       string   `json:"activity_level,omitempty"`
}

// Explanation 成分說明
type Explanation struct {
	IngredientName      string   `json:"ingredient_name"`
	Explanation         string   `json:"explanation"`
	KeyBenefits         []string `json:"key_benefits"`
	RecommendedDosage   string   `json:"recommended_dosage"`
	TimelineExpectation string   `json:"timeline_expectation"`
	Precautions         []string `json:"precautions"`
	CacheHit            bool     `json:"cache_hit"`
}

// RecommendationRequest 個人化建議請求
type RecommendationRequest struct {
	Profile            UserProfile `json:"user_profile"`
	MaxRecommendations int         `json:"max_recommendations"`
	ExcludeIngredients []string    `json:"exclude_ingredients"`
}

// Recommendations 個人化建議
type Recommendations struct {
	Recommendations string                  `json:"recommendations"`
	Items           []RecommendedIngredient `json:"items,omitempty"`
	Rationale       string                  `json:"rationale"`
	Candidates      []string                `json:"candidates"`
	CacheHit        bool                    `json:"cache_hit"`
}

// RecommendedIngredient 從模型回覆解析出的單筆建議
type RecommendedIngredient struct {
	Ingredient string `json:"ingredient"`
	Reason     string `json:"reason"`
	Dosage     string `json:"dosage,omitempty"`
	Timing     string `json:"timing,omitempty"`
	Priority   int    `json:"priority"`
}

// MealInsight 餐點分析搭配 AI 解讀
type MealInsight struct {
	GutScore        float64  `json:"gut_score"`
	Analysis        string   `json:"analysis"`
	Synergies       []string `json:"synergistic_effects"`
	PotentialIssues []string `json:"potential_issues"`
	Recommendations []string `json:"optimization_suggestions"`
	CacheHit        bool     `json:"cache_hit"`
}

// ChatReply 對話回覆
type ChatReply struct {
	Response    string   `json:"response"`
	Suggestions []string `json:"suggestions"`
	Model       string   `json:"model,omitempty"`
}

// ChatRequest 對話請求
type ChatRequest struct {
	Messages []provider.Message `json:"messages"`
}

// Capabilities AI 功能狀態
type Capabilities struct {
	Enabled  bool     `json:"enabled"`
	Model    string   `json:"model,omitempty"`
	Features []string `json:"features"`
	Cache    bool     `json:"cache"`
}
