// Package service 組合 AI 提供者、回應快取與請求隊列，提供成分說明、建議、餐點解讀與對話
package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"gut-health-kb/internal/core/ai"
	"gut-health-kb/internal/core/ai/cache"
	"gut-health-kb/internal/core/ai/provider"
	"gut-health-kb/internal/core/ai/queue"
	"gut-health-kb/internal/core/analysis"
	"gut-health-kb/internal/core/ingredient"
	"gut-health-kb/internal/pkg/common"

	"go.uber.org/zap"
)

const (
	maxChatHistory        = 10
	maxContextEffects     = 5
	defaultRecommendCount = 5
	maxRecommendCount     = 10
	maxChatMessageLength  = 4000
)

const chatSystemPrompt = `You are a knowledgeable gut health advisor with access to a curated ingredient database.
Provide accurate, evidence-based advice about gut health, probiotics, prebiotics and digestive wellness.
Base recommendations on scientific evidence and explain mechanisms when relevant.
Suggest consulting a healthcare provider for medical conditions.
Keep responses conversational but informative.`

var followUpSuggestions = []string{
	"Would you like specific ingredient recommendations?",
	"Should I explain how these ingredients work?",
	"Do you have any dietary restrictions to consider?",
}

// Recorder 接收 AI 呼叫指標
type Recorder interface {
	RecordAICall(kind string, err error, duration time.Duration)
}

// Service AI 服務
type Service struct {
	provider provider.Provider
	queue    *queue.Manager
	cache    *cache.CacheManager
	recorder Recorder
}

// Option 服務選項
type Option func(*Service)

// WithQueue 經由隊列限制同時呼叫數
func WithQueue(q *queue.Manager) Option {
	return func(s *Service) { s.queue = q }
}

// WithCache 啟用回應快取
func WithCache(c *cache.CacheManager) Option {
	return func(s *Service) { s.cache = c }
}

// WithRecorder 設定指標紀錄器
func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// NewService 創建 AI 服務，p 為 nil 時所有生成功能回傳服務不可用
func NewService(p provider.Provider, opts ...Option) *Service {
	s := &Service{provider: p}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enabled 是否已設定 AI 提供者
func (s *Service) Enabled() bool {
	return s != nil && s.provider != nil
}

// Capabilities 回傳可用功能
func (s *Service) Capabilities() ai.Capabilities {
	caps := ai.Capabilities{
		Enabled:  s.Enabled(),
		Features: []string{},
	}
	if !caps.Enabled {
		return caps
	}
	caps.Model = s.provider.GetModel()
	caps.Cache = s.cache != nil
	caps.Features = []string{"explain", "recommendations", "analyze-meal", "chat"}
	return caps
}

// Explain 以自然語言說明成分
func (s *Service) Explain(ctx context.Context, c *ingredient.Complete) (*ai.Explanation, error) {
	if c == nil {
		return nil, common.ErrInvalidRequest.WithMessage("ingredient data is required")
	}

	prompt := fmt.Sprintf(`You are a gut health expert. Explain this ingredient in simple, practical terms.

INGREDIENT DATA:
%s

Cover what the ingredient is and why it matters for gut health, how it works in the body, expected benefits and timeline, practical usage advice (dosage, timing, food combinations) and who should be careful with it.
Keep it conversational, evidence-based and actionable. Use bullet points for key information.`, ingredientContext(c))

	content, hit, err := s.generate(ctx, "explain", []provider.Message{
		{Role: provider.RoleUser, Content: prompt},
	}, 1000, 0.7, true)
	if err != nil {
		return nil, err
	}

	result := &ai.Explanation{
		IngredientName:      c.Ingredient.Name,
		Explanation:         content,
		KeyBenefits:         keyBenefits(c),
		RecommendedDosage:   dosageText(c.Ingredient.DosageInfo),
		TimelineExpectation: "Results typically seen in 2-8 weeks with consistent use",
		Precautions:         []string{},
		CacheHit:            hit,
	}
	if notes := strings.TrimSpace(c.Ingredient.SafetyNotes); notes != "" {
		result.Precautions = append(result.Precautions, notes)
	}
	return result, nil
}

// Recommend 依使用者概況產生個人化成分建議，candidates 為知識庫中可推薦的成分
func (s *Service) Recommend(ctx context.Context, req ai.RecommendationRequest, candidates []string) (*ai.Recommendations, error) {
	count := req.MaxRecommendations
	if count <= 0 {
		count = defaultRecommendCount
	}
	if count > maxRecommendCount {
		return nil, common.ErrValidation.WithMessage(fmt.Sprintf("max_recommendations must be between 1 and %d", maxRecommendCount))
	}
	if req.Profile.Age != nil && (*req.Profile.Age < 0 || *req.Profile.Age > 120) {
		return nil, common.ErrValidation.WithMessage("age must be between 0 and 120")
	}
	if len(req.Profile.Symptoms) == 0 && len(req.Profile.Goals) == 0 {
		return nil, common.ErrValidation.WithMessage("user profile must include either symptoms or goals")
	}

	allowed := filterExcluded(candidates, req.ExcludeIngredients)
	var b strings.Builder
	fmt.Fprintf(&b, "You are a personalized gut health advisor. Recommend the top %d ingredients for this user.\n\n", count)
	b.WriteString("USER PROFILE:\n")
	b.WriteString(profileContext(req.Profile))
	if len(allowed) > 0 {
		b.WriteString("\nAVAILABLE INGREDIENTS (prefer these):\n")
		b.WriteString(strings.Join(allowed, ", "))
		b.WriteString("\n")
	}
	if len(req.ExcludeIngredients) > 0 {
		fmt.Fprintf(&b, "\nDo not recommend: %s\n", strings.Join(req.ExcludeIngredients, ", "))
	}
	b.WriteString("\nFor each recommendation give the ingredient name, why it fits this user, how it addresses their symptoms or goals, dosage and timing, expected timeline and a priority from 1 (highest) to 5.")
	b.WriteString("\nEnd with a JSON object of the form {\"recommendations\": [{\"ingredient\": \"\", \"reason\": \"\", \"dosage\": \"\", \"timing\": \"\", \"priority\": 1}]}.")

	content, hit, err := s.generate(ctx, "recommendations", []provider.Message{
		{Role: provider.RoleUser, Content: b.String()},
	}, 1200, 0.8, true)
	if err != nil {
		return nil, err
	}

	return &ai.Recommendations{
		Recommendations: content,
		Items:           recommendedItems(content, count),
		Rationale: fmt.Sprintf("Based on your symptoms (%s) and goals (%s)",
			joinOrNone(req.Profile.Symptoms), joinOrNone(req.Profile.Goals)),
		Candidates: allowed,
		CacheHit:   hit,
	}, nil
}

// recommendedItems 解析回覆中的 JSON 建議清單，格式不符時回傳 nil，只保留原文
func recommendedItems(content string, limit int) []ai.RecommendedIngredient {
	raw, ok := common.ExtractJSONObject(content)
	if !ok {
		return nil
	}
	var parsed struct {
		Recommendations []ai.RecommendedIngredient `json:"recommendations"`
	}
	if err := common.ParseJSON(raw, &parsed); err != nil {
		common.LogDebug("Recommendation reply is not structured", zap.Error(err))
		return nil
	}

	items := make([]ai.RecommendedIngredient, 0, len(parsed.Recommendations))
	for _, item := range parsed.Recommendations {
		if strings.TrimSpace(item.Ingredient) == "" {
			continue
		}
		items = append(items, item)
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].Priority < items[j].Priority })
	if len(items) > limit {
		items = items[:limit]
	}
	if len(items) == 0 {
		return nil
	}
	return items
}

// AnalyzeMeal 以確定性的餐點分析為基礎，請模型補充解讀
func (s *Service) AnalyzeMeal(ctx context.Context, names []string, result analysis.MealAnalysis) (*ai.MealInsight, error) {
	if len(names) == 0 {
		return nil, common.ErrValidation.WithMessage("at least one ingredient is required")
	}

	var b strings.Builder
	b.WriteString("You are a gut health nutritionist analyzing this meal or supplement combination.\n\n")
	fmt.Fprintf(&b, "MEAL INGREDIENTS: %s\n", strings.Join(names, ", "))
	fmt.Fprintf(&b, "COMPUTED GUT SCORE: %.1f/10\n", result.GutScore)
	for _, line := range interactionLines(result.Interactions.Synergistic) {
		fmt.Fprintf(&b, "SYNERGY: %s\n", line)
	}
	for _, line := range interactionLines(result.Interactions.Antagonistic) {
		fmt.Fprintf(&b, "CONFLICT: %s\n", line)
	}
	for _, w := range result.Warnings {
		fmt.Fprintf(&b, "WARNING: %s\n", w)
	}
	b.WriteString("\nExplain the score, the synergies and conflicts, missing beneficial compounds, optimization suggestions and the best timing for consumption. Be concise and actionable.")

	content, hit, err := s.generate(ctx, "analyze_meal", []provider.Message{
		{Role: provider.RoleUser, Content: b.String()},
	}, 1000, 0.7, true)
	if err != nil {
		return nil, err
	}

	issues := append([]string{}, result.Warnings...)
	issues = append(issues, interactionLines(result.Interactions.Antagonistic)...)
	return &ai.MealInsight{
		GutScore:        result.GutScore,
		Analysis:        content,
		Synergies:       interactionLines(result.Interactions.Synergistic),
		PotentialIssues: issues,
		Recommendations: append([]string{}, result.Recommendations...),
		CacheHit:        hit,
	}, nil
}

// Chat 多輪對話，只保留最近的訊息並加上系統提示
func (s *Service) Chat(ctx context.Context, messages []provider.Message) (*ai.ChatReply, error) {
	if len(messages) == 0 {
		return nil, common.ErrValidation.WithMessage("at least one message is required")
	}
	for i, m := range messages {
		switch m.Role {
		case provider.RoleUser, provider.RoleAssistant:
		default:
			return nil, common.ErrValidation.WithMessage(fmt.Sprintf("messages[%d].role must be user or assistant", i))
		}
		if strings.TrimSpace(m.Content) == "" {
			return nil, common.ErrValidation.WithMessage(fmt.Sprintf("messages[%d].content cannot be empty", i))
		}
		if len(m.Content) > maxChatMessageLength {
			return nil, common.ErrValidation.WithMessage(fmt.Sprintf("messages[%d].content is too long", i))
		}
	}
	if messages[len(messages)-1].Role != provider.RoleUser {
		return nil, common.ErrValidation.WithMessage("the last message must come from the user")
	}

	if len(messages) > maxChatHistory {
		messages = messages[len(messages)-maxChatHistory:]
	}
	conversation := make([]provider.Message, 0, len(messages)+1)
	conversation = append(conversation, provider.Message{Role: provider.RoleSystem, Content: chatSystemPrompt})
	conversation = append(conversation, messages...)

	content, _, err := s.generate(ctx, "chat", conversation, 800, 0.7, false)
	if err != nil {
		return nil, err
	}
	return &ai.ChatReply{
		Response:    content,
		Suggestions: append([]string{}, followUpSuggestions...),
		Model:       s.provider.GetModel(),
	}, nil
}

// generate 呼叫模型，cacheable 為 true 時先查快取
func (s *Service) generate(ctx context.Context, kind string, messages []provider.Message, maxTokens int, temperature float64, cacheable bool) (string, bool, error) {
	if !s.Enabled() {
		return "", false, common.ErrAIServiceError.WithMessage("AI service is not configured")
	}

	for i := range messages {
		messages[i].Content = normalizePrompt(messages[i].Content)
	}

	var key string
	if cacheable && s.cache != nil {
		key = cache.Key(kind, messages[len(messages)-1].Content)
		if content, ok := s.cache.Get(key); ok {
			return content, true, nil
		}
	}

	req := &provider.Request{Messages: messages, MaxTokens: maxTokens, Temperature: temperature}
	start := time.Now()
	var resp *provider.Response
	var err error
	if s.queue != nil {
		resp, err = s.queue.Submit(ctx, req)
	} else {
		resp, err = s.provider.Generate(ctx, req)
	}
	duration := time.Since(start)

	common.LogAICall(kind, duration, err)
	if s.recorder != nil {
		s.recorder.RecordAICall(kind, err, duration)
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return "", false, common.ErrGatewayTimeout.Wrap(err)
		}
		var ce *common.CustomError
		if errors.As(err, &ce) {
			return "", false, err
		}
		return "", false, common.ErrAIServiceError.Wrap(err)
	}

	if key != "" {
		if err := s.cache.Set(key, resp.Content); err != nil {
			common.LogWarn("AI 回應快取寫入失敗", zap.String("kind", kind), zap.Error(err))
		}
	}
	return resp.Content, false, nil
}

// Close 停止隊列與快取並關閉提供者
func (s *Service) Close() error {
	if s.queue != nil {
		s.queue.Close()
	}
	if s.cache != nil {
		_ = s.cache.Close()
	}
	if s.provider != nil {
		return s.provider.Close()
	}
	return nil
}

// normalizePrompt 合併每行多餘空白並移除空行，讓相同內容得到相同快取鍵
func normalizePrompt(prompt string) string {
	lines := strings.Split(strings.TrimSpace(prompt), "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if collapsed := strings.Join(strings.Fields(line), " "); collapsed != "" {
			out = append(out, collapsed)
		}
	}
	return strings.Join(out, "\n")
}

func ingredientContext(c *ingredient.Complete) string {
	var b strings.Builder
	ing := c.Ingredient
	fmt.Fprintf(&b, "Name: %s\n", ing.Name)
	fmt.Fprintf(&b, "Category: %s\n", ing.Category)
	if ing.GutScore != nil {
		fmt.Fprintf(&b, "Gut Score: %.1f/10\n", *ing.GutScore)
	}
	if ing.ConfidenceScore != nil {
		fmt.Fprintf(&b, "Confidence: %.2f\n", *ing.ConfidenceScore)
	}
	if ing.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", ing.Description)
	}
	if len(c.MicrobiomeEffects) > 0 {
		b.WriteString("Microbiome Effects:\n")
		for i, e := range c.MicrobiomeEffects {
			if i == maxContextEffects {
				break
			}
			fmt.Fprintf(&b, "- %s: %s (%s)\n", e.BacteriaName, e.BacteriaLevel, e.EffectStrength)
		}
	}
	if len(c.MetabolicEffects) > 0 {
		b.WriteString("Metabolic Effects:\n")
		for i, e := range c.MetabolicEffects {
			if i == maxContextEffects {
				break
			}
			fmt.Fprintf(&b, "- %s: %s (%s)\n", e.EffectName, e.ImpactDirection, e.EffectStrength)
		}
	}
	if len(c.SymptomEffects) > 0 {
		b.WriteString("Symptom Effects:\n")
		for i, e := range c.SymptomEffects {
			if i == maxContextEffects {
				break
			}
			fmt.Fprintf(&b, "- %s: %s (%s)\n", e.SymptomName, e.EffectDirection, e.EffectStrength)
		}
	}
	if len(c.Citations) > 0 {
		fmt.Fprintf(&b, "Supporting studies: %d\n", len(c.Citations))
	}
	return b.String()
}

// keyBenefits 從效果資料整理最多五項益處
func keyBenefits(c *ingredient.Complete) []string {
	benefits := []string{}
	for _, e := range c.SymptomEffects {
		if e.EffectDirection == ingredient.DirectionPositive {
			benefits = append(benefits, "Improves "+e.SymptomName)
		}
		if len(benefits) == 3 {
			break
		}
	}
	added := 0
	for _, e := range c.MicrobiomeEffects {
		if added == 2 {
			break
		}
		if e.BacteriaLevel == ingredient.BacteriaIncrease {
			benefits = append(benefits, "Increases "+e.BacteriaName)
			added++
		}
	}
	if len(benefits) > 5 {
		benefits = benefits[:5]
	}
	return benefits
}

func dosageText(d *ingredient.DosageInfo) string {
	if d == nil {
		return "Consult healthcare provider"
	}
	var parts []string
	switch {
	case d.MinDose != nil && d.MaxDose != nil:
		parts = append(parts, fmt.Sprintf("%g-%g %s", *d.MinDose, *d.MaxDose, d.Unit))
	case d.MinDose != nil:
		parts = append(parts, fmt.Sprintf("at least %g %s", *d.MinDose, d.Unit))
	case d.MaxDose != nil:
		parts = append(parts, fmt.Sprintf("up to %g %s", *d.MaxDose, d.Unit))
	}
	for _, s := range []string{d.Frequency, d.Timing, d.Notes} {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	if len(parts) == 0 {
		return "Consult healthcare provider"
	}
	return strings.TrimSpace(strings.Join(parts, ", "))
}

func profileContext(p ai.UserProfile) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Symptoms: %s\n", joinOrNone(p.Symptoms))
	fmt.Fprintf(&b, "Goals: %s\n", joinOrNone(p.Goals))
	fmt.Fprintf(&b, "Dietary Restrictions: %s\n", joinOrNone(p.DietaryRestrictions))
	fmt.Fprintf(&b, "Current Supplements: %s\n", joinOrNone(p.CurrentSupplements))
	if p.Age != nil {
		fmt.Fprintf(&b, "Age: %d\n", *p.Age)
	}
	if p.Gender != "" {
		fmt.Fprintf(&b, "Gender: %s\n", p.Gender)
	}
	if p.ActivityLevel != "" {
		fmt.Fprintf(&b, "Activity Level: %s\n", p.ActivityLevel)
	}
	return b.String()
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	return strings.Join(items, ", ")
}

// filterExcluded 移除排除清單中的成分（不分大小寫），結果排序且去重
func filterExcluded(candidates, excluded []string) []string {
	skip := make(map[string]bool, len(excluded))
	for _, e := range excluded {
		skip[strings.ToLower(strings.TrimSpace(e))] = true
	}
	seen := make(map[string]bool, len(candidates))
	out := []string{}
	for _, c := range candidates {
		key := strings.ToLower(strings.TrimSpace(c))
		if key == "" || skip[key] || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

func interactionLines(list []analysis.Interaction) []string {
	out := make([]string, 0, len(list))
	for _, in := range list {
		out = append(out, fmt.Sprintf("%s + %s: %s", in.Ingredient1, in.Ingredient2, in.Description))
	}
	return out
}
