package analysis

const (
	recHighImpact        = "Consider adding more high-impact gut health ingredients"
	recSpaceConflicting  = "Consider spacing out conflicting ingredients throughout the day"
	recPrebioticSupport  = "Add prebiotic fiber to support probiotic effectiveness"
	recProbioticSupport  = "Consider adding probiotics to work with prebiotic fibers"
	recReduceIngredients = "Consider reducing the number of ingredients to avoid digestive overwhelm"

	warnDigestiveSensitivity = "High number of ingredients may cause digestive sensitivity"
	warnStrongNegative       = "Strong negative interactions detected - consider spacing ingredients apart"
	warnProbioticsCompete    = "Multiple probiotics may compete - consider rotating them"
)

const (
	lowScoreThreshold     = 5.0
	manyIngredients       = 7
	tooManyIngredients    = 8
	maxCombinedProbiotics = 3
)

// Recommendations 依評分、交互作用與類別組成產生優化建議
func (e *Engine) Recommendations(names []string, score MealScore, interactions []Interaction) []string {
	return recommendations(e.classifyAll(names), score, interactions)
}

// Warnings 產生組合警告
func (e *Engine) Warnings(names []string, interactions []Interaction) []string {
	return warnings(e.classifyAll(names), interactions)
}

func recommendations(cats []Category, score MealScore, interactions []Interaction) []string {
	recs := []string{}

	if score.TotalScore < lowScoreThreshold {
		recs = append(recs, recHighImpact)
	}
	if countType(interactions, InteractionAntagonistic) > 0 {
		recs = append(recs, recSpaceConflicting)
	}

	probiotics := countCategory(cats, CategoryProbiotic)
	prebiotics := countCategory(cats, CategoryPrebiotic)
	if probiotics > 0 && prebiotics == 0 {
		recs = append(recs, recPrebioticSupport)
	}
	if prebiotics > 0 && probiotics == 0 {
		recs = append(recs, recProbioticSupport)
	}

	if len(cats) > manyIngredients {
		recs = append(recs, recReduceIngredients)
	}
	return recs
}

func warnings(cats []Category, interactions []Interaction) []string {
	warns := []string{}

	if len(cats) > tooManyIngredients {
		warns = append(warns, warnDigestiveSensitivity)
	}
	for _, in := range interactions {
		if in.Type == InteractionAntagonistic && in.Strength == StrengthStrong {
			warns = append(warns, warnStrongNegative)
			break
		}
	}
	if countCategory(cats, CategoryProbiotic) > maxCombinedProbiotics {
		warns = append(warns, warnProbioticsCompete)
	}
	return warns
}

func countCategory(cats []Category, target Category) int {
	n := 0
	for _, c := range cats {
		if c == target {
			n++
		}
	}
	return n
}

func countType(interactions []Interaction, t InteractionType) int {
	n := 0
	for _, in := range interactions {
		if in.Type == t {
			n++
		}
	}
	return n
}
