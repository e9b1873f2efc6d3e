package analysis

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	e := NewEngine(nil)

	tests := []struct {
		name string
		want Category
	}{
		{"Lactobacillus rhamnosus", CategoryProbiotic},
		{"Bifidobacterium longum", CategoryProbiotic},
		{"Saccharomyces boulardii", CategoryProbiotic},
		{"Inulin", CategoryPrebiotic},
		{"FOS", CategoryPrebiotic},
		{"Psyllium Husk", CategoryFiber},
		{"Digestive Enzymes", CategoryDigestiveEnzyme},
		{"digestive-enzymes", CategoryDigestiveEnzyme},
		{"L-Glutamine", CategoryTherapeutic},
		{"Magnesium Glycinate", CategoryMineral},
		{"Calcium", CategoryMineral},
		{"Iron", CategoryMineral},
		{"Vitamin D3", CategoryVitamin},
		{"Curcumin", CategoryAntioxidant},
		{"Ginger root", CategoryHerb},
		{"Sodium Butyrate", CategoryPostbiotic},
		{"lacto", CategoryProbiotic},
		{"Xyzzy123", CategoryUnknown},
		{"", CategoryUnknown},
		{"   ", CategoryUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, e.Classify(tt.name))
		})
	}
}

func TestClassifyIsStableUnderNormalization(t *testing.T) {
	e := NewEngine(nil)
	for _, name := range []string{"Lactobacillus Rhamnosus GG", "Beta-Glucan", "Vitamin D", "Xyzzy123", "fos"} {
		assert.Equal(t, e.Classify(name), e.Classify(Normalize(name)), name)
	}
}

func TestClassifyResolvesAmbiguityByDeclarationOrder(t *testing.T) {
	kb, err := ParseKnowledgeBase([]byte(`
categories:
  - key: a
    category: probiotic
  - key: ab
    category: prebiotic
`))
	require.NoError(t, err)
	e := NewEngine(kb)

	assert.Equal(t, CategoryPrebiotic, e.Classify("ab"), "exact match wins")
	assert.Equal(t, CategoryProbiotic, e.Classify("abc"), "first declared substring wins")
}

func TestDetectInteractions(t *testing.T) {
	e := NewEngine(nil)

	assert.Empty(t, e.DetectInteractions(nil))
	assert.Empty(t, e.DetectInteractions([]string{"Inulin"}))

	got := e.DetectInteractions([]string{"Lactobacillus rhamnosus", "Inulin", "Xyzzy123"})
	require.Len(t, got, 1)
	assert.Equal(t, "Lactobacillus rhamnosus", got[0].Ingredient1)
	assert.Equal(t, "Inulin", got[0].Ingredient2)
	assert.Equal(t, InteractionSynergistic, got[0].Type)
	assert.Equal(t, StrengthStrong, got[0].Strength)
	assert.Equal(t, 0.9, got[0].Confidence)
}

func TestDetectInteractionsIsSymmetric(t *testing.T) {
	e := NewEngine(nil)
	pairs := [][2]string{
		{"Lactobacillus", "Inulin"},
		{"Calcium", "Iron"},
		{"Ginger", "Zinc"},
	}
	for _, p := range pairs {
		ab := e.DetectInteractions([]string{p[0], p[1]})
		ba := e.DetectInteractions([]string{p[1], p[0]})
		require.Len(t, ba, len(ab))
		for i := range ab {
			assert.Equal(t, ab[i].Type, ba[i].Type)
			assert.Equal(t, ab[i].Strength, ba[i].Strength)
			assert.Equal(t, ab[i].Confidence, ba[i].Confidence)
			assert.Equal(t, ab[i].Ingredient1, ba[i].Ingredient2)
			assert.Equal(t, ab[i].Ingredient2, ba[i].Ingredient1)
		}
	}
}

func TestCalculateMealScoreSynergy(t *testing.T) {
	e := NewEngine(nil)
	score := e.CalculateMealScore([]string{"Lactobacillus rhamnosus", "Inulin"})

	assert.Equal(t, 8.5, score.IndividualScores["Lactobacillus rhamnosus"])
	assert.Equal(t, 7.8, score.IndividualScores["Inulin"])
	assert.InDelta(t, 1.0*0.9, score.InteractionBonus, 1e-9)
	assert.Zero(t, score.InteractionPenalty)
	assert.Equal(t, 0.3, score.DiversityBonus)
	assert.InDelta(t, (8.5+7.8)/2+0.9+0.3, score.TotalScore, 1e-9)
}

func TestCalculateMealScoreAntagonism(t *testing.T) {
	e := NewEngine(nil)
	score := e.CalculateMealScore([]string{"Calcium", "Iron"})

	assert.InDelta(t, 0.7*0.8, score.InteractionPenalty, 1e-9)
	assert.Zero(t, score.InteractionBonus)
	assert.Zero(t, score.DiversityBonus)
	assert.Less(t, score.TotalScore, 6.0)
	assert.InDelta(t, 6.0-0.56, score.TotalScore, 1e-9)
}

func TestCalculateMealScoreUnknownIngredient(t *testing.T) {
	e := NewEngine(nil)
	require.Equal(t, CategoryUnknown, e.Classify("Xyzzy123"))

	score := e.CalculateMealScore([]string{"Xyzzy123"})
	assert.Equal(t, e.KnowledgeBase().Weight(CategoryUnknown), score.TotalScore)
	assert.Equal(t, 5.0, score.TotalScore)
}

func TestCalculateMealScoreEmpty(t *testing.T) {
	score := NewEngine(nil).CalculateMealScore(nil)
	assert.Zero(t, score.TotalScore)
	assert.NotNil(t, score.IndividualScores)
	assert.Empty(t, score.IndividualScores)
}

func TestCalculateMealScoreStaysInBounds(t *testing.T) {
	e := NewEngine(nil)

	var synergy []string
	for i := 0; i < 6; i++ {
		synergy = append(synergy, fmt.Sprintf("Lactobacillus strain %d", i), fmt.Sprintf("Inulin batch %d", i))
	}
	var minerals []string
	for i := 0; i < 10; i++ {
		minerals = append(minerals, fmt.Sprintf("Zinc %d", i))
	}

	lists := [][]string{
		nil,
		{"Xyzzy123"},
		synergy,
		minerals,
		{"Lactobacillus", "Inulin", "Psyllium", "Glutamine", "Ginger", "Calcium", "Iron"},
	}
	for _, names := range lists {
		s := e.CalculateMealScore(names)
		assert.GreaterOrEqual(t, s.TotalScore, 0.0)
		assert.LessOrEqual(t, s.TotalScore, 10.0)
	}
	assert.Equal(t, 10.0, e.CalculateMealScore(synergy).TotalScore)
	assert.Equal(t, 0.0, e.CalculateMealScore(minerals).TotalScore)
}

func TestDiversityBonusIsMonotonic(t *testing.T) {
	e := NewEngine(nil)
	ordered := []string{"Xyzzy123", "Lactobacillus", "Inulin", "Psyllium", "Glutamine", "Ginger", "Curcumin"}

	prev := -1.0
	for i := 1; i <= len(ordered); i++ {
		bonus := e.CalculateMealScore(ordered[:i]).DiversityBonus
		assert.GreaterOrEqual(t, bonus, prev)
		prev = bonus
	}

	kb := e.KnowledgeBase()
	assert.Equal(t, 0.0, kb.DiversityBonus(0))
	assert.Equal(t, 0.0, kb.DiversityBonus(1))
	assert.Equal(t, 0.3, kb.DiversityBonus(2))
	assert.Equal(t, 0.6, kb.DiversityBonus(3))
	assert.Equal(t, 1.0, kb.DiversityBonus(4))
	assert.Equal(t, 1.0, kb.DiversityBonus(9))
}

func TestMultiplierTables(t *testing.T) {
	kb := DefaultKnowledgeBase()

	assert.Equal(t, 0.2, kb.BonusMultiplier(StrengthWeak))
	assert.Equal(t, 0.5, kb.BonusMultiplier(StrengthModerate))
	assert.Equal(t, 1.0, kb.BonusMultiplier(StrengthStrong))
	assert.Equal(t, 0.3, kb.PenaltyMultiplier(StrengthWeak))
	assert.Equal(t, 0.7, kb.PenaltyMultiplier(StrengthModerate))
	assert.Equal(t, 1.2, kb.PenaltyMultiplier(StrengthStrong))
}

func TestCategoryWeights(t *testing.T) {
	kb := DefaultKnowledgeBase()
	want := map[Category]float64{
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
	for c, w := range want {
		assert.Equal(t, w, kb.Weight(c), string(c))
	}
}

func TestAnalyzeMeal(t *testing.T) {
	e := NewEngine(nil)
	result := e.AnalyzeMeal([]string{"Lactobacillus rhamnosus", "Inulin", "Calcium", "Iron"})

	assert.Equal(t, result.Score.TotalScore, result.GutScore)
	assert.Len(t, result.Interactions.Synergistic, 1)
	assert.Len(t, result.Interactions.Antagonistic, 1)
	assert.Empty(t, result.Interactions.Neutral)
	assert.Equal(t, CategoryMineral, result.Categories["Iron"])
	assert.Equal(t, 3, result.Diversity.UniqueCategories)
	assert.Contains(t, result.Recommendations, recSpaceConflicting)
	assert.Empty(t, result.Warnings)
	assert.Equal(t, []string{"Lactobacillus rhamnosus", "Inulin", "Calcium", "Iron"}, result.Timing.TimingGroups[TimingWithMeals])
}
