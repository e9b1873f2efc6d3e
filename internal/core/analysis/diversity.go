package analysis

import (
	"fmt"
	"strings"
)

const (
	recAddProbiotic       = "Consider adding a probiotic for microbiome support"
	recAddPrebiotic       = "Add prebiotic fiber to feed beneficial bacteria"
	recAddDigestiveEnzyme = "Digestive enzymes could improve nutrient absorption"

	timingConflict = "Some ingredients need food while others need empty stomach - space them apart"
)

// AnalyzeDiversity 分析類別分布與多樣性
func (e *Engine) AnalyzeDiversity(names []string) Diversity {
	return e.diversity(e.classifyAll(names))
}

func (e *Engine) diversity(cats []Category) Diversity {
	dist := make(map[Category]int, len(cats))
	for _, c := range cats {
		dist[c]++
	}
	// unknown 也算一個類別；只有評分的多樣性加分排除 unknown
	unique := len(dist)

	recs := []string{}
	if dist[CategoryProbiotic] == 0 {
		recs = append(recs, recAddProbiotic)
	}
	if dist[CategoryPrebiotic] == 0 {
		recs = append(recs, recAddPrebiotic)
	}
	if dist[CategoryDigestiveEnzyme] == 0 {
		recs = append(recs, recAddDigestiveEnzyme)
	}

	score := float64(unique) / 4
	if score > 1 {
		score = 1
	}

	return Diversity{
		CategoryDistribution: dist,
		UniqueCategories:     unique,
		DiversityScore:       score,
		Recommendations:      recs,
	}
}

// AnalyzeTiming 依類別的建議時段分組並找出衝突
func (e *Engine) AnalyzeTiming(names []string) TimingAnalysis {
	return e.timing(names, e.classifyAll(names))
}

func (e *Engine) timing(names []string, cats []Category) TimingAnalysis {
	groups := make(map[Timing][]string, len(Timings))
	for _, t := range Timings {
		groups[t] = []string{}
	}
	for i, name := range names {
		t := e.kb.TimingFor(cats[i])
		groups[t] = append(groups[t], name)
	}

	recs := []string{}
	for _, t := range Timings {
		members := groups[t]
		if len(members) == 0 {
			continue
		}
		var prefix string
		switch t {
		case TimingWithMeals:
			prefix = "Take with meals"
		case TimingEmptyStomach:
			prefix = "Take on empty stomach"
		case TimingMorning:
			prefix = "Best taken in the morning"
		case TimingBeforeBed:
			prefix = "Best taken before bed"
		case TimingAnytime:
			continue
		}
		recs = append(recs, fmt.Sprintf("%s: %s", prefix, strings.Join(members, ", ")))
	}

	conflicts := []string{}
	if len(groups[TimingWithMeals]) > 0 && len(groups[TimingEmptyStomach]) > 0 {
		conflicts = append(conflicts, timingConflict)
	}

	return TimingAnalysis{
		TimingGroups:    groups,
		Recommendations: recs,
		Conflicts:       conflicts,
	}
}
