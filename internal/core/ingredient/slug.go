package ingredient

import (
	"math"
	"regexp"
	"strings"
)

var (
	slugStrip   = regexp.MustCompile(`[^a-z0-9\s-]`)
	slugSpaces  = regexp.MustCompile(`\s+`)
	slugHyphens = regexp.MustCompile(`-+`)
	slugPattern = regexp.MustCompile(`^[a-z0-9-]+$`)
	pmidPattern = regexp.MustCompile(`^\d{1,8}$`)
	doiPattern  = regexp.MustCompile(`^10\.\d{4,}/.+`)
)

// GenerateSlug 由名稱產生 URL 安全的 slug
func GenerateSlug(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = slugStrip.ReplaceAllString(s, "")
	s = slugSpaces.ReplaceAllString(s, "-")
	s = slugHyphens.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// ValidSlug 只允許小寫英數與連字號
func ValidSlug(s string) bool { return slugPattern.MatchString(s) }

// ValidPMID PubMed ID 為 1 到 8 位數字
func ValidPMID(s string) bool { return pmidPattern.MatchString(s) }

// ValidDOI DOI 需以 10.xxxx/ 開頭
func ValidDOI(s string) bool { return doiPattern.MatchString(s) }

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
