package normalize

import (
	"strings"

	"github.com/cragr/opsstatus-agent/internal/models"
)

// TranslateImpact maps an external token to its canonical value using the
// ordered mapping table. Matching ignores case and surrounding whitespace.
// When an external value appears twice the first row wins. An empty or
// unknown token yields defaultValue.
func TranslateImpact(raw string, mapping []models.ImpactMapping, defaultValue string) string {
	token := normalizeToken(raw)
	if token == "" {
		return defaultValue
	}
	if canonical, ok := impactIndex(mapping)[token]; ok {
		return canonical
	}
	return defaultValue
}

// ExternalTokens returns, in mapping order and without duplicates, the
// external values that translate to one of the wanted canonical values.
// Shadowed duplicates are skipped so the result agrees with TranslateImpact.
func ExternalTokens(mapping []models.ImpactMapping, wanted ...string) []string {
	want := make(map[string]struct{}, len(wanted))
	for _, w := range wanted {
		want[w] = struct{}{}
	}
	index := impactIndex(mapping)
	seen := make(map[string]struct{}, len(mapping))
	var out []string
	for _, row := range mapping {
		key := normalizeToken(row.ExternalValue)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		if _, ok := want[index[key]]; ok {
			out = append(out, strings.TrimSpace(row.ExternalValue))
		}
	}
	return out
}

func impactIndex(mapping []models.ImpactMapping) map[string]string {
	index := make(map[string]string, len(mapping))
	for _, row := range mapping {
		key := normalizeToken(row.ExternalValue)
		if key == "" {
			continue
		}
		if _, exists := index[key]; exists {
			continue
		}
		index[key] = row.CanonicalValue
	}
	return index
}

func normalizeToken(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
