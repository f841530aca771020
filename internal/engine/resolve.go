package engine

import (
	"fmt"
	"strings"

	"tilepilot/internal/registry"
)

// ResolveCategory maps raw challenge instruction text to a canonical
// category. Exact alias hits win; otherwise the table is scanned in order
// for substring containment in either direction and the first match is
// taken. The table-order tie-break is deliberate: plural forms sit before
// their singulars in the shipped table.
func ResolveCategory(prompt string, aliases []registry.AliasEntry) (string, error) {
	p := strings.ToLower(strings.TrimSpace(prompt))
	if p == "" {
		return "", fmt.Errorf("%w: empty prompt", ErrUnknownCategory)
	}

	for _, e := range aliases {
		if e.Prompt == p {
			return e.Category, nil
		}
	}

	for _, e := range aliases {
		if strings.Contains(p, e.Prompt) || strings.Contains(e.Prompt, p) {
			return e.Category, nil
		}
	}

	return "", fmt.Errorf("%w: %q", ErrUnknownCategory, prompt)
}
