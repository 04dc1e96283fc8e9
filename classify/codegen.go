package classify

import (
	"fmt"
	"hash/fnv"
	"sort"
	"strings"
)

// DefaultCategory is the category label used when the backend is unreachable.
const DefaultCategory = "Explorer"

// LocalCode derives a travel code from the user's name and preferences.
// It is stable for identical input so re-running a finalization after a crash
// issues the same code.
func LocalCode(name string, preferences map[string][]string) string {
	h := fnv.New32a()
	h.Write([]byte(strings.ToLower(strings.TrimSpace(name))))

	keys := make([]string, 0, len(preferences))
	for k := range preferences {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		h.Write([]byte(k))
		for _, v := range preferences[k] {
			h.Write([]byte(v))
		}
	}

	return fmt.Sprintf("VOYA-%06X", h.Sum32()&0xFFFFFF)
}
