package main

import (
	"fmt"
	"strings"
)

type giftSeed struct {
	ID   string
	Name string
}

// parseGiftSeeds reads "id=name" pairs. A bare id is its own name.
func parseGiftSeeds(raw []string) ([]giftSeed, error) {
	seen := make(map[string]struct{}, len(raw))
	out := make([]giftSeed, 0, len(raw))
	for _, r := range raw {
		id, name, found := strings.Cut(r, "=")
		id, name = strings.TrimSpace(id), strings.TrimSpace(name)
		if id == "" {
			return nil, fmt.Errorf("gift %q: empty id", r)
		}
		if !found || name == "" {
			name = id
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("gift %q listed twice", id)
		}
		seen[id] = struct{}{}
		out = append(out, giftSeed{ID: id, Name: name})
	}
	return out, nil
}
