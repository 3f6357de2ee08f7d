package utils

import (
	"fmt"
	"strings"
	"time"

	"go-workflow/internal/model"
)

// ParseDuration parses a duration string like "5m". Empty means def.
func ParseDuration(d string, def time.Duration) (time.Duration, error) {
	d = strings.TrimSpace(d)
	if d == "" {
		return def, nil
	}
	duration, err := time.ParseDuration(d)
	if err != nil {
		return 0, err
	}
	if duration < 0 {
		return 0, fmt.Errorf("negative duration %q", d)
	}
	return duration, nil
}

// ParseAssignments parses repeated key=value flags into an ordered map.
// Values are kept as text.
func ParseAssignments(pairs []string) (*model.Map, error) {
	out := model.NewMap()
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("expected key=value, got %q", p)
		}
		out.Set(k, model.String(v))
	}
	return out, nil
}
