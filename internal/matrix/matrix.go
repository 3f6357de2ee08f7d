// Package matrix expands a job strategy into the ordered list of bindings,
// one per job instantiation.
package matrix

import (
	"go-workflow/internal/model"
)

// Binding is one concrete assignment of axis values; it becomes the matrix
// namespace of an instantiation.
type Binding struct {
	Index    int
	Values   *model.Map
	Included bool // appended from an include entry
}

// Expand returns the Cartesian product of the axes in declaration order
// minus every combination matched by an exclude entry, followed by every
// include entry in order. Includes are neither filtered nor deduplicated.
// A nil strategy or one without axes and includes yields nil.
func Expand(s *model.Strategy) []Binding {
	if s == nil {
		return nil
	}
	var out []Binding
	if len(s.Axes) > 0 {
		product(s.Axes, func(combo *model.Map) {
			if excluded(combo, s.Exclude) {
				return
			}
			out = append(out, Binding{Index: len(out), Values: combo})
		})
	}
	for _, inc := range s.Include {
		out = append(out, Binding{Index: len(out), Values: inc.Clone(), Included: true})
	}
	return out
}

// Count returns the number of instantiations without building them.
func Count(s *model.Strategy) int {
	return len(Expand(s))
}

// product walks the combinations with the last axis varying fastest.
func product(axes []model.Axis, emit func(*model.Map)) {
	for _, a := range axes {
		if len(a.Values) == 0 {
			return
		}
	}
	idx := make([]int, len(axes))
	for {
		combo := model.NewMap()
		for i, a := range axes {
			combo.Set(a.Name, a.Values[idx[i]])
		}
		emit(combo)

		i := len(axes) - 1
		for ; i >= 0; i-- {
			idx[i]++
			if idx[i] < len(axes[i].Values) {
				break
			}
			idx[i] = 0
		}
		if i < 0 {
			return
		}
	}
}

// excluded reports whether combo matches any entry. An entry matches when
// every field it names equals the combination's value; omitted fields are
// wildcards. A field the combination lacks never matches. An empty entry
// matches nothing rather than everything.
func excluded(combo *model.Map, entries []*model.Map) bool {
	for _, ex := range entries {
		if ex.Len() == 0 {
			continue
		}
		match := true
		ex.Range(func(k string, want model.Value) bool {
			got, ok := combo.Get(k)
			if !ok || !got.Equal(want) {
				match = false
			}
			return match
		})
		if match {
			return true
		}
	}
	return false
}
