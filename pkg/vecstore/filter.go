package vecstore

import "sort"

// Condition is a single typed equality test over a metadata field.
type Condition struct {
	Field string
	Value any
}

// Filter is a conjunction of equality conditions over record metadata.
// Drivers translate it into their native query form with bound parameters or
// typed match conditions; values are never interpolated into query strings,
// so quote characters in fields or values cannot corrupt a query.
type Filter struct {
	conditions []Condition
}

// NewFilter returns an empty filter. An empty (or nil) filter matches
// everything.
func NewFilter() *Filter {
	return &Filter{}
}

// Eq adds a field == value condition. Chainable.
func (f *Filter) Eq(field string, value any) *Filter {
	f.conditions = append(f.conditions, Condition{Field: field, Value: value})
	return f
}

// Conditions returns the conjunction's conditions in insertion order.
// Nil-safe.
func (f *Filter) Conditions() []Condition {
	if f == nil {
		return nil
	}
	return f.conditions
}

// IsEmpty reports whether the filter constrains anything. Nil-safe.
func (f *Filter) IsEmpty() bool {
	return f == nil || len(f.conditions) == 0
}

// FilterFromMap builds a filter from a flat field→value mapping. Fields are
// added in sorted order so translated queries are deterministic.
func FilterFromMap(m map[string]any) *Filter {
	if len(m) == 0 {
		return nil
	}

	fields := make([]string, 0, len(m))
	for field := range m {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	f := NewFilter()
	for _, field := range fields {
		f.Eq(field, m[field])
	}

	return f
}
