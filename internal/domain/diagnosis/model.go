package diagnosis

import "strings"

// Pair is one diagnosis entry: free-text diagnosis and its ICD-10 code.
// Either side may be empty, but not both.
type Pair struct {
	Text string `json:"diagnosis"`
	Code string `json:"icd10"`
}

// IsBlank reports whether both sides are empty after trimming.
func (p Pair) IsBlank() bool {
	return strings.TrimSpace(p.Text) == "" && strings.TrimSpace(p.Code) == ""
}

// Trimmed returns the pair with surrounding whitespace removed.
func (p Pair) Trimmed() Pair {
	return Pair{Text: strings.TrimSpace(p.Text), Code: strings.TrimSpace(p.Code)}
}

// IsPlaceholder reports whether p is the "no diagnosis recorded" sentinel.
func (p Pair) IsPlaceholder() bool {
	return p.Text == Placeholder && p.Code == Placeholder
}

// Set is the ordered list of diagnoses attached to one visit.
type Set []Pair

// Append returns the set with p added at the end. Blank pairs are dropped.
func (s Set) Append(p Pair) Set {
	if p.IsBlank() {
		return s
	}
	return append(s, p.Trimmed())
}

// Clean trims every pair and drops the blank ones, preserving order.
func Clean(pairs []Pair) Set {
	var out Set
	for _, p := range pairs {
		out = out.Append(p)
	}
	return out
}

// Texts returns the diagnosis texts in order.
func (s Set) Texts() []string {
	out := make([]string, len(s))
	for i, p := range s {
		out[i] = p.Text
	}
	return out
}

// Codes returns the ICD-10 codes in order.
func (s Set) Codes() []string {
	out := make([]string, len(s))
	for i, p := range s {
		out[i] = p.Code
	}
	return out
}

// OrPlaceholder returns s, or the single sentinel pair when s is empty.
func (s Set) OrPlaceholder() Set {
	if len(s) == 0 {
		return Set{{Text: Placeholder, Code: Placeholder}}
	}
	return s
}

// MatchText returns the indexes of entries whose text contains q,
// case-insensitively.
func (s Set) MatchText(q string) []int {
	return s.match(q, func(p Pair) string { return p.Text })
}

// MatchCode returns the indexes of entries whose code contains q,
// case-insensitively.
func (s Set) MatchCode(q string) []int {
	return s.match(q, func(p Pair) string { return p.Code })
}

func (s Set) match(q string, field func(Pair) string) []int {
	q = strings.ToLower(q)
	var idx []int
	for i, p := range s {
		if strings.Contains(strings.ToLower(field(p)), q) {
			idx = append(idx, i)
		}
	}
	return idx
}

// Equal reports whether two sets hold the same pairs in the same order.
func (s Set) Equal(other Set) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}
