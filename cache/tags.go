package cache

import (
	"fmt"
	"strings"
	"unicode/utf16"
)

// Tag bounds, checked against the raw input before deduplication.
const (
	MaxTags     = 10
	MaxTagChars = 1000
)

// TagSet is a validated, deduplicated list of tags in first-occurrence order.
// Order is significant: the same tags in a different order yield a
// different key.
type TagSet struct {
	tags []string
}

// NewTagSet validates and deduplicates tags.
// More than MaxTags entries, or more than MaxTagChars characters across all
// entries, is an ErrInvalidArgument. Characters are UTF-16 code units, so a
// rune outside the Basic Multilingual Plane counts as two.
func NewTagSet(tags ...string) (TagSet, error) {
	if len(tags) > MaxTags {
		return TagSet{}, fmt.Errorf("%w: maximum of %d tags, got %d", ErrInvalidArgument, MaxTags, len(tags))
	}
	total := 0
	for _, t := range tags {
		total += utf16Len(t)
	}
	if total > MaxTagChars {
		return TagSet{}, fmt.Errorf("%w: maximum of %d characters for tags, got %d", ErrInvalidArgument, MaxTagChars, total)
	}

	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return TagSet{tags: out}, nil
}

func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		if l := utf16.RuneLen(r); l > 0 {
			n += l
		} else {
			n++
		}
	}
	return n
}

// MustTagSet is like NewTagSet but panics on invalid input.
func MustTagSet(tags ...string) TagSet {
	ts, err := NewTagSet(tags...)
	if err != nil {
		panic(err)
	}
	return ts
}

// Len returns the number of distinct tags.
func (s TagSet) Len() int { return len(s.tags) }

// Tags returns a copy of the tags in order.
func (s TagSet) Tags() []string {
	out := make([]string, len(s.tags))
	copy(out, s.tags)
	return out
}

// String renders the stored form: each tag single-quoted, comma-joined.
// The empty set renders as "".
func (s TagSet) String() string {
	var b strings.Builder
	for i, t := range s.tags {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('\'')
		b.WriteString(t)
		b.WriteByte('\'')
	}
	return b.String()
}

// TagMatch selects how invalidation matches tags against stored rows.
type TagMatch int

const (
	// MatchSubstring matches a row when each tag occurs anywhere in its
	// stored tag string. Tag "a" also matches a row tagged "ab".
	MatchSubstring TagMatch = iota

	// MatchExact matches a row only when it carries each tag as a whole
	// quoted member.
	MatchExact
)

func (m TagMatch) String() string {
	if m == MatchExact {
		return "exact"
	}
	return "substring"
}

// Needles returns the strings that must all occur in a row's stored tag
// string for the row to match.
func (m TagMatch) Needles(tags TagSet) []string {
	out := make([]string, 0, tags.Len())
	for _, t := range tags.tags {
		if m == MatchExact {
			out = append(out, "'"+t+"'")
		} else {
			out = append(out, t)
		}
	}
	return out
}

// Matches reports whether a stored tag string matches every tag.
func (m TagMatch) Matches(stored string, tags TagSet) bool {
	for _, n := range m.Needles(tags) {
		if !strings.Contains(stored, n) {
			return false
		}
	}
	return true
}
