package tracker

import (
	"strings"

	"github.com/PedroDircksen/Lighthouse/internal/core"
)

const (
	relationFieldType = "list_relationship"
	phoneFieldType    = "phone"

	// Markers used to spot the epic relation among a task's fields. Field
	// names are diacritic-folded before matching, so "Épico" matches too.
	epicNameMarker    = "epico"
	epicInverseMarker = "epic"
	epicStatusMarker  = "epics"

	// Default country prefix for phone numbers entered without one.
	countryPrefix = "55"
)

// Normalize lowercases, trims and diacritic-folds a field name or status
// label so lookups are accent- and case-insensitive.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(foldDiacritics(s)))
}

var diacriticFold = map[rune]rune{
	'á': 'a', 'à': 'a', 'â': 'a', 'ã': 'a', 'ä': 'a',
	'Á': 'A', 'À': 'A', 'Â': 'A', 'Ã': 'A', 'Ä': 'A',
	'é': 'e', 'è': 'e', 'ê': 'e', 'ë': 'e',
	'É': 'E', 'È': 'E', 'Ê': 'E', 'Ë': 'E',
	'í': 'i', 'ì': 'i', 'î': 'i', 'ï': 'i',
	'Í': 'I', 'Ì': 'I', 'Î': 'I', 'Ï': 'I',
	'ó': 'o', 'ò': 'o', 'ô': 'o', 'õ': 'o', 'ö': 'o',
	'Ó': 'O', 'Ò': 'O', 'Ô': 'O', 'Õ': 'O', 'Ö': 'O',
	'ú': 'u', 'ù': 'u', 'û': 'u', 'ü': 'u',
	'Ú': 'U', 'Ù': 'U', 'Û': 'U', 'Ü': 'U',
	'ç': 'c', 'Ç': 'C', 'ñ': 'n', 'Ñ': 'N',
}

func foldDiacritics(s string) string {
	return strings.Map(func(r rune) rune {
		if folded, ok := diacriticFold[r]; ok {
			return folded
		}
		return r
	}, s)
}

// IsDone reports whether the task's status label is in the normalized
// done-equivalent set.
func IsDone(t core.Task, doneSet map[string]struct{}) bool {
	_, ok := doneSet[Normalize(t.Status.Status)]
	return ok
}

// HasTag reports whether the task carries the required tag.
func HasTag(t core.Task, tag string) bool {
	want := Normalize(tag)
	for _, tg := range t.Tags {
		if Normalize(tg.Name) == want {
			return true
		}
	}
	return false
}

// FindFieldByName returns the custom field whose normalized name equals
// name. Among multiple matches a field declared as type "phone" wins.
func FindFieldByName(fields []core.Field, name string) (core.Field, bool) {
	if name == "" {
		return core.Field{}, false
	}
	target := Normalize(name)
	var matches []core.Field
	for _, f := range fields {
		if Normalize(f.Name) == target {
			matches = append(matches, f)
		}
	}
	if len(matches) == 0 {
		return core.Field{}, false
	}
	for _, f := range matches {
		if Normalize(f.Type) == phoneFieldType {
			return f, true
		}
	}
	return matches[0], true
}

// ExtractPhone resolves the named custom field and normalizes its value
// to bare digits with the default country prefix. Returns "" when no
// non-empty value is found.
func ExtractPhone(fields []core.Field, name string) string {
	f, ok := FindFieldByName(fields, name)
	if !ok {
		return ""
	}
	digits := OnlyDigits(f.TextValue())
	if digits == "" {
		return ""
	}
	if !strings.HasPrefix(digits, countryPrefix) {
		digits = countryPrefix + digits
	}
	return digits
}

// ExtractEmail resolves the named custom field's raw text value.
func ExtractEmail(fields []core.Field, name string) string {
	f, ok := FindFieldByName(fields, name)
	if !ok {
		return ""
	}
	return strings.TrimSpace(f.TextValue())
}

// OnlyDigits strips everything but decimal digits from s.
func OnlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ResolveEpicID finds the parent epic of a task from its relation fields,
// trying in order: a relation whose name contains the epic marker, one
// whose inverse-category name contains it, one whose first linked item
// has the epics status, then the first relation present at all. Returns
// "" when the task has no populated relation field.
func ResolveEpicID(fields []core.Field) string {
	type relation struct {
		field core.Field
		links []core.LinkedItem
	}
	var rels []relation
	for _, f := range fields {
		if f.Type != relationFieldType {
			continue
		}
		links := f.Links()
		if len(links) == 0 {
			continue
		}
		rels = append(rels, relation{field: f, links: links})
	}
	if len(rels) == 0 {
		return ""
	}

	for _, r := range rels {
		if strings.Contains(Normalize(r.field.Name), epicNameMarker) {
			return r.links[0].ID
		}
	}
	for _, r := range rels {
		if strings.Contains(Normalize(r.field.TypeConfig.SubcategoryInvertedName), epicInverseMarker) {
			return r.links[0].ID
		}
	}
	for _, r := range rels {
		if Normalize(r.links[0].Status) == epicStatusMarker {
			return r.links[0].ID
		}
	}
	return rels[0].links[0].ID
}
