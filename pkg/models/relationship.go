package models

import "strings"

// RelationKind is a precedence relationship between two task instances.
type RelationKind string

const (
	// RelationFinishStart requires the successor to start at or after the
	// predecessor finishes.
	RelationFinishStart RelationKind = "Finish <= Start"

	// RelationFinishEqualsStart pins the successor start to the predecessor
	// finish. Used for inspection hand-offs.
	RelationFinishEqualsStart RelationKind = "Finish = Start"

	// RelationFinishFinish requires the successor to finish at or after the
	// predecessor finishes.
	RelationFinishFinish RelationKind = "Finish <= Finish"

	// RelationStartStart requires the successor to start at or after the
	// predecessor starts.
	RelationStartStart RelationKind = "Start <= Start"

	// RelationStartEqualsStart pins the successor start to the predecessor
	// start.
	RelationStartEqualsStart RelationKind = "Start = Start"

	// RelationStartFinish requires the successor to finish at or after the
	// predecessor starts.
	RelationStartFinish RelationKind = "Start <= Finish"
)

// IsEquality reports whether the relation pins an exact instant rather than a
// lower bound.
func (r RelationKind) IsEquality() bool {
	return r == RelationFinishEqualsStart || r == RelationStartEqualsStart
}

// IsFinishClass reports whether the relation orders the successor after the
// predecessor's finish. Only finish-class edges participate in cycle
// detection; the other kinds permit overlap and cannot deadlock the schedule.
func (r RelationKind) IsFinishClass() bool {
	return r == RelationFinishStart || r == RelationFinishEqualsStart
}

var relationAliases = map[string]RelationKind{
	"finish <= start":  RelationFinishStart,
	"finish-start":     RelationFinishStart,
	"finish start":     RelationFinishStart,
	"fs":               RelationFinishStart,
	"f-s":              RelationFinishStart,
	"finish = start":   RelationFinishEqualsStart,
	"f=s":              RelationFinishEqualsStart,
	"finish <= finish": RelationFinishFinish,
	"finish-finish":    RelationFinishFinish,
	"ff":               RelationFinishFinish,
	"start <= start":   RelationStartStart,
	"start-start":      RelationStartStart,
	"ss":               RelationStartStart,
	"start = start":    RelationStartEqualsStart,
	"s=s":              RelationStartEqualsStart,
	"start <= finish":  RelationStartFinish,
	"start-finish":     RelationStartFinish,
	"sf":               RelationStartFinish,
}

// NormalizeRelation maps the relationship spellings found in planning exports
// to a canonical RelationKind. Unrecognized values fall back to
// Finish <= Start; the second return reports whether the input was recognized.
func NormalizeRelation(raw string) (RelationKind, bool) {
	key := strings.ToLower(strings.TrimSpace(raw))
	if key == "" {
		return RelationFinishStart, false
	}
	if kind, ok := relationAliases[key]; ok {
		return kind, true
	}
	return RelationFinishStart, false
}

// Constraint is a precedence edge between two task instances.
type Constraint struct {
	First   string
	Second  string
	Kind    RelationKind
	Product string
}

// RawConstraint is a product-agnostic precedence row between base task ids,
// before instance expansion.
type RawConstraint struct {
	FirstBaseID  int
	SecondBaseID int
	Kind         RelationKind
}
