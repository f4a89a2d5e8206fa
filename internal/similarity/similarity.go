// Package similarity compares a patient profile with labeled reference
// profiles. Every function here is pure.
package similarity

import (
	"sort"

	"github.com/Skufu/medcheck/internal/profile"
)

// AgeTolerance is the widest age gap, in years, still counted as a match.
const AgeTolerance = 10

// Factor is one line of the per-attribute breakdown. Typical is the mode
// of the known reference values.
type Factor struct {
	Attribute profile.Attribute `json:"attribute"`
	Patient   any               `json:"patient"`
	Typical   any               `json:"typical"`
	Matched   bool              `json:"matched"`
}

type Similarity struct {
	Percent float64 `json:"similarity_percent"`
	// ContributingRows counts reference rows with at least one attribute
	// comparable to the patient.
	ContributingRows int      `json:"contributing_rows"`
	Rows             int      `json:"rows"`
	Breakdown        []Factor `json:"breakdown"`
}

type Result struct {
	Label string `json:"disease_label"`
	Similarity
}

// Score computes the mean per-row similarity of patient against refs.
func Score(patient profile.Profile, refs []profile.Reference) Similarity {
	out := Similarity{Rows: len(refs), Breakdown: []Factor{}}
	if len(refs) == 0 {
		return out
	}

	var sum float64
	for _, ref := range refs {
		matches, total := compareRow(patient, ref.Profile)
		if total == 0 {
			continue
		}
		sum += float64(matches) / float64(total) * 100
		out.ContributingRows++
	}
	if out.ContributingRows > 0 {
		out.Percent = sum / float64(out.ContributingRows)
	}

	out.Breakdown = breakdown(patient, refs)
	return out
}

// Rank scores patient against every disease label in refs, skipping the
// healthy label, highest similarity first.
func Rank(patient profile.Profile, refs []profile.Reference) []Result {
	var labels []string
	groups := map[string][]profile.Reference{}
	for _, ref := range refs {
		if ref.Label == profile.HealthyLabel {
			continue
		}
		if _, seen := groups[ref.Label]; !seen {
			labels = append(labels, ref.Label)
		}
		groups[ref.Label] = append(groups[ref.Label], ref)
	}

	results := make([]Result, 0, len(labels))
	for _, label := range labels {
		results = append(results, Result{Label: label, Similarity: Score(patient, groups[label])})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Percent > results[j].Percent
	})
	return results
}

func compareRow(patient, ref profile.Profile) (matches, total int) {
	for _, attr := range profile.FlagAttributes {
		pv, pok := patient.Flag(attr).Bool()
		rv, rok := ref.Flag(attr).Bool()
		if !pok || !rok {
			continue
		}
		total++
		if pv == rv {
			matches++
		}
	}
	if patient.Age.Valid && ref.Age.Valid {
		total++
		if withinTolerance(patient.Age.Value, ref.Age.Value) {
			matches++
		}
	}
	return matches, total
}

func withinTolerance(a, b int) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d <= AgeTolerance
}

func breakdown(patient profile.Profile, refs []profile.Reference) []Factor {
	factors := make([]Factor, 0, len(profile.FlagAttributes)+1)

	ages := make([]int, 0, len(refs))
	for _, ref := range refs {
		if ref.Age.Valid {
			ages = append(ages, ref.Age.Value)
		}
	}
	age := Factor{Attribute: profile.AttrAge, Patient: patient.Age}
	if typical, ok := mode(ages); ok {
		age.Typical = profile.Age(typical)
		age.Matched = patient.Age.Valid && withinTolerance(patient.Age.Value, typical)
	} else {
		age.Typical = profile.Years{}
	}
	factors = append(factors, age)

	for _, attr := range profile.FlagAttributes {
		values := make([]profile.Flag, 0, len(refs))
		for _, ref := range refs {
			if f := ref.Flag(attr); f.IsKnown() {
				values = append(values, f)
			}
		}
		pf := patient.Flag(attr)
		f := Factor{Attribute: attr, Patient: pf, Typical: profile.Unknown}
		if typical, ok := mode(values); ok {
			f.Typical = typical
			f.Matched = pf.IsKnown() && pf == typical
		}
		factors = append(factors, f)
	}
	return factors
}

// mode returns the most frequent value; ties go to the value seen first.
func mode[T comparable](values []T) (T, bool) {
	var best T
	if len(values) == 0 {
		return best, false
	}
	counts := make(map[T]int, len(values))
	bestCount := 0
	for _, v := range values {
		counts[v]++
	}
	for _, v := range values {
		if c := counts[v]; c > bestCount {
			best, bestCount = v, c
		}
	}
	return best, true
}
