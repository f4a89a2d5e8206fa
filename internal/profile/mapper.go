package profile

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Record is a flat raw row as supplied by the repository.
type Record map[string]any

var ErrMalformedRecord = errors.New("malformed record")

type decoder func(v any) (Flag, error)

type alias struct {
	column string
	decode decoder
}

func col(name string) alias { return alias{column: name, decode: decodeFlag} }

// flagAliases lists source columns per attribute, first non-null wins.
var flagAliases = map[Attribute][]alias{
	AttrPhysicallyActive: {col("hace_ejercicio"), col("actividad_fisica"), col("ejercicio_regular"), col("physically_active")},
	AttrSmoker:           {col("fuma"), col("fumador"), col("es_fumador"), col("smoker")},
	AttrFrequentAlcohol:  {col("consume_alcohol"), col("alcohol_frecuente"), col("bebe_alcohol"), col("alcoholico"), col("frequent_alcohol")},
	AttrHighBloodPressure: {
		col("presion_alta"), col("presion_arterial_alta"), col("hipertension"), col("high_blood_pressure"),
	},
	AttrHighCholesterol: {col("colesterol_alto"), col("colesterol_elevado"), col("high_cholesterol")},
	AttrHighStress: {
		{column: "nivel_estres", decode: decodeLevel},
		col("estres_alto"),
		col("high_stress"),
	},
	AttrFamilyHistoryCancer: {
		col("antecedentes_cancer"), col("antecedentes_familiares_cancer"), col("family_history_cancer"),
	},
	AttrFamilyHistoryDiabetes: {
		col("antecedentes_diabetes"), col("antecedentes_familiares_diabetes"), col("family_history_diabetes"),
	},
	AttrFamilyHistoryHypertension: {
		col("antecedentes_hipertension"), col("antecedentes_familiares_hipertension"), col("family_history_hypertension"),
	},
}

var (
	familyHistoryColumns = []string{"antecedentes_familiares", "antecedentes_familiares_enfermedad", "family_history"}
	familyKeywords       = map[Attribute][]string{
		AttrFamilyHistoryCancer:       {"cancer", "cáncer", "tumor", "oncolog"},
		AttrFamilyHistoryDiabetes:     {"diabetes", "diabetico", "diabético", "azucar", "azúcar"},
		AttrFamilyHistoryHypertension: {"hipertension", "hipertensión", "presion alta", "presión alta", "tension alta", "tensión alta"},
	}

	conditionColumns  = []string{"condicion", "condition"}
	conditionKeywords = map[Attribute][]string{
		AttrHighBloodPressure: {"hipertension", "hipertensión", "presion alta", "presión alta"},
		AttrHighCholesterol:   {"colesterol"},
		AttrHighStress:        {"estres", "estrés", "ansiedad"},
	}

	birthDateColumns = []string{"fecha_nacimiento", "birth_date"}
	ageColumns       = []string{"edad", "age"}
	labelColumns     = []string{"enfermedad", "disease_label"}

	labelSynonyms = map[string]string{
		"saludable": HealthyLabel,
		"healthy":   HealthyLabel,
	}
)

// Map builds a patient profile from the patient's most recent raw record.
// Age is derived from the birth date as of asOf. A nil record yields an
// all-unknown profile.
func Map(rec Record, asOf time.Time) (Profile, error) {
	var p Profile
	if err := mapFlags(&p, rec); err != nil {
		return Profile{}, err
	}

	if v, key := first(rec, birthDateColumns); v != nil {
		birth, err := parseDate(v)
		if err != nil {
			return Profile{}, fmt.Errorf("%w: field %q: %v", ErrMalformedRecord, key, err)
		}
		if birth.After(asOf) {
			return Profile{}, fmt.Errorf("%w: field %q: birth date %s is in the future", ErrMalformedRecord, key, birth.Format(time.DateOnly))
		}
		p.Age = Age(AgeAt(birth, asOf))
	}

	return p, nil
}

// MapReference builds a labeled reference profile. Reference rows carry
// the case's age directly.
func MapReference(rec Record) (Reference, error) {
	v, _ := first(rec, labelColumns)
	label, ok := v.(string)
	if v != nil && !ok {
		if b, isBytes := v.([]byte); isBytes {
			label, ok = string(b), true
		}
	}
	label = strings.TrimSpace(label)
	if !ok || label == "" {
		return Reference{}, fmt.Errorf("%w: missing disease label", ErrMalformedRecord)
	}
	if canonical, found := labelSynonyms[strings.ToLower(label)]; found {
		label = canonical
	}

	ref := Reference{Label: label}
	if err := mapFlags(&ref.Profile, rec); err != nil {
		return Reference{}, err
	}

	if v, key := first(rec, ageColumns); v != nil {
		years, err := decodeInt(v)
		if err != nil || years < 0 {
			return Reference{}, fmt.Errorf("%w: field %q: invalid age %v", ErrMalformedRecord, key, v)
		}
		ref.Age = Age(years)
	}

	return ref, nil
}

// AgeAt returns completed years between birth and asOf.
func AgeAt(birth, asOf time.Time) int {
	years := asOf.Year() - birth.Year()
	if asOf.Month() < birth.Month() || (asOf.Month() == birth.Month() && asOf.Day() < birth.Day()) {
		years--
	}
	return years
}

func mapFlags(p *Profile, rec Record) error {
	for _, attr := range FlagAttributes {
		for _, a := range flagAliases[attr] {
			v, ok := rec[a.column]
			if !ok || v == nil {
				continue
			}
			f, err := a.decode(v)
			if err != nil {
				return fmt.Errorf("%w: field %q: %v", ErrMalformedRecord, a.column, err)
			}
			if !f.IsKnown() {
				continue
			}
			*p.flagPtr(attr) = f
			break
		}
	}

	if text, ok := firstText(rec, familyHistoryColumns); ok {
		for attr, words := range familyKeywords {
			if f := p.flagPtr(attr); !f.IsKnown() {
				*f = Known(containsAny(text, words))
			}
		}
	}

	if text, ok := firstText(rec, conditionColumns); ok {
		for attr, words := range conditionKeywords {
			if f := p.flagPtr(attr); !f.IsKnown() && containsAny(text, words) {
				*f = Yes
			}
		}
	}

	return nil
}

func first(rec Record, keys []string) (any, string) {
	for _, k := range keys {
		if v, ok := rec[k]; ok && v != nil {
			return v, k
		}
	}
	return nil, ""
}

// firstText returns the first non-blank text field, lower-cased.
func firstText(rec Record, keys []string) (string, bool) {
	for _, k := range keys {
		var s string
		switch v := rec[k].(type) {
		case string:
			s = v
		case []byte:
			s = string(v)
		default:
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			return strings.ToLower(s), true
		}
	}
	return "", false
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

func decodeFlag(v any) (Flag, error) {
	switch t := v.(type) {
	case bool:
		return Known(t), nil
	case string:
		return parseFlagText(t)
	case []byte:
		return parseFlagText(string(t))
	}
	n, err := decodeInt(v)
	if err != nil {
		return Unknown, err
	}
	switch n {
	case 0:
		return No, nil
	case 1:
		return Yes, nil
	}
	return Unknown, fmt.Errorf("unsupported boolean value %v", v)
}

func parseFlagText(s string) (Flag, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sí", "si", "yes", "true", "t", "1":
		return Yes, nil
	case "no", "false", "f", "0":
		return No, nil
	case "":
		return Unknown, nil
	}
	return Unknown, fmt.Errorf("unsupported boolean value %q", s)
}

// decodeLevel reads a stress level such as "Alto" or "Bajo".
func decodeLevel(v any) (Flag, error) {
	var s string
	switch t := v.(type) {
	case string:
		s = t
	case []byte:
		s = string(t)
	default:
		return Unknown, fmt.Errorf("unsupported level %v", v)
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return Unknown, nil
	case "alto", "high":
		return Yes, nil
	}
	return No, nil
}

func decodeInt(v any) (int, error) {
	switch t := v.(type) {
	case int:
		return t, nil
	case int16:
		return int(t), nil
	case int32:
		return int(t), nil
	case int64:
		return int(t), nil
	case float32:
		return decodeFloat(float64(t))
	case float64:
		return decodeFloat(t)
	case string:
		return strconv.Atoi(strings.TrimSpace(t))
	case []byte:
		return strconv.Atoi(strings.TrimSpace(string(t)))
	}
	return 0, fmt.Errorf("unsupported numeric value %v (%T)", v, v)
}

func decodeFloat(f float64) (int, error) {
	if f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("non-integer value %v", f)
	}
	return int(f), nil
}

func parseDate(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case string:
		return parseDateText(t)
	case []byte:
		return parseDateText(string(t))
	}
	return time.Time{}, fmt.Errorf("unsupported date value %v (%T)", v, v)
}

func parseDateText(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if d, err := time.Parse(time.DateOnly, s); err == nil {
		return d, nil
	}
	return time.Parse(time.RFC3339, s)
}
