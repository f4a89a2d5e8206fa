package profile

import (
	"encoding/json"
	"strconv"
)

// Flag is a tri-state boolean. The zero value is Unknown and is never
// treated as No.
type Flag uint8

const (
	Unknown Flag = iota
	No
	Yes
)

func Known(v bool) Flag {
	if v {
		return Yes
	}
	return No
}

func (f Flag) IsKnown() bool { return f == Yes || f == No }

// Bool returns the value and whether it is known.
func (f Flag) Bool() (value, ok bool) {
	return f == Yes, f.IsKnown()
}

func (f Flag) String() string {
	switch f {
	case Yes:
		return "yes"
	case No:
		return "no"
	default:
		return "unknown"
	}
}

func (f Flag) MarshalJSON() ([]byte, error) {
	switch f {
	case Yes:
		return []byte("true"), nil
	case No:
		return []byte("false"), nil
	default:
		return []byte("null"), nil
	}
}

func (f *Flag) UnmarshalJSON(data []byte) error {
	var v *bool
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if v == nil {
		*f = Unknown
		return nil
	}
	*f = Known(*v)
	return nil
}

// Years is an optional age in whole years.
type Years struct {
	Value int
	Valid bool
}

func Age(years int) Years { return Years{Value: years, Valid: true} }

func (y Years) String() string {
	if !y.Valid {
		return "unknown"
	}
	return strconv.Itoa(y.Value)
}

func (y Years) MarshalJSON() ([]byte, error) {
	if !y.Valid {
		return []byte("null"), nil
	}
	return []byte(strconv.Itoa(y.Value)), nil
}

func (y *Years) UnmarshalJSON(data []byte) error {
	var v *int
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if v == nil {
		*y = Years{}
		return nil
	}
	*y = Age(*v)
	return nil
}

// Attribute is a canonical attribute name used by the scorer.
type Attribute string

const (
	AttrAge                       Attribute = "age"
	AttrPhysicallyActive          Attribute = "physically_active"
	AttrSmoker                    Attribute = "smoker"
	AttrFrequentAlcohol           Attribute = "frequent_alcohol"
	AttrHighBloodPressure         Attribute = "high_blood_pressure"
	AttrHighCholesterol           Attribute = "high_cholesterol"
	AttrHighStress                Attribute = "high_stress"
	AttrFamilyHistoryCancer       Attribute = "family_history_cancer"
	AttrFamilyHistoryDiabetes     Attribute = "family_history_diabetes"
	AttrFamilyHistoryHypertension Attribute = "family_history_hypertension"
)

// FlagAttributes lists the boolean attributes in comparison order.
var FlagAttributes = []Attribute{
	AttrPhysicallyActive,
	AttrSmoker,
	AttrFrequentAlcohol,
	AttrHighBloodPressure,
	AttrHighCholesterol,
	AttrHighStress,
	AttrFamilyHistoryCancer,
	AttrFamilyHistoryDiabetes,
	AttrFamilyHistoryHypertension,
}

// HealthyLabel marks reference rows of people without the compared diseases.
const HealthyLabel = "Healthy"

type Profile struct {
	Age                       Years `json:"age"`
	PhysicallyActive          Flag  `json:"physically_active"`
	Smoker                    Flag  `json:"smoker"`
	FrequentAlcohol           Flag  `json:"frequent_alcohol"`
	HighBloodPressure         Flag  `json:"high_blood_pressure"`
	HighCholesterol           Flag  `json:"high_cholesterol"`
	HighStress                Flag  `json:"high_stress"`
	FamilyHistoryCancer       Flag  `json:"family_history_cancer"`
	FamilyHistoryDiabetes     Flag  `json:"family_history_diabetes"`
	FamilyHistoryHypertension Flag  `json:"family_history_hypertension"`
}

// Reference is one historical case labeled with a disease name.
type Reference struct {
	Label string `json:"disease_label"`
	Profile
}

// Flag returns the value of a boolean attribute. Age and unrecognized
// attributes yield Unknown.
func (p Profile) Flag(a Attribute) Flag {
	if f := p.flagPtr(a); f != nil {
		return *f
	}
	return Unknown
}

func (p *Profile) flagPtr(a Attribute) *Flag {
	switch a {
	case AttrPhysicallyActive:
		return &p.PhysicallyActive
	case AttrSmoker:
		return &p.Smoker
	case AttrFrequentAlcohol:
		return &p.FrequentAlcohol
	case AttrHighBloodPressure:
		return &p.HighBloodPressure
	case AttrHighCholesterol:
		return &p.HighCholesterol
	case AttrHighStress:
		return &p.HighStress
	case AttrFamilyHistoryCancer:
		return &p.FamilyHistoryCancer
	case AttrFamilyHistoryDiabetes:
		return &p.FamilyHistoryDiabetes
	case AttrFamilyHistoryHypertension:
		return &p.FamilyHistoryHypertension
	}
	return nil
}

// Known counts attributes with a known value.
func (p Profile) Known() int {
	n := 0
	if p.Age.Valid {
		n++
	}
	for _, a := range FlagAttributes {
		if p.Flag(a).IsKnown() {
			n++
		}
	}
	return n
}
