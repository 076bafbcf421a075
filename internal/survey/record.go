package survey

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Record is one normalized survey submission.
type Record struct {
	ID                 string
	Company            string
	RespondentName     string
	Role               string
	StartTime          string
	CustomerThemesText string
	CustomerThemesTags []string
	EmergingTechText   string
	EmergingTechTags   []string
	Challenges         *Ratings
	TechConcepts       *Ratings
	ProductsVendors    *Ratings
	ThemeAssessments   map[string]Assessment
	InterestDetails    InterestDetails

	// Extra holds source columns without a semantic field, written back unchanged.
	Extra map[string]json.RawMessage
}

// HasRole reports whether the record names a role. Role-less records are
// candidates for their company's primary record.
func (r *Record) HasRole() bool {
	return strings.TrimSpace(r.Role) != ""
}

func (r *Record) Ratings(field RatingField) *Ratings {
	switch field {
	case FieldChallenges:
		return r.Challenges
	case FieldTechConcepts:
		return r.TechConcepts
	case FieldProductsVendors:
		return r.ProductsVendors
	}
	return nil
}

func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	out.CustomerThemesTags = cloneStrings(r.CustomerThemesTags)
	out.EmergingTechTags = cloneStrings(r.EmergingTechTags)
	out.Challenges = r.Challenges.Clone()
	out.TechConcepts = r.TechConcepts.Clone()
	out.ProductsVendors = r.ProductsVendors.Clone()
	out.ThemeAssessments = CloneAssessments(r.ThemeAssessments)
	out.InterestDetails = r.InterestDetails.Clone()
	if r.Extra != nil {
		out.Extra = make(map[string]json.RawMessage, len(r.Extra))
		for k, v := range r.Extra {
			out.Extra[k] = append(json.RawMessage(nil), v...)
		}
	}
	return &out
}

// CloneAssessments deep-copies a theme id -> assessment map.
func CloneAssessments(in map[string]Assessment) map[string]Assessment {
	if in == nil {
		return nil
	}
	out := make(map[string]Assessment, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}

// Field identifies a semantic record field.
type Field int

const (
	FieldUnknown Field = iota
	FieldID
	FieldCompany
	FieldRespondentName
	FieldRole
	FieldStartTime
	FieldCustomerThemesText
	FieldCustomerThemesTags
	FieldEmergingTechText
	FieldEmergingTechTags
	FieldChallengesMap
	FieldTechConceptsMap
	FieldProductsVendorsMap
	FieldThemeAssessments
	FieldInterestDetails
)

// FieldMap names the source column for each semantic field.
type FieldMap struct {
	ID                 string `yaml:"id"`
	Company            string `yaml:"company"`
	RespondentName     string `yaml:"respondent_name"`
	Role               string `yaml:"role"`
	StartTime          string `yaml:"start_time"`
	CustomerThemesText string `yaml:"customer_themes_text"`
	CustomerThemesTags string `yaml:"customer_themes_tags"`
	EmergingTechText   string `yaml:"emerging_tech_text"`
	EmergingTechTags   string `yaml:"emerging_tech_tags"`
	Challenges         string `yaml:"challenges"`
	TechConcepts       string `yaml:"tech_concepts"`
	ProductsVendors    string `yaml:"products_vendors"`
	ThemeAssessments   string `yaml:"theme_assessments"`
	InterestDetails    string `yaml:"interest_details"`
}

// DefaultFields returns the column names used by the survey export.
func DefaultFields() FieldMap {
	return FieldMap{
		ID:                 "Id",
		Company:            "Jouw bedrijf",
		RespondentName:     "Jouw naam",
		Role:               "Rol",
		StartTime:          "Start time",
		CustomerThemesText: "newCustomerThemes",
		CustomerThemesTags: "newCustomerThemesTags",
		EmergingTechText:   "emergingTechVendorProduct",
		EmergingTechTags:   "emergingTechVendorProductTags",
		Challenges:         "challenges",
		TechConcepts:       "techConcepts",
		ProductsVendors:    "productsVendors",
		ThemeAssessments:   "themeAssessments",
		InterestDetails:    "interestDetails",
	}
}

// WithDefaults fills blank column names from DefaultFields.
func (m FieldMap) WithDefaults() FieldMap {
	d := DefaultFields()
	fill := func(v *string, def string) {
		if strings.TrimSpace(*v) == "" {
			*v = def
		}
	}
	fill(&m.ID, d.ID)
	fill(&m.Company, d.Company)
	fill(&m.RespondentName, d.RespondentName)
	fill(&m.Role, d.Role)
	fill(&m.StartTime, d.StartTime)
	fill(&m.CustomerThemesText, d.CustomerThemesText)
	fill(&m.CustomerThemesTags, d.CustomerThemesTags)
	fill(&m.EmergingTechText, d.EmergingTechText)
	fill(&m.EmergingTechTags, d.EmergingTechTags)
	fill(&m.Challenges, d.Challenges)
	fill(&m.TechConcepts, d.TechConcepts)
	fill(&m.ProductsVendors, d.ProductsVendors)
	fill(&m.ThemeAssessments, d.ThemeAssessments)
	fill(&m.InterestDetails, d.InterestDetails)
	return m
}

func (m FieldMap) columns() []struct {
	key   string
	field Field
} {
	return []struct {
		key   string
		field Field
	}{
		{m.ID, FieldID},
		{m.RespondentName, FieldRespondentName},
		{m.Company, FieldCompany},
		{m.Role, FieldRole},
		{m.StartTime, FieldStartTime},
		{m.CustomerThemesText, FieldCustomerThemesText},
		{m.CustomerThemesTags, FieldCustomerThemesTags},
		{m.EmergingTechText, FieldEmergingTechText},
		{m.EmergingTechTags, FieldEmergingTechTags},
		{m.Challenges, FieldChallengesMap},
		{m.TechConcepts, FieldTechConceptsMap},
		{m.ProductsVendors, FieldProductsVendorsMap},
		{m.ThemeAssessments, FieldThemeAssessments},
		{m.InterestDetails, FieldInterestDetails},
	}
}

// Lookup maps a source column name to its semantic field.
func (m FieldMap) Lookup(key string) Field {
	for _, c := range m.columns() {
		if c.key == key {
			return c.field
		}
	}
	return FieldUnknown
}

// IsMapField reports whether the field merges one level deep.
func (f Field) IsMapField() bool {
	switch f {
	case FieldChallengesMap, FieldTechConceptsMap, FieldProductsVendorsMap,
		FieldThemeAssessments, FieldInterestDetails:
		return true
	}
	return false
}

// Decode normalizes one source object into a Record. Fields with an
// unexpected JSON type decode as absent.
func (m FieldMap) Decode(data []byte) (*Record, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("failed to decode record: %w", err)
	}
	if obj == nil {
		return nil, fmt.Errorf("failed to decode record: not an object")
	}
	rec := &Record{}
	for key, raw := range obj {
		m.Assign(rec, key, raw)
	}
	return rec, nil
}

// Assign replaces the value stored under the source column key.
func (m FieldMap) Assign(rec *Record, key string, raw json.RawMessage) {
	switch m.Lookup(key) {
	case FieldID:
		rec.ID = decodeString(raw)
	case FieldCompany:
		rec.Company = decodeString(raw)
	case FieldRespondentName:
		rec.RespondentName = decodeString(raw)
	case FieldRole:
		rec.Role = decodeString(raw)
	case FieldStartTime:
		rec.StartTime = decodeString(raw)
	case FieldCustomerThemesText:
		rec.CustomerThemesText = decodeString(raw)
	case FieldCustomerThemesTags:
		rec.CustomerThemesTags = decodeTags(raw)
	case FieldEmergingTechText:
		rec.EmergingTechText = decodeString(raw)
	case FieldEmergingTechTags:
		rec.EmergingTechTags = decodeTags(raw)
	case FieldChallengesMap:
		rec.Challenges = decodeRatings(raw)
	case FieldTechConceptsMap:
		rec.TechConcepts = decodeRatings(raw)
	case FieldProductsVendorsMap:
		rec.ProductsVendors = decodeRatings(raw)
	case FieldThemeAssessments:
		rec.ThemeAssessments = DecodeAssessments(raw)
	case FieldInterestDetails:
		rec.InterestDetails = decodeInterestDetails(raw)
	default:
		if rec.Extra == nil {
			rec.Extra = make(map[string]json.RawMessage)
		}
		rec.Extra[key] = append(json.RawMessage(nil), raw...)
	}
}

// Overlay merges an object value into the column key one level deep:
// existing entries not named by raw are kept.
func (m FieldMap) Overlay(rec *Record, key string, raw json.RawMessage) {
	switch m.Lookup(key) {
	case FieldChallengesMap:
		rec.Challenges = overlayRatings(rec.Challenges, raw)
	case FieldTechConceptsMap:
		rec.TechConcepts = overlayRatings(rec.TechConcepts, raw)
	case FieldProductsVendorsMap:
		rec.ProductsVendors = overlayRatings(rec.ProductsVendors, raw)
	case FieldThemeAssessments:
		incoming := DecodeAssessments(raw)
		if rec.ThemeAssessments == nil {
			rec.ThemeAssessments = make(map[string]Assessment, len(incoming))
		}
		for id, a := range incoming {
			rec.ThemeAssessments[id] = a
		}
	case FieldInterestDetails:
		incoming := decodeInterestDetails(raw)
		if rec.InterestDetails == nil {
			rec.InterestDetails = make(InterestDetails, len(incoming))
		}
		for category, topics := range incoming {
			rec.InterestDetails[category] = topics
		}
	case FieldUnknown:
		var current map[string]json.RawMessage
		if existing, ok := rec.Extra[key]; ok {
			if err := json.Unmarshal(existing, &current); err != nil {
				current = nil
			}
		}
		var incoming map[string]json.RawMessage
		if err := json.Unmarshal(raw, &incoming); err != nil || current == nil {
			m.Assign(rec, key, raw)
			return
		}
		for k, v := range incoming {
			current[k] = v
		}
		merged, err := json.Marshal(current)
		if err != nil {
			m.Assign(rec, key, raw)
			return
		}
		rec.Extra[key] = merged
	default:
		m.Assign(rec, key, raw)
	}
}

// Encode renders rec as a JSON object keyed by source column names. Known
// columns come first in a fixed order, then extra columns sorted by name.
func (m FieldMap) Encode(rec *Record) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	n := 0
	write := func(key string, value any) error {
		k, err := json.Marshal(key)
		if err != nil {
			return err
		}
		v, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("failed to encode %q: %w", key, err)
		}
		if n > 0 {
			buf.WriteByte(',')
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
		n++
		return nil
	}

	for _, c := range m.columns() {
		value, ok := fieldValue(rec, c.field)
		if !ok {
			continue
		}
		if err := write(c.key, value); err != nil {
			return nil, err
		}
	}

	extras := make([]string, 0, len(rec.Extra))
	for k := range rec.Extra {
		extras = append(extras, k)
	}
	sort.Strings(extras)
	for _, k := range extras {
		if err := write(k, rec.Extra[k]); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// EncodeIndent is Encode pretty-printed with two-space indentation.
func (m FieldMap) EncodeIndent(rec *Record) ([]byte, error) {
	data, err := m.Encode(rec)
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, data, "", "  "); err != nil {
		return nil, fmt.Errorf("failed to indent record: %w", err)
	}
	return out.Bytes(), nil
}

func fieldValue(rec *Record, f Field) (any, bool) {
	switch f {
	case FieldID:
		return rec.ID, true
	case FieldCompany:
		return rec.Company, true
	case FieldRespondentName:
		return rec.RespondentName, true
	case FieldRole:
		return rec.Role, true
	case FieldStartTime:
		return rec.StartTime, true
	case FieldCustomerThemesText:
		return rec.CustomerThemesText, true
	case FieldCustomerThemesTags:
		return rec.CustomerThemesTags, rec.CustomerThemesTags != nil
	case FieldEmergingTechText:
		return rec.EmergingTechText, true
	case FieldEmergingTechTags:
		return rec.EmergingTechTags, rec.EmergingTechTags != nil
	case FieldChallengesMap:
		return rec.Challenges, rec.Challenges != nil
	case FieldTechConceptsMap:
		return rec.TechConcepts, rec.TechConcepts != nil
	case FieldProductsVendorsMap:
		return rec.ProductsVendors, rec.ProductsVendors != nil
	case FieldThemeAssessments:
		return rec.ThemeAssessments, rec.ThemeAssessments != nil
	case FieldInterestDetails:
		return rec.InterestDetails, rec.InterestDetails != nil
	}
	return nil, false
}

func decodeString(raw json.RawMessage) string {
	var s flexString
	_ = json.Unmarshal(raw, &s)
	return string(s)
}

func decodeTags(raw json.RawMessage) []string {
	var items []flexString
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	tags := make([]string, 0, len(items))
	for _, item := range items {
		tags = append(tags, string(item))
	}
	return tags
}

func decodeRatings(raw json.RawMessage) *Ratings {
	r := NewRatings()
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil
	}
	if err := r.UnmarshalJSON(raw); err != nil {
		return NewRatings()
	}
	return r
}

func overlayRatings(current *Ratings, raw json.RawMessage) *Ratings {
	incoming := decodeRatings(raw)
	if current == nil {
		current = NewRatings()
	}
	current.Overlay(incoming)
	return current
}

// DecodeAssessments reads a theme id -> assessment object. Entries that are not
// objects are skipped; non-string fields are coerced like other survey input.
func DecodeAssessments(raw json.RawMessage) map[string]Assessment {
	var entries map[string]json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil || entries == nil {
		return nil
	}
	out := make(map[string]Assessment, len(entries))
	for id, entry := range entries {
		var a struct {
			Involvement flexString `json:"involvement"`
			Description flexString `json:"description"`
			Timestamp   flexString `json:"timestamp"`
		}
		if err := json.Unmarshal(entry, &a); err != nil {
			continue
		}
		out[id] = Assessment{
			Involvement: Involvement(a.Involvement),
			Description: string(a.Description),
			Timestamp:   string(a.Timestamp),
		}
	}
	return out
}

func decodeInterestDetails(raw json.RawMessage) InterestDetails {
	var categories map[string]map[string]json.RawMessage
	if err := json.Unmarshal(raw, &categories); err != nil || categories == nil {
		return nil
	}
	out := make(InterestDetails, len(categories))
	for category, topics := range categories {
		decoded := make(map[string]InterestDetail, len(topics))
		for topic, entry := range topics {
			var d InterestDetail
			if err := json.Unmarshal(entry, &d); err != nil {
				continue
			}
			decoded[topic] = d
		}
		out[RatingField(category)] = decoded
	}
	return out
}
