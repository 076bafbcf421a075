package survey

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Level is an ordinal interest level. Its numeric value is the score weight.
type Level int

const (
	LevelNothingHeard Level = iota
	LevelVague
	LevelReasonable
	LevelStrong
)

// NumLevels is the size of the closed interest-level set.
const NumLevels = 4

var levelLabels = [NumLevels]string{
	LevelNothingHeard: "Niets over gehoord",
	LevelVague:        "Vage interesse",
	LevelReasonable:   "Redelijke interesse",
	LevelStrong:       "Sterke, concrete interesse",
}

// Levels lists every interest level from lowest to highest.
func Levels() []Level {
	return []Level{LevelNothingHeard, LevelVague, LevelReasonable, LevelStrong}
}

func (l Level) Label() string {
	if l < 0 || int(l) >= NumLevels {
		return ""
	}
	return levelLabels[l]
}

func (l Level) Weight() int {
	return int(l)
}

func (l Level) String() string {
	return l.Label()
}

// ParseLevel maps a survey answer to its level. Anything outside the closed set
// reports false and counts as no answer.
func ParseLevel(value string) (Level, bool) {
	value = strings.TrimSpace(value)
	for i, label := range levelLabels {
		if value == label {
			return Level(i), true
		}
	}
	return 0, false
}

// RatingField names one of the three per-item interest maps.
type RatingField string

const (
	FieldChallenges      RatingField = "challenges"
	FieldTechConcepts    RatingField = "techConcepts"
	FieldProductsVendors RatingField = "productsVendors"
)

var ValidRatingFields = map[RatingField]string{
	FieldChallenges:      "Challenges and themes customers talk about",
	FieldTechConcepts:    "Technology and concepts",
	FieldProductsVendors: "Concrete products and vendors",
}

func (f RatingField) IsValid() bool {
	_, ok := ValidRatingFields[f]
	return ok
}

// RatingFields returns the rating fields in display order.
func RatingFields() []RatingField {
	return []RatingField{FieldChallenges, FieldTechConcepts, FieldProductsVendors}
}

// Domain selects a tag source: customer themes or emerging tech.
type Domain string

const (
	DomainCustomerTheme Domain = "customer"
	DomainTech          Domain = "tech"
)

func (d Domain) IsValid() bool {
	return d == DomainCustomerTheme || d == DomainTech
}

// Involvement is a company's stated relation to a catalog theme.
type Involvement string

const (
	InvolvementFullyClaimed       Involvement = "fully-claimed"
	InvolvementSomewhatAssociated Involvement = "somewhat-associated"
	InvolvementOurAmbition        Involvement = "our-ambition"
	InvolvementNotForUs           Involvement = "not-for-us"
)

var ValidInvolvements = map[Involvement]string{
	InvolvementFullyClaimed:       "Fully claimed",
	InvolvementSomewhatAssociated: "Somewhat associated",
	InvolvementOurAmbition:        "It's our ambition",
	InvolvementNotForUs:           "Not for us",
}

func (i Involvement) IsValid() bool {
	_, ok := ValidInvolvements[i]
	return ok
}

// Theme is one entry of the theme catalog.
type Theme struct {
	ID          string `json:"Id"`
	Name        string `json:"Name"`
	Description string `json:"Description"`
}

func (t *Theme) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID          flexString `json:"Id"`
		Name        flexString `json:"Name"`
		Description flexString `json:"Description"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	t.ID = string(raw.ID)
	t.Name = string(raw.Name)
	t.Description = string(raw.Description)
	return nil
}

// DefaultThemes is the catalog used when the theme source cannot be loaded.
func DefaultThemes() []Theme {
	return []Theme{
		{ID: "1", Name: "AI"},
		{ID: "2", Name: "Cyber Security"},
		{ID: "3", Name: "IT Regulations"},
	}
}

// Assessment is a company's answer for one catalog theme.
type Assessment struct {
	Involvement Involvement `json:"involvement"`
	Description string      `json:"description"`
	Timestamp   string      `json:"timestamp"`
}

// NewAssessment builds an assessment stamped with at.
func NewAssessment(involvement Involvement, description string, at time.Time) Assessment {
	return Assessment{
		Involvement: involvement,
		Description: description,
		Timestamp:   Timestamp(at),
	}
}

// LegacyAssessments is the pre-migration global layout: company -> theme id -> assessment.
type LegacyAssessments map[string]map[string]Assessment

// NotSpecified fills an omitted DetailRecord.From.
const NotSpecified = "Not specified"

// DetailRecord is one piece of evidence behind a company's interest in a topic.
type DetailRecord struct {
	Where     string `json:"where"`
	When      string `json:"when"`
	What      string `json:"what"`
	From      string `json:"from"`
	Timestamp string `json:"timestamp"`
}

// NewDetailRecord validates the required fields and defaults From.
func NewDetailRecord(where, when, what, from string, at time.Time) (DetailRecord, error) {
	where = strings.TrimSpace(where)
	when = strings.TrimSpace(when)
	what = strings.TrimSpace(what)
	if where == "" || when == "" || what == "" {
		return DetailRecord{}, fmt.Errorf("%w: where, when and what are required", ErrInvalidDetail)
	}
	from = strings.TrimSpace(from)
	if from == "" {
		from = NotSpecified
	}
	return DetailRecord{
		Where:     where,
		When:      when,
		What:      what,
		From:      from,
		Timestamp: Timestamp(at),
	}, nil
}

// InterestDetail groups the detail records for one (category, topic) of a company.
type InterestDetail struct {
	Topic       string         `json:"topic"`
	Category    RatingField    `json:"category"`
	LastUpdated string         `json:"lastUpdated"`
	Records     []DetailRecord `json:"records"`
}

func (d InterestDetail) Clone() InterestDetail {
	out := d
	out.Records = append([]DetailRecord(nil), d.Records...)
	return out
}

// InterestDetails is category -> topic -> detail.
type InterestDetails map[RatingField]map[string]InterestDetail

func (d InterestDetails) Clone() InterestDetails {
	if d == nil {
		return nil
	}
	out := make(InterestDetails, len(d))
	for category, topics := range d {
		if topics == nil {
			out[category] = nil
			continue
		}
		copied := make(map[string]InterestDetail, len(topics))
		for topic, detail := range topics {
			copied[topic] = detail.Clone()
		}
		out[category] = copied
	}
	return out
}

// Timestamp formats t the way the dashboard stores edit times.
func Timestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

// flexString accepts a JSON string or number; anything else decodes to "".
type flexString string

func (s *flexString) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		*s = flexString(str)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(data, &num); err == nil {
		*s = flexString(num.String())
		return nil
	}
	*s = ""
	return nil
}
