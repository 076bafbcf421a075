package aggregator

import (
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/strrl/brightspots/internal/survey"
)

type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// ImplicitTags splits comma-separated free text into tags. Text without a
// comma yields no tags.
func ImplicitTags(text string) []string {
	if !strings.Contains(text, ",") {
		return nil
	}
	var tags []string
	for _, part := range strings.Split(text, ",") {
		if tag := strings.TrimSpace(part); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

// EffectiveTags returns the explicit tag list of domain, or the implicit tags
// of its free-text companion when the list is empty.
func EffectiveTags(rec *survey.Record, domain survey.Domain) []string {
	tags, text := domainFields(rec, domain)
	if len(tags) > 0 {
		return tags
	}
	return ImplicitTags(text)
}

func domainFields(rec *survey.Record, domain survey.Domain) ([]string, string) {
	if domain == survey.DomainTech {
		return rec.EmergingTechTags, rec.EmergingTechText
	}
	return rec.CustomerThemesTags, rec.CustomerThemesText
}

// TagFrequencies counts tags of domain across all records, case-sensitive,
// most frequent first. Ties keep first-encounter order; blank tags are skipped.
// A single-item emerging-tech answer counts as one tag.
func (a *Aggregator) TagFrequencies(domain survey.Domain) []TagCount {
	var counts []*TagCount
	index := make(map[string]*TagCount)

	a.source.View(func(records []*survey.Record) {
		for _, rec := range records {
			for _, tag := range countedTags(rec, domain) {
				if strings.TrimSpace(tag) == "" {
					continue
				}
				tc, ok := index[tag]
				if !ok {
					tc = &TagCount{Tag: tag}
					index[tag] = tc
					counts = append(counts, tc)
				}
				tc.Count++
			}
		}
	})

	result := make([]TagCount, 0, len(counts))
	for _, tc := range counts {
		result = append(result, *tc)
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Count > result[j].Count
	})
	return result
}

// countedTags is EffectiveTags plus, for emerging tech, the whole answer as a
// single tag when it has no comma and no explicit tags were set.
func countedTags(rec *survey.Record, domain survey.Domain) []string {
	tags := EffectiveTags(rec, domain)
	if len(tags) > 0 || domain != survey.DomainTech || strings.Contains(rec.EmergingTechText, ",") {
		return tags
	}
	if text := strings.TrimSpace(rec.EmergingTechText); text != "" {
		return []string{text}
	}
	return nil
}

// TagCloud is TagFrequencies restricted to short tags and capped in size.
func (a *Aggregator) TagCloud(domain survey.Domain) []TagCount {
	var cloud []TagCount
	for _, tc := range a.TagFrequencies(domain) {
		if utf8.RuneCountInString(tc.Tag) > a.config.TagCloudMaxLen {
			continue
		}
		cloud = append(cloud, tc)
		if len(cloud) == a.config.TagCloudLimit {
			break
		}
	}
	return cloud
}

type Entry struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Company string   `json:"company"`
	Content string   `json:"content"`
	Tags    []string `json:"tags"`
}

// EntriesByTagFold returns records whose tags of domain contain tag, compared
// case-insensitively. Emerging-tech text without commas also matches when it
// equals tag as a whole.
func (a *Aggregator) EntriesByTagFold(tag string, domain survey.Domain) []Entry {
	var entries []Entry
	a.source.View(func(records []*survey.Record) {
		for _, rec := range records {
			tags := EffectiveTags(rec, domain)
			if !containsFold(tags, tag) && !a.wholeTextMatch(rec, tag, domain) {
				continue
			}
			entries = append(entries, a.entry(rec, domain, tags))
		}
	})
	return entries
}

func (a *Aggregator) wholeTextMatch(rec *survey.Record, tag string, domain survey.Domain) bool {
	if domain != survey.DomainTech || strings.Contains(rec.EmergingTechText, ",") {
		return false
	}
	text := strings.TrimSpace(rec.EmergingTechText)
	return text != "" && strings.EqualFold(text, tag)
}

// CompaniesByExactTag returns the distinct companies whose customer-theme
// tags contain tag exactly, case-sensitive, in encounter order.
func (a *Aggregator) CompaniesByExactTag(tag string) []string {
	var companies []string
	seen := make(map[string]bool)
	a.source.View(func(records []*survey.Record) {
		for _, rec := range records {
			if strings.TrimSpace(rec.Company) == "" || seen[rec.Company] {
				continue
			}
			for _, t := range EffectiveTags(rec, survey.DomainCustomerTheme) {
				if t == tag {
					seen[rec.Company] = true
					companies = append(companies, rec.Company)
					break
				}
			}
		}
	})
	return companies
}

// CustomerThemes lists records with non-blank customer-theme text.
func (a *Aggregator) CustomerThemes() []Entry {
	return a.listDomain(survey.DomainCustomerTheme)
}

// EmergingTech lists records with non-blank emerging-tech text.
func (a *Aggregator) EmergingTech() []Entry {
	return a.listDomain(survey.DomainTech)
}

func (a *Aggregator) listDomain(domain survey.Domain) []Entry {
	var entries []Entry
	a.source.View(func(records []*survey.Record) {
		for _, rec := range records {
			_, text := domainFields(rec, domain)
			if strings.TrimSpace(text) == "" {
				continue
			}
			entries = append(entries, a.entry(rec, domain, EffectiveTags(rec, domain)))
		}
	})
	return entries
}

func (a *Aggregator) entry(rec *survey.Record, domain survey.Domain, tags []string) Entry {
	_, text := domainFields(rec, domain)
	copied := make([]string, len(tags))
	copy(copied, tags)
	return Entry{
		ID:      rec.ID,
		Name:    a.nameOrAnonymous(rec.RespondentName),
		Company: a.companyOrUnknown(rec.Company),
		Content: text,
		Tags:    copied,
	}
}

func containsFold(tags []string, tag string) bool {
	for _, t := range tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// ParseStartTime parses "DD-MM-YYYY HH:MM" in loc. A missing time part means
// midnight; anything else malformed reports false.
func ParseStartTime(value string, loc *time.Location) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.Local
	}

	datePart, timePart, _ := strings.Cut(value, " ")
	dateFields := strings.Split(datePart, "-")
	if len(dateFields) != 3 {
		return time.Time{}, false
	}
	day, ok1 := atoiRange(dateFields[0], 1, 31)
	month, ok2 := atoiRange(dateFields[1], 1, 12)
	year, ok3 := atoiRange(dateFields[2], 1, 9999)
	if !ok1 || !ok2 || !ok3 {
		return time.Time{}, false
	}

	hour, minute := 0, 0
	if timePart = strings.TrimSpace(timePart); timePart != "" {
		h, m, found := strings.Cut(timePart, ":")
		if !found {
			return time.Time{}, false
		}
		var okH, okM bool
		hour, okH = atoiRange(h, 0, 23)
		minute, okM = atoiRange(m, 0, 59)
		if !okH || !okM {
			return time.Time{}, false
		}
	}

	t := time.Date(year, time.Month(month), day, hour, minute, 0, 0, loc)
	if t.Day() != day {
		return time.Time{}, false
	}
	return t, true
}

func atoiRange(s string, lo, hi int) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < lo || n > hi {
		return 0, false
	}
	return n, true
}
