package aggregator

import (
	"bytes"
	"encoding/json"

	"github.com/strrl/brightspots/internal/survey"
)

// LevelCounts holds one count per interest level, indexed by level.
type LevelCounts [survey.NumLevels]int

func (c *LevelCounts) Add(level survey.Level) {
	if level < 0 || int(level) >= survey.NumLevels {
		return
	}
	c[level]++
}

func (c LevelCounts) Total() int {
	total := 0
	for _, n := range c {
		total += n
	}
	return total
}

// WeightedScore is the mean level weight of the counted answers, in [0,3].
// An empty distribution scores 0.
func WeightedScore(c LevelCounts) float64 {
	total := 0
	weighted := 0
	for level, n := range c {
		total += n
		weighted += level * n
	}
	if total == 0 {
		return 0
	}
	return float64(weighted) / float64(total)
}

func (c LevelCounts) MarshalJSON() ([]byte, error) {
	return marshalByLevel(func(level survey.Level) any { return c[level] })
}

// LevelRespondents lists who gave each interest level.
type LevelRespondents [survey.NumLevels][]Respondent

func (r LevelRespondents) MarshalJSON() ([]byte, error) {
	return marshalByLevel(func(level survey.Level) any {
		if r[level] == nil {
			return []Respondent{}
		}
		return r[level]
	})
}

// marshalByLevel writes an object keyed by level label, lowest level first.
func marshalByLevel(value func(level survey.Level) any) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, level := range survey.Levels() {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(level.Label())
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(value(level))
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
