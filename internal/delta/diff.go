package delta

import (
	"fmt"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/strrl/brightspots/internal/survey"
)

// Diff renders the change from before to after as a unified diff of their
// pushed form. It is empty when both encode the same.
func Diff(fields survey.FieldMap, before, after *survey.Record) (string, error) {
	a, err := fields.EncodeIndent(before)
	if err != nil {
		return "", err
	}
	b, err := fields.EncodeIndent(after)
	if err != nil {
		return "", err
	}

	name := FileName(after.ID)
	diff := difflib.UnifiedDiff{
		A:        strings.Split(string(a), "\n"),
		B:        strings.Split(string(b), "\n"),
		FromFile: "local/" + name,
		ToFile:   "merged/" + name,
		Context:  3,
	}
	text, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return "", fmt.Errorf("diff %s: %w", name, err)
	}
	return text, nil
}
