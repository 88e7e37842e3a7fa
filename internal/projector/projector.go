package projector

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"jansahay/internal/domain"
)

// Project renders a scheme as the multi-line text that is indexed and displayed.
// Missing descriptive fields render as empty values.
func Project(s domain.SchemeRecord) domain.Document {
	var b strings.Builder
	fmt.Fprintf(&b, "Scheme Name: %s\n", s.SchemeName)
	fmt.Fprintf(&b, "Category: %s\n", s.Category)
	fmt.Fprintf(&b, "State: %s\n", s.State)
	fmt.Fprintf(&b, "Eligibility: %s\n", RenderRule(s.Eligibility))
	fmt.Fprintf(&b, "Benefits: %s\n", s.Benefits)
	fmt.Fprintf(&b, "Documents Required: %s\n", strings.Join(s.DocumentsRequired, ", "))
	fmt.Fprintf(&b, "Description: %s", s.DescriptionSimple)
	text := b.String()
	return domain.Document{ID: hashString(text), SchemeName: s.SchemeName, Text: text}
}

// ProjectAll projects schemes in order.
func ProjectAll(schemes []domain.SchemeRecord) []domain.Document {
	docs := make([]domain.Document, len(schemes))
	for i, s := range schemes {
		docs[i] = Project(s)
	}
	return docs
}

// RenderRule prints the present rule fields in a fixed order, e.g.
// {min_age: 18, max_income: 100000, category_allowed: [BPL, SC]}.
func RenderRule(r domain.EligibilityRule) string {
	var parts []string
	if r.MinAge != nil {
		parts = append(parts, "min_age: "+strconv.Itoa(*r.MinAge))
	}
	if r.MaxAge != nil {
		parts = append(parts, "max_age: "+strconv.Itoa(*r.MaxAge))
	}
	if r.MaxIncome != nil {
		parts = append(parts, "max_income: "+strconv.Itoa(*r.MaxIncome))
	}
	if r.Gender != nil {
		parts = append(parts, "gender: "+*r.Gender)
	}
	if r.CategoryAllowed != nil {
		parts = append(parts, "category_allowed: ["+strings.Join(r.CategoryAllowed, ", ")+"]")
	}
	if r.Occupation != nil {
		parts = append(parts, "occupation: "+*r.Occupation)
	}
	if r.Expression != nil {
		parts = append(parts, "expression: "+strconv.Quote(*r.Expression))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func hashString(s string) string {
	h := sha1.Sum([]byte(s))
	return hex.EncodeToString(h[:8])
}
