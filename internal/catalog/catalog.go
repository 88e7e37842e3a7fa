package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"jansahay/internal/domain"
)

// Catalog is the ordered, read-only list of schemes loaded at startup.
type Catalog struct {
	schemes []domain.SchemeRecord
}

// Load reads a JSON array of schemes from path.
func Load(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog %s: %w", path, err)
	}
	defer f.Close()
	c, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return c, nil
}

// Decode parses a JSON array of schemes and validates every record.
func Decode(r io.Reader) (*Catalog, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedInput, err)
	}
	schemes := make([]domain.SchemeRecord, 0, len(raw))
	for i, msg := range raw {
		s, err := decodeRecord(msg)
		if err != nil {
			return nil, fmt.Errorf("%w: scheme #%d: %v", domain.ErrMalformedInput, i, err)
		}
		schemes = append(schemes, s)
	}
	return &Catalog{schemes: schemes}, nil
}

// requiredFields are read for every record and may not be absent or null.
type requiredFields struct {
	Eligibility json.RawMessage `json:"eligibility"`
}

func decodeRecord(msg json.RawMessage) (domain.SchemeRecord, error) {
	var s domain.SchemeRecord
	dec := json.NewDecoder(bytes.NewReader(msg))
	if err := dec.Decode(&s); err != nil {
		return s, err
	}
	if strings.TrimSpace(s.SchemeName) == "" {
		return s, fmt.Errorf("missing scheme_name")
	}
	var req requiredFields
	if err := json.Unmarshal(msg, &req); err != nil {
		return s, err
	}
	if len(req.Eligibility) == 0 || string(req.Eligibility) == "null" {
		return s, fmt.Errorf("%s: missing eligibility", s.SchemeName)
	}
	if err := validateRule(s.Eligibility); err != nil {
		return s, fmt.Errorf("%s: %v", s.SchemeName, err)
	}
	return s, nil
}

func validateRule(e domain.EligibilityRule) error {
	for name, v := range map[string]*int{"min_age": e.MinAge, "max_age": e.MaxAge, "max_income": e.MaxIncome} {
		if v != nil && *v < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	return nil
}

// Schemes returns the records in catalog order.
func (c *Catalog) Schemes() []domain.SchemeRecord {
	return c.schemes
}

// Len returns the number of schemes.
func (c *Catalog) Len() int { return len(c.schemes) }
