package catalog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jansahay/internal/domain"
)

const sample = `[
  {
    "scheme_name": "A",
    "category": "Welfare",
    "state": "Bihar",
    "eligibility": {"min_age": 18, "max_income": 100000, "category_allowed": ["BPL"]},
    "benefits": "Rs 6000 per year",
    "documents_required": ["Aadhaar", "Income certificate"],
    "description_simple": "Cash support"
  },
  {
    "scheme_name": "B",
    "eligibility": {"gender": "Female"}
  }
]`

func TestDecode(t *testing.T) {
	c, err := Decode(strings.NewReader(sample))
	require.NoError(t, err)
	require.Equal(t, 2, c.Len())

	a := c.Schemes()[0]
	assert.Equal(t, "A", a.SchemeName)
	require.NotNil(t, a.Eligibility.MinAge)
	assert.Equal(t, 18, *a.Eligibility.MinAge)
	assert.Nil(t, a.Eligibility.MaxAge)
	assert.Equal(t, []string{"BPL"}, a.Eligibility.CategoryAllowed)
	assert.Equal(t, []string{"Aadhaar", "Income certificate"}, a.DocumentsRequired)

	b := c.Schemes()[1]
	require.NotNil(t, b.Eligibility.Gender)
	assert.Equal(t, "Female", *b.Eligibility.Gender)
	assert.Empty(t, b.Benefits)
	assert.Nil(t, b.DocumentsRequired)
}

func TestDecode_EmptyCategoryListIsPresent(t *testing.T) {
	c, err := Decode(strings.NewReader(`[{"scheme_name":"X","eligibility":{"category_allowed":[]}}]`))
	require.NoError(t, err)
	assert.NotNil(t, c.Schemes()[0].Eligibility.CategoryAllowed)
}

func TestDecode_EmptyEligibilityObject(t *testing.T) {
	c, err := Decode(strings.NewReader(`[{"scheme_name":"X","eligibility":{}}]`))
	require.NoError(t, err)
	assert.Equal(t, domain.EligibilityRule{}, c.Schemes()[0].Eligibility)
}

func TestDecode_MissingEligibilityNamesRecord(t *testing.T) {
	_, err := Decode(strings.NewReader(`[{"scheme_name":"A","eligibility":{}},{"scheme_name":"X","benefits":"b"}]`))
	require.ErrorIs(t, err, domain.ErrMalformedInput)
	assert.Contains(t, err.Error(), "scheme #1")
	assert.Contains(t, err.Error(), "missing eligibility")
}

func TestDecode_Malformed(t *testing.T) {
	cases := map[string]string{
		"not json":          `{{`,
		"object not array":  `{"scheme_name":"A"}`,
		"missing name":      `[{"category":"x"}]`,
		"blank name":        `[{"scheme_name":"  "}]`,
		"string age":        `[{"scheme_name":"A","eligibility":{"min_age":"18"}}]`,
		"negative income":   `[{"scheme_name":"A","eligibility":{"max_income":-1}}]`,
		"fractional income": `[{"scheme_name":"A","eligibility":{"max_income":1.5}}]`,
		"no eligibility":    `[{"scheme_name":"A","eligibility":{}},{"scheme_name":"X","benefits":"b"}]`,
		"null eligibility":  `[{"scheme_name":"X","eligibility":null}]`,
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(in))
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrMalformedInput)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schemes.json")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Len())

	_, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
