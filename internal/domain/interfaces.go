package domain

import (
	"context"
	"errors"
)

var (
	// ErrMalformedInput marks catalog or rule data that cannot be used.
	ErrMalformedInput = errors.New("malformed input")
	// ErrCollaborator marks a failure inside an embedder or vector index.
	ErrCollaborator = errors.New("embedding/index collaborator failure")
)

// AnyGender is the gender rule value meaning unconstrained.
const AnyGender = "Any"

// EligibilityRule is the optional set of constraints attached to a scheme.
// A nil pointer or nil slice means the dimension is unconstrained.
type EligibilityRule struct {
	MinAge          *int     `json:"min_age,omitempty"`
	MaxAge          *int     `json:"max_age,omitempty"`
	MaxIncome       *int     `json:"max_income,omitempty"`
	Gender          *string  `json:"gender,omitempty"`
	CategoryAllowed []string `json:"category_allowed,omitempty"`
	Occupation      *string  `json:"occupation,omitempty"`
	// Expression is an optional CEL predicate over the user profile.
	Expression *string `json:"expression,omitempty"`
}

// SchemeRecord is a single welfare scheme as loaded from the catalog.
type SchemeRecord struct {
	SchemeName        string          `json:"scheme_name"`
	Category          string          `json:"category"`
	State             string          `json:"state"`
	Eligibility       EligibilityRule `json:"eligibility"`
	Benefits          string          `json:"benefits"`
	DocumentsRequired []string        `json:"documents_required"`
	DescriptionSimple string          `json:"description_simple"`
}

// UserProfile describes the person whose eligibility is evaluated.
type UserProfile struct {
	Age        int    `yaml:"age" json:"age"`
	Gender     string `yaml:"gender" json:"gender"`
	Income     int    `yaml:"income" json:"income"`
	State      string `yaml:"state" json:"state"`
	Category   string `yaml:"category" json:"category"`
	Occupation string `yaml:"occupation" json:"occupation"`
}

// Document is the flattened text rendering of one eligible scheme.
type Document struct {
	ID         string
	SchemeName string
	Text       string
}

// SearchResult represents a matching document with a relevance score.
type SearchResult struct {
	Document Document
	Score    float64
}

// Embedder converts free text into a numeric vector representation.
// Implementations may require a preparation phase over the corpus.
type Embedder interface {
	Name() string
	Prepare(ctx context.Context, corpus []string) error
	Dimension() int
	Embed(ctx context.Context, text string) ([]float64, error)
}

// CorpusDependent is implemented by embedders whose vectors change with the prepared corpus.
type CorpusDependent interface {
	CorpusDependent() bool
}

// VectorStore holds document vectors and supports similarity search.
type VectorStore interface {
	Init(ctx context.Context, dimension int) error
	Upsert(ctx context.Context, docs []Document, vectors [][]float64) error
	Search(ctx context.Context, vector []float64, topK int) ([]SearchResult, error)
	Clear(ctx context.Context) error
}
