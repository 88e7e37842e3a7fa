package service

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"jansahay/internal/domain"
	"jansahay/internal/embedding/tfidf"
	"jansahay/internal/vectorstore/memory"
	"jansahay/internal/vectorstore/persistent"
)

// fakeEmbedder maps text to a deterministic vector unless EmbedFunc is set.
type fakeEmbedder struct {
	EmbedFunc    func(ctx context.Context, text string) ([]float64, error)
	PrepareFunc  func(ctx context.Context, corpus []string) error
	prepareCalls int
	embedCalls   int
}

func (f *fakeEmbedder) Name() string   { return "fake" }
func (f *fakeEmbedder) Dimension() int { return 0 }

func (f *fakeEmbedder) Prepare(ctx context.Context, corpus []string) error {
	f.prepareCalls++
	if f.PrepareFunc != nil {
		return f.PrepareFunc(ctx, corpus)
	}
	return nil
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	f.embedCalls++
	if f.EmbedFunc != nil {
		return f.EmbedFunc(ctx, text)
	}
	h := fnv.New32a()
	h.Write([]byte(text))
	seed := h.Sum32()
	vec := make([]float64, 8)
	for i := range vec {
		seed = seed*1664525 + 1013904223
		vec[i] = float64(seed%1000)/1000.0 + 0.001
	}
	return vec, nil
}

// countingStore wraps memory storage and counts calls.
type countingStore struct {
	*memory.Storage
	inits, clears, searches int
	searchErr               error
}

func newCountingStore() *countingStore { return &countingStore{Storage: memory.NewStorage()} }

func (c *countingStore) Init(ctx context.Context, dim int) error {
	c.inits++
	return c.Storage.Init(ctx, dim)
}

func (c *countingStore) Clear(ctx context.Context) error {
	c.clears++
	return c.Storage.Clear(ctx)
}

func (c *countingStore) Search(ctx context.Context, v []float64, k int) ([]domain.SearchResult, error) {
	c.searches++
	if c.searchErr != nil {
		return nil, c.searchErr
	}
	return c.Storage.Search(ctx, v, k)
}

func intp(v int) *int       { return &v }
func strp(v string) *string { return &v }

func scenarioCatalog() []domain.SchemeRecord {
	return []domain.SchemeRecord{
		{SchemeName: "A", Eligibility: domain.EligibilityRule{MinAge: intp(18), MaxIncome: intp(100000), CategoryAllowed: []string{"BPL"}}},
		{SchemeName: "B", Eligibility: domain.EligibilityRule{Gender: strp("Female")}},
	}
}

var scenarioUser = domain.UserProfile{Age: 25, Income: 180000, Gender: "Female", Category: "BPL"}

func TestNewPipeline(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		p, err := NewPipeline(&fakeEmbedder{}, memory.NewStorage(), WithLogger(zap.NewNop()))
		require.NoError(t, err)
		assert.Equal(t, "rebuild", p.Mode())
	})
	t.Run("nil logger falls back", func(t *testing.T) {
		_, err := NewPipeline(&fakeEmbedder{}, memory.NewStorage(), WithLogger(nil))
		assert.NoError(t, err)
	})
	t.Run("nil embedder", func(t *testing.T) {
		_, err := NewPipeline(nil, memory.NewStorage())
		assert.Equal(t, ErrEmbedderRequired, err)
	})
	t.Run("nil store", func(t *testing.T) {
		_, err := NewPipeline(&fakeEmbedder{}, nil)
		assert.Equal(t, ErrStoreRequired, err)
	})
}

func TestRetrieve_Scenario(t *testing.T) {
	p, err := NewPipeline(tfidf.NewEmbedder(), memory.NewStorage())
	require.NoError(t, err)

	res, err := p.Retrieve(context.Background(), scenarioCatalog(), scenarioUser, "Which schemes can I apply for?", 3)
	require.NoError(t, err)
	assert.False(t, res.NoEligibleSchemes())
	require.Len(t, res.Eligible, 1)
	assert.Equal(t, "B", res.Eligible[0].SchemeName)
	require.Len(t, res.Documents, 1)
	assert.Equal(t, "B", res.Documents[0].Document.SchemeName)
	assert.True(t, strings.HasPrefix(res.Documents[0].Document.Text, "Scheme Name: B\n"))
}

func TestRetrieve_NoEligibleSkipsCollaborators(t *testing.T) {
	emb := &fakeEmbedder{}
	store := newCountingStore()
	p, err := NewPipeline(emb, store)
	require.NoError(t, err)

	user := scenarioUser
	user.Gender = "Male"
	user.Category = "APL"
	res, err := p.Retrieve(context.Background(), scenarioCatalog(), user, "anything", 3)
	require.NoError(t, err)
	assert.True(t, res.NoEligibleSchemes())
	assert.Empty(t, res.Documents)
	assert.Zero(t, emb.prepareCalls)
	assert.Zero(t, emb.embedCalls)
	assert.Zero(t, store.inits)
	assert.Zero(t, store.searches)
}

func TestRetrieve_OnlyEligibleSurface(t *testing.T) {
	var catalog []domain.SchemeRecord
	for i, name := range []string{"open-1", "closed-1", "open-2", "closed-2", "open-3"} {
		s := domain.SchemeRecord{SchemeName: name, Benefits: strings.Repeat("x", i)}
		if strings.HasPrefix(name, "closed") {
			s.Eligibility.Occupation = strp("Farmer")
		}
		catalog = append(catalog, s)
	}
	emb := &fakeEmbedder{}
	store := newCountingStore()
	p, err := NewPipeline(emb, store)
	require.NoError(t, err)

	res, err := p.Retrieve(context.Background(), catalog, scenarioUser, "query", 10)
	require.NoError(t, err)
	require.Len(t, res.Documents, 3)
	for _, d := range res.Documents {
		assert.True(t, strings.HasPrefix(d.Document.SchemeName, "open"), d.Document.SchemeName)
	}
	assert.Equal(t, 1, emb.prepareCalls)
	assert.Equal(t, 4, emb.embedCalls) // 3 documents + query
	assert.Equal(t, 1, store.inits)
	assert.Equal(t, 1, store.clears)
	assert.Equal(t, 0, store.Len())
}

func TestRetrieve_RebuildsEveryCall(t *testing.T) {
	emb := &fakeEmbedder{}
	store := newCountingStore()
	p, err := NewPipeline(emb, store)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := p.Retrieve(context.Background(), scenarioCatalog(), scenarioUser, "q", 1)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, emb.prepareCalls)
	assert.Equal(t, 2, store.inits)
}

func TestRetrieve_TopK(t *testing.T) {
	catalog := []domain.SchemeRecord{{SchemeName: "a"}, {SchemeName: "b"}, {SchemeName: "c"}}
	p, err := NewPipeline(&fakeEmbedder{}, memory.NewStorage())
	require.NoError(t, err)

	res, err := p.Retrieve(context.Background(), catalog, scenarioUser, "q", 2)
	require.NoError(t, err)
	assert.Len(t, res.Documents, 2)
	assert.GreaterOrEqual(t, res.Documents[0].Score, res.Documents[1].Score)

	_, err = p.Retrieve(context.Background(), catalog, scenarioUser, "q", 0)
	assert.ErrorIs(t, err, ErrInvalidTopK)
}

func TestRetrieve_CollaboratorFailure(t *testing.T) {
	boom := errors.New("model load failed")
	cases := map[string]func() (*fakeEmbedder, *countingStore){
		"prepare": func() (*fakeEmbedder, *countingStore) {
			return &fakeEmbedder{PrepareFunc: func(context.Context, []string) error { return boom }}, newCountingStore()
		},
		"embed": func() (*fakeEmbedder, *countingStore) {
			return &fakeEmbedder{EmbedFunc: func(context.Context, string) ([]float64, error) { return nil, boom }}, newCountingStore()
		},
		"search": func() (*fakeEmbedder, *countingStore) {
			s := newCountingStore()
			s.searchErr = boom
			return &fakeEmbedder{}, s
		},
	}
	for name, setup := range cases {
		t.Run(name, func(t *testing.T) {
			emb, store := setup()
			p, err := NewPipeline(emb, store)
			require.NoError(t, err)
			_, err = p.Retrieve(context.Background(), scenarioCatalog(), scenarioUser, "q", 3)
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrCollaborator)
			assert.ErrorIs(t, err, boom)
		})
	}
}

func TestRetrieve_LexicalFallback(t *testing.T) {
	catalog := []domain.SchemeRecord{
		{SchemeName: "Widow pension", Benefits: "monthly pension"},
		{SchemeName: "Crop insurance", Benefits: "insurance for crops"},
	}
	emb := &fakeEmbedder{EmbedFunc: func(_ context.Context, text string) ([]float64, error) {
		if text == "crop insurance" {
			return []float64{0, 0}, nil
		}
		return []float64{1, 0}, nil
	}}
	p, err := NewPipeline(emb, memory.NewStorage())
	require.NoError(t, err)

	res, err := p.Retrieve(context.Background(), catalog, scenarioUser, "crop insurance", 1)
	require.NoError(t, err)
	assert.True(t, res.Lexical)
	require.Len(t, res.Documents, 1)
	assert.Equal(t, "Crop insurance", res.Documents[0].Document.SchemeName)
}

func TestRetrieve_PersistentMode(t *testing.T) {
	st, err := persistent.Open("", nil)
	require.NoError(t, err)
	defer st.Close()

	emb := &fakeEmbedder{}
	p, err := NewPipeline(emb, nil, WithPersistentIndex(st))
	require.NoError(t, err)
	assert.Equal(t, "persistent", p.Mode())

	catalog := append(scenarioCatalog(), domain.SchemeRecord{SchemeName: "C"})
	res, err := p.Retrieve(context.Background(), catalog, scenarioUser, "q", 5)
	require.NoError(t, err)
	require.Len(t, res.Documents, 2)
	for _, d := range res.Documents {
		assert.NotEqual(t, "A", d.Document.SchemeName)
	}
	// whole catalog embedded once, plus the query
	assert.Equal(t, 4, emb.embedCalls)

	_, err = p.Retrieve(context.Background(), catalog, scenarioUser, "q", 5)
	require.NoError(t, err)
	assert.Equal(t, 5, emb.embedCalls)
}

func TestRetrieve_PersistentModeTFIDFMatchesEligibleOnly(t *testing.T) {
	st, err := persistent.Open("", nil)
	require.NoError(t, err)
	defer st.Close()

	p, err := NewPipeline(tfidf.NewEmbedder(), nil, WithPersistentIndex(st))
	require.NoError(t, err)
	catalog := []domain.SchemeRecord{
		{SchemeName: "Farmer support", Benefits: "seeds for farmers", Eligibility: domain.EligibilityRule{Occupation: strp("Farmer")}},
		{SchemeName: "Girl education", Benefits: "scholarship for girls"},
	}
	res, err := p.Retrieve(context.Background(), catalog, scenarioUser, "farmers seeds", 3)
	require.NoError(t, err)
	require.Len(t, res.Documents, 1)
	assert.Equal(t, "Girl education", res.Documents[0].Document.SchemeName)
}

func TestLexicalSearch(t *testing.T) {
	docs := []domain.Document{
		{ID: "1", Text: "pension for elderly"},
		{ID: "2", Text: "scholarship for students"},
		{ID: "3", Text: "students hostel"},
	}
	res := lexicalSearch(docs, "students scholarship", 5)
	require.Len(t, res, 3)
	assert.Equal(t, "2", res[0].Document.ID)
	assert.Equal(t, "3", res[1].Document.ID)
	assert.Equal(t, "1", res[2].Document.ID)
	assert.Zero(t, res[2].Score)

	assert.Len(t, lexicalSearch(docs, "", 2), 2)
}
