package service

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"jansahay/internal/domain"
	"jansahay/internal/eligibility"
	"jansahay/internal/projector"
	"jansahay/internal/vectorstore/memory"
	"jansahay/internal/vectorstore/persistent"
)

var (
	// ErrEmbedderRequired is returned when no embedder is provided.
	ErrEmbedderRequired = errors.New("embedder required")
	// ErrStoreRequired is returned when no vector store is provided in rebuild mode.
	ErrStoreRequired = errors.New("vector store required")
	// ErrInvalidTopK is returned for a non-positive k.
	ErrInvalidTopK = errors.New("k must be positive")
)

// Result is the outcome of one retrieval run.
type Result struct {
	// Eligible is the filtered catalog in catalog order.
	Eligible []domain.SchemeRecord
	// Documents are the top-k matches, most similar first.
	Documents []domain.SearchResult
	// Lexical is set when ranking fell back to token overlap.
	Lexical bool
}

// NoEligibleSchemes reports the empty-eligible outcome; no search was attempted.
func (r Result) NoEligibleSchemes() bool { return len(r.Eligible) == 0 }

// Pipeline filters the catalog for a user and searches only the eligible schemes.
type Pipeline struct {
	evaluator  *eligibility.Evaluator
	embedder   domain.Embedder
	store      domain.VectorStore
	persistent *persistent.Store
	logger     *zap.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger; nil keeps the no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithEvaluator replaces the default eligibility evaluator.
func WithEvaluator(ev *eligibility.Evaluator) Option {
	return func(p *Pipeline) {
		if ev != nil {
			p.evaluator = ev
		}
	}
}

// WithPersistentIndex switches the pipeline to the persistent index mode:
// the whole catalog is embedded once into st and each query ranks only the
// stored vectors of eligible schemes.
func WithPersistentIndex(st *persistent.Store) Option {
	return func(p *Pipeline) { p.persistent = st }
}

// NewPipeline assembles a pipeline. In rebuild mode store is rebuilt from the
// eligible documents on every Retrieve; in persistent mode store may be nil.
func NewPipeline(embedder domain.Embedder, store domain.VectorStore, opts ...Option) (*Pipeline, error) {
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	p := &Pipeline{embedder: embedder, store: store, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(p)
	}
	if p.store == nil && p.persistent == nil {
		return nil, ErrStoreRequired
	}
	if p.evaluator == nil {
		ev, err := eligibility.NewEvaluator()
		if err != nil {
			return nil, err
		}
		p.evaluator = ev
	}
	return p, nil
}

// Mode names the index mode in use.
func (p *Pipeline) Mode() string {
	if p.persistent != nil {
		return "persistent"
	}
	return "rebuild"
}

// Eligible returns the schemes user qualifies for, in catalog order.
func (p *Pipeline) Eligible(schemes []domain.SchemeRecord, user domain.UserProfile) []domain.SchemeRecord {
	return p.evaluator.Filter(schemes, user)
}

// Retrieve filters schemes for user and returns up to k eligible documents
// ranked by similarity to query. With no eligible scheme it returns an empty
// Result without touching the embedder or the index.
func (p *Pipeline) Retrieve(ctx context.Context, schemes []domain.SchemeRecord, user domain.UserProfile, query string, k int) (Result, error) {
	if k <= 0 {
		return Result{}, ErrInvalidTopK
	}
	log := p.logger.With(zap.String("run_id", uuid.NewString()), zap.String("mode", p.Mode()))

	eligible := p.Eligible(schemes, user)
	log.Info("eligibility filtered", zap.Int("catalog", len(schemes)), zap.Int("eligible", len(eligible)))
	if len(eligible) == 0 {
		return Result{}, nil
	}
	docs := projector.ProjectAll(eligible)

	var (
		idx domain.VectorStore
		err error
	)
	if p.persistent != nil {
		idx, err = p.persistentIndex(ctx, log, schemes, docs)
	} else {
		idx, err = p.rebuildIndex(ctx, log, docs)
		defer func() {
			if cerr := p.store.Clear(ctx); cerr != nil {
				log.Warn("failed to clear index", zap.Error(cerr))
			}
		}()
	}
	if err != nil {
		return Result{}, err
	}

	results, lexical, err := p.rank(ctx, idx, docs, query, k)
	if err != nil {
		return Result{}, err
	}
	log.Info("retrieval finished", zap.String("query", query), zap.Int("k", k), zap.Int("results", len(results)), zap.Bool("lexical", lexical))
	return Result{Eligible: eligible, Documents: results, Lexical: lexical}, nil
}

// rebuildIndex embeds docs and loads them into a freshly initialised store.
func (p *Pipeline) rebuildIndex(ctx context.Context, log *zap.Logger, docs []domain.Document) (domain.VectorStore, error) {
	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Text
	}
	if err := p.embedder.Prepare(ctx, texts); err != nil {
		return nil, collaborator("prepare embedder", err)
	}
	vectors, err := p.embedAll(ctx, docs)
	if err != nil {
		return nil, err
	}
	if err := p.store.Init(ctx, dimension(p.embedder, vectors)); err != nil {
		return nil, collaborator("init index", err)
	}
	if err := p.store.Upsert(ctx, docs, vectors); err != nil {
		return nil, collaborator("upsert index", err)
	}
	log.Debug("index rebuilt", zap.String("embedder", p.embedder.Name()), zap.Int("documents", len(docs)))
	return p.store, nil
}

// persistentIndex syncs the whole catalog into the persistent store and
// returns an in-memory index over the eligible documents' stored vectors.
func (p *Pipeline) persistentIndex(ctx context.Context, log *zap.Logger, schemes []domain.SchemeRecord, eligible []domain.Document) (domain.VectorStore, error) {
	all := projector.ProjectAll(schemes)
	texts := make([]string, len(all))
	for i, d := range all {
		texts[i] = d.Text
	}
	if err := p.embedder.Prepare(ctx, texts); err != nil {
		return nil, collaborator("prepare embedder", err)
	}
	ns := namespaceFor(p.embedder, all)
	n, err := p.persistent.Sync(ctx, ns, all, p.embedder.Embed)
	if err != nil {
		return nil, collaborator("sync persistent index", err)
	}
	vectors, err := p.persistent.Load(ns, eligible)
	if err != nil {
		return nil, collaborator("load persistent index", err)
	}
	idx := memory.NewStorage()
	if err := idx.Init(ctx, dimension(p.embedder, vectors)); err != nil {
		return nil, collaborator("init index", err)
	}
	if err := idx.Upsert(ctx, eligible, vectors); err != nil {
		return nil, collaborator("upsert index", err)
	}
	log.Debug("persistent index ready", zap.String("family", ns.Family), zap.Int("embedded", n), zap.Int("indexed", idx.Len()))
	return idx, nil
}

func (p *Pipeline) embedAll(ctx context.Context, docs []domain.Document) ([][]float64, error) {
	vectors := make([][]float64, len(docs))
	for i, d := range docs {
		vec, err := p.embedder.Embed(ctx, d.Text)
		if err != nil {
			return nil, collaborator(fmt.Sprintf("embed %q", d.SchemeName), err)
		}
		vectors[i] = vec
	}
	return vectors, nil
}

// rank searches idx and falls back to lexical overlap when the vector signal is empty.
func (p *Pipeline) rank(ctx context.Context, idx domain.VectorStore, docs []domain.Document, query string, k int) ([]domain.SearchResult, bool, error) {
	vec, err := p.embedder.Embed(ctx, query)
	if err != nil {
		return nil, false, collaborator("embed query", err)
	}
	if isZero(vec) {
		return lexicalSearch(docs, query, k), true, nil
	}
	res, err := idx.Search(ctx, vec, k)
	if err != nil {
		return nil, false, collaborator("search index", err)
	}
	allZero := true
	for _, r := range res {
		if r.Score > 1e-9 {
			allZero = false
			break
		}
	}
	if allZero {
		return lexicalSearch(docs, query, k), true, nil
	}
	return res, false, nil
}

// namespaceFor versions corpus-dependent embedders by a catalog fingerprint.
func namespaceFor(e domain.Embedder, all []domain.Document) persistent.Namespace {
	ns := persistent.Namespace{Family: e.Name(), Version: "1"}
	if cd, ok := e.(domain.CorpusDependent); ok && cd.CorpusDependent() {
		h := sha1.New()
		for _, d := range all {
			h.Write([]byte(d.ID))
			h.Write([]byte{0})
		}
		ns.Version = hex.EncodeToString(h.Sum(nil)[:8])
	}
	return ns
}

func dimension(e domain.Embedder, vectors [][]float64) int {
	if d := e.Dimension(); d > 0 {
		return d
	}
	if len(vectors) > 0 {
		return len(vectors[0])
	}
	return 0
}

func isZero(vec []float64) bool {
	for _, v := range vec {
		if v != 0 {
			return false
		}
	}
	return true
}

func collaborator(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", domain.ErrCollaborator, op, err)
}
