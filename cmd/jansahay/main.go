package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"jansahay/internal/catalog"
	"jansahay/internal/config"
	"jansahay/internal/domain"
	"jansahay/internal/eligibility"
	"jansahay/internal/embedding/huggingface"
	"jansahay/internal/embedding/openai"
	"jansahay/internal/embedding/tfidf"
	"jansahay/internal/logger"
	"jansahay/internal/report"
	"jansahay/internal/service"
	"jansahay/internal/tui"
	"jansahay/internal/vectorstore/memory"
	"jansahay/internal/vectorstore/persistent"
	"jansahay/internal/vectorstore/qdrant"
)

func main() {
	a := &app{out: os.Stdout}
	if err := a.cli().Run(os.Args); err != nil {
		if a.logger != nil {
			a.logger.Error("run failed", zap.Error(err))
			_ = a.logger.Sync()
			os.Exit(1)
		}
		log.Fatalf("jansahay: %v", err)
	}
}

// app carries state shared by every command once Before has run.
type app struct {
	out    io.Writer
	cfg    *config.AppConfig
	logger *zap.Logger
}

func (a *app) cli() *cli.App {
	return &cli.App{
		Name:      "jansahay",
		Usage:     "Find welfare schemes a citizen is eligible for and rank them against a question",
		UsageText: "jansahay [global options] [search|eligible|tui]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to YAML config file (uses ./config.yaml or ~/.config/jansahay/config.yaml if not provided)",
			},
			&cli.StringFlag{
				Name:  "catalog",
				Usage: "Path to the schemes JSON file",
			},
			&cli.StringFlag{
				Name:    "query",
				Aliases: []string{"q"},
				Usage:   "Question to rank eligible schemes against",
			},
			&cli.IntFlag{
				Name:    "top-k",
				Aliases: []string{"k"},
				Usage:   "Number of schemes to return",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
			},
		},
		Before: a.setup,
		After:  a.teardown,
		Action: a.search,
		Commands: []*cli.Command{
			{
				Name:   "search",
				Usage:  "Filter the catalog for the configured profile and retrieve the most relevant eligible schemes",
				Action: a.search,
			},
			{
				Name:   "eligible",
				Usage:  "List every scheme with its eligibility verdict for the configured profile",
				Action: a.eligible,
			},
			{
				Name:   "tui",
				Usage:  "Query the eligible schemes interactively",
				Action: a.interactive,
			},
		},
	}
}

func (a *app) setup(c *cli.Context) error {
	_ = godotenv.Load()

	var (
		cfg *config.AppConfig
		err error
	)
	if path := c.String("config"); path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, _, err = config.LoadDefault()
	}
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if c.IsSet("catalog") {
		cfg.Catalog = c.String("catalog")
	}
	if c.IsSet("query") {
		cfg.Query = c.String("query")
	}
	if c.IsSet("top-k") {
		cfg.TopK = c.Int("top-k")
	}
	if c.IsSet("log-level") {
		cfg.Logging.Level = c.String("log-level")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	l, err := logger.NewLogger(cfg.Logging.Format, cfg.Logging.Level)
	if err != nil {
		return err
	}
	a.cfg, a.logger = cfg, l
	return nil
}

func (a *app) teardown(*cli.Context) error {
	if a.logger != nil {
		_ = a.logger.Sync()
	}
	return nil
}

func (a *app) search(c *cli.Context) error {
	schemes, ev, err := a.loadCatalog()
	if err != nil {
		return err
	}
	p, closeIndex, err := a.buildPipeline(ev)
	if err != nil {
		return err
	}
	defer closeIndex()

	res, err := p.Retrieve(c.Context, schemes, a.cfg.Profile, a.cfg.Query, a.cfg.TopK)
	if err != nil {
		return fmt.Errorf("retrieve: %w", err)
	}
	out := report.New(a.out)
	if res.NoEligibleSchemes() {
		return out.NoEligible()
	}
	if err := out.EligibleCount(len(res.Eligible)); err != nil {
		return err
	}
	return out.Documents(res.Documents, res.Lexical)
}

func (a *app) eligible(*cli.Context) error {
	schemes, ev, err := a.loadCatalog()
	if err != nil {
		return err
	}
	decisions := ev.Explain(schemes, a.cfg.Profile)
	out := report.New(a.out)
	if err := out.Decisions(decisions); err != nil {
		return err
	}
	n := 0
	for _, d := range decisions {
		if d.Eligible() {
			n++
		}
	}
	if n == 0 {
		return out.NoEligible()
	}
	return out.EligibleCount(n)
}

func (a *app) interactive(c *cli.Context) error {
	schemes, ev, err := a.loadCatalog()
	if err != nil {
		return err
	}
	p, closeIndex, err := a.buildPipeline(ev)
	if err != nil {
		return err
	}
	defer closeIndex()

	m := tui.New(c.Context, p, tui.Session{Schemes: schemes, Profile: a.cfg.Profile, TopK: a.cfg.TopK})
	_, err = tea.NewProgram(m).Run()
	return err
}

// loadCatalog reads the catalog and compiles its expression rules up front.
func (a *app) loadCatalog() ([]domain.SchemeRecord, *eligibility.Evaluator, error) {
	cat, err := catalog.Load(a.cfg.Catalog)
	if err != nil {
		return nil, nil, err
	}
	ev, err := eligibility.NewEvaluator()
	if err != nil {
		return nil, nil, err
	}
	if err := ev.Compile(cat.Schemes()); err != nil {
		return nil, nil, err
	}
	a.logger.Debug("catalog loaded", zap.String("path", a.cfg.Catalog), zap.Int("schemes", cat.Len()))
	return cat.Schemes(), ev, nil
}

func (a *app) buildPipeline(ev *eligibility.Evaluator) (*service.Pipeline, func(), error) {
	emb, err := a.buildEmbedder()
	if err != nil {
		return nil, nil, err
	}
	opts := []service.Option{service.WithLogger(a.logger), service.WithEvaluator(ev)}
	closeIndex := func() {}

	var st domain.VectorStore
	switch a.cfg.Index.Mode {
	case "persistent":
		ps, err := persistent.Open(a.cfg.Index.Path, a.logger)
		if err != nil {
			return nil, nil, fmt.Errorf("open index %s: %w", a.cfg.Index.Path, err)
		}
		opts = append(opts, service.WithPersistentIndex(ps))
		closeIndex = func() {
			if err := ps.Close(); err != nil {
				a.logger.Warn("failed to close index", zap.Error(err))
			}
		}
	default:
		st, err = a.buildStore()
		if err != nil {
			return nil, nil, err
		}
	}

	p, err := service.NewPipeline(emb, st, opts...)
	if err != nil {
		closeIndex()
		return nil, nil, err
	}
	return p, closeIndex, nil
}

func (a *app) buildEmbedder() (domain.Embedder, error) {
	ec := a.cfg.Embedder
	switch ec.Type {
	case "tfidf", "":
		return tfidf.NewEmbedder(), nil
	case "openai":
		if ec.OpenAI == nil {
			return nil, fmt.Errorf("openai embedder config missing")
		}
		client, err := openai.NewClient(openai.Config{
			BaseURL:   ec.OpenAI.BaseURL,
			APIKeyEnv: ec.OpenAI.APIKeyEnv,
			Model:     ec.OpenAI.Model,
			Timeout:   time.Duration(ec.OpenAI.TimeoutSecs) * time.Second,
			Logger:    a.logger,
		})
		if err != nil {
			return nil, fmt.Errorf("openai embedder init failed: %w", err)
		}
		return client, nil
	case "huggingface":
		if ec.HuggingFace == nil {
			return nil, fmt.Errorf("huggingface embedder config missing")
		}
		emb, err := huggingface.New(huggingface.Config{
			Model:    ec.HuggingFace.Model,
			TokenEnv: ec.HuggingFace.TokenEnv,
			URL:      ec.HuggingFace.URL,
			Logger:   a.logger,
		})
		if err != nil {
			return nil, fmt.Errorf("huggingface embedder init failed: %w", err)
		}
		return emb, nil
	default:
		return nil, fmt.Errorf("unknown embedder: %s", ec.Type)
	}
}

func (a *app) buildStore() (domain.VectorStore, error) {
	ic := a.cfg.Index
	switch ic.Store {
	case "memory", "":
		return memory.NewStorage(), nil
	case "qdrant":
		if ic.Qdrant == nil {
			return nil, fmt.Errorf("qdrant config missing")
		}
		return qdrant.NewStorage(qdrant.Config{
			URL:        ic.Qdrant.URL,
			APIKey:     ic.Qdrant.APIKey,
			Collection: ic.Qdrant.Collection,
			Timeout:    time.Duration(ic.Qdrant.TimeoutSecs) * time.Second,
		}), nil
	default:
		return nil, fmt.Errorf("unknown vector store: %s", ic.Store)
	}
}
