package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/statement-cli/internal/artifact"
	"github.com/sells-group/statement-cli/internal/cost"
	"github.com/sells-group/statement-cli/internal/pipeline"
	"github.com/sells-group/statement-cli/internal/provider"
	"github.com/sells-group/statement-cli/internal/render"
	"github.com/sells-group/statement-cli/internal/store"
	"github.com/sells-group/statement-cli/internal/template"
)

// pipelineEnv holds the initialized store, artifact storage and pipeline used
// by the extract, classify, batch and serve commands.
type pipelineEnv struct {
	Store     store.Store     // nil when store.driver is none
	Artifacts *artifact.S3    // nil when storage is not configured
	Pipeline  *pipeline.Pipeline
	Template  *template.Template
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// envOptions carries per command overrides.
type envOptions struct {
	mode         string // config validation mode
	templatePath string
	noStore      bool
	withStorage  bool
}

// initPipeline validates config and builds the pipeline with its provider,
// renderer, template and optional store. Callers should defer env.Close().
func initPipeline(ctx context.Context, opts envOptions) (*pipelineEnv, error) {
	if opts.mode == "" {
		opts.mode = "extract"
	}
	if err := cfg.Validate(opts.mode); err != nil {
		return nil, err
	}

	tmpl, err := template.Load(opts.templatePath)
	if err != nil {
		return nil, err
	}

	calc := cost.NewCalculator(cost.FromConfig(cfg.Pricing))
	prov, err := provider.New(ctx, cfg, calc)
	if err != nil {
		return nil, eris.Wrap(err, "init provider")
	}

	env := &pipelineEnv{Template: tmpl}
	if !opts.noStore {
		st, err := initStore(ctx)
		if err != nil {
			return nil, err
		}
		env.Store = st
	}

	if opts.withStorage {
		s3, err := artifact.New(ctx, cfg.Storage)
		if err != nil {
			env.Close()
			return nil, err
		}
		if s3 == nil {
			zap.L().Warn("storage.endpoint not set, uploads disabled")
		}
		env.Artifacts = s3
	}

	renderer := render.New(cfg.Render, cfg.Pipeline.MaxPages)
	env.Pipeline = pipeline.New(cfg, prov, renderer, tmpl, env.Store)

	zap.L().Info("pipeline ready",
		zap.String("provider", prov.Name()),
		zap.String("model", prov.Model()),
		zap.Int("template_fields", tmpl.Len()),
		zap.Bool("store", env.Store != nil),
	)
	return env, nil
}

// initStore opens and migrates the configured store. It returns nil, nil for
// the "none" driver.
func initStore(ctx context.Context) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.Store.Driver {
	case "", "none":
		return nil, nil
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "statement.db"
		}
		st, err = store.NewSQLite(dsn)
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}
