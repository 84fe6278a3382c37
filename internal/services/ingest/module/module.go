// Package module wires the ingest service and its adapters
package module

import (
	"io"

	"ghdistill/internal/adapters/gharchive"
	"ghdistill/internal/platform/config"
	"ghdistill/internal/platform/logger"
	"ghdistill/internal/services/ingest/distill"
	"ghdistill/internal/services/ingest/domain"
	"ghdistill/internal/services/ingest/repo"
	"ghdistill/internal/services/ingest/service"
)

// Deps carries the shared dependencies modules are built from
type Deps struct {
	Cfg config.Conf
}

// Ports defines the ingest module ports
type Ports struct {
	Runner domain.RunnerPort
}

// Module implements the ingest module
type Module struct {
	opts  Options
	repo  *repo.FS
	ports Ports
}

// New constructs the ingest module.
// It wires the fetcher (optionally disk-cached), the archive reader, the
// distiller, the filesystem index repo and the service from deps.Cfg.
func New(deps Deps) (*Module, error) {
	opts := FromConfig(deps.Cfg)
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	var fetch domain.Fetcher
	hf := gharchive.NewHTTPFetcher(opts.FetchTimeout, opts.MaxRetries, opts.RetryBase)
	hf.BaseURL = opts.BaseURL
	fetch = hf
	if opts.CacheDir != "" {
		fetch = gharchive.NewCachedFetcher(opts.CacheDir, hf,
			gharchive.WithRetention(opts.CacheMaxAge, opts.CacheMaxBytes))
		logger.Named("ingest").Debug().Str("dir", opts.CacheDir).Msg("archive cache enabled")
	}

	st := repo.NewFS(opts.DataDir)
	svc := service.New(st, fetch, readerFactory{}, distill.New())

	m := &Module{opts: opts, repo: st}
	m.ports = Ports{Runner: svc}
	return m, nil
}

// Name returns the module name
func (m *Module) Name() string { return "ingest" }

// Ports returns the module ports
func (m *Module) Ports() Ports { return m.ports }

// DataDir returns the resolved dataset root
func (m *Module) DataDir() string { return m.opts.DataDir }

// Close releases per-run resources (open day writers)
func (m *Module) Close() error { return m.repo.Close() }

// readerFactory adapts gharchive.NewReader to the domain port
type readerFactory struct{}

func (readerFactory) New(rc io.ReadCloser) (domain.ReaderPort, error) {
	return gharchive.NewReader(rc)
}
