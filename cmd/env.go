package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/sheet-enricher/internal/browser"
	"github.com/sells-group/sheet-enricher/internal/config"
	"github.com/sells-group/sheet-enricher/internal/dataset"
	"github.com/sells-group/sheet-enricher/internal/engine"
	"github.com/sells-group/sheet-enricher/internal/lookup"
	"github.com/sells-group/sheet-enricher/internal/model"
	"github.com/sells-group/sheet-enricher/internal/resilience"
	"github.com/sells-group/sheet-enricher/internal/store"
	"github.com/sells-group/sheet-enricher/pkg/sheets"
)

func storeConfig(c *config.Config) store.Config {
	return store.Config{
		Driver: c.Store.Driver,
		Path:   c.Store.Path,
		DSN:    c.Store.DSN,
		Pool:   store.PoolConfig{MaxConns: c.Store.MaxConns, MinConns: c.Store.MinConns},
	}
}

// initStore opens the ledger database. It returns a nil Store when the
// driver is "none".
func initStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, storeConfig(cfg))
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	return st, nil
}

func datasetConfig(c *config.Config) dataset.Config {
	return dataset.Config{
		Driver: c.Dataset.Driver,
		Columns: dataset.Columns{
			Name:     c.Columns.Name,
			Profile:  c.Columns.Profile,
			Size:     c.Columns.Size,
			Industry: c.Columns.Industry,
		},
		Sheets: dataset.SheetsConfig{
			SpreadsheetID: c.Sheets.SpreadsheetID,
			SheetName:     c.Sheets.SheetName,
			SheetID:       c.Sheets.SheetID,
		},
		XLSX: dataset.XLSXConfig{
			Path:       c.XLSX.Path,
			SheetName:  c.XLSX.SheetName,
			OutputPath: c.XLSX.OutputPath,
		},
	}
}

// initDataset opens the configured spreadsheet. The Google client is only
// built for the sheets driver.
func initDataset(ctx context.Context) (dataset.Dataset, error) {
	dc := datasetConfig(cfg)
	var client sheets.Client
	if dc.Driver == dataset.DriverSheets || dc.Driver == "" {
		c, err := initSheetsClient(ctx)
		if err != nil {
			return nil, err
		}
		client = c
	}
	ds, err := dataset.Open(dc, client)
	if err != nil {
		return nil, eris.Wrap(err, "open dataset")
	}
	return ds, nil
}

func initSheetsClient(ctx context.Context) (sheets.Client, error) {
	oauthCfg, err := sheets.LoadOAuthConfig(cfg.Sheets.CredentialsFile)
	if err != nil {
		return nil, err
	}
	// Token refreshes must keep working while a canceled run flushes.
	hc, err := sheets.HTTPClient(context.WithoutCancel(ctx), oauthCfg, sheets.NewTokenFile(cfg.Sheets.TokenFile))
	if err != nil {
		return nil, err
	}
	hc.Timeout = 60 * time.Second

	opts := []sheets.Option{sheets.WithHTTPClient(hc)}
	if cfg.Sheets.BaseURL != "" {
		opts = append(opts, sheets.WithBaseURL(cfg.Sheets.BaseURL))
	}
	return sheets.NewClient(opts...), nil
}

func browserConfig(c *config.Config) browser.Config {
	return browser.Config{
		ChromePath: c.Browser.ChromePath,
		Headless:   c.Browser.Headless,
		UserAgent:  c.Browser.UserAgent,
		NavRPS:     c.Browser.NavRPS,
		Settle:     time.Duration(c.Browser.SettleMillis) * time.Millisecond,
		NavTimeout: time.Duration(c.Browser.NavTimeoutSecs) * time.Second,
	}
}

func providerConfig(c *config.Config) browser.ProviderConfig {
	return browser.ProviderConfig{
		BaseURL:         c.LinkedIn.BaseURL,
		SearchEngineURL: c.LinkedIn.SearchEngineURL,
		Username:        c.LinkedIn.Username,
		Password:        c.LinkedIn.Password,
		MaxAuthAttempts: c.LinkedIn.MaxAuthAttempts,
		Fallback: resilience.NewCircuitConfig("web_search",
			c.Fallback.FailureThreshold,
			time.Duration(c.Fallback.ResetTimeoutSecs)*time.Second),
	}
}

// startSession launches Chrome. The caller owns the session and must close
// it through the provider built on top of it.
func startSession(ctx context.Context) (*browser.Session, error) {
	sess := browser.NewSession(browserConfig(cfg))
	if err := sess.Start(ctx); err != nil {
		return nil, eris.Wrap(err, "start browser")
	}
	return sess, nil
}

// newProvider builds the lookup chain on a started session, adding the
// result cache when a store is available.
func newProvider(sess *browser.Session, cache lookup.Cache) lookup.Provider {
	var p lookup.Provider = browser.NewProvider(sess, browser.NewCookieFile(cfg.LinkedIn.CookiesFile), providerConfig(cfg))
	if cache != nil && cfg.Cache.Enabled {
		zap.L().Debug("lookup cache enabled", zap.Duration("ttl", cfg.Cache.TTL()))
		p = lookup.NewCached(p, cache, cfg.Cache.TTL())
	}
	return p
}

func engineOptions(c *config.Config, source string) engine.Options {
	return engine.Options{
		ItemTimeout:  c.Engine.ItemTimeout(),
		AbandonGrace: c.Engine.AbandonGrace(),
		FlushTimeout: c.Engine.FlushTimeout(),
		MaxCycles:    c.Engine.MaxCycles,
		SourceName:   source,
	}
}

func defaultProgress(c *config.Config) model.Progress {
	return model.Progress{RowStart: c.Progress.RowStart, MaxCountPerCycle: c.Progress.BatchSize}
}

// withTimeout is used by commands that talk to the store directly.
func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, 30*time.Second)
}
