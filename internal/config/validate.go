package config

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Validation modes, one per command family.
const (
	ModeRun    = "run"
	ModeLookup = "lookup"
	ModeAuth   = "auth"
	ModeStore  = "store"
)

// Validate checks that the settings a command needs are present and sane.
// Every problem is reported at once.
func (c *Config) Validate(mode string) error {
	var problems []string
	req := func(ok bool, msg string) {
		if !ok {
			problems = append(problems, msg)
		}
	}

	switch mode {
	case ModeRun:
		c.validateDataset(req)
		c.validateLookup(req)
		req(c.Progress.File != "", "progress.file is required")
		req(c.Progress.RowStart >= 0, "progress.row_start must be >= 0")
		req(c.Progress.BatchSize > 0, "progress.batch_size must be > 0")
		req(c.Engine.ItemTimeoutSecs > 0, "engine.item_timeout_secs must be > 0")
		req(c.Engine.FlushTimeoutSecs > 0, "engine.flush_timeout_secs must be > 0")
		req(c.Engine.MaxCycles >= 0, "engine.max_cycles must be >= 0")
	case ModeLookup:
		c.validateLookup(req)
		req(c.Engine.ItemTimeoutSecs > 0, "engine.item_timeout_secs must be > 0")
	case ModeAuth:
		req(c.Sheets.CredentialsFile != "", "sheets.credentials_file is required")
		req(c.Sheets.TokenFile != "", "sheets.token_file is required")
	case ModeStore:
		req(c.Store.Driver != "none", "store.driver is none; there is nothing to query")
	default:
		return eris.Errorf("config: unknown validation mode %q", mode)
	}

	switch c.Store.Driver {
	case "sqlite":
		req(c.Store.Path != "", "store.path is required for sqlite")
	case "postgres":
		req(c.Store.DSN != "", "store.dsn is required for postgres")
	case "none":
	default:
		problems = append(problems, "store.driver must be sqlite, postgres, or none")
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) validateDataset(req func(bool, string)) {
	switch c.Dataset.Driver {
	case "sheets":
		req(c.Sheets.SpreadsheetID != "", "sheets.spreadsheet_id is required")
		req(c.Sheets.SheetName != "", "sheets.sheet_name is required")
		req(c.Sheets.CredentialsFile != "", "sheets.credentials_file is required")
		req(c.Sheets.TokenFile != "", "sheets.token_file is required")
	case "xlsx":
		req(c.XLSX.Path != "", "xlsx.path is required")
	default:
		req(false, "dataset.driver must be sheets or xlsx")
	}
	for key, col := range map[string]string{
		"columns.name": c.Columns.Name, "columns.profile": c.Columns.Profile,
		"columns.size": c.Columns.Size, "columns.industry": c.Columns.Industry,
	} {
		req(col != "", key+" is required")
	}
}

func (c *Config) validateLookup(req func(bool, string)) {
	req(c.LinkedIn.CookiesFile != "" || (c.LinkedIn.Username != "" && c.LinkedIn.Password != ""),
		"linkedin.cookies_file or linkedin.username and linkedin.password are required")
	req(c.Browser.NavRPS > 0, "browser.nav_rps must be > 0")
	req(c.Fallback.FailureThreshold > 0, "fallback.failure_threshold must be > 0")
}
