package app

import (
	"fmt"
	"os"

	"agentboard/pkg/config"

	"github.com/adhocore/gronx"
)

// validateConfig performs quick, fail-fast validation of the effective
// configuration before starting long-running services. Keep checks light
// and focused so callers can surface user-friendly errors.
func validateConfig(eff config.EffectiveConfigResult) error {
	// DB path must be present
	if p := eff.DBPath; p == "" {
		return fmt.Errorf("database path is empty: set --db flag, AGENTBOARD_DB_PATH env, or server.db_path in config")
	}

	// TLS cert/key presence check if one is set
	cert := eff.Config.Server.TLS.CertFile
	key := eff.Config.Server.TLS.KeyFile
	if (cert != "" && key == "") || (cert == "" && key != "") {
		return fmt.Errorf("incomplete TLS configuration: both server.tls.cert_file and server.tls.key_file must be set")
	}
	if cert != "" {
		if _, err := os.Stat(cert); err != nil {
			return fmt.Errorf("tls cert file not accessible: %w", err)
		}
		if _, err := os.Stat(key); err != nil {
			return fmt.Errorf("tls key file not accessible: %w", err)
		}
	}

	// sweep cron must parse if the sweep is enabled with a custom schedule
	if eff.Config.Sweep.Enabled && eff.Config.Sweep.Cron != "" {
		if !gronx.IsValid(eff.Config.Sweep.Cron) {
			return fmt.Errorf("invalid sweep.cron expression: %s", eff.Config.Sweep.Cron)
		}
	}
	if eff.Config.Sweep.StaleAfter < 0 {
		return fmt.Errorf("sweep.stale_after must not be negative")
	}

	return nil
}
