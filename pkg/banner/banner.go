package banner

import (
	"fmt"

	"agentboard/pkg/config"
)

const banner = `
 █████╗  ██████╗ ███████╗███╗   ██╗████████╗██████╗  ██████╗  █████╗ ██████╗ ██████╗
██╔══██╗██╔════╝ ██╔════╝████╗  ██║╚══██╔══╝██╔══██╗██╔═══██╗██╔══██╗██╔══██╗██╔══██╗
███████║██║  ███╗█████╗  ██╔██╗ ██║   ██║   ██████╔╝██║   ██║███████║██████╔╝██║  ██║
██╔══██║██║   ██║██╔══╝  ██║╚██╗██║   ██║   ██╔══██╗██║   ██║██╔══██║██╔══██╗██║  ██║
██║  ██║╚██████╔╝███████╗██║ ╚████║   ██║   ██████╔╝╚██████╔╝██║  ██║██║  ██║██████╔╝
╚═╝  ╚═╝ ╚═════╝ ╚══════╝╚═╝  ╚═══╝   ╚═╝   ╚═════╝  ╚═════╝ ╚═╝  ╚═╝╚═╝  ╚═╝╚═════╝
`

// PrintWithEff prints the banner using an EffectiveConfigResult which
// provides richer context (config, addr, dbpath, source).
func PrintWithEff(eff config.EffectiveConfigResult, version string) {
	var addr = eff.Addr
	if addr == "" && eff.Config != nil {
		addr = eff.Config.Addr()
	}
	var dbPath = eff.DBPath
	if dbPath == "" && eff.Config != nil {
		dbPath = eff.Config.Server.DBPath
	}
	var src = eff.Source
	if src == "" {
		src = "flags"
	}

	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("Listen:   %s\n", addr)
	fmt.Printf("DB Path:  %s\n", dbPath)
	if version != "" {
		fmt.Printf("Version:  %s\n", version)
	}
	fmt.Printf("Config: %s\n", src)

	fmt.Println("\n== Examples ===================================================")
	fmt.Println("curl -X POST 'http://<host>:<port>/v1/notifications/process' -d '{\"taskId\":\"t1\",\"fromAgent\":\"alice\",\"content\":\"hey @bob\"}'")
	fmt.Println("curl 'http://<host>:<port>/v1/notifications?agent=bob&undelivered=true'")
	fmt.Println("curl -X POST 'http://<host>:<port>/v1/agents/register' -d '{\"id\":\"bob\",\"name\":\"Bob\",\"capabilities\":[\"golang\"]}'")
	fmt.Println("\n== Production? =================================================")
	be := 0
	fe := 0
	ak := 0
	if eff.Config != nil {
		be = len(eff.Config.Security.APIKeys.Backend)
		fe = len(eff.Config.Security.APIKeys.Frontend)
		ak = len(eff.Config.Security.APIKeys.Admin)
	}
	if be > 0 {
		fmt.Printf("- Backend API keys: OK (%d)\n", be)
	} else {
		fmt.Println("- Backend API keys: MISSING (required for backend services)")
	}
	if fe > 0 {
		fmt.Printf("- Frontend API keys: OK (%d)\n", fe)
	} else {
		fmt.Println("- Frontend API keys: MISSING (required for client access)")
	}
	if ak > 0 {
		fmt.Printf("- Admin API keys: OK (%d)\n", ak)
	} else {
		fmt.Println("- Admin API keys: MISSING (required for admin tooling)")
	}

	// TLS
	tlsOK := false
	if eff.Config != nil && eff.Config.Server.TLS.CertFile != "" && eff.Config.Server.TLS.KeyFile != "" {
		tlsOK = true
	}
	if tlsOK {
		fmt.Println("- TLS: configured")
	} else {
		fmt.Println("- TLS: unconfigured")
	}

	// DB path
	if eff.DBPath != "" {
		fmt.Printf("- DB Path: %s\n", eff.DBPath)
	} else {
		fmt.Println("- DB Path: not set (use --db or AGENTBOARD_DB_PATH)")
	}

	// Liveness sweep
	sweepEnabled := false
	sweepInfo := ""
	if eff.Config != nil {
		sweepEnabled = eff.Config.Sweep.Enabled
		if sweepEnabled {
			if eff.Config.Sweep.Cron != "" {
				sweepInfo = "cron=" + eff.Config.Sweep.Cron
			}
			if eff.Config.Sweep.StaleAfter > 0 {
				if sweepInfo != "" {
					sweepInfo += " "
				}
				sweepInfo += "stale_after=" + eff.Config.Sweep.StaleAfter.Std().String()
			}
		}
	}
	if sweepEnabled {
		if sweepInfo != "" {
			fmt.Printf("- Liveness sweep: enabled (%s)\n", sweepInfo)
		} else {
			fmt.Println("- Liveness sweep: enabled")
		}
	} else {
		fmt.Println("- Liveness sweep: disabled")
	}

	fmt.Println("\n== Logs: =================================================")
}
