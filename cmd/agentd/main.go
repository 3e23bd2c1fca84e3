// Command agentd is a sidecar that keeps one agent visible on the board:
// it registers the agent, sends heartbeats on an interval, and serves a
// tiny local health endpoint for supervisors.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/valyala/fasthttp"

	"agentboard/pkg/logger"
)

type registerBody struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Model        string            `json:"model,omitempty"`
	Provider     string            `json:"provider,omitempty"`
	Capabilities []string          `json:"capabilities,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

type heartbeatBody struct {
	Status           *string `json:"status,omitempty"`
	CurrentTaskID    *string `json:"currentTaskId,omitempty"`
	CurrentTaskTitle *string `json:"currentTaskTitle,omitempty"`
}

func main() {
	server := flag.String("server", "http://127.0.0.1:8080", "agentboard server base URL")
	apiKey := flag.String("api-key", "", "backend API key for the server")
	id := flag.String("id", "", "agent id (required)")
	name := flag.String("name", "", "agent display name (defaults to id)")
	model := flag.String("model", "", "agent model identifier")
	provider := flag.String("provider", "", "agent provider")
	caps := flag.String("capabilities", "", "comma-separated capability list")
	interval := flag.Duration("interval", 60*time.Second, "heartbeat interval")
	healthAddr := flag.String("health-addr", ":8089", "local health endpoint listen address")
	flag.Parse()

	if *id == "" {
		fmt.Fprintln(os.Stderr, "--id required")
		os.Exit(2)
	}
	if *name == "" {
		*name = *id
	}
	logger.Init()

	client := &fasthttp.Client{
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	post := func(path string, body interface{}) (int, []byte, error) {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		req := fasthttp.AcquireRequest()
		resp := fasthttp.AcquireResponse()
		defer fasthttp.ReleaseRequest(req)
		defer fasthttp.ReleaseResponse(resp)
		req.SetRequestURI(strings.TrimRight(*server, "/") + path)
		req.Header.SetMethod(fasthttp.MethodPost)
		req.Header.SetContentType("application/json")
		if *apiKey != "" {
			req.Header.Set("X-API-Key", *apiKey)
		}
		req.SetBody(b)
		if err := client.Do(req, resp); err != nil {
			return 0, nil, err
		}
		return resp.StatusCode(), append([]byte(nil), resp.Body()...), nil
	}

	register := func() error {
		var capList []string
		for _, c := range strings.Split(*caps, ",") {
			if s := strings.TrimSpace(c); s != "" {
				capList = append(capList, s)
			}
		}
		code, body, err := post("/v1/agents/register", registerBody{
			ID:           *id,
			Name:         *name,
			Model:        *model,
			Provider:     *provider,
			Capabilities: capList,
		})
		if err != nil {
			return err
		}
		if code != http.StatusCreated {
			return fmt.Errorf("register returned %d: %s", code, string(body))
		}
		return nil
	}

	heartbeat := func() error {
		code, body, err := post("/v1/agents/register/"+*id+"/heartbeat", heartbeatBody{})
		if err != nil {
			return err
		}
		switch code {
		case http.StatusOK:
			return nil
		case http.StatusNotFound:
			// server restarted and lost the in-memory registry; re-register
			logger.Warn("agent_unknown_reregistering", "id", *id)
			return register()
		default:
			return fmt.Errorf("heartbeat returned %d: %s", code, string(body))
		}
	}

	if err := register(); err != nil {
		logger.Error("register_failed", "id", *id, "error", err)
		os.Exit(1)
	}
	logger.Info("agent_registered", "id", *id, "server", *server)

	// local health endpoint for supervisors
	var lastBeat atomic.Int64
	lastBeat.Store(time.Now().UnixNano())
	go func() {
		srv := &fasthttp.Server{
			Handler:      healthHandler(*id, &lastBeat),
			Name:         "agentd",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 5 * time.Second,
		}
		if err := srv.ListenAndServe(*healthAddr); err != nil {
			logger.Error("health_endpoint_failed", "addr", *healthAddr, "error", err)
		}
	}()

	for range time.Tick(*interval) {
		if err := heartbeat(); err != nil {
			logger.Warn("heartbeat_failed", "id", *id, "error", err)
			continue
		}
		lastBeat.Store(time.Now().UnixNano())
		logger.Debug("heartbeat_sent", "id", *id)
	}
}

// healthHandler reports the agent id and the time of the last successful
// heartbeat so a supervisor can restart a wedged sidecar.
func healthHandler(agentID string, lastBeat *atomic.Int64) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		p := string(ctx.Path())
		if p != "/health" && p != "/healthz" {
			ctx.SetStatusCode(http.StatusNotFound)
			return
		}
		ctx.SetContentType("application/json")
		beat := time.Unix(0, lastBeat.Load()).UTC().Format(time.RFC3339)
		fmt.Fprintf(ctx, "{\"status\":\"ok\",\"agent\":%q,\"last_heartbeat\":%q}", agentID, beat)
	}
}
