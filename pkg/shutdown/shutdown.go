package shutdown

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"agentboard/pkg/logger"
)

// abortRecord is the machine-readable exit request dropped under the
// state/abort directory. Cmd is "crash" when a dump accompanies it and
// "abort" for operator-requested exits.
type abortRecord struct {
	Time      string            `json:"time"`
	Reason    string            `json:"reason"`
	Cmd       string            `json:"cmd"`
	CrashPath string            `json:"crash_path,omitempty"`
	Meta      map[string]string `json:"meta,omitempty"`
}

// Abort writes crash diagnostics, counts down so log sinks can flush, and
// exits with status 2. The optional delay overrides the 10s default.
func Abort(contextMsg string, err error, dbPath string, delaySeconds ...int) {
	delay := 10
	if len(delaySeconds) > 0 && delaySeconds[0] >= 0 {
		delay = delaySeconds[0]
	}
	logger.Error("startup_fatal", "msg", contextMsg, "error", err)
	dumpPath, reqPath, derr := AbortWithDiagnostics(dbPath, contextMsg, err)
	if derr != nil {
		logger.Error("abort_with_diagnostics_failed", "error", derr)
		fmt.Fprintf(os.Stderr, "FAILED TO WRITE CRASH DUMP: %v\n", derr)
	} else {
		logger.Info("wrote_crash_dump", "path", dumpPath, "request", reqPath)
		fmt.Fprintf(os.Stderr, "CRASH DUMP WRITTEN: %s\n", dumpPath)
	}
	for i := delay; i > 0; i-- {
		logger.Info("exiting_in_seconds", "seconds", i)
		time.Sleep(1 * time.Second)
	}
	os.Exit(2)
}

func crashDir(dbPath string) string {
	if dbPath == "" {
		return "./crash"
	}
	return filepath.Join(dbPath, "state", "crash")
}

func abortDir(dbPath string) string {
	if dbPath == "" {
		return "./abort"
	}
	return filepath.Join(dbPath, "state", "abort")
}

// writeAtomic lands content at path via a temp file and rename so a
// crashing process never leaves a truncated artifact behind.
func writeAtomic(dir, finalName string, write func(*os.File) error) (string, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".partial-*.tmp")
	if err != nil {
		return "", err
	}
	name := tmp.Name()
	if err := write(tmp); err != nil {
		tmp.Close()
		_ = os.Remove(name)
		return "", err
	}
	tmp.Sync()
	tmp.Close()
	final := filepath.Join(dir, finalName)
	if err := os.Rename(name, final); err != nil {
		_ = os.Remove(name)
		return "", err
	}
	_ = os.Chmod(final, 0o600)
	return final, nil
}

// AbortWithDiagnostics writes a human-readable crash dump (environment
// plus all goroutine stacks) and an abort record referencing it. Returns
// both paths.
func AbortWithDiagnostics(dbPath, reason string, cause error) (string, string, error) {
	ts := time.Now().UnixNano()

	dumpPath, err := writeAtomic(crashDir(dbPath), fmt.Sprintf("crash-%d.log", ts), func(f *os.File) error {
		fmt.Fprintf(f, "time: %s\n", time.Now().UTC().Format(time.RFC3339))
		fmt.Fprintf(f, "reason: %s\n", reason)
		fmt.Fprintf(f, "error: %v\n", cause)
		fmt.Fprintf(f, "\n--- environ ---\n")
		for _, e := range os.Environ() {
			fmt.Fprintln(f, e)
		}
		fmt.Fprintf(f, "\n--- goroutine stacks ---\n")
		buf := make([]byte, 1<<20)
		n := runtime.Stack(buf, true)
		_, werr := f.Write(buf[:n])
		return werr
	})
	if err != nil {
		return "", "", fmt.Errorf("write crash dump: %w", err)
	}

	reqPath, err := writeAbortRecord(dbPath, ts, abortRecord{
		Time:      time.Now().UTC().Format(time.RFC3339),
		Reason:    reason,
		Cmd:       "crash",
		CrashPath: dumpPath,
		Meta:      map[string]string{"pid": fmt.Sprintf("%d", os.Getpid())},
	})
	if err != nil {
		return dumpPath, "", err
	}
	return dumpPath, reqPath, nil
}

// RequestExitFile writes an operator-requested abort record without a
// crash dump and returns its path.
func RequestExitFile(dbPath, reason string) (string, error) {
	return writeAbortRecord(dbPath, time.Now().UnixNano(), abortRecord{
		Time:   time.Now().UTC().Format(time.RFC3339),
		Reason: reason,
		Cmd:    "abort",
		Meta:   map[string]string{"pid": fmt.Sprintf("%d", os.Getpid())},
	})
}

func writeAbortRecord(dbPath string, ts int64, rec abortRecord) (string, error) {
	return writeAtomic(abortDir(dbPath), fmt.Sprintf("req-%d.json", ts), func(f *os.File) error {
		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	})
}

// SetupSignalHandler returns a context cancelled on SIGINT or SIGTERM.
// SIGPIPE also cancels, after logging a full goroutine stack dump since a
// broken pipe usually means a supervisor or log collector went away.
func SetupSignalHandler(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sigc
		logger.Info("signal_received", "signal", s.String(), "msg", "shutdown requested")
		cancel()
	}()

	sigpipe := make(chan os.Signal, 1)
	signal.Notify(sigpipe, syscall.SIGPIPE)
	go func() {
		s := <-sigpipe
		buf := make([]byte, 1<<20)
		n := runtime.Stack(buf, true)
		logger.Info("signal_received", "signal", s.String(), "msg", "SIGPIPE - dumping goroutine stacks")
		logger.Info("goroutine_stack_dump", "dump", string(buf[:n]))
		cancel()
	}()

	return ctx, cancel
}
