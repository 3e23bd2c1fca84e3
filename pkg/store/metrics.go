package store

import (
	"io/fs"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	saveCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agentboard_store_saves_total",
		Help: "Durable store writes by document kind.",
	}, []string{"kind"})
	scanCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agentboard_store_scans_total",
		Help: "Prefix scans against the durable store.",
	}, []string{"prefix"})
	errorCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agentboard_store_errors_total",
		Help: "Durable store operation failures.",
	}, []string{"op"})
)

func recordSave(kind string) { saveCounter.WithLabelValues(kind).Inc() }

func recordError(op string) { errorCounter.WithLabelValues(op).Inc() }

func recordScan(prefix string) {
	// collapse per-thread prefixes so the label space stays bounded
	switch {
	case len(prefix) >= 6 && prefix[:6] == "notif:":
		scanCounter.WithLabelValues("notif").Inc()
	case len(prefix) >= 4 && prefix[:4] == "sub:":
		scanCounter.WithLabelValues("sub").Inc()
	default:
		scanCounter.WithLabelValues("other").Inc()
	}
}

// DBSizeBytes returns the best-effort on-disk size of the DB directory.
// Used by the readiness output and the startup banner.
func DBSizeBytes() uint64 {
	if db == nil || dbPath == "" {
		return 0
	}
	var total uint64
	_ = filepath.WalkDir(dbPath, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return nil
		}
		total += uint64(fi.Size())
		return nil
	})
	return total
}
