package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/cockroachdb/pebble"

	"agentboard/pkg/logger"
	"agentboard/pkg/models"
)

var db *pebble.DB
var dbPath string

// seq keeps per-agent index keys unique when multiple notifications share
// the same nanosecond timestamp.
var seq uint64

// Open opens (or creates) a Pebble database at the given path and keeps
// a global handle for simple usage in this package.
func Open(path string) error {
	var err error
	logger.Info("opening_pebble_db", "path", path)
	db, err = pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("pebble_open_failed", "path", path, "error", err)
		return err
	}
	dbPath = path
	logger.Info("pebble_opened", "path", path)
	return nil
}

// Close closes the opened pebble DB if present.
func Close() error {
	if db == nil {
		return nil
	}
	if err := db.Close(); err != nil {
		return err
	}
	db = nil
	logger.Info("pebble_closed")
	return nil
}

// Ready reports whether the store is opened and ready.
func Ready() bool {
	return db != nil
}

func notifKey(id string) []byte {
	return []byte("notif:id:" + id)
}

func subKey(taskID, agent string) []byte {
	return []byte("sub:" + taskID + ":" + agent)
}

// SaveNotification writes a notification document keyed by its id and adds
// a per-target index entry with a sortable timestamp suffix.
// Key format: notif:agent:<target>:<unix_nano_padded>-<seq> -> notification id.
func SaveNotification(n models.Notification) error {
	if db == nil {
		return fmt.Errorf("pebble not opened; call store.Open first")
	}
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	if err := db.Set(notifKey(n.ID), data, pebble.Sync); err != nil {
		recordError("save_notification")
		logger.Error("save_notification_failed", "id", n.ID, "error", err)
		return err
	}
	s := atomic.AddUint64(&seq, 1)
	idxKey := fmt.Sprintf("notif:agent:%s:%020d-%06d", n.TargetAgent, n.CreatedTS, s)
	if err := db.Set([]byte(idxKey), []byte(n.ID), pebble.Sync); err != nil {
		recordError("save_notification_index")
		logger.Error("save_notification_index_failed", "idxKey", idxKey, "error", err)
		return err
	}
	recordSave("notification")
	logger.Debug("notification_saved", "id", n.ID, "target", n.TargetAgent, "type", string(n.Type))
	return nil
}

// GetNotification returns the stored notification JSON for a given id.
func GetNotification(id string) (string, error) {
	if db == nil {
		return "", fmt.Errorf("pebble not opened; call store.Open first")
	}
	v, closer, err := db.Get(notifKey(id))
	if err != nil {
		return "", err
	}
	if closer != nil {
		defer closer.Close()
	}
	return string(v), nil
}

// ListNotifications returns every stored notification document. The engine
// uses this for its lazy load; ordering is by id, callers sort as needed.
func ListNotifications() ([]string, error) {
	return scanValues([]byte("notif:id:"))
}

// ListAgentNotificationIDs returns notification ids for one target agent in
// creation order, resolved through the per-agent index.
func ListAgentNotificationIDs(agent string) ([]string, error) {
	return scanValues([]byte("notif:agent:" + agent + ":"))
}

// SaveSubscription writes a subscription document keyed by (task, agent).
func SaveSubscription(s models.Subscription) error {
	if db == nil {
		return fmt.Errorf("pebble not opened; call store.Open first")
	}
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal subscription: %w", err)
	}
	if err := db.Set(subKey(s.TaskID, s.Agent), data, pebble.Sync); err != nil {
		recordError("save_subscription")
		logger.Error("save_subscription_failed", "task", s.TaskID, "agent", s.Agent, "error", err)
		return err
	}
	recordSave("subscription")
	logger.Debug("subscription_saved", "task", s.TaskID, "agent", s.Agent, "reason", string(s.Reason))
	return nil
}

// GetSubscription returns the stored subscription JSON for (task, agent).
func GetSubscription(taskID, agent string) (string, error) {
	if db == nil {
		return "", fmt.Errorf("pebble not opened; call store.Open first")
	}
	v, closer, err := db.Get(subKey(taskID, agent))
	if err != nil {
		return "", err
	}
	if closer != nil {
		defer closer.Close()
	}
	return string(v), nil
}

// ListSubscriptions returns all subscription documents for a task thread,
// in stable (agent-lexicographic) order.
func ListSubscriptions(taskID string) ([]string, error) {
	return scanValues([]byte("sub:" + taskID + ":"))
}

// ListAllSubscriptions returns every stored subscription document.
func ListAllSubscriptions() ([]string, error) {
	return scanValues([]byte("sub:"))
}

// scanValues collects all values under the given key prefix.
func scanValues(prefix []byte) ([]string, error) {
	if db == nil {
		return nil, fmt.Errorf("pebble not opened; call store.Open first")
	}
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []string
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		v := append([]byte(nil), iter.Value()...)
		out = append(out, string(v))
	}
	recordScan(string(prefix))
	return out, iter.Error()
}

// ListKeys returns all keys (as strings) that start with the given prefix.
// If prefix is empty it returns all keys in the DB.
func ListKeys(prefix string) ([]string, error) {
	if db == nil {
		return nil, fmt.Errorf("pebble not opened; call store.Open first")
	}
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []string
	if prefix == "" {
		for iter.First(); iter.Valid(); iter.Next() {
			k := append([]byte(nil), iter.Key()...)
			out = append(out, string(k))
		}
		return out, iter.Error()
	}
	pfx := []byte(prefix)
	for iter.SeekGE(pfx); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), pfx) {
			break
		}
		k := append([]byte(nil), iter.Key()...)
		out = append(out, string(k))
	}
	return out, iter.Error()
}

// GetKey returns the raw value for the given key.
func GetKey(key string) (string, error) {
	if db == nil {
		return "", fmt.Errorf("pebble not opened; call store.Open first")
	}
	v, closer, err := db.Get([]byte(key))
	if err != nil {
		return "", err
	}
	if closer != nil {
		defer closer.Close()
	}
	return string(v), nil
}

// DBSet writes a raw key (bytes) into the DB. Low-level helper used by
// operator tooling and tests.
func DBSet(key, value []byte) error {
	if db == nil {
		return fmt.Errorf("pebble not opened; call store.Open first")
	}
	return db.Set(key, value, pebble.Sync)
}

// DBIter returns a raw Pebble iterator for low-level operations. Caller
// must close the iterator when done.
func DBIter() (*pebble.Iterator, error) {
	if db == nil {
		return nil, fmt.Errorf("pebble not opened; call store.Open first")
	}
	return db.NewIter(&pebble.IterOptions{})
}
