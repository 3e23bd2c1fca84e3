package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/cockroachdb/pebble"

	"agentboard/pkg/models"
)

func openTemp(t *testing.T) {
	t.Helper()
	if err := Open(t.TempDir()); err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = Close() })
}

func TestReadyLifecycle(t *testing.T) {
	if Ready() {
		t.Fatal("ready before open")
	}
	openTemp(t)
	if !Ready() {
		t.Fatal("not ready after open")
	}
	if err := Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if Ready() {
		t.Fatal("ready after close")
	}
	// double close is a no-op
	if err := Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestOperationsRequireOpen(t *testing.T) {
	if err := SaveNotification(models.Notification{ID: "ntf-1"}); err == nil {
		t.Fatal("save succeeded without open store")
	}
	if _, err := ListNotifications(); err == nil {
		t.Fatal("list succeeded without open store")
	}
}

func TestNotificationRoundTrip(t *testing.T) {
	openTemp(t)
	n := models.Notification{
		ID:          "ntf-1",
		Type:        models.NotifMention,
		TaskID:      "task-1",
		FromAgent:   "alice",
		TargetAgent: "bob",
		Content:     "hi @bob",
		CreatedTS:   100,
	}
	if err := SaveNotification(n); err != nil {
		t.Fatalf("save: %v", err)
	}
	raw, err := GetNotification("ntf-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	var got models.Notification
	if err := json.Unmarshal([]byte(raw), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got != n {
		t.Fatalf("got %+v, want %+v", got, n)
	}
	if _, err := GetNotification("ntf-missing"); !errors.Is(err, pebble.ErrNotFound) {
		t.Fatalf("missing id err = %v, want pebble.ErrNotFound", err)
	}
}

func TestSaveNotificationOverwrite(t *testing.T) {
	openTemp(t)
	n := models.Notification{ID: "ntf-1", TargetAgent: "bob", CreatedTS: 100}
	if err := SaveNotification(n); err != nil {
		t.Fatal(err)
	}
	n.Delivered = true
	n.DeliveredTS = 200
	if err := SaveNotification(n); err != nil {
		t.Fatal(err)
	}
	docs, err := ListNotifications()
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 1 {
		t.Fatalf("overwrite produced %d documents, want 1", len(docs))
	}
	var got models.Notification
	if err := json.Unmarshal([]byte(docs[0]), &got); err != nil {
		t.Fatal(err)
	}
	if !got.Delivered || got.DeliveredTS != 200 {
		t.Fatalf("overwrite not visible: %+v", got)
	}
}

func TestAgentIndexOrder(t *testing.T) {
	openTemp(t)
	// inserted out of order; index keys are zero-padded timestamps so the
	// scan comes back in creation order
	for i, ts := range []int64{300, 100, 200} {
		n := models.Notification{ID: fmt.Sprintf("ntf-%d", i), TargetAgent: "bob", CreatedTS: ts}
		if err := SaveNotification(n); err != nil {
			t.Fatal(err)
		}
	}
	if err := SaveNotification(models.Notification{ID: "ntf-other", TargetAgent: "carol", CreatedTS: 50}); err != nil {
		t.Fatal(err)
	}

	ids, err := ListAgentNotificationIDs("bob")
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 3 || ids[0] != "ntf-1" || ids[1] != "ntf-2" || ids[2] != "ntf-0" {
		t.Fatalf("ids = %v, want creation order [ntf-1 ntf-2 ntf-0]", ids)
	}
	if other, _ := ListAgentNotificationIDs("carol"); len(other) != 1 {
		t.Fatalf("carol index leaked: %v", other)
	}
}

func TestSubscriptionRoundTrip(t *testing.T) {
	openTemp(t)
	subs := []models.Subscription{
		{TaskID: "task-1", Agent: "bob", Reason: models.SubMentioned, SubscribedTS: 1},
		{TaskID: "task-1", Agent: "alice", Reason: models.SubCommented, SubscribedTS: 2},
		{TaskID: "task-2", Agent: "carol", Reason: models.SubAssigned, SubscribedTS: 3},
	}
	for _, s := range subs {
		if err := SaveSubscription(s); err != nil {
			t.Fatal(err)
		}
	}

	raw, err := GetSubscription("task-1", "bob")
	if err != nil {
		t.Fatal(err)
	}
	var got models.Subscription
	if err := json.Unmarshal([]byte(raw), &got); err != nil {
		t.Fatal(err)
	}
	if got.Reason != models.SubMentioned {
		t.Fatalf("round trip = %+v", got)
	}

	// per-task scan is agent-lexicographic
	docs, err := ListSubscriptions("task-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 2 {
		t.Fatalf("task-1 subs = %d, want 2", len(docs))
	}
	var first models.Subscription
	if err := json.Unmarshal([]byte(docs[0]), &first); err != nil {
		t.Fatal(err)
	}
	if first.Agent != "alice" {
		t.Fatalf("first agent = %s, want alice", first.Agent)
	}

	all, err := ListAllSubscriptions()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("all subs = %d, want 3", len(all))
	}
}

func TestSaveSubscriptionUpsert(t *testing.T) {
	openTemp(t)
	s := models.Subscription{TaskID: "task-1", Agent: "bob", Reason: models.SubManual, SubscribedTS: 1}
	if err := SaveSubscription(s); err != nil {
		t.Fatal(err)
	}
	s.Reason = models.SubMentioned
	if err := SaveSubscription(s); err != nil {
		t.Fatal(err)
	}
	docs, _ := ListSubscriptions("task-1")
	if len(docs) != 1 {
		t.Fatalf("duplicate key produced %d documents", len(docs))
	}
}

func TestListKeysAndGetKey(t *testing.T) {
	openTemp(t)
	if err := DBSet([]byte("aaa:1"), []byte("v1")); err != nil {
		t.Fatal(err)
	}
	if err := DBSet([]byte("aaa:2"), []byte("v2")); err != nil {
		t.Fatal(err)
	}
	if err := DBSet([]byte("bbb:1"), []byte("v3")); err != nil {
		t.Fatal(err)
	}

	keys, err := ListKeys("aaa:")
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 2 || keys[0] != "aaa:1" || keys[1] != "aaa:2" {
		t.Fatalf("keys = %v", keys)
	}
	all, err := ListKeys("")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("all keys = %v", all)
	}
	v, err := GetKey("bbb:1")
	if err != nil || v != "v3" {
		t.Fatalf("GetKey = (%q, %v)", v, err)
	}
}

func TestNamedLockSerializes(t *testing.T) {
	var locks NamedLocks
	counter := 0
	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			_ = locks.With("resource", func() error {
				counter++
				return nil
			})
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}
	if counter != 10 {
		t.Fatalf("counter = %d, want 10", counter)
	}
	wantErr := errors.New("boom")
	if err := locks.With("resource", func() error { return wantErr }); !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want propagated", err)
	}
}
