package notify

import (
	"errors"
	"testing"

	"agentboard/pkg/models"
	"agentboard/pkg/store"
)

func setupStore(t *testing.T) {
	t.Helper()
	if err := store.Open(t.TempDir()); err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
}

func targets(ns []models.Notification) []string {
	out := make([]string, 0, len(ns))
	for _, n := range ns {
		out = append(out, n.TargetAgent)
	}
	return out
}

func TestProcessCommentMentions(t *testing.T) {
	setupStore(t)
	e := NewEngine()

	created, err := e.ProcessComment("task-1", "alice", "hey @bob and @Carol", nil)
	if err != nil {
		t.Fatalf("ProcessComment: %v", err)
	}
	if len(created) != 2 {
		t.Fatalf("created %d notifications, want 2", len(created))
	}
	if created[0].TargetAgent != "bob" || created[1].TargetAgent != "carol" {
		t.Fatalf("targets = %v, want [bob carol]", targets(created))
	}
	for _, n := range created {
		if n.Type != models.NotifMention {
			t.Fatalf("type = %s, want mention", n.Type)
		}
		if n.FromAgent != "alice" {
			t.Fatalf("from = %s, want alice", n.FromAgent)
		}
		if n.TaskID != "task-1" {
			t.Fatalf("task = %s, want task-1", n.TaskID)
		}
		if n.Delivered {
			t.Fatal("new notification must start undelivered")
		}
		if n.ID == "" || n.CreatedTS == 0 {
			t.Fatalf("missing id or timestamp: %+v", n)
		}
	}
}

func TestProcessCommentSelfMentionExcluded(t *testing.T) {
	setupStore(t)
	e := NewEngine()

	created, err := e.ProcessComment("task-1", "alice", "note to self @alice and @Alice", nil)
	if err != nil {
		t.Fatalf("ProcessComment: %v", err)
	}
	if len(created) != 0 {
		t.Fatalf("self-mention produced %v, want none", targets(created))
	}
}

func TestProcessCommentBroadcast(t *testing.T) {
	setupStore(t)
	e := NewEngine()

	all := []string{"alice", "bob", "carol"}
	created, err := e.ProcessComment("task-1", "alice", "release is out @all", all)
	if err != nil {
		t.Fatalf("ProcessComment: %v", err)
	}
	// the commenter is excluded from their own broadcast
	if got := targets(created); len(got) != 2 || got[0] != "bob" || got[1] != "carol" {
		t.Fatalf("targets = %v, want [bob carol]", got)
	}
}

func TestProcessCommentBroadcastOverlapDeduped(t *testing.T) {
	setupStore(t)
	e := NewEngine()

	// @bob appears explicitly and again via @all: one notification only,
	// parse order preserved.
	created, err := e.ProcessComment("task-1", "alice", "@bob first, then @all", []string{"alice", "bob", "carol"})
	if err != nil {
		t.Fatalf("ProcessComment: %v", err)
	}
	if got := targets(created); len(got) != 2 || got[0] != "bob" || got[1] != "carol" {
		t.Fatalf("targets = %v, want [bob carol]", got)
	}
}

func TestProcessCommentBroadcastSkipsBlankRosterEntries(t *testing.T) {
	setupStore(t)
	e := NewEngine()

	created, err := e.ProcessComment("task-1", "alice", "@all hello", []string{"alice", "", "  ", "bob"})
	if err != nil {
		t.Fatalf("ProcessComment: %v", err)
	}
	if got := targets(created); len(got) != 1 || got[0] != "bob" {
		t.Fatalf("targets = %v, want [bob]", got)
	}

	stats, err := e.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if _, ok := stats.ByAgent[""]; ok {
		t.Fatalf("stats recorded an empty-handle mailbox: %+v", stats.ByAgent)
	}
}

func TestProcessCommentNotifiesSubscribers(t *testing.T) {
	setupStore(t)
	e := NewEngine()

	// bob comments, which subscribes him to the thread
	if _, err := e.ProcessComment("task-1", "bob", "first comment", nil); err != nil {
		t.Fatalf("ProcessComment: %v", err)
	}
	// alice replies without mentioning anybody: bob gets a reply notification
	created, err := e.ProcessComment("task-1", "alice", "second comment", nil)
	if err != nil {
		t.Fatalf("ProcessComment: %v", err)
	}
	if len(created) != 1 || created[0].TargetAgent != "bob" || created[0].Type != models.NotifReply {
		t.Fatalf("created = %+v, want one reply to bob", created)
	}
}

func TestProcessCommentMentionBeatsSubscription(t *testing.T) {
	setupStore(t)
	e := NewEngine()

	if _, err := e.ProcessComment("task-1", "bob", "first", nil); err != nil {
		t.Fatalf("ProcessComment: %v", err)
	}
	// bob is a subscriber AND mentioned: exactly one notification, mention wins
	created, err := e.ProcessComment("task-1", "alice", "@bob see this", nil)
	if err != nil {
		t.Fatalf("ProcessComment: %v", err)
	}
	if len(created) != 1 || created[0].Type != models.NotifMention {
		t.Fatalf("created = %+v, want single mention for bob", created)
	}
}

func TestProcessCommentAutoSubscribes(t *testing.T) {
	setupStore(t)
	e := NewEngine()

	if _, err := e.ProcessComment("task-1", "Alice", "cc @bob", nil); err != nil {
		t.Fatalf("ProcessComment: %v", err)
	}
	subs, err := e.GetSubscriptions("task-1")
	if err != nil {
		t.Fatalf("GetSubscriptions: %v", err)
	}
	if len(subs) != 2 {
		t.Fatalf("got %d subscriptions, want 2", len(subs))
	}
	byAgent := map[string]models.SubscriptionReason{}
	for _, s := range subs {
		byAgent[s.Agent] = s.Reason
	}
	if byAgent["alice"] != models.SubCommented {
		t.Fatalf("alice reason = %s, want commented", byAgent["alice"])
	}
	if byAgent["bob"] != models.SubMentioned {
		t.Fatalf("bob reason = %s, want mentioned", byAgent["bob"])
	}
}

func TestSubscriptionKeepsOriginalReason(t *testing.T) {
	setupStore(t)
	e := NewEngine()

	if err := e.Subscribe("task-1", "bob", models.SubManual); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	// a later mention must not overwrite the manual reason
	if _, err := e.ProcessComment("task-1", "alice", "@bob hi", nil); err != nil {
		t.Fatalf("ProcessComment: %v", err)
	}
	subs, _ := e.GetSubscriptions("task-1")
	for _, s := range subs {
		if s.Agent == "bob" && s.Reason != models.SubManual {
			t.Fatalf("bob reason = %s, want manual preserved", s.Reason)
		}
	}
}

func TestSubscribeRejectsInvalidReason(t *testing.T) {
	setupStore(t)
	e := NewEngine()

	err := e.Subscribe("task-1", "bob", models.SubscriptionReason("bogus"))
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestNotifyAssignment(t *testing.T) {
	setupStore(t)
	e := NewEngine()

	created, err := e.NotifyAssignment("task-9", []string{"bob", "Bob", "carol", "alice"}, "alice")
	if err != nil {
		t.Fatalf("NotifyAssignment: %v", err)
	}
	// deduped and the assigner skipped
	if got := targets(created); len(got) != 2 || got[0] != "bob" || got[1] != "carol" {
		t.Fatalf("targets = %v, want [bob carol]", got)
	}
	for _, n := range created {
		if n.Type != models.NotifAssignment {
			t.Fatalf("type = %s, want assignment", n.Type)
		}
		if n.Content != "alice assigned you to task task-9" {
			t.Fatalf("content = %q", n.Content)
		}
	}
	subs, _ := e.GetSubscriptions("task-9")
	if len(subs) != 2 {
		t.Fatalf("got %d subscriptions, want 2 assignees", len(subs))
	}
	for _, s := range subs {
		if s.Reason != models.SubAssigned {
			t.Fatalf("reason = %s, want assigned", s.Reason)
		}
	}
}

func TestCreateSystemNotification(t *testing.T) {
	setupStore(t)
	e := NewEngine()

	n, err := e.CreateNotification(models.NotifSystem, "maintenance", "going down at noon", "")
	if err != nil {
		t.Fatalf("CreateNotification: %v", err)
	}
	if n.FromAgent != models.SystemAgent || n.TargetAgent != models.SystemAgent {
		t.Fatalf("system sentinel missing: %+v", n)
	}
	if _, err := e.CreateNotification(models.NotificationType("bogus"), "", "msg", ""); !errors.Is(err, ErrValidation) {
		t.Fatalf("invalid type err = %v, want ErrValidation", err)
	}
}

func TestGetNotificationsFilters(t *testing.T) {
	setupStore(t)
	e := NewEngine()

	if _, err := e.ProcessComment("task-1", "alice", "@bob one", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := e.ProcessComment("task-2", "alice", "@bob two", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := e.ProcessComment("task-1", "alice", "@carol three", nil); err != nil {
		t.Fatal(err)
	}

	if _, err := e.GetNotifications(GetOptions{}); !errors.Is(err, ErrValidation) {
		t.Fatalf("missing agent must fail validation")
	}

	// case-insensitive agent match, newest first
	ns, err := e.GetNotifications(GetOptions{Agent: "BOB"})
	if err != nil {
		t.Fatalf("GetNotifications: %v", err)
	}
	if len(ns) != 2 {
		t.Fatalf("got %d for bob, want 2", len(ns))
	}
	if ns[0].CreatedTS < ns[1].CreatedTS {
		t.Fatal("results not newest-first")
	}

	ns, _ = e.GetNotifications(GetOptions{Agent: "bob", TaskID: "task-2"})
	if len(ns) != 1 || ns[0].Content != "@bob two" {
		t.Fatalf("task filter got %+v", ns)
	}

	ns, _ = e.GetNotifications(GetOptions{Agent: "bob", Limit: 1})
	if len(ns) != 1 {
		t.Fatalf("limit got %d, want 1", len(ns))
	}

	// undelivered filter
	all, _ := e.GetNotifications(GetOptions{Agent: "bob"})
	if _, err := e.MarkDelivered(all[0].ID); err != nil {
		t.Fatal(err)
	}
	ns, _ = e.GetNotifications(GetOptions{Agent: "bob", Undelivered: true})
	if len(ns) != 1 {
		t.Fatalf("undelivered got %d, want 1", len(ns))
	}
}

func TestMarkDeliveredIdempotent(t *testing.T) {
	setupStore(t)
	e := NewEngine()

	created, err := e.ProcessComment("task-1", "alice", "@bob hi", nil)
	if err != nil {
		t.Fatal(err)
	}
	id := created[0].ID

	found, err := e.MarkDelivered(id)
	if err != nil || !found {
		t.Fatalf("first MarkDelivered = (%v, %v)", found, err)
	}
	ns, _ := e.GetNotifications(GetOptions{Agent: "bob"})
	firstTS := ns[0].DeliveredTS
	if !ns[0].Delivered || firstTS == 0 {
		t.Fatalf("not delivered after mark: %+v", ns[0])
	}

	// repeat succeeds and leaves the timestamp alone
	found, err = e.MarkDelivered(id)
	if err != nil || !found {
		t.Fatalf("repeat MarkDelivered = (%v, %v)", found, err)
	}
	ns, _ = e.GetNotifications(GetOptions{Agent: "bob"})
	if ns[0].DeliveredTS != firstTS {
		t.Fatal("repeat delivery must not touch deliveredTS")
	}

	if found, _ := e.MarkDelivered("ntf-missing"); found {
		t.Fatal("unknown id reported found")
	}
}

func TestMarkAllDelivered(t *testing.T) {
	setupStore(t)
	e := NewEngine()

	if _, err := e.ProcessComment("task-1", "alice", "@bob one", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := e.ProcessComment("task-2", "alice", "@bob two", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := e.ProcessComment("task-1", "alice", "@carol other", nil); err != nil {
		t.Fatal(err)
	}

	count, err := e.MarkAllDelivered("Bob")
	if err != nil {
		t.Fatalf("MarkAllDelivered: %v", err)
	}
	if count != 2 {
		t.Fatalf("count = %d, want 2", count)
	}
	// second run is a no-op
	if count, _ = e.MarkAllDelivered("bob"); count != 0 {
		t.Fatalf("repeat count = %d, want 0", count)
	}
	// carol untouched
	ns, _ := e.GetNotifications(GetOptions{Agent: "carol", Undelivered: true})
	if len(ns) != 1 {
		t.Fatalf("carol undelivered = %d, want 1", len(ns))
	}
}

func TestStats(t *testing.T) {
	setupStore(t)
	e := NewEngine()

	if _, err := e.ProcessComment("task-1", "alice", "@bob one", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := e.NotifyAssignment("task-1", []string{"carol"}, "alice"); err != nil {
		t.Fatal(err)
	}
	created, _ := e.ProcessComment("task-1", "alice", "@bob two", nil)
	if _, err := e.MarkDelivered(created[0].ID); err != nil {
		t.Fatal(err)
	}

	stats, err := e.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	// carol subscribed via assignment, so "two" also produced a reply for carol
	if stats.TotalNotifications != 4 {
		t.Fatalf("total = %d, want 4", stats.TotalNotifications)
	}
	if stats.Undelivered != 3 {
		t.Fatalf("undelivered = %d, want 3", stats.Undelivered)
	}
	if stats.ByType["mention"] != 2 || stats.ByType["assignment"] != 1 || stats.ByType["reply"] != 1 {
		t.Fatalf("byType = %v", stats.ByType)
	}
	if s := stats.ByAgent["bob"]; s.Total != 2 || s.Undelivered != 1 {
		t.Fatalf("bob stat = %+v", s)
	}
}

func TestStateSurvivesReload(t *testing.T) {
	setupStore(t)

	e := NewEngine()
	created, err := e.ProcessComment("task-1", "alice", "@bob persists", nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.MarkDelivered(created[0].ID); err != nil {
		t.Fatal(err)
	}

	// a fresh engine over the same store sees the same state
	e2 := NewEngine()
	ns, err := e2.GetNotifications(GetOptions{Agent: "bob"})
	if err != nil {
		t.Fatalf("reload GetNotifications: %v", err)
	}
	if len(ns) != 1 || !ns[0].Delivered || ns[0].Content != "@bob persists" {
		t.Fatalf("reloaded state = %+v", ns)
	}
	subs, err := e2.GetSubscriptions("task-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(subs) != 2 {
		t.Fatalf("reloaded subscriptions = %d, want 2", len(subs))
	}
}

func TestProcessCommentValidation(t *testing.T) {
	setupStore(t)
	e := NewEngine()

	cases := []struct{ task, from, content string }{
		{"", "alice", "hi"},
		{"task-1", "", "hi"},
		{"task-1", "alice", ""},
		{"task-1", "alice", "   "},
	}
	for _, tc := range cases {
		if _, err := e.ProcessComment(tc.task, tc.from, tc.content, nil); !errors.Is(err, ErrValidation) {
			t.Fatalf("ProcessComment(%q,%q,%q) err = %v, want ErrValidation", tc.task, tc.from, tc.content, err)
		}
	}
}
