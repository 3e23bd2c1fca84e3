package notify

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"agentboard/pkg/logger"
	"agentboard/pkg/models"
	"agentboard/pkg/store"
	"agentboard/pkg/utils"
)

// lockResource is the named-lock key serializing every read-modify-write
// cycle against the notification collections.
const lockResource = "notifications"

// Engine owns the notification list and the subscription ledger. State is
// a lazily-loaded in-memory mirror of the durable store: loaded on first
// access, kept for the process lifetime, and persisted synchronously
// before any mutation becomes visible. All operations run under the
// store's named lock so concurrent writers cannot interleave their
// read-decide-write cycles.
type Engine struct {
	notifications []models.Notification
	subscriptions []models.Subscription
	loaded        bool
}

// NewEngine returns a fresh engine. Tests construct one per case; the
// server constructs exactly one.
func NewEngine() *Engine {
	return &Engine{}
}

// ensureLoaded populates the in-memory mirror from the store. Caller must
// hold the named lock.
func (e *Engine) ensureLoaded() error {
	if e.loaded {
		return nil
	}
	rawN, err := store.ListNotifications()
	if err != nil {
		return fmt.Errorf("load notifications: %w", err)
	}
	notifs := make([]models.Notification, 0, len(rawN))
	for _, s := range rawN {
		var n models.Notification
		if err := json.Unmarshal([]byte(s), &n); err != nil {
			logger.Warn("skip_invalid_notification", "error", err)
			continue
		}
		notifs = append(notifs, n)
	}
	sort.SliceStable(notifs, func(i, j int) bool { return notifs[i].CreatedTS < notifs[j].CreatedTS })

	rawS, err := store.ListAllSubscriptions()
	if err != nil {
		return fmt.Errorf("load subscriptions: %w", err)
	}
	subs := make([]models.Subscription, 0, len(rawS))
	for _, s := range rawS {
		var sub models.Subscription
		if err := json.Unmarshal([]byte(s), &sub); err != nil {
			logger.Warn("skip_invalid_subscription", "error", err)
			continue
		}
		subs = append(subs, sub)
	}

	e.notifications = notifs
	e.subscriptions = subs
	e.loaded = true
	logger.Info("notify_state_loaded", "notifications", len(notifs), "subscriptions", len(subs))
	return nil
}

func newNotification(typ models.NotificationType, taskID, from, target, content string) models.Notification {
	return models.Notification{
		ID:          utils.GenNotificationID(),
		Type:        typ,
		TaskID:      taskID,
		FromAgent:   strings.ToLower(from),
		TargetAgent: strings.ToLower(target),
		Content:     content,
		CreatedTS:   time.Now().UTC().UnixNano(),
	}
}

// ProcessComment ingests one comment on a task thread and fans out
// notifications. Explicitly mentioned agents (with @all expanded against
// allAgents) receive a mention notification; remaining subscribers of the
// thread receive a reply notification. Afterwards the commenter is
// subscribed with reason "commented" and every explicit mention with
// reason "mentioned". Returns the created notifications: explicit targets
// in parse order, then subscribers in ledger order.
func (e *Engine) ProcessComment(taskID, fromAgent, content string, allAgents []string) ([]models.Notification, error) {
	if strings.TrimSpace(taskID) == "" {
		return nil, fmt.Errorf("%w: taskId is required", ErrValidation)
	}
	if strings.TrimSpace(fromAgent) == "" {
		return nil, fmt.Errorf("%w: fromAgent is required", ErrValidation)
	}
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("%w: content is required", ErrValidation)
	}
	from := strings.ToLower(strings.TrimSpace(fromAgent))

	var created []models.Notification
	err := store.Locks.With(lockResource, func() error {
		if err := e.ensureLoaded(); err != nil {
			return err
		}

		// explicit targets: parse order, @all expanded in place, self excluded
		var explicit []string
		inExplicit := make(map[string]struct{})
		addExplicit := func(h string) {
			if h == from {
				return
			}
			if _, ok := inExplicit[h]; ok {
				return
			}
			inExplicit[h] = struct{}{}
			explicit = append(explicit, h)
		}
		for _, h := range ParseMentions(content) {
			if h == BroadcastHandle {
				for _, a := range allAgents {
					agent := strings.ToLower(strings.TrimSpace(a))
					if agent == "" {
						continue
					}
					addExplicit(agent)
				}
				continue
			}
			addExplicit(h)
		}

		// implicit targets: thread subscribers not already targeted
		var implicit []string
		for _, sub := range e.subscriptions {
			if sub.TaskID != taskID || sub.Agent == from {
				continue
			}
			if _, ok := inExplicit[sub.Agent]; ok {
				continue
			}
			implicit = append(implicit, sub.Agent)
		}

		batch := make([]models.Notification, 0, len(explicit)+len(implicit))
		for _, target := range explicit {
			batch = append(batch, newNotification(models.NotifMention, taskID, from, target, content))
		}
		for _, target := range implicit {
			batch = append(batch, newNotification(models.NotifReply, taskID, from, target, content))
		}
		for _, n := range batch {
			if err := store.SaveNotification(n); err != nil {
				return err
			}
		}

		if err := e.subscribeLocked(taskID, from, models.SubCommented); err != nil {
			return err
		}
		for _, target := range explicit {
			if err := e.subscribeLocked(taskID, target, models.SubMentioned); err != nil {
				return err
			}
		}

		e.notifications = append(e.notifications, batch...)
		created = batch
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.Info("comment_processed", "task", taskID, "from", from, "created", len(created))
	return created, nil
}

// NotifyAssignment creates an assignment notification for every assignee
// except the assigner, and subscribes each assignee to the thread.
func (e *Engine) NotifyAssignment(taskID string, assignees []string, assignedBy string) ([]models.Notification, error) {
	if strings.TrimSpace(taskID) == "" {
		return nil, fmt.Errorf("%w: taskId is required", ErrValidation)
	}
	if strings.TrimSpace(assignedBy) == "" {
		return nil, fmt.Errorf("%w: assignedBy is required", ErrValidation)
	}
	by := strings.ToLower(strings.TrimSpace(assignedBy))

	var created []models.Notification
	err := store.Locks.With(lockResource, func() error {
		if err := e.ensureLoaded(); err != nil {
			return err
		}
		var batch []models.Notification
		var targets []string
		seen := make(map[string]struct{})
		for _, a := range assignees {
			agent := strings.ToLower(strings.TrimSpace(a))
			if agent == "" || agent == by {
				continue
			}
			if _, ok := seen[agent]; ok {
				continue
			}
			seen[agent] = struct{}{}
			targets = append(targets, agent)
			content := fmt.Sprintf("%s assigned you to task %s", by, taskID)
			batch = append(batch, newNotification(models.NotifAssignment, taskID, by, agent, content))
		}
		for _, n := range batch {
			if err := store.SaveNotification(n); err != nil {
				return err
			}
		}
		for _, agent := range targets {
			if err := e.subscribeLocked(taskID, agent, models.SubAssigned); err != nil {
				return err
			}
		}
		e.notifications = append(e.notifications, batch...)
		created = batch
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.Info("assignment_notified", "task", taskID, "by", by, "created", len(created))
	return created, nil
}

// CreateNotification is the system-alert path: both sides carry the
// "system" sentinel. The title is display context for the log only; the
// persisted body is message.
func (e *Engine) CreateNotification(typ models.NotificationType, title, message, taskID string) (models.Notification, error) {
	if !models.ValidNotificationType(typ) {
		return models.Notification{}, fmt.Errorf("%w: invalid notification type %q", ErrValidation, typ)
	}
	if strings.TrimSpace(message) == "" {
		return models.Notification{}, fmt.Errorf("%w: message is required", ErrValidation)
	}

	var n models.Notification
	err := store.Locks.With(lockResource, func() error {
		if err := e.ensureLoaded(); err != nil {
			return err
		}
		n = newNotification(typ, taskID, models.SystemAgent, models.SystemAgent, message)
		if err := store.SaveNotification(n); err != nil {
			return err
		}
		e.notifications = append(e.notifications, n)
		return nil
	})
	if err != nil {
		return models.Notification{}, err
	}
	logger.Info("system_notification_created", "id", n.ID, "type", string(typ), "title", title)
	return n, nil
}

// GetOptions filters a GetNotifications query. Agent is required; the
// remaining filters apply conjunctively.
type GetOptions struct {
	Agent       string
	Undelivered bool
	TaskID      string
	Limit       int
}

// GetNotifications returns notifications for one target agent, newest
// first. The agent handle is lower-cased before comparison, matching the
// casing applied at creation time.
func (e *Engine) GetNotifications(opts GetOptions) ([]models.Notification, error) {
	if strings.TrimSpace(opts.Agent) == "" {
		return nil, fmt.Errorf("%w: agent is required", ErrValidation)
	}
	agent := strings.ToLower(strings.TrimSpace(opts.Agent))

	var out []models.Notification
	err := store.Locks.With(lockResource, func() error {
		if err := e.ensureLoaded(); err != nil {
			return err
		}
		for _, n := range e.notifications {
			if n.TargetAgent != agent {
				continue
			}
			if opts.Undelivered && n.Delivered {
				continue
			}
			if opts.TaskID != "" && n.TaskID != opts.TaskID {
				continue
			}
			out = append(out, n)
		}
		sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedTS > out[j].CreatedTS })
		if opts.Limit > 0 && len(out) > opts.Limit {
			out = out[:opts.Limit]
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// MarkDelivered flips a notification to delivered. Idempotent: a repeat
// call on an already-delivered notification returns true and leaves the
// delivery timestamp untouched. Returns false when the id is unknown.
func (e *Engine) MarkDelivered(id string) (bool, error) {
	var found bool
	err := store.Locks.With(lockResource, func() error {
		if err := e.ensureLoaded(); err != nil {
			return err
		}
		for i := range e.notifications {
			if e.notifications[i].ID != id {
				continue
			}
			found = true
			if e.notifications[i].Delivered {
				return nil
			}
			updated := e.notifications[i]
			updated.Delivered = true
			updated.DeliveredTS = time.Now().UTC().UnixNano()
			if err := store.SaveNotification(updated); err != nil {
				return err
			}
			e.notifications[i] = updated
			return nil
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return found, nil
}

// MarkAllDelivered marks every undelivered notification for the agent as
// delivered and returns the number changed.
func (e *Engine) MarkAllDelivered(agent string) (int, error) {
	if strings.TrimSpace(agent) == "" {
		return 0, fmt.Errorf("%w: agent is required", ErrValidation)
	}
	target := strings.ToLower(strings.TrimSpace(agent))

	count := 0
	err := store.Locks.With(lockResource, func() error {
		if err := e.ensureLoaded(); err != nil {
			return err
		}
		now := time.Now().UTC().UnixNano()
		for i := range e.notifications {
			if e.notifications[i].TargetAgent != target || e.notifications[i].Delivered {
				continue
			}
			updated := e.notifications[i]
			updated.Delivered = true
			updated.DeliveredTS = now
			if err := store.SaveNotification(updated); err != nil {
				return err
			}
			e.notifications[i] = updated
			count++
		}
		return nil
	})
	if err != nil {
		return count, err
	}
	logger.Info("delivered_all", "agent", target, "count", count)
	return count, nil
}

// Stats aggregates the current notification list.
func (e *Engine) Stats() (models.NotificationStats, error) {
	stats := models.NotificationStats{
		ByAgent: map[string]models.AgentNotifStat{},
		ByType:  map[string]int{},
	}
	err := store.Locks.With(lockResource, func() error {
		if err := e.ensureLoaded(); err != nil {
			return err
		}
		for _, n := range e.notifications {
			stats.TotalNotifications++
			if !n.Delivered {
				stats.Undelivered++
			}
			s := stats.ByAgent[n.TargetAgent]
			s.Total++
			if !n.Delivered {
				s.Undelivered++
			}
			stats.ByAgent[n.TargetAgent] = s
			stats.ByType[string(n.Type)]++
		}
		return nil
	})
	if err != nil {
		return models.NotificationStats{}, err
	}
	return stats, nil
}

// Subscribe adds (taskID, agent) to the ledger with the given reason. A
// duplicate subscription is a no-op and keeps the original reason.
func (e *Engine) Subscribe(taskID, agent string, reason models.SubscriptionReason) error {
	if strings.TrimSpace(taskID) == "" || strings.TrimSpace(agent) == "" {
		return fmt.Errorf("%w: taskId and agent are required", ErrValidation)
	}
	if !models.ValidSubscriptionReason(reason) {
		return fmt.Errorf("%w: invalid subscription reason %q", ErrValidation, reason)
	}
	return store.Locks.With(lockResource, func() error {
		if err := e.ensureLoaded(); err != nil {
			return err
		}
		return e.subscribeLocked(taskID, strings.ToLower(strings.TrimSpace(agent)), reason)
	})
}

// subscribeLocked inserts a subscription if absent. Caller must hold the
// named lock and have loaded state; agent must already be lower-cased.
func (e *Engine) subscribeLocked(taskID, agent string, reason models.SubscriptionReason) error {
	for _, sub := range e.subscriptions {
		if sub.TaskID == taskID && sub.Agent == agent {
			return nil
		}
	}
	sub := models.Subscription{
		TaskID:       taskID,
		Agent:        agent,
		Reason:       reason,
		SubscribedTS: time.Now().UTC().UnixNano(),
	}
	if err := store.SaveSubscription(sub); err != nil {
		return err
	}
	e.subscriptions = append(e.subscriptions, sub)
	return nil
}

// GetSubscriptions returns the ledger entries for one thread, in stable
// ledger order.
func (e *Engine) GetSubscriptions(taskID string) ([]models.Subscription, error) {
	var out []models.Subscription
	err := store.Locks.With(lockResource, func() error {
		if err := e.ensureLoaded(); err != nil {
			return err
		}
		for _, sub := range e.subscriptions {
			if sub.TaskID == taskID {
				out = append(out, sub)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
