package models

// NotificationType classifies how a notification was produced.
type NotificationType string

const (
	NotifMention    NotificationType = "mention"
	NotifReply      NotificationType = "reply"
	NotifAssignment NotificationType = "assignment"
	NotifSystem     NotificationType = "system"
	NotifError      NotificationType = "error"
)

// ValidNotificationType reports whether t is one of the closed enumeration.
func ValidNotificationType(t NotificationType) bool {
	switch t {
	case NotifMention, NotifReply, NotifAssignment, NotifSystem, NotifError:
		return true
	}
	return false
}

// SystemAgent is the sentinel handle used for system-originated
// notifications on both the from and target side.
const SystemAgent = "system"

type Notification struct {
	ID   string           `json:"id"`
	Type NotificationType `json:"type"`
	// TaskID associates the notification with a thread; empty for
	// system-level notifications.
	TaskID      string `json:"task_id,omitempty"`
	FromAgent   string `json:"from_agent"`
	TargetAgent string `json:"target_agent"`
	Content     string `json:"content"`
	// CreatedTS timestamp (ns)
	CreatedTS int64 `json:"created_ts"`
	Delivered bool  `json:"delivered"`
	// DeliveredTS is set exactly once, on the first delivery mark (ns).
	DeliveredTS int64 `json:"delivered_ts,omitempty"`
}

// SubscriptionReason records how a thread subscription was acquired.
type SubscriptionReason string

const (
	SubCommented SubscriptionReason = "commented"
	SubMentioned SubscriptionReason = "mentioned"
	SubAssigned  SubscriptionReason = "assigned"
	SubManual    SubscriptionReason = "manual"
)

// ValidSubscriptionReason reports whether r is one of the closed enumeration.
func ValidSubscriptionReason(r SubscriptionReason) bool {
	switch r {
	case SubCommented, SubMentioned, SubAssigned, SubManual:
		return true
	}
	return false
}

// Subscription ties an agent to a task thread. Identity is (TaskID, Agent);
// the reason is set at creation and never overwritten.
type Subscription struct {
	TaskID string             `json:"task_id"`
	Agent  string             `json:"agent"`
	Reason SubscriptionReason `json:"reason"`
	// SubscribedTS timestamp (ns)
	SubscribedTS int64 `json:"subscribed_ts"`
}

// NotificationStats is the aggregate returned by the engine's Stats call.
type NotificationStats struct {
	TotalNotifications int                       `json:"total_notifications"`
	Undelivered        int                       `json:"undelivered"`
	ByAgent            map[string]AgentNotifStat `json:"by_agent"`
	ByType             map[string]int            `json:"by_type"`
}

type AgentNotifStat struct {
	Total       int `json:"total"`
	Undelivered int `json:"undelivered"`
}
