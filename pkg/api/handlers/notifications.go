package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"agentboard/pkg/auth"
	"agentboard/pkg/logger"
	"agentboard/pkg/models"
	"agentboard/pkg/notify"
	"agentboard/pkg/utils"
	"agentboard/pkg/validation"

	"github.com/gorilla/mux"
)

var engine *notify.Engine

// RegisterNotifications registers HTTP handlers for notification and
// subscription endpoints.
func RegisterNotifications(r *mux.Router, eng *notify.Engine) {
	engine = eng

	// /v1/notifications
	r.HandleFunc("/notifications", listNotifications).Methods(http.MethodGet)
	r.HandleFunc("/notifications/stats", notificationStats).Methods(http.MethodGet)
	r.HandleFunc("/notifications/subscriptions/{taskID}", listTaskSubscriptions).Methods(http.MethodGet)

	r.HandleFunc("/notifications/process", processComment).Methods(http.MethodPost)
	r.HandleFunc("/notifications/subscribe", subscribeAgent).Methods(http.MethodPost)
	r.HandleFunc("/notifications/assignment", notifyAssignment).Methods(http.MethodPost)
	r.HandleFunc("/notifications/delivered-all", markAllDelivered).Methods(http.MethodPost)
	r.HandleFunc("/notifications/{id}/delivered", markDelivered).Methods(http.MethodPost)
}

// notifyStatus maps engine errors onto HTTP status codes.
func notifyStatus(err error) int {
	switch {
	case errors.Is(err, notify.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, notify.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// --- Handlers for /v1/notifications ---

func listNotifications(w http.ResponseWriter, r *http.Request) {
	agent, code, msg := auth.ResolveAgentFromRequest(r, "")
	if code != 0 {
		utils.JSONError(w, code, msg)
		return
	}
	q := r.URL.Query()
	opts := notify.GetOptions{Agent: agent, TaskID: strings.TrimSpace(q.Get("taskId"))}
	if v := q.Get("undelivered"); v != "" {
		opts.Undelivered = v == "1" || strings.EqualFold(v, "true")
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			opts.Limit = n
		}
	}
	out, err := engine.GetNotifications(opts)
	if err != nil {
		utils.JSONError(w, notifyStatus(err), err.Error())
		return
	}
	if out == nil {
		out = []models.Notification{}
	}
	logger.Debug("notifications_list", "agent", agent, "count", len(out))
	utils.JSONWrite(w, http.StatusOK, out)
}

func notificationStats(w http.ResponseWriter, r *http.Request) {
	stats, err := engine.Stats()
	if err != nil {
		utils.JSONError(w, notifyStatus(err), err.Error())
		return
	}
	utils.JSONWrite(w, http.StatusOK, stats)
}

func listTaskSubscriptions(w http.ResponseWriter, r *http.Request) {
	taskID := mux.Vars(r)["taskID"]
	subs, err := engine.GetSubscriptions(taskID)
	if err != nil {
		utils.JSONError(w, notifyStatus(err), err.Error())
		return
	}
	if subs == nil {
		subs = []models.Subscription{}
	}
	utils.JSONWrite(w, http.StatusOK, subs)
}

func processComment(w http.ResponseWriter, r *http.Request) {
	var body struct {
		TaskID    string   `json:"taskId"`
		FromAgent string   `json:"fromAgent"`
		Content   string   `json:"content"`
		AllAgents []string `json:"allAgents"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	// a signed caller may only comment as itself
	from, code, msg := auth.ResolveAgentFromRequest(r, body.FromAgent)
	if code != 0 {
		utils.JSONError(w, code, msg)
		return
	}
	if err := validation.ValidateComment(body.TaskID, from, body.Content, body.AllAgents); err != nil {
		utils.JSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	created, err := engine.ProcessComment(body.TaskID, from, body.Content, body.AllAgents)
	if err != nil {
		utils.JSONError(w, notifyStatus(err), err.Error())
		return
	}
	if created == nil {
		created = []models.Notification{}
	}
	utils.JSONWrite(w, http.StatusCreated, created)
}

func subscribeAgent(w http.ResponseWriter, r *http.Request) {
	var body struct {
		TaskID string `json:"taskId"`
		Agent  string `json:"agent"`
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	reason := models.SubscriptionReason(body.Reason)
	if body.Reason == "" {
		reason = models.SubManual
	}
	if err := engine.Subscribe(body.TaskID, body.Agent, reason); err != nil {
		utils.JSONError(w, notifyStatus(err), err.Error())
		return
	}
	logger.Info("subscription_created", "task", body.TaskID, "agent", body.Agent, "reason", reason)
	utils.JSONWrite(w, http.StatusCreated, map[string]bool{"success": true})
}

func notifyAssignment(w http.ResponseWriter, r *http.Request) {
	var body struct {
		TaskID     string   `json:"taskId"`
		Assignees  []string `json:"assignees"`
		AssignedBy string   `json:"assignedBy"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	created, err := engine.NotifyAssignment(body.TaskID, body.Assignees, body.AssignedBy)
	if err != nil {
		utils.JSONError(w, notifyStatus(err), err.Error())
		return
	}
	if created == nil {
		created = []models.Notification{}
	}
	utils.JSONWrite(w, http.StatusCreated, created)
}

func markDelivered(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	found, err := engine.MarkDelivered(id)
	if err != nil {
		utils.JSONError(w, notifyStatus(err), err.Error())
		return
	}
	if !found {
		utils.JSONError(w, http.StatusNotFound, "notification not found")
		return
	}
	logger.Info("notification_delivered", "id", id)
	utils.JSONWrite(w, http.StatusOK, map[string]bool{"success": true})
}

func markAllDelivered(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Agent string `json:"agent"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	agent, code, msg := auth.ResolveAgentFromRequest(r, body.Agent)
	if code != 0 {
		utils.JSONError(w, code, msg)
		return
	}
	count, err := engine.MarkAllDelivered(agent)
	if err != nil {
		utils.JSONError(w, notifyStatus(err), err.Error())
		return
	}
	utils.JSONWrite(w, http.StatusOK, map[string]interface{}{"success": true, "count": count})
}
