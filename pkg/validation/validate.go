package validation

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"agentboard/pkg/models"
)

// Rules is the config-driven layer on top of the built-in checks. Paths
// are dot-separated into the payload's JSON shape ("metadata.region",
// "capabilities.*").
type Rules struct {
	Required []string
	Types    map[string]string
	MaxLen   map[string]int
	Enums    map[string][]string
	WhenThen []WhenThenRule
}

type WhenThenRule struct {
	WhenPath string
	Equals   interface{}
	ThenReq  []string
}

var rules Rules

func SetRules(r Rules) { rules = r }

// ValidateComment checks a process-comment payload before any state
// mutation. Built-in requirements come first, then configured rules.
func ValidateComment(taskID, fromAgent, content string, allAgents []string) error {
	var errs []string
	if strings.TrimSpace(taskID) == "" {
		errs = append(errs, "taskId is required")
	}
	if strings.TrimSpace(fromAgent) == "" {
		errs = append(errs, "fromAgent is required")
	}
	if strings.TrimSpace(content) == "" {
		errs = append(errs, "content is required")
	}
	agents := make([]interface{}, 0, len(allAgents))
	for _, a := range allAgents {
		agents = append(agents, a)
	}
	root := map[string]interface{}{
		"taskId":    taskID,
		"fromAgent": fromAgent,
		"content":   content,
		"allAgents": agents,
	}
	errs = append(errs, applyRules(root)...)
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// ValidateRegistration checks a register payload. The id doubles as the
// registry primary key, so it is held to a handle shape.
func ValidateRegistration(id, name string, capabilities []string, metadata map[string]string) error {
	var errs []string
	if strings.TrimSpace(id) == "" {
		errs = append(errs, "id is required")
	}
	if strings.TrimSpace(name) == "" {
		errs = append(errs, "name is required")
	}
	if len(id) > 128 {
		errs = append(errs, "id too long")
	}
	caps := make([]interface{}, 0, len(capabilities))
	for _, c := range capabilities {
		caps = append(caps, c)
	}
	meta := map[string]interface{}{}
	for k, v := range metadata {
		meta[k] = v
	}
	root := map[string]interface{}{
		"id":           id,
		"name":         name,
		"capabilities": caps,
		"metadata":     meta,
	}
	errs = append(errs, applyRules(root)...)
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// ValidateStatus checks a heartbeat status value against the closed
// enumeration when present.
func ValidateStatus(status string) error {
	if status == "" {
		return nil
	}
	if !models.ValidAgentStatus(models.AgentStatus(status)) {
		return fmt.Errorf("invalid status %q", status)
	}
	return nil
}

// applyRules walks the configured rule set over a generic payload map.
func applyRules(root map[string]interface{}) []string {
	var errs []string
	for _, p := range rules.Required {
		if !existsAt(root, p) {
			errs = append(errs, fmt.Sprintf("required path missing: %s", p))
		}
	}
	for p, t := range rules.Types {
		if v, ok := valueAt(root, p); ok {
			if !typeMatches(v, t) {
				errs = append(errs, fmt.Sprintf("type mismatch at %s: expected %s", p, t))
			}
		}
	}
	for p, max := range rules.MaxLen {
		if v, ok := valueAt(root, p); ok {
			switch vv := v.(type) {
			case string:
				if len(vv) > max {
					errs = append(errs, fmt.Sprintf("max length exceeded at %s: %d > %d", p, len(vv), max))
				}
			case []interface{}:
				if len(vv) > max {
					errs = append(errs, fmt.Sprintf("max length exceeded at %s: %d > %d", p, len(vv), max))
				}
			}
		}
	}
	for p, vals := range rules.Enums {
		if v, ok := valueAt(root, p); ok {
			if s, ok2 := v.(string); ok2 {
				if !contains(vals, s) {
					errs = append(errs, fmt.Sprintf("invalid enum at %s", p))
				}
			}
		}
	}
	for _, r := range rules.WhenThen {
		if v, ok := valueAt(root, r.WhenPath); ok {
			if equalsJSONValue(v, r.Equals) {
				for _, p := range r.ThenReq {
					if !existsAt(root, p) {
						errs = append(errs, fmt.Sprintf("required by rule (when %s == %v): %s", r.WhenPath, r.Equals, p))
					}
				}
			}
		}
	}
	return errs
}

func existsAt(root interface{}, path string) bool {
	_, ok := valueAt(root, path)
	return ok
}

func valueAt(root interface{}, path string) (interface{}, bool) {
	segs := strings.Split(path, ".")
	cur := root
	for _, s := range segs {
		switch node := cur.(type) {
		case map[string]interface{}:
			v, ok := node[s]
			if !ok {
				return nil, false
			}
			cur = v
		case []interface{}:
			if s == "*" {
				if len(node) == 0 {
					return nil, false
				}
				cur = node[0]
			} else if idx, err := strconv.Atoi(s); err == nil {
				if idx < 0 || idx >= len(node) {
					return nil, false
				}
				cur = node[idx]
			} else {
				return nil, false
			}
		default:
			return nil, false
		}
	}
	return cur, true
}

func typeMatches(v interface{}, t string) bool {
	switch strings.ToLower(t) {
	case "string":
		_, ok := v.(string)
		return ok
	case "number":
		switch v.(type) {
		case int, int32, int64, float32, float64:
			return true
		default:
			return false
		}
	case "boolean":
		_, ok := v.(bool)
		return ok
	case "object":
		_, ok := v.(map[string]interface{})
		return ok
	case "array":
		_, ok := v.([]interface{})
		return ok
	default:
		return true
	}
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

func equalsJSONValue(a interface{}, b interface{}) bool {
	switch av := a.(type) {
	case string:
		if bv, ok := b.(string); ok {
			return av == bv
		}
	case float64:
		switch bv := b.(type) {
		case float64:
			return av == bv
		case int:
			return av == float64(bv)
		case int64:
			return av == float64(bv)
		}
	case bool:
		if bv, ok := b.(bool); ok {
			return av == bv
		}
	case map[string]interface{}, []interface{}:
		return false
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}
