package validation

import (
	"strings"
	"testing"
)

func resetRules(t *testing.T) {
	t.Helper()
	t.Cleanup(func() { SetRules(Rules{}) })
}

func TestValidateCommentBuiltins(t *testing.T) {
	if err := ValidateComment("task-1", "alice", "hello", nil); err != nil {
		t.Fatalf("valid comment rejected: %v", err)
	}
	err := ValidateComment("", "", "", nil)
	if err == nil {
		t.Fatal("empty comment accepted")
	}
	for _, want := range []string{"taskId is required", "fromAgent is required", "content is required"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q missing %q", err, want)
		}
	}
}

func TestValidateRegistrationBuiltins(t *testing.T) {
	if err := ValidateRegistration("coder-1", "Coder", []string{"code"}, nil); err != nil {
		t.Fatalf("valid registration rejected: %v", err)
	}
	if err := ValidateRegistration("", "Coder", nil, nil); err == nil || !strings.Contains(err.Error(), "id is required") {
		t.Fatalf("missing id err = %v", err)
	}
	if err := ValidateRegistration("x", "", nil, nil); err == nil || !strings.Contains(err.Error(), "name is required") {
		t.Fatalf("missing name err = %v", err)
	}
	long := strings.Repeat("a", 129)
	if err := ValidateRegistration(long, "Coder", nil, nil); err == nil || !strings.Contains(err.Error(), "id too long") {
		t.Fatalf("long id err = %v", err)
	}
}

func TestValidateStatus(t *testing.T) {
	if err := ValidateStatus(""); err != nil {
		t.Fatalf("absent status rejected: %v", err)
	}
	for _, s := range []string{"online", "busy", "idle", "offline"} {
		if err := ValidateStatus(s); err != nil {
			t.Fatalf("status %q rejected: %v", s, err)
		}
	}
	if err := ValidateStatus("sleeping"); err == nil {
		t.Fatal("unknown status accepted")
	}
}

func TestConfiguredRequiredRule(t *testing.T) {
	resetRules(t)
	SetRules(Rules{Required: []string{"metadata.region"}})

	if err := ValidateRegistration("a", "A", nil, map[string]string{"region": "eu"}); err != nil {
		t.Fatalf("satisfied rule rejected: %v", err)
	}
	err := ValidateRegistration("a", "A", nil, nil)
	if err == nil || !strings.Contains(err.Error(), "required path missing: metadata.region") {
		t.Fatalf("err = %v", err)
	}
}

func TestConfiguredTypeAndMaxLenRules(t *testing.T) {
	resetRules(t)
	SetRules(Rules{
		Types:  map[string]string{"content": "string"},
		MaxLen: map[string]int{"content": 10, "allAgents": 2},
	})

	if err := ValidateComment("t", "a", "short", []string{"x", "y"}); err != nil {
		t.Fatalf("within limits rejected: %v", err)
	}
	if err := ValidateComment("t", "a", "this is far too long", nil); err == nil ||
		!strings.Contains(err.Error(), "max length exceeded at content") {
		t.Fatalf("long content err = %v", err)
	}
	if err := ValidateComment("t", "a", "ok", []string{"x", "y", "z"}); err == nil ||
		!strings.Contains(err.Error(), "max length exceeded at allAgents") {
		t.Fatalf("long array err = %v", err)
	}
}

func TestConfiguredEnumRule(t *testing.T) {
	resetRules(t)
	SetRules(Rules{Enums: map[string][]string{"metadata.tier": {"1", "2"}}})

	if err := ValidateRegistration("a", "A", nil, map[string]string{"tier": "2"}); err != nil {
		t.Fatalf("valid enum rejected: %v", err)
	}
	if err := ValidateRegistration("a", "A", nil, map[string]string{"tier": "9"}); err == nil ||
		!strings.Contains(err.Error(), "invalid enum at metadata.tier") {
		t.Fatalf("err = %v", err)
	}
	// absent value is not an enum violation
	if err := ValidateRegistration("a", "A", nil, nil); err != nil {
		t.Fatalf("absent enum path rejected: %v", err)
	}
}

func TestConfiguredWhenThenRule(t *testing.T) {
	resetRules(t)
	SetRules(Rules{WhenThen: []WhenThenRule{{
		WhenPath: "metadata.kind",
		Equals:   "deploy",
		ThenReq:  []string{"metadata.environment"},
	}}})

	if err := ValidateRegistration("a", "A", nil, map[string]string{
		"kind": "deploy", "environment": "prod",
	}); err != nil {
		t.Fatalf("satisfied conditional rejected: %v", err)
	}
	err := ValidateRegistration("a", "A", nil, map[string]string{"kind": "deploy"})
	if err == nil || !strings.Contains(err.Error(), "metadata.environment") {
		t.Fatalf("err = %v", err)
	}
	// condition not met: requirement dormant
	if err := ValidateRegistration("a", "A", nil, map[string]string{"kind": "code"}); err != nil {
		t.Fatalf("dormant conditional fired: %v", err)
	}
}

func TestWildcardPath(t *testing.T) {
	resetRules(t)
	SetRules(Rules{Types: map[string]string{"capabilities.*": "string"}})

	if err := ValidateRegistration("a", "A", []string{"code"}, nil); err != nil {
		t.Fatalf("string capability rejected: %v", err)
	}
	// empty list: nothing to check
	if err := ValidateRegistration("a", "A", nil, nil); err != nil {
		t.Fatalf("empty capability list rejected: %v", err)
	}
}
