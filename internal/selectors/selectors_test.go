package selectors

import (
	"testing"
)

func TestGetSelectors(t *testing.T) {
	sel := Get()

	if sel == nil {
		t.Fatal("Get() returned nil")
	}
	if sel.FormAction() == nil {
		t.Fatal("Expected compiled form action pattern")
	}
	if sel.SolutionField != "field-keywords" {
		t.Errorf("SolutionField = %q, want %q", sel.SolutionField, "field-keywords")
	}
	if len(sel.FixedFields) != 2 || sel.FixedFields[0] != "amzn" || sel.FixedFields[1] != "amzn-r" {
		t.Errorf("FixedFields = %v, want [amzn amzn-r]", sel.FixedFields)
	}
	if len(sel.ImageSelectors) == 0 {
		t.Error("Expected image selectors")
	}
	if len(sel.Keywords["en"]) == 0 {
		t.Error("Expected English keywords")
	}
}

func TestGetSelectorsSingleton(t *testing.T) {
	sel1 := Get()
	sel2 := Get()

	if sel1 != sel2 {
		t.Error("Expected Get() to return the same instance")
	}
}

func TestFormActionPattern(t *testing.T) {
	re := Get().FormAction()

	tests := []struct {
		action string
		want   bool
	}{
		{"/errors/validateCaptcha", true},
		{"https://www.example.com/errors/validateCaptcha", true},
		{"errors/validateCaptcha", true},
		{"/errors/validateCaptchaX", false},
		{"/s", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := re.MatchString(tt.action); got != tt.want {
			t.Errorf("MatchString(%q) = %v, want %v", tt.action, got, tt.want)
		}
	}
}

func TestDefaultSelectors(t *testing.T) {
	sel := defaultSelectors()

	if err := sel.Validate(); err != nil {
		t.Fatalf("defaultSelectors() invalid: %v", err)
	}
	if sel.FormAction() == nil {
		t.Fatal("defaultSelectors() pattern not compiled")
	}
	if !sel.FormAction().MatchString("/errors/validateCaptcha") {
		t.Error("default pattern should match the validateCaptcha endpoint")
	}
}

func TestSelectorsWith(t *testing.T) {
	base := Get()

	sel, err := base.With(Overrides{FormActionPattern: `^/verify$`, DefaultEndpoint: "/verify"})
	if err != nil {
		t.Fatalf("With() error = %v", err)
	}
	if !sel.FormAction().MatchString("/verify") {
		t.Error("expected override to match /verify")
	}
	if sel.DefaultEndpoint != "/verify" {
		t.Errorf("DefaultEndpoint = %q, want /verify", sel.DefaultEndpoint)
	}
	if base.FormAction().MatchString("/verify") || base.DefaultEndpoint == "/verify" {
		t.Error("override must not modify the receiver")
	}

	if _, err := base.With(Overrides{FormActionPattern: `([`}); err == nil {
		t.Error("expected error for invalid pattern")
	}
}
