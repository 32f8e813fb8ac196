package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"testing"
)

const rawDSN = "postgres://dealbadge:hunter2@db:5432/dealbadge"

func TestSecretString_Formatting(t *testing.T) {
	s := SecretString(rawDSN)

	for _, verb := range []string{"%s", "%v", "%+v"} {
		got := fmt.Sprintf(verb, s)
		if got != redactedPlaceholder {
			t.Errorf("Sprintf(%q) = %q, want %q", verb, got, redactedPlaceholder)
		}
	}
}

func TestSecretString_MarshalJSON_InStruct(t *testing.T) {
	cfg := struct {
		Shop  string       `json:"shop"`
		Token SecretString `json:"token"`
	}{Shop: "demo.myshopify.com", Token: SecretString("sf_live_abcdef")}

	data, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	if strings.Contains(string(data), "sf_live_abcdef") {
		t.Errorf("token leaked into JSON: %s", data)
	}
	want := `{"shop":"demo.myshopify.com","token":"***REDACTED***"}`
	if string(data) != want {
		t.Errorf("Marshal = %s, want %s", data, want)
	}
}

func TestSecretString_LogValue(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	logger.Info("connecting", "dsn", SecretString(rawDSN))

	if strings.Contains(buf.String(), "hunter2") {
		t.Errorf("secret leaked into log line: %s", buf.String())
	}
	if !strings.Contains(buf.String(), redactedPlaceholder) {
		t.Errorf("log line missing placeholder: %s", buf.String())
	}
}

func TestSecretString_UnmaskAndEmpty(t *testing.T) {
	s := SecretString(rawDSN)
	if s.Unmask() != rawDSN {
		t.Errorf("Unmask() = %q", s.Unmask())
	}
	if s.IsEmpty() {
		t.Error("IsEmpty() = true for a set secret")
	}
	if !SecretString("").IsEmpty() {
		t.Error("IsEmpty() = false for an empty secret")
	}
}
