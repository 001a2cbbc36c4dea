package e2e

import (
	"os"
	"os/exec"
	"testing"
)

var senseiBin string

func TestMain(m *testing.M) {
	senseiBin = envOrLookPath("SENSEI_BIN", "sensei")
	os.Exit(m.Run())
}

func envOrLookPath(envVar, name string) string {
	if v := os.Getenv(envVar); v != "" {
		return v
	}
	if path, err := exec.LookPath(name); err == nil {
		return path
	}
	return ""
}

func requireSensei(t *testing.T) {
	t.Helper()
	if senseiBin == "" {
		t.Skip("sensei binary not available (set SENSEI_BIN or add to PATH)")
	}
}
