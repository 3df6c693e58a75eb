// ABOUTME: Tests for the .env file loader.
// ABOUTME: Covers comments, quoting, and the no-override rule for existing env vars.
package web_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/allen-cell-animated/packing-workbench/web"
)

func writeDotEnv(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	return path
}

func TestLoadDotEnv(t *testing.T) {
	t.Setenv("DOTENV_TEST_EXISTING", "keep-me")
	// ensure the loaded keys are restored after the test
	t.Setenv("DOTENV_TEST_PLAIN", "")
	t.Setenv("DOTENV_TEST_QUOTED", "")
	os.Unsetenv("DOTENV_TEST_PLAIN")
	os.Unsetenv("DOTENV_TEST_QUOTED")

	path := writeDotEnv(t, `
# comment line
DOTENV_TEST_PLAIN=hello
DOTENV_TEST_QUOTED="quoted value"
DOTENV_TEST_EXISTING=overridden

not-a-pair
=no-key
`)

	if err := web.LoadDotEnv(path); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}

	if got := os.Getenv("DOTENV_TEST_PLAIN"); got != "hello" {
		t.Errorf("PLAIN = %q", got)
	}
	if got := os.Getenv("DOTENV_TEST_QUOTED"); got != "quoted value" {
		t.Errorf("QUOTED = %q", got)
	}
	if got := os.Getenv("DOTENV_TEST_EXISTING"); got != "keep-me" {
		t.Errorf("EXISTING = %q, existing env must win", got)
	}
}

func TestLoadDotEnvMissingFile(t *testing.T) {
	if err := web.LoadDotEnv(filepath.Join(t.TempDir(), "nope.env")); err != nil {
		t.Errorf("missing file should be nil, got %v", err)
	}
}
