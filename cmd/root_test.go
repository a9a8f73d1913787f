package cmd

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/scopecomms/internal/config"
)

// executeCommand runs a cobra command with the given args and captures combined output.
func executeCommand(root *cobra.Command, args ...string) (output string, err error) {
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	_, err = root.ExecuteC()
	return buf.String(), err
}

// isolate points every config and data lookup at a fresh temp dir and
// resets flag values left over from earlier runs.
func isolate(t testing.TB) string {
	tmp := t.TempDir()
	t.Setenv("HOME", tmp)
	t.Setenv("XDG_DATA_HOME", tmp)
	t.Setenv(config.EnvAddress, "")
	t.Chdir(tmp)

	logLevel = ""
	deleteCapture = ""
	reportFormat = "markdown"
	reportOutput = ""
	plainOutput = false
	return tmp
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestUnknownLogLevelFails(t *testing.T) {
	isolate(t)
	out, err := executeCommand(rootCmd, "--log-level", "loud", "captures")
	if err == nil {
		t.Fatal("expected an error for an unknown log level")
	}
	if combined := out + err.Error(); !strings.Contains(combined, "log level") {
		t.Errorf("error should mention the log level, got %q", combined)
	}
	logLevel = ""
}

func TestProjectConfigIsApplied(t *testing.T) {
	tmp := isolate(t)
	writeFile(t, tmp+"/.scopecomms.toml", "capture_dir = \"elsewhere\"\nlisten = \"127.0.0.1:7000\"\n")

	if _, err := executeCommand(rootCmd, "captures"); err != nil {
		t.Fatal(err)
	}
	if got := GetConfig(); got.CaptureDir != "elsewhere" || got.Listen != "127.0.0.1:7000" {
		t.Errorf("config = %+v", got)
	}
}
