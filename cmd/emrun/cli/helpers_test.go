package cli

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
)

// writeTestConfig writes emrun.toml into dir with fake queue scripts that
// accept both jobs and report them completed with exit status 0. Like the
// real pre-exec step, the submit script drops an em_<role>.lock marker.
func writeTestConfig(t *testing.T, dir, extra string) string {
	t.Helper()
	writeScript(t, dir, "submit.sh", `case "$1" in x) id=4711;; *) id=4712;; esac
: > "em_$1.lock"
echo "Job has been submitted with id $id"
`)
	writeScript(t, dir, "status.sh", `echo "submittime,preexecexitstatus,timeinrunning,exitstatus"
echo "10:00,0,00:42,0"
`)
	if err := os.WriteFile(filepath.Join(dir, "post.py"), []byte("print('ok')\n"), 0o644); err != nil {
		t.Fatalf("write post script: %v", err)
	}

	content := `work_dir = "` + dir + `"
db_path = "emrun.db"

[queue]
pool = "sc_normal"
submit_cmd = "` + filepath.Join(dir, "submit.sh") + ` {role}"
status_cmd = "` + filepath.Join(dir, "status.sh") + ` {job}"
remove_cmd = "true {job}"

[monitor]
poll_interval = "1"

[solver]
command = "true"
postprocess_script = "post.py"
` + extra
	path := filepath.Join(dir, "emrun.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func writeScript(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

// useConfig points the CLI at path and restores global flag state on cleanup.
func useConfig(t *testing.T, path string, asJSON bool) {
	t.Helper()
	t.Setenv("XDG_STATE_HOME", t.TempDir())
	prevCfgPath, prevJSON, prevNoHistory := cfgPath, jsonOut, submitNoHistory
	cfgPath = path
	jsonOut = asJSON
	submitNoHistory = false
	t.Cleanup(func() {
		cfgPath = prevCfgPath
		jsonOut = prevJSON
		submitNoHistory = prevNoHistory
	})
}

func testCommand(out io.Writer) *cobra.Command {
	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	cmd.SetOut(out)
	return cmd
}

func runWithOutput(t *testing.T, fn func(*cobra.Command, []string) error, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	err := fn(testCommand(&buf), args)
	return buf.String(), err
}

func captureStdout(t *testing.T, fn func() error) string {
	t.Helper()
	prevStdout := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("create pipe: %v", err)
	}
	os.Stdout = w
	runErr := fn()
	if err := w.Close(); err != nil {
		t.Fatalf("close write pipe: %v", err)
	}
	os.Stdout = prevStdout

	out, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read stdout: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("close read pipe: %v", err)
	}
	if runErr != nil {
		t.Fatalf("run command: %v", runErr)
	}
	return string(out)
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
