package cli

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"emrun/internal/controller"
	"emrun/internal/db"
)

func TestRunSubmitCompletesAndRecordsHistory(t *testing.T) {
	tmp := t.TempDir()
	useConfig(t, writeTestConfig(t, tmp, ""), false)

	out, err := runWithOutput(t, runSubmit)
	if err != nil {
		t.Fatalf("run submit: %v\n%s", err, out)
	}
	for _, want := range []string{
		"X job submitted with id 4711",
		"Y job submitted with id 4712",
		"X job 4711 has completed with exit status 0",
		"Post-processing completed successfully",
		"All tasks completed",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}

	store, err := db.Open(filepath.Join(tmp, "emrun.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer store.Close()
	sess, err := store.LatestSession(context.Background(), tmp)
	if err != nil {
		t.Fatalf("latest session: %v", err)
	}
	if sess.State != db.SessionCompleted || sess.ExitCode == nil || *sess.ExitCode != 0 {
		t.Fatalf("unexpected recorded session %+v", sess)
	}
	jobs, err := store.ListJobs(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("list jobs: %v", err)
	}
	if len(jobs) != 2 || jobs[0].QueueJobID != "4711" || jobs[1].QueueJobID != "4712" {
		t.Fatalf("unexpected recorded jobs %+v", jobs)
	}

	for _, name := range []string{"em_x.lock", "em_y.lock", ".emrun.session"} {
		if _, err := os.Stat(filepath.Join(tmp, name)); !os.IsNotExist(err) {
			t.Fatalf("expected marker %s cleared at exit, stat err=%v", name, err)
		}
	}
	if out, err := runWithOutput(t, runSubmit); err != nil {
		t.Fatalf("re-submission must be allowed: %v\n%s", err, out)
	}
}

func TestRunSubmitRejectedSubmissionExitCode(t *testing.T) {
	tmp := t.TempDir()
	writeScript(t, tmp, "reject.sh", `echo "The job has been rejected and not queued"
`)
	cfgPath := writeTestConfig(t, tmp, "")
	useConfig(t, cfgPath, false)
	cfgWithReject := strings.Replace(readFile(t, cfgPath), "submit.sh {role}", "reject.sh {role}", 1)
	writeFile(t, cfgPath, cfgWithReject)

	_, err := runWithOutput(t, runSubmit)
	if got := controller.ExitCode(err); got != controller.ExitSubmissionFailed {
		t.Fatalf("expected exit code %d, got %d (err=%v)", controller.ExitSubmissionFailed, got, err)
	}
}

func TestRunSubmitRefusesActiveSession(t *testing.T) {
	tmp := t.TempDir()
	useConfig(t, writeTestConfig(t, tmp, ""), false)
	writeFile(t, filepath.Join(tmp, ".emrun.session"), "pid = 1\n")

	out, err := runWithOutput(t, runSubmit)
	if got := controller.ExitCode(err); got != controller.ExitSessionAlreadyActive {
		t.Fatalf("expected exit code %d, got %d (err=%v)", controller.ExitSessionAlreadyActive, got, err)
	}
	if strings.Contains(out, "submitted") {
		t.Fatalf("nothing may be submitted while a session is active:\n%s", out)
	}
	if readFile(t, filepath.Join(tmp, ".emrun.session")) != "pid = 1\n" {
		t.Fatalf("foreign marker must be left untouched")
	}
	if _, err := os.Stat(filepath.Join(tmp, "emrun.db")); !os.IsNotExist(err) {
		t.Fatalf("a refused run must not create the history database, stat err=%v", err)
	}
	logPath := filepath.Join(os.Getenv("XDG_STATE_HOME"), "emrun", "emrun.log")
	if _, err := os.Stat(logPath); !os.IsNotExist(err) {
		t.Fatalf("a refused run must not create the log file, stat err=%v", err)
	}
}
