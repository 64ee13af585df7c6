package queue

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"emrun/internal/cmdline"
)

type recordedCall struct {
	dir  string
	argv []string
}

func newTestClient(t *testing.T, dir string, responses map[string]string, failWith error) (*Client, *[]recordedCall) {
	t.Helper()
	var calls []recordedCall
	run := func(_ context.Context, d string, argv []string) (string, error) {
		calls = append(calls, recordedCall{dir: d, argv: argv})
		if failWith != nil {
			return "", failWith
		}
		return responses[argv[0]], nil
	}
	return NewClient(Options{
		WorkDir:      dir,
		Solver:       "em",
		Pool:         "sc_normal",
		Slots:        16,
		SlotsPerHost: 8,
		SubmitCmd:    cmdline.MustParse("qsub --target {pool} --class {class} --slots {slots} --log {log} {solver} {input}"),
		StatusCmd:    cmdline.MustParse("qstat --target {pool} {job}"),
		RemoveCmd:    cmdline.MustParse("qdel {job}"),
		Run:          run,
	}), &calls
}

func TestClientSubmitBuildsArgvAndParsesID(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	input := filepath.Join(dir, "emsim_x1.in")
	if err := os.WriteFile(input, nil, 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}
	client, calls := newTestClient(t, dir, map[string]string{
		"qsub": "Your job has been submitted, JobID 1234 queued\n",
	}, nil)

	id, err := client.Submit(context.Background(), SubmitRequest{
		Role:         "x",
		LogPath:      filepath.Join(dir, "em_x.log"),
		InputPattern: filepath.Join(dir, "emsim_x*.in"),
	})
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	if id != "1234" {
		t.Fatalf("expected job id 1234, got %q", id)
	}
	want := []string{"qsub", "--target", "sc_normal", "--slots", "16", "--log", filepath.Join(dir, "em_x.log"), "em", input}
	if len(*calls) != 1 || !reflect.DeepEqual((*calls)[0].argv, want) {
		t.Fatalf("unexpected argv: got=%v want=%v", *calls, want)
	}
	if (*calls)[0].dir != dir {
		t.Fatalf("expected command to run in %q, got %q", dir, (*calls)[0].dir)
	}
}

func TestClientSubmitNoInputsDoesNotRun(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	client, calls := newTestClient(t, dir, nil, nil)
	_, err := client.Submit(context.Background(), SubmitRequest{Role: "y", InputPattern: filepath.Join(dir, "*.in")})
	if !errors.Is(err, cmdline.ErrNoInputs) {
		t.Fatalf("expected ErrNoInputs, got %v", err)
	}
	if len(*calls) != 0 {
		t.Fatalf("expected no queue command, got %v", *calls)
	}
}

func TestClientStatusDecodesLastLine(t *testing.T) {
	t.Parallel()

	client, calls := newTestClient(t, t.TempDir(), map[string]string{
		"qstat": "SUBMIT,PREEXEC,RUNNING,EXIT\n2024-05-01 10:00:00,0,00:10:00,\n",
	}, nil)
	rec, err := client.Status(context.Background(), "1234")
	if err != nil {
		t.Fatalf("Status returned error: %v", err)
	}
	if rec.Completed() || rec.TimeInRunning != "00:10:00" {
		t.Fatalf("unexpected record %+v", rec)
	}
	if got := strings.Join((*calls)[0].argv, " "); got != "qstat --target sc_normal 1234" {
		t.Fatalf("unexpected status argv %q", got)
	}
}

func TestClientStatusErrorsAreQueryErrors(t *testing.T) {
	t.Parallel()

	boom := errors.New("connection refused")
	client, _ := newTestClient(t, t.TempDir(), nil, boom)
	_, err := client.Status(context.Background(), "1234")
	var qerr *QueryError
	if !errors.As(err, &qerr) || qerr.JobID != "1234" || !errors.Is(err, boom) {
		t.Fatalf("expected QueryError wrapping runner error, got %v", err)
	}

	client, _ = newTestClient(t, t.TempDir(), map[string]string{"qstat": "garbage"}, nil)
	_, err = client.Status(context.Background(), "1234")
	if !errors.As(err, &qerr) || !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("expected QueryError wrapping ErrMalformedResponse, got %v", err)
	}
}

func TestClientRemove(t *testing.T) {
	t.Parallel()

	client, calls := newTestClient(t, t.TempDir(), nil, nil)
	if err := client.Remove(context.Background(), "77"); err != nil {
		t.Fatalf("Remove returned error: %v", err)
	}
	if got := strings.Join((*calls)[0].argv, " "); got != "qdel 77" {
		t.Fatalf("unexpected remove argv %q", got)
	}
}

func TestExecRunnerReportsStderr(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	script := filepath.Join(dir, "fakeq")
	body := "#!/bin/sh\necho \"$1\"\necho 'queue offline' >&2\nexit 3\n"
	if err := os.WriteFile(script, []byte(body), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}

	_, err := ExecRunner(context.Background(), dir, []string{script, "hello"})
	if err == nil {
		t.Fatalf("expected error from failing command")
	}
	if !strings.Contains(err.Error(), "queue offline") || !strings.Contains(err.Error(), "hello") {
		t.Fatalf("expected stdout and stderr in error, got %v", err)
	}

	ok := filepath.Join(dir, "okq")
	if err := os.WriteFile(ok, []byte("#!/bin/sh\necho 'a,0,b,'\n"), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	out, err := ExecRunner(context.Background(), dir, []string{ok})
	if err != nil {
		t.Fatalf("ExecRunner returned error: %v", err)
	}
	if strings.TrimSpace(out) != "a,0,b," {
		t.Fatalf("unexpected output %q", out)
	}
}
