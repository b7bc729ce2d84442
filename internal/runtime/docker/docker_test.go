package docker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/joshrwolf/engine-exec/internal/process"
	"github.com/joshrwolf/engine-exec/internal/runtime"
)

// recorder captures the command lines passed to the exec function and answers
// them with a re-exec of the test binary running TestHelperProcess.
type recorder struct {
	mu          sync.Mutex
	invocations [][]string

	ExitCode int
	Stdout   string
	Stderr   string
	// Delay before the helper writes its final stdout line
	Delay time.Duration
}

func (r *recorder) commandFunc(t *testing.T) ExecCommandFunc {
	t.Helper()
	return func(ctx context.Context, name string, args ...string) *exec.Cmd {
		r.mu.Lock()
		r.invocations = append(r.invocations, append([]string{name}, args...))
		r.mu.Unlock()

		cs := []string{"-test.run=TestHelperProcess", "--", name}
		cs = append(cs, args...)
		cmd := exec.CommandContext(ctx, os.Args[0], cs...)
		cmd.Env = []string{
			"GO_WANT_HELPER_PROCESS=1",
			fmt.Sprintf("GO_HELPER_EXIT_CODE=%d", r.ExitCode),
			fmt.Sprintf("GO_HELPER_STDOUT=%s", r.Stdout),
			fmt.Sprintf("GO_HELPER_STDERR=%s", r.Stderr),
			fmt.Sprintf("GO_HELPER_DELAY=%s", r.Delay),
		}
		return cmd
	}
}

func (r *recorder) calls() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.invocations
}

// TestHelperProcess is not a real test. It is the fake docker binary.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}

	fmt.Fprint(os.Stderr, os.Getenv("GO_HELPER_STDERR"))
	stdout := os.Getenv("GO_HELPER_STDOUT")
	if delay, err := time.ParseDuration(os.Getenv("GO_HELPER_DELAY")); err == nil && delay > 0 {
		head, tail, _ := strings.Cut(stdout, "|")
		fmt.Fprint(os.Stdout, head)
		time.Sleep(delay)
		stdout = tail
	}
	fmt.Fprint(os.Stdout, stdout)

	code, _ := strconv.Atoi(os.Getenv("GO_HELPER_EXIT_CODE"))
	os.Exit(code)
}

func running(names ...string) RunnerFunc {
	return func(name string) bool {
		for _, n := range names {
			if n == name {
				return true
			}
		}
		return false
	}
}

func TestCommand(t *testing.T) {
	rec := &recorder{Stdout: "net1\n"}
	d := New(WithBinary("/usr/bin/docker"), WithExecCommand(rec.commandFunc(t)))

	h, err := d.Command(context.Background(), "network", "create", "net1")
	if err != nil {
		t.Fatalf("Command() error = %v", err)
	}
	buf, err := h.WaitStdout(context.Background(), process.Expect(0))
	if err != nil {
		t.Fatalf("WaitStdout() error = %v", err)
	}
	if buf.String() != "net1\n" {
		t.Errorf("stdout = %q", buf.String())
	}

	want := "/usr/bin/docker network create net1"
	if calls := rec.calls(); len(calls) != 1 || strings.Join(calls[0], " ") != want {
		t.Errorf("invocations = %v, want [%s]", calls, want)
	}
	if h.Container() != "" {
		t.Errorf("engine command should have no container, got %q", h.Container())
	}
}

func TestCommandExitCode(t *testing.T) {
	rec := &recorder{Stderr: "Error: network not found", ExitCode: 1}
	d := New(WithExecCommand(rec.commandFunc(t)))

	h, err := d.Command(context.Background(), "network", "rm", "missing")
	if err != nil {
		t.Fatalf("Command() error = %v", err)
	}

	code, err := h.WaitExit(context.Background(), process.AnyExit)
	if err != nil || code != 1 {
		t.Fatalf("WaitExit() = %d, %v; want 1, nil", code, err)
	}
	if _, err := h.WaitExit(context.Background(), process.Expect(0)); !errors.Is(err, process.ErrExitCodeMismatch) {
		t.Errorf("expected ErrExitCodeMismatch, got %v", err)
	}
	if got := h.Stderr().String(); got != "Error: network not found" {
		t.Errorf("stderr = %q", got)
	}
}

func TestExecArgs(t *testing.T) {
	tests := []struct {
		name string
		opts runtime.ExecOptions
		want string
	}{
		{
			name: "plain",
			want: "docker exec web cat /etc/hosts",
		},
		{
			name: "user and workdir",
			opts: runtime.ExecOptions{User: "www-data", WorkDir: "/var/www"},
			want: "docker exec --user www-data --workdir /var/www web cat /etc/hosts",
		},
		{
			name: "sorted env",
			opts: runtime.ExecOptions{Env: map[string]string{"B": "2", "A": "1"}},
			want: "docker exec -e A=1 -e B=2 web cat /etc/hosts",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			d := New(WithExecCommand(rec.commandFunc(t)), WithRunnerFunc(running("web")))

			h, err := d.Exec(context.Background(), "web", "cat", []string{"/etc/hosts"}, tt.opts)
			if err != nil {
				t.Fatalf("Exec() error = %v", err)
			}
			if _, err := h.WaitExit(context.Background(), process.Expect(0)); err != nil {
				t.Fatalf("WaitExit() error = %v", err)
			}
			if got := strings.Join(rec.calls()[0], " "); got != tt.want {
				t.Errorf("command line = %q, want %q", got, tt.want)
			}
			if got := strings.Join(h.Args(), " "); got != tt.want {
				t.Errorf("handle args = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExecNotRunning(t *testing.T) {
	rec := &recorder{}
	d := New(WithExecCommand(rec.commandFunc(t)), WithRunnerFunc(running("db")))

	_, err := d.Exec(context.Background(), "web", "true", nil, runtime.ExecOptions{})
	var nre *runtime.NotRunningError
	if !errors.As(err, &nre) || nre.Container != "web" {
		t.Fatalf("expected NotRunningError for web, got %v", err)
	}
	if len(rec.calls()) != 0 {
		t.Errorf("nothing should be spawned for a stopped container, got %v", rec.calls())
	}
}

func TestExecDefaultRunnerRejects(t *testing.T) {
	d := New()
	if d.IsContainerRunnerRunning("web") {
		t.Error("default runner func should report containers as not running")
	}
}

func TestExecStreamsBeforeExit(t *testing.T) {
	rec := &recorder{Stdout: "booting\n|ready\n", Delay: 200 * time.Millisecond}
	d := New(WithExecCommand(rec.commandFunc(t)), WithRunnerFunc(running("web")))

	h, err := d.Exec(context.Background(), "web", "serve", nil, runtime.ExecOptions{
		OutputAsLines: true,
		StdoutReady:   func(_, line string) bool { return line == "ready" },
	})
	if err != nil {
		t.Fatalf("Exec() error = %v", err)
	}

	if err := h.WaitReady(context.Background(), 5*time.Second); err != nil {
		t.Fatalf("WaitReady() error = %v", err)
	}
	buf, err := h.WaitStdout(context.Background(), process.Expect(0))
	if err != nil {
		t.Fatalf("WaitStdout() error = %v", err)
	}
	if got := buf.Lines(); len(got) != 2 || got[0] != "booting" || got[1] != "ready" {
		t.Errorf("lines = %q", got)
	}
}

func TestExecOutputCompleteAtExit(t *testing.T) {
	long := strings.Repeat("x", 64*1024)
	rec := &recorder{Stdout: long}
	d := New(WithExecCommand(rec.commandFunc(t)), WithRunnerFunc(running("web")))

	h, err := d.Exec(context.Background(), "web", "cat", []string{"/big"}, runtime.ExecOptions{})
	if err != nil {
		t.Fatalf("Exec() error = %v", err)
	}
	buf, err := h.WaitStdout(context.Background(), process.Expect(0))
	if err != nil {
		t.Fatalf("WaitStdout() error = %v", err)
	}
	if buf.Len() != len(long) {
		t.Errorf("stdout has %d bytes at exit, want %d", buf.Len(), len(long))
	}
}

func TestExecOutputLimit(t *testing.T) {
	rec := &recorder{Stdout: "0123456789"}
	d := New(WithExecCommand(rec.commandFunc(t)), WithRunnerFunc(running("web")))

	h, err := d.Exec(context.Background(), "web", "seq", nil, runtime.ExecOptions{OutputLimit: 4})
	if err != nil {
		t.Fatalf("Exec() error = %v", err)
	}
	buf, err := h.WaitStdout(context.Background(), process.AnyExit)
	if err != nil {
		t.Fatalf("WaitStdout() error = %v", err)
	}
	if got := buf.String(); got != "6789" {
		t.Errorf("stdout = %q, want newest 4 bytes", got)
	}
}

func TestStartFailure(t *testing.T) {
	d := New(WithBinary("/nonexistent/docker-binary"))

	if _, err := d.Command(context.Background(), "ps"); err == nil {
		t.Fatal("expected error starting a missing binary")
	}
	if d.Available(context.Background()) {
		t.Error("Available() = true for a missing binary")
	}
	if d.String() != "/nonexistent/docker-binary" {
		t.Errorf("String() = %q", d.String())
	}
}

func TestWhichCacheOwnership(t *testing.T) {
	a, b := New(), New()
	if a.WhichCache() == b.WhichCache() {
		t.Error("executors must not share a cache by default")
	}

	shared := runtime.NewWhichCache()
	c := New(WithWhichCache(shared))
	if c.WhichCache() != shared {
		t.Error("WithWhichCache was not applied")
	}
}

func TestString(t *testing.T) {
	if got := New().String(); got != "docker" {
		t.Errorf("String() = %q, want docker", got)
	}
	if got := New(WithBinary("/usr/local/bin/podman")).String(); got != "/usr/local/bin/podman" {
		t.Errorf("String() = %q, want the configured binary", got)
	}
}
