package runtime

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/joshrwolf/engine-exec/internal/output"
	"github.com/joshrwolf/engine-exec/internal/process"
)

// Call is one invocation recorded by Mock.
type Call struct {
	// Container is empty for engine commands
	Container string
	Cmd       string
	Args      []string
	Options   ExecOptions
}

// Argv returns the engine arguments the call corresponds to, without the binary.
func (c Call) Argv() []string {
	argv := []string{}
	if c.Container != "" {
		argv = append(argv, "exec", c.Container)
	}
	argv = append(argv, c.Cmd)
	return append(argv, c.Args...)
}

// Key returns the joined engine arguments (e.g., "exec web which cat").
func (c Call) Key() string {
	return strings.Join(c.Argv(), " ")
}

// Response is what Mock answers for a call.
type Response struct {
	Stdout   string
	Stderr   string
	ExitCode int
	// Err makes the call fail before a handle is produced
	Err error
}

// Mock implements Executor in memory for testing.
// Register expected command outputs with On() or a dynamic Handler.
type Mock struct {
	mu      sync.Mutex
	calls   []Call
	results map[string]Response
	running map[string]bool
	handler func(Call) (Response, bool)
	which   *WhichCache
}

var _ Executor = (*Mock)(nil)

// NewMock creates a Mock where the given containers are running.
func NewMock(running ...string) *Mock {
	m := &Mock{
		results: make(map[string]Response),
		running: make(map[string]bool),
		which:   NewWhichCache(),
	}
	for _, name := range running {
		m.running[name] = true
	}
	return m
}

// On registers a response for a call key such as "network create n1" or "exec web which bash".
func (m *Mock) On(key string, r Response) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[key] = r
}

// Handle registers a function consulted for calls that have no static response.
func (m *Mock) Handle(fn func(Call) (Response, bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = fn
}

// SetRunning marks a container as running or stopped.
func (m *Mock) SetRunning(name string, running bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running[name] = running
}

// Calls returns all recorded invocations.
func (m *Mock) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns how many recorded calls have the given key.
func (m *Mock) CallCount(key string) int {
	n := 0
	for _, c := range m.Calls() {
		if c.Key() == key {
			n++
		}
	}
	return n
}

// IsContainerRunnerRunning implements Executor.
func (m *Mock) IsContainerRunnerRunning(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running[name]
}

// Command implements Executor.
func (m *Mock) Command(ctx context.Context, cmd string, args ...string) (*process.Handle, error) {
	return m.respond(Call{Cmd: cmd, Args: args})
}

// Exec implements Executor.
func (m *Mock) Exec(ctx context.Context, container, cmd string, args []string, opts ExecOptions) (*process.Handle, error) {
	if err := CheckRunning(m, container); err != nil {
		return nil, err
	}
	return m.respond(Call{Container: container, Cmd: cmd, Args: args, Options: opts})
}

// WhichCache implements Executor.
func (m *Mock) WhichCache() *WhichCache {
	return m.which
}

func (m *Mock) respond(call Call) (*process.Handle, error) {
	m.mu.Lock()
	m.calls = append(m.calls, call)
	r, ok := m.results[call.Key()]
	handler := m.handler
	m.mu.Unlock()

	if !ok && handler != nil {
		r, ok = handler(call)
	}
	if !ok {
		return nil, fmt.Errorf("unexpected docker command: docker %s", call.Key())
	}
	if r.Err != nil {
		return nil, r.Err
	}

	stdout := output.New(call.Options.StdoutOptions())
	stderr := output.New(call.Options.StderrOptions())
	stdout.Write([]byte(r.Stdout))
	stderr.Write([]byte(r.Stderr))

	h := process.New(append([]string{"docker"}, call.Argv()...), call.Container, stdout, stderr, call.Options.OutputReadyType)
	h.Finish(r.ExitCode, nil)
	return h, nil
}
