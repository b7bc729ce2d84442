package commands

import (
	"encoding/base64"
	"regexp"
	"strings"
	"sync"

	"github.com/joshrwolf/engine-exec/internal/runtime"
)

var writePipeline = regexp.MustCompile(`^echo "([A-Za-z0-9+/=]*)" \| (\S+) --decode \| tee( -a)? (.+) > /dev/null$`)

// fakeContainer emulates the few binaries the composite commands rely on.
type fakeContainer struct {
	mu       sync.Mutex
	binaries map[string]string
	files    map[string]string
	scripts  []string
}

func newFakeContainer(binaries ...string) *fakeContainer {
	fc := &fakeContainer{
		binaries: make(map[string]string),
		files:    make(map[string]string),
	}
	for _, path := range binaries {
		fc.binaries[path[strings.LastIndex(path, "/")+1:]] = path
	}
	return fc
}

func (fc *fakeContainer) file(path string) (string, bool) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	content, ok := fc.files[path]
	return content, ok
}

func (fc *fakeContainer) handle(call runtime.Call) (runtime.Response, bool) {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	if call.Cmd == "which" && len(call.Args) == 1 {
		if path, ok := fc.binaries[call.Args[0]]; ok {
			return runtime.Response{Stdout: path + "\n"}, true
		}
		return runtime.Response{ExitCode: 1}, true
	}

	cmd, args := call.Cmd, call.Args
	if cmd == fc.binaries["sudo"] && len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	switch {
	case cmd == fc.binaries["cat"] || cmd == catFallback:
		content, ok := fc.files[args[0]]
		if !ok {
			return runtime.Response{Stderr: "cat: " + args[0] + ": No such file or directory\n", ExitCode: 1}, true
		}
		return runtime.Response{Stdout: content}, true
	case len(args) == 2 && args[0] == "-c":
		fc.scripts = append(fc.scripts, args[1])
		return fc.runScript(args[1]), true
	}
	return runtime.Response{}, false
}

func (fc *fakeContainer) runScript(script string) runtime.Response {
	m := writePipeline.FindStringSubmatch(script)
	if m == nil {
		return runtime.Response{}
	}
	if m[2] != fc.binaries["base64"] {
		return runtime.Response{ExitCode: 127}
	}
	decoded, err := base64.StdEncoding.DecodeString(m[1])
	if err != nil {
		return runtime.Response{ExitCode: 1}
	}

	path := strings.Trim(m[4], "'")
	if m[3] != "" {
		fc.files[path] += string(decoded)
	} else {
		fc.files[path] = string(decoded)
	}
	return runtime.Response{}
}

// newFakeMock returns a Mock whose running container "web" is backed by fc.
func newFakeMock(fc *fakeContainer) *runtime.Mock {
	return newFakeCluster(map[string]*fakeContainer{"web": fc})
}

// newFakeCluster returns a Mock running one fake container per name.
func newFakeCluster(containers map[string]*fakeContainer) *runtime.Mock {
	mock := runtime.NewMock()
	for name := range containers {
		mock.SetRunning(name, true)
	}
	mock.Handle(func(call runtime.Call) (runtime.Response, bool) {
		fc, ok := containers[call.Container]
		if !ok {
			return runtime.Response{}, false
		}
		return fc.handle(call)
	})
	return mock
}
