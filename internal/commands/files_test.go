package commands

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/joshrwolf/engine-exec/internal/process"
	"github.com/joshrwolf/engine-exec/internal/runtime"
)

func TestPutFileCatRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		content string
	}{
		{name: "ascii", path: "/tmp/plain.txt", content: "hello world"},
		{name: "embedded newlines", path: "/tmp/lines.txt", content: "one\ntwo\n\nthree\n"},
		{name: "shell special characters", path: "/tmp/special.sh", content: "echo \"$HOME\" 'single' `date` $(id) && rm -rf / ; | > < \\ !"},
		{name: "path with space", path: "/tmp/with space.txt", content: "spaced"},
		{name: "empty", path: "/tmp/empty", content: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc := newFakeContainer("/usr/bin/bash", "/usr/bin/base64", "/usr/bin/cat")
			mock := newFakeMock(fc)
			ctx := context.Background()

			if err := PutFile(ctx, mock, "web", tt.path, tt.content); err != nil {
				t.Fatalf("PutFile() error = %v", err)
			}
			got, err := Cat(ctx, mock, "web", tt.path, false)
			if err != nil {
				t.Fatalf("Cat() error = %v", err)
			}
			if got != tt.content {
				t.Errorf("Cat() = %q, want %q", got, tt.content)
			}
		})
	}
}

func TestAppendFile(t *testing.T) {
	fc := newFakeContainer("/bin/bash", "/bin/base64", "/bin/cat")
	mock := newFakeMock(fc)
	ctx := context.Background()

	if err := PutFile(ctx, mock, "web", "/etc/hosts", "127.0.0.1 localhost"); err != nil {
		t.Fatalf("PutFile() error = %v", err)
	}
	if err := AppendFile(ctx, mock, "web", "/etc/hosts", "\n10.0.0.2 db"); err != nil {
		t.Fatalf("AppendFile() error = %v", err)
	}

	got, err := Cat(ctx, mock, "web", "/etc/hosts", true)
	if err != nil {
		t.Fatalf("Cat() error = %v", err)
	}
	if want := "127.0.0.1 localhost\n10.0.0.2 db"; got != want {
		t.Errorf("Cat() = %q, want %q", got, want)
	}
}

func TestWriteFileScript(t *testing.T) {
	fc := newFakeContainer("/usr/bin/base64")
	mock := newFakeMock(fc)
	ctx := context.Background()

	got, err := WriteFileScript(ctx, mock, "web", "/etc/motd", "hi", false)
	if err != nil {
		t.Fatalf("WriteFileScript() error = %v", err)
	}
	if want := `echo "aGk=" | /usr/bin/base64 --decode | tee /etc/motd > /dev/null`; got != want {
		t.Errorf("WriteFileScript() = %q, want %q", got, want)
	}

	got, err = WriteFileScript(ctx, mock, "web", "/etc/motd", "hi", true)
	if err != nil {
		t.Fatalf("WriteFileScript(append) error = %v", err)
	}
	if !strings.Contains(got, "| tee -a /etc/motd > /dev/null") {
		t.Errorf("WriteFileScript(append) = %q, want tee -a", got)
	}
}

func TestWriteFileWithoutBase64(t *testing.T) {
	fc := newFakeContainer("/bin/sh")
	mock := newFakeMock(fc)

	err := PutFile(context.Background(), mock, "web", "/tmp/x", "data")
	if !errors.Is(err, runtime.ErrResolutionFailure) {
		t.Fatalf("PutFile() error = %v, want ErrResolutionFailure", err)
	}
	if len(fc.scripts) != 0 {
		t.Errorf("expected no shell invocation, got %v", fc.scripts)
	}
}

func TestWriteFileFailedPipeline(t *testing.T) {
	mock := runtime.NewMock("web")
	mock.On("exec web which bash", runtime.Response{Stdout: "/bin/bash\n"})
	mock.On("exec web which base64", runtime.Response{Stdout: "/bin/base64\n"})
	mock.Handle(func(call runtime.Call) (runtime.Response, bool) {
		if call.Cmd == "/bin/bash" {
			return runtime.Response{Stderr: "tee: /ro/x: Read-only file system\n", ExitCode: 1}, true
		}
		return runtime.Response{}, false
	})

	err := PutFile(context.Background(), mock, "web", "/ro/x", "data")
	if !errors.Is(err, process.ErrExitCodeMismatch) {
		t.Fatalf("PutFile() error = %v, want ErrExitCodeMismatch", err)
	}
}

func TestCat(t *testing.T) {
	t.Run("falls back to /bin/cat", func(t *testing.T) {
		fc := newFakeContainer()
		fc.files["/etc/hostname"] = "web\n"
		mock := newFakeMock(fc)

		got, err := Cat(context.Background(), mock, "web", "/etc/hostname", true)
		if err != nil {
			t.Fatalf("Cat() error = %v", err)
		}
		if got != "web" {
			t.Errorf("Cat() = %q, want %q", got, "web")
		}
		if mock.CallCount("exec web /bin/cat /etc/hostname") != 1 {
			t.Errorf("expected fallback cat invocation, got %v", mock.Calls())
		}
	})

	t.Run("empty file", func(t *testing.T) {
		fc := newFakeContainer("/usr/bin/cat")
		fc.files["/tmp/empty"] = ""
		mock := newFakeMock(fc)

		got, err := Cat(context.Background(), mock, "web", "/tmp/empty", false)
		if err != nil {
			t.Fatalf("Cat() error = %v", err)
		}
		if got != "" {
			t.Errorf("Cat() = %q, want empty", got)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		fc := newFakeContainer("/usr/bin/cat")
		mock := newFakeMock(fc)

		_, err := Cat(context.Background(), mock, "web", "/nope", false)
		if !errors.Is(err, process.ErrExitCodeMismatch) {
			t.Fatalf("Cat() error = %v, want ErrExitCodeMismatch", err)
		}
	})

	t.Run("stopped container", func(t *testing.T) {
		mock := runtime.NewMock()

		_, err := Cat(context.Background(), mock, "web", "/etc/hosts", false)
		if !errors.Is(err, runtime.ErrNotRunning) {
			t.Fatalf("Cat() error = %v, want ErrNotRunning", err)
		}
	})
}
