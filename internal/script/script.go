package script

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
	"mvdan.cc/sh/v3/syntax"
)

const (
	directivePrefix = "#!engine-exec"
	blockStart      = "# /// engine-exec"
	blockEnd        = "# ///"
)

// Options are the exec settings a script can carry in its header block.
type Options struct {
	User    string            `yaml:"user,omitempty"`
	WorkDir string            `yaml:"workdir,omitempty"`
	Env     map[string]string `yaml:"env,omitempty"`
	Sudo    bool              `yaml:"sudo,omitempty"`
}

// Script is a multi-line shell script flattened to the single line Shell accepts.
type Script struct {
	// Raw argument strings from #!engine-exec lines
	Directives []string

	// Parsed YAML from the `# /// engine-exec` block
	Options *Options

	// One entry per logical statement, continuations already joined
	Statements []string

	// Statements joined into a single line
	Flat string
}

// Parse reads a script, extracts its header and flattens the body.
func Parse(r io.Reader) (*Script, error) {
	s := &Script{}

	scanner := bufio.NewScanner(r)
	var lineNum int
	var inBlock bool
	var blockLines []string
	var body strings.Builder

	for scanner.Scan() {
		lineNum++
		line := scanner.Text()

		// Handle the options block
		if strings.HasPrefix(line, blockStart) {
			inBlock = true
			continue
		}
		if inBlock {
			if strings.HasPrefix(line, blockEnd) {
				if err := parseBlock(strings.Join(blockLines, "\n"), s); err != nil {
					return nil, fmt.Errorf("parsing options block: %w", err)
				}
				inBlock = false
				continue
			}
			// Remove "# " prefix and collect line
			if strings.HasPrefix(line, "# ") {
				blockLines = append(blockLines, line[2:])
			} else if strings.HasPrefix(line, "#") {
				blockLines = append(blockLines, line[1:])
			}
			continue
		}

		if strings.HasPrefix(line, directivePrefix) {
			if args := strings.TrimSpace(strings.TrimPrefix(line, directivePrefix)); args != "" {
				s.Directives = append(s.Directives, args)
			}
			continue
		}

		// The parser drops the shebang along with every other comment.
		body.WriteString(line)
		body.WriteString("\n")
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading script: %w", err)
	}
	if inBlock {
		return nil, fmt.Errorf("line %d: unterminated options block", lineNum)
	}

	if err := flatten(body.String(), s); err != nil {
		return nil, err
	}
	return s, nil
}

// Flatten is Parse for callers that only need the single line.
func Flatten(r io.Reader) (string, error) {
	s, err := Parse(r)
	if err != nil {
		return "", err
	}
	return s.Flat, nil
}

func flatten(body string, s *Script) error {
	f, err := syntax.NewParser(syntax.Variant(syntax.LangBash)).Parse(strings.NewReader(body), "")
	if err != nil {
		return fmt.Errorf("parsing script: %w", err)
	}

	printer := syntax.NewPrinter(syntax.SingleLine(true))
	var flat strings.Builder
	for i, stmt := range f.Stmts {
		var sb strings.Builder
		if err := printer.Print(&sb, stmt); err != nil {
			return fmt.Errorf("printing statement %d: %w", i+1, err)
		}
		printed := strings.TrimSpace(sb.String())
		if strings.Contains(printed, "\n") {
			return fmt.Errorf("line %d: statement cannot be flattened to a single line", stmt.Pos().Line())
		}
		s.Statements = append(s.Statements, printed)

		if i > 0 {
			if f.Stmts[i-1].Background {
				flat.WriteString(" ")
			} else {
				flat.WriteString("; ")
			}
		}
		flat.WriteString(printed)
	}
	s.Flat = flat.String()
	return nil
}

func parseBlock(content string, s *Script) error {
	var opts Options
	if err := yaml.Unmarshal([]byte(content), &opts); err != nil {
		return fmt.Errorf("unmarshaling YAML: %w", err)
	}

	s.Options = &opts
	return nil
}
