package parser

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/anmitsu/go-shlex"
	"github.com/spf13/afero"

	"rash/internal/slice"
)

// Source is where a stage reads its standard input from.
type Source int

const (
	SourceNone Source = iota
	SourceFile
	SourcePipe
)

// Sink is where a stage writes its standard output to.
type Sink int

const (
	SinkNone Sink = iota
	SinkTruncate
	SinkAppend
	SinkPipe
)

var (
	ErrEmptyCommand  = errors.New("syntax error: empty command")
	ErrMissingTarget = errors.New("syntax error: missing redirection target")
)

// ParseError rejects a whole pipeline before anything is spawned.
type ParseError struct {
	File string
	Err  error
}

func (e *ParseError) Error() string {
	if e.File == "" {
		return e.Err.Error()
	}

	var reason string
	switch {
	case errors.Is(e.Err, fs.ErrNotExist):
		reason = "no such file or directory"
	case errors.Is(e.Err, fs.ErrPermission):
		reason = "permission denied"
	default:
		reason = e.Err.Error()
		var pe *fs.PathError
		if errors.As(e.Err, &pe) {
			reason = pe.Err.Error()
		}
	}

	return e.File + ": " + reason
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Stage is one command of a pipeline with its input and output resolved.
// In and Out are only set for file redirections and are owned by the stage.
type Stage struct {
	Text string

	Source Source
	InFile string
	In     afero.File

	Sink    Sink
	OutFile string
	Out     afero.File
}

type Pipeline struct {
	Stages []Stage
}

// Close releases every redirection file still held by the pipeline.
func (p *Pipeline) Close() error {
	var lastErr error
	for i := range p.Stages {
		if f := p.Stages[i].In; f != nil {
			if err := f.Close(); err != nil {
				lastErr = err
			}
			p.Stages[i].In = nil
		}
		if f := p.Stages[i].Out; f != nil {
			if err := f.Close(); err != nil {
				lastErr = err
			}
			p.Stages[i].Out = nil
		}
	}
	return lastErr
}

// SplitBackground strips a trailing '&' and reports whether it was present.
func SplitBackground(line string) (string, bool) {
	line = strings.TrimSpace(line)
	if strings.HasSuffix(line, "&") {
		return strings.TrimSpace(strings.TrimSuffix(line, "&")), true
	}
	return line, false
}

// Parse splits line on '|' and resolves the redirections of every stage.
// Input files are opened and output files created here, so a missing input
// file rejects the pipeline before any process exists.
func Parse(fsys afero.Fs, line string) (*Pipeline, error) {
	texts := split(line, '|')
	p := &Pipeline{}

	for i, text := range texts {
		st, err := parseStage(fsys, text)
		if err != nil {
			_ = p.Close()
			return nil, err
		}

		if i > 0 && st.Source == SourceNone {
			st.Source = SourcePipe
		}
		if i < len(texts)-1 && st.Sink == SinkNone {
			st.Sink = SinkPipe
		}

		p.Stages = append(p.Stages, st)
	}

	return p, nil
}

func parseStage(fsys afero.Fs, text string) (Stage, error) {
	var st Stage

	if j := index(text, ">"); j >= 0 {
		st.Sink = SinkTruncate
		k := j + 1
		if k < len(text) && text[k] == '>' {
			st.Sink = SinkAppend
			k++
		}

		var rest string
		st.OutFile, rest = target(text, k)
		if st.OutFile == "" {
			return Stage{}, &ParseError{Err: ErrMissingTarget}
		}
		text = text[:j] + rest
	}

	if j := index(text, "<"); j >= 0 {
		st.Source = SourceFile

		var rest string
		st.InFile, rest = target(text, j+1)
		if st.InFile == "" {
			return Stage{}, &ParseError{Err: ErrMissingTarget}
		}
		text = text[:j] + rest
	}

	st.Text = strings.TrimSpace(text)
	if st.Text == "" {
		return Stage{}, &ParseError{Err: ErrEmptyCommand}
	}

	if st.Source == SourceFile {
		f, err := fsys.Open(st.InFile)
		if err != nil {
			return Stage{}, &ParseError{File: st.InFile, Err: err}
		}
		st.In = f
	}

	if st.Sink == SinkTruncate || st.Sink == SinkAppend {
		flag := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
		if st.Sink == SinkAppend {
			flag = os.O_WRONLY | os.O_CREATE | os.O_APPEND
		}

		f, err := fsys.OpenFile(st.OutFile, flag, 0644)
		if err != nil {
			if st.In != nil {
				_ = st.In.Close()
			}
			return Stage{}, &ParseError{File: st.OutFile, Err: err}
		}
		st.Out = f
	}

	return st, nil
}

// target reads a redirection target starting at id. The target ends at the
// next redirection marker; the remaining text is returned as rest.
func target(text string, id int) (name string, rest string) {
	tail := text[slice.TrimSpaces(text, id):]
	end := index(tail, "<>")
	if end < 0 {
		end = len(tail)
	}

	name = strings.TrimSpace(tail[:end])
	if words, err := shlex.Split(name, true); err == nil && len(words) == 1 {
		name = words[0]
	}

	return name, tail[end:]
}

// index returns the first position of any byte in chars that lies outside
// quotes and outside $(...) spans, or -1.
func index(s string, chars string) int {
	found := -1
	scan(s, func(i int) bool {
		if strings.IndexByte(chars, s[i]) >= 0 {
			found = i
			return false
		}
		return true
	})
	return found
}

// split cuts s at every top-level sep.
func split(s string, sep byte) []string {
	var res []string
	start := 0
	scan(s, func(i int) bool {
		if s[i] == sep {
			res = append(res, s[start:i])
			start = i + 1
		}
		return true
	})
	return append(res, s[start:])
}

// scan calls fn with the index of every byte outside quotes and command
// substitutions until fn returns false.
func scan(s string, fn func(i int) bool) {
	var quote byte
	depth := 0

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == '\\' && quote == '"' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '\\':
			i++
		case c == '\'' || c == '"':
			quote = c
		case c == '$' && i+1 < len(s) && s[i+1] == '(':
			depth++
			i++
		case c == '(' && depth > 0:
			depth++
		case c == ')' && depth > 0:
			depth--
		case depth == 0:
			if !fn(i) {
				return
			}
		}
	}
}
