package execute

import (
	"os"

	"rash/internal/parser"
)

type pipe struct {
	r, w *os.File
}

// Wiring owns the OS pipes between the stages of one pipeline. pipes[i]
// connects stage i to stage i+1 and is nil where either side redirects.
type Wiring struct {
	pipes []*pipe
}

// Wire allocates one pipe per boundary where both neighbours use the pipe.
func Wire(stages []parser.Stage) (*Wiring, error) {
	w := &Wiring{pipes: make([]*pipe, max(len(stages)-1, 0))}

	for i := 0; i+1 < len(stages); i++ {
		if stages[i].Sink != parser.SinkPipe || stages[i+1].Source != parser.SourcePipe {
			continue
		}

		r, pw, err := os.Pipe()
		if err != nil {
			_ = w.Close()
			return nil, err
		}
		w.pipes[i] = &pipe{r: r, w: pw}
	}

	return w, nil
}

// Count is the number of pipes allocated.
func (w *Wiring) Count() int {
	n := 0
	for _, p := range w.pipes {
		if p != nil {
			n++
		}
	}
	return n
}

// Reader is the read end feeding stage i, or nil.
func (w *Wiring) Reader(i int) *os.File {
	if i == 0 || i > len(w.pipes) || w.pipes[i-1] == nil {
		return nil
	}
	return w.pipes[i-1].r
}

// Writer is the write end stage i writes to, or nil.
func (w *Wiring) Writer(i int) *os.File {
	if i >= len(w.pipes) || w.pipes[i] == nil {
		return nil
	}
	return w.pipes[i].w
}

// TakeWriter hands the write end of stage i over to the caller, who must
// close it.
func (w *Wiring) TakeWriter(i int) *os.File {
	f := w.Writer(i)
	if f != nil {
		w.pipes[i].w = nil
	}
	return f
}

// Release closes the shell's copies of the ends handed to stage i. Once the
// child holds the only writer, the reader sees EOF when the child exits.
func (w *Wiring) Release(i int) {
	if i > 0 && i <= len(w.pipes) && w.pipes[i-1] != nil && w.pipes[i-1].r != nil {
		_ = w.pipes[i-1].r.Close()
		w.pipes[i-1].r = nil
	}
	if i < len(w.pipes) && w.pipes[i] != nil && w.pipes[i].w != nil {
		_ = w.pipes[i].w.Close()
		w.pipes[i].w = nil
	}
}

// Close closes every end the shell still holds.
func (w *Wiring) Close() error {
	var lastErr error
	for _, p := range w.pipes {
		if p == nil {
			continue
		}
		if p.r != nil {
			if err := p.r.Close(); err != nil {
				lastErr = err
			}
			p.r = nil
		}
		if p.w != nil {
			if err := p.w.Close(); err != nil {
				lastErr = err
			}
			p.w = nil
		}
	}
	return lastErr
}

// open reports how many pipe ends the shell still holds.
func (w *Wiring) open() int {
	n := 0
	for _, p := range w.pipes {
		if p == nil {
			continue
		}
		if p.r != nil {
			n++
		}
		if p.w != nil {
			n++
		}
	}
	return n
}
