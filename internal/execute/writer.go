package execute

import (
	"io"
	"os"
	"sync"
)

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

// SyncWriter makes w safe for the copy goroutines os/exec starts for
// writers that are not files. Files are handed to children as descriptors
// and returned as is, so are writers already wrapped.
func SyncWriter(w io.Writer) io.Writer {
	switch w.(type) {
	case nil, *os.File, *lockedWriter:
		return w
	}
	return &lockedWriter{w: w}
}
