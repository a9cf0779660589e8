package kfmt

import (
	"bytes"
	"io"
)

// PrefixWriter forwards kernel diagnostics to Sink one complete line at a
// time and starts every forwarded line with Prefix.
//
// Lines emitted by kernel code carry a "[module]" tag. When Modules is not
// empty, tagged lines whose module is not listed are dropped; untagged lines
// are always forwarded.
type PrefixWriter struct {
	Sink   io.Writer
	Prefix []byte

	// Modules selects the module tags to forward. An empty set forwards
	// everything.
	Modules map[string]bool

	// pending holds the bytes of the current, unterminated line.
	pending []byte
}

// Write buffers p and forwards every line it completes. The returned count
// never includes the injected prefix.
func (w *PrefixWriter) Write(p []byte) (int, error) {
	var consumed int
	for consumed < len(p) {
		eol := bytes.IndexByte(p[consumed:], '\n')
		if eol < 0 {
			w.pending = append(w.pending, p[consumed:]...)
			break
		}

		w.pending = append(w.pending, p[consumed:consumed+eol+1]...)
		consumed += eol + 1
		if err := w.emit(); err != nil {
			return consumed, err
		}
	}

	return len(p), nil
}

// Flush forwards a trailing line that has not been terminated yet.
func (w *PrefixWriter) Flush() error {
	if len(w.pending) == 0 {
		return nil
	}
	return w.emit()
}

func (w *PrefixWriter) emit() error {
	line := w.pending
	w.pending = w.pending[:0]

	if len(w.Modules) != 0 {
		if module, tagged := ModuleTag(line); tagged && !w.Modules[module] {
			return nil
		}
	}

	if _, err := w.Sink.Write(w.Prefix); err != nil {
		return err
	}
	_, err := w.Sink.Write(line)
	return err
}

// ModuleTag returns the module name of a line that starts with a "[module]"
// tag.
func ModuleTag(line []byte) (string, bool) {
	if len(line) == 0 || line[0] != '[' {
		return "", false
	}

	end := bytes.IndexByte(line, ']')
	if end <= 1 {
		return "", false
	}
	return string(line[1:end]), true
}
