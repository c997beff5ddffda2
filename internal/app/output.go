package app

import (
	"fmt"
	"io"
)

// fileOutput collects the lines produced for one input file so that
// concurrent workers still print in input order
type fileOutput struct {
	lines []outputLine
}

type outputLine struct {
	stderr bool
	text   string
}

// Printf queues a stdout line
func (o *fileOutput) Printf(format string, args ...any) {
	o.lines = append(o.lines, outputLine{text: fmt.Sprintf(format, args...)})
}

// Errorf queues a stderr line
func (o *fileOutput) Errorf(format string, args ...any) {
	o.lines = append(o.lines, outputLine{stderr: true, text: fmt.Sprintf(format, args...)})
}

// Flush writes the queued lines in the order they were added
func (o *fileOutput) Flush(stdout, stderr io.Writer) {
	for _, l := range o.lines {
		w := stdout
		if l.stderr {
			w = stderr
		}
		fmt.Fprintln(w, l.text)
	}
	o.lines = nil
}
