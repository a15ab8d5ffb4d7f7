package output

import (
	"fmt"
	"io"
	"strings"
)

type Class int

const (
	Required Class = iota
	Error
	Normal
	Verbose
)

type Printer struct {
	classes    map[Class]bool
	terminal   io.Writer
	diagnosis  io.Writer
	useEscapes bool
}

// NewPrinterTo creates a printer that writes requested output to terminal and errors to diagnosis.
// Classes not included are dropped.
func NewPrinterTo(terminal io.Writer, diagnosis io.Writer, include []Class, allowEscapes bool) (p Printer) {
	p = Printer{
		classes:    map[Class]bool{},
		terminal:   terminal,
		diagnosis:  diagnosis,
		useEscapes: allowEscapes,
	}
	for _, class := range include {
		p.classes[class] = true
	}
	return
}

func (p Printer) Out(class Class, format string, values ...interface{}) {
	if !p.classes[class] {
		return
	}
	target := &p.terminal
	text := fmt.Sprintf(format, values...)
	if class == Error {
		target = &p.diagnosis
		if p.useEscapes {
			text = TerminalFormatAsError(strings.TrimSuffix(text, "\n"))
			if strings.HasSuffix(format, "\n") {
				text += "\n"
			}
		}
	}
	fmt.Fprint(*target, text)
}
