// Package crystaldbg holds tooling for inspecting a Crystal image and a
// running VM without being part of the VM's execution path: colorized
// disassembly and CBOR snapshot export. Nothing here is imported by
// package vm; the dependency runs one way.
package crystaldbg

import (
	"strings"

	"github.com/fatih/color"

	"github.com/Luminiscental/Crystal/bytecode"
)

var (
	opColor    = color.New(color.FgCyan, color.Bold)
	constColor = color.New(color.FgYellow)
	addrColor  = color.New(color.FgHiBlack)
)

// Disassemble parses image and renders it as colorized assembly text.
func Disassemble(name string, image []byte) (string, error) {
	img, err := bytecode.Parse(image)
	if err != nil {
		return "", err
	}
	return colorize(bytecode.Disassemble(name, img)), nil
}

// colorize post-processes the plain-text disassembly line by line, since
// bytecode.Disassemble's output format is what the color highlighting is
// keyed on.
func colorize(plain string) string {
	lines := strings.Split(plain, "\n")
	for i, line := range lines {
		if strings.HasPrefix(line, "==") || line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		addr, mnemonic := fields[0], fields[1]
		rest := strings.TrimPrefix(line, addr)
		rest = strings.TrimPrefix(rest, "    "+mnemonic)
		lines[i] = addrColor.Sprint(addr) + "    " + opColor.Sprint(mnemonic) + constColor.Sprint(rest)
	}
	return strings.Join(lines, "\n")
}
