//go:build linux

package main

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

var interactiveHistory []string

// readInteractiveLine reads one line with basic editing: backspace, left and
// right arrows, ctrl-U, and up/down history. Falls back to plain buffered
// reads when stdin is not a terminal.
func readInteractiveLine(prompt string) (string, error) {
	if !stdinIsTTY() {
		r := bufio.NewReader(os.Stdin)
		s, err := r.ReadString('\n')
		if err != nil && err != io.EOF {
			return "", err
		}
		return trimTrailingNewline(s), nil
	}

	fd := int(os.Stdin.Fd())
	oldState, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return "", err
	}
	newState := *oldState
	newState.Lflag &^= unix.ICANON | unix.ECHO
	newState.Cc[unix.VMIN] = 1
	newState.Cc[unix.VTIME] = 0
	if err := unix.IoctlSetTermios(fd, unix.TCSETS, &newState); err != nil {
		return "", err
	}
	defer func() {
		_ = unix.IoctlSetTermios(fd, unix.TCSETS, oldState)
	}()

	fmt.Print(prompt)
	line := make([]byte, 0, 256)
	cursor := 0
	histPos := len(interactiveHistory)
	histDraft := ""
	var buf [8]byte

	redraw := func() {
		fmt.Printf("\r%s%s\x1b[K", prompt, string(line))
		if cursor < len(line) {
			fmt.Printf("\r%s%s", prompt, string(line[:cursor]))
		}
	}
	setLine := func(s string) {
		line = append(line[:0], s...)
		cursor = len(line)
		redraw()
	}

	for {
		n, err := os.Stdin.Read(buf[:1])
		if err != nil || n == 0 {
			fmt.Println()
			return string(line), err
		}
		b := buf[0]

		switch {
		case b == '\r' || b == '\n':
			fmt.Println()
			out := string(line)
			if out != "" {
				interactiveHistory = append(interactiveHistory, out)
			}
			return out, nil

		case b == 3: // ctrl-C
			fmt.Println()
			return "", nil

		case b == 4: // ctrl-D on empty line ends input
			if len(line) == 0 {
				fmt.Println()
				return "", io.EOF
			}

		case b == 21: // ctrl-U
			line = line[:0]
			cursor = 0
			redraw()

		case b == 127 || b == 8: // backspace
			if cursor > 0 {
				line = append(line[:cursor-1], line[cursor:]...)
				cursor--
				redraw()
			}

		case b == 27: // escape sequence
			if n, _ := os.Stdin.Read(buf[1:3]); n == 2 && buf[1] == '[' {
				switch buf[2] {
				case 'A': // up
					if histPos > 0 {
						if histPos == len(interactiveHistory) {
							histDraft = string(line)
						}
						histPos--
						setLine(interactiveHistory[histPos])
					}
				case 'B': // down
					if histPos < len(interactiveHistory) {
						histPos++
						if histPos == len(interactiveHistory) {
							setLine(histDraft)
						} else {
							setLine(interactiveHistory[histPos])
						}
					}
				case 'C': // right
					if cursor < len(line) {
						cursor++
						redraw()
					}
				case 'D': // left
					if cursor > 0 {
						cursor--
						redraw()
					}
				}
			}

		case b >= 32:
			line = append(line, 0)
			copy(line[cursor+1:], line[cursor:])
			line[cursor] = b
			cursor++
			redraw()
		}
	}
}

var stdinIsTTY = func() bool {
	info, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

func trimTrailingNewline(s string) string {
	if len(s) > 0 && s[len(s)-1] == '\n' {
		s = s[:len(s)-1]
	}
	if len(s) > 0 && s[len(s)-1] == '\r' {
		s = s[:len(s)-1]
	}
	return s
}
