package document

import (
	"bufio"
	"io"
	"strings"
)

// readText reads a plain text stream, collapsing runs of blank lines into
// paragraph breaks.
func readText(r io.Reader) (string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var out strings.Builder
	blank := false
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			blank = true
			continue
		}
		if out.Len() > 0 {
			if blank {
				out.WriteString("\n\n")
			} else {
				out.WriteString("\n")
			}
		}
		out.WriteString(line)
		blank = false
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return out.String(), nil
}
