package pipeline

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// ReadNames reads one input line per row, skipping blank lines and lines
// starting with '#'. Qualifiers after the first comma are preserved.
func ReadNames(r io.Reader) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read names: %w", err)
	}
	return lines, nil
}
