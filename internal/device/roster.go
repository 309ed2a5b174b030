package device

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/srg/adbfleet/internal/ferr"
)

// ParseRoster reads device entries, one per line, in "host:port[:name]" or
// "serial[:name]" form. Blank lines and lines starting with '#' are
// skipped.
func ParseRoster(r io.Reader) ([]*Record, error) {
	var records []*Record
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.Split(line, ":")
		var id, name string
		switch {
		case len(parts) >= 3:
			id = parts[0] + ":" + parts[1]
			name = parts[2]
		case len(parts) == 2:
			id = parts[0] + ":" + parts[1]
			name = fmt.Sprintf("device %s", id)
		case len(parts) == 1:
			id = parts[0]
			name = fmt.Sprintf("device %s", id)
		default:
			continue
		}

		if seen[id] {
			continue
		}
		seen[id] = true

		records = append(records, &Record{
			ID:    id,
			Name:  name,
			State: StateDisconnected,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, ferr.Wrap(ferr.KindIOFailure, err, "reading roster")
	}
	return records, nil
}

// LoadRosterFile parses the roster at path.
func LoadRosterFile(path string) ([]*Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, ferr.Wrap(ferr.KindIOFailure, err, path)
	}
	defer f.Close()
	return ParseRoster(f)
}
