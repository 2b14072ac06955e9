package p4

import (
	"bufio"
	"io"
	"strings"
)

const tagPrefix = "... "

// ParseTagged parses `p4 -ztag` output into records.
//
// Multi-line values such as change descriptions are emitted as untagged
// continuation lines and may contain blank lines, so a blank line alone does
// not end a record. A record ends when a tagged line repeats a key that the
// current record already holds after at least one blank line.
func ParseTagged(r io.Reader) ([]Record, error) {
	var (
		records []Record
		cur     Record
		lastKey string
		blanks  int
	)

	flush := func() {
		if len(cur) > 0 {
			for k, v := range cur {
				cur[k] = strings.TrimRight(v, "\n")
			}
			records = append(records, cur)
		}
		cur = nil
		lastKey = ""
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")

		switch {
		case strings.HasPrefix(line, tagPrefix):
			body := strings.TrimPrefix(line, tagPrefix)

			// Nested tags ("... ... otherLock0") keep the inner
			// name.
			for strings.HasPrefix(body, tagPrefix) {
				body = strings.TrimPrefix(body, tagPrefix)
			}
			key, value, _ := strings.Cut(body, " ")

			if cur != nil && blanks > 0 {
				if _, dup := cur[key]; dup {
					flush()
				}
			}
			if cur == nil {
				cur = Record{}
			}
			cur[key] = value
			lastKey = key
			blanks = 0

		case line == "":
			blanks++

		default:
			if lastKey == "" {
				continue
			}
			cur[lastKey] += strings.Repeat("\n", blanks+1) + line
			blanks = 0
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	flush()

	return records, nil
}
