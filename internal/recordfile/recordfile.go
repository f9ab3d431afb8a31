// Package recordfile implements the on-disk record file format (§4.6): a
// short key-value metadata block, a blank line, then the page body as
// plain text. Grounded on the teacher's plain key-value parsing style
// (internal/config/load.go's TOML decode is structured; this format is
// simpler and hand-rolled since no pack library parses this shape).
package recordfile

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"time"
)

// metaRowKey, metaLastSync are the two metadata keys every record file
// carries; metaSuffix persists the filename's collision suffix across runs
// so a title-derived name stays stable even as sibling titles come and go.
const (
	metaRowKey   = "rowKey"
	metaLastSync = "lastSync"
	metaSuffix   = "fileSuffix"
)

// Record is the parsed form of a record file.
type Record struct {
	RowKey   string
	LastSync time.Time
	Suffix   int // 0 means unsuffixed
	Summary  map[string]string
	Body     string
}

// Parse reads a record file's metadata block and body.
func Parse(data []byte) (Record, error) {
	text := string(data)

	head, body, found := strings.Cut(text, "\n\n")
	if !found {
		head, body = text, ""
	}

	rec := Record{Summary: make(map[string]string)}

	for _, line := range strings.Split(head, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}

		key, value, ok := strings.Cut(line, ": ")
		if !ok {
			return Record{}, fmt.Errorf("recordfile: malformed metadata line %q", line)
		}

		switch key {
		case metaRowKey:
			rec.RowKey = value
		case metaLastSync:
			t, err := time.Parse(time.RFC3339, value)
			if err != nil {
				return Record{}, fmt.Errorf("recordfile: parsing %s: %w", metaLastSync, err)
			}

			rec.LastSync = t
		case metaSuffix:
			var n int
			if _, err := fmt.Sscanf(value, "%d", &n); err == nil {
				rec.Suffix = n
			}
		default:
			rec.Summary[key] = value
		}
	}

	rec.Body = body

	return rec, nil
}

// Format renders a record file's bytes from its parsed form. Summary keys
// are written in sorted order so output is stable across runs.
func Format(rec Record) []byte {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "%s: %s\n", metaRowKey, rec.RowKey)
	fmt.Fprintf(&buf, "%s: %s\n", metaLastSync, rec.LastSync.UTC().Format(time.RFC3339))

	if rec.Suffix > 0 {
		fmt.Fprintf(&buf, "%s: %d\n", metaSuffix, rec.Suffix)
	}

	keys := make([]string, 0, len(rec.Summary))
	for k := range rec.Summary {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	for _, k := range keys {
		fmt.Fprintf(&buf, "%s: %s\n", k, rec.Summary[k])
	}

	buf.WriteString("\n")
	buf.WriteString(rec.Body)

	return buf.Bytes()
}
