package parsers

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Delimiter separates fields within a line
const Delimiter = ','

// maxLineSize bounds a single line read by the streaming parser
const maxLineSize = 1024 * 1024

// Record represents a single CSV row as a map of column name to value
type Record map[string]string

// RowError reports a data row that was dropped because its field count
// does not match the header
type RowError struct {
	Line   int
	Fields int
	Want   int
}

func (e *RowError) Error() string {
	return fmt.Sprintf("line %d: got %d fields, want %d", e.Line, e.Fields, e.Want)
}

// ParseLine splits one line into trimmed fields.
// A double quote toggles quoted mode; delimiters inside quotes are kept.
// Doubled quotes are not an escape: each one toggles.
func ParseLine(line string) []string {
	var fields []string
	var current strings.Builder
	inQuotes := false

	for _, ch := range line {
		switch {
		case ch == '"':
			inQuotes = !inQuotes
		case ch == Delimiter && !inQuotes:
			fields = append(fields, strings.TrimSpace(current.String()))
			current.Reset()
		default:
			current.WriteRune(ch)
		}
	}
	fields = append(fields, strings.TrimSpace(current.String()))
	return fields
}

// FormatLine joins fields into one line, quoting fields that contain the delimiter
func FormatLine(fields []string) string {
	out := make([]string, len(fields))
	for i, f := range fields {
		if strings.ContainsRune(f, Delimiter) {
			out[i] = `"` + f + `"`
		} else {
			out[i] = f
		}
	}
	return strings.Join(out, string(Delimiter))
}

// ParseText parses a whole CSV blob. The first non-blank line is the header;
// rows whose field count differs from the header are dropped.
func ParseText(text string) []Record {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return nil
	}

	headers := ParseLine(lines[0])
	records := make([]Record, 0, len(lines)-1)
	for _, line := range lines[1:] {
		if record, ok := zip(headers, ParseLine(line)); ok {
			records = append(records, record)
		}
	}
	return records
}

// ParseCSV reads CSV from io.Reader and streams records via channel.
// Dropped rows are reported as *RowError on the error channel; any other
// error is a read failure and ends the stream.
// Caller must consume both channels to avoid goroutine leak
func ParseCSV(reader io.Reader) (<-chan Record, <-chan error) {
	records := make(chan Record, 100)
	errors := make(chan error, 16)

	go func() {
		defer close(records)
		defer close(errors)

		scanner := bufio.NewScanner(reader)
		scanner.Buffer(make([]byte, 64*1024), maxLineSize)

		var headers []string
		lineNum := 0
		for scanner.Scan() {
			lineNum++
			line := scanner.Text()
			if strings.TrimSpace(line) == "" {
				continue
			}

			if headers == nil {
				headers = ParseLine(line)
				continue
			}

			fields := ParseLine(line)
			record, ok := zip(headers, fields)
			if !ok {
				errors <- &RowError{Line: lineNum, Fields: len(fields), Want: len(headers)}
				continue
			}
			records <- record
		}

		if err := scanner.Err(); err != nil {
			errors <- err
		}
	}()

	return records, errors
}

func zip(headers, fields []string) (Record, bool) {
	if len(fields) != len(headers) {
		return nil, false
	}
	record := make(Record, len(headers))
	for i, header := range headers {
		record[header] = fields[i]
	}
	return record, true
}
