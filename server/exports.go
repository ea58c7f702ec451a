package server

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"brick-catalog/parsers"

	"github.com/gin-gonic/gin"
)

// StreamExport godoc
// @Summary Stream a catalog table
// @Description Streams every item of a kind as CSV or NDJSON
// @Tags exports
// @Produce text/csv
// @Produce application/x-ndjson
// @Param kind path string true "Entity kind"
// @Param format query string false "csv (default) or ndjson"
// @Success 200 {file} file "Streaming export data"
// @Failure 400 {object} map[string]string "Bad request"
// @Router /export/{kind} [get]
func (h *Handler) StreamExport(c *gin.Context) {
	kind, ok := parseKind(c)
	if !ok {
		return
	}
	format := c.DefaultQuery("format", "csv")
	if format != "csv" && format != "ndjson" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid format, must be: csv or ndjson"})
		return
	}

	items, err := h.store().Items(kind)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	timestamp := time.Now().Format("20060102_150405")
	filename := fmt.Sprintf("%s_%s.%s", kind, timestamp, format)
	if format == "csv" {
		c.Header("Content-Type", "text/csv")
	} else {
		c.Header("Content-Type", "application/x-ndjson")
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	c.Set("item_count", len(items))

	c.Stream(func(w io.Writer) bool {
		var err error
		if format == "csv" {
			err = writeCSV(w, items)
		} else {
			err = writeNDJSON(w, items)
		}
		if err != nil {
			c.Error(err)
		}
		return false
	})
}

func writeNDJSON(w io.Writer, items []any) error {
	enc := json.NewEncoder(w)
	for _, item := range items {
		if err := enc.Encode(item); err != nil {
			return err
		}
	}
	return nil
}

// writeCSV flattens items through their JSON form. Columns are the sorted
// keys of the first item; nulls become empty fields.
func writeCSV(w io.Writer, items []any) error {
	buf := bufio.NewWriter(w)
	var headers []string
	for i, item := range items {
		row, err := toRow(item)
		if err != nil {
			return err
		}
		if i == 0 {
			for k := range row {
				headers = append(headers, k)
			}
			sort.Strings(headers)
			if _, err := buf.WriteString(parsers.FormatLine(headers) + "\n"); err != nil {
				return err
			}
		}
		fields := make([]string, len(headers))
		for j, hdr := range headers {
			if v, ok := row[hdr]; ok && v != nil {
				fields[j] = fmt.Sprint(v)
			}
		}
		if _, err := buf.WriteString(parsers.FormatLine(fields) + "\n"); err != nil {
			return err
		}
	}
	return buf.Flush()
}

func toRow(item any) (map[string]any, error) {
	data, err := json.Marshal(item)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var row map[string]any
	if err := dec.Decode(&row); err != nil {
		return nil, err
	}
	return row, nil
}
