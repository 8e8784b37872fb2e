package recording

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"
)

// ExportCSV writes records to CSV format
func ExportCSV(w io.Writer, records []Record) error {
	writer := csv.NewWriter(w)

	if err := writer.Write([]string{"timestamp", "target", "healthy", "response_time_ms", "error"}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, r := range records {
		rt := ""
		if r.ResponseTimeMs != nil {
			rt = strconv.FormatInt(*r.ResponseTimeMs, 10)
		}
		row := []string{
			r.Timestamp.UTC().Format(time.RFC3339Nano),
			r.Target,
			strconv.FormatBool(r.Healthy),
			rt,
			r.Error,
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// ExportJSON writes records to JSON format
func ExportJSON(w io.Writer, records []Record) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	if records == nil {
		records = []Record{}
	}
	export := struct {
		ExportedAt time.Time `json:"exportedAt"`
		Count      int       `json:"count"`
		Records    []Record  `json:"records"`
	}{
		ExportedAt: time.Now().UTC(),
		Count:      len(records),
		Records:    records,
	}

	if err := encoder.Encode(export); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}
