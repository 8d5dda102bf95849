package main

import (
	"bytes"
	"encoding/csv"
	"sort"
	"strconv"
	"strings"
)

// InferSchema derives the column set from the union of keys across rows, in
// first-seen order. A column's type is the majority type of its values.
func InferSchema(rows []Row) []SchemaColumn {
	var order []string
	numeric := make(map[string]int)
	total := make(map[string]int)

	for _, row := range rows {
		for _, key := range row.sortedKeys(order) {
			val, ok := row[key]
			if !ok {
				continue
			}
			if total[key] == 0 {
				order = append(order, key)
			}
			total[key]++
			if isNumeric(val) {
				numeric[key]++
			}
		}
	}

	schema := make([]SchemaColumn, 0, len(order))
	for _, name := range order {
		colType := ColumnString
		if total[name] > 0 && numeric[name]*2 > total[name] {
			colType = ColumnNumber
		}
		schema = append(schema, SchemaColumn{Name: name, Type: colType})
	}
	return schema
}

// sortedKeys returns the row's keys with already-known columns first in their
// established order, then any new keys in lexical order so first-seen order is
// deterministic for map-backed rows.
func (r Row) sortedKeys(known []string) []string {
	keys := make([]string, 0, len(r))
	seen := make(map[string]bool, len(r))
	for _, k := range known {
		if _, ok := r[k]; ok {
			keys = append(keys, k)
			seen[k] = true
		}
	}
	var fresh []string
	for k := range r {
		if !seen[k] {
			fresh = append(fresh, k)
		}
	}
	sort.Strings(fresh)
	return append(keys, fresh...)
}

func isNumeric(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	_, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	return err == nil
}

// Normalize rebuilds every row with exactly the schema's columns: absent
// columns become empty strings, unknown columns are dropped.
func Normalize(rows []Row, schema []SchemaColumn) []Row {
	out := make([]Row, 0, len(rows))
	for _, row := range rows {
		normalized := make(Row, len(schema))
		for _, col := range schema {
			normalized[col.Name] = row[col.Name]
		}
		out = append(out, normalized)
	}
	return out
}

// DedupeRows drops rows identical under the schema's column set, keeping
// first occurrence.
func DedupeRows(rows []Row, schema []SchemaColumn) []Row {
	seen := make(map[string]bool, len(rows))
	out := make([]Row, 0, len(rows))
	for _, row := range rows {
		var key strings.Builder
		for _, col := range schema {
			key.WriteString(row[col.Name])
			key.WriteByte(0x1f)
		}
		k := key.String()
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, row)
	}
	return out
}

// ToCSV renders normalized rows with columns in schema order. The header row
// is always present, even with zero data rows.
func ToCSV(rows []Row, schema []SchemaColumn) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := make([]string, len(schema))
	for i, col := range schema {
		header[i] = col.Name
	}
	if err := w.Write(header); err != nil {
		return "", err
	}

	record := make([]string, len(schema))
	for _, row := range rows {
		for i, col := range schema {
			record[i] = row[col.Name]
		}
		if err := w.Write(record); err != nil {
			return "", err
		}
	}

	w.Flush()
	return buf.String(), w.Error()
}
