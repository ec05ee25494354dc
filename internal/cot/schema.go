package cot

import "strings"

// FieldKeywords defines how one logical field is located: a list of
// alternative keyword sets. A column matches a set when its lowercased
// identifier contains every keyword in the set. Alternatives cover the
// renames between report vintages (Legacy, Disaggregated, human-readable
// and machine CSV headers).
type FieldKeywords [][]string

// SchemaKeywords holds the keyword configuration for all four logical
// fields. Which long/short sets apply is a report-type choice: Managed
// Money exists only in Disaggregated reports, Non-Commercial only in
// Legacy ones; neither is a strict superset of the other.
type SchemaKeywords struct {
	Name  FieldKeywords
	Date  FieldKeywords
	Long  FieldKeywords
	Short FieldKeywords
}

// KeywordsFor returns the default schema keywords for a report type.
func KeywordsFor(rt ReportType) SchemaKeywords {
	ks := SchemaKeywords{
		Name: FieldKeywords{{"market"}, {"contract", "name"}},
		Date: FieldKeywords{{"report", "date"}, {"as", "of", "date"}},
	}
	switch rt {
	case ReportDisaggregated:
		ks.Long = FieldKeywords{{"money", "long"}}
		ks.Short = FieldKeywords{{"money", "short"}}
	default:
		ks.Long = FieldKeywords{{"non", "comm", "long"}}
		ks.Short = FieldKeywords{{"non", "comm", "short"}}
	}
	return ks
}

// Resolve locates the four logical fields among the table's columns.
// Scanning is in the table's native column order and the first matching
// column wins. All four fields must resolve or the whole map is rejected
// with a *SchemaError; a partially usable table is worse than none.
func (ks SchemaKeywords) Resolve(columns []string) (ColumnMap, error) {
	lowered := make([]string, len(columns))
	for i, c := range columns {
		lowered[i] = strings.ToLower(c)
	}

	var missing []string
	find := func(field string, alts FieldKeywords) int {
		for _, kws := range alts {
			for i, col := range lowered {
				if containsAll(col, kws) {
					return i
				}
			}
		}
		missing = append(missing, field)
		return -1
	}

	cm := ColumnMap{
		Name:  find("name", ks.Name),
		Date:  find("date", ks.Date),
		Long:  find("long", ks.Long),
		Short: find("short", ks.Short),
		Width: len(columns),
	}
	if len(missing) > 0 {
		return ColumnMap{}, &SchemaError{Missing: missing, Columns: columns}
	}
	return cm, nil
}

// containsAll reports whether s contains every keyword.
func containsAll(s string, keywords []string) bool {
	for _, kw := range keywords {
		if !strings.Contains(s, kw) {
			return false
		}
	}
	return true
}
