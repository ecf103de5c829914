package warehouse

import (
	"context"
	"fmt"
	"strings"
)

// Introspector reads the warehouse schema and formats it as prompt context:
// DDL, data dictionary, relationship list and few-shot examples.
type Introspector struct {
	q Querier
}

// NewIntrospector creates an Introspector over the given querier.
func NewIntrospector(q Querier) *Introspector {
	return &Introspector{q: q}
}

type columnInfo struct {
	name       string
	dataType   string
	notNull    bool
	defaultVal string
	primaryKey bool
}

type foreignKey struct {
	column        string
	foreignTable  string
	foreignColumn string
}

func (in *Introspector) tableNames(ctx context.Context) ([]string, error) {
	rows, err := in.q.Query(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	names := make([]string, 0, len(rows))
	for _, row := range rows {
		if name, ok := row["name"].(string); ok {
			names = append(names, name)
		}
	}
	return names, nil
}

func (in *Introspector) columns(ctx context.Context, table string) ([]columnInfo, error) {
	rows, err := in.q.Query(ctx, fmt.Sprintf(`PRAGMA table_info(%q)`, table))
	if err != nil {
		return nil, fmt.Errorf("table info for %s: %w", table, err)
	}
	cols := make([]columnInfo, 0, len(rows))
	for _, row := range rows {
		col := columnInfo{
			name:       asString(row["name"]),
			dataType:   asString(row["type"]),
			notNull:    asInt(row["notnull"]) != 0,
			primaryKey: asInt(row["pk"]) != 0,
		}
		if row["dflt_value"] != nil {
			col.defaultVal = asString(row["dflt_value"])
		}
		cols = append(cols, col)
	}
	return cols, nil
}

func (in *Introspector) foreignKeys(ctx context.Context, table string) ([]foreignKey, error) {
	rows, err := in.q.Query(ctx, fmt.Sprintf(`PRAGMA foreign_key_list(%q)`, table))
	if err != nil {
		return nil, fmt.Errorf("foreign keys for %s: %w", table, err)
	}
	fks := make([]foreignKey, 0, len(rows))
	for _, row := range rows {
		fks = append(fks, foreignKey{
			column:        asString(row["from"]),
			foreignTable:  asString(row["table"]),
			foreignColumn: asString(row["to"]),
		})
	}
	return fks, nil
}

// FullSchema returns formatted DDL for every table.
func (in *Introspector) FullSchema(ctx context.Context) (string, error) {
	tables, err := in.tableNames(ctx)
	if err != nil {
		return "", err
	}

	var parts []string
	for _, table := range tables {
		cols, err := in.columns(ctx, table)
		if err != nil {
			return "", err
		}
		fks, err := in.foreignKeys(ctx, table)
		if err != nil {
			return "", err
		}
		parts = append(parts, tableDDL(table, cols, fks))
	}
	return strings.Join(parts, "\n\n"), nil
}

func tableDDL(table string, cols []columnInfo, fks []foreignKey) string {
	var defs []string
	var pks []string
	for _, col := range cols {
		def := fmt.Sprintf("    %s %s", col.name, col.dataType)
		if col.notNull {
			def += " NOT NULL"
		}
		if col.defaultVal != "" {
			def += fmt.Sprintf(" DEFAULT %s", col.defaultVal)
		}
		defs = append(defs, def)
		if col.primaryKey {
			pks = append(pks, col.name)
		}
	}
	if len(pks) > 0 {
		defs = append(defs, fmt.Sprintf("    PRIMARY KEY (%s)", strings.Join(pks, ", ")))
	}
	for _, fk := range fks {
		defs = append(defs, fmt.Sprintf("    FOREIGN KEY (%s) REFERENCES %s(%s)",
			fk.column, fk.foreignTable, fk.foreignColumn))
	}

	header := fmt.Sprintf("-- Table: %s (%d columns, %d foreign keys)", table, len(cols), len(fks))
	return fmt.Sprintf("%s\nCREATE TABLE %s (\n%s\n);", header, table, strings.Join(defs, ",\n"))
}

// DataDictionary returns a per-table column listing with sample values.
func (in *Introspector) DataDictionary(ctx context.Context) (string, error) {
	tables, err := in.tableNames(ctx)
	if err != nil {
		return "", err
	}

	var parts []string
	for _, table := range tables {
		cols, err := in.columns(ctx, table)
		if err != nil {
			return "", err
		}
		samples, err := in.q.Query(ctx, fmt.Sprintf(`SELECT * FROM %q LIMIT 3`, table))
		if err != nil {
			return "", fmt.Errorf("sample rows for %s: %w", table, err)
		}
		parts = append(parts, tableDictionary(table, cols, samples))
	}
	return strings.Join(parts, "\n\n"), nil
}

func tableDictionary(table string, cols []columnInfo, samples []map[string]any) string {
	parts := []string{
		fmt.Sprintf("TABLE: %s", table),
		strings.Repeat("=", len(table)+7),
	}
	for _, col := range cols {
		nullable := "NULL"
		if col.notNull {
			nullable = "NOT NULL"
		}

		var sampleVals []string
		for _, row := range samples {
			if v, ok := row[col.name]; ok && v != nil {
				sampleVals = append(sampleVals, fmt.Sprintf("%v", v))
			}
		}
		line := fmt.Sprintf("  - %s: %s (%s)", col.name, col.dataType, nullable)
		if len(sampleVals) > 0 {
			line += fmt.Sprintf(" | examples: %s", strings.Join(sampleVals, ", "))
		}
		parts = append(parts, line)
	}
	return strings.Join(parts, "\n")
}

// Relationships returns every foreign-key edge as "table.col -> table.col".
func (in *Introspector) Relationships(ctx context.Context) (string, error) {
	tables, err := in.tableNames(ctx)
	if err != nil {
		return "", err
	}

	var edges []string
	for _, table := range tables {
		fks, err := in.foreignKeys(ctx, table)
		if err != nil {
			return "", err
		}
		for _, fk := range fks {
			edges = append(edges, fmt.Sprintf("  - %s.%s -> %s.%s",
				table, fk.column, fk.foreignTable, fk.foreignColumn))
		}
	}

	if len(edges) == 0 {
		return "-- no foreign-key relationships found", nil
	}
	parts := append([]string{"TABLE RELATIONSHIPS", strings.Repeat("=", 19)}, edges...)
	return strings.Join(parts, "\n"), nil
}

// FewShotExamples returns canned question-to-SQL pairs for the generation
// prompt. These are static and domain-neutral.
func (in *Introspector) FewShotExamples(ctx context.Context) (string, error) {
	examples := []struct {
		query, sql, explanation string
	}{
		{
			query:       "total sales for last month",
			sql:         "SELECT SUM(amount) AS total_sales FROM sales WHERE sale_date >= DATE('now', 'start of month', '-1 month') AND sale_date < DATE('now', 'start of month')",
			explanation: "Sums all sales for the previous calendar month using date arithmetic for exact boundaries",
		},
		{
			query:       "top 10 best selling products",
			sql:         "SELECT p.name, SUM(s.quantity) AS total_sold FROM products p JOIN sales s ON p.id = s.product_id GROUP BY p.id, p.name ORDER BY total_sold DESC LIMIT 10",
			explanation: "Joins products and sales, grouped per product and ordered by quantity descending",
		},
		{
			query:       "compare sales by region this year vs last year",
			sql:         "SELECT r.name AS region, SUM(CASE WHEN strftime('%Y', s.sale_date) = strftime('%Y', 'now') THEN s.amount ELSE 0 END) AS this_year, SUM(CASE WHEN strftime('%Y', s.sale_date) = strftime('%Y', 'now', '-1 year') THEN s.amount ELSE 0 END) AS last_year FROM regions r JOIN sales s ON r.id = s.region_id GROUP BY r.id, r.name",
			explanation: "Uses CASE WHEN to compare two years in one query, grouped by region",
		},
	}

	parts := []string{"QUERY EXAMPLES", strings.Repeat("=", 14)}
	for i, ex := range examples {
		parts = append(parts,
			fmt.Sprintf("\nExample %d:", i+1),
			fmt.Sprintf("Question: %q", ex.query),
			fmt.Sprintf("SQL: %s", ex.sql),
			fmt.Sprintf("Explanation: %s", ex.explanation),
		)
	}
	return strings.Join(parts, "\n"), nil
}

func asString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}

func asInt(v any) int {
	switch n := v.(type) {
	case int64:
		return int(n)
	case int:
		return n
	case float64:
		return int(n)
	case string:
		if n == "1" {
			return 1
		}
	}
	return 0
}
