package repository

import (
	"strings"
	"testing"
)

// ddlColumns extracts the declared column names from one CREATE TABLE
// statement.
func ddlColumns(t *testing.T, stmt string) map[string]bool {
	t.Helper()
	open := strings.Index(stmt, "(")
	closing := strings.Index(stmt, ") ENGINE")
	if open < 0 || closing < 0 || closing < open {
		t.Fatalf("malformed DDL: %s", stmt)
	}
	cols := map[string]bool{}
	for _, def := range strings.Split(stmt[open+1:closing], ",") {
		fields := strings.Fields(def)
		if len(fields) == 0 {
			continue
		}
		cols[fields[0]] = true
	}
	return cols
}

// Every column a store statement references must be declared by the table it
// runs against, or ClickHouse rejects the statement at runtime.
func TestSchemaCoversStoreColumns(t *testing.T) {
	stmts := SchemaStatements("coinpulse")
	byTable := map[string]map[string]bool{}
	for _, stmt := range stmts {
		if !strings.Contains(stmt, "CREATE TABLE") {
			continue
		}
		name := stmt[strings.Index(stmt, "coinpulse.")+len("coinpulse."):]
		name = strings.Fields(name)[0]
		byTable[name] = ddlColumns(t, stmt)
	}

	cases := []struct {
		table   string
		columns string
	}{
		{"observations", observationColumns},
		{"estimates_current", estimateColumns},
		{"estimates_history", estimateColumns},
		{"forecasts", forecastColumns},
		{"sources", sourceColumns + ", updated_at"},
		{"learning_events", eventColumns + ", updated_at"},
		{"performance_metrics", metricColumns},
	}
	for _, tc := range cases {
		declared, ok := byTable[tc.table]
		if !ok {
			t.Fatalf("no CREATE TABLE for %s", tc.table)
		}
		for _, col := range strings.Split(tc.columns, ", ") {
			if !declared[col] {
				t.Fatalf("table %s: column %q used by store statements but not declared", tc.table, col)
			}
		}
	}
}

func TestSchemaIncludesDatabase(t *testing.T) {
	stmts := SchemaStatements("pricing")
	if stmts[0] != "CREATE DATABASE IF NOT EXISTS pricing" {
		t.Fatalf("unexpected first statement: %s", stmts[0])
	}
	for _, stmt := range stmts[1:] {
		if !strings.Contains(stmt, "pricing.") {
			t.Fatalf("statement not scoped to database: %s", stmt)
		}
	}
}
