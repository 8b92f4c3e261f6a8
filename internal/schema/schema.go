// Package schema embeds the versioned warehouse DDL for each supported SQL
// dialect. The schema is created or dropped whole; it is never migrated
// incrementally.
package schema

import (
	"context"
	"embed"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"accidents-dw/pkg/database"
)

// Version is the schema revision shipped with this build
const Version = "001"

// Direction selects the up (create) or down (drop) script
type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

//go:embed sql
var files embed.FS

// Script returns the raw DDL for a dialect and direction
func Script(dialect database.Dialect, direction Direction) (string, error) {
	if direction != Up && direction != Down {
		return "", fmt.Errorf("invalid migration direction %q", direction)
	}

	name := fmt.Sprintf("sql/%s/%s_create_schema.%s.sql", dialect, Version, direction)
	content, err := files.ReadFile(name)
	if err != nil {
		return "", fmt.Errorf("failed to read embedded schema %s: %w", name, err)
	}
	return string(content), nil
}

// Statements splits a script into individual statements. Line comments are
// dropped; the DDL never contains semicolons inside literals.
func Statements(script string) []string {
	var b strings.Builder
	for _, line := range strings.Split(script, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}

	var stmts []string
	for _, stmt := range strings.Split(b.String(), ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts
}

// Apply runs the script for direction in one transaction. The up script is
// idempotent, so Apply(Up) is safe on an existing warehouse.
func Apply(ctx context.Context, db *database.DB, direction Direction) error {
	script, err := Script(db.Dialect(), direction)
	if err != nil {
		return err
	}

	return db.WithTx(ctx, "schema_"+string(direction), func(tx *sqlx.Tx) error {
		for _, stmt := range Statements(script) {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("failed to execute schema statement %.60q: %w", stmt, err)
			}
		}
		return nil
	})
}
