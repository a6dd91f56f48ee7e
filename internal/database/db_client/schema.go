package db_client

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

//go:embed schema.sql
var schemaSQL string

// Statements splits the embedded schema into individually executable DDL.
func Statements() []string {
	var out []string
	for _, stmt := range strings.Split(schemaSQL, ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}

// ApplySchema creates missing tables and indexes. Every statement is
// idempotent, so it is safe to run on each deploy.
func ApplySchema(ctx context.Context, q Querier) error {
	for i, stmt := range Statements() {
		if _, err := q.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i+1, err)
		}
	}
	zap.L().Info("schema applied", zap.Int("statements", len(Statements())))
	return nil
}
