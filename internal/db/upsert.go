package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// Upsert describes a staged merge of rows into Table. Rows are copied into an
// ON COMMIT DROP temp table shaped like Table and merged with
// INSERT ... ON CONFLICT (Keys) DO UPDATE.
type Upsert struct {
	Table   string   // optionally schema qualified
	Columns []string // column order of each row
	Keys    []string // unique constraint columns
	Update  []string // columns overwritten on conflict; nil means every non-key column
}

// Exec merges rows and returns the number of rows inserted or updated.
func (u Upsert) Exec(ctx context.Context, pool Pool, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if err := u.validate(); err != nil {
		return 0, err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrapf(err, "db: upsert %s: begin tx", u.Table)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	stage := u.stageTable()
	create := fmt.Sprintf("CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP",
		pgx.Identifier{stage}.Sanitize(), sanitizeTable(u.Table))
	if _, err := tx.Exec(ctx, create); err != nil {
		return 0, eris.Wrapf(err, "db: upsert %s: create stage table", u.Table)
	}

	if _, err := tx.CopyFrom(ctx, pgx.Identifier{stage}, u.Columns, pgx.CopyFromRows(rows)); err != nil {
		return 0, eris.Wrapf(err, "db: upsert %s: COPY into stage table", u.Table)
	}

	tag, err := tx.Exec(ctx, u.statement())
	if err != nil {
		return 0, eris.Wrapf(err, "db: upsert %s: merge", u.Table)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrapf(err, "db: upsert %s: commit", u.Table)
	}
	return tag.RowsAffected(), nil
}

func (u Upsert) validate() error {
	switch {
	case len(u.Columns) == 0:
		return eris.Errorf("db: upsert %s: no columns", u.Table)
	case len(u.Keys) == 0:
		return eris.Errorf("db: upsert %s: no conflict keys", u.Table)
	}
	return nil
}

func (u Upsert) stageTable() string {
	return "_stage_" + strings.ReplaceAll(u.Table, ".", "_")
}

func (u Upsert) updateColumns() []string {
	if u.Update != nil {
		return u.Update
	}
	keys := make(map[string]bool, len(u.Keys))
	for _, k := range u.Keys {
		keys[k] = true
	}
	var out []string
	for _, c := range u.Columns {
		if !keys[c] {
			out = append(out, c)
		}
	}
	return out
}

// statement builds the merge from the stage table. With nothing to update
// the merge degrades to DO NOTHING.
func (u Upsert) statement() string {
	cols := quoteAndJoin(u.Columns)
	action := "DO NOTHING"
	if upd := u.updateColumns(); len(upd) > 0 {
		set := make([]string, len(upd))
		for i, c := range upd {
			q := pgx.Identifier{c}.Sanitize()
			set[i] = q + " = EXCLUDED." + q
		}
		action = "DO UPDATE SET " + strings.Join(set, ", ")
	}
	return fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s ON CONFLICT (%s) %s",
		sanitizeTable(u.Table), cols, cols,
		pgx.Identifier{u.stageTable()}.Sanitize(),
		quoteAndJoin(u.Keys), action)
}

// identifier splits a schema qualified name like "statements.run_pages".
func identifier(table string) pgx.Identifier {
	if schema, name, ok := strings.Cut(table, "."); ok {
		return pgx.Identifier{schema, name}
	}
	return pgx.Identifier{table}
}

func sanitizeTable(table string) string {
	return identifier(table).Sanitize()
}

func quoteAndJoin(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
