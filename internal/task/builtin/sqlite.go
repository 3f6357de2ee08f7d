package builtin

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"go-workflow/internal/conn"
	"go-workflow/internal/model"
	"go-workflow/internal/task"
)

// SQLite runs SQL against a resolved SQLite endpoint passed as args.conn
// (normally "${{ conn.<name> }}"). args.exec is executed as a script;
// args.query is run afterwards and its rows returned.
type SQLite struct{}

func (SQLite) Run(ctx context.Context, inv *task.Invocation) (task.Result, error) {
	ep, err := endpointArg(inv, "conn")
	if err != nil {
		return task.Result{}, err
	}
	if ep.Type != "SQLite" {
		return task.Result{}, fmt.Errorf("sqlite: connection %q has type %s", ep.Name, ep.Type)
	}
	script := inv.StringArg("exec", "")
	query := inv.StringArg("query", "")
	if strings.TrimSpace(script) == "" && strings.TrimSpace(query) == "" {
		return task.Result{}, errors.New("sqlite: one of args.exec or args.query is required")
	}

	db, err := sql.Open("sqlite3", conn.SQLiteDSN(ep))
	if err != nil {
		return task.Result{}, err
	}
	defer db.Close()
	// one connection so :memory: databases survive between statements
	db.SetMaxOpenConns(1)

	out := model.NewMap()
	if strings.TrimSpace(script) != "" {
		res, err := db.ExecContext(ctx, script)
		if err != nil {
			return task.Result{}, fmt.Errorf("sqlite exec: %w", err)
		}
		n, _ := res.RowsAffected()
		out.Set("rows_affected", model.Int(n))
	}
	if strings.TrimSpace(query) != "" {
		rows, err := queryRows(ctx, db, query)
		if err != nil {
			return task.Result{}, fmt.Errorf("sqlite query: %w", err)
		}
		out.Set("rows", model.Seq(rows...))
		out.Set("count", model.Int(int64(len(rows))))
	}
	inv.Logger().WithField("database", ep.Location()).Debug("sqlite task done")
	return task.Succeeded(model.MapValue(out)), nil
}

func endpointArg(inv *task.Invocation, name string) (*conn.Endpoint, error) {
	v, ok := inv.Arg(name)
	if !ok {
		return nil, fmt.Errorf("args.%s is required", name)
	}
	ep, ok := v.HandleValue().(*conn.Endpoint)
	if v.Kind() != model.KindHandle || !ok {
		return nil, fmt.Errorf("args.%s must be a connection, e.g. ${{ conn.<name> }}", name)
	}
	return ep, nil
}

func queryRows(ctx context.Context, db *sql.DB, query string) ([]model.Value, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []model.Value
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := model.NewMap()
		for i, c := range cols {
			if b, ok := vals[i].([]byte); ok {
				vals[i] = string(b)
			}
			row.Set(c, model.FromAny(vals[i]))
		}
		out = append(out, model.MapValue(row))
	}
	return out, rows.Err()
}
