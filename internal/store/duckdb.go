package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"os"
	"strings"

	"github.com/marcboeker/go-duckdb"
)

// DuckDBWriter writes containers as a DuckDB database: a datasets table
// describing every dataset, a scalars table, and one long-format table per
// array with an index column per dimension.
type DuckDBWriter struct {
	threads int
	// perm is applied before the rename; zero keeps DuckDB's own mode.
	perm os.FileMode
}

// NewDuckDBWriter returns a writer using four DuckDB threads.
func NewDuckDBWriter() *DuckDBWriter {
	return &DuckDBWriter{threads: 4}
}

// WithFileMode returns a copy of w whose output files get perm.
func (w *DuckDBWriter) WithFileMode(perm os.FileMode) *DuckDBWriter {
	cp := *w
	cp.perm = perm
	return &cp
}

func (w *DuckDBWriter) Name() string      { return "duckdb" }
func (w *DuckDBWriter) Extension() string { return ".duckdb" }

// Write builds the database in a temporary file and renames it into place.
func (w *DuckDBWriter) Write(ctx context.Context, path string, c *Container) error {
	if err := c.Validate(); err != nil {
		return &StoreError{Op: "validate", Path: path, Err: err}
	}

	tmp := tempPath(path)
	if err := w.build(ctx, tmp, c); err != nil {
		removeDuckDBFiles(tmp)
		return &StoreError{Op: "build", Path: path, Err: err}
	}
	if w.perm != 0 {
		if err := os.Chmod(tmp, w.perm); err != nil {
			removeDuckDBFiles(tmp)
			return &StoreError{Op: "chmod", Path: path, Err: err}
		}
	}
	if err := commit(ctx, tmp, path); err != nil {
		removeDuckDBFiles(tmp)
		return &StoreError{Op: "rename", Path: path, Err: err}
	}
	return nil
}

func (w *DuckDBWriter) build(ctx context.Context, dbPath string, c *Container) error {
	connector, err := duckdb.NewConnector(dbPath, func(execer driver.ExecerContext) error {
		pragmas := []string{
			fmt.Sprintf("PRAGMA threads=%d", w.threads),
			"PRAGMA enable_progress_bar=false",
		}
		for _, pragma := range pragmas {
			if _, err := execer.ExecContext(ctx, pragma, nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("creating DuckDB connector: %w", err)
	}
	defer connector.Close()

	db := sql.OpenDB(connector)
	defer db.Close()

	if _, err := db.ExecContext(ctx, `
		CREATE TABLE datasets (
			name        VARCHAR PRIMARY KEY,
			description VARCHAR,
			dtype       VARCHAR NOT NULL,
			shape       VARCHAR NOT NULL,
			table_name  VARCHAR NOT NULL
		)`); err != nil {
		return fmt.Errorf("creating datasets table: %w", err)
	}
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE scalars (
			name        VARCHAR PRIMARY KEY,
			int_value   BIGINT,
			float_value DOUBLE
		)`); err != nil {
		return fmt.Errorf("creating scalars table: %w", err)
	}
	if _, err := db.ExecContext(ctx, `CREATE TABLE attributes (key VARCHAR PRIMARY KEY, value VARCHAR)`); err != nil {
		return fmt.Errorf("creating attributes table: %w", err)
	}

	if _, err := db.ExecContext(ctx, `INSERT INTO attributes VALUES (?, ?)`, "source", c.Source); err != nil {
		return fmt.Errorf("inserting source attribute: %w", err)
	}
	for k, v := range c.Attrs {
		if _, err := db.ExecContext(ctx, `INSERT INTO attributes VALUES (?, ?)`, k, v); err != nil {
			return fmt.Errorf("inserting attribute %s: %w", k, err)
		}
	}

	for i := range c.Datasets {
		d := &c.Datasets[i]
		table := "scalars"
		if !d.Scalar() {
			table = d.Name
		}
		if _, err := db.ExecContext(ctx, `INSERT INTO datasets VALUES (?, ?, ?, ?, ?)`,
			d.Name, d.Description, string(d.DType), shapeString(d.Shape), table); err != nil {
			return fmt.Errorf("describing dataset %s: %w", d.Name, err)
		}

		if d.Scalar() {
			var intVal, floatVal any
			if d.DType == DTypeInt64 {
				intVal = d.Ints[0]
			} else {
				floatVal = d.Floats[0]
			}
			if _, err := db.ExecContext(ctx, `INSERT INTO scalars VALUES (?, ?, ?)`, d.Name, intVal, floatVal); err != nil {
				return fmt.Errorf("inserting scalar %s: %w", d.Name, err)
			}
			continue
		}

		if _, err := db.ExecContext(ctx, arrayTableDDL(d)); err != nil {
			return fmt.Errorf("creating table for %s: %w", d.Name, err)
		}
		if err := appendArray(ctx, db, d); err != nil {
			return fmt.Errorf("appending %s: %w", d.Name, err)
		}
	}

	if _, err := db.ExecContext(ctx, "CHECKPOINT"); err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	return nil
}

// appendArray streams an array dataset through the DuckDB appender, one row
// per element with its multi-dimensional index.
func appendArray(ctx context.Context, db *sql.DB, d *Dataset) error {
	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	return conn.Raw(func(driverConn interface{}) error {
		dConn, ok := driverConn.(*duckdb.Conn)
		if !ok {
			return fmt.Errorf("failed to cast to duckdb.Conn")
		}

		appender, err := duckdb.NewAppenderFromConn(dConn, "", d.Name)
		if err != nil {
			return fmt.Errorf("failed to create appender: %w", err)
		}
		defer appender.Close()

		rank := len(d.Shape)
		idx := make([]int, rank)
		row := make([]driver.Value, rank+1)
		for i := 0; i < d.Len(); i++ {
			for k := 0; k < rank; k++ {
				row[k] = int32(idx[k])
			}
			if d.DType == DTypeInt64 {
				row[rank] = d.Ints[i]
			} else {
				row[rank] = d.Floats[i]
			}
			if err := appender.AppendRow(row...); err != nil {
				return fmt.Errorf("failed to append element %d: %w", i, err)
			}
			advance(idx, d.Shape)
		}
		return appender.Flush()
	})
}

// advance increments a row-major multi-index.
func advance(idx, shape []int) {
	for k := len(idx) - 1; k >= 0; k-- {
		idx[k]++
		if idx[k] < shape[k] {
			return
		}
		idx[k] = 0
	}
}

func arrayTableDDL(d *Dataset) string {
	cols := make([]string, 0, len(d.Shape)+1)
	for k := range d.Shape {
		cols = append(cols, fmt.Sprintf("i%d INTEGER NOT NULL", k))
	}
	valueType := "DOUBLE"
	if d.DType == DTypeInt64 {
		valueType = "BIGINT"
	}
	cols = append(cols, "value "+valueType)
	return fmt.Sprintf("CREATE TABLE %q (%s)", d.Name, strings.Join(cols, ", "))
}

func shapeString(shape []int) string {
	parts := make([]string, len(shape))
	for i, dim := range shape {
		parts[i] = fmt.Sprint(dim)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func removeDuckDBFiles(path string) {
	os.Remove(path)
	os.Remove(path + ".wal")
}
