// Package dataset manages the SQLite-backed tabular dataset that queries
// are answered against. The dataset is loaded from a CSV file into a
// single table named "dftotal"; every column is stored as TEXT since the
// source schema is unknown ahead of time.
package dataset

import (
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

const tableName = "dftotal"

// ColumnInfo describes one column of the dataset table.
type ColumnInfo struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	Nullable   bool   `json:"nullable"`
	PrimaryKey bool   `json:"primary_key"`
}

// TableInfo summarizes the dataset table.
type TableInfo struct {
	TableName   string       `json:"table_name"`
	RowCount    int64        `json:"row_count"`
	ColumnCount int          `json:"column_count"`
	Columns     []ColumnInfo `json:"columns"`
}

// Statistics reports dataset storage details for admin views.
type Statistics struct {
	DatabasePath string    `json:"database_path"`
	FileSizeMB   float64   `json:"file_size_mb"`
	TableInfo    TableInfo `json:"table_info"`
	Ready        bool      `json:"is_ready"`
}

// Store is the dataset access layer.
type Store struct {
	db     *sql.DB
	dbPath string
}

// Open initializes the dataset database, importing the CSV when the
// table does not exist yet. A missing CSV is not fatal: an empty
// placeholder table is created so the rest of the system starts.
func Open(dbPath, csvPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating dataset dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open dataset db: %w", err)
	}

	s := &Store{db: db, dbPath: dbPath}
	empty, err := s.tableMissing()
	if err != nil {
		db.Close()
		return nil, err
	}
	if empty {
		if err := s.loadCSV(csvPath); err != nil {
			db.Close()
			return nil, err
		}
	}

	slog.Info("Dataset initialized", "db_path", dbPath)
	return s, nil
}

func (s *Store) tableMissing() (bool, error) {
	var name string
	err := s.db.QueryRow(
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, tableName,
	).Scan(&name)
	if err == sql.ErrNoRows {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("inspecting dataset schema: %w", err)
	}
	return false, nil
}

// loadCSV imports the CSV into a fresh table. The header row supplies
// column names; names are quoted so arbitrary headers survive.
func (s *Store) loadCSV(csvPath string) error {
	f, err := os.Open(csvPath)
	if err != nil {
		slog.Warn("CSV file not found, creating empty table", "csv_path", csvPath)
		return s.createEmptyTable()
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.ReuseRecord = true

	header, err := r.Read()
	if err != nil {
		return fmt.Errorf("reading CSV header: %w", err)
	}

	columns := make([]string, len(header))
	placeholders := make([]string, len(header))
	for i, name := range header {
		columns[i] = quoteIdent(strings.TrimSpace(name))
		placeholders[i] = "?"
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning import: %w", err)
	}
	defer tx.Rollback()

	create := fmt.Sprintf("CREATE TABLE %s (%s TEXT)", tableName, strings.Join(columns, " TEXT, "))
	if _, err := tx.Exec(create); err != nil {
		return fmt.Errorf("creating dataset table: %w", err)
	}

	insert := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		tableName, strings.Join(columns, ", "), strings.Join(placeholders, ", "))
	stmt, err := tx.Prepare(insert)
	if err != nil {
		return fmt.Errorf("preparing import: %w", err)
	}
	defer stmt.Close()

	var rows int64
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("reading CSV row %d: %w", rows+1, err)
		}
		args := make([]any, len(record))
		for i, v := range record {
			args[i] = v
		}
		if _, err := stmt.Exec(args...); err != nil {
			return fmt.Errorf("importing row %d: %w", rows+1, err)
		}
		rows++
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing import: %w", err)
	}

	slog.Info("Loaded CSV into dataset", "csv_path", csvPath, "rows", rows, "columns", len(header))
	return nil
}

func (s *Store) createEmptyTable() error {
	_, err := s.db.Exec(fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id INTEGER PRIMARY KEY,
		name TEXT,
		value TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`, tableName))
	if err != nil {
		return fmt.Errorf("creating empty dataset table: %w", err)
	}
	return nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// ExecuteQuery runs a raw SQL query and returns the rows as maps keyed
// by column name. Intended for internal fast-path lookups, not for
// user-supplied SQL.
func (s *Store) ExecuteQuery(query string, args ...any) ([]map[string]any, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query execution: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []map[string]any
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// RowCount returns the number of rows in the dataset table.
func (s *Store) RowCount() (int64, error) {
	var count int64
	err := s.db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", tableName)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting rows: %w", err)
	}
	return count, nil
}

// TableInfo returns the dataset schema and row count.
func (s *Store) TableInfo() (TableInfo, error) {
	info := TableInfo{TableName: tableName}

	count, err := s.RowCount()
	if err != nil {
		return info, err
	}
	info.RowCount = count

	rows, err := s.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return info, fmt.Errorf("reading table info: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid     int
			name    string
			colType string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dflt, &pk); err != nil {
			return info, err
		}
		info.Columns = append(info.Columns, ColumnInfo{
			Name:       name,
			Type:       colType,
			Nullable:   notNull == 0,
			PrimaryKey: pk != 0,
		})
	}
	info.ColumnCount = len(info.Columns)
	return info, rows.Err()
}

// SampleData returns up to limit rows for prompt context.
func (s *Store) SampleData(limit int) ([]map[string]any, error) {
	if limit <= 0 {
		limit = 5
	}
	return s.ExecuteQuery(fmt.Sprintf("SELECT * FROM %s LIMIT ?", tableName), limit)
}

// Ready reports whether the dataset table is queryable.
func (s *Store) Ready() bool {
	var one int
	err := s.db.QueryRow(fmt.Sprintf("SELECT 1 FROM %s LIMIT 1", tableName)).Scan(&one)
	return err == nil || err == sql.ErrNoRows
}

// Statistics returns storage details for the admin stats view.
func (s *Store) Statistics() Statistics {
	stats := Statistics{DatabasePath: s.dbPath, Ready: s.Ready()}

	if fi, err := os.Stat(s.dbPath); err == nil {
		stats.FileSizeMB = float64(fi.Size()) / (1024 * 1024)
	}
	if info, err := s.TableInfo(); err == nil {
		stats.TableInfo = info
	} else {
		slog.Error("Failed to collect dataset statistics", "error", err)
	}
	return stats
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
