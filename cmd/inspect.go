package cmd

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/chaospilot/incident-console/internal"
	"github.com/spf13/cobra"
)

var (
	inspectFormat     string
	inspectSampleRows int
)

// inspectCmd represents the inspect command
var inspectCmd = &cobra.Command{
	Use:   "inspect [database-path]",
	Short: "Inspect the local session database",
	Long: `Inspect the schema and contents of the console's SQLite database.

This command shows:
  • Tables, columns and types
  • Row counts
  • Sample rows, with JSON values pretty-printed

Examples:
  incident-console inspect                          # Inspect <data-dir>/console.db
  incident-console inspect ./console.db --sample 10 # A specific file, 10 rows
  incident-console inspect --format json            # Machine-readable report`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if inspectFormat != "text" && inspectFormat != "json" {
			return fmt.Errorf("invalid format %q (valid: text, json)", inspectFormat)
		}

		var dbPath string
		if len(args) > 0 {
			dbPath = args[0]
		} else {
			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			if !a.paths.DatabaseExists() {
				return fmt.Errorf("no database at %s - run chat or send first, or pass a path", a.paths.DatabasePath)
			}
			dbPath = a.paths.DatabasePath
		}

		report, err := inspectDatabase(dbPath, inspectSampleRows)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if inspectFormat == "json" {
			data, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to marshal report: %w", err)
			}
			fmt.Fprintln(out, string(data))
			return nil
		}
		printReport(out, report)
		return nil
	},
}

type ColumnInfo struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	NotNull    bool   `json:"not_null,omitempty"`
	PrimaryKey bool   `json:"primary_key,omitempty"`
}

type tableReport struct {
	Name    string              `json:"name"`
	Rows    int                 `json:"rows"`
	Columns []ColumnInfo        `json:"columns"`
	Sample  []map[string]string `json:"sample,omitempty"`
}

type databaseReport struct {
	Path   string        `json:"path"`
	Tables []tableReport `json:"tables"`
}

func inspectDatabase(dbPath string, sampleRows int) (*databaseReport, error) {
	db, err := internal.OpenDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = db.Close() }()

	tables, err := getTables(db)
	if err != nil {
		return nil, fmt.Errorf("failed to get tables: %w", err)
	}

	report := &databaseReport{Path: dbPath, Tables: []tableReport{}}
	for _, name := range tables {
		table, err := inspectTable(db, name, sampleRows)
		if err != nil {
			internal.LogWarn("Error inspecting table %s: %v", name, err)
			continue
		}
		report.Tables = append(report.Tables, table)
	}
	return report, nil
}

func getTables(db *sql.DB) ([]string, error) {
	rows, err := db.Query(`
		SELECT name FROM sqlite_master
		WHERE type='table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			continue
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

func inspectTable(db *sql.DB, name string, sampleRows int) (tableReport, error) {
	table := tableReport{Name: name}
	if err := db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %q", name)).Scan(&table.Rows); err != nil {
		return table, fmt.Errorf("failed to get row count: %w", err)
	}

	columns, err := getTableSchema(db, name)
	if err != nil {
		return table, fmt.Errorf("failed to get schema: %w", err)
	}
	table.Columns = columns

	if table.Rows > 0 && sampleRows > 0 {
		sample, err := sampleData(db, name, columns, sampleRows)
		if err != nil {
			return table, fmt.Errorf("failed to read sample data: %w", err)
		}
		table.Sample = sample
	}
	return table, nil
}

func getTableSchema(db *sql.DB, name string) ([]ColumnInfo, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%q)", name))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var columns []ColumnInfo
	for rows.Next() {
		var col ColumnInfo
		var cid int
		var notNull, pk int
		var defaultValue sql.NullString

		if err := rows.Scan(&cid, &col.Name, &col.Type, &notNull, &defaultValue, &pk); err != nil {
			continue
		}
		col.NotNull = notNull == 1
		col.PrimaryKey = pk == 1
		columns = append(columns, col)
	}
	return columns, rows.Err()
}

func sampleData(db *sql.DB, name string, columns []ColumnInfo, limit int) ([]map[string]string, error) {
	if len(columns) == 0 {
		return nil, nil
	}

	colNames := make([]string, len(columns))
	for i, col := range columns {
		colNames[i] = fmt.Sprintf("%q", col.Name)
	}

	query := fmt.Sprintf("SELECT %s FROM %q LIMIT %d", strings.Join(colNames, ", "), name, limit)
	rows, err := db.Query(query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var sample []map[string]string
	for rows.Next() {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, err
		}

		row := make(map[string]string, len(columns))
		for i, col := range columns {
			switch v := values[i].(type) {
			case nil:
				row[col.Name] = "<NULL>"
			case []byte:
				row[col.Name] = string(v)
			default:
				row[col.Name] = fmt.Sprintf("%v", v)
			}
		}
		sample = append(sample, row)
	}
	return sample, rows.Err()
}

func printReport(w io.Writer, report *databaseReport) {
	fmt.Fprintf(w, "📋 Database: %s\n", report.Path)
	if len(report.Tables) == 0 {
		fmt.Fprintln(w, "⚠️  No tables found in database")
		return
	}
	fmt.Fprintf(w, "📊 Found %d table(s)\n\n", len(report.Tables))

	for _, table := range report.Tables {
		fmt.Fprintf(w, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
		fmt.Fprintf(w, "📦 Table: %s\n", table.Name)
		fmt.Fprintf(w, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
		fmt.Fprintf(w, "📊 Rows: %d\n\n", table.Rows)

		fmt.Fprintf(w, "📐 Schema:\n")
		for _, col := range table.Columns {
			pk := ""
			if col.PrimaryKey {
				pk = " [PRIMARY KEY]"
			}
			notNull := ""
			if col.NotNull {
				notNull = " NOT NULL"
			}
			fmt.Fprintf(w, "  • %s: %s%s%s\n", col.Name, col.Type, notNull, pk)
		}
		fmt.Fprintln(w)

		if len(table.Sample) == 0 {
			continue
		}
		fmt.Fprintf(w, "📄 Sample Data (first %d rows):\n", len(table.Sample))
		for i, row := range table.Sample {
			fmt.Fprintf(w, "\n  Row %d:\n", i+1)
			for _, col := range table.Columns {
				printValue(w, col.Name, row[col.Name])
			}
		}
		fmt.Fprintln(w)
	}
}

// printValue prints one sample cell. JSON documents (the remembered
// session list, for one) are indented; other long values are cut.
func printValue(w io.Writer, name, value string) {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		var doc interface{}
		if json.Unmarshal([]byte(trimmed), &doc) == nil {
			if pretty, err := json.MarshalIndent(doc, "      ", "  "); err == nil {
				fmt.Fprintf(w, "    %s (JSON):\n      %s\n", name, string(pretty))
				return
			}
		}
	}

	if len(value) > 200 {
		value = value[:200] + "..."
	}
	if strings.Contains(value, "\n") {
		value = strings.Split(value, "\n")[0] + "..."
	}
	fmt.Fprintf(w, "    %s: %s\n", name, value)
}

func init() {
	rootCmd.AddCommand(inspectCmd)
	inspectCmd.Flags().StringVar(&inspectFormat, "format", "text", "Output format (text, json)")
	inspectCmd.Flags().IntVar(&inspectSampleRows, "sample", 3, "Number of sample rows to show")
}
