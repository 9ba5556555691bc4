package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

const (
	OscCommandGet    = "get"
	OscCommandStop   = "stop"
	OscCommandPause  = "pause"
	OscCommandResume = "resume"
)

var (
	ErrUnsupportedOscCommand = errors.New("unsupported osc command")
	ErrInvalidSqlSha1        = errors.New("invalid sqlsha1")

	sqlSha1Pattern = regexp.MustCompile(`^\*?[0-9A-Fa-f]{1,64}$`)

	ActiveInceptionConfig = InceptionConfigFromEnv()
)

type InceptionConfig struct {
	Addr     string
	User     string
	Password string
	Timeout  time.Duration
}

func InceptionConfigFromEnv() InceptionConfig {
	c := InceptionConfig{
		Addr:     os.Getenv("GOINCEPTION_ADDR"),
		User:     os.Getenv("GOINCEPTION_USER"),
		Password: os.Getenv("GOINCEPTION_PASSWORD"),
		Timeout:  10 * time.Second,
	}
	if c.Addr == "" {
		c.Addr = "127.0.0.1:4000"
	}
	if c.User == "" {
		c.User = "root"
	}
	return c
}

func (c InceptionConfig) dsn() string {
	cfg := mysql.NewConfig()
	cfg.User = c.User
	cfg.Passwd = c.Password
	cfg.Net = "tcp"
	cfg.Addr = c.Addr
	cfg.Timeout = c.Timeout
	return cfg.FormatDSN()
}

// QueryFunc sends one statement batch to goInception and returns the reported columns and rows.
type QueryFunc func(ctx context.Context, dsn, statement string) ([]string, []Row, error)

// GoInception reviews and executes mysql statements through a goInception server,
// which speaks the mysql protocol.
type GoInception struct {
	instance *Instance
	config   InceptionConfig
	query    QueryFunc
}

func NewGoInception(instance *Instance, config InceptionConfig) *GoInception {
	return &GoInception{instance: instance, config: config, query: queryInception}
}

func (g *GoInception) ExecuteCheck(ctx context.Context, dbName, sqlContent string) (*ReviewSet, error) {
	return g.review(ctx, "--check=1;", dbName, sqlContent, false)
}

func (g *GoInception) Execute(ctx context.Context, dbName, sqlContent string) (*ReviewSet, error) {
	return g.review(ctx, "--execute=1;--ignore-warnings=1;", dbName, sqlContent, true)
}

func (g *GoInception) OscControl(ctx context.Context, command, sqlsha1 string) (*ReviewSet, error) {
	if !sqlSha1Pattern.MatchString(sqlsha1) {
		return nil, ErrInvalidSqlSha1
	}

	var statement string
	switch command {
	case OscCommandGet:
		statement = fmt.Sprintf("inception get osc_percent '%s';", sqlsha1)
	case OscCommandStop, OscCommandPause, OscCommandResume:
		statement = fmt.Sprintf("inception %s osc '%s';", command, sqlsha1)
	default:
		return nil, ErrUnsupportedOscCommand
	}

	columns, rows, err := g.query(ctx, g.config.dsn(), statement)
	if err != nil {
		return nil, err
	}
	return &ReviewSet{FullSql: statement, ColumnList: columns, Rows: rows}, nil
}

func (g *GoInception) review(ctx context.Context, mode, dbName, sqlContent string, execute bool) (*ReviewSet, error) {
	statement := g.envelope(mode, dbName, sqlContent)
	columns, rows, err := g.query(ctx, g.config.dsn(), statement)
	if err != nil {
		return nil, err
	}

	result := &ReviewSet{FullSql: sqlContent, IsExecute: execute, Checked: !execute, ColumnList: columns, Rows: rows}
	for _, row := range rows {
		level := rowInt(row["error_level"])
		switch level {
		case ErrLevelWarning:
			result.WarningCount++
		case ErrLevelError:
			result.ErrorCount++
		}
		if level > ErrLevelOK {
			message := rowString(row["error_message"])
			if level == ErrLevelError {
				result.Error = joinMessage(result.Error, message)
			} else {
				result.Warning = joinMessage(result.Warning, message)
			}
		}
		result.AffectedRows += int64(rowInt(row["affected_rows"]))
	}
	if execute {
		result.Status = "workflow_finish"
		if result.Failed() {
			result.Status = "workflow_exception"
		}
	}
	return result, nil
}

func (g *GoInception) envelope(mode, dbName, sqlContent string) string {
	b := strings.Builder{}
	fmt.Fprintf(&b, "/*--user=%s;--password=%s;--host=%s;--port=%d;%s*/\n",
		g.instance.User, g.instance.Password, g.instance.Host, g.instance.Port, mode)
	b.WriteString("inception_magic_start;\n")
	fmt.Fprintf(&b, "use `%s`;\n", strings.ReplaceAll(dbName, "`", "``"))
	b.WriteString(strings.TrimSpace(sqlContent))
	b.WriteString("\ninception_magic_commit;")
	return b.String()
}

func queryInception(ctx context.Context, dsn, statement string) ([]string, []Row, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, statement)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()
	return ScanRows(rows)
}

// ScanRows reads every record of rows into column keyed maps, decoding byte slices as strings.
func ScanRows(rows *sql.Rows) ([]string, []Row, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}

	var result []Row
	for rows.Next() {
		values := make([]interface{}, len(columns))
		pointers := make([]interface{}, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, nil, err
		}

		row := Row{}
		for i, column := range columns {
			if b, ok := values[i].([]byte); ok {
				row[column] = string(b)
			} else {
				row[column] = values[i]
			}
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	return columns, result, nil
}

func rowInt(v interface{}) int {
	switch n := v.(type) {
	case int64:
		return int(n)
	case int:
		return n
	case string:
		i, _ := strconv.Atoi(n)
		return i
	default:
		return 0
	}
}

func rowString(v interface{}) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func joinMessage(prev, message string) string {
	if prev == "" {
		return message
	}
	if message == "" {
		return prev
	}
	return prev + "\n" + message
}
