package engine

import (
	"context"
	"fmt"
)

const (
	ErrLevelOK      = 0
	ErrLevelWarning = 1
	ErrLevelError   = 2
)

// Row is one record reported by an engine, keyed by column name.
type Row map[string]interface{}

// ReviewSet is the result of a check, an execution or an OSC control call.
type ReviewSet struct {
	FullSql      string   `json:"fullSql"`
	IsExecute    bool     `json:"isExecute"`
	Checked      bool     `json:"checked"`
	Warning      string   `json:"warning"`
	Error        string   `json:"error"`
	WarningCount int      `json:"warningCount"`
	ErrorCount   int      `json:"errorCount"`
	IsCritical   bool     `json:"isCritical"`
	SyntaxType   int      `json:"syntaxType"`
	Rows         []Row    `json:"rows"`
	ColumnList   []string `json:"columnList"`
	Status       string   `json:"status"`
	AffectedRows int64    `json:"affectedRows"`
}

// Failed reports whether any row carries an error level.
func (r *ReviewSet) Failed() bool {
	return r.Error != "" || r.ErrorCount > 0
}

type Engine interface {
	ExecuteCheck(ctx context.Context, dbName, sql string) (*ReviewSet, error)
	Execute(ctx context.Context, dbName, sql string) (*ReviewSet, error)
	OscControl(ctx context.Context, command, sqlsha1 string) (*ReviewSet, error)
}

var GetEngineFunc = GetEngine

// GetEngine picks the engine serving the instance's database type.
func GetEngine(instance *Instance) (Engine, error) {
	switch instance.DbType {
	case DbTypeMysql, "":
		return NewGoInception(instance, ActiveInceptionConfig), nil
	default:
		return nil, fmt.Errorf("unsupported db type '%s'", instance.DbType)
	}
}
