package workflowrest

import (
	"errors"
	"net/http"
	"sqlreview/bizerror"
	"sqlreview/domain/sqlworkflow"
	"sqlreview/misc"
	"sqlreview/session"
	"strings"

	"github.com/fundwit/go-commons/types"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
)

var (
	PathSqlWorkflows = "/v1/sql-workflows"
	PathSqlCheck     = "/v1/sql-check"

	errWorkflowIdRequired = errors.New("workflow_id is required")
	errWorkflowIdInvalid  = errors.New("workflow_id must be a positive integer")
)

type PassForm struct {
	AuditRemark string `form:"audit_remark"`
}

type ExecuteForm struct {
	Mode string `form:"mode" binding:"required"`
}

type TimingForm struct {
	RunDate string `form:"run_date"`
}

type CancelForm struct {
	CancelRemark string `form:"cancel_remark"`
}

type AlterRunDateForm struct {
	RunDateStart string `form:"run_date_start"`
	RunDateEnd   string `form:"run_date_end"`
}

type OscForm struct {
	Command string `form:"command" binding:"required"`
	SqlSha1 string `form:"sqlsha1" binding:"required"`
}

type CheckRequest struct {
	InstanceID types.ID `json:"instanceId" binding:"required"`
	DBName     string   `json:"dbName" binding:"required"`
	FullSql    string   `json:"fullSql" binding:"required"`
}

func RegisterSqlWorkflowsRestAPI(r *gin.Engine, middleWares ...gin.HandlerFunc) {
	g := r.Group(PathSqlWorkflows, middleWares...)
	g.POST("/passed", handlePass)
	g.POST("/execute", handleExecute)
	g.POST("/timing-task", handleTimingTask)
	g.POST("/cancel", handleCancel)
	g.POST("/alter-run-date", handleAlterRunDate)
	g.POST("/status", handleStatus)
	g.POST("/osc-control", handleOscControl)

	handlers := append([]gin.HandlerFunc{}, middleWares...)
	r.POST(PathSqlCheck, append(handlers, handleSqlCheck)...)
}

// bindWorkflowID reads workflow_id from the form. Absent, zero or non-numeric ids are rejected.
func bindWorkflowID(c *gin.Context) types.ID {
	value := strings.TrimSpace(c.PostForm("workflow_id"))
	if value == "" {
		panic(&bizerror.ErrBadParam{Cause: errWorkflowIdRequired})
	}
	id, err := types.ParseID(value)
	if err != nil || id == 0 {
		panic(&bizerror.ErrBadParam{Cause: errWorkflowIdInvalid})
	}
	return id
}

func bindForm(c *gin.Context, form interface{}) {
	if err := c.ShouldBindWith(form, binding.Form); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
}

func respondTransition(c *gin.Context, result *sqlworkflow.TransitionResult) {
	c.JSON(http.StatusOK, &misc.ResultBody{Status: 0, Msg: "ok", Data: result})
}

func handlePass(c *gin.Context) {
	id := bindWorkflowID(c)
	form := PassForm{}
	bindForm(c, &form)

	result, err := sqlworkflow.PassWorkflowFunc(id, form.AuditRemark, session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	respondTransition(c, result)
}

func handleExecute(c *gin.Context) {
	id := bindWorkflowID(c)
	form := ExecuteForm{}
	bindForm(c, &form)

	result, err := sqlworkflow.ExecuteWorkflowFunc(id, form.Mode, session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	respondTransition(c, result)
}

func handleTimingTask(c *gin.Context) {
	id := bindWorkflowID(c)
	form := TimingForm{}
	bindForm(c, &form)

	result, err := sqlworkflow.ScheduleWorkflowFunc(id, form.RunDate, session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	respondTransition(c, result)
}

func handleCancel(c *gin.Context) {
	id := bindWorkflowID(c)
	form := CancelForm{}
	bindForm(c, &form)

	result, err := sqlworkflow.CancelWorkflowFunc(id, form.CancelRemark, session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	respondTransition(c, result)
}

func handleAlterRunDate(c *gin.Context) {
	id := bindWorkflowID(c)
	form := AlterRunDateForm{}
	bindForm(c, &form)

	wf, err := sqlworkflow.AlterRunDateFunc(id, form.RunDateStart, form.RunDateEnd, session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, &misc.ResultBody{Status: 0, Msg: "ok", Data: gin.H{
		"runDateStart": wf.RunDateStart, "runDateEnd": wf.RunDateEnd}})
}

func handleStatus(c *gin.Context) {
	id := bindWorkflowID(c)

	status, err := sqlworkflow.DetailWorkflowStatusFunc(id, session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, &misc.ResultBody{Status: 0, Msg: "ok", Data: &sqlworkflow.TransitionResult{Status: status}})
}

func handleOscControl(c *gin.Context) {
	id := bindWorkflowID(c)
	form := OscForm{}
	bindForm(c, &form)

	result, err := sqlworkflow.OscControlFunc(id, form.Command, form.SqlSha1, session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, result)
}

func handleSqlCheck(c *gin.Context) {
	req := CheckRequest{}
	if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}

	result, err := sqlworkflow.ExecuteCheckFunc(req.InstanceID, req.DBName, req.FullSql, session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, result)
}
