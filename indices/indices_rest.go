package indices

import (
	"net/http"
	"sqlreview/bizerror"
	"sqlreview/session"
	"time"

	"github.com/fundwit/go-commons/types"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

var (
	PathIndexRequests        = "/v1/index-requests"
	PathPendingIndexRecovery = "/v1/pending-index-recovery"
	PathWorkflowLogs         = "/v1/workflow-logs"

	indexLogRecoveryLimiter = rate.NewLimiter(rate.Every(time.Minute), 1)
)

func RegisterIndicesRestAPI(r *gin.Engine, middleWares ...gin.HandlerFunc) {
	g := r.Group(PathIndexRequests, middleWares...)
	g.POST("", handleIndexRequest)

	g = r.Group(PathPendingIndexRecovery, middleWares...)
	g.POST("", handlePendingIndexRecovery)

	g = r.Group(PathWorkflowLogs, middleWares...)
	g.GET("", handleSearchWorkflowLogs)
	g.GET("/:id", handleDetailWorkflowLog)
}

func handleIndexRequest(c *gin.Context) {
	success, err := ScheduleNewSyncRunFunc(session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, gin.H{"result": success})
}

func handlePendingIndexRecovery(c *gin.Context) {
	s := session.ExtractSessionFromGinContext(c)
	if !s.Perms.IsSuperuser() {
		panic(bizerror.ErrForbidden)
	}
	if !indexLogRecoveryLimiter.Allow() {
		c.JSON(http.StatusOK, gin.H{"result": "request rate limited"})
		return
	}
	go func() {
		if err := PendingEventsRecoveryFunc(s); err != nil {
			logrus.Errorf("pending index recovery failed: %v", err)
		}
	}()
	c.JSON(http.StatusCreated, gin.H{"result": "started"})
}

func handleSearchWorkflowLogs(c *gin.Context) {
	q := WorkflowLogQuery{}
	if err := c.ShouldBindQuery(&q); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	docs, err := SearchWorkflowLogsFunc(c.Request.Context(), q)
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, docs)
}

func handleDetailWorkflowLog(c *gin.Context) {
	id, err := types.ParseID(c.Param("id"))
	if err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	doc, err := DetailWorkflowLogFunc(c.Request.Context(), id)
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, doc)
}
