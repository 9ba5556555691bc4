package main

import (
	"context"
	"net/http"
	"os"
	"sqlreview/account"
	"sqlreview/audit"
	"sqlreview/bizerror"
	"sqlreview/client/es"
	"sqlreview/common"
	"sqlreview/dispatch"
	"sqlreview/domain/sqlworkflow"
	"sqlreview/domain/sqlworkflow/workflowrest"
	"sqlreview/engine"
	"sqlreview/event"
	"sqlreview/indices"
	"sqlreview/infra/tracing"
	"sqlreview/metrics"
	"sqlreview/notify"
	"sqlreview/persistence"
	"sqlreview/schedule"
	"sqlreview/servehttp"
	"sqlreview/session"
	"sqlreview/sessions"
	"sqlreview/sysconfig"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

func main() {
	logrus.Info("service start")

	tracerCloser, err := tracing.NewTracerFunc()
	if err != nil {
		logrus.Fatalf("tracer initialization failed %v", err)
	}
	defer tracerCloser.Close()

	dbConfig, err := persistence.ParseDatabaseConfigFromEnv()
	if err != nil {
		logrus.Fatalf("parse database config failed %v", err)
	}

	// create database (no conflict)
	if dbConfig.DriverType == "mysql" {
		if err := persistence.PrepareMysqlDatabase(dbConfig.DriverArgs); err != nil {
			logrus.Fatalf("failed to prepare database %v", err)
		}
	}

	ds := &persistence.DataSourceManager{DatabaseConfig: dbConfig}
	if err := ds.Start(); err != nil {
		logrus.Fatalf("database connection failed %v", err)
	}
	defer ds.Stop()
	persistence.ActiveDataSourceManager = ds

	// database migration (race condition)
	err = ds.GormDB(context.Background()).AutoMigrate(
		&account.User{}, &account.Role{}, &account.Permission{}, &account.UserRoleBinding{}, &account.RolePermissionBinding{},
		&account.UserAuthGroup{}, &account.UserResourceGroup{},
		&sqlworkflow.SqlWorkflow{}, &audit.WorkflowAudit{}, &audit.WorkflowLog{}, &engine.Instance{},
		&schedule.Task{}, &event.EventRecord{}, &sysconfig.ConfigItem{},
	).Error
	if err != nil {
		logrus.Fatalf("database migration failed %v", err)
	}
	if err := account.DefaultSecurityConfiguration(); err != nil {
		logrus.Fatalf("failed to prepare default security configuration %v", err)
	}

	if _, err := es.CreateClientFromEnv(); err != nil {
		logrus.Fatalf("elasticsearch client initialization failed %v", err)
	}

	dispatcher := dispatch.NewDispatcher(dispatch.Options{
		Workers: envInt("DISPATCH_WORKERS", dispatch.DefaultWorkers),
		Limiter: rate.NewLimiter(rate.Limit(envInt("DISPATCH_RATE_PER_SECOND", 10)), envInt("DISPATCH_BURST", 5)),

		DedupWindow: dispatch.DefaultDedupWindow,
	})
	config := sysconfig.NewDBProvider()
	sqlworkflow.ExecutionDispatcher = dispatcher
	sqlworkflow.NotificationGate = &notify.Gate{
		Config:     config,
		Notifier:   notify.Notifiers{notify.LogNotifier{}, &notify.WebhookNotifier{Config: config}},
		Dispatcher: dispatcher,
	}
	event.EventHandlers = append(event.EventHandlers, indices.IndexWorkflowLogEventHandle)

	runner := schedule.NewRunner(sqlworkflow.FireTimingTaskFunc)
	if err := runner.Start(os.Getenv("SCHEDULE_SWEEP_SPEC")); err != nil {
		logrus.Fatalf("failed to start schedule runner %v", err)
	}
	indexCron, err := indices.StartCron(os.Getenv("INDEX_FULL_SYNC_SPEC"))
	if err != nil {
		logrus.Fatalf("failed to start index cron %v", err)
	}

	r := gin.Default()
	r.Use(tracing.TracingIngress())
	r.Use(bizerror.ErrorHandling())
	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, common.ServiceName)
	})
	r.GET("/healthz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := persistence.ActiveDataSourceManager.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "DOWN", "database": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "UP"})
	})
	metrics.RegisterMetricsAPI(r)

	sessions.RegisterSessionsHandler(r)
	sessions.RegisterSessionHandler(r, session.SimpleAuthFilter())
	account.RegisterUsersHandler(r, session.SimpleAuthFilter())
	workflowrest.RegisterSqlWorkflowsRestAPI(r, session.SimpleAuthFilter())
	indices.RegisterIndicesRestAPI(r, session.SimpleAuthFilter())

	port := os.Getenv("HTTP_PORT")
	if port == "" {
		port = "80"
	}
	servehttp.StartHTTPServer(r, ":"+port,
		func(ctx context.Context) {
			select {
			case <-runner.Stop().Done():
			case <-ctx.Done():
			}
		},
		func(ctx context.Context) { indexCron.Stop() },
		func(ctx context.Context) {
			if err := dispatcher.Stop(ctx); err != nil {
				logrus.Warnf("dispatcher stopped with pending tasks: %v", err)
			}
		},
	)
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		logrus.Fatalf("invalid %s '%s': %v", key, v, err)
	}
	return n
}
