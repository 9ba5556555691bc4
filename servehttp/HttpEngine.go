package servehttp

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const DefaultShutdownTimeout = 5 * time.Second

// StartHTTPServer serves engine on addr until SIGINT or SIGTERM, then shuts the server down gracefully.
// The shutdown hooks run afterwards in order, sharing the remaining grace period.
func StartHTTPServer(engine *gin.Engine, addr string, hooks ...func(ctx context.Context)) {
	srv := &http.Server{
		Addr:    addr,
		Handler: engine,
	}

	go func() {
		logrus.Infof("http server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	// kill (no param) default send syscall.SIGTERM
	// kill -2 send syscall.SIGINT
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Infof("[QUIT] shutdown signal has been received, the service will exit in %v", DefaultShutdownTimeout)

	ctx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logrus.Errorf("[QUIT] http server shutdown failed: %v", err)
	} else {
		logrus.Info("[QUIT] http server is shutdown gracefully, new request will be rejected")
	}
	for _, hook := range hooks {
		hook(ctx)
	}
	logrus.Info("[QUIT] service exiting")
}
