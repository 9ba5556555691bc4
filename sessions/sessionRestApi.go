package sessions

import (
	"net/http"
	"sqlreview/account"
	"sqlreview/bizerror"
	"sqlreview/session"
	"time"

	"github.com/gin-gonic/gin"
)

const PathSession = "/v1/session"

func RegisterSessionHandler(r *gin.Engine, middleWares ...gin.HandlerFunc) {
	g := r.Group(PathSession, middleWares...)
	g.GET("", DetailSession)
}

// DetailSession reloads the grants of the current user, and renews the cached session for the rest of its lifetime.
func DetailSession(c *gin.Context) {
	s := session.ExtractSessionFromGinContext(c)
	if s.Token == "" {
		panic(bizerror.ErrUnauthenticated)
	}

	now := time.Now()
	ttl := session.TokenExpiration - now.Sub(s.SigningTime)
	if ttl <= 0 {
		session.Revoke(s.Token)
		panic(bizerror.ErrUnauthenticated)
	}
	grants, err := account.LoadGrantsFunc(c.Request.Context(), s.Identity.ID)
	if err != nil {
		panic(err)
	}
	renewed := session.Session{Token: s.Token, Identity: s.Identity, Perms: grants.Perms, AuthGroups: grants.AuthGroups,
		ResourceGroups: grants.ResourceGroups, SigningTime: s.SigningTime}
	session.Store(&renewed, ttl)
	c.JSON(http.StatusOK, &renewed)
}
