package sessions

import (
	"net/http"
	"sqlreview/account"
	"sqlreview/bizerror"
	"sqlreview/persistence"
	"sqlreview/session"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/google/uuid"
	"github.com/jinzhu/gorm"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

const PathSessions = "/v1/sessions"

func RegisterSessionsHandler(r *gin.Engine) {
	g := r.Group(PathSessions)
	g.POST("", SimpleLoginHandler)
	g.DELETE("", SimpleLogoutHandler)
}

func SimpleLogoutHandler(c *gin.Context) {
	session.Revoke(session.RequestToken(c))
	c.SetCookie(session.KeySecToken, "", -1, "/", "", false, false)
	c.AbortWithStatus(http.StatusNoContent)
}

func SimpleLoginHandler(c *gin.Context) {
	login := session.LoginRequest{}
	if err := c.ShouldBindBodyWith(&login, binding.JSON); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	identity := session.Identity{}
	db := persistence.ActiveDataSourceManager.GormDB(c.Request.Context())
	if err := db.Model(&account.User{}).Where(&account.User{Name: login.Name, Secret: account.HashSha256(login.Password)}).
		Scan(&identity).Error; err != nil {
		if gorm.IsRecordNotFoundError(err) {
			logrus.Infof("login of user %s rejected", login.Name)
			panic(bizerror.ErrUnauthenticated)
		}
		panic(err)
	}
	grants, err := account.LoadGrantsFunc(c.Request.Context(), identity.ID)
	if err != nil {
		panic(err)
	}

	token := uuid.New().String()
	s := session.Session{Token: token, Identity: identity, Perms: grants.Perms, AuthGroups: grants.AuthGroups,
		ResourceGroups: grants.ResourceGroups, SigningTime: time.Now()}
	session.Store(&s, cache.DefaultExpiration)

	c.SetCookie(session.KeySecToken, token, int(session.TokenExpiration/time.Second), "/", "", false, false)
	c.JSON(http.StatusOK, &s)
}
