package testinfra

import (
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"sqlreview/session"

	"github.com/fundwit/go-commons/types"
	"github.com/gin-gonic/gin"
)

func ExecuteRequest(req *http.Request, engine *gin.Engine) (int, string, *http.Response) {
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	resp := w.Result()
	defer resp.Body.Close()
	body, _ := ioutil.ReadAll(resp.Body)
	return resp.StatusCode, string(body), resp
}

// BuildSession build a session for the named user, holding the given permissions.
func BuildSession(uid types.ID, name string, perms ...string) *session.Session {
	return &session.Session{
		Token:    "token-" + name,
		Identity: session.Identity{ID: uid, Name: name, Nickname: name},
		Perms:    perms,
	}
}

// InjectSession returns a middleware which places s into each request, bypassing token authentication.
func InjectSession(s *session.Session) gin.HandlerFunc {
	return func(c *gin.Context) {
		session.InjectSessionIntoGinContext(c, s)
		c.Next()
	}
}
