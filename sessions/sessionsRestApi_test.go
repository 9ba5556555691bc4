package sessions_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sqlreview/account"
	"sqlreview/authority"
	"sqlreview/bizerror"
	"sqlreview/session"
	"sqlreview/sessions"
	"sqlreview/testinfra"
	"testing"
	"time"

	"github.com/fundwit/go-commons/types"
	"github.com/gin-gonic/gin"
	. "github.com/onsi/gomega"
	"github.com/patrickmn/go-cache"
)

func fixedGrants(ctx context.Context, uid types.ID) (*account.Grants, error) {
	return &account.Grants{Perms: authority.Permissions{authority.PermSqlReview}, AuthGroups: authority.AuthGroups{"dba"},
		ResourceGroups: authority.ResourceGroups{100}}, nil
}

func beforeEachSessionsCase(t *testing.T) (*gin.Engine, *testinfra.TestDatabase) {
	router := gin.Default()
	router.Use(bizerror.ErrorHandling())
	sessions.RegisterSessionsHandler(router)
	sessions.RegisterSessionHandler(router, session.SimpleAuthFilter())
	session.TokenCache.Flush()

	testDatabase := testinfra.StartTestDatabase("sqlreview")
	Expect(testDatabase.DS.GormDB(context.Background()).AutoMigrate(&account.User{}).Error).To(BeNil())
	account.LoadGrantsFunc = fixedGrants
	return router, testDatabase
}

func afterEachSessionsCase(t *testing.T, testDatabase *testinfra.TestDatabase) {
	account.LoadGrantsFunc = account.LoadGrants
	testinfra.StopTestDatabase(testDatabase)
}

func TestSimpleLoginHandler(t *testing.T) {
	RegisterTestingT(t)

	t.Run("should be able to login successfully", func(t *testing.T) {
		router, testDatabase := beforeEachSessionsCase(t)
		defer afterEachSessionsCase(t, testDatabase)
		Expect(testDatabase.DS.GormDB(context.Background()).Create(&account.User{ID: 2, Name: "bob", Nickname: "Bob",
			Secret: account.HashSha256("abc123")}).Error).To(BeNil())

		begin := time.Now()
		req := httptest.NewRequest(http.MethodPost, sessions.PathSessions, bytes.NewReader([]byte(`{"name": "bob", "password":"abc123"}`)))
		status, body, resp := testinfra.ExecuteRequest(req, router)
		Expect(status).To(Equal(http.StatusOK))

		Expect(len(resp.Cookies())).To(Equal(1))
		token := resp.Cookies()[0].Value
		Expect(resp.Cookies()[0].Name).To(Equal(session.KeySecToken))
		Expect(token).ToNot(BeEmpty())
		Expect(body).To(MatchJSON(`{"token":"` + token + `", "identity":{"id":"2","name":"bob","nickname":"Bob"},
			"perms":["sql.sql_review"], "authGroups":["dba"], "resourceGroups":["100"]}`))

		value, found := session.TokenCache.Get(token)
		Expect(found).To(BeTrue())
		s := value.(*session.Session)
		Expect(s.SigningTime.Before(begin)).To(BeFalse())
		Expect(s.Identity).To(Equal(session.Identity{ID: 2, Name: "bob", Nickname: "Bob"}))
	})

	t.Run("should return 401 when user not exist or password is wrong", func(t *testing.T) {
		router, testDatabase := beforeEachSessionsCase(t)
		defer afterEachSessionsCase(t, testDatabase)
		Expect(testDatabase.DS.GormDB(context.Background()).Create(&account.User{ID: 2, Name: "bob",
			Secret: account.HashSha256("abc123")}).Error).To(BeNil())

		for _, payload := range []string{`{"name": "ann", "password":"abc123"}`, `{"name": "bob", "password":"bad pass"}`} {
			req := httptest.NewRequest(http.MethodPost, sessions.PathSessions, bytes.NewReader([]byte(payload)))
			status, body, _ := testinfra.ExecuteRequest(req, router)
			Expect(status).To(Equal(http.StatusUnauthorized))
			Expect(body).To(MatchJSON(`{"code":"common.unauthenticated","message":"unauthenticated","data":null}`))
		}
		Expect(session.TokenCache.ItemCount()).To(BeZero())
	})

	t.Run("should return 400 when bind failed", func(t *testing.T) {
		router, testDatabase := beforeEachSessionsCase(t)
		defer afterEachSessionsCase(t, testDatabase)

		req := httptest.NewRequest(http.MethodPost, sessions.PathSessions, bytes.NewReader([]byte(`{"name": "bob"}`)))
		status, body, _ := testinfra.ExecuteRequest(req, router)
		Expect(status).To(Equal(http.StatusBadRequest))
		Expect(body).To(ContainSubstring(`"code":"common.bad_param"`))
	})

	t.Run("should return 500 when grants can not be loaded", func(t *testing.T) {
		router, testDatabase := beforeEachSessionsCase(t)
		defer afterEachSessionsCase(t, testDatabase)
		Expect(testDatabase.DS.GormDB(context.Background()).Create(&account.User{ID: 2, Name: "bob",
			Secret: account.HashSha256("abc123")}).Error).To(BeNil())
		account.LoadGrantsFunc = func(ctx context.Context, uid types.ID) (*account.Grants, error) {
			return nil, errors.New("grants unavailable")
		}

		req := httptest.NewRequest(http.MethodPost, sessions.PathSessions, bytes.NewReader([]byte(`{"name": "bob", "password":"abc123"}`)))
		status, body, _ := testinfra.ExecuteRequest(req, router)
		Expect(status).To(Equal(http.StatusInternalServerError))
		Expect(body).To(MatchJSON(`{"code":"common.internal_server_error","message":"grants unavailable","data":null}`))
	})
}

func TestSimpleLogoutHandler(t *testing.T) {
	RegisterTestingT(t)

	router, testDatabase := beforeEachSessionsCase(t)
	defer afterEachSessionsCase(t, testDatabase)

	cases := []struct {
		name      string
		cookie    string
		remaining bool
	}{
		{"token is cleared", "test_token", false},
		{"unknown token", "test_token123", true},
		{"request without token", "", true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			session.TokenCache.Flush()
			Expect(session.TokenCache.Add("test_token", &session.Session{}, cache.DefaultExpiration)).To(BeNil())

			req := httptest.NewRequest(http.MethodDelete, sessions.PathSessions, nil)
			if c.cookie != "" {
				req.AddCookie(&http.Cookie{Name: session.KeySecToken, Value: c.cookie})
			}
			status, body, resp := testinfra.ExecuteRequest(req, router)
			Expect(status).To(Equal(http.StatusNoContent))
			Expect(body).To(BeEmpty())
			Expect(len(resp.Cookies())).To(Equal(1))
			Expect(resp.Cookies()[0].Value).To(BeEmpty())
			Expect(resp.Cookies()[0].MaxAge).To(Equal(-1))

			_, found := session.TokenCache.Get("test_token")
			Expect(found).To(Equal(c.remaining))
		})
	}
}

func TestDetailSession(t *testing.T) {
	RegisterTestingT(t)

	t.Run("should refresh grants of the session", func(t *testing.T) {
		router, testDatabase := beforeEachSessionsCase(t)
		defer afterEachSessionsCase(t, testDatabase)

		signed := time.Now().Add(-time.Hour)
		session.TokenCache.Set("t1", &session.Session{Token: "t1", Identity: session.Identity{ID: 2, Name: "bob"},
			Perms: authority.Permissions{authority.PermSqlSubmit}, SigningTime: signed}, cache.DefaultExpiration)

		req := httptest.NewRequest(http.MethodGet, sessions.PathSession, nil)
		req.AddCookie(&http.Cookie{Name: session.KeySecToken, Value: "t1"})
		status, body, _ := testinfra.ExecuteRequest(req, router)
		Expect(status).To(Equal(http.StatusOK))
		Expect(body).To(MatchJSON(`{"token":"t1", "identity":{"id":"2","name":"bob","nickname":""},
			"perms":["sql.sql_review"], "authGroups":["dba"], "resourceGroups":["100"]}`))

		value, found := session.TokenCache.Get("t1")
		Expect(found).To(BeTrue())
		Expect(value.(*session.Session).SigningTime).To(Equal(signed))
		Expect(value.(*session.Session).Perms).To(Equal(authority.Permissions{authority.PermSqlReview}))
	})

	t.Run("should reject expired sessions", func(t *testing.T) {
		router, testDatabase := beforeEachSessionsCase(t)
		defer afterEachSessionsCase(t, testDatabase)

		session.TokenCache.Set("t2", &session.Session{Token: "t2", Identity: session.Identity{ID: 2, Name: "bob"},
			SigningTime: time.Now().Add(-session.TokenExpiration - time.Minute)}, cache.DefaultExpiration)

		req := httptest.NewRequest(http.MethodGet, sessions.PathSession, nil)
		req.AddCookie(&http.Cookie{Name: session.KeySecToken, Value: "t2"})
		status, _, _ := testinfra.ExecuteRequest(req, router)
		Expect(status).To(Equal(http.StatusUnauthorized))

		_, found := session.TokenCache.Get("t2")
		Expect(found).To(BeFalse())
	})

	t.Run("should reject requests without token", func(t *testing.T) {
		router, testDatabase := beforeEachSessionsCase(t)
		defer afterEachSessionsCase(t, testDatabase)

		req := httptest.NewRequest(http.MethodGet, sessions.PathSession, nil)
		status, _, _ := testinfra.ExecuteRequest(req, router)
		Expect(status).To(Equal(http.StatusUnauthorized))
	})
}
