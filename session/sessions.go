package session

import (
	"sqlreview/bizerror"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
)

const (
	TokenExpiration = 24 * time.Hour

	KeySecCtx   = "SecCtx"
	KeySecToken = "sec_token"

	bearerPrefix = "Bearer "
)

var TokenCache = cache.New(TokenExpiration, 1*time.Minute)

type LoginRequest struct {
	Name     string `json:"name" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Store caches s under its token for ttl, cache.DefaultExpiration means TokenExpiration.
func Store(s *Session, ttl time.Duration) {
	TokenCache.Set(s.Token, s, ttl)
}

func Revoke(token string) {
	if token != "" {
		TokenCache.Delete(token)
	}
}

// Authenticate resolves a token to the session it was issued for.
func Authenticate(token string) (*Session, error) {
	if token == "" {
		return nil, bizerror.ErrUnauthenticated
	}
	value, found := TokenCache.Get(token)
	if !found {
		return nil, bizerror.ErrUnauthenticated
	}
	s, ok := value.(*Session)
	if !ok || s.Token != token {
		return nil, bizerror.ErrUnauthenticated
	}
	return s, nil
}

// RequestToken prefers the bearer token of the Authorization header over the token cookie.
func RequestToken(ctx *gin.Context) string {
	if header := ctx.GetHeader("Authorization"); strings.HasPrefix(header, bearerPrefix) {
		return strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))
	}
	token, _ := ctx.Cookie(KeySecToken)
	return token
}

func ExtractSessionFromGinContext(ctx *gin.Context) *Session {
	anonymous := &Session{Context: ctx.Request.Context()}
	value, found := ctx.Get(KeySecCtx)
	if !found {
		return anonymous
	}
	cached, ok := value.(*Session)
	if !ok || cached.Token == "" {
		return anonymous
	}
	s := cached.Clone()
	s.Context = ctx.Request.Context()
	return &s
}

func SimpleAuthFilter() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		s, err := Authenticate(RequestToken(ctx))
		if err != nil {
			panic(err)
		}
		InjectSessionIntoGinContext(ctx, s)
		ctx.Next()
	}
}

func InjectSessionIntoGinContext(ctx *gin.Context, s *Session) {
	if s != nil && s.Token != "" {
		ctx.Set(KeySecCtx, s)
	}
}
