package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"creatorlink-api/internal/domain"
	"creatorlink-api/internal/service"
)

func setupProtectedRouter(jwtSvc *service.JWTService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/protected", JWTAuthMiddleware(jwtSvc), func(c *gin.Context) {
		claims, ok := GetAuthClaims(c)
		if !ok {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "no claims"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"user_id": claims.UserID})
	})
	return r
}

func TestJWTAuthMiddleware_AllowsValidToken(t *testing.T) {
	jwtSvc := service.NewJWTService("secret", 15*time.Minute, time.Hour)
	r := setupProtectedRouter(jwtSvc)

	pair, err := jwtSvc.GeneratePair(domain.User{ID: "u1", Email: "a@x.com", Role: domain.RoleCreator})
	if err != nil {
		t.Fatalf("generate pair: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestJWTAuthMiddleware_RejectsMissingHeader(t *testing.T) {
	jwtSvc := service.NewJWTService("secret", 15*time.Minute, time.Hour)
	r := setupProtectedRouter(jwtSvc)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestJWTAuthMiddleware_RejectsGarbageToken(t *testing.T) {
	jwtSvc := service.NewJWTService("secret", 15*time.Minute, time.Hour)
	r := setupProtectedRouter(jwtSvc)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestJWTAuthMiddleware_RejectsRefreshTokenAsAccess(t *testing.T) {
	jwtSvc := service.NewJWTService("secret", 15*time.Minute, time.Hour)
	r := setupProtectedRouter(jwtSvc)

	pair, err := jwtSvc.GeneratePair(domain.User{ID: "u1", Email: "a@x.com", Role: domain.RoleCreator})
	if err != nil {
		t.Fatalf("generate pair: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+pair.RefreshToken)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for refresh token on access route, got %d", rec.Code)
	}
}
