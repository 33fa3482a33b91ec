package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/testcontainers/testcontainers-go"

	"jobboard-backend/internal/auth"
	"jobboard-backend/internal/database"
	"jobboard-backend/internal/model"
)

var testDB *database.DBinstanceStruct

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	var err error
	var midTeardown func(context.Context, ...testcontainers.TerminateOption) error
	midTeardown, testDB, err = database.GetTestDB()
	if err != nil {
		os.Exit(1)
	}
	code := m.Run()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if midTeardown != nil {
		_ = midTeardown(ctx)
	}
	os.Exit(code)
}

func protectedEngine(extra ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	handlers := append([]gin.HandlerFunc{RequireAuth(testDB)}, extra...)
	handlers = append(handlers, func(c *gin.Context) {
		u, exist := c.Get("user")
		if !exist {
			c.JSON(http.StatusInternalServerError, gin.H{"ok": false})
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true, "user": u})
	})
	r.GET("/protected", handlers...)
	return r
}

func doRequest(engine *gin.Engine, token string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(http.MethodGet, "/protected", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func TestRequireAuth_Success(t *testing.T) {
	engine := protectedEngine()
	token, err := auth.GetAccessToken(t, testDB, database.TestSeeker1.Username, database.TestSeedPassword)
	assert.NoError(t, err)

	rec := doRequest(engine, token)

	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body map[string]interface{}
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["ok"])
}

func TestRequireAuth_NoHeader(t *testing.T) {
	engine := protectedEngine()
	rec := doRequest(engine, "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var body map[string]interface{}
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	assert.Contains(t, body["error"], "Invalid authorization header")
}

func TestRequireAuth_ExpiredToken(t *testing.T) {
	engine := protectedEngine()
	token, err := auth.GenerateTokenWithDuration(database.TestSeeker1.ID, -1*time.Minute, auth.JwtIssuer)
	assert.NoError(t, err)

	rec := doRequest(engine, token)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	var body map[string]interface{}
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	assert.Equal(t, "Access token expired", body["error"])
}

func TestRequireAuth_WrongIssuer(t *testing.T) {
	engine := protectedEngine()
	token, err := auth.GenerateTokenWithDuration(database.TestSeeker1.ID, time.Hour, "someone-else")
	assert.NoError(t, err)

	rec := doRequest(engine, token)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCheckRole_Allows(t *testing.T) {
	engine := protectedEngine(CheckRole(model.RoleSeeker))
	token, err := auth.GetAccessToken(t, testDB, database.TestSeeker1.Username, database.TestSeedPassword)
	assert.NoError(t, err)

	rec := doRequest(engine, token)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestCheckRole_Denies(t *testing.T) {
	engine := protectedEngine(CheckRole(model.RoleAdmin))
	token, err := auth.GetAccessToken(t, testDB, database.TestSeeker1.Username, database.TestSeedPassword)
	assert.NoError(t, err)

	rec := doRequest(engine, token)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
