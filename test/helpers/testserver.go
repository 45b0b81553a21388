package helpers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"electroshop_backend/internal/app"
	"electroshop_backend/internal/config"
	"electroshop_backend/internal/dto"
	"electroshop_backend/internal/email"
	"electroshop_backend/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const (
	TestJWTSecret = "test_secret_key_for_integration_12345"
	TestPassword  = "super_password123"
)

// TestServer - приложение поверх своей SQLite базы и httptest сервера
type TestServer struct {
	Server *httptest.Server
	DB     *gorm.DB
	App    *app.App
}

// TestConfig - конфиг без внешних провайдеров: все адаптеры в демо-режиме
func TestConfig() *config.Config {
	cfg := config.Default()
	cfg.Server.Env = "test"
	cfg.Database.DSN = "sqlite://memory"
	cfg.JWT.Secret = TestJWTSecret
	cfg.Auth.LoginMaxAttempts = 3
	cfg.Auth.LoginWindow = time.Minute
	cfg.Sweep.Enabled = false
	cfg.Sweep.Workers = 2
	return cfg
}

// NewTestServer поднимает сервер; cfgFn может поправить конфиг до сборки
func NewTestServer(t *testing.T, cfgFn ...func(*config.Config)) *TestServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := TestConfig()
	cfg.Storage.BasePath = t.TempDir()
	for _, fn := range cfgFn {
		fn(cfg)
	}

	db := NewTestDB(t)
	application, err := app.Build(cfg, db, app.Deps{Mailer: email.NoopSender{}})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go application.WS.Run(ctx)

	server := httptest.NewServer(application.Router)
	t.Cleanup(func() {
		server.Close()
		cancel()
	})

	return &TestServer{Server: server, DB: db, App: application}
}

// SendRequest отправляет JSON-запрос и возвращает ответ с телом
func (ts *TestServer) SendRequest(t *testing.T, method, path, token string, body interface{}) (*http.Response, string) {
	t.Helper()

	var reqBody io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			reqBody = bytes.NewBufferString(b)
		case []byte:
			reqBody = bytes.NewBuffer(b)
		default:
			jsonBody, err := json.Marshal(body)
			require.NoError(t, err, "ошибка кодирования JSON для запроса")
			reqBody = bytes.NewBuffer(jsonBody)
		}
	}

	req, err := http.NewRequest(method, ts.Server.URL+path, reqBody)
	require.NoError(t, err, "ошибка создания HTTP-запроса")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := ts.Server.Client().Do(req)
	require.NoError(t, err, "ошибка отправки HTTP-запроса")
	defer res.Body.Close()

	resBodyBytes, err := io.ReadAll(res.Body)
	require.NoError(t, err, "ошибка чтения тела ответа")

	return res, string(resBodyBytes)
}

// DecodeJSON разбирает тело ответа в out
func DecodeJSON(t *testing.T, body string, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal([]byte(body), out), "тело ответа: %s", body)
}

// Login входит через API и возвращает access token
func (ts *TestServer) Login(t *testing.T, emailAddr, password string) string {
	t.Helper()

	res, body := ts.SendRequest(t, http.MethodPost, "/api/v1/auth/login", "", dto.LoginRequest{
		Email:    emailAddr,
		Password: password,
	})
	require.Equal(t, http.StatusOK, res.StatusCode, "логин %s: %s", emailAddr, body)

	var auth dto.AuthResponse
	DecodeJSON(t, body, &auth)
	require.NotEmpty(t, auth.AccessToken)
	return auth.AccessToken
}

// CreateAndLoginCustomer создает покупателя и возвращает токен
func (ts *TestServer) CreateAndLoginCustomer(t *testing.T, emailAddr string) (string, *models.User) {
	t.Helper()
	user := CreateUser(t, ts.DB, emailAddr, TestPassword, models.UserRoleCustomer)
	return ts.Login(t, emailAddr, TestPassword), user
}

// CreateAndLoginAdmin создает администратора и возвращает токен
func (ts *TestServer) CreateAndLoginAdmin(t *testing.T) (string, *models.User) {
	t.Helper()
	user := CreateUser(t, ts.DB, "admin@electroshop.test", TestPassword, models.UserRoleAdmin)
	return ts.Login(t, user.Email, TestPassword), user
}
