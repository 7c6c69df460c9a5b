package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"github.com/thereayou/letstalk/internal/handlers"
	"github.com/thereayou/letstalk/internal/metrics"
	"github.com/thereayou/letstalk/internal/mocks"
	"go.uber.org/mock/gomock"
)

func TestAPIEndpoints_OperationalRoutes(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	gin.SetMode(gin.TestMode)

	m := metrics.New()
	m.IncMessage()

	r := gin.New()
	APIEndpoints(r, Endpoints{
		Auth:      &handlers.AuthHandler{},
		Rooms:     &handlers.RoomHandler{},
		Messages:  &handlers.HTTPMessageHandler{},
		Users:     &handlers.UserHandler{},
		WebSocket: &handlers.WebSocketHandler{},
		Metrics:   m,
		Gate:      mocks.NewMockGate(ctrl),
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	req.Equal(http.StatusOK, w.Code)
	req.JSONEq(`{"status":"ok"}`, w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	req.Equal(http.StatusOK, w.Code)
	req.Contains(w.Body.String(), `"messages_total":1`)

	// Gated routes answer 401 before reaching their handler
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/createRoom", nil))
	req.Equal(http.StatusUnauthorized, w.Code)
}
