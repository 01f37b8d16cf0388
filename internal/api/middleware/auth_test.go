package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rideescrow/internal/domain/entities"
)

var alice = entities.MustParseAddress("0xa11ce00000000000000000000000000000000001")

type stubVerifier map[string]entities.Address

func (v stubVerifier) Verify(token string) (entities.Address, error) {
	address, ok := v[token]
	if !ok {
		return entities.Address{}, errors.New("unknown token")
	}
	return address, nil
}

func TestGetCaller_Absent(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	_, ok := GetCaller(c)
	assert.False(t, ok)

	c.Set(CallerKey, "not an address")
	_, ok = GetCaller(c)
	assert.False(t, ok)
}

func TestBearerAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(BearerAuth(stubVerifier{"good": alice}))
	engine.GET("/whoami", func(c *gin.Context) {
		caller, ok := GetCaller(c)
		require.True(t, ok)
		c.String(http.StatusOK, caller.Hex())
	})

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"valid token", "Bearer good", http.StatusOK},
		{"lowercase scheme", "bearer good", http.StatusOK},
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic good", http.StatusUnauthorized},
		{"unknown token", "Bearer bad", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			engine.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusOK {
				assert.Equal(t, alice.Hex(), w.Body.String())
			}
		})
	}
}
