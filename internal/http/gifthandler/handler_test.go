package gifthandler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"giftauction/internal/database/giftstore"
	"giftauction/internal/database/memstore"
	"giftauction/internal/http/middleware"
	"giftauction/internal/services/gift"
	"giftauction/internal/services/user"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMyGifts(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := memstore.New(100)
	require.NoError(t, db.Gifts().Upsert(t.Context(), nil, "star", "Star"))

	r := gin.New()
	api := r.Group("", middleware.Auth(user.NewUserService(db, db.Ledger())))
	New(gift.NewGiftService(db, db.Gifts())).Register(api)

	get := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/gifts/my", nil)
		req.Header.Set("Authorization", "Bearer 3")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	w := get()
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"gifts":[]}`, w.Body.String())

	at := time.Date(2025, 7, 27, 16, 0, 0, 0, time.UTC)
	require.NoError(t, db.Gifts().Allocate(t.Context(), nil, "star",
		[]giftstore.Allocation{{UserID: 3, Number: 1}, {UserID: 4, Number: 2}}, at))

	w = get()
	require.Equal(t, http.StatusOK, w.Code)
	var out UserGiftsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.Len(t, out.Gifts, 1)
	assert.Equal(t, int64(1), out.Gifts[0].Number)
	assert.Equal(t, "Star", out.Gifts[0].GiftName)
}
