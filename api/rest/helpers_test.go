package rest_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/ft-transcendence/server/cache"
	"github.com/ft-transcendence/server/config"
	mw "github.com/ft-transcendence/server/middleware"
	"github.com/ft-transcendence/server/model"
	"github.com/ft-transcendence/server/testutil"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var testSec = config.SecurityConfig{
	JWTSecret: "test-secret",
	JWTTTLH:   72 * time.Hour,
}

// signIn issues a token and session for an existing user.
func signIn(t *testing.T, c cache.Cache, u *model.User) string {
	t.Helper()
	token, err := mw.GenerateToken(u.ID, u.Email, u.Nick, testSec.JWTSecret, testSec.JWTTTLH)
	require.NoError(t, err)
	require.NoError(t, c.Set(context.Background(), "session:"+token,
		strconv.FormatInt(u.ID, 10), testSec.JWTTTLH))
	return token
}

func doJSON(r *gin.Engine, method, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func postJSON(r *gin.Engine, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	return doJSON(r, http.MethodPost, path, body, headers...)
}

func getJSON(r *gin.Engine, path string, headers ...string) *httptest.ResponseRecorder {
	return doJSON(r, http.MethodGet, path, nil, headers...)
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func bearer(token string) []string {
	return []string{"Authorization", "Bearer " + token}
}

// seedFriendPair inserts a reciprocal friend relation.
func seedFriendPair(t *testing.T, db *gorm.DB, a, b *model.User) {
	t.Helper()
	require.NoError(t, db.Create(&model.Relation{
		OwnerID: a.ID, Type: model.RelationFriend, PassiveUserID: b.ID,
	}).Error)
	require.NoError(t, db.Create(&model.Relation{
		OwnerID: b.ID, Type: model.RelationFriend, PassiveUserID: a.ID,
	}).Error)
}

func setupDBAndCache(t *testing.T) (*gorm.DB, cache.Cache, cache.PubSub) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	c, ps := testutil.SetupTestCache(t)
	return db, c, ps
}
