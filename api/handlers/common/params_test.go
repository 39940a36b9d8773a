package common

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"autorbi/internal/auth"
	"autorbi/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newContext(target string) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, target, nil)
	return c, w
}

func TestPathID(t *testing.T) {
	t.Run("合法 ID", func(t *testing.T) {
		c, _ := newContext("/")
		c.Params = gin.Params{{Key: "id", Value: "42"}}
		id, ok := PathID(c, "id")
		assert.True(t, ok)
		assert.Equal(t, uint(42), id)
	})

	for _, raw := range []string{"0", "-1", "abc", ""} {
		t.Run("非法 ID "+raw, func(t *testing.T) {
			c, w := newContext("/")
			c.Params = gin.Params{{Key: "id", Value: raw}}
			_, ok := PathID(c, "id")
			assert.False(t, ok)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestQueryInt(t *testing.T) {
	c, _ := newContext("/?limit=20")
	v, ok := QueryInt(c, "limit")
	assert.True(t, ok)
	assert.Equal(t, 20, v)

	c, _ = newContext("/")
	v, ok = QueryInt(c, "limit")
	assert.True(t, ok)
	assert.Zero(t, v)

	c, w := newContext("/?limit=many")
	_, ok = QueryInt(c, "limit")
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestQueryIDs(t *testing.T) {
	c, _ := newContext("/?ids=1,2&ids=5")
	ids, ok := QueryIDs(c, "ids")
	assert.True(t, ok)
	assert.Equal(t, []uint{1, 2, 5}, ids)

	c, w := newContext("/?ids=1,x")
	_, ok = QueryIDs(c, "ids")
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestActor(t *testing.T) {
	c, w := newContext("/")
	_, ok := Actor(c)
	assert.False(t, ok)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	c, _ = newContext("/")
	auth.SetActor(c, auth.Actor{UserID: 3, Role: models.UserRoleEngineer})
	actor, ok := Actor(c)
	assert.True(t, ok)
	assert.Equal(t, uint(3), actor.UserID)
}
