package api

import (
	"encoding/json"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/swaggo/swag"
)

var ginParam = regexp.MustCompile(`[:*](\w+)`)

func TestSwaggerDocCoversRoutes(t *testing.T) {
	app := newTestApp(t)

	doc, err := swag.ReadDoc()
	require.NoError(t, err)
	var spec struct {
		Paths       map[string]map[string]json.RawMessage `json:"paths"`
		Definitions map[string]json.RawMessage            `json:"definitions"`
	}
	require.NoError(t, json.Unmarshal([]byte(doc), &spec))

	for _, r := range app.router.Routes() {
		if r.Path == "/metrics" || strings.HasPrefix(r.Path, "/swagger") {
			continue
		}
		path := ginParam.ReplaceAllString(r.Path, "{$1}")
		ops, ok := spec.Paths[path]
		if assert.True(t, ok, "缺少文档: %s", path) {
			assert.Contains(t, ops, strings.ToLower(r.Method), path)
		}
	}
	assert.Contains(t, spec.Definitions, "user.UpdateInput")
	assert.Contains(t, spec.Definitions, "work.AssignInput")
}
