package docs

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/swaggo/swag"
)

func TestSwaggerDocument(t *testing.T) {
	raw, err := swag.ReadDoc(SwaggerInfo.InstanceName())
	require.NoError(t, err)

	var doc struct {
		Info struct {
			Title string `json:"title"`
		} `json:"info"`
		Paths       map[string]map[string]interface{} `json:"paths"`
		Definitions map[string]interface{}            `json:"definitions"`
	}
	require.NoError(t, json.Unmarshal([]byte(raw), &doc))
	assert.Equal(t, SwaggerInfo.Title, doc.Info.Title)

	routes := map[string]string{
		"/health":                               "get",
		"/ready":                                "get",
		"/meta/entity-kinds":                    "get",
		"/meta/sync-run-statuses":               "get",
		"/meta/alert-kinds":                     "get",
		"/sync/{kind}":                          "post",
		"/sync/{kind}/status":                   "get",
		"/sync/runs":                            "get",
		"/sync/runs/{id}":                       "get",
		"/alerts":                               "get",
		"/alerts/generate":                      "post",
		"/providers/duplicates":                 "get",
		"/providers/duplicates/{groupId}/merge": "post",
	}
	for path, method := range routes {
		assert.Contains(t, doc.Paths[path], method, path)
	}
	assert.Contains(t, doc.Definitions, "dedup.MergeConflict")
	assert.Contains(t, doc.Definitions, "sync_engine.SyncResult")
}
