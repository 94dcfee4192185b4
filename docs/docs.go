// Package docs OpenAPI description of the back-office API, mirrors the controller annotations
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/health": {
            "get": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "System"
                ],
                "summary": "Liveness",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/controllers.HealthResponse"
                        }
                    }
                }
            }
        },
        "/ready": {
            "get": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "System"
                ],
                "summary": "Readiness",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/controllers.HealthResponse"
                        }
                    },
                    "503": {
                        "description": "Service Unavailable",
                        "schema": {
                            "$ref": "#/definitions/controllers.HealthResponse"
                        }
                    }
                }
            }
        },
        "/meta/entity-kinds": {
            "get": {
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Meta"
                ],
                "summary": "Entity kinds",
                "description": "Synced entity kinds and whether they take a date range",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "allOf": [
                                {
                                    "$ref": "#/definitions/controllers.APIResponse"
                                },
                                {
                                    "type": "object",
                                    "properties": {
                                        "data": {
                                            "type": "array",
                                            "items": {
                                                "$ref": "#/definitions/meta.MetaField"
                                            }
                                        }
                                    }
                                }
                            ]
                        }
                    }
                }
            }
        },
        "/meta/sync-run-statuses": {
            "get": {
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Meta"
                ],
                "summary": "Sync run statuses",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "allOf": [
                                {
                                    "$ref": "#/definitions/controllers.APIResponse"
                                },
                                {
                                    "type": "object",
                                    "properties": {
                                        "data": {
                                            "type": "array",
                                            "items": {
                                                "$ref": "#/definitions/meta.MetaField"
                                            }
                                        }
                                    }
                                }
                            ]
                        }
                    }
                }
            }
        },
        "/meta/alert-kinds": {
            "get": {
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Meta"
                ],
                "summary": "Alert kinds",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "allOf": [
                                {
                                    "$ref": "#/definitions/controllers.APIResponse"
                                },
                                {
                                    "type": "object",
                                    "properties": {
                                        "data": {
                                            "type": "array",
                                            "items": {
                                                "$ref": "#/definitions/meta.MetaField"
                                            }
                                        }
                                    }
                                }
                            ]
                        }
                    }
                }
            }
        },
        "/sync/runs": {
            "get": {
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Sync"
                ],
                "summary": "Sync run history",
                "parameters": [
                    {
                        "type": "string",
                        "description": "entity kind",
                        "name": "kind",
                        "in": "query"
                    },
                    {
                        "type": "integer",
                        "description": "max runs, default 20",
                        "name": "limit",
                        "in": "query"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "allOf": [
                                {
                                    "$ref": "#/definitions/controllers.APIResponse"
                                },
                                {
                                    "type": "object",
                                    "properties": {
                                        "data": {
                                            "type": "array",
                                            "items": {
                                                "$ref": "#/definitions/models.SyncRun"
                                            }
                                        }
                                    }
                                }
                            ]
                        }
                    }
                }
            }
        },
        "/sync/runs/{id}": {
            "get": {
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Sync"
                ],
                "summary": "Sync run detail",
                "parameters": [
                    {
                        "type": "string",
                        "description": "run id",
                        "name": "id",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "allOf": [
                                {
                                    "$ref": "#/definitions/controllers.APIResponse"
                                },
                                {
                                    "type": "object",
                                    "properties": {
                                        "data": {
                                            "$ref": "#/definitions/models.SyncRun"
                                        }
                                    }
                                }
                            ]
                        }
                    },
                    "404": {
                        "description": "Not Found",
                        "schema": {
                            "$ref": "#/definitions/controllers.APIResponse"
                        }
                    }
                }
            }
        },
        "/sync/{kind}": {
            "post": {
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Sync"
                ],
                "summary": "Trigger a sync",
                "consumes": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "type": "string",
                        "description": "entity kind",
                        "name": "kind",
                        "in": "path",
                        "required": true
                    },
                    {
                        "description": "date range, dd-mm-yyyy",
                        "name": "body",
                        "in": "body",
                        "required": false,
                        "schema": {
                            "$ref": "#/definitions/controllers.SyncTriggerRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "allOf": [
                                {
                                    "$ref": "#/definitions/controllers.APIResponse"
                                },
                                {
                                    "type": "object",
                                    "properties": {
                                        "data": {
                                            "$ref": "#/definitions/sync_engine.SyncResult"
                                        }
                                    }
                                }
                            ]
                        }
                    },
                    "400": {
                        "description": "Bad Request",
                        "schema": {
                            "$ref": "#/definitions/controllers.APIResponse"
                        }
                    },
                    "409": {
                        "description": "Conflict",
                        "schema": {
                            "$ref": "#/definitions/controllers.APIResponse"
                        }
                    },
                    "500": {
                        "description": "Internal Server Error",
                        "schema": {
                            "allOf": [
                                {
                                    "$ref": "#/definitions/controllers.APIResponse"
                                },
                                {
                                    "type": "object",
                                    "properties": {
                                        "data": {
                                            "$ref": "#/definitions/sync_engine.SyncResult"
                                        }
                                    }
                                }
                            ]
                        }
                    }
                }
            }
        },
        "/sync/{kind}/status": {
            "get": {
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Sync"
                ],
                "summary": "Sync status badge",
                "parameters": [
                    {
                        "type": "string",
                        "description": "entity kind",
                        "name": "kind",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "allOf": [
                                {
                                    "$ref": "#/definitions/controllers.APIResponse"
                                },
                                {
                                    "type": "object",
                                    "properties": {
                                        "data": {
                                            "$ref": "#/definitions/controllers.SyncStatusResponse"
                                        }
                                    }
                                }
                            ]
                        }
                    }
                }
            }
        },
        "/alerts": {
            "get": {
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Alerts"
                ],
                "summary": "List alerts",
                "parameters": [
                    {
                        "type": "boolean",
                        "description": "only unresolved alerts",
                        "name": "open",
                        "in": "query"
                    },
                    {
                        "type": "string",
                        "description": "deadline or stalled",
                        "name": "kind",
                        "in": "query"
                    },
                    {
                        "type": "integer",
                        "description": "max alerts, default 100",
                        "name": "limit",
                        "in": "query"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "allOf": [
                                {
                                    "$ref": "#/definitions/controllers.APIResponse"
                                },
                                {
                                    "type": "object",
                                    "properties": {
                                        "data": {
                                            "type": "array",
                                            "items": {
                                                "$ref": "#/definitions/models.Alert"
                                            }
                                        }
                                    }
                                }
                            ]
                        }
                    }
                }
            }
        },
        "/alerts/generate": {
            "post": {
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Alerts"
                ],
                "summary": "Generate alerts",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "allOf": [
                                {
                                    "$ref": "#/definitions/controllers.APIResponse"
                                },
                                {
                                    "type": "object",
                                    "properties": {
                                        "data": {
                                            "$ref": "#/definitions/alerting.RunResult"
                                        }
                                    }
                                }
                            ]
                        }
                    }
                }
            }
        },
        "/providers/duplicates": {
            "get": {
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Providers"
                ],
                "summary": "Duplicate providers",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "allOf": [
                                {
                                    "$ref": "#/definitions/controllers.APIResponse"
                                },
                                {
                                    "type": "object",
                                    "properties": {
                                        "data": {
                                            "type": "array",
                                            "items": {
                                                "$ref": "#/definitions/dedup.DuplicateGroup"
                                            }
                                        }
                                    }
                                }
                            ]
                        }
                    }
                }
            }
        },
        "/providers/duplicates/{groupId}/merge": {
            "post": {
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Providers"
                ],
                "summary": "Merge duplicate providers",
                "consumes": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "type": "string",
                        "description": "duplicate group id",
                        "name": "groupId",
                        "in": "path",
                        "required": true
                    },
                    {
                        "description": "provider to keep and field resolutions",
                        "name": "body",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/controllers.MergeRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "allOf": [
                                {
                                    "$ref": "#/definitions/controllers.APIResponse"
                                },
                                {
                                    "type": "object",
                                    "properties": {
                                        "data": {
                                            "$ref": "#/definitions/dedup.MergeResult"
                                        }
                                    }
                                }
                            ]
                        }
                    },
                    "404": {
                        "description": "Not Found",
                        "schema": {
                            "$ref": "#/definitions/controllers.APIResponse"
                        }
                    },
                    "409": {
                        "description": "Conflict",
                        "schema": {
                            "allOf": [
                                {
                                    "$ref": "#/definitions/controllers.APIResponse"
                                },
                                {
                                    "type": "object",
                                    "properties": {
                                        "data": {
                                            "$ref": "#/definitions/dedup.MergeConflict"
                                        }
                                    }
                                }
                            ]
                        }
                    }
                }
            }
        }
    },
    "definitions": {
        "controllers.APIResponse": {
            "type": "object",
            "properties": {
                "status": {
                    "type": "integer",
                    "example": 0
                },
                "msg": {
                    "type": "string",
                    "example": "ok"
                },
                "data": {}
            }
        },
        "controllers.HealthResponse": {
            "type": "object",
            "properties": {
                "status": {
                    "type": "string",
                    "example": "ok"
                },
                "timestamp": {
                    "type": "string",
                    "example": "2026-01-01T00:00:00Z"
                },
                "version": {
                    "type": "string",
                    "example": "1.0.0"
                },
                "service": {
                    "type": "string",
                    "example": "backoffice-service"
                },
                "error": {
                    "type": "string"
                }
            }
        },
        "controllers.SyncTriggerRequest": {
            "type": "object",
            "properties": {
                "dateFrom": {
                    "type": "string",
                    "example": "01-01-2026"
                },
                "dateTo": {
                    "type": "string",
                    "example": "31-01-2026"
                }
            }
        },
        "controllers.SyncStatusResponse": {
            "type": "object",
            "properties": {
                "entityKind": {
                    "type": "string"
                },
                "displayName": {
                    "type": "string"
                },
                "dateBounded": {
                    "type": "boolean"
                },
                "lastSuccessfulRun": {
                    "$ref": "#/definitions/models.SyncRun"
                },
                "lastRun": {
                    "$ref": "#/definitions/models.SyncKindStatus"
                }
            }
        },
        "controllers.MergeRequest": {
            "type": "object",
            "properties": {
                "keepId": {
                    "type": "string",
                    "example": "550e8400-e29b-41d4-a716-446655440000"
                },
                "resolutions": {
                    "type": "object",
                    "additionalProperties": {
                        "type": "string"
                    }
                }
            },
            "required": [
                "keepId"
            ]
        },
        "meta.MetaField": {
            "type": "object",
            "properties": {
                "name": {
                    "type": "string"
                },
                "display_name": {
                    "type": "string"
                },
                "type": {
                    "type": "string"
                },
                "required": {
                    "type": "boolean"
                },
                "default_value": {},
                "description": {
                    "type": "string"
                }
            }
        },
        "models.SyncRun": {
            "type": "object",
            "properties": {
                "id": {
                    "type": "string"
                },
                "entity_kind": {
                    "type": "string"
                },
                "date_from": {
                    "type": "string"
                },
                "date_to": {
                    "type": "string"
                },
                "triggered_by": {
                    "type": "string"
                },
                "status": {
                    "type": "string"
                },
                "started_at": {
                    "type": "string"
                },
                "finished_at": {
                    "type": "string"
                },
                "error_message": {
                    "type": "string"
                },
                "updated_at": {
                    "type": "string"
                },
                "records_processed": {
                    "type": "integer"
                },
                "records_inserted": {
                    "type": "integer"
                },
                "records_updated": {
                    "type": "integer"
                },
                "records_skipped": {
                    "type": "integer"
                },
                "records_failed": {
                    "type": "integer"
                },
                "errors": {
                    "type": "array",
                    "items": {
                        "$ref": "#/definitions/models.SyncRunError"
                    }
                }
            }
        },
        "models.SyncRunError": {
            "type": "object",
            "properties": {
                "id": {
                    "type": "string"
                },
                "run_id": {
                    "type": "string"
                },
                "entity_kind": {
                    "type": "string"
                },
                "source_id": {
                    "type": "string"
                },
                "code": {
                    "type": "string"
                },
                "field": {
                    "type": "string"
                },
                "message": {
                    "type": "string"
                },
                "created_at": {
                    "type": "string"
                }
            }
        },
        "models.SyncKindStatus": {
            "type": "object",
            "properties": {
                "entity_kind": {
                    "type": "string"
                },
                "last_run_id": {
                    "type": "string"
                },
                "last_run_status": {
                    "type": "string"
                },
                "last_run_at": {
                    "type": "string"
                },
                "last_success_run_id": {
                    "type": "string"
                },
                "last_success_at": {
                    "type": "string"
                }
            }
        },
        "models.Alert": {
            "type": "object",
            "properties": {
                "id": {
                    "type": "string"
                },
                "kind": {
                    "type": "string"
                },
                "subject_type": {
                    "type": "string"
                },
                "subject_id": {
                    "type": "string"
                },
                "trigger_condition": {
                    "type": "string"
                },
                "created_at": {
                    "type": "string"
                },
                "resolved_at": {
                    "type": "string"
                }
            }
        },
        "models.Provider": {
            "type": "object",
            "properties": {
                "id": {
                    "type": "string"
                },
                "name": {
                    "type": "string"
                },
                "email": {
                    "type": "string"
                },
                "phone": {
                    "type": "string"
                },
                "fiscal_id": {
                    "type": "string"
                },
                "status": {
                    "type": "string"
                },
                "merged_into_id": {
                    "type": "string"
                },
                "archived_at": {
                    "type": "string"
                },
                "created_at": {
                    "type": "string"
                },
                "updated_at": {
                    "type": "string"
                }
            }
        },
        "sync_engine.SyncResult": {
            "type": "object",
            "properties": {
                "runId": {
                    "type": "string"
                },
                "entityKind": {
                    "type": "string"
                },
                "status": {
                    "type": "string"
                },
                "recordsProcessed": {
                    "type": "integer"
                },
                "recordsInserted": {
                    "type": "integer"
                },
                "recordsUpdated": {
                    "type": "integer"
                },
                "recordsSkipped": {
                    "type": "integer"
                },
                "recordsFailed": {
                    "type": "integer"
                }
            }
        },
        "alerting.ScanResult": {
            "type": "object",
            "properties": {
                "created": {
                    "type": "integer"
                },
                "resolved": {
                    "type": "integer"
                }
            }
        },
        "alerting.RunResult": {
            "type": "object",
            "properties": {
                "deadline": {
                    "$ref": "#/definitions/alerting.ScanResult"
                },
                "stalled": {
                    "$ref": "#/definitions/alerting.ScanResult"
                }
            }
        },
        "dedup.MatchedKey": {
            "type": "object",
            "properties": {
                "field": {
                    "type": "string"
                },
                "value": {
                    "type": "string"
                }
            }
        },
        "dedup.DuplicateGroup": {
            "type": "object",
            "properties": {
                "groupId": {
                    "type": "string"
                },
                "members": {
                    "type": "array",
                    "items": {
                        "$ref": "#/definitions/models.Provider"
                    }
                },
                "matchedKeys": {
                    "type": "array",
                    "items": {
                        "$ref": "#/definitions/dedup.MatchedKey"
                    }
                }
            }
        },
        "dedup.MergeConflict": {
            "type": "object",
            "properties": {
                "fields": {
                    "type": "object",
                    "additionalProperties": {
                        "type": "array",
                        "items": {
                            "type": "string"
                        }
                    }
                }
            }
        },
        "dedup.MergeResult": {
            "type": "object",
            "properties": {
                "groupId": {
                    "type": "string"
                },
                "keepId": {
                    "type": "string"
                },
                "mergedIds": {
                    "type": "array",
                    "items": {
                        "type": "string"
                    }
                },
                "provider": {
                    "$ref": "#/definitions/models.Provider"
                },
                "reassigned": {
                    "type": "object",
                    "additionalProperties": {
                        "type": "integer"
                    }
                },
                "logId": {
                    "type": "string"
                }
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Backoffice Reconciliation & Alerting API",
	Description:      "Sync of the external system of record, deadline and stalled alerts, provider deduplication",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
