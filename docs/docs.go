// Package docs holds the OpenAPI description of the slawatch query API.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/alerts": {
            "get": {
                "produces": ["application/json"],
                "tags": ["alerts"],
                "summary": "List alerts",
                "parameters": [
                    {"type": "string", "description": "Ticket ID", "name": "ticket_id", "in": "query"},
                    {"type": "string", "description": "info, warning, error or critical", "name": "severity", "in": "query"},
                    {"type": "string", "description": "RFC 3339 lower bound on created_at", "name": "from", "in": "query"},
                    {"type": "string", "description": "RFC 3339 upper bound on created_at", "name": "to", "in": "query"},
                    {"type": "integer", "description": "1 to 1000, default 50", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.APIResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/models.APIResponse"}}
                }
            }
        },
        "/alerts/{id}/deliveries": {
            "get": {
                "produces": ["application/json"],
                "tags": ["alerts"],
                "summary": "List deliveries for an alert",
                "parameters": [
                    {"type": "string", "description": "Alert ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.APIResponse"}}
                }
            }
        },
        "/suppressions": {
            "get": {
                "produces": ["application/json"],
                "tags": ["alerts"],
                "summary": "List active suppressions",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.APIResponse"}}
                }
            }
        },
        "/config": {
            "get": {
                "produces": ["application/json"],
                "tags": ["config"],
                "summary": "Get configuration",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.APIResponse"}}
                }
            },
            "put": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["config"],
                "summary": "Update runtime settings",
                "parameters": [
                    {"description": "Partial update", "name": "update", "in": "body", "required": true, "schema": {"$ref": "#/definitions/config.RuntimeUpdate"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.APIResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/models.APIResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/models.APIResponse"}}
                }
            }
        },
        "/scheduler/status": {
            "get": {
                "produces": ["application/json"],
                "tags": ["scheduler"],
                "summary": "Scheduler status",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.APIResponse"}}
                }
            }
        },
        "/scheduler/trigger": {
            "post": {
                "description": "Runs a full cycle and returns its summary. Fails with 409 while another cycle runs.",
                "produces": ["application/json"],
                "tags": ["scheduler"],
                "summary": "Run a monitoring cycle",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.APIResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/models.APIResponse"}},
                    "502": {"description": "Bad Gateway", "schema": {"$ref": "#/definitions/models.APIResponse"}}
                }
            }
        },
        "/deliveries/stats": {
            "get": {
                "produces": ["application/json"],
                "tags": ["deliveries"],
                "summary": "Delivery statistics",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.APIResponse"}}
                }
            }
        },
        "/deliveries/queue": {
            "get": {
                "produces": ["application/json"],
                "tags": ["deliveries"],
                "summary": "Retry queue",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.APIResponse"}}
                }
            }
        }
    },
    "definitions": {
        "models.APIResponse": {
            "type": "object",
            "properties": {
                "status": {"type": "string", "example": "success"},
                "data": {},
                "message": {"type": "string"},
                "error_type": {"type": "string", "enum": ["GeneralError", "ValidationError", "NotFoundError", "ConflictError", "DatabaseError"]}
            }
        },
        "config.RuntimeUpdate": {
            "type": "object",
            "properties": {
                "risk_thresholds": {
                    "type": "object",
                    "properties": {
                        "medium": {"type": "number"},
                        "high": {"type": "number"},
                        "critical": {"type": "number"}
                    }
                },
                "escalation_thresholds": {
                    "type": "object",
                    "properties": {
                        "level1": {"type": "number"},
                        "level2": {"type": "number"},
                        "level3": {"type": "number"}
                    }
                },
                "suppression_window_minutes": {"type": "integer"},
                "max_alerts_per_hour": {"type": "integer"},
                "channels_enabled": {
                    "type": "object",
                    "properties": {
                        "chat": {"type": "boolean"},
                        "bot": {"type": "boolean"},
                        "email": {"type": "boolean"}
                    }
                },
                "main_cycle_period": {"type": "string", "example": "5m"},
                "critical_cycle_period": {"type": "string", "example": "1m"},
                "retry_delay_schedule": {"type": "array", "items": {"type": "string"}, "example": ["1m", "5m", "15m"]},
                "max_retries": {"type": "integer"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "slawatch API",
	Description:      "Query and control surface of the SLA monitoring engine.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
