// Package docs registers the OpenAPI description served under /swagger.
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
                "produces": ["application/json"],
                "tags": ["system"],
                "summary": "Health check",
                "responses": {"200": {"description": "OK", "schema": {"type": "object", "additionalProperties": true}}}
            }
        },
        "/runs": {
            "get": {
                "produces": ["application/json"],
                "tags": ["runs"],
                "summary": "List runs",
                "parameters": [
                    {"type": "string", "description": "Pipeline name", "name": "pipeline", "in": "query"},
                    {"type": "integer", "default": 100, "description": "Maximum number of runs", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "Runs", "schema": {"type": "object", "additionalProperties": true}},
                    "500": {"description": "Internal server error", "schema": {"type": "object", "additionalProperties": true}}
                }
            },
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["runs"],
                "summary": "Start a run",
                "parameters": [
                    {"description": "Pipeline name and parameters", "name": "run", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handler.RunRequest"}}
                ],
                "responses": {
                    "202": {"description": "Run accepted", "schema": {"$ref": "#/definitions/model.RunRecord"}},
                    "400": {"description": "Invalid pipeline or parameters", "schema": {"type": "object", "additionalProperties": true}},
                    "500": {"description": "Internal server error", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        },
        "/runs/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["runs"],
                "summary": "Get run",
                "parameters": [{"type": "string", "description": "Run ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "Run details", "schema": {"type": "object", "additionalProperties": true}},
                    "404": {"description": "Run not found", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        },
        "/runs/{id}/events": {
            "get": {
                "produces": ["application/json"],
                "tags": ["runs"],
                "summary": "Get run events",
                "parameters": [
                    {"type": "string", "description": "Run ID", "name": "id", "in": "path", "required": true},
                    {"type": "integer", "description": "Return events with a larger id", "name": "after", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "Run events", "schema": {"type": "object", "additionalProperties": true}},
                    "404": {"description": "Run not found", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        },
        "/runs/{id}/summary": {
            "get": {
                "produces": ["application/json"],
                "tags": ["runs"],
                "summary": "Get run summary",
                "parameters": [{"type": "string", "description": "Run ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "Run summary", "schema": {"type": "object", "additionalProperties": true}},
                    "404": {"description": "Run not found", "schema": {"type": "object", "additionalProperties": true}},
                    "409": {"description": "Run has no report yet", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        },
        "/runs/{id}/cancel": {
            "patch": {
                "produces": ["application/json"],
                "tags": ["runs"],
                "summary": "Cancel run",
                "parameters": [{"type": "string", "description": "Run ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "202": {"description": "Cancellation requested", "schema": {"type": "object", "additionalProperties": true}},
                    "404": {"description": "Run not found", "schema": {"type": "object", "additionalProperties": true}},
                    "409": {"description": "Run is not running", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        },
        "/runs/{id}/retry": {
            "post": {
                "produces": ["application/json"],
                "tags": ["runs"],
                "summary": "Retry run",
                "parameters": [{"type": "string", "description": "Run ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "202": {"description": "Retry accepted", "schema": {"$ref": "#/definitions/model.RunRecord"}},
                    "404": {"description": "Run not found", "schema": {"type": "object", "additionalProperties": true}},
                    "409": {"description": "Run is still running", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        },
        "/runs/{id}/artifacts": {
            "get": {
                "produces": ["application/json"],
                "tags": ["runs"],
                "summary": "List run artifacts",
                "parameters": [{"type": "string", "description": "Run ID", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "Artifacts", "schema": {"type": "object", "additionalProperties": true}}}
            }
        },
        "/runs/{id}/artifacts/{name}": {
            "get": {
                "produces": ["application/octet-stream"],
                "tags": ["runs"],
                "summary": "Download run artifact",
                "parameters": [
                    {"type": "string", "description": "Run ID", "name": "id", "in": "path", "required": true},
                    {"type": "string", "description": "Artifact name", "name": "name", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "Artifact content", "schema": {"type": "file"}},
                    "404": {"description": "Artifact not found", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        },
        "/pipelines": {
            "get": {
                "produces": ["application/json"],
                "tags": ["pipelines"],
                "summary": "List pipelines",
                "responses": {"200": {"description": "Pipelines", "schema": {"type": "object", "additionalProperties": true}}}
            }
        },
        "/pipelines/{name}/jobs/{job}/matrix": {
            "get": {
                "produces": ["application/json"],
                "tags": ["pipelines"],
                "summary": "Expand job matrix",
                "parameters": [
                    {"type": "string", "description": "Pipeline name", "name": "name", "in": "path", "required": true},
                    {"type": "string", "description": "Job name", "name": "job", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "Bindings", "schema": {"type": "object", "additionalProperties": true}},
                    "404": {"description": "Pipeline or job not found", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        },
        "/connections": {
            "get": {
                "produces": ["application/json"],
                "tags": ["connections"],
                "summary": "List connections",
                "responses": {"200": {"description": "Connection names and types", "schema": {"type": "object", "additionalProperties": true}}}
            }
        },
        "/connections/{name}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["connections"],
                "summary": "Resolve connection",
                "parameters": [{"type": "string", "description": "Connection name", "name": "name", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "Resolved endpoint", "schema": {"type": "object", "additionalProperties": true}},
                    "404": {"description": "Connection not found", "schema": {"type": "object", "additionalProperties": true}},
                    "422": {"description": "Connection could not be resolved", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        },
        "/schedules": {
            "get": {
                "produces": ["application/json"],
                "tags": ["schedules"],
                "summary": "List schedules",
                "responses": {"200": {"description": "Schedules", "schema": {"type": "object", "additionalProperties": true}}}
            }
        },
        "/schedules/{name}": {
            "get": {
                "description": "List the next run times of a schedule, or the previous ones with direction=prev. A start without an offset is read in the schedule's time zone.",
                "produces": ["application/json"],
                "tags": ["schedules"],
                "summary": "Schedule run times",
                "parameters": [
                    {"type": "string", "description": "Schedule name", "name": "name", "in": "path", "required": true},
                    {"type": "string", "description": "Start time, default now", "name": "from", "in": "query"},
                    {"type": "integer", "description": "Number of run times, default 5, at most 100", "name": "n", "in": "query"},
                    {"type": "string", "description": "next or prev", "name": "direction", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "Run times", "schema": {"type": "object", "additionalProperties": true}},
                    "400": {"description": "Invalid query", "schema": {"type": "object", "additionalProperties": true}},
                    "404": {"description": "Schedule not found", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        }
    },
    "definitions": {
        "handler.RunRequest": {
            "type": "object",
            "properties": {
                "pipeline": {"type": "string"},
                "params": {"type": "object", "additionalProperties": true}
            }
        },
        "model.RunRecord": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "pipeline": {"type": "string"},
                "status": {"type": "string"},
                "params": {"type": "object", "additionalProperties": true},
                "report": {"type": "object", "additionalProperties": true},
                "error": {"type": "string"},
                "created_at": {"type": "string"},
                "finished_at": {"type": "string"}
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
	Title:            "go-workflow API",
	Description:      "Start, follow and cancel pipeline runs.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
