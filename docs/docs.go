// Package docs registers the swagger document served at /swagger/index.html.
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
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "security": [{"BearerAuth": []}],
    "paths": {
        "/config/public": {
            "get": {"tags": ["config"], "summary": "Client proctoring parameters", "security": [],
                "responses": {"200": {"description": "OK"}}}
        },
        "/schedule/{classroom_id}/availability": {
            "get": {"tags": ["schedule"], "summary": "Check whether a session may start now",
                "parameters": [
                    {"name": "classroom_id", "in": "path", "required": true, "type": "string"},
                    {"name": "assignment_id", "in": "query", "type": "string"}
                ],
                "responses": {"200": {"description": "allowed, window, next_available"}}}
        },
        "/schedule/{classroom_id}": {
            "put": {"tags": ["schedule"], "summary": "Set the schedule window",
                "parameters": [{"name": "classroom_id", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK"}, "400": {"description": "invalid_argument"}}},
            "delete": {"tags": ["schedule"], "summary": "Remove the schedule window",
                "parameters": [
                    {"name": "classroom_id", "in": "path", "required": true, "type": "string"},
                    {"name": "assignment_id", "in": "query", "type": "string"}
                ],
                "responses": {"200": {"description": "OK"}, "404": {"description": "not_found"}}}
        },
        "/assessments/{assignment_id}/sessions": {
            "post": {"tags": ["sessions"], "summary": "Start or resume a test session",
                "parameters": [{"name": "assignment_id", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "resumed"}, "201": {"description": "created"},
                    "403": {"description": "schedule_locked, override_required"},
                    "400": {"description": "invalid_code"}, "409": {"description": "code_consumed"},
                    "423": {"description": "session_locked"}}}
        },
        "/sessions/{id}": {
            "get": {"tags": ["sessions"], "summary": "Session with server derived remaining_seconds",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "not_found"}}}
        },
        "/sessions/{id}/incidents": {
            "post": {"tags": ["sessions"], "summary": "Report a security incident",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "violation_count, warning_issued, locked"}}},
            "get": {"tags": ["sessions"], "summary": "List recorded incidents",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK"}}}
        },
        "/sessions/{id}/security-status": {
            "get": {"tags": ["sessions"], "summary": "Violation count and lock state",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK"}}}
        },
        "/sessions/{id}/unlock": {
            "post": {"tags": ["sessions"], "summary": "Restart a locked session with a bypass code",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"201": {"description": "new session"}, "400": {"description": "invalid_code"},
                    "409": {"description": "code_consumed or not_locked"}}}
        },
        "/sessions/{id}/autosave": {
            "put": {"tags": ["sessions"], "summary": "Save in-progress answers",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "save_status, saved_at"}}},
            "get": {"tags": ["sessions"], "summary": "Latest saved answers",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "not_found"}}}
        },
        "/sessions/{id}/submit": {
            "post": {"tags": ["sessions"], "summary": "Submit the session (idempotent)",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK"}, "423": {"description": "session_locked"},
                    "409": {"description": "session_ended"}}}
        },
        "/bypass-codes": {
            "post": {"tags": ["bypass-codes"], "summary": "Issue a single-use bypass code",
                "responses": {"201": {"description": "created"}}},
            "get": {"tags": ["bypass-codes"], "summary": "List bypass codes",
                "parameters": [
                    {"name": "scope", "in": "query", "type": "string"},
                    {"name": "used", "in": "query", "type": "string"},
                    {"name": "classroom_id", "in": "query", "type": "string"}
                ],
                "responses": {"200": {"description": "OK"}}}
        },
        "/bypass-codes/{id}/revoke": {
            "post": {"tags": ["bypass-codes"], "summary": "Revoke an unused code",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK"}, "403": {"description": "forbidden"}}}
        },
        "/monitoring/sessions": {
            "get": {"tags": ["monitoring"], "summary": "Security state of sessions in a classroom",
                "parameters": [
                    {"name": "classroom_id", "in": "query", "type": "string"},
                    {"name": "status", "in": "query", "type": "string"}
                ],
                "responses": {"200": {"description": "OK"}}}
        },
        "/admin/assessments/{id}": {
            "put": {"tags": ["admin"], "summary": "Register an assessment time limit and classroom",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK"}}}
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "SEB Proctor API",
	Description:      "Proctored assessment session controller: schedule gate, violation ledger, bypass codes and autosave.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
