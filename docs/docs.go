// Package docs registers the OpenAPI document served at /swagger.
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
        "/sessions": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["sessions"],
                "summary": "Create a session",
                "parameters": [
                    {
                        "description": "Session parameters",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/dto.CreateSessionRequest"}
                    }
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/dto.SessionResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/shared.APIError"}}
                }
            }
        },
        "/sessions/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["sessions"],
                "summary": "Get a session",
                "parameters": [
                    {"type": "string", "description": "Session ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/dto.SessionResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/shared.APIError"}}
                }
            },
            "delete": {
                "produces": ["application/json"],
                "tags": ["sessions"],
                "summary": "End a session",
                "parameters": [
                    {"type": "string", "description": "Session ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "204": {"description": "No Content"},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/shared.APIError"}}
                }
            }
        },
        "/sessions/{id}/members": {
            "get": {
                "produces": ["application/json"],
                "tags": ["sessions"],
                "summary": "List session members",
                "parameters": [
                    {"type": "string", "description": "Session ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/dto.MembersResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/shared.APIError"}}
                }
            }
        },
        "/sessions/{id}/arbitration": {
            "get": {
                "produces": ["application/json"],
                "tags": ["sessions"],
                "summary": "Get controller state",
                "parameters": [
                    {"type": "string", "description": "Session ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/dto.ArbitrationResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/shared.APIError"}}
                }
            }
        },
        "/sessions/{id}/ws": {
            "get": {
                "tags": ["gateway"],
                "summary": "Attach to a session over WebSocket",
                "parameters": [
                    {"type": "string", "description": "Session ID", "name": "id", "in": "path", "required": true},
                    {"type": "string", "description": "Client ID, generated when omitted", "name": "client_id", "in": "query"},
                    {"type": "string", "description": "Display name", "name": "name", "in": "query"}
                ],
                "responses": {
                    "101": {"description": "Switching Protocols"},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/shared.APIError"}}
                }
            }
        }
    },
    "definitions": {
        "dto.CreateSessionRequest": {
            "type": "object",
            "properties": {
                "name": {"type": "string", "example": "Movie night"},
                "created_by": {"type": "string", "example": "client_abc123"}
            }
        },
        "dto.SessionResponse": {
            "type": "object",
            "properties": {
                "id": {"type": "string", "example": "sess_abc123"},
                "name": {"type": "string", "example": "Movie night"},
                "created_by": {"type": "string"},
                "status": {"type": "string", "example": "active"},
                "started_at": {"type": "string"},
                "last_active_at": {"type": "string"}
            }
        },
        "dto.MemberResponse": {
            "type": "object",
            "properties": {
                "client_id": {"type": "string", "example": "client_abc123"},
                "display_name": {"type": "string", "example": "Anna"},
                "online": {"type": "boolean"}
            }
        },
        "dto.MembersResponse": {
            "type": "object",
            "properties": {
                "session_id": {"type": "string"},
                "members": {"type": "array", "items": {"$ref": "#/definitions/dto.MemberResponse"}}
            }
        },
        "dto.PendingRequestResponse": {
            "type": "object",
            "properties": {
                "client_id": {"type": "string", "example": "client_abc123"},
                "requester_name": {"type": "string", "example": "Anna"},
                "request_time": {"type": "string"}
            }
        },
        "dto.ArbitrationResponse": {
            "type": "object",
            "properties": {
                "session_id": {"type": "string"},
                "controller_client_id": {"type": "string"},
                "pending_requests": {"type": "array", "items": {"$ref": "#/definitions/dto.PendingRequestResponse"}},
                "epoch": {"type": "integer"}
            }
        },
        "shared.APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string", "example": "invalid_request"},
                "message": {"type": "string", "example": "Invalid request body"},
                "details": {"type": "object"}
            }
        }
    }
}`

var SwaggerInfo = &swag.Spec{
	Version:          "1.0.0",
	Host:             "",
	BasePath:         "/v1",
	Schemes:          []string{},
	Title:            "FxSync Session API",
	Description:      "Shared playback sessions with controller arbitration",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
