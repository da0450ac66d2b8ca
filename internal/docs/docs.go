// Package docs registers the OpenAPI document served at /swagger/*any.
//
// The document mirrors the swag annotations on the handlers in
// internal/http/handlers; update both together.
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
        "SessionJWT": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "security": [{"SessionJWT": []}],
    "paths": {
        "/super-actions": {
            "post": {
                "operationId": "executeSuperAction",
                "tags": ["SuperActions"],
                "summary": "Run a super action",
                "description": "Deletes or archives every known message from the selected senders, or older than days, skipping safe senders. Partial failure is reported, not retried. A retry with the same Idempotency-Key replays the stored result, or gets 409 while the first request is still running.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "description": "Bearer session JWT", "name": "Authorization", "in": "header"},
                    {"type": "string", "description": "Idempotency key for safe retries", "name": "Idempotency-Key", "in": "header"},
                    {"description": "Super action", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.SuperActionRequestBody"}}
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {"$ref": "#/definitions/handlers.SuperActionResponse"},
                        "headers": {
                            "Idempotency-Replayed": {"type": "string", "description": "true when the body replays an earlier request with the same key"}
                        }
                    },
                    "400": {"description": "Invalid action or body", "schema": {"$ref": "#/definitions/handlers.SuperActionResponse"}},
                    "401": {"description": "No session or Gmail authorization failed", "schema": {"$ref": "#/definitions/handlers.SuperActionResponse"}},
                    "403": {"description": "Not enough safe senders", "schema": {"$ref": "#/definitions/handlers.SuperActionResponse"}},
                    "409": {"description": "Same Idempotency-Key still in progress", "schema": {"$ref": "#/definitions/handlers.SuperActionResponse"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.SuperActionResponse"}}
                }
            }
        },
        "/super-actions/status": {
            "get": {
                "operationId": "superActionStatus",
                "tags": ["SuperActions"],
                "summary": "Super action gate status",
                "description": "Reports whether super actions are unlocked and the training mode limits.",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/services.SuperActionStatus"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/super-actions/history": {
            "get": {
                "operationId": "listSuperActions",
                "tags": ["SuperActions"],
                "summary": "List super action jobs (paginated)",
                "description": "Returns the user's super action history, newest first. Supports weak ETag via If-None-Match.",
                "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "description": "Return 304 if ETag matches", "name": "If-None-Match", "in": "header"},
                    {"type": "integer", "minimum": 1, "default": 1, "description": "Page number", "name": "page", "in": "query"},
                    {"type": "integer", "minimum": 1, "maximum": 100, "default": 20, "description": "Items per page", "name": "page_size", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.ListActionsResponse"}},
                    "304": {"description": "Not Modified", "schema": {"type": "string"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/super-actions/{id}/undo": {
            "post": {
                "operationId": "undoSuperAction",
                "tags": ["SuperActions"],
                "summary": "Undo a super action",
                "description": "Restores the messages a job trashed or archived while its undo window is open.",
                "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "format": "uuid", "description": "Action ID (UUID)", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/services.UndoResult"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "404": {"description": "Action not found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "409": {"description": "Action cannot be undone", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "410": {"description": "Undo window expired", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/safe-senders": {
            "get": {
                "operationId": "listSafeSenders",
                "tags": ["SafeSenders"],
                "summary": "List safe senders",
                "description": "Returns the user's safe sender patterns, newest first. Supports weak ETag via If-None-Match.",
                "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "description": "Return 304 if ETag matches", "name": "If-None-Match", "in": "header"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.ListSafeSendersResponse"}},
                    "304": {"description": "Not Modified", "schema": {"type": "string"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            },
            "post": {
                "operationId": "addSafeSender",
                "tags": ["SafeSenders"],
                "summary": "Add a safe sender",
                "description": "Adds an address or one-sided wildcard pattern that super actions never touch.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"description": "Pattern", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.AddSafeSenderRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/domain.SafeSender"}},
                    "400": {"description": "Invalid pattern", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "409": {"description": "Already on the list", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/safe-senders/{id}": {
            "delete": {
                "operationId": "removeSafeSender",
                "tags": ["SafeSenders"],
                "summary": "Remove a safe sender",
                "parameters": [
                    {"type": "string", "format": "uuid", "description": "Safe sender ID (UUID)", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "204": {"description": "No Content", "schema": {"type": "string"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/emails": {
            "get": {
                "operationId": "listEmails",
                "tags": ["Emails"],
                "summary": "List inbox messages",
                "description": "Returns recent messages with sender, subject, snippet, date and unread flag.",
                "produces": ["application/json"],
                "parameters": [
                    {"type": "integer", "minimum": 1, "maximum": 500, "default": 50, "description": "Maximum messages", "name": "max_results", "in": "query"},
                    {"type": "string", "default": "INBOX", "description": "Comma separated label ids", "name": "label_ids", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.ListEmailsResponse"}},
                    "401": {"description": "Unauthorized or Gmail not connected", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "429": {"description": "Gmail rate limited", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "502": {"description": "Gmail error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/emails/actions": {
            "post": {
                "operationId": "applyEmailAction",
                "tags": ["Emails"],
                "summary": "Apply a manual action",
                "description": "Runs delete, archive, mark_read or mark_unread over the given ids through the rate-limited batcher. Failed ids are reported, not retried.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"description": "Action", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.EmailActionRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/services.ActionResult"}},
                    "400": {"description": "Bad request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "401": {"description": "Unauthorized or Gmail not connected", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/history": {
            "get": {
                "operationId": "listHistory",
                "tags": ["History"],
                "summary": "List email history",
                "description": "Returns the newest email history rows (manual and automated).",
                "produces": ["application/json"],
                "parameters": [
                    {"type": "integer", "minimum": 1, "maximum": 500, "default": 100, "description": "Maximum rows", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.ListHistoryResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/gmail/tokens": {
            "post": {
                "operationId": "storeGmailTokens",
                "tags": ["Gmail"],
                "summary": "Store Gmail tokens",
                "description": "Seeds the token store with the provider token pair from the OAuth callback. A missing refresh token keeps the stored one.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"description": "Token pair", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.StoreTokensRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/handlers.TokenResponse"}},
                    "400": {"description": "Bad request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/gmail/refresh-token": {
            "post": {
                "operationId": "refreshGmailToken",
                "tags": ["Gmail"],
                "summary": "Refresh the Gmail access token",
                "description": "Exchanges the stored refresh token for a new access token.",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.TokenResponse"}},
                    "401": {"description": "Unauthorized or refresh rejected", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "404": {"description": "No refresh token", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/gmail/profile": {
            "get": {
                "operationId": "gmailProfile",
                "tags": ["Gmail"],
                "summary": "Gmail connection check",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.GmailProfileResponse"}},
                    "401": {"description": "Unauthorized or Gmail not connected", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "502": {"description": "Gmail error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "domain.ActionHistory": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "user_id": {"type": "string"},
                "action_type": {"type": "string"},
                "super_action": {"type": "string"},
                "affected_emails": {"type": "string"},
                "failed_emails": {"type": "string"},
                "affected_count": {"type": "integer"},
                "processed_count": {"type": "integer"},
                "failed_count": {"type": "integer"},
                "status": {"type": "string", "enum": ["processing", "completed", "partially_failed", "failed", "undone"]},
                "can_undo_until": {"type": "string", "format": "date-time"},
                "completed_at": {"type": "string", "format": "date-time"},
                "error_details": {"type": "string"},
                "created_at": {"type": "string", "format": "date-time"},
                "updated_at": {"type": "string", "format": "date-time"}
            }
        },
        "domain.EmailHistory": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "user_id": {"type": "string"},
                "email_id": {"type": "string"},
                "thread_id": {"type": "string"},
                "action": {"type": "string", "enum": ["delete", "archive", "mark_read", "mark_unread", "apply_rule", "unsubscribe"]},
                "action_type": {"type": "string", "enum": ["manual", "automated"]},
                "details": {"type": "string"},
                "created_at": {"type": "string", "format": "date-time"}
            }
        },
        "domain.SafeSender": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "user_id": {"type": "string"},
                "email_address": {"type": "string"},
                "added_at": {"type": "string", "format": "date-time"}
            }
        },
        "handlers.AddSafeSenderRequest": {
            "type": "object",
            "required": ["email_address"],
            "properties": {"email_address": {"type": "string", "maxLength": 320, "example": "*@family.example"}}
        },
        "handlers.EmailActionRequest": {
            "type": "object",
            "required": ["action", "ids"],
            "properties": {
                "action": {"type": "string", "example": "archive"},
                "ids": {"type": "array", "items": {"type": "string"}}
            }
        },
        "handlers.ErrorResponse": {
            "type": "object",
            "properties": {
                "request_id": {"type": "string", "example": "123e4567-e89b-12d3-a456-426614174000"},
                "code": {"type": "string", "example": "gmail_not_connected"},
                "message": {"type": "string", "example": "connect your Gmail account first"}
            }
        },
        "handlers.GmailProfileResponse": {
            "type": "object",
            "properties": {
                "connected": {"type": "boolean"},
                "email_address": {"type": "string"},
                "messages_total": {"type": "integer"},
                "threads_total": {"type": "integer"}
            }
        },
        "handlers.ListActionsResponse": {
            "type": "object",
            "properties": {
                "actions": {"type": "array", "items": {"$ref": "#/definitions/domain.ActionHistory"}},
                "pagination": {"$ref": "#/definitions/handlers.Pagination"}
            }
        },
        "handlers.ListEmailsResponse": {
            "type": "object",
            "properties": {
                "emails": {"type": "array", "items": {"$ref": "#/definitions/services.EmailSummary"}},
                "count": {"type": "integer"}
            }
        },
        "handlers.ListHistoryResponse": {
            "type": "object",
            "properties": {
                "history": {"type": "array", "items": {"$ref": "#/definitions/domain.EmailHistory"}}
            }
        },
        "handlers.ListSafeSendersResponse": {
            "type": "object",
            "properties": {
                "safe_senders": {"type": "array", "items": {"$ref": "#/definitions/domain.SafeSender"}},
                "count": {"type": "integer"}
            }
        },
        "handlers.Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total": {"type": "integer"},
                "total_pages": {"type": "integer"},
                "has_next": {"type": "boolean"}
            }
        },
        "handlers.StoreTokensRequest": {
            "type": "object",
            "required": ["access_token"],
            "properties": {
                "access_token": {"type": "string"},
                "refresh_token": {"type": "string"},
                "expires_in": {"type": "integer", "example": 3599}
            }
        },
        "handlers.SuperActionEmail": {
            "type": "object",
            "properties": {
                "id": {"type": "string", "example": "18c2f0b5d1a2e3f4"},
                "threadId": {"type": "string"},
                "from": {"type": "string", "example": "Deals <deals@shop.example>"},
                "subject": {"type": "string"},
                "snippet": {"type": "string"},
                "date": {"type": "string", "example": "2025-05-01T10:00:00Z"}
            }
        },
        "handlers.SuperActionRequestBody": {
            "type": "object",
            "properties": {
                "action": {"type": "string", "example": "delete_by_sender"},
                "selectedEmailIds": {"type": "array", "items": {"type": "string"}},
                "days": {"type": "integer", "example": 30},
                "allEmails": {"type": "array", "items": {"$ref": "#/definitions/handlers.SuperActionEmail"}}
            }
        },
        "handlers.SuperActionResponse": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "processedCount": {"type": "integer"},
                "failedCount": {"type": "integer"},
                "failedIds": {"type": "array", "items": {"type": "string"}},
                "actionId": {"type": "string"},
                "heldBack": {"type": "integer"},
                "message": {"type": "string"},
                "error": {"type": "string"}
            }
        },
        "handlers.TokenResponse": {
            "type": "object",
            "properties": {
                "access_token": {"type": "string"},
                "expires_at": {"type": "string", "format": "date-time"}
            }
        },
        "services.ActionResult": {
            "type": "object",
            "properties": {
                "processed_count": {"type": "integer"},
                "failed_count": {"type": "integer"},
                "failed_ids": {"type": "array", "items": {"type": "string"}}
            }
        },
        "services.EmailSummary": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "thread_id": {"type": "string"},
                "from": {"type": "string"},
                "from_address": {"type": "string"},
                "subject": {"type": "string"},
                "snippet": {"type": "string"},
                "date": {"type": "string", "format": "date-time"},
                "unread": {"type": "boolean"},
                "labels": {"type": "array", "items": {"type": "string"}}
            }
        },
        "services.SuperActionStatus": {
            "type": "object",
            "properties": {
                "can_use": {"type": "boolean"},
                "safe_senders_count": {"type": "integer"},
                "required_count": {"type": "integer"},
                "safe_senders_required": {"type": "boolean"},
                "training_mode_active": {"type": "boolean"},
                "days_limit": {"type": "integer"},
                "successful_actions_count": {"type": "integer"}
            }
        },
        "services.UndoResult": {
            "type": "object",
            "properties": {
                "action_id": {"type": "string"},
                "restored_count": {"type": "integer"},
                "failed_count": {"type": "integer"},
                "failed_ids": {"type": "array", "items": {"type": "string"}},
                "message": {"type": "string"}
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
	Title:            "Mailsweep API",
	Description:      "Gmail cleanup dashboard backend: safe senders, bulk super actions with undo, and mailbox history.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
