// Package docs registers the OpenAPI document of the gateway with swag so
// gin-swagger can serve it under /swagger. Regenerate with:
//
//	swag init -g cmd/omnichannel/main.go -o internal/http/docs
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
                "summary": "Liveness and database check",
                "operationId": "health",
                "tags": [
                    "Health"
                ],
                "produces": [
                    "application/json"
                ],
                "parameters": [],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/handlers.HealthResponse"
                        }
                    },
                    "503": {
                        "description": "Service Unavailable",
                        "schema": {
                            "$ref": "#/definitions/handlers.HealthResponse"
                        }
                    }
                }
            }
        },
        "/channels/whatsapp/webhook": {
            "get": {
                "summary": "WhatsApp webhook verification",
                "operationId": "verifyWhatsAppWebhook",
                "tags": [
                    "Webhooks"
                ],
                "produces": [
                    "text/plain"
                ],
                "parameters": [
                    {
                        "type": "string",
                        "in": "query",
                        "name": "hub.mode",
                        "required": true,
                        "description": "Must be subscribe"
                    },
                    {
                        "type": "string",
                        "in": "query",
                        "name": "hub.verify_token",
                        "required": true,
                        "description": "Configured verify token"
                    },
                    {
                        "type": "string",
                        "in": "query",
                        "name": "hub.challenge",
                        "required": true,
                        "description": "Challenge to echo"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "challenge",
                        "schema": {
                            "type": "string"
                        }
                    },
                    "403": {
                        "description": "Forbidden",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    },
                    "503": {
                        "description": "Service Unavailable",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    }
                }
            },
            "post": {
                "summary": "WhatsApp Cloud API webhook",
                "operationId": "whatsAppWebhook",
                "tags": [
                    "Webhooks"
                ],
                "produces": [
                    "text/plain"
                ],
                "parameters": [
                    {
                        "type": "string",
                        "in": "header",
                        "name": "X-Hub-Signature-256",
                        "required": false,
                        "description": "sha256=<hex hmac>"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "EVENT_RECEIVED",
                        "schema": {
                            "type": "string"
                        }
                    },
                    "400": {
                        "description": "Bad Request",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    },
                    "500": {
                        "description": "Internal Server Error",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    },
                    "503": {
                        "description": "Service Unavailable",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    }
                },
                "consumes": [
                    "application/json"
                ]
            }
        },
        "/channels/telegram/webhook": {
            "post": {
                "summary": "Telegram Bot API webhook",
                "operationId": "telegramWebhook",
                "tags": [
                    "Webhooks"
                ],
                "produces": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "type": "string",
                        "in": "header",
                        "name": "X-Telegram-Bot-Api-Secret-Token",
                        "required": false,
                        "description": "Webhook secret"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/handlers.WebhookAck"
                        }
                    },
                    "400": {
                        "description": "Bad Request",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    },
                    "500": {
                        "description": "Internal Server Error",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    },
                    "503": {
                        "description": "Service Unavailable",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    }
                },
                "consumes": [
                    "application/json"
                ]
            }
        },
        "/channels/{channel}/events": {
            "post": {
                "summary": "Push an inbound event from a bridge",
                "operationId": "bridgeEvent",
                "tags": [
                    "Bridge"
                ],
                "produces": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "type": "string",
                        "in": "path",
                        "name": "channel",
                        "required": true,
                        "description": "imessage or chatgpt"
                    },
                    {
                        "in": "body",
                        "name": "body",
                        "required": true,
                        "description": "Inbound event",
                        "schema": {
                            "$ref": "#/definitions/domain.InboundEvent"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/handlers.WebhookAck"
                        }
                    },
                    "400": {
                        "description": "Bad Request",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    },
                    "401": {
                        "description": "Unauthorized",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    },
                    "422": {
                        "description": "Unprocessable Entity",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    },
                    "500": {
                        "description": "Internal Server Error",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    }
                },
                "consumes": [
                    "application/json"
                ],
                "security": [
                    {
                        "BridgeBearer": []
                    }
                ]
            }
        },
        "/channels/outbox/claim": {
            "post": {
                "summary": "Lease queued replies",
                "operationId": "claimOutbox",
                "tags": [
                    "Bridge"
                ],
                "produces": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "in": "body",
                        "name": "body",
                        "required": false,
                        "description": "Channel and batch size",
                        "schema": {
                            "$ref": "#/definitions/handlers.ClaimRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/handlers.ClaimResponse"
                        }
                    },
                    "400": {
                        "description": "Bad Request",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    },
                    "401": {
                        "description": "Unauthorized",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    },
                    "500": {
                        "description": "Internal Server Error",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    }
                },
                "consumes": [
                    "application/json"
                ],
                "security": [
                    {
                        "BridgeBearer": []
                    }
                ]
            }
        },
        "/channels/outbox/{id}/sent": {
            "post": {
                "summary": "Report a delivered reply",
                "operationId": "markOutboxSent",
                "tags": [
                    "Bridge"
                ],
                "produces": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "type": "string",
                        "in": "path",
                        "name": "id",
                        "required": true,
                        "description": "Outbound message id"
                    },
                    {
                        "in": "body",
                        "name": "body",
                        "required": false,
                        "description": "Provider receipt",
                        "schema": {
                            "$ref": "#/definitions/handlers.SentRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/handlers.WebhookAck"
                        }
                    },
                    "400": {
                        "description": "Bad Request",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    },
                    "401": {
                        "description": "Unauthorized",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    },
                    "404": {
                        "description": "Not Found",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    },
                    "409": {
                        "description": "Conflict",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    },
                    "500": {
                        "description": "Internal Server Error",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    }
                },
                "consumes": [
                    "application/json"
                ],
                "security": [
                    {
                        "BridgeBearer": []
                    }
                ]
            }
        },
        "/channels/outbox/{id}/failed": {
            "post": {
                "summary": "Report a failed delivery",
                "operationId": "markOutboxFailed",
                "tags": [
                    "Bridge"
                ],
                "produces": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "type": "string",
                        "in": "path",
                        "name": "id",
                        "required": true,
                        "description": "Outbound message id"
                    },
                    {
                        "in": "body",
                        "name": "body",
                        "required": false,
                        "description": "Failure details",
                        "schema": {
                            "$ref": "#/definitions/handlers.FailedRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/handlers.FailedResponse"
                        }
                    },
                    "400": {
                        "description": "Bad Request",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    },
                    "401": {
                        "description": "Unauthorized",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    },
                    "404": {
                        "description": "Not Found",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    },
                    "409": {
                        "description": "Conflict",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    },
                    "500": {
                        "description": "Internal Server Error",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    }
                },
                "consumes": [
                    "application/json"
                ],
                "security": [
                    {
                        "BridgeBearer": []
                    }
                ]
            }
        },
        "/channels/link/{token}": {
            "get": {
                "summary": "Account link page",
                "operationId": "linkPage",
                "tags": [
                    "Linking"
                ],
                "produces": [
                    "text/html"
                ],
                "parameters": [
                    {
                        "type": "string",
                        "in": "path",
                        "name": "token",
                        "required": true,
                        "description": "Link token"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "HTML page",
                        "schema": {
                            "type": "string"
                        }
                    },
                    "400": {
                        "description": "Invalid link token.",
                        "schema": {
                            "type": "string"
                        }
                    }
                }
            }
        },
        "/channels/link/complete": {
            "post": {
                "summary": "Complete an account link",
                "operationId": "completeLink",
                "tags": [
                    "Linking"
                ],
                "produces": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "in": "body",
                        "name": "body",
                        "required": true,
                        "description": "Token and account",
                        "schema": {
                            "$ref": "#/definitions/handlers.CompleteLinkRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/handlers.CompleteLinkResponse"
                        }
                    },
                    "400": {
                        "description": "Bad Request",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    },
                    "410": {
                        "description": "Gone",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    },
                    "422": {
                        "description": "Unprocessable Entity",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    },
                    "500": {
                        "description": "Internal Server Error",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    }
                },
                "consumes": [
                    "application/json",
                    "application/x-www-form-urlencoded"
                ]
            }
        },
        "/api/v1/tools/{operation}": {
            "post": {
                "summary": "Invoke a tool",
                "operationId": "invokeTool",
                "tags": [
                    "Tools"
                ],
                "produces": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "type": "string",
                        "in": "path",
                        "name": "operation",
                        "required": true,
                        "description": "Tool name, e.g. plan.generateOutfits"
                    },
                    {
                        "type": "string",
                        "in": "header",
                        "name": "X-User-ID",
                        "required": true,
                        "description": "Account id"
                    },
                    {
                        "type": "string",
                        "in": "header",
                        "name": "Idempotency-Key",
                        "required": false,
                        "description": "Client-supplied idempotency key"
                    },
                    {
                        "in": "body",
                        "name": "body",
                        "required": false,
                        "description": "Tool arguments",
                        "schema": {
                            "type": "object"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/handlers.ToolResponse"
                        }
                    },
                    "400": {
                        "description": "Bad Request",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    },
                    "401": {
                        "description": "Unauthorized",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    },
                    "404": {
                        "description": "Not Found",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    },
                    "409": {
                        "description": "Conflict",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    },
                    "422": {
                        "description": "Unprocessable Entity",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    },
                    "500": {
                        "description": "Internal Server Error",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    }
                },
                "consumes": [
                    "application/json"
                ]
            }
        },
        "/api/v1/admin/dead-letters": {
            "get": {
                "summary": "List dead letters",
                "operationId": "listDeadLetters",
                "tags": [
                    "Admin"
                ],
                "produces": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "type": "string",
                        "in": "query",
                        "name": "channel",
                        "required": false,
                        "description": "Filter by channel"
                    },
                    {
                        "type": "integer",
                        "in": "query",
                        "name": "page",
                        "required": false,
                        "description": "Page number (default 1)"
                    },
                    {
                        "type": "integer",
                        "in": "query",
                        "name": "page_size",
                        "required": false,
                        "description": "Page size (default 20, max 100)"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/handlers.DeadLetterPage"
                        }
                    },
                    "400": {
                        "description": "Bad Request",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    },
                    "500": {
                        "description": "Internal Server Error",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    }
                }
            }
        },
        "/api/v1/admin/outbox/{id}/requeue": {
            "post": {
                "summary": "Requeue a failed or dead-lettered message",
                "operationId": "requeueOutbox",
                "tags": [
                    "Admin"
                ],
                "produces": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "type": "string",
                        "in": "path",
                        "name": "id",
                        "required": true,
                        "description": "Outbound message id"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/handlers.WebhookAck"
                        }
                    },
                    "404": {
                        "description": "Not Found",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    },
                    "409": {
                        "description": "Conflict",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    },
                    "500": {
                        "description": "Internal Server Error",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    }
                }
            }
        },
        "/api/v1/admin/identities/block": {
            "post": {
                "summary": "Block or unblock a channel identity",
                "operationId": "blockIdentity",
                "tags": [
                    "Admin"
                ],
                "produces": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "in": "body",
                        "name": "body",
                        "required": true,
                        "description": "Identity and desired state",
                        "schema": {
                            "$ref": "#/definitions/handlers.BlockRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/handlers.BlockResponse"
                        }
                    },
                    "400": {
                        "description": "Bad Request",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    },
                    "404": {
                        "description": "Not Found",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    },
                    "422": {
                        "description": "Unprocessable Entity",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    },
                    "500": {
                        "description": "Internal Server Error",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    }
                },
                "consumes": [
                    "application/json"
                ]
            }
        }
    },
    "definitions": {
        "handlers.ErrorResponse": {
            "type": "object",
            "properties": {
                "request_id": {
                    "type": "string",
                    "example": "123e4567-e89b-12d3-a456-426614174000"
                },
                "code": {
                    "type": "string",
                    "example": "not_found"
                },
                "message": {
                    "type": "string",
                    "example": "resource not found"
                }
            }
        },
        "handlers.HealthResponse": {
            "type": "object",
            "properties": {
                "status": {
                    "type": "string",
                    "example": "ok"
                },
                "db": {
                    "type": "string",
                    "example": "ok"
                }
            }
        },
        "services.InboundResult": {
            "type": "object",
            "properties": {
                "duplicate": {
                    "type": "boolean"
                },
                "inboundMessageId": {
                    "type": "string"
                },
                "correlationId": {
                    "type": "string"
                },
                "queuedOutbound": {
                    "type": "integer"
                },
                "linkedAccountId": {
                    "type": "string"
                }
            }
        },
        "handlers.WebhookAck": {
            "type": "object",
            "properties": {
                "ok": {
                    "type": "boolean"
                },
                "results": {
                    "type": "array",
                    "items": {
                        "$ref": "#/definitions/services.InboundResult"
                    }
                }
            }
        },
        "domain.Media": {
            "type": "object",
            "properties": {
                "mediaId": {
                    "type": "string"
                },
                "remoteUrl": {
                    "type": "string"
                },
                "mimeType": {
                    "type": "string"
                }
            }
        },
        "domain.InboundEvent": {
            "type": "object",
            "properties": {
                "eventId": {
                    "type": "string"
                },
                "channel": {
                    "type": "string",
                    "enum": [
                        "chatgpt",
                        "imessage",
                        "whatsapp",
                        "telegram"
                    ]
                },
                "channelUserId": {
                    "type": "string"
                },
                "channelConversationId": {
                    "type": "string"
                },
                "receivedAt": {
                    "type": "string",
                    "format": "date-time"
                },
                "text": {
                    "type": "string"
                },
                "media": {
                    "type": "array",
                    "items": {
                        "$ref": "#/definitions/domain.Media"
                    }
                },
                "metadata": {
                    "type": "object"
                },
                "signatureValidated": {
                    "type": "boolean"
                }
            },
            "required": [
                "eventId",
                "channel",
                "channelUserId",
                "channelConversationId"
            ]
        },
        "domain.MessagePart": {
            "type": "object",
            "properties": {
                "type": {
                    "type": "string",
                    "enum": [
                        "text",
                        "image",
                        "link"
                    ]
                },
                "text": {
                    "type": "string"
                },
                "url": {
                    "type": "string"
                },
                "caption": {
                    "type": "string"
                },
                "title": {
                    "type": "string"
                }
            }
        },
        "domain.OutboundMessage": {
            "type": "object",
            "properties": {
                "messageId": {
                    "type": "string"
                },
                "correlationId": {
                    "type": "string"
                },
                "channel": {
                    "type": "string"
                },
                "channelConversationId": {
                    "type": "string"
                },
                "recipientId": {
                    "type": "string"
                },
                "parts": {
                    "type": "array",
                    "items": {
                        "$ref": "#/definitions/domain.MessagePart"
                    }
                },
                "idempotencyKey": {
                    "type": "string"
                },
                "metadata": {
                    "type": "object"
                }
            }
        },
        "handlers.ClaimRequest": {
            "type": "object",
            "properties": {
                "channel": {
                    "type": "string",
                    "example": "imessage"
                },
                "limit": {
                    "type": "integer",
                    "example": 10
                },
                "maxBatchSize": {
                    "type": "integer"
                }
            }
        },
        "handlers.ClaimedMessage": {
            "type": "object",
            "properties": {
                "id": {
                    "type": "string"
                },
                "payload": {
                    "$ref": "#/definitions/domain.OutboundMessage"
                }
            }
        },
        "handlers.ClaimResponse": {
            "type": "object",
            "properties": {
                "ok": {
                    "type": "boolean"
                },
                "messages": {
                    "type": "array",
                    "items": {
                        "$ref": "#/definitions/handlers.ClaimedMessage"
                    }
                }
            }
        },
        "handlers.SentRequest": {
            "type": "object",
            "properties": {
                "providerMessageId": {
                    "type": "string"
                },
                "responseCode": {
                    "type": "integer"
                },
                "responseBody": {
                    "type": "string"
                }
            }
        },
        "handlers.FailedRequest": {
            "type": "object",
            "properties": {
                "error": {
                    "type": "string",
                    "example": "chat.db locked"
                },
                "responseCode": {
                    "type": "integer"
                },
                "responseBody": {
                    "type": "string"
                }
            }
        },
        "handlers.FailedResponse": {
            "type": "object",
            "properties": {
                "ok": {
                    "type": "boolean"
                },
                "deadLettered": {
                    "type": "boolean"
                },
                "attemptCount": {
                    "type": "integer"
                }
            }
        },
        "handlers.CompleteLinkRequest": {
            "type": "object",
            "properties": {
                "token": {
                    "type": "string",
                    "example": "k3J9xQ2mVbN8pL4tR7wY"
                },
                "userId": {
                    "type": "string",
                    "example": "auth0|123"
                }
            },
            "required": [
                "token",
                "userId"
            ]
        },
        "services.LinkResult": {
            "type": "object",
            "properties": {
                "linked": {
                    "type": "boolean"
                },
                "channel": {
                    "type": "string"
                },
                "channelUserId": {
                    "type": "string"
                }
            }
        },
        "handlers.CompleteLinkResponse": {
            "type": "object",
            "properties": {
                "ok": {
                    "type": "boolean"
                },
                "linked": {
                    "$ref": "#/definitions/services.LinkResult"
                }
            }
        },
        "commands.Response": {
            "type": "object",
            "properties": {
                "textParts": {
                    "type": "array",
                    "items": {
                        "type": "string"
                    }
                },
                "structured": {
                    "type": "object"
                }
            }
        },
        "handlers.ToolResponse": {
            "type": "object",
            "properties": {
                "ok": {
                    "type": "boolean"
                },
                "tool": {
                    "type": "string",
                    "example": "plan.generateOutfits"
                },
                "result": {
                    "$ref": "#/definitions/commands.Response"
                }
            }
        },
        "domain.DeadLetterEvent": {
            "type": "object",
            "properties": {
                "id": {
                    "type": "string"
                },
                "channel": {
                    "type": "string"
                },
                "source": {
                    "type": "string"
                },
                "reference_id": {
                    "type": "string"
                },
                "payload": {
                    "type": "string"
                },
                "reason": {
                    "type": "string"
                },
                "created_at": {
                    "type": "string",
                    "format": "date-time"
                }
            }
        },
        "handlers.Pagination": {
            "type": "object",
            "properties": {
                "page": {
                    "type": "integer"
                },
                "page_size": {
                    "type": "integer"
                },
                "total": {
                    "type": "integer"
                },
                "total_pages": {
                    "type": "integer"
                },
                "has_next": {
                    "type": "boolean"
                }
            }
        },
        "handlers.DeadLetterPage": {
            "type": "object",
            "properties": {
                "items": {
                    "type": "array",
                    "items": {
                        "$ref": "#/definitions/domain.DeadLetterEvent"
                    }
                },
                "pagination": {
                    "$ref": "#/definitions/handlers.Pagination"
                }
            }
        },
        "handlers.BlockRequest": {
            "type": "object",
            "properties": {
                "channel": {
                    "type": "string",
                    "example": "telegram"
                },
                "channelUserId": {
                    "type": "string",
                    "example": "123456789"
                },
                "blocked": {
                    "type": "boolean"
                }
            },
            "required": [
                "channel",
                "channelUserId"
            ]
        },
        "handlers.BlockResponse": {
            "type": "object",
            "properties": {
                "ok": {
                    "type": "boolean"
                },
                "status": {
                    "type": "string",
                    "enum": [
                        "active",
                        "blocked"
                    ]
                }
            }
        }
    },
    "securityDefinitions": {
        "BridgeBearer": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header",
            "description": "Bearer <IMESSAGE_BRIDGE_SHARED_SECRET>"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Omnichannel Gateway API",
	Description:      "Webhooks, bridge pull API, account linking, tools and operations endpoints of the omnichannel message gateway.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
