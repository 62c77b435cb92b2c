// Package docs holds the swagger document of the REST API, regenerate it with: swag init --parseDependency
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
        "/queues/{queue}/messages": {
            "get": {
                "security": [{"Bearer": []}],
                "description": "ReceiveMessages hides the returned messages for the visibility timeout, unless peek is set.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Queues"],
                "summary": "ReceiveMessages dequeues, or peeks at, visible messages.",
                "parameters": [
                    {"type": "string", "description": "Name of the queue", "name": "queue", "in": "path", "required": true},
                    {"type": "integer", "description": "Messages to return, 1 to 32", "name": "max_messages", "in": "query"},
                    {"type": "integer", "description": "Visibility timeout, 0 applies the queue default", "name": "visibility_timeout_seconds", "in": "query"},
                    {"type": "boolean", "description": "Peek without dequeueing", "name": "peek", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "additionalProperties": true}},
                    "400": {"description": "Bad Request", "schema": {"type": "object", "additionalProperties": true}},
                    "404": {"description": "Not Found", "schema": {"type": "object", "additionalProperties": true}}
                }
            },
            "post": {
                "security": [{"Bearer": []}],
                "description": "SendMessage responds with the stored message, its pop receipt included.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Queues"],
                "summary": "SendMessage enqueues a message.",
                "parameters": [
                    {"type": "string", "description": "Name of the queue", "name": "queue", "in": "path", "required": true},
                    {"description": "Message", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/restapi.SendMessageRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"type": "object", "additionalProperties": true}},
                    "400": {"description": "Bad Request", "schema": {"type": "object", "additionalProperties": true}},
                    "404": {"description": "Not Found", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        },
        "/tables/{table}/entities/{pk}/{rk}": {
            "get": {
                "security": [{"Bearer": []}],
                "description": "GetEntity responds with the entity as JSON.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Tables"],
                "summary": "GetEntity returns the entity of a table having the given partition & row keys.",
                "parameters": [
                    {"type": "string", "description": "Name of the table", "name": "table", "in": "path", "required": true},
                    {"type": "string", "description": "Partition key", "name": "pk", "in": "path", "required": true},
                    {"type": "string", "description": "Row key", "name": "rk", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "additionalProperties": true}},
                    "404": {"description": "Not Found", "schema": {"type": "object", "additionalProperties": true}}
                }
            },
            "delete": {
                "security": [{"Bearer": []}],
                "description": "DeleteEntity is conditional on the If-Match header when set.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Tables"],
                "summary": "DeleteEntity removes the entity of a table having the given partition & row keys.",
                "parameters": [
                    {"type": "string", "description": "Name of the table", "name": "table", "in": "path", "required": true},
                    {"type": "string", "description": "Partition key", "name": "pk", "in": "path", "required": true},
                    {"type": "string", "description": "Row key", "name": "rk", "in": "path", "required": true},
                    {"type": "string", "description": "ETag the stored entity must carry", "name": "If-Match", "in": "header"}
                ],
                "responses": {
                    "204": {"description": "No Content"},
                    "404": {"description": "Not Found", "schema": {"type": "object", "additionalProperties": true}},
                    "412": {"description": "Precondition Failed", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        },
        "/tables/{table}/transactions": {
            "post": {
                "security": [{"Bearer": []}],
                "description": "SubmitTransaction responds with one result per partition batch. 202 when every batch succeeded, 207 otherwise.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Tables"],
                "summary": "SubmitTransaction stages the posted actions and submits them as per-partition batches.",
                "parameters": [
                    {"maxLength": 63, "minLength": 3, "type": "string", "description": "Name of the table", "name": "table", "in": "path", "required": true},
                    {"description": "Ordered actions", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/restapi.TableTransactionRequest"}}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/restapi.TableTransactionResponse"}},
                    "207": {"description": "Multi-Status", "schema": {"$ref": "#/definitions/restapi.TableTransactionResponse"}},
                    "400": {"description": "Bad Request", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        }
    },
    "definitions": {
        "cassandra.TableEntity": {
            "type": "object",
            "properties": {
                "ETag": {"type": "string"},
                "PartitionKey": {"type": "string"},
                "Properties": {"type": "object", "additionalProperties": true},
                "RowKey": {"type": "string"},
                "Timestamp": {"type": "string"}
            }
        },
        "restapi.SendMessageRequest": {
            "type": "object",
            "required": ["body"],
            "properties": {
                "body": {"type": "string"},
                "time_to_live_seconds": {"type": "integer"},
                "visibility_delay_seconds": {"type": "integer"}
            }
        },
        "restapi.TableActionRequest": {
            "type": "object",
            "required": ["action"],
            "properties": {
                "action": {"type": "string", "enum": ["add", "update_merge", "update_replace", "upsert_merge", "upsert_replace", "delete"]},
                "entity": {"$ref": "#/definitions/cassandra.TableEntity"}
            }
        },
        "restapi.TableTransactionRequest": {
            "type": "object",
            "required": ["actions"],
            "properties": {
                "actions": {"type": "array", "minItems": 1, "items": {"$ref": "#/definitions/restapi.TableActionRequest"}}
            }
        },
        "restapi.TableTransactionResponse": {
            "type": "object",
            "properties": {
                "batches": {"type": "array", "items": {"type": "object", "additionalProperties": true}},
                "succeeded": {"type": "boolean"}
            }
        }
    },
    "securityDefinitions": {
        "Bearer": {
            "description": "Type \"Bearer\" followed by a space and JWT token.",
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
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Repositories REST API",
	Description:      "Tables and queues over partitioned storage.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
