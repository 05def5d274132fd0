// Package docs holds the Swagger document served at /swagger and /openapi.json.
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
        "UserID": {
            "type": "apiKey",
            "name": "X-User-ID",
            "in": "header"
        }
    },
    "security": [{"UserID": []}],
    "paths": {
        "/health": {
            "get": {
                "tags": ["health"],
                "summary": "Readiness check",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "OK"},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/errorPayload"}}
                }
            }
        },
        "/tenants/{tenant}/documents": {
            "get": {
                "tags": ["documents"],
                "summary": "List documents",
                "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "description": "Tenant subdomain", "name": "tenant", "in": "path", "required": true},
                    {"type": "string", "description": "PENDING, APPROVED or REJECTED (admins only)", "name": "status", "in": "query"},
                    {"type": "integer", "description": "Page size", "name": "limit", "in": "query"},
                    {"type": "integer", "description": "Page offset", "name": "offset", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/service.DocumentListResult"}}
                }
            },
            "post": {
                "tags": ["documents"],
                "summary": "Submit a document",
                "consumes": ["multipart/form-data"],
                "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "description": "Tenant subdomain", "name": "tenant", "in": "path", "required": true},
                    {"type": "file", "description": "Document file", "name": "file", "in": "formData", "required": true},
                    {"type": "string", "description": "Document name", "name": "name", "in": "formData"},
                    {"type": "string", "description": "Document description", "name": "description", "in": "formData"},
                    {"type": "array", "items": {"type": "string"}, "collectionFormat": "multi", "description": "Access tags", "name": "tags", "in": "formData"}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/model.DocumentVersion"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/errorPayload"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/errorPayload"}}
                }
            }
        },
        "/tenants/{tenant}/documents/{id}": {
            "get": {
                "tags": ["documents"],
                "summary": "Read an approved document",
                "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "description": "Tenant subdomain", "name": "tenant", "in": "path", "required": true},
                    {"type": "string", "description": "Document ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/errorPayload"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/errorPayload"}}
                }
            },
            "delete": {
                "tags": ["documents"],
                "summary": "Delete a document",
                "parameters": [
                    {"type": "string", "description": "Tenant subdomain", "name": "tenant", "in": "path", "required": true},
                    {"type": "string", "description": "Document ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "204": {"description": "No Content"}
                }
            }
        },
        "/tenants/{tenant}/documents/{id}/versions": {
            "get": {
                "tags": ["documents"],
                "summary": "Version history",
                "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "description": "Tenant subdomain", "name": "tenant", "in": "path", "required": true},
                    {"type": "string", "description": "Document ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK"}
                }
            },
            "post": {
                "tags": ["documents"],
                "summary": "Submit a new version",
                "consumes": ["multipart/form-data"],
                "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "description": "Tenant subdomain", "name": "tenant", "in": "path", "required": true},
                    {"type": "string", "description": "Document ID", "name": "id", "in": "path", "required": true},
                    {"type": "file", "description": "Document file", "name": "file", "in": "formData", "required": true}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/model.DocumentVersion"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/errorPayload"}}
                }
            }
        },
        "/tenants/{tenant}/documents/{id}/versions/{versionId}/approve": {
            "post": {
                "tags": ["approval"],
                "summary": "Approve a version",
                "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "description": "Tenant subdomain", "name": "tenant", "in": "path", "required": true},
                    {"type": "string", "description": "Document ID", "name": "id", "in": "path", "required": true},
                    {"type": "string", "description": "Version ID", "name": "versionId", "in": "path", "required": true},
                    {"type": "boolean", "description": "Queue the approval", "name": "async", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "202": {"description": "Accepted"},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/errorPayload"}},
                    "422": {"description": "Unprocessable Entity", "schema": {"$ref": "#/definitions/errorPayload"}},
                    "502": {"description": "Bad Gateway", "schema": {"$ref": "#/definitions/errorPayload"}}
                }
            }
        },
        "/tenants/{tenant}/documents/{id}/versions/{versionId}/ingestion": {
            "get": {
                "tags": ["approval"],
                "summary": "Ingestion job status",
                "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "description": "Tenant subdomain", "name": "tenant", "in": "path", "required": true},
                    {"type": "string", "description": "Document ID", "name": "id", "in": "path", "required": true},
                    {"type": "string", "description": "Version ID", "name": "versionId", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/errorPayload"}}
                }
            }
        },
        "/tenants/{tenant}/documents/{id}/reject": {
            "post": {
                "tags": ["approval"],
                "summary": "Reject the pending version",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "description": "Tenant subdomain", "name": "tenant", "in": "path", "required": true},
                    {"type": "string", "description": "Document ID", "name": "id", "in": "path", "required": true},
                    {"description": "Rejection", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/rejectRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/model.DocumentVersion"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/errorPayload"}}
                }
            }
        },
        "/tenants/{tenant}/documents/{id}/tags": {
            "put": {
                "tags": ["access"],
                "summary": "Set document access tags",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "description": "Tenant subdomain", "name": "tenant", "in": "path", "required": true},
                    {"type": "string", "description": "Document ID", "name": "id", "in": "path", "required": true},
                    {"description": "Tags", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/tagsRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/tenants/{tenant}/members/{userId}/tags": {
            "put": {
                "tags": ["access"],
                "summary": "Grant access tags",
                "consumes": ["application/json"],
                "parameters": [
                    {"type": "string", "description": "Tenant subdomain", "name": "tenant", "in": "path", "required": true},
                    {"type": "string", "description": "Member user ID", "name": "userId", "in": "path", "required": true},
                    {"description": "Tags", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/tagsRequest"}}
                ],
                "responses": {
                    "204": {"description": "No Content"},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/errorPayload"}}
                }
            },
            "delete": {
                "tags": ["access"],
                "summary": "Revoke access tags",
                "consumes": ["application/json"],
                "parameters": [
                    {"type": "string", "description": "Tenant subdomain", "name": "tenant", "in": "path", "required": true},
                    {"type": "string", "description": "Member user ID", "name": "userId", "in": "path", "required": true},
                    {"description": "Tags", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/tagsRequest"}}
                ],
                "responses": {
                    "204": {"description": "No Content"}
                }
            }
        }
    },
    "definitions": {
        "errorPayload": {
            "type": "object",
            "properties": {
                "request_id": {"type": "string"},
                "error": {
                    "type": "object",
                    "properties": {
                        "code": {"type": "string"},
                        "message": {"type": "string"},
                        "details": {}
                    }
                }
            }
        },
        "rejectRequest": {
            "type": "object",
            "properties": {
                "reason": {"type": "string"}
            }
        },
        "tagsRequest": {
            "type": "object",
            "properties": {
                "tags": {"type": "array", "items": {"type": "string"}}
            }
        },
        "model.DocumentVersion": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "document_id": {"type": "string"},
                "version_number": {"type": "integer"},
                "status": {"type": "string", "enum": ["PENDING", "APPROVED", "REJECTED"]},
                "file_url": {"type": "string"},
                "original_name": {"type": "string"},
                "file_size": {"type": "integer"},
                "mime_type": {"type": "string"},
                "approved_by": {"type": "string"},
                "approved_at": {"type": "string"},
                "rejected_by": {"type": "string"},
                "rejection_reason": {"type": "string"},
                "rejected_at": {"type": "string"},
                "created_by": {"type": "string"},
                "created_at": {"type": "string"}
            }
        },
        "model.Document": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "tenant_id": {"type": "string"},
                "name": {"type": "string"},
                "description": {"type": "string"},
                "mime_type": {"type": "string"},
                "status": {"type": "string", "enum": ["PENDING", "APPROVED", "REJECTED"]},
                "active_version_id": {"type": "string"},
                "access_tags": {"type": "array", "items": {"type": "object"}},
                "created_at": {"type": "string"},
                "updated_at": {"type": "string"}
            }
        },
        "service.DocumentListResult": {
            "type": "object",
            "properties": {
                "data": {"type": "array", "items": {"$ref": "#/definitions/model.Document"}},
                "total": {"type": "integer"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Knowledge Base API",
	Description:      "Tenant-scoped document lifecycle: submission, approval through ingestion, and tag-based reads.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
