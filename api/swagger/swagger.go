package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Partage API",
        "description": "Project submissions, media storage and ZIP archives for construction quotes.",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": ["http", "https"],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "tags": [
        {"name": "Archives", "description": "ZIP archives of submission media"},
        {"name": "Submissions", "description": "Project intake and admin review"},
        {"name": "Authentication", "description": "Admin login"},
        {"name": "Geocode", "description": "Reverse geocoding"},
        {"name": "Admin", "description": "Operational endpoints"}
    ],
    "paths": {
        "/create-archive": {
            "post": {
                "tags": ["Archives"],
                "summary": "Build the ZIP archive of a submission",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"in": "body", "name": "payload", "required": true, "schema": {"$ref": "#/definitions/CreateArchiveRequest"}}
                ],
                "responses": {
                    "200": {"description": "Archive uploaded", "schema": {"$ref": "#/definitions/CreateArchiveResponse"}},
                    "400": {"description": "Missing submissionId", "schema": {"$ref": "#/definitions/FailureBody"}},
                    "404": {"description": "Submission not found or no files found", "schema": {"$ref": "#/definitions/FailureBody"}},
                    "500": {"description": "Compression or upload failure", "schema": {"$ref": "#/definitions/FailureBody"}},
                    "502": {"description": "All file downloads failed", "schema": {"$ref": "#/definitions/FailureBody"}}
                }
            }
        },
        "/submissions": {
            "post": {
                "tags": ["Submissions"],
                "summary": "Submit a project",
                "consumes": ["multipart/form-data"],
                "produces": ["application/json"],
                "parameters": [
                    {"in": "formData", "name": "entreprise", "type": "string", "required": true},
                    {"in": "formData", "name": "ville", "type": "string"},
                    {"in": "formData", "name": "departement", "type": "string"},
                    {"in": "formData", "name": "typeProjet", "type": "string", "enum": ["neuf", "renovation"]},
                    {"in": "formData", "name": "description", "type": "string"},
                    {"in": "formData", "name": "latitude", "type": "number"},
                    {"in": "formData", "name": "longitude", "type": "number"},
                    {"in": "formData", "name": "accuracy", "type": "number"},
                    {"in": "formData", "name": "audioDuration", "type": "integer"},
                    {"in": "formData", "name": "videoDuration", "type": "integer"},
                    {"in": "formData", "name": "files", "type": "file", "required": true},
                    {"in": "formData", "name": "audio", "type": "file"},
                    {"in": "formData", "name": "video", "type": "file"}
                ],
                "responses": {
                    "201": {"description": "Stored and notified"},
                    "400": {"description": "Missing required fields", "schema": {"$ref": "#/definitions/FailureBody"}},
                    "502": {"description": "Failed to send email", "schema": {"$ref": "#/definitions/FailureBody"}}
                }
            }
        },
        "/geocode/reverse": {
            "get": {
                "tags": ["Geocode"],
                "summary": "Reverse geocode coordinates",
                "parameters": [
                    {"in": "query", "name": "lat", "type": "number", "required": true},
                    {"in": "query", "name": "lon", "type": "number", "required": true}
                ],
                "responses": {
                    "200": {"description": "City and department", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "502": {"description": "Upstream unavailable", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/downloads/{token}": {
            "get": {
                "tags": ["Archives"],
                "summary": "Download an archive through a signed link",
                "produces": ["application/zip"],
                "parameters": [{"in": "path", "name": "token", "type": "string", "required": true}],
                "responses": {
                    "200": {"description": "ZIP file"},
                    "403": {"description": "Invalid token"},
                    "410": {"description": "Link expired"}
                }
            }
        },
        "/auth/login": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Authenticate an admin",
                "parameters": [
                    {"in": "body", "name": "payload", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "Access token", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/auth/me": {
            "get": {
                "tags": ["Authentication"],
                "summary": "Current admin profile",
                "security": [{"BearerAuth": []}],
                "responses": {"200": {"description": "Profile", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/admin/submissions": {
            "get": {
                "tags": ["Submissions"],
                "summary": "List submissions",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"in": "query", "name": "entreprise", "type": "array", "items": {"type": "string"}, "collectionFormat": "multi"},
                    {"in": "query", "name": "q", "type": "string"},
                    {"in": "query", "name": "page", "type": "integer"},
                    {"in": "query", "name": "page_size", "type": "integer"}
                ],
                "responses": {"200": {"description": "Submissions", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/admin/submissions/export": {
            "get": {
                "tags": ["Submissions"],
                "summary": "Export submissions as CSV or PDF",
                "security": [{"BearerAuth": []}],
                "produces": ["text/csv", "application/pdf"],
                "parameters": [{"in": "query", "name": "format", "type": "string", "enum": ["csv", "pdf"]}],
                "responses": {"200": {"description": "File"}}
            }
        },
        "/admin/companies": {
            "get": {
                "tags": ["Submissions"],
                "summary": "List distinct companies",
                "security": [{"BearerAuth": []}],
                "responses": {"200": {"description": "Companies", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/admin/submissions/{id}": {
            "get": {
                "tags": ["Submissions"],
                "summary": "Get a submission with its photos",
                "security": [{"BearerAuth": []}],
                "parameters": [{"in": "path", "name": "id", "type": "string", "required": true}],
                "responses": {"200": {"description": "Submission"}, "404": {"description": "Not found"}}
            },
            "put": {
                "tags": ["Submissions"],
                "summary": "Edit a submission",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"in": "path", "name": "id", "type": "string", "required": true},
                    {"in": "body", "name": "payload", "required": true, "schema": {"$ref": "#/definitions/UpdateSubmissionRequest"}}
                ],
                "responses": {"200": {"description": "Updated"}, "404": {"description": "Not found"}}
            },
            "delete": {
                "tags": ["Submissions"],
                "summary": "Delete a submission and its files",
                "security": [{"BearerAuth": []}],
                "parameters": [{"in": "path", "name": "id", "type": "string", "required": true}],
                "responses": {"204": {"description": "Deleted"}, "404": {"description": "Not found"}}
            }
        },
        "/admin/submissions/{id}/archive": {
            "post": {
                "tags": ["Submissions"],
                "summary": "Build the archive and return a download link",
                "security": [{"BearerAuth": []}],
                "parameters": [{"in": "path", "name": "id", "type": "string", "required": true}],
                "responses": {"200": {"description": "Download link"}, "404": {"description": "Not found"}, "502": {"description": "All file downloads failed"}}
            }
        },
        "/admin/cache": {
            "delete": {
                "tags": ["Admin"],
                "summary": "Purge the Redis cache",
                "security": [{"BearerAuth": []}],
                "responses": {"204": {"description": "Purged"}}
            }
        },
        "/admin/metrics/summary": {
            "get": {
                "tags": ["Admin"],
                "summary": "In-process metrics summary",
                "security": [{"BearerAuth": []}],
                "responses": {"200": {"description": "Snapshot"}}
            }
        },
        "/archives/jobs": {
            "post": {
                "tags": ["Archives"],
                "summary": "Queue an archive build",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"in": "body", "name": "payload", "required": true, "schema": {"$ref": "#/definitions/CreateArchiveRequest"}}
                ],
                "responses": {"202": {"description": "Queued"}, "503": {"description": "Queue full"}}
            }
        },
        "/archives/jobs/{id}": {
            "get": {
                "tags": ["Archives"],
                "summary": "Get archive job status",
                "security": [{"BearerAuth": []}],
                "parameters": [{"in": "path", "name": "id", "type": "string", "required": true}],
                "responses": {"200": {"description": "Status"}, "404": {"description": "Not found"}}
            }
        }
    },
    "definitions": {
        "CreateArchiveRequest": {
            "type": "object",
            "required": ["submissionId"],
            "properties": {
                "submissionId": {"type": "string"},
                "ville": {"type": "string"},
                "departement": {"type": "string"}
            }
        },
        "SkippedFile": {
            "type": "object",
            "properties": {
                "name": {"type": "string"},
                "source": {"type": "string"},
                "reason": {"type": "string"}
            }
        },
        "CreateArchiveResponse": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "archiveName": {"type": "string"},
                "archiveUrl": {"type": "string"},
                "filesCount": {"type": "integer"},
                "skippedFiles": {"type": "array", "items": {"$ref": "#/definitions/SkippedFile"}}
            }
        },
        "FailureBody": {
            "type": "object",
            "properties": {
                "error": {"type": "string"},
                "code": {"type": "string"}
            }
        },
        "LoginRequest": {
            "type": "object",
            "required": ["email", "password"],
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            }
        },
        "UpdateSubmissionRequest": {
            "type": "object",
            "properties": {
                "entreprise": {"type": "string"},
                "ville": {"type": "string"},
                "departement": {"type": "string"},
                "type_projet": {"type": "string", "enum": ["neuf", "renovation"]},
                "message": {"type": "string"}
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
