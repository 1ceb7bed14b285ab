package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Thesis Flow API",
        "description": "Academic thesis document lifecycle and review workflow engine",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Authentication", "description": "Login and token lifecycle"},
        {"name": "Themes", "description": "Thesis theme registry"},
        {"name": "Documents", "description": "Document submission and review workflow"},
        {"name": "Progress", "description": "Per-theme progress projection"},
        {"name": "Plagiarism", "description": "Plagiarism verification reports"},
        {"name": "Defense", "description": "Defense readiness and minutes"},
        {"name": "Jury", "description": "Jury deliberation"},
        {"name": "Users", "description": "User management"}
    ],
    "paths": {
        "/auth/login": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Authenticate user",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/themes": {
            "get": {
                "tags": ["Themes"],
                "summary": "List thesis themes",
                "parameters": [
                    {"name": "student_id", "in": "query", "type": "string"},
                    {"name": "supervisor_id", "in": "query", "type": "string"},
                    {"name": "department", "in": "query", "type": "string"},
                    {"name": "academic_year", "in": "query", "type": "string"},
                    {"name": "limit", "in": "query", "type": "integer"},
                    {"name": "offset", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Themes"],
                "summary": "Register a thesis theme",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateThemeRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/themes/{id}": {
            "get": {
                "tags": ["Themes"],
                "summary": "Get theme detail",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/themes/{id}/documents": {
            "get": {
                "tags": ["Documents"],
                "summary": "List document versions for a theme",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "type", "in": "query", "type": "string"},
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "limit", "in": "query", "type": "integer"},
                    {"name": "offset", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Documents"],
                "summary": "Submit a document version",
                "consumes": ["multipart/form-data"],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "type", "in": "formData", "required": true, "type": "string"},
                    {"name": "file", "in": "formData", "required": true, "type": "file"}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Out of sequence", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/themes/{id}/documents/{type}/review": {
            "post": {
                "tags": ["Documents"],
                "summary": "Review the active document version",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "type", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ReviewDocumentRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Invalid state", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/documents/{id}/url": {
            "get": {
                "tags": ["Documents"],
                "summary": "Generate a signed download URL",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/documents/{id}/download": {
            "get": {
                "tags": ["Documents"],
                "summary": "Stream a document file using a signed token",
                "produces": ["application/octet-stream"],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "token", "in": "query", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "File"}
                }
            }
        },
        "/themes/{id}/progress": {
            "get": {
                "tags": ["Progress"],
                "summary": "Get thesis progress for a theme",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/themes/{id}/defense-readiness": {
            "get": {
                "tags": ["Defense"],
                "summary": "Evaluate defense readiness for a theme",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/themes/{id}/plagiarism": {
            "get": {
                "tags": ["Plagiarism"],
                "summary": "List plagiarism reports for a theme",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/plagiarism/reports/{id}/resolve": {
            "post": {
                "tags": ["Plagiarism"],
                "summary": "Record the scanner verdict for a pending report",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ResolvePlagiarismRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/themes/{id}/deliberation": {
            "get": {
                "tags": ["Jury"],
                "summary": "Get the recorded deliberation for a theme",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Jury"],
                "summary": "Record the jury deliberation for a theme",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RecordDecisionRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "412": {"description": "Not defense ready", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/themes/{id}/deliberation/minutes": {
            "get": {
                "tags": ["Defense"],
                "summary": "Export deliberation minutes as PDF",
                "produces": ["application/pdf"],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "PDF"}
                }
            }
        },
        "/exports/themes": {
            "get": {
                "tags": ["Themes"],
                "summary": "Export the theme roster as CSV",
                "produces": ["text/csv"],
                "parameters": [
                    {"name": "department", "in": "query", "type": "string"},
                    {"name": "academic_year", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "CSV"}
                }
            }
        },
        "/users": {
            "get": {
                "tags": ["Users"],
                "summary": "List users",
                "parameters": [
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "page_size", "in": "query", "type": "integer"},
                    {"name": "role", "in": "query", "type": "string"},
                    {"name": "active", "in": "query", "type": "boolean"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Users"],
                "summary": "Create user",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateUserRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/users/{id}": {
            "get": {
                "tags": ["Users"],
                "summary": "Get user",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "put": {
                "tags": ["Users"],
                "summary": "Update user",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Users"],
                "summary": "Deactivate user",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "No Content"}
                }
            }
        }
    },
    "definitions": {
        "LoginRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            },
            "required": ["email", "password"]
        },
        "CreateThemeRequest": {
            "type": "object",
            "properties": {
                "title": {"type": "string"},
                "student_id": {"type": "string"},
                "supervisor_id": {"type": "string"},
                "department": {"type": "string"},
                "academic_year": {"type": "string"}
            },
            "required": ["title", "student_id", "supervisor_id", "department", "academic_year"]
        },
        "ReviewDocumentRequest": {
            "type": "object",
            "properties": {
                "action": {"type": "string", "enum": ["START_REVIEW", "APPROVE", "REJECT", "REQUEST_REVISION"]},
                "feedback": {"type": "string"}
            },
            "required": ["action"]
        },
        "ResolvePlagiarismRequest": {
            "type": "object",
            "properties": {
                "score": {"type": "number"},
                "sources_found": {"type": "integer"},
                "notes": {"type": "string"}
            },
            "required": ["score"]
        },
        "RecordDecisionRequest": {
            "type": "object",
            "properties": {
                "decision": {"type": "string", "enum": ["APPROVED", "CORRECTIONS_REQUIRED", "REJECTED"]},
                "grade": {"type": "number"},
                "mention": {"type": "string"},
                "corrections_deadline": {"type": "string"},
                "corrections_description": {"type": "string"},
                "notes": {"type": "string"}
            },
            "required": ["decision"]
        },
        "CreateUserRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "full_name": {"type": "string"},
                "role": {"type": "string", "enum": ["ADMIN", "DEPARTMENT_HEAD", "SUPERVISOR", "JURY", "STUDENT"]},
                "active": {"type": "boolean"},
                "password": {"type": "string"}
            },
            "required": ["email", "full_name", "role", "password"]
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
