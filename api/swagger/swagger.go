package swagger

import "github.com/swaggo/swag"

// docTemplate mirrors the godoc annotations on the handlers.
const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "UC Timetable API",
        "description": "Class enrollments, rosters and class-change requests for UC timetables.",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    },
    "tags": [
        {
            "name": "Timetable",
            "description": "Students, sections and schedules"
        },
        {
            "name": "ChangeRequests",
            "description": "Class-change workflow"
        },
        {
            "name": "Exports",
            "description": "CSV and PDF roster exports"
        },
        {
            "name": "Admin",
            "description": "Persistence controls"
        }
    ],
    "paths": {
        "/students/{id}": {
            "get": {
                "tags": [
                    "Timetable"
                ],
                "summary": "Get student with enrollments",
                "produces": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "Student code"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "404": {
                        "description": "Unknown student",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        },
        "/students/{id}/schedule": {
            "get": {
                "tags": [
                    "Timetable"
                ],
                "summary": "Weekly schedule of a student",
                "produces": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "Student code"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        },
        "/ucs/{uc}/sections": {
            "get": {
                "tags": [
                    "Timetable"
                ],
                "summary": "List sections of a UC",
                "produces": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "name": "uc",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "UC code"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        },
        "/ucs/{uc}/schedule": {
            "get": {
                "tags": [
                    "Timetable"
                ],
                "summary": "Weekly schedule of every section of a UC",
                "produces": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "name": "uc",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "UC code"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        },
        "/ucs/{uc}/students": {
            "get": {
                "tags": [
                    "Timetable"
                ],
                "summary": "Students enrolled in a UC",
                "produces": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "name": "uc",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "UC code"
                    },
                    {
                        "name": "order",
                        "in": "query",
                        "required": false,
                        "type": "string",
                        "description": "Roster order",
                        "enum": [
                            "name-asc",
                            "name-desc",
                            "id-asc",
                            "id-desc"
                        ]
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "400": {
                        "description": "Invalid order",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        },
        "/sections/{uc}/{section}": {
            "get": {
                "tags": [
                    "Timetable"
                ],
                "summary": "Get one section",
                "produces": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "name": "uc",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "UC code"
                    },
                    {
                        "name": "section",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "Section code"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "404": {
                        "description": "Unknown section",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        },
        "/sections/{uc}/{section}/students": {
            "get": {
                "tags": [
                    "Timetable"
                ],
                "summary": "Students of one section",
                "produces": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "name": "uc",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "UC code"
                    },
                    {
                        "name": "section",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "Section code"
                    },
                    {
                        "name": "order",
                        "in": "query",
                        "required": false,
                        "type": "string",
                        "description": "Roster order",
                        "enum": [
                            "name-asc",
                            "name-desc",
                            "id-asc",
                            "id-desc"
                        ]
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "400": {
                        "description": "Invalid order",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        },
        "/section-codes/{section}/schedule": {
            "get": {
                "tags": [
                    "Timetable"
                ],
                "summary": "Schedule of every UC taught under a section code",
                "produces": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "name": "section",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "Section code"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        },
        "/change-requests": {
            "post": {
                "tags": [
                    "ChangeRequests"
                ],
                "summary": "Submit a class-change request",
                "produces": [
                    "application/json"
                ],
                "consumes": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/SubmitChangeRequest"
                        }
                    }
                ],
                "responses": {
                    "201": {
                        "description": "Created",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "400": {
                        "description": "Invalid payload",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "403": {
                        "description": "Not your request",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "404": {
                        "description": "Unknown student or section",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "409": {
                        "description": "No change",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "422": {
                        "description": "Not enrolled",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            },
            "get": {
                "tags": [
                    "ChangeRequests"
                ],
                "summary": "List change requests",
                "produces": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "name": "status",
                        "in": "query",
                        "required": false,
                        "type": "string",
                        "description": "Comma separated PENDING, APPROVED, REJECTED"
                    },
                    {
                        "name": "student_id",
                        "in": "query",
                        "required": false,
                        "type": "string",
                        "description": "Filter by student"
                    },
                    {
                        "name": "uc",
                        "in": "query",
                        "required": false,
                        "type": "string",
                        "description": "Filter by UC"
                    },
                    {
                        "name": "page",
                        "in": "query",
                        "required": false,
                        "type": "integer",
                        "description": "Page"
                    },
                    {
                        "name": "page_size",
                        "in": "query",
                        "required": false,
                        "type": "integer",
                        "description": "Page size"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        },
        "/change-requests/{id}": {
            "get": {
                "tags": [
                    "ChangeRequests"
                ],
                "summary": "Get a change request",
                "produces": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "Request ID"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "404": {
                        "description": "Not found",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        },
        "/change-requests/process": {
            "post": {
                "tags": [
                    "ChangeRequests"
                ],
                "summary": "Process every pending change request",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "403": {
                        "description": "Admins only",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        },
        "/exports": {
            "post": {
                "tags": [
                    "Exports"
                ],
                "summary": "Queue an export",
                "produces": [
                    "application/json"
                ],
                "consumes": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/ExportRequest"
                        }
                    }
                ],
                "responses": {
                    "202": {
                        "description": "Accepted",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "400": {
                        "description": "Invalid payload",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "403": {
                        "description": "Not allowed",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        },
        "/export-jobs/{id}": {
            "get": {
                "tags": [
                    "Exports"
                ],
                "summary": "Export job status",
                "produces": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "Job ID"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "404": {
                        "description": "Not found",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        },
        "/exports/{token}": {
            "get": {
                "tags": [
                    "Exports"
                ],
                "summary": "Download an export through its signed link",
                "produces": [
                    "application/octet-stream"
                ],
                "parameters": [
                    {
                        "name": "token",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "Signed token"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "File",
                        "schema": {
                            "type": "file"
                        }
                    },
                    "403": {
                        "description": "Invalid or expired link",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/admin/timetable/save": {
            "post": {
                "tags": [
                    "Admin"
                ],
                "summary": "Write current enrollments back to the store",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        },
        "/admin/timetable/reload": {
            "post": {
                "tags": [
                    "Admin"
                ],
                "summary": "Reload the timetable from the store",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        }
    },
    "definitions": {
        "SubmitChangeRequest": {
            "type": "object",
            "required": [
                "uc_code",
                "target_section"
            ],
            "properties": {
                "student_id": {
                    "type": "string"
                },
                "uc_code": {
                    "type": "string"
                },
                "target_section": {
                    "type": "string"
                }
            }
        },
        "ExportRequest": {
            "type": "object",
            "required": [
                "kind",
                "format"
            ],
            "properties": {
                "kind": {
                    "type": "string",
                    "enum": [
                        "roster",
                        "student-schedule",
                        "uc-students"
                    ]
                },
                "format": {
                    "type": "string",
                    "enum": [
                        "csv",
                        "pdf"
                    ]
                },
                "uc_code": {
                    "type": "string"
                },
                "section_code": {
                    "type": "string"
                },
                "student_id": {
                    "type": "string"
                },
                "order": {
                    "type": "string",
                    "enum": [
                        "name-asc",
                        "name-desc",
                        "id-asc",
                        "id-desc"
                    ]
                }
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {
                    "type": "integer"
                },
                "page_size": {
                    "type": "integer"
                },
                "total_count": {
                    "type": "integer"
                }
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {
                    "type": "string"
                },
                "message": {
                    "type": "string"
                },
                "status": {
                    "type": "integer"
                }
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {
                    "type": "object"
                },
                "error": {
                    "$ref": "#/definitions/APIError"
                },
                "pagination": {
                    "$ref": "#/definitions/Pagination"
                },
                "meta": {
                    "type": "object"
                }
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
