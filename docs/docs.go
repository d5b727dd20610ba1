// Package docs registers the OpenAPI document served at /swagger/doc.json.
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
        "/auth/login": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["auth"],
                "summary": "Logs a user in",
                "parameters": [
                    {
                        "description": "Login credentials",
                        "name": "loginRequest",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/api.CredentialsRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/api.AuthResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/api.MessageResponse"}},
                    "401": {"description": "Invalid credentials", "schema": {"$ref": "#/definitions/api.MessageResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/api.MessageResponse"}}
                }
            }
        },
        "/auth/register": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["auth"],
                "summary": "Registers a new user",
                "parameters": [
                    {
                        "description": "New account credentials",
                        "name": "registerRequest",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/api.CredentialsRequest"}
                    }
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/api.AuthResponse"}},
                    "400": {"description": "Validation error or username already exists", "schema": {"$ref": "#/definitions/api.MessageResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/api.MessageResponse"}}
                }
            }
        },
        "/auth/verify": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["auth"],
                "summary": "Verifies the access token",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/api.VerifyResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/api.MessageResponse"}}
                }
            }
        },
        "/barcodes": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["barcodes"],
                "summary": "Lists barcodes",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/models.BarcodeView"}}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/api.MessageResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/api.MessageResponse"}}
                }
            },
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["multipart/form-data"],
                "produces": ["application/json"],
                "tags": ["barcodes"],
                "summary": "Uploads a barcode image",
                "parameters": [
                    {
                        "type": "file",
                        "description": "Image file (jpeg, jpg, png, gif, webp; at most 5MB)",
                        "name": "barcode",
                        "in": "formData",
                        "required": true
                    }
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/api.BarcodeResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/api.MessageResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/api.MessageResponse"}}
                }
            }
        },
        "/barcodes/{barcodeId}": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["barcodes"],
                "summary": "Gets a barcode",
                "parameters": [
                    {"type": "integer", "description": "Barcode ID", "name": "barcodeId", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.BarcodeView"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/api.MessageResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/api.MessageResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/api.MessageResponse"}}
                }
            },
            "put": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["barcodes"],
                "summary": "Updates a barcode",
                "parameters": [
                    {"type": "integer", "description": "Barcode ID", "name": "barcodeId", "in": "path", "required": true},
                    {
                        "description": "Fields to change",
                        "name": "updateRequest",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/api.UpdateBarcodeRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/api.BarcodeResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/api.MessageResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/api.MessageResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/api.MessageResponse"}}
                }
            },
            "delete": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["barcodes"],
                "summary": "Deletes a barcode",
                "parameters": [
                    {"type": "integer", "description": "Barcode ID", "name": "barcodeId", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/api.MessageResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/api.MessageResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/api.MessageResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/api.MessageResponse"}}
                }
            }
        },
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["health"],
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/api.HealthResponse"}}
                }
            }
        }
    },
    "definitions": {
        "api.AuthResponse": {
            "type": "object",
            "properties": {
                "message": {"type": "string", "example": "Login successful"},
                "token": {"type": "string"},
                "user": {"$ref": "#/definitions/api.UserResponse"}
            }
        },
        "api.BarcodeResponse": {
            "type": "object",
            "properties": {
                "message": {"type": "string", "example": "Barcode updated successfully"},
                "barcode": {"$ref": "#/definitions/models.BarcodeView"}
            }
        },
        "api.CredentialsRequest": {
            "type": "object",
            "properties": {
                "username": {"type": "string", "example": "alice"},
                "password": {"type": "string", "example": "password123"}
            }
        },
        "api.HealthResponse": {
            "type": "object",
            "properties": {
                "status": {"type": "string", "example": "OK"},
                "message": {"type": "string", "example": "Server is running"}
            }
        },
        "api.MessageResponse": {
            "type": "object",
            "properties": {
                "message": {"type": "string", "example": "Barcode deleted successfully"}
            }
        },
        "api.UpdateBarcodeRequest": {
            "type": "object",
            "properties": {
                "isUsed": {"type": "boolean", "example": true},
                "amount": {"type": "number", "example": 12.5}
            }
        },
        "api.UserResponse": {
            "type": "object",
            "properties": {
                "id": {"type": "integer", "example": 1},
                "username": {"type": "string", "example": "alice"}
            }
        },
        "api.VerifyResponse": {
            "type": "object",
            "properties": {
                "message": {"type": "string", "example": "Token is valid"},
                "user": {"$ref": "#/definitions/api.UserResponse"}
            }
        },
        "models.BarcodeView": {
            "type": "object",
            "properties": {
                "id": {"type": "integer"},
                "filename": {"type": "string"},
                "original_name": {"type": "string"},
                "file_path": {"type": "string"},
                "is_used": {"type": "boolean"},
                "amount": {"type": "number"},
                "uploaded_by": {"type": "integer"},
                "uploaded_by_username": {"type": "string"},
                "created_at": {"type": "string"},
                "updated_at": {"type": "string"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
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
	BasePath:         "/api",
	Schemes:          []string{"http", "https"},
	Title:            "Barcode Server API",
	Description:      "Barcode and receipt image tracking with live change events.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
