package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Campus Library API",
        "description": "College library management with geofence presence tracking",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "tags": [
        {"name": "Auth", "description": "Authentication and sessions"},
        {"name": "Students", "description": "Student roster management"},
        {"name": "Books", "description": "Book catalog management"},
        {"name": "Issues", "description": "Book lending and returns"},
        {"name": "Fines", "description": "Overdue fines"},
        {"name": "Bookings", "description": "Seat and room reservations"},
        {"name": "Tracking", "description": "Geofence presence tracking"}
    ],
    "paths": {
        "/health": {
            "get": {
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/auth/login": {
            "post": {
                "tags": ["Auth"],
                "summary": "Login with email and password",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials"}
                }
            }
        },
        "/auth/refresh": {
            "post": {
                "tags": ["Auth"],
                "summary": "Rotate a refresh token",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RefreshTokenRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/auth/logout": {
            "post": {
                "tags": ["Auth"],
                "summary": "Revoke the current refresh token",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "204": {"description": "No Content"}
                }
            }
        },
        "/auth/me": {
            "get": {
                "tags": ["Auth"],
                "summary": "Current user profile",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/students": {
            "get": {
                "tags": ["Students"],
                "summary": "List students",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "search", "in": "query", "type": "string"},
                    {"name": "department", "in": "query", "type": "string"},
                    {"name": "active", "in": "query", "type": "boolean"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "page_size", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Students"],
                "summary": "Register student",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateStudentRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/students/{id}": {
            "get": {
                "tags": ["Students"],
                "summary": "Get student",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not Found"}
                }
            },
            "put": {
                "tags": ["Students"],
                "summary": "Update student",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateStudentRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Students"],
                "summary": "Deactivate student",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "No Content"}
                }
            }
        },
        "/books": {
            "get": {
                "tags": ["Books"],
                "summary": "List books",
                "parameters": [
                    {"name": "search", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "page_size", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Books"],
                "summary": "Add book",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateBookRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/books/{id}": {
            "get": {
                "tags": ["Books"],
                "summary": "Get book",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "put": {
                "tags": ["Books"],
                "summary": "Update book",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateBookRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Books"],
                "summary": "Remove book",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "No Content"},
                    "409": {"description": "Copies still on loan"}
                }
            }
        },
        "/issues": {
            "get": {
                "tags": ["Issues"],
                "summary": "List issues",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "student_id", "in": "query", "type": "string"},
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "page_size", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Issues"],
                "summary": "Issue a book",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/IssueBookRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "No copies available or loan limit reached"}
                }
            }
        },
        "/issues/{id}/return": {
            "post": {
                "tags": ["Issues"],
                "summary": "Return a book",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Already returned"}
                }
            }
        },
        "/fines": {
            "get": {
                "tags": ["Fines"],
                "summary": "List fines",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "student_id", "in": "query", "type": "string"},
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "page_size", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/fines/{id}/pay": {
            "post": {
                "tags": ["Fines"],
                "summary": "Mark fine paid",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Fine not unpaid"}
                }
            }
        },
        "/fines/{id}/waive": {
            "post": {
                "tags": ["Fines"],
                "summary": "Waive fine",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/fines/sweep": {
            "post": {
                "tags": ["Fines"],
                "summary": "Run the overdue sweep now",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/bookings": {
            "get": {
                "tags": ["Bookings"],
                "summary": "List bookings",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "student_id", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "page_size", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Bookings"],
                "summary": "Reserve a seat or room",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateBookingRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Time slot conflict"}
                }
            }
        },
        "/bookings/{id}": {
            "delete": {
                "tags": ["Bookings"],
                "summary": "Cancel booking",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "No Content"}
                }
            }
        },
        "/tracking/location": {
            "post": {
                "tags": ["Tracking"],
                "summary": "Report a GPS fix",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateLocationRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Location permission not granted"},
                    "503": {"description": "No active geofence"}
                }
            }
        },
        "/tracking/permission": {
            "post": {
                "tags": ["Tracking"],
                "summary": "Record location-tracking consent",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/GrantPermissionRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/tracking/geofence": {
            "get": {
                "tags": ["Tracking"],
                "summary": "Active geofence",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "No active geofence"}
                }
            },
            "put": {
                "tags": ["Tracking"],
                "summary": "Replace the active geofence",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SetGeofenceRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/tracking/occupancy": {
            "get": {
                "tags": ["Tracking"],
                "summary": "Live occupancy snapshot",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/tracking/occupancy/rebuild": {
            "post": {
                "tags": ["Tracking"],
                "summary": "Rebuild live occupancy from the ledger",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/tracking/logs": {
            "get": {
                "tags": ["Tracking"],
                "summary": "Paginated occupancy ledger",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "student_id", "in": "query", "type": "string"},
                    {"name": "kind", "in": "query", "type": "string", "enum": ["entry", "exit"]},
                    {"name": "from", "in": "query", "type": "string"},
                    {"name": "to", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "page_size", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/tracking/logs/export": {
            "get": {
                "tags": ["Tracking"],
                "summary": "Export the occupancy ledger",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]},
                    {"name": "kind", "in": "query", "type": "string"},
                    {"name": "from", "in": "query", "type": "string"},
                    {"name": "to", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "File download"}
                }
            }
        },
        "/tracking/logs/export/archive": {
            "post": {
                "tags": ["Tracking"],
                "summary": "Archive an export and return a signed download token",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]},
                    {"name": "kind", "in": "query", "type": "string"},
                    {"name": "from", "in": "query", "type": "string"},
                    {"name": "to", "in": "query", "type": "string"}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/tracking/exports/{token}": {
            "get": {
                "tags": ["Tracking"],
                "summary": "Download an archived export",
                "parameters": [
                    {"name": "token", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "File download"},
                    "404": {"description": "Unknown or expired token"}
                }
            }
        },
        "/tracking/analytics": {
            "get": {
                "tags": ["Tracking"],
                "summary": "Daily presence analytics",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "date", "in": "query", "type": "string", "format": "date"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
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
        "RefreshTokenRequest": {
            "type": "object",
            "properties": {
                "refresh_token": {"type": "string"}
            },
            "required": ["refresh_token"]
        },
        "CreateStudentRequest": {
            "type": "object",
            "properties": {
                "register_number": {"type": "string"},
                "full_name": {"type": "string"},
                "department": {"type": "string"},
                "year": {"type": "integer"},
                "email": {"type": "string"},
                "phone": {"type": "string"}
            },
            "required": ["register_number", "full_name", "department"]
        },
        "UpdateStudentRequest": {
            "type": "object",
            "properties": {
                "full_name": {"type": "string"},
                "department": {"type": "string"},
                "year": {"type": "integer"},
                "email": {"type": "string"},
                "phone": {"type": "string"},
                "active": {"type": "boolean"}
            }
        },
        "CreateBookRequest": {
            "type": "object",
            "properties": {
                "isbn": {"type": "string"},
                "title": {"type": "string"},
                "author": {"type": "string"},
                "category": {"type": "string"},
                "total_copies": {"type": "integer"}
            },
            "required": ["title", "author", "total_copies"]
        },
        "UpdateBookRequest": {
            "type": "object",
            "properties": {
                "title": {"type": "string"},
                "author": {"type": "string"},
                "category": {"type": "string"},
                "total_copies": {"type": "integer"}
            }
        },
        "IssueBookRequest": {
            "type": "object",
            "properties": {
                "book_id": {"type": "string"},
                "student_id": {"type": "string"}
            },
            "required": ["book_id", "student_id"]
        },
        "CreateBookingRequest": {
            "type": "object",
            "properties": {
                "student_id": {"type": "string"},
                "resource_type": {"type": "string", "enum": ["SEAT", "ROOM"]},
                "resource_id": {"type": "string"},
                "starts_at": {"type": "string", "format": "date-time"},
                "ends_at": {"type": "string", "format": "date-time"}
            },
            "required": ["resource_type", "resource_id", "starts_at", "ends_at"]
        },
        "UpdateLocationRequest": {
            "type": "object",
            "properties": {
                "student_id": {"type": "string"},
                "register_number": {"type": "string"},
                "latitude": {"type": "number"},
                "longitude": {"type": "number"},
                "accuracy_meters": {"type": "number"},
                "recorded_at": {"type": "string", "format": "date-time"},
                "device_info": {"type": "string"}
            },
            "required": ["latitude", "longitude"]
        },
        "GrantPermissionRequest": {
            "type": "object",
            "properties": {
                "student_id": {"type": "string"},
                "granted": {"type": "boolean"}
            },
            "required": ["granted"]
        },
        "SetGeofenceRequest": {
            "type": "object",
            "properties": {
                "name": {"type": "string"},
                "center_latitude": {"type": "number"},
                "center_longitude": {"type": "number"},
                "radius_meters": {"type": "integer"}
            },
            "required": ["name", "center_latitude", "center_longitude", "radius_meters"]
        },
        "OccupancySnapshot": {
            "type": "object",
            "properties": {
                "count": {"type": "integer"},
                "as_of": {"type": "string", "format": "date-time"},
                "occupants": {"type": "array", "items": {"$ref": "#/definitions/Occupant"}}
            }
        },
        "Occupant": {
            "type": "object",
            "properties": {
                "student_id": {"type": "string"},
                "register_number": {"type": "string"},
                "full_name": {"type": "string"},
                "department": {"type": "string"},
                "entered_at": {"type": "string", "format": "date-time"}
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
