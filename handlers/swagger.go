package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterSwagger serves a small Swagger UI page and the OpenAPI document for
// the sync gateway.
// - GET /swagger/index.html  -> HTML page that loads the OpenAPI JSON
// - GET /swagger/doc.json    -> machine-readable OpenAPI JSON
func RegisterSwagger(rg *gin.Engine) {
	rg.GET("/swagger/index.html", func(c *gin.Context) {
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.String(http.StatusOK, swaggerHTML)
	})

	rg.GET("/swagger/doc.json", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json", []byte(swaggerJSON))
	})
}

const swaggerHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>docsync gateway - Swagger</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@4/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@4/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/swagger/doc.json',
        dom_id: '#swagger-ui',
      })
    </script>
  </body>
</html>`

// All /api/v1 routes take "Authorization: Bearer <token>".
const swaggerJSON = `{
  "openapi": "3.0.0",
  "info": { "title": "docsync gateway", "version": "v0.1.0" },
  "paths": {
    "/api/v1/auth/me": {
      "get": { "summary": "Record and return the caller's profile", "responses": { "200": { "description": "user" }, "401": { "description": "missing or invalid token" } } }
    },
    "/api/v1/auth/logout": {
      "post": { "summary": "Revoke the presented access token", "responses": { "200": { "description": "logged out" } } }
    },
    "/api/v1/sessions": {
      "post": { "summary": "Open a sync session and load every visible document", "responses": { "201": { "description": "session token and document views" }, "503": { "description": "remote store unavailable" } } }
    },
    "/api/v1/sessions/{token}": {
      "delete": { "summary": "Close the session and release its subscriptions", "responses": { "204": { "description": "closed" }, "404": { "description": "unknown session" } } }
    },
    "/api/v1/sessions/{token}/reload": {
      "post": { "summary": "Reload the authorized document set", "responses": { "200": { "description": "document views" }, "503": { "description": "offline, cache is stale" } } }
    },
    "/api/v1/sessions/{token}/events": {
      "get": { "summary": "Server-sent render and sync events", "responses": { "200": { "description": "text/event-stream" } } }
    },
    "/api/v1/sessions/{token}/documents": {
      "get": { "summary": "List cached documents", "parameters": [{ "name": "q", "in": "query", "schema": { "type": "string" } }], "responses": { "200": { "description": "document views" } } },
      "post": { "summary": "Create a document", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"name":{"type":"string"}}}}}}, "responses": { "201": { "description": "document" } } }
    },
    "/api/v1/sessions/{token}/documents/{id}": {
      "get": { "summary": "Get one document view", "responses": { "200": { "description": "view" }, "404": { "description": "not cached" } } },
      "patch": { "summary": "Rename a document", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"name":{"type":"string"}}}}}}, "responses": { "200": { "description": "view" }, "403": { "description": "read-only" } } }
    },
    "/api/v1/sessions/{token}/documents/{id}/content": {
      "put": { "summary": "Apply a local edit", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"content":{"type":"string"}}}}}}, "responses": { "200": { "description": "view" }, "403": { "description": "read-only" }, "503": { "description": "write pending, remote unavailable" } } }
    },
    "/api/v1/sessions/{token}/documents/{id}/collaborators": {
      "put": { "summary": "Replace the collaborator list (owner only)", "responses": { "200": { "description": "view" }, "403": { "description": "not the owner" }, "409": { "description": "integrity violation" } } }
    },
    "/api/v1/sessions/{token}/documents/{id}/subscription": {
      "post": { "summary": "Subscribe to remote changes", "responses": { "200": { "description": "view" } } },
      "delete": { "summary": "Stop receiving remote changes", "responses": { "200": { "description": "view" } } }
    },
    "/api/v1/sessions/{token}/documents/{id}/retry": {
      "post": { "summary": "Retry a failed write", "responses": { "200": { "description": "view" } } }
    },
    "/health": { "get": { "summary": "Liveness check", "responses": { "200": { "description": "healthy" } } } },
    "/ready": { "get": { "summary": "Readiness check", "responses": { "200": { "description": "ready" }, "503": { "description": "not ready" } } } }
  }
}`
