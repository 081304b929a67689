// Package api provides OpenAPI/Swagger documentation for the PromptGate API.
//
// This package contains the request/response DTOs and related documentation
// for the PromptGate HTTP API.
//
// # API Overview
//
// PromptGate provides a RESTful API for:
//   - Budget approval and actual-usage settlement
//   - Daily/monthly usage, remaining budget and projection queries
//   - Threshold alert history and a live WebSocket alert feed
//   - Multi-strategy prompt optimization
//   - Runtime budget/cost configuration updates
//   - Health monitoring and metrics
//
// # Authentication
//
// Most API endpoints require authentication via the X-API-Key header:
//
//	X-API-Key: your-api-key
//
// Bearer tokens (JWT HS256/RS256) are accepted on the same endpoints when
// JWT verification is configured.
//
// # Base URL
//
// The default base URL for the API is:
//
//	http://localhost:8080
//
// # OpenAPI Specification
//
// To regenerate Swagger documentation using swag:
//
//	swag init -g cmd/promptgate/main.go -o api --parseDependency --parseInternal
package api
