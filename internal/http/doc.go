// Package http exposes the live-session API on a chi router.
//
// Every endpoint answers with the JSON envelope
// {"success","data","message","error_code","errors"}. Application error kinds map
// to status codes in responder.go.
//
// Public routes:
//   - GET /healthz, GET /metrics, GET /media/{file}
//   - POST /api/v1/auth/login, /api/v1/auth/refresh, /api/v1/auth/logout (rate limited per IP)
//
// Routes behind RequireBearer, all under /api/v1:
//   - GET|POST /sessions, GET|PUT|DELETE /sessions/{id} (DELETE accepts ?cascade=true)
//   - POST /sessions/{id}/start, /end, /cancel, /join, /leave
//   - GET|POST /sessions/{id}/attendance
//   - GET|POST /sessions/{id}/recordings (POST is a multipart upload), POST /sessions/{id}/recordings/download
//   - POST /recordings/sync, GET|PATCH|DELETE /recordings/{id}, POST /recordings/{id}/repair
//   - GET|POST /users
//
// Request and response DTOs live alongside their handlers.
package http
