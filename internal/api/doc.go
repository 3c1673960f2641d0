// Package api provides the optional local REST shell: a Gin-based HTTP
// surface over the memory, session, and decay services for callers that
// prefer HTTP to the handle ABI.
package api
