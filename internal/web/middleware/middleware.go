// Package middleware holds the HTTP middleware the API is wrapped in
package middleware

import (
	"net/http"
)

// Middleware is a function that wraps an http.Handler
type Middleware func(http.Handler) http.Handler
