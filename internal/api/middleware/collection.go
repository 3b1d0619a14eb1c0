package middleware

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

// CollectionKey is the context key for the index collection name.
const CollectionKey contextKey = "collection"

// DefaultCollection is used when the request names none.
const DefaultCollection = "default"

// CollectionExtractor resolves the index collection a request targets.
// It checks the X-Collection header, then the collection query parameter,
// and falls back to "default". Validation is left to the handlers.
func CollectionExtractor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimSpace(r.Header.Get("X-Collection"))
		if name == "" {
			name = strings.TrimSpace(r.URL.Query().Get("collection"))
		}
		if name == "" {
			name = DefaultCollection
		}

		ctx := context.WithValue(r.Context(), CollectionKey, name)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetCollection retrieves the collection name from the request context.
func GetCollection(ctx context.Context) string {
	if v, ok := ctx.Value(CollectionKey).(string); ok {
		return v
	}
	return DefaultCollection
}
