package middleware

import (
	"net/http"

	"github.com/cloo-solutions/campaignkb/internal/api"
	"github.com/cloo-solutions/campaignkb/internal/domain"
)

// RequireFeature rejects every request with ErrFeatureDisabled unless enabled.
func RequireFeature(enabled bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if enabled {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			api.HandleError(w, domain.ErrFeatureDisabled)
		})
	}
}
