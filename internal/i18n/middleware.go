package i18n

import "net/http"

// Middleware injects a localizer into every request context. The request's
// Accept-Language header is honored; lang is the fallback.
func Middleware(lang string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			preferred := lang
			if al := r.Header.Get("Accept-Language"); al != "" {
				preferred = Match(al).String()
			}
			ctx := WithLocalizer(r.Context(), NewLocalizer(preferred, lang))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
