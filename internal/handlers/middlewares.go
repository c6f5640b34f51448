package handlers

import (
	"log"
	"net/http"
	"strconv"
	"time"

	limiter "github.com/ulule/limiter/v3"
	stdlib "github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	memory "github.com/ulule/limiter/v3/drivers/store/memory"
	"github.com/uptrace/bunrouter"
)

// limiter middleware pointer
var limiterMiddleware *stdlib.Middleware

// initLimiter builds the rate limiter from a formatted period like "100-S".
func initLimiter(period string) {
	rate, err := limiter.NewRateFromFormatted(period)
	if err != nil {
		panic(err)
	}
	store := memory.NewStore()
	limiterMiddleware = stdlib.NewMiddleware(limiter.New(store, rate))
}

// enableCORS allows the embedded browser page to call the API from any
// origin.
func enableCORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

// responseWriter is a minimal wrapper for http.ResponseWriter that allows
// the written HTTP status code to be captured for logging.
type responseWriter struct {
	http.ResponseWriter
	status int
}

func wrapResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w}
}

func (w *responseWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

// loggingMiddleware logs every request with its status and duration.
func loggingMiddleware(next bunrouter.HandlerFunc) bunrouter.HandlerFunc {
	return func(w http.ResponseWriter, req bunrouter.Request) error {
		start := time.Now()
		wrapped := wrapResponseWriter(w)
		err := next(wrapped, req)
		status := wrapped.status
		if status == 0 { // the status code was not set, i.e. everything is fine
			status = http.StatusOK
		}
		log.Printf("%s %d %s %s [req: %v]",
			req.Proto, status, req.Method, req.URL.Path, time.Since(start))
		return err
	}
}

// limitMiddleware applies the rate limiter to every request, based on
// https://github.com/ulule/limiter/blob/master/drivers/middleware/stdlib/middleware.go
func limitMiddleware(next bunrouter.HandlerFunc) bunrouter.HandlerFunc {
	return func(w http.ResponseWriter, req bunrouter.Request) error {
		r := req.Request
		key := limiterMiddleware.KeyGetter(r)
		if limiterMiddleware.ExcludedKey != nil && limiterMiddleware.ExcludedKey(key) {
			return next(w, req)
		}

		lctx, err := limiterMiddleware.Limiter.Get(r.Context(), key)
		if err != nil {
			limiterMiddleware.OnError(w, r, err)
			return err
		}

		w.Header().Add("X-RateLimit-Limit", strconv.FormatInt(lctx.Limit, 10))
		w.Header().Add("X-RateLimit-Remaining", strconv.FormatInt(lctx.Remaining, 10))
		w.Header().Add("X-RateLimit-Reset", strconv.FormatInt(lctx.Reset, 10))

		if lctx.Reached {
			limiterMiddleware.OnLimitReached(w, r)
			return nil
		}
		return next(w, req)
	}
}
