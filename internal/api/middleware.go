package recycle

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var httpLabels = []string{"method", "route", "code"}

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recycle_http_requests_total",
		Help: "Кол-во HTTP запросов",
	}, httpLabels)

	httpRequestsError = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recycle_http_errors_total",
		Help: "Кол-во запросов с кодом 4xx/5xx",
	}, httpLabels)

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "recycle_http_request_duration_seconds",
		Help:    "Продолжительность HTTP запросов",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, httpLabels)
)

// codeRecorder запоминает код ответа
type codeRecorder struct {
	http.ResponseWriter
	code int
}

func (c *codeRecorder) WriteHeader(code int) {
	c.code = code
	c.ResponseWriter.WriteHeader(code)
}

// routeName - шаблон маршрута вместо пути, чтобы id кошельков не плодили серии
func routeName(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

// MiddlewareMetrics - метрики по маршрутам, 5xx пишутся в лог
func MiddlewareMetrics(logger *zap.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			began := time.Now()
			rec := &codeRecorder{ResponseWriter: w, code: http.StatusOK}
			next.ServeHTTP(rec, r)
			elapsed := time.Since(began)

			route := routeName(r)
			labels := prometheus.Labels{"method": r.Method, "route": route, "code": strconv.Itoa(rec.code)}
			httpRequestsTotal.With(labels).Inc()
			httpRequestDuration.With(labels).Observe(elapsed.Seconds())
			if rec.code < http.StatusBadRequest {
				return
			}
			httpRequestsError.With(labels).Inc()
			if rec.code >= http.StatusInternalServerError {
				logger.Warn("http request failed",
					zap.String("method", r.Method),
					zap.String("route", route),
					zap.Int("code", rec.code),
					zap.Duration("elapsed", elapsed))
			}
		})
	}
}
