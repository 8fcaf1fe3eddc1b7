package server

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"quorumcache/internal/metrics"
)

// RateLimiter is a token bucket shared by both front ends of a node.
type RateLimiter struct {
	limiter *rate.Limiter
	logger  *zap.Logger
	metrics *metrics.Server
}

// NewRateLimiter returns nil when qps <= 0, which disables limiting.
// A burst below 1 defaults to qps rounded up.
func NewRateLimiter(qps float64, burst int, logger *zap.Logger, m *metrics.Server) *RateLimiter {
	if qps <= 0 {
		return nil
	}
	if burst < 1 {
		burst = int(qps + 0.999)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(qps), burst),
		logger:  logger,
		metrics: m,
	}
}

func (rl *RateLimiter) allow(transport, method, client string) bool {
	if rl == nil || rl.limiter.Allow() {
		return true
	}
	rl.logger.Warn("rate limit exceeded",
		zap.String("transport", transport),
		zap.String("method", method),
		zap.String("client", client))
	if rl.metrics != nil {
		rl.metrics.RateLimited.WithLabelValues(transport).Inc()
	}
	return false
}

// UnaryServerInterceptor rejects calls over the limit with ResourceExhausted.
func (rl *RateLimiter) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if !rl.allow(transportGRPC, info.FullMethod, clientAddr(ctx)) {
			return nil, status.Errorf(codes.ResourceExhausted, "rate limit exceeded for method: %s", info.FullMethod)
		}
		return handler(ctx, req)
	}
}

// Middleware rejects requests over the limit with 429.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.allow(transportHTTP, r.Method+" "+r.URL.Path, r.RemoteAddr) {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// LoggingInterceptor logs every RPC at debug and slow ones at warn.
func LoggingInterceptor(logger *zap.Logger, slow time.Duration) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		elapsed := time.Since(start)

		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.String("client", clientAddr(ctx)),
			zap.Duration("duration", elapsed),
			zap.Stringer("code", status.Code(err)),
		}
		if slow > 0 && elapsed > slow {
			logger.Warn("slow request", fields...)
		} else {
			logger.Debug("request", fields...)
		}
		return resp, err
	}
}

func clientAddr(ctx context.Context) string {
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		return p.Addr.String()
	}
	return "unknown"
}
