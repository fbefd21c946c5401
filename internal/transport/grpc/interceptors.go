package grpc

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"path"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"salonbook/backend/internal/metrics"
)

const DefaultRequestTimeout = 10 * time.Second

func RequestTimeoutInterceptor(timeout time.Duration) grpc.UnaryServerInterceptor {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if _, ok := ctx.Deadline(); ok {
			return handler(ctx, req)
		}
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		return handler(ctx, req)
	}
}

// MetricsInterceptor counts every unary call by method and status code.
func MetricsInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		resp, err := handler(ctx, req)
		metrics.IncRPC(path.Base(info.FullMethod), status.Code(err).String())
		return resp, err
	}
}

type staffCallKey struct{}

// StaffAuthInterceptor marks calls whose x-staff-token metadata matches token
// as coming from salon staff. An empty token marks nothing.
func StaffAuthInterceptor(token string) grpc.UnaryServerInterceptor {
	want := []byte(token)

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if len(want) == 0 {
			return handler(ctx, req)
		}
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			for _, got := range md.Get("x-staff-token") {
				if subtle.ConstantTimeCompare([]byte(got), want) == 1 {
					ctx = context.WithValue(ctx, staffCallKey{}, true)
					break
				}
			}
		}
		return handler(ctx, req)
	}
}

func isStaffCall(ctx context.Context) bool {
	ok, _ := ctx.Value(staffCallKey{}).(bool)
	return ok
}

type limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// writeMethods are the RPCs that take a staff lock.
var writeMethods = map[string]bool{
	FullMethod(methodBookAppointment):         true,
	FullMethod(methodRescheduleAppointment):   true,
	FullMethod(methodUpdateAppointmentStatus): true,
}

// RateLimitInterceptor caps write RPCs per caller. Callers are keyed by the
// x-client-id metadata value, falling back to the peer address.
func RateLimitInterceptor(l limiter, failOpen bool, log *slog.Logger) grpc.UnaryServerInterceptor {
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("component", "grpc.ratelimit"))

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if l == nil || !writeMethods[info.FullMethod] {
			return handler(ctx, req)
		}
		method := path.Base(info.FullMethod)
		key := method + ":" + callerKey(ctx)

		ok, err := l.Allow(ctx, key)
		if err != nil {
			log.Warn("rate limiter error", slog.Any("err", err), slog.String("rpc", method))
			if failOpen {
				return handler(ctx, req)
			}
			return nil, status.Error(codes.Unavailable, "rate limiter unavailable")
		}
		if !ok {
			metrics.IncRateLimited(method)
			log.Info("rate limit exceeded", slog.String("rpc", method), slog.String("key", key))
			return nil, status.Error(codes.ResourceExhausted, "Too many booking requests. Wait a moment and try again.")
		}
		return handler(ctx, req)
	}
}

func callerKey(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get("x-client-id"); len(values) > 0 {
			if v := strings.TrimSpace(values[0]); v != "" {
				return v
			}
		}
	}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		addr := p.Addr.String()
		if i := strings.LastIndex(addr, ":"); i > 0 {
			addr = addr[:i]
		}
		return addr
	}
	return "unknown"
}
