package api

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"safepaw/internal/domain"
	"safepaw/internal/identity"
	"safepaw/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

type ctxKey int

const (
	principalKey ctxKey = iota
	requestIDKey
)

const (
	requestIDHeader      = "X-Request-ID"
	requestIDMetadataKey = "x-request-id"
	clientKeyUnknown     = "unknown"
)

func withPrincipal(ctx context.Context, p *models.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFrom returns the authenticated principal of the request, if any.
func PrincipalFrom(ctx context.Context) (*models.Principal, bool) {
	p, ok := ctx.Value(principalKey).(*models.Principal)
	return p, ok && p != nil
}

func actorFrom(r *http.Request) models.Actor {
	p, _ := PrincipalFrom(r.Context())
	return p.Actor()
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// HTTPAuth resolves bearer tokens to principals and applies the
// per-principal rate limit.
type HTTPAuth struct {
	verifier domain.IdentityVerifier
	limiter  *rateLimiter
	logger   *zerolog.Logger
}

func NewHTTPAuth(verifier domain.IdentityVerifier, limiter *rateLimiter, logger *zerolog.Logger) *HTTPAuth {
	return &HTTPAuth{verifier: verifier, limiter: limiter, logger: logger}
}

// Wrap requires a valid bearer token before calling next.
func (a *HTTPAuth) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.verifier == nil {
			writeError(w, http.StatusServiceUnavailable, "identity provider not configured")
			return
		}

		token, ok := identity.BearerToken(r.Header.Get("Authorization"))
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		principal, err := a.verifier.Verify(r.Context(), token)
		if err != nil {
			a.logger.Debug().Err(err).Str("request_id", requestIDFrom(r.Context())).Msg("token rejected")
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		if !a.limiter.Allow("uid:" + principal.UID) {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), principal)))
	})
}

// WrapPublic applies the rate limit by remote address only.
func (a *HTTPAuth) WrapPublic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.limiter.Allow("ip:" + remoteHost(r)) {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return clientKeyUnknown
}

func LoggingUnaryInterceptor(logger *zerolog.Logger) grpc.UnaryServerInterceptor {
	base := zerolog.Nop()
	if logger != nil {
		base = logger.With().Str("component", "grpc").Logger()
	}

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		requestID := requestIDFromMetadata(ctx)
		_ = grpc.SetHeader(ctx, metadata.Pairs(requestIDMetadataKey, requestID))

		start := time.Now()
		resp, err := handler(ctx, req)
		dur := time.Since(start)

		code := codes.OK
		if err != nil {
			code = status.Code(err)
		}

		remote := clientKeyUnknown
		if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
			remote = p.Addr.String()
		}

		base.Info().
			Str("request_id", requestID).
			Str("method", info.FullMethod).
			Str("remote", remote).
			Str("code", code.String()).
			Dur("duration", dur).
			Msg("grpc request")

		return resp, err
	}
}

func requestIDFromMetadata(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if ok {
		if vals := md.Get(requestIDMetadataKey); len(vals) > 0 {
			if id := strings.TrimSpace(vals[0]); id != "" {
				return id
			}
		}
	}
	return uuid.NewString()
}
