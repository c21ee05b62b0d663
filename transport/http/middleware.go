package http

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/layer-3/gatekeeper/internal/logger"
	"github.com/layer-3/gatekeeper/service"
	"go.uber.org/zap"
)

const (
	TokenCookie     = "token"
	RequestIDHeader = "X-Request-ID"

	requestKey = "gatekeeper.request"
)

// RequestFrom returns the gate state of the current request, creating it
// from the Authorization header, the token cookie and the client IP.
func RequestFrom(c *gin.Context) *service.Request {
	if v, ok := c.Get(requestKey); ok {
		if req, ok := v.(*service.Request); ok {
			return req
		}
	}

	cookie, _ := c.Cookie(TokenCookie)
	req := &service.Request{
		Token:         service.ExtractToken(c.GetHeader("Authorization"), cookie),
		ClientAddress: c.ClientIP(),
	}
	c.Set(requestKey, req)
	return req
}

// GateMiddleware turns gates into gin middleware
type GateMiddleware struct {
	responder *responder
}

func NewGateMiddleware(lg *zap.Logger, rec Recorder) *GateMiddleware {
	return &GateMiddleware{responder: newResponder(lg, rec)}
}

// Require runs gates in order and aborts with the first failure.
func (m *GateMiddleware) Require(gates ...service.Gate) gin.HandlerFunc {
	pipeline := service.Pipeline(gates)
	return func(c *gin.Context) {
		req := RequestFrom(c)
		req.Params = make(map[string]string, len(c.Params))
		for _, p := range c.Params {
			req.Params[p.Key] = p.Value
		}

		if err := pipeline.Run(c.Request.Context(), req); err != nil {
			m.responder.fail(c, err)
			return
		}
		c.Next()
	}
}

// RequestID tags the request context with an ID, reusing the caller's.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		c.Request = c.Request.WithContext(logger.WithRequestID(c.Request.Context(), id))
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// RequestLogger logs every request once it completes.
func RequestLogger(lg *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", logger.MaskIP(c.ClientIP())),
		}
		if req, ok := c.Get(requestKey); ok {
			if r, ok := req.(*service.Request); ok && r.Identity != nil {
				fields = append(fields, zap.String("user_id", r.Identity.UserID))
			}
		}

		reqLog := logger.WithContext(c.Request.Context(), lg)
		switch status := c.Writer.Status(); {
		case status >= 500:
			reqLog.Error("request", fields...)
		case status >= 400:
			reqLog.Warn("request", fields...)
		default:
			reqLog.Info("request", fields...)
		}
	}
}

// Metrics records the outcome and latency of every request.
func Metrics(rec Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		rec.ObserveRequest(c.Request.Method, c.FullPath(), c.Writer.Status(), time.Since(start))
	}
}
