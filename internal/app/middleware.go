package app

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/Meesho/BharatMLStack/choreographer/internal/api"
	"github.com/Meesho/BharatMLStack/choreographer/pkg/metric"
	"github.com/gin-gonic/gin"
)

var requestSeq uint64

const (
	authHeaderName      = "Authorization"
	requestIDHeaderName = "X-Request-ID"
	healthPath          = "/health/self"
)

// authMiddleware accepts the token raw or as "Bearer <token>". An empty
// expected token disables the check.
func authMiddleware(expectedToken string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if expectedToken == "" || c.Request.URL.Path == healthPath {
			c.Next()
			return
		}
		providedToken := c.GetHeader(authHeaderName)
		bearerToken := "Bearer " + expectedToken
		isRawMatch := subtle.ConstantTimeCompare([]byte(providedToken), []byte(expectedToken)) == 1
		isBearerMatch := subtle.ConstantTimeCompare([]byte(providedToken), []byte(bearerToken)) == 1
		if !isRawMatch && !isBearerMatch {
			c.AbortWithStatusJSON(http.StatusUnauthorized, api.ErrorResponse{Error: "unauthorized"})
			return
		}
		c.Next()
	}
}

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(requestIDHeaderName)
		if requestID == "" {
			requestID = fmt.Sprintf("req-%d-%d", time.Now().UnixNano(), atomic.AddUint64(&requestSeq, 1))
		}
		c.Header(requestIDHeaderName, requestID)
		c.Request = c.Request.WithContext(api.WithRequestID(c.Request.Context(), requestID))
		c.Next()
	}
}

// metricsMiddleware tags by route template so path parameters do not
// explode metric cardinality.
func metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metric.ObserveAPIRequest(path, c.Request.Method, c.Writer.Status(), time.Since(start))
	}
}
