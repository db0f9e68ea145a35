package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"medicare/internal/middleware"
)

// Envelope is the body of every JSON response.
type Envelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

func respond(c *gin.Context, status int, message string, data interface{}) {
	c.JSON(status, Envelope{Success: true, Message: message, Data: data})
}

func fail(c *gin.Context, status int, message string) {
	c.JSON(status, Envelope{Success: false, Message: message})
}

// tolerant of int / int64 / float64 / string values
func getIntFromCtx(c *gin.Context, key string) (int, bool) {
	v, ok := c.Get(key)
	if !ok {
		return 0, false
	}
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		return int(t), true
	case string:
		if n, err := strconv.Atoi(t); err == nil {
			return n, true
		}
	}
	return 0, false
}

// accountID reads the caller set by AuthMiddleware. It aborts with 401 when absent.
func accountID(c *gin.Context) (int, bool) {
	id, ok := getIntFromCtx(c, middleware.CtxAccountID)
	if !ok {
		fail(c, http.StatusUnauthorized, "Authentication required")
		c.Abort()
		return 0, false
	}
	return id, true
}

func patientIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		// a malformed id can never match a record
		fail(c, http.StatusNotFound, "Patient not found")
		return 0, false
	}
	return id, true
}
