package routes

import (
	"github.com/gin-gonic/gin"

	"medicare/internal/authz"
	"medicare/internal/handlers"
	"medicare/internal/middleware"
	"medicare/internal/services"
)

type Handlers struct {
	Auth    *handlers.AuthHandler
	Patient *handlers.PatientHandler
	Report  *handlers.ReportHandler
	Tokens  services.TokenService
	// OTPLimit guards send-otp; nil disables it.
	OTPLimit gin.HandlerFunc
}

// SetupRoutes mounts the API at the root and again under /api.
func SetupRoutes(r *gin.Engine, h Handlers) *gin.Engine {
	mount(&r.RouterGroup, h)
	mount(r.Group("/api"), h)
	return r
}

func mount(g *gin.RouterGroup, h Handlers) {
	// ---- public
	g.GET("/health", handlers.Health)

	auth := g.Group("/auth")
	{
		sendOTP := []gin.HandlerFunc{h.Auth.SendOTP}
		if h.OTPLimit != nil {
			sendOTP = append([]gin.HandlerFunc{h.OTPLimit}, sendOTP...)
		}
		auth.POST("/send-otp", sendOTP...)
		auth.POST("/verify-otp", h.Auth.VerifyOTP)
	}

	// ---- protected
	patients := g.Group("/patients",
		middleware.AuthMiddleware(h.Tokens),
		middleware.RequireRoles(authz.RoleDoctor),
	)
	{
		patients.GET("", h.Patient.List)
		patients.POST("", h.Patient.Create)
		patients.GET("/:id", h.Patient.Get)
		patients.PUT("/:id", h.Patient.Update)
		patients.DELETE("/:id", h.Patient.Delete)
		patients.GET("/:id/report", h.Report.Download)

		// "treatments" is the older name for visits
		for _, seg := range []string{"visits", "treatments"} {
			patients.POST("/:id/"+seg, h.Patient.AddVisit)
			patients.PUT("/:id/"+seg+"/:visitId", h.Patient.UpdateVisit)
			patients.DELETE("/:id/"+seg+"/:visitId", h.Patient.RemoveVisit)
		}
	}
}
