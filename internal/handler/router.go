package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/trustteams/trustteams-api/internal/middleware"
	"github.com/trustteams/trustteams-api/internal/models"
	"github.com/trustteams/trustteams-api/internal/repository"
)

// Handlers groups every HTTP handler for route registration.
type Handlers struct {
	Auth          *AuthHandler
	Opportunities *OpportunityHandler
	Applications  *ApplicationHandler
	Universities  *UniversityHandler
	Academic      *AcademicHandler
	Students      *StudentHandler
	ICM           *ICMHandler
	Metrics       *MetricsHandler
}

// RegisterRoutes attaches the whole API surface under the prefix. Public
// routes come first; everything else resolves the caller through the
// X-User-ID identity middleware.
func RegisterRoutes(r *gin.Engine, prefix string, h Handlers, users *repository.UserRepository) {
	api := r.Group(prefix)

	// Public surface.
	api.POST("/auth/signup", h.Auth.Signup)
	api.POST("/auth/login", h.Auth.Login)
	api.GET("/auth/verify-email/:token", h.Auth.VerifyEmail)
	api.POST("/auth/resend-verification", h.Auth.ResendVerification)

	api.GET("/opportunities", h.Opportunities.List)
	api.GET("/opportunities/:id", h.Opportunities.Get)
	api.GET("/opportunities/:id/audit", h.Opportunities.Audit)
	// Intended for a scheduled caller; idempotent, so exposure is harmless.
	api.POST("/opportunities/auto-close-expired", h.Opportunities.CloseExpired)

	api.GET("/universities", h.Universities.List)

	// Authenticated surface.
	authed := api.Group("", middleware.Identity(users))

	authed.GET("/auth/me", h.Auth.Me)
	authed.PUT("/auth/profile", h.Auth.UpdateProfile)

	authed.POST("/opportunities", h.Opportunities.Create)
	authed.PUT("/opportunities/:id", h.Opportunities.Update)
	authed.DELETE("/opportunities/:id", middleware.RequireRoles(models.RoleAdmin), h.Opportunities.Delete)

	authed.POST("/applications/apply", middleware.RequireRoles(models.RoleStudent), h.Applications.Apply)
	authed.GET("/applications/opportunity/:id", h.Applications.ListForOpportunity)
	authed.GET("/applications/student/:id", h.Applications.ListForStudent)
	authed.PUT("/applications/:id/status", middleware.RequireRoles(models.RoleAcademicLeader, models.RoleManager), h.Applications.UpdateStatus)
	authed.PUT("/applications/:id/withdraw", middleware.RequireRoles(models.RoleStudent), h.Applications.Withdraw)

	authed.POST("/universities", middleware.RequireRoles(models.RoleAdmin), h.Universities.Create)

	university := authed.Group("/university", middleware.RequireRoles(models.RoleUniversityAdmin))
	university.GET("/stats", h.Universities.Stats)
	university.GET("/registrations", h.Universities.Registrations)
	university.PUT("/registrations/:id", h.Universities.Decide)
	university.GET("/members", h.Universities.Members)
	university.GET("/members/:id", h.Universities.Member)
	university.PUT("/members/:id", h.Universities.UpdateMember)
	university.DELETE("/members/:id", h.Universities.DeleteMember)

	academic := authed.Group("/academic", middleware.RequireRoles(models.RoleAcademicLeader))
	academic.GET("/opportunities", h.Academic.MyOpportunities)
	academic.POST("/opportunities", h.Academic.CreateOpportunity)
	academic.GET("/students", h.Academic.MyStudents)
	academic.DELETE("/students/:id", h.Academic.DeleteStudent)

	student := authed.Group("/student", middleware.RequireRoles(models.RoleStudent))
	student.GET("/profile", h.Students.GetProfile)
	student.PUT("/profile", h.Students.UpdateProfile)

	icm := authed.Group("/icm", middleware.RequireRoles(models.RoleManager))
	icm.GET("/stats", h.ICM.Stats)
	icm.GET("/opportunities", h.ICM.MyOpportunities)
	icm.GET("/opportunities/:id/applicants", h.ICM.Applicants)
	icm.GET("/opportunities/:id/applicants/export", h.ICM.ExportApplicants)
	icm.GET("/profile", h.ICM.CompanyProfile)
	icm.PUT("/profile", h.ICM.UpdateCompanyProfile)
}
