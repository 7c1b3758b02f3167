package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/linskybing/gpulab/handlers"
	"github.com/linskybing/gpulab/middleware"
	"github.com/linskybing/gpulab/repositories"
	"github.com/linskybing/gpulab/services"
)

func RegisterRoutes(r *gin.Engine, repos *repositories.Repos) {

	// init
	servicesInstance := services.New(repos)
	handlersInstance := handlers.New(servicesInstance)

	// setup
	auth := r.Group("/")
	auth.Use(middleware.JWTAuthMiddleware())
	{
		auth.GET("/ws/updates", handlersInstance.WS.Updates)

		gpus := auth.Group("/gpus")
		{
			gpus.GET("", handlersInstance.GPU.ListGPUs)
			gpus.POST("/:id/access", handlersInstance.GPU.Access)
			gpus.POST("/:id/join", handlersInstance.GPU.Join)
			gpus.POST("/:id/release", handlersInstance.GPU.Release)
		}
		students := auth.Group("/students")
		{
			students.GET("/me", handlersInstance.Student.Me)
		}
		admin := auth.Group("/admin")
		admin.Use(middleware.Professor())
		{
			admin.GET("/students", handlersInstance.Admin.ListStudents)
			admin.PUT("/students/:id/policy", handlersInstance.Admin.SetStudentPolicy)
			admin.POST("/seed", handlersInstance.Admin.Seed)
			admin.GET("/audits", handlersInstance.Admin.ListAudits)
		}
	}
}
