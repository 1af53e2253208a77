package api

import (
	"github.com/gin-gonic/gin"
	"github.com/timmy/emosense/internal/api/handler"
	"github.com/timmy/emosense/internal/api/middleware"
	"github.com/timmy/emosense/internal/logger"
)

// RouterDeps groups what the HTTP surface needs.
type RouterDeps struct {
	Analyzer   handler.Analyzer
	Summarizer handler.Summarizer
	Results    handler.ResultFinder
	Index      handler.IndexSizer
	Logger     *logger.Logger
	CORS       middleware.CORSConfig
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(deps RouterDeps, mode string) *gin.Engine {
	switch mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	log := deps.Logger
	if log == nil {
		log = logger.GetDefault()
	}

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(log))
	r.Use(middleware.CORS(deps.CORS))

	healthHandler := handler.NewHealthHandler(deps.Index)
	analysisHandler := handler.NewAnalysisHandler(deps.Analyzer, deps.Summarizer, deps.Results)

	r.GET("/health", healthHandler.Health)

	v1 := r.Group("/api/v1")
	{
		v1.POST("/analyze", analysisHandler.Analyze)
		v1.GET("/summary", analysisHandler.Summary)
		if deps.Results != nil {
			v1.GET("/analyses/:id", analysisHandler.GetAnalysis)
		}
	}

	return r
}
