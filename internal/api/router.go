package api

import (
	"github.com/gin-gonic/gin"

	"github.com/lautwerk/speech_go_server/config"
	"github.com/lautwerk/speech_go_server/internal/api/handler"
	"github.com/lautwerk/speech_go_server/internal/api/middleware"
	"github.com/lautwerk/speech_go_server/internal/pkg/response"
)

type Router struct {
	jobHandler       *handler.JobHandler
	websocketHandler *handler.WebSocketHandler
	cfg              *config.Config
}

func NewRouter(
	jobHandler *handler.JobHandler,
	websocketHandler *handler.WebSocketHandler,
	cfg *config.Config,
) *Router {
	return &Router{
		jobHandler:       jobHandler,
		websocketHandler: websocketHandler,
		cfg:              cfg,
	}
}

// Setup wires the routes. The paths match what the web client already
// calls, so they sit at the root rather than under a version prefix.
func (r *Router) Setup() *gin.Engine {
	if r.cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.CORS(r.cfg.CORS))

	engine.GET("/", func(c *gin.Context) {
		response.Success(c, gin.H{"message": "Speech processing API"})
	})

	engine.POST("/upload", r.jobHandler.Upload)
	engine.POST("/start-processing/:id", r.jobHandler.Start)
	engine.GET("/status/:id", r.jobHandler.Status)
	engine.POST("/reprocess/:id", r.jobHandler.Reprocess)
	engine.POST("/use-sample", r.jobHandler.UseSample)
	engine.GET("/sample.wav", r.jobHandler.SampleFile)

	if r.websocketHandler != nil {
		engine.GET("/ws", r.websocketHandler.Handle)
	}

	return engine
}
