package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/lautwerk/speech_go_server/config"
	"github.com/lautwerk/speech_go_server/internal/api"
	"github.com/lautwerk/speech_go_server/internal/api/handler"
	"github.com/lautwerk/speech_go_server/internal/database"
	"github.com/lautwerk/speech_go_server/internal/model"
	"github.com/lautwerk/speech_go_server/internal/pkg/audio"
	"github.com/lautwerk/speech_go_server/internal/pkg/cron"
	"github.com/lautwerk/speech_go_server/internal/pkg/oss"
	"github.com/lautwerk/speech_go_server/internal/pkg/pubsub"
	"github.com/lautwerk/speech_go_server/internal/pkg/ws"
	"github.com/lautwerk/speech_go_server/internal/provider"
	"github.com/lautwerk/speech_go_server/internal/provider/allosaurus"
	"github.com/lautwerk/speech_go_server/internal/provider/elevenlabs"
	"github.com/lautwerk/speech_go_server/internal/provider/mistral"
	"github.com/lautwerk/speech_go_server/internal/provider/mock"
	"github.com/lautwerk/speech_go_server/internal/service"
	"github.com/lautwerk/speech_go_server/internal/store"
	"github.com/lautwerk/speech_go_server/internal/worker"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Job store: in-memory by default, MySQL when configured.
	var jobStore store.JobStore
	switch cfg.Store.Driver {
	case "mysql":
		db, err := database.NewMySQL(&cfg.Database)
		if err != nil {
			log.Fatalf("Failed to connect database: %v", err)
		}
		jobStore, err = store.NewGormStore(db)
		if err != nil {
			log.Fatalf("Failed to init job store: %v", err)
		}
		log.Println("Job store: mysql")
	default:
		jobStore = store.NewMemoryStore()
		log.Println("Job store: memory")
	}

	// Redis progress channel (optional).
	var publisher *pubsub.Publisher
	var subscriber *pubsub.Subscriber
	if cfg.Redis.Enabled {
		rdb, err := database.NewRedis(&cfg.Redis)
		if err != nil {
			log.Fatalf("Failed to connect redis: %v", err)
		}
		publisher = pubsub.NewPublisher(rdb)
		subscriber = pubsub.NewSubscriber(rdb)
		log.Println("Redis connected")
	}

	// Report archive (optional).
	var ossClient *oss.Client
	if cfg.OSS.Endpoint != "" && cfg.OSS.AccessKeyID != "" {
		ossClient, err = oss.NewClient(&cfg.OSS)
		if err != nil {
			log.Printf("Warning: Failed to init OSS client: %v", err)
		} else {
			log.Println("OSS client initialized")
		}
	}

	audioStore, err := audio.NewStore(cfg.Upload.TempDir, cfg.Upload.SampleFile)
	if err != nil {
		log.Fatalf("Failed to init audio store: %v", err)
	}

	transcriber, recognizer, analyzer := buildProviders(cfg)

	pipeline := worker.NewPipeline(jobStore, transcriber, recognizer, analyzer, ossClient, publisher)
	runner := worker.NewRunner(pipeline, cfg.Pipeline.MaxWorkers, cfg.Pipeline.QueueSize)
	runner.Start()
	defer runner.Stop()

	jobService := service.NewJobService(jobStore, audioStore, runner, ossClient, cfg)

	cronService := cron.NewService(jobService, cfg.Upload.ExpireHours)
	cronService.Start()
	defer cronService.Stop()

	// WebSocket hub, fed by the Redis progress channel.
	var websocketHandler *handler.WebSocketHandler
	if subscriber != nil {
		hub := ws.NewHub()
		websocketHandler = handler.NewWebSocketHandler(hub)
		go func() {
			err := subscriber.Subscribe(context.Background(), func(msg *pubsub.ProgressMessage) {
				hub.SendToJob(msg.JobID, &ws.Message{Type: msg.Type, Data: msg})
			})
			if err != nil && err != context.Canceled {
				log.Printf("Progress subscriber stopped: %v", err)
			}
		}()
		log.Println("WebSocket hub started")
	}

	jobHandler := handler.NewJobHandler(jobService, cfg)
	router := api.NewRouter(jobHandler, websocketHandler, cfg)
	engine := router.Setup()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Printf("Server starting on %s", addr)
	if err := engine.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// buildProviders wires the real provider clients, falling back to the
// scripted mocks when credentials or endpoints are not configured so the
// pipeline stays usable in development.
func buildProviders(cfg *config.Config) (provider.Transcriber, provider.PhonemeRecognizer, provider.Analyzer) {
	var transcriber provider.Transcriber
	if cfg.Provider.ElevenLabs.APIKey != "" {
		transcriber = elevenlabs.NewClient(&cfg.Provider.ElevenLabs)
	} else {
		log.Println("Warning: no ElevenLabs API key, using mock transcriber")
		transcriber = &mock.Transcriber{Text: "This is a sample transcription of spoken content.", Segments: []model.Segment{
			{SpeakerID: "speaker_0", Content: "This is a sample transcription of spoken content."},
		}}
	}

	var recognizer provider.PhonemeRecognizer
	if cfg.Provider.Allosaurus.Endpoint != "" {
		recognizer = allosaurus.NewClient(&cfg.Provider.Allosaurus)
	} else {
		log.Println("Warning: no Allosaurus endpoint, using mock recognizer")
		recognizer = &mock.Recognizer{Text: "ð ɪ s ɪ z ə s æ m p ə l"}
	}

	var analyzer provider.Analyzer
	if cfg.Provider.Mistral.APIKey != "" {
		analyzer = mistral.NewClient(&cfg.Provider.Mistral)
	} else {
		log.Println("Warning: no Mistral API key, using mock analyzer")
		analyzer = &mock.Analyzer{Summary: "Mock analysis: configure a Mistral API key for real feedback."}
	}

	return transcriber, recognizer, analyzer
}
