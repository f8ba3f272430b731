package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/fablecast-backend/internal/audiogen"
	"github.com/yungbote/fablecast-backend/internal/clients/gcp"
	"github.com/yungbote/fablecast-backend/internal/clients/openai"
	"github.com/yungbote/fablecast-backend/internal/clients/redis"
	"github.com/yungbote/fablecast-backend/internal/data/db"
	"github.com/yungbote/fablecast-backend/internal/data/repos"
	apphttp "github.com/yungbote/fablecast-backend/internal/http"
	"github.com/yungbote/fablecast-backend/internal/http/handlers"
	"github.com/yungbote/fablecast-backend/internal/ingestion/chunkproc"
	"github.com/yungbote/fablecast-backend/internal/ingestion/extractor"
	"github.com/yungbote/fablecast-backend/internal/jobs/pipelines"
	"github.com/yungbote/fablecast-backend/internal/jobs/runtime"
	"github.com/yungbote/fablecast-backend/internal/jobs/worker"
	"github.com/yungbote/fablecast-backend/internal/platform/dbctx"
	"github.com/yungbote/fablecast-backend/internal/platform/env"
	"github.com/yungbote/fablecast-backend/internal/platform/logger"
	"github.com/yungbote/fablecast-backend/internal/progress"
	"github.com/yungbote/fablecast-backend/internal/services"
)

func main() {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if logMode == "prod" || logMode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Postgres
	pg, err := db.NewPostgresService(log)
	if err != nil {
		log.Fatal("Postgres init failed", "error", err)
	}
	if err := pg.AutoMigrateAll(); err != nil {
		log.Fatal("Postgres auto migration failed", "error", err)
	}
	thePG := pg.DB()

	// Repos
	log.Info("Setting up repos...")
	ebookRepo := repos.NewEbookRepo(thePG, log)
	collectionRepo := repos.NewAudioCollectionRepo(thePG, log)
	audioRepo := repos.NewAudioRepo(thePG, log)
	examRepo := repos.NewExamRepo(thePG, log)
	jobRepo := repos.NewJobRunRepo(thePG, log)

	// Collaborator clients
	log.Info("Setting up clients...")
	bucket, err := gcp.NewBucketService(log)
	if err != nil {
		log.Fatal("Bucket init failed", "error", err)
	}
	vision, err := gcp.NewVision(log)
	if err != nil {
		log.Warn("Vision init failed, PDF OCR unavailable", "error", err)
	}
	tts, err := gcp.NewTextToSpeech(log)
	if err != nil {
		log.Warn("TTS init failed, tts audio method unavailable", "error", err)
	}
	llm, err := openai.NewClient(log)
	if err != nil {
		log.Fatal("OpenAI client init failed", "error", err)
	}

	// Progress bus is optional; polling still works without Redis.
	var notifier services.JobNotifier = services.NoopNotifier{}
	if bus, err := redis.NewProgressBus(log); err != nil {
		log.Warn("Redis progress bus unavailable, falling back to polling only", "error", err)
	} else {
		notifier = services.NewBusNotifier(bus, log)
	}

	// Pipeline building blocks
	extract, err := extractor.NewExtractor(bucket, vision, llm, log)
	if err != nil {
		log.Fatal("Extractor init failed", "error", err)
	}
	chunks, err := chunkproc.NewProcessor(llm, log)
	if err != nil {
		log.Fatal("Chunk processor init failed", "error", err)
	}
	synth, err := audiogen.NewSynthesizer(tts, llm, bucket, audioRepo, collectionRepo, log)
	if err != nil {
		log.Fatal("Synthesizer init failed", "error", err)
	}

	// Job registry + worker
	registry := runtime.NewRegistry()
	mustRegister(log, registry, pipelines.NewEbookExtractPipeline(ebookRepo, extract, log))
	mustRegister(log, registry, pipelines.NewAudioGeneratePipeline(ebookRepo, collectionRepo, audioRepo, chunks, synth, log))
	mustRegister(log, registry, pipelines.NewExamGeneratePipeline(ebookRepo, examRepo, chunks, log))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	jobWorker := worker.NewWorker(thePG, log, jobRepo, registry, notifier)
	jobWorker.Start(ctx)

	// Stall sweeper
	stallMin := env.GetInt("STALL_THRESHOLD_MINUTES", 60, log)
	sweeper := progress.NewSweeper(ebookRepo, collectionRepo, examRepo, time.Duration(stallMin)*time.Minute, log)
	sweeper.Start(ctx, 5*time.Minute)
	if _, err := sweeper.SweepOnce(dbctx.Context{Ctx: ctx}); err != nil {
		log.Warn("Initial stall sweep failed", "error", err)
	}

	// Services
	log.Info("Setting up services...")
	ebookSvc, err := services.NewEbookService(ebookRepo, jobRepo, bucket, log)
	if err != nil {
		log.Fatal("Ebook service init failed", "error", err)
	}
	audioSvc, err := services.NewAudioService(ebookRepo, collectionRepo, audioRepo, jobRepo, log)
	if err != nil {
		log.Fatal("Audio service init failed", "error", err)
	}
	examSvc, err := services.NewExamService(ebookRepo, examRepo, jobRepo, log)
	if err != nil {
		log.Fatal("Exam service init failed", "error", err)
	}
	jobSvc, err := services.NewJobService(jobRepo, log)
	if err != nil {
		log.Fatal("Job service init failed", "error", err)
	}

	// HTTP
	router := apphttp.NewRouter(apphttp.RouterConfig{
		Log:          log,
		EbookHandler: handlers.NewEbookHandler(ebookSvc),
		AudioHandler: handlers.NewAudioHandler(audioSvc),
		ExamHandler:  handlers.NewExamHandler(examSvc),
		JobHandler:   handlers.NewJobHandler(jobSvc),
	})

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		log.Info("Shutdown signal received")
		cancel()
	}()

	addr := ":" + env.Get("PORT", "8080", log)
	log.Info("Starting HTTP server", "addr", addr)
	if err := router.Run(addr); err != nil {
		log.Fatal("HTTP server exited", "error", err)
	}
}

func mustRegister(log *logger.Logger, registry *runtime.Registry, h runtime.Handler) {
	if err := registry.Register(h); err != nil {
		log.Fatal("Handler registration failed", "job_type", h.Type(), "error", err)
	}
}
