// Package main 是应用程序的入口点。
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cv-smart-go/internal/config"
	"cv-smart-go/internal/handler"
	"cv-smart-go/internal/lock"
	"cv-smart-go/internal/middleware"
	"cv-smart-go/internal/pipeline"
	"cv-smart-go/internal/profile"
	"cv-smart-go/internal/provider"
	"cv-smart-go/internal/repository"
	"cv-smart-go/internal/service"
	"cv-smart-go/pkg/database"
	"cv-smart-go/pkg/kafka"
	"cv-smart-go/pkg/llm"
	"cv-smart-go/pkg/log"
	"cv-smart-go/pkg/pdf"
	"cv-smart-go/pkg/storage"

	"github.com/gin-gonic/gin"
)

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.InitWithRotation(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath, log.RotateOptions{
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	})
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 后台组件（Kafka 消费者、存储客户端）共用的生命周期
	appCtx, stopApp := context.WithCancel(context.Background())
	defer stopApp()

	// 3. 初始化数据库、Redis 和对象存储
	database.InitMySQL(cfg.Database.MySQL)
	database.InitRedis(cfg.Database.Redis)

	store, err := storage.NewObjectStore(appCtx, cfg.Storage)
	if err != nil {
		log.Fatal("对象存储初始化失败", err)
	}
	if c, ok := store.(io.Closer); ok {
		defer c.Close()
	}

	// 4. 初始化 Repository
	docRepo := repository.NewDocumentRepository(database.DB)
	progressRepo := repository.NewProgressRepository(database.RDB, cfg.Analysis.ProgressTTL)

	// 5. 初始化入库管道
	ingestOpts := pipeline.OptionsFromConfig(cfg.Storage, cfg.Ingestion)
	uploadPolicy := storage.PolicyFromConfig(cfg.Upload)
	uploader := storage.NewUploader(store, uploadPolicy)
	renderer := pdf.NewRenderer(cfg.Render)
	log.Infof("入库管道已就绪, 上传策略: %s, 截图分辨率: %d dpi", uploadPolicy, renderer.DPI())
	ingestor := pipeline.NewIngestor(
		pipeline.PDFParser{},
		pipeline.PDFRasterizer{Renderer: renderer},
		uploader,
		docRepo,
		ingestOpts,
	)

	// 6. 初始化分析依赖
	generator, err := llm.NewGenerator(appCtx, cfg.LLM)
	if err != nil {
		log.Fatal("LLM 客户端初始化失败", err)
	}
	if c, ok := generator.(io.Closer); ok {
		defer c.Close()
	}
	cvProvider := provider.NewGenerativeProvider(generator, profile.Policy{SkillsLimit: cfg.Analysis.SkillsLimit})

	var locker lock.Locker = lock.NewLocalLocker()
	if cfg.Analysis.DistributedLock {
		locker = lock.NewRedisLocker(database.RDB, cfg.Analysis.LockTTL)
	}

	var producer service.TaskProducer
	var kafkaProducer *kafka.Producer
	if cfg.Kafka.Brokers != "" {
		kafkaProducer = kafka.NewProducer(cfg.Kafka)
		producer = kafkaProducer
	} else {
		log.Warnf("未配置 Kafka brokers，分析任务将在进程内异步执行")
	}

	// 7. 初始化 Service (依赖注入)
	documentService := service.NewDocumentService(docRepo, ingestor, store, ingestOpts)
	analysisService := service.NewAnalysisService(docRepo, progressRepo, cvProvider, locker, producer,
		service.AnalysisOptions{Timeout: cfg.Analysis.EffectiveTimeout(), Background: appCtx})
	log.Infof("分析服务已就绪, Provider: %s", cvProvider.Name())

	// 8. 启动后台 Kafka 消费者
	consumerDone := make(chan struct{})
	if kafkaProducer != nil {
		consumer := kafka.NewConsumer(cfg.Kafka, analysisService, database.RDB)
		go func() {
			defer close(consumerDone)
			consumer.Run(appCtx)
		}()
	} else {
		close(consumerDone)
	}

	// 9. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	r.MaxMultipartMemory = cfg.Server.MaxUploadMB << 20
	r.Use(middleware.RequestID(), middleware.RequestLogger(), gin.Recovery())

	uploadHandler := handler.NewUploadHandler(documentService, cfg.Server.MaxUploadMB)
	documentHandler := handler.NewDocumentHandler(documentService)
	analysisHandler := handler.NewAnalysisHandler(analysisService)

	// 10. 注册路由
	r.POST("/api/process-pdf", uploadHandler.ProcessPDF)

	apiV1 := r.Group("/api/v1")
	{
		documents := apiV1.Group("/documents")
		{
			documents.GET("", documentHandler.List)
			documents.GET("/:id", documentHandler.Get)
			documents.PUT("/:id", documentHandler.Update)
			documents.DELETE("/:id", documentHandler.Delete)
			documents.GET("/:id/status", documentHandler.Status)

			documents.POST("/:id/analyze", analysisHandler.Analyze)
			documents.GET("/:id/progress", analysisHandler.Progress)
			documents.GET("/:id/progress/ws", analysisHandler.ProgressWS)
		}
	}

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("HTTP 服务器关闭失败", err)
	}

	// 停止消费者并等待当前消息处理结束
	stopApp()
	select {
	case <-consumerDone:
	case <-ctx.Done():
		log.Warnf("等待 Kafka 消费者退出超时")
	}
	if kafkaProducer != nil {
		if err := kafkaProducer.Close(); err != nil {
			log.Error("Kafka 生产者关闭失败", err)
		}
	}
	log.Info("服务已优雅关闭")
}
