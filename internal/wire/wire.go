package wire

import (
	"Tradelink/internal/api"
	"Tradelink/internal/api/config"
	"Tradelink/internal/api/handler"
	"Tradelink/internal/job"
	"Tradelink/internal/pkg/cron"
	"Tradelink/internal/pkg/email"
	"Tradelink/internal/pkg/minio"
	mongoRepo "Tradelink/internal/pkg/mongo"
	"Tradelink/internal/pkg/ratelimit"
	"Tradelink/internal/pkg/security"
	"Tradelink/internal/repository"
	"Tradelink/internal/service"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"
)

// ApplicationContainer 封装了应用运行所需的所有顶级组件
type ApplicationContainer struct {
	Router  *gin.Engine
	DB      *gorm.DB
	Mongo   *mongo.Database
	CronMgr *cron.Manager
}

func BuildApplication(db *gorm.DB, mongoDB *mongo.Database, cfg *config.Config) (*ApplicationContainer, error) {
	scopeRepo := repository.NewScopeRepo(db)
	messageRepo := mongoRepo.NewChatMessageRepo(mongoDB)
	notifier := repository.NewRedisChangeNotifier()
	ledger := repository.NewRedisMediaLedger()
	objectStore := minio.NewObjectStore()
	mediaBase := minio.PublicBaseURL()

	store := repository.NewMessageStore(messageRepo, scopeRepo, notifier, repository.StoreOptions{
		SnapshotLimit: cfg.Chat.SnapshotLimit,
		PollInterval:  time.Duration(cfg.Chat.PollIntervalSec) * time.Second,
		MediaBaseURL:  mediaBase,
	})

	pipeline := service.NewAttachmentPipeline(objectStore, ledger, service.UploadLimits{
		MaxSizeBytes:        cfg.Upload.MaxSizeBytes(),
		AllowedMimePrefixes: cfg.Upload.AllowedMimePrefixes,
		ThumbnailSize:       cfg.Upload.ThumbnailSize,
		MaxConcurrent:       cfg.Upload.MaxConcurrent,
	})

	var notifierSvc service.MessageNotifier
	if cfg.Chat.NotifyEmailsEnabled {
		notifierSvc = service.NewMailNotifier(email.NewClient(cfg.Email))
	}
	composer := service.NewComposer(service.ContextIdentity{}, store, scopeRepo, pipeline, notifierSvc).WithMediaBase(mediaBase)

	chatService := service.NewChatService(store, scopeRepo, pipeline, composer, service.NewViewHub(), service.ChatOptions{
		PreviewLength:   cfg.Chat.PreviewLength,
		ReconcileWindow: time.Duration(cfg.Chat.ReconcileWindowSec) * time.Second,
	})

	writeLimiter := ratelimit.NewPool(cfg.Chat.SendRatePerSec, cfg.Chat.SendBurst)
	handlers := &api.HandlersGroup{
		ChatHandler:  handler.NewChatHandler(chatService),
		MediaHandler: handler.NewMediaHandler(chatService, cfg.Upload.MaxSizeBytes()),
		WSHandler:    handler.NewWsHandler(chatService, security.Authenticate, writeLimiter, time.Duration(cfg.Chat.WriteTimeoutSec)*time.Second),
		Authenticate: security.Authenticate,
		WriteLimiter: writeLimiter,
	}
	router := api.SetupRouter(handlers)

	mediaCleanupJob := job.NewMediaCleanupJob(ledger, objectStore, time.Duration(cfg.Cron.MediaTTLHours)*time.Hour)
	cronMgr := cron.NewCronManager(mediaCleanupJob, cfg.Cron.MediaCleanupSpec)

	return &ApplicationContainer{
		Router:  router,
		DB:      db,
		Mongo:   mongoDB,
		CronMgr: cronMgr,
	}, nil
}
