package cron

import (
	"Tradelink/internal/job"
	log "log/slog"

	"github.com/robfig/cron/v3"
)

type Manager struct {
	engine          *cron.Cron
	mediaCleanupJob *job.MediaCleanupJob
	mediaSpec       string
}

func NewCronManager(mediaCleanupJob *job.MediaCleanupJob, mediaSpec string) *Manager {
	if mediaSpec == "" {
		mediaSpec = "0 0 * * * *"
	}
	return &Manager{
		engine:          cron.New(cron.WithSeconds(), cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DefaultLogger))),
		mediaCleanupJob: mediaCleanupJob,
		mediaSpec:       mediaSpec,
	}
}

// InitCron 注册并启动全部定时任务
func InitCron(mgr *Manager) error {
	if err := mgr.RegisterJobs(); err != nil {
		return err
	}
	mgr.Start()
	return nil
}

// RegisterJobs 注册定时任务
func (s *Manager) RegisterJobs() error {
	if _, err := s.engine.AddJob(s.mediaSpec, s.mediaCleanupJob); err != nil {
		return err
	}
	return nil
}

func (s *Manager) Start() {
	log.Info("Cron 定时任务引擎启动", "media_cleanup", s.mediaSpec)
	s.engine.Start()
}

func (s *Manager) Stop() {
	log.Info("Cron 定时任务引擎停止")
	<-s.engine.Stop().Done()
}
