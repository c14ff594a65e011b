package cron

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"vms-recordings/recording"
	"vms-recordings/service"
)

// Syncer runs one catalog scan.
type Syncer interface {
	Sync(ctx context.Context, trigger string) (recording.SyncResult, error)
}

// SyncCron runs the recording scan on a schedule.
type SyncCron struct {
	cron     *cron.Cron
	schedule string
	svc      Syncer
	log      *zap.Logger
}

// NewSyncCron validates schedule (standard five-field spec or a descriptor
// such as "@every 15m") and prepares the job.
func NewSyncCron(schedule string, svc Syncer, log *zap.Logger) (*SyncCron, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid sync schedule %q: %w", schedule, err)
	}
	return &SyncCron{
		cron:     cron.New(),
		schedule: schedule,
		svc:      svc,
		log:      log,
	}, nil
}

// Start schedules the job and stops it when ctx is done.
func (s *SyncCron) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.schedule, func() { s.run(ctx) }); err != nil {
		return err
	}
	s.cron.Start()
	s.log.Info("[cron] recording sync scheduled", zap.String("schedule", s.schedule))

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// Stop stops the scheduler and waits for a running job to return.
func (s *SyncCron) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("[cron] recording sync stopped")
}

func (s *SyncCron) run(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	result, err := s.svc.Sync(ctx, service.TriggerCron)
	if err != nil {
		s.log.Error("[cron] recording sync failed", zap.Error(err))
		return
	}
	s.log.Info("[cron] recording sync completed",
		zap.Int("scanned", result.Scanned),
		zap.Int("synced", result.Synced),
		zap.Int("errors", result.Errors))
}
