package services

import (
	"context"
	"fmt"
	"time"

	"socialflow/utils"

	"github.com/robfig/cron/v3"
)

// Scheduler periodically triggers the dispatcher. Overlapping runs are fine;
// per-post claiming makes concurrent cycles safe.
type Scheduler struct {
	cron       *cron.Cron
	dispatcher *Dispatcher
	interval   time.Duration
}

func NewScheduler(dispatcher *Dispatcher, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Scheduler{
		cron:       cron.New(),
		dispatcher: dispatcher,
		interval:   interval,
	}
}

func (s *Scheduler) Start() error {
	_, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.interval), s.runCycle)
	if err != nil {
		return err
	}

	s.cron.Start()
	utils.Infof("scheduler started, dispatching every %s", s.interval)
	return nil
}

func (s *Scheduler) runCycle() {
	if _, err := s.dispatcher.ReleaseStuckPosts(); err != nil {
		utils.Errorf("error releasing stuck posts: %v", err)
	}

	report, err := s.dispatcher.DispatchDuePosts(context.Background(), time.Now())
	if err != nil {
		utils.Errorf("dispatch cycle error: %v", err)
		return
	}

	if report.Processed > 0 {
		utils.Infof("dispatch cycle processed %d post(s)", report.Processed)
	}
}

func (s *Scheduler) Stop() {
	s.cron.Stop()
	utils.Infof("scheduler stopped")
}
