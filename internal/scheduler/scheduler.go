package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fachebot/meeting-brief/internal/config"
	"github.com/fachebot/meeting-brief/internal/logger"
	"github.com/robfig/cron/v3"
)

// purger 按时间删除过期记录（简报、使用日志）
type purger interface {
	DeleteBefore(ctx context.Context, before time.Time) (int, error)
}

type Scheduler struct {
	cron   *cron.Cron
	briefs purger
	usage  purger
	config *config.Retention
	now    func() time.Time
	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
	wg     sync.WaitGroup
}

// locUTC UTC 标准时间（UTC）
var locUTC = time.UTC

func NewScheduler(briefs, usage purger, cfg *config.Retention) *Scheduler {
	return &Scheduler{
		cron:   cron.New(cron.WithLocation(locUTC)),
		briefs: briefs,
		usage:  usage,
		config: cfg,
		now:    time.Now,
	}
}

// Start 启动调度器
func (s *Scheduler) Start() error {
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.mu.Unlock()

	if s.config.Days <= 0 {
		logger.Infof("[Scheduler] 未启用数据清理")
		return nil
	}

	// 注册清理任务
	_, err := s.cron.AddFunc(s.config.Cron, s.runCleanup)
	if err != nil {
		return fmt.Errorf("注册清理任务失败: %w", err)
	}

	s.cron.Start()
	logger.Infof("[Scheduler] 调度器已启动，清理任务: %s，保留 %d 天", s.config.Cron, s.config.Days)

	// 启动时先清理一次
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runCleanup()
	}()

	return nil
}

// Stop 停止调度器
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	ctx := s.cron.Stop()
	<-ctx.Done()
	s.wg.Wait()
	logger.Infof("[Scheduler] 调度器已停止")
}

func (s *Scheduler) runCleanup() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	s.cleanup(ctx)
}

// cutoff 保留天数之前的零点（UTC）
func (s *Scheduler) cutoff() time.Time {
	cutoffDate := s.now().In(locUTC).AddDate(0, 0, -s.config.Days)
	return time.Date(cutoffDate.Year(), cutoffDate.Month(), cutoffDate.Day(), 0, 0, 0, 0, locUTC)
}

// cleanup 执行简报与使用日志清理
func (s *Scheduler) cleanup(ctx context.Context) {
	cutoffDate := s.cutoff()
	logger.Infof("[Scheduler] 开始清理 %s 之前的数据", cutoffDate.Format("2006-01-02"))

	deleted, err := s.briefs.DeleteBefore(ctx, cutoffDate)
	if err != nil {
		logger.Errorf("[Scheduler] 清理简报失败: %v", err)
	} else {
		logger.Infof("[Scheduler] 已清理 %d 条简报", deleted)
	}

	deleted, err = s.usage.DeleteBefore(ctx, cutoffDate)
	if err != nil {
		logger.Errorf("[Scheduler] 清理使用日志失败: %v", err)
	} else {
		logger.Infof("[Scheduler] 已清理 %d 条使用日志", deleted)
	}
}
