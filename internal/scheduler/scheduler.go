package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/LJTian/NewsHarvest/internal/config"
	"github.com/LJTian/NewsHarvest/internal/harvest"
	"github.com/LJTian/NewsHarvest/internal/logger"
	"github.com/robfig/cron/v3"
)

// 单个任务的最长执行时间，防止某个数据源卡住下一轮
const jobTimeout = 30 * time.Minute

// Harvester harvest.Service 满足该接口
type Harvester interface {
	Harvest(ctx context.Context, task harvest.Task) (*harvest.Result, error)
}

type Scheduler struct {
	cron      *cron.Cron
	jobs      []config.Job
	harvester Harvester
	log       logger.Logger

	// 上一轮未结束时跳过本轮
	running sync.Mutex
}

func New(spec string, jobs []config.Job, h Harvester, log logger.Logger) (*Scheduler, error) {
	if log == nil {
		log = logger.NewNop()
	}
	c := cron.New()

	s := &Scheduler{
		cron:      c,
		jobs:      jobs,
		harvester: h,
		log:       log,
	}

	_, err := c.AddFunc(spec, s.runOnce)
	if err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	// 延迟执行首轮采集，避免与服务启动争抢资源
	const startupDelay = 15 * time.Second
	time.AfterFunc(startupDelay, func() {
		go s.runOnce()
	})
}

// Stop 停止调度，返回的 ctx 在正在执行的任务结束后 Done
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// RunOnce 对外暴露的单次执行入口，方便手动触发采集
func (s *Scheduler) RunOnce() {
	s.runOnce()
}

func (s *Scheduler) runOnce() {
	if !s.running.TryLock() {
		s.log.Warn("previous harvest round still running, skip")
		return
	}
	defer s.running.Unlock()

	if len(s.jobs) == 0 {
		s.log.Debug("no harvest jobs configured")
		return
	}
	s.log.Info("start harvest round", logger.Int("jobs", len(s.jobs)))

	var wg sync.WaitGroup
	for _, j := range s.jobs {
		job := j
		wg.Add(1)
		go func() {
			defer wg.Done()
			log := s.log.With(logger.String("source", job.Source), logger.String("term", job.Term))

			ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
			defer cancel()
			res, err := s.harvester.Harvest(ctx, harvest.Task{Request: job.Request()})
			if err != nil {
				log.Error("harvest job failed", logger.Error(err))
				return
			}
			log.Info("harvest job finished",
				logger.Int("records", res.Stats.Records),
				logger.Int("inserted", int(res.Inserted)),
			)
		}()
	}

	wg.Wait()
	s.log.Info("harvest round done")
}
