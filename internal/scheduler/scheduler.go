// Package scheduler triggers a daily crawl of every supported city.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"kvartometr/server/config"
	"kvartometr/server/internal/models"
	"kvartometr/server/internal/pipeline"
)

// Scheduler runs crawls once per day at the configured hour. Cities run
// sequentially under a job mutex so a manual API crawl and a scheduled
// one never fight over the same sources.
type Scheduler struct {
	pipeline *pipeline.Service
	logger   *logrus.Logger
	hour     int
	stopChan chan struct{}
	wg       sync.WaitGroup
	jobMutex sync.Mutex
}

// NewScheduler creates a scheduler firing at the given hour (0-23).
func NewScheduler(pipe *pipeline.Service, hour int, logger *logrus.Logger) *Scheduler {
	return &Scheduler{
		pipeline: pipe,
		logger:   logger,
		hour:     hour,
		stopChan: make(chan struct{}),
	}
}

// Start begins the scheduling loop.
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.run()
}

func (s *Scheduler) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case t := <-ticker.C:
			if t.Hour() == s.hour && t.Minute() == 0 {
				s.runAllCities()
			}
		}
	}
}

// runAllCities crawls every supported city sequentially.
func (s *Scheduler) runAllCities() {
	s.jobMutex.Lock()
	defer s.jobMutex.Unlock()

	s.logger.Info("Starting scheduled crawl run")
	for _, city := range config.GetCityCodes() {
		s.runCity(city)
	}
	s.logger.Info("Completed scheduled crawl run")
}

func (s *Scheduler) runCity(city models.City) {
	log := s.logger.WithField("city", city)
	log.Info("Starting crawl job")

	summary, err := s.pipeline.Run(context.Background(), city)
	if err != nil {
		log.WithError(err).Error("Crawl job failed")
		return
	}

	log.WithField("state", summary.State).Info("Crawl job completed")
}

// Stop gracefully stops the scheduler. A crawl already in flight
// finishes first.
func (s *Scheduler) Stop() {
	close(s.stopChan)
	s.wg.Wait()
}
