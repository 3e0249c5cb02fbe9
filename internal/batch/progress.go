package batch

import (
	"sync"

	"eutrials/internal/logger"
	"eutrials/internal/models"
)

// progress logs completed documents every stepPercent of the total and on
// completion.
type progress struct {
	log      *logger.Logger
	mu       sync.Mutex
	total    int
	interval int
	done     int
	failed   int
}

func newProgress(log *logger.Logger, total, stepPercent int) *progress {
	if stepPercent < 1 {
		stepPercent = 5
	}

	// ceil(total * step / 100), at least one document.
	interval := max((total*stepPercent+99)/100, 1)

	return &progress{log: log, total: total, interval: interval}
}

func (p *progress) step(res models.FileResult) (logged bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.done++
	if res.State == models.StateFailed {
		p.failed++
	}

	if p.done%p.interval != 0 && p.done != p.total {
		return false
	}

	p.log.Info("batch progress",
		"processed", p.done,
		"total", p.total,
		"percent", p.done*100/p.total,
		"failed", p.failed,
	)

	return true
}
