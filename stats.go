package ridinglookup

import "context"

// QueueStats is recomputed from scratch on every call.
type QueueStats struct {
	Total               int     `json:"total"`
	Pending             int     `json:"pending"`
	Processing          int     `json:"processing"`
	Completed           int     `json:"completed"`
	Failed              int     `json:"failed"`
	Retrying            int     `json:"retrying"`
	Batches             int     `json:"batches"`
	AverageProcessingMs float64 `json:"averageProcessingTime"`
	SuccessRate         float64 `json:"successRate"`
}

// QueueLengths are the sizes of the ID lists the coordinator keeps.
type QueueLengths struct {
	Ready      int `json:"ready"`
	Retry      int `json:"retry"`
	DeadLetter int `json:"deadLetter"`
}

// Health is a cheap read-only snapshot for liveness endpoints.
type Health struct {
	Status       string         `json:"status"`
	Stats        QueueStats     `json:"stats"`
	QueueLengths QueueLengths   `json:"queueLengths"`
	Metrics      map[string]any `json:"metrics"`
}

// computeStats runs on the actor goroutine.
func (q *JobQueueCoordinator) computeStats() QueueStats {
	stats := QueueStats{
		Total:   len(q.jobs),
		Batches: len(q.batches),
	}

	var processingTotal int64
	for _, job := range q.jobs {
		switch job.Status {
		case JobPending:
			stats.Pending++
		case JobProcessing:
			stats.Processing++
		case JobCompleted:
			stats.Completed++
			if job.ProcessingTimeMs != nil {
				processingTotal += *job.ProcessingTimeMs
			}
		case JobFailed:
			stats.Failed++
		case JobRetrying:
			stats.Retrying++
		}
	}

	if stats.Completed > 0 {
		stats.AverageProcessingMs = float64(processingTotal) / float64(stats.Completed)
	}
	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.Completed) / float64(stats.Total) * 100
	}

	return stats
}

// GetStats scans every known job and returns per-status counts.
func (q *JobQueueCoordinator) GetStats(ctx context.Context) (QueueStats, error) {
	var stats QueueStats
	err := q.actor.call(ctx, func() {
		stats = q.computeStats()
	})
	return stats, err
}

// HealthCheck reports stats, queue lengths and execution metrics.
func (q *JobQueueCoordinator) HealthCheck(ctx context.Context) (Health, error) {
	var health Health

	err := q.actor.call(ctx, func() {
		health = Health{
			Status: "healthy",
			Stats:  q.computeStats(),
			QueueLengths: QueueLengths{
				Ready:      len(q.ready),
				Retry:      len(q.retry),
				DeadLetter: len(q.deadLetter),
			},
		}
	})
	if err != nil {
		return Health{}, err
	}

	health.Metrics = q.metrics.ExportMetrics()
	return health, nil
}
