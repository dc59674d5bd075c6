package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus metrics for the rate feed pipeline.
var (
	// Connection metrics
	connectionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ratefeed_connections_total",
		Help: "Total number of WebSocket connections established",
	})

	connectionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ratefeed_connections_active",
		Help: "Current number of active WebSocket connections",
	})

	// Frame metrics
	framesSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ratefeed_frames_sent_total",
		Help: "Total number of frames sent to clients",
	})

	framesReceived = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ratefeed_frames_received_total",
		Help: "Total number of frames received from clients",
	})

	rateLimitedFrames = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ratefeed_rate_limited_frames_total",
		Help: "Total number of inbound frames dropped by the per-connection rate limiter",
	})

	// Pipeline metrics
	pollTicks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ratefeed_poll_ticks_total",
		Help: "Total number of upstream poll ticks",
	})

	pollErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ratefeed_poll_errors_total",
		Help: "Total number of failed upstream fetches",
	})

	pointsProduced = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ratefeed_points_produced_total",
		Help: "Total number of rate points derived from upstream batches",
	})

	storageErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ratefeed_storage_errors_total",
		Help: "Total number of failed repository writes",
	})

	subscribersActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ratefeed_subscribers_active",
		Help: "Current number of installed subscribers",
	})

	// Worker pool metrics
	poolDroppedTasks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ratefeed_pool_dropped_tasks_total",
		Help: "Total number of tasks dropped because the pool queue was full",
	}, []string{"pool"})

	poolTaskTimeouts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ratefeed_pool_task_timeouts_total",
		Help: "Total number of tasks cancelled by the per-task timeout",
	}, []string{"pool"})

	poolQueueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ratefeed_pool_queue_depth",
		Help: "Current number of tasks waiting in a pool queue",
	}, []string{"pool"})

	// System metrics (gopsutil)
	processCPUPercent = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ratefeed_process_cpu_percent",
		Help: "Process CPU usage percentage",
	})

	processMemoryBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ratefeed_process_memory_bytes",
		Help: "Process resident memory in bytes",
	})
)

func init() {
	prometheus.MustRegister(
		connectionsTotal,
		connectionsActive,
		framesSent,
		framesReceived,
		rateLimitedFrames,
		pollTicks,
		pollErrors,
		pointsProduced,
		storageErrors,
		subscribersActive,
		poolDroppedTasks,
		poolTaskTimeouts,
		poolQueueDepth,
		processCPUPercent,
		processMemoryBytes,
	)
}

// HandleMetrics serves the Prometheus scrape endpoint.
func HandleMetrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func IncrementConnections() {
	connectionsTotal.Inc()
	connectionsActive.Inc()
}

func DecrementConnections() {
	connectionsActive.Dec()
}

func IncrementFramesSent() {
	framesSent.Inc()
}

func IncrementFramesReceived() {
	framesReceived.Inc()
}

func IncrementRateLimitedFrames() {
	rateLimitedFrames.Inc()
}

func RecordPollTick(failed bool) {
	pollTicks.Inc()
	if failed {
		pollErrors.Inc()
	}
}

func AddPointsProduced(n int) {
	pointsProduced.Add(float64(n))
}

func IncrementStorageErrors() {
	storageErrors.Inc()
}

func SetSubscribers(n int) {
	subscribersActive.Set(float64(n))
}

func IncrementPoolDropped(pool string) {
	poolDroppedTasks.WithLabelValues(pool).Inc()
}

func IncrementPoolTimeout(pool string) {
	poolTaskTimeouts.WithLabelValues(pool).Inc()
}

func SetPoolQueueDepth(pool string, depth int) {
	poolQueueDepth.WithLabelValues(pool).Set(float64(depth))
}

func SetProcessUsage(cpuPercent float64, memoryBytes uint64) {
	processCPUPercent.Set(cpuPercent)
	processMemoryBytes.Set(float64(memoryBytes))
}
