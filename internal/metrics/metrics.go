package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	startTime time.Time

	uploadsTotal    atomic.Int64
	uploadsRejected atomic.Int64

	extractionsTotal   atomic.Int64
	extractionsSuccess atomic.Int64
	extractionsFailed  atomic.Int64
	extractionRetries  atomic.Int64

	sheetAppendsTotal  atomic.Int64
	sheetAppendsFailed atomic.Int64

	loginsTotal  atomic.Int64
	loginsFailed atomic.Int64

	documentsSaved atomic.Int64
	exportsTotal   atomic.Int64

	queueDepth atomic.Int64

	extractionTimes     []time.Duration
	extractionTimesLock sync.Mutex

	providerRequests map[string]*atomic.Int64
	providerLock     sync.Mutex

	registry *prometheus.Registry

	promUploads     *prometheus.CounterVec
	promExtractions *prometheus.CounterVec
	promSheets      *prometheus.CounterVec
	promLogins      *prometheus.CounterVec
	promExports     prometheus.Counter
	promQueueDepth  prometheus.Gauge
	promDuration    prometheus.Histogram
}

var (
	defaultMetrics *Metrics
	once           sync.Once
)

func Default() *Metrics {
	once.Do(func() {
		defaultMetrics = New()
	})
	return defaultMetrics
}

func New() *Metrics {
	m := &Metrics{
		startTime:        time.Now(),
		extractionTimes:  make([]time.Duration, 0, 1000),
		providerRequests: make(map[string]*atomic.Int64),
		registry:         prometheus.NewRegistry(),
	}

	m.promUploads = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "docsheet_uploads_total",
		Help: "Uploaded files by outcome",
	}, []string{"outcome"})
	m.promExtractions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "docsheet_extractions_total",
		Help: "Extraction jobs by outcome",
	}, []string{"outcome"})
	m.promSheets = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "docsheet_sheet_appends_total",
		Help: "Google Sheets row appends by outcome",
	}, []string{"outcome"})
	m.promLogins = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "docsheet_logins_total",
		Help: "Login attempts by outcome",
	}, []string{"outcome"})
	m.promExports = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "docsheet_exports_total",
		Help: "Export downloads served",
	})
	m.promQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "docsheet_queue_depth",
		Help: "Extraction jobs waiting or running",
	})
	m.promDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "docsheet_extraction_duration_seconds",
		Help:    "Wall time of vision extraction per document",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
	})

	m.registry.MustRegister(
		m.promUploads, m.promExtractions, m.promSheets, m.promLogins,
		m.promExports, m.promQueueDepth, m.promDuration,
	)

	return m
}

// Handler exposes the Prometheus scrape endpoint for this registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordUpload(accepted bool) {
	if accepted {
		m.uploadsTotal.Add(1)
		m.promUploads.WithLabelValues("accepted").Inc()
	} else {
		m.uploadsRejected.Add(1)
		m.promUploads.WithLabelValues("rejected").Inc()
	}
}

func (m *Metrics) RecordExtraction(success bool) {
	m.extractionsTotal.Add(1)
	if success {
		m.extractionsSuccess.Add(1)
		m.promExtractions.WithLabelValues("success").Inc()
	} else {
		m.extractionsFailed.Add(1)
		m.promExtractions.WithLabelValues("failed").Inc()
	}
}

func (m *Metrics) RecordExtractionRetry() {
	m.extractionRetries.Add(1)
	m.promExtractions.WithLabelValues("retry").Inc()
}

func (m *Metrics) RecordSheetAppend(success bool) {
	m.sheetAppendsTotal.Add(1)
	if success {
		m.promSheets.WithLabelValues("success").Inc()
	} else {
		m.sheetAppendsFailed.Add(1)
		m.promSheets.WithLabelValues("failed").Inc()
	}
}

func (m *Metrics) RecordLogin(success bool) {
	m.loginsTotal.Add(1)
	if success {
		m.promLogins.WithLabelValues("success").Inc()
	} else {
		m.loginsFailed.Add(1)
		m.promLogins.WithLabelValues("failed").Inc()
	}
}

func (m *Metrics) RecordDocumentSaved() {
	m.documentsSaved.Add(1)
}

func (m *Metrics) RecordExport() {
	m.exportsTotal.Add(1)
	m.promExports.Inc()
}

func (m *Metrics) SetQueueDepth(depth int64) {
	m.queueDepth.Store(depth)
	m.promQueueDepth.Set(float64(depth))
}

func (m *Metrics) IncQueueDepth() {
	m.promQueueDepth.Set(float64(m.queueDepth.Add(1)))
}

func (m *Metrics) DecQueueDepth() {
	m.promQueueDepth.Set(float64(m.queueDepth.Add(-1)))
}

func (m *Metrics) RecordProviderRequest(provider string) {
	m.providerLock.Lock()
	defer m.providerLock.Unlock()

	if m.providerRequests[provider] == nil {
		m.providerRequests[provider] = &atomic.Int64{}
	}
	m.providerRequests[provider].Add(1)
}

func (m *Metrics) RecordExtractionTime(d time.Duration) {
	m.promDuration.Observe(d.Seconds())

	m.extractionTimesLock.Lock()
	defer m.extractionTimesLock.Unlock()

	m.extractionTimes = append(m.extractionTimes, d)
	if len(m.extractionTimes) > 1000 {
		m.extractionTimes = m.extractionTimes[1:]
	}
}

type Snapshot struct {
	Uptime             time.Duration    `json:"uptime"`
	UploadsTotal       int64            `json:"uploads_total"`
	UploadsRejected    int64            `json:"uploads_rejected"`
	ExtractionsTotal   int64            `json:"extractions_total"`
	ExtractionsSuccess int64            `json:"extractions_success"`
	ExtractionsFailed  int64            `json:"extractions_failed"`
	ExtractionRetries  int64            `json:"extraction_retries"`
	SheetAppendsTotal  int64            `json:"sheet_appends_total"`
	SheetAppendsFailed int64            `json:"sheet_appends_failed"`
	LoginsTotal        int64            `json:"logins_total"`
	LoginsFailed       int64            `json:"logins_failed"`
	DocumentsSaved     int64            `json:"documents_saved"`
	ExportsTotal       int64            `json:"exports_total"`
	QueueDepth         int64            `json:"queue_depth"`
	AvgExtractionTime  time.Duration    `json:"avg_extraction_time"`
	P99ExtractionTime  time.Duration    `json:"p99_extraction_time"`
	ProviderRequests   map[string]int64 `json:"provider_requests"`
	SuccessRate        float64          `json:"success_rate"`
}

func (m *Metrics) Snapshot() *Snapshot {
	s := &Snapshot{
		Uptime:             time.Since(m.startTime),
		UploadsTotal:       m.uploadsTotal.Load(),
		UploadsRejected:    m.uploadsRejected.Load(),
		ExtractionsTotal:   m.extractionsTotal.Load(),
		ExtractionsSuccess: m.extractionsSuccess.Load(),
		ExtractionsFailed:  m.extractionsFailed.Load(),
		ExtractionRetries:  m.extractionRetries.Load(),
		SheetAppendsTotal:  m.sheetAppendsTotal.Load(),
		SheetAppendsFailed: m.sheetAppendsFailed.Load(),
		LoginsTotal:        m.loginsTotal.Load(),
		LoginsFailed:       m.loginsFailed.Load(),
		DocumentsSaved:     m.documentsSaved.Load(),
		ExportsTotal:       m.exportsTotal.Load(),
		QueueDepth:         m.queueDepth.Load(),
		ProviderRequests:   make(map[string]int64),
	}

	if s.ExtractionsTotal > 0 {
		s.SuccessRate = float64(s.ExtractionsSuccess) / float64(s.ExtractionsTotal) * 100
	}

	m.extractionTimesLock.Lock()
	if len(m.extractionTimes) > 0 {
		var total time.Duration
		for _, rt := range m.extractionTimes {
			total += rt
		}
		s.AvgExtractionTime = total / time.Duration(len(m.extractionTimes))

		sorted := make([]time.Duration, len(m.extractionTimes))
		copy(sorted, m.extractionTimes)
		for i := 0; i < len(sorted)-1; i++ {
			for j := i + 1; j < len(sorted); j++ {
				if sorted[j] < sorted[i] {
					sorted[i], sorted[j] = sorted[j], sorted[i]
				}
			}
		}
		p99Index := int(float64(len(sorted)) * 0.99)
		if p99Index >= len(sorted) {
			p99Index = len(sorted) - 1
		}
		s.P99ExtractionTime = sorted[p99Index]
	}
	m.extractionTimesLock.Unlock()

	m.providerLock.Lock()
	for k, v := range m.providerRequests {
		s.ProviderRequests[k] = v.Load()
	}
	m.providerLock.Unlock()

	return s
}
