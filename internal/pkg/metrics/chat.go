package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "tradelink"

var (
	MessagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "chat",
		Name:      "messages_sent_total",
		Help:      "Messages appended to the store, by kind.",
	}, []string{"kind"})

	Uploads = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "chat",
		Name:      "uploads_total",
		Help:      "Attachment uploads by terminal status.",
	}, []string{"status"})

	UploadBytes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "chat",
		Name:      "upload_bytes_total",
		Help:      "Bytes written to object storage by completed uploads.",
	})

	StoreErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "chat",
		Name:      "store_errors_total",
		Help:      "Message store failures by operation.",
	}, []string{"op"})

	MalformedRecords = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "chat",
		Name:      "malformed_records_total",
		Help:      "Stored records dropped because required fields were missing or invalid.",
	})

	LiveViews = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "chat",
		Name:      "live_views",
		Help:      "Open live conversation views.",
	})

	RateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "rate_limited_total",
		Help:      "Requests rejected by the per-user limiter, by route.",
	}, []string{"route"})
)
