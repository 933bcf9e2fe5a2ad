package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/falachabt/zymupload/pkg/transfer"
)

// TransferRecorder collects transfer lifecycle metrics by subscribing to
// the manager's event broadcaster.
//
// The broadcaster drops events for slow consumers; the recorder only does
// counter updates per event, so in practice it never falls behind. Terminal
// observations read the authoritative item snapshot from the manager rather
// than trusting event payloads.
type TransferRecorder struct {
	manager *transfer.Manager

	created  prometheus.Counter
	finished *prometheus.CounterVec
	files    *prometheus.CounterVec
	bytes    *prometheus.CounterVec
	duration prometheus.Histogram

	events   chan transfer.Event
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewTransferRecorder creates a Prometheus-backed transfer recorder.
//
// Returns nil if metrics are not enabled (InitRegistry not called); callers
// must handle the nil case and skip Start/Stop.
func NewTransferRecorder(manager *transfer.Manager) *TransferRecorder {
	if !IsEnabled() {
		return nil
	}

	reg := GetRegistry()

	return &TransferRecorder{
		manager: manager,
		created: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "zymupload_transfers_created_total",
				Help: "Total number of transfers registered",
			},
		),
		finished: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "zymupload_transfers_finished_total",
				Help: "Total number of transfers that reached a terminal state",
			},
			[]string{"status"},
		),
		files: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "zymupload_transfer_files_total",
				Help: "Total number of files in finished transfers by final status",
			},
			[]string{"status"},
		),
		bytes: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "zymupload_transfer_bytes_total",
				Help: "Total bytes moved by finished transfers",
			},
			[]string{"direction"},
		),
		duration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name: "zymupload_transfer_duration_seconds",
				Help: "Wall time from first byte to terminal state",
				Buckets: []float64{
					0.1, 0.5, 1, 5, 10, 30, 60, 300, 600, 1800,
				},
			},
		),
	}
}

// Start subscribes to the manager's broadcaster and begins recording.
func (r *TransferRecorder) Start() {
	r.events = r.manager.Events().Subscribe()
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for ev := range r.events {
			r.observe(ev)
		}
	}()
}

// Stop unsubscribes and waits for the recording goroutine to drain.
// Safe to call more than once.
func (r *TransferRecorder) Stop() {
	r.stopOnce.Do(func() {
		r.manager.Events().Unsubscribe(r.events)
		r.wg.Wait()
	})
}

func (r *TransferRecorder) observe(ev transfer.Event) {
	switch ev.Type {
	case transfer.EventTransferCreated:
		r.created.Inc()
	case transfer.EventTransferTerminal:
		item, err := r.manager.Get(ev.TransferID)
		if err != nil {
			// Cleared between the event and the lookup.
			return
		}
		r.finished.WithLabelValues(item.Status.String()).Inc()
		r.bytes.WithLabelValues(item.Direction.String()).Add(float64(item.BytesTransferred))
		if !item.StartedAt.IsZero() && !item.CompletedAt.IsZero() {
			r.duration.Observe(item.CompletedAt.Sub(item.StartedAt).Seconds())
		}
		if item.Kind == transfer.KindSingleFile {
			r.files.WithLabelValues(item.Status.String()).Inc()
			return
		}
		for _, f := range item.Files {
			r.files.WithLabelValues(f.Status.String()).Inc()
		}
	}
}
