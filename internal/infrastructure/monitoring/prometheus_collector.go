package monitoring

import (
	"jamroom/internal/core/domain"
	"jamroom/internal/core/ports"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusCollector implements ports.Metrics on top of promauto-registered
// collectors.
type PrometheusCollector struct {
	roomsActiveTotal   prometheus.Gauge
	roomsOpenedTotal   prometheus.Counter
	roomsClosedTotal   prometheus.Counter
	participantsTotal  prometheus.Gauge
	commandsTotal      *prometheus.CounterVec
	rollbacksTotal     prometheus.Counter
	snapshotsTotal     prometheus.Counter
	snapshotFanout     prometheus.Histogram
	ackLatencySeconds  prometheus.Histogram
	roomParticipants   *prometheus.GaugeVec
}

var _ ports.Metrics = (*PrometheusCollector)(nil)

func NewPrometheusCollector() *PrometheusCollector {
	return &PrometheusCollector{
		roomsActiveTotal: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "jamroom_rooms_active_total",
			Help: "Number of rooms currently open",
		}),

		roomsOpenedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "jamroom_rooms_opened_total",
			Help: "Total number of rooms ever opened",
		}),

		roomsClosedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "jamroom_rooms_closed_total",
			Help: "Total number of rooms closed",
		}),

		participantsTotal: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "jamroom_participants_total",
			Help: "Number of participants across all rooms",
		}),

		commandsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "jamroom_commands_total",
			Help: "Room commands processed, by kind and outcome",
		}, []string{"kind", "outcome"}),

		rollbacksTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "jamroom_rollbacks_total",
			Help: "Optimistic state applications rolled back after backend failure",
		}),

		snapshotsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "jamroom_snapshots_broadcast_total",
			Help: "Snapshot broadcasts committed",
		}),

		snapshotFanout: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "jamroom_snapshot_fanout_devices",
			Help:    "Devices reached per snapshot broadcast",
			Buckets: []float64{1, 2, 5, 10, 20, 50, 100},
		}),

		ackLatencySeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "jamroom_backend_ack_latency_seconds",
			Help:    "Time between backend event emission and acknowledgement",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}),

		roomParticipants: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "jamroom_room_participants",
			Help: "Number of participants per room",
		}, []string{"room_id"}),
	}
}

func (p *PrometheusCollector) RoomOpened() {
	p.roomsActiveTotal.Inc()
	p.roomsOpenedTotal.Inc()
}

func (p *PrometheusCollector) RoomClosed() {
	p.roomsActiveTotal.Dec()
	p.roomsClosedTotal.Inc()
}

func (p *PrometheusCollector) ParticipantJoined(roomID domain.RoomID) {
	p.participantsTotal.Inc()
	p.roomParticipants.WithLabelValues(string(roomID)).Inc()
}

func (p *PrometheusCollector) ParticipantLeft(roomID domain.RoomID) {
	p.participantsTotal.Dec()
	p.roomParticipants.WithLabelValues(string(roomID)).Dec()
}

func (p *PrometheusCollector) CommandProcessed(kind string, outcome string) {
	p.commandsTotal.WithLabelValues(kind, outcome).Inc()
}

func (p *PrometheusCollector) AckLatencySeconds(seconds float64) {
	p.ackLatencySeconds.Observe(seconds)
}

func (p *PrometheusCollector) RollbackRecorded(roomID domain.RoomID) {
	p.rollbacksTotal.Inc()
}

func (p *PrometheusCollector) SnapshotBroadcast(devices int) {
	p.snapshotsTotal.Inc()
	p.snapshotFanout.Observe(float64(devices))
}

// ForgetRoom drops per-room label series once a room is closed.
func (p *PrometheusCollector) ForgetRoom(roomID domain.RoomID) {
	p.roomParticipants.DeleteLabelValues(string(roomID))
}
