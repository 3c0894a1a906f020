// Package metrics exports announcer events as prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"announce/internal/announcer"
)

const namespace = "announce"

// Observer counts announcer events. It implements announcer.Observer.
type Observer struct {
	beaconsSent prometheus.Counter
	beaconBytes prometheus.Counter
	sendErrors  prometheus.Counter
	loopStops   *prometheus.CounterVec
	running     prometheus.Gauge
}

// New creates the metrics and registers them with reg.
func New(reg prometheus.Registerer) (*Observer, error) {
	o := &Observer{
		beaconsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "beacons_sent_total",
			Help:      "number of beacons sent",
		}),
		beaconBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "beacon_bytes_total",
			Help:      "number of beacon payload bytes sent",
		}),
		sendErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "send_errors_total",
			Help:      "number of failed beacon sends",
		}),
		loopStops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loop_stops_total",
			Help:      "number of times the announce loop exited, by reason",
		}, []string{"reason"}),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "loop_running",
			Help:      "1 while the announce loop is running",
		}),
	}

	for _, c := range []prometheus.Collector{
		o.beaconsSent,
		o.beaconBytes,
		o.sendErrors,
		o.loopStops,
		o.running,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return o, nil
}

func (o *Observer) Observe(e announcer.Event) {
	switch e := e.(type) {
	case announcer.LoopStartedEvent:
		o.running.Set(1)
	case announcer.BeaconSentEvent:
		o.beaconsSent.Inc()
		o.beaconBytes.Add(float64(len(e.Payload)))
	case announcer.SendErrorEvent:
		o.sendErrors.Inc()
	case announcer.LoopStoppedEvent:
		o.running.Set(0)
		reason := "stopped"
		if e.Err != nil {
			reason = "failed"
		}
		o.loopStops.WithLabelValues(reason).Inc()
	}
}
