// Package metrics instruments transaction submissions and program
// deployments with Prometheus collectors on a private registry.
package metrics

import (
	"net/http"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "soltest"

// Recorder owns the deployment collectors. A nil *Recorder is a no-op.
type Recorder struct {
	registry     *prometheus.Registry
	submissions  *prometheus.CounterVec
	bytesWritten prometheus.Counter
	deployments  *prometheus.CounterVec
	chunkSize    *prometheus.GaugeVec
}

func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_submitted_total",
			Help:      "Transactions submitted, by deployment phase and result.",
		}, []string{"phase", "result"}),
		bytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "program_bytes_written_total",
			Help:      "Program bytes accepted by write transactions.",
		}),
		deployments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deployments_total",
			Help:      "Completed deployment pipelines, by loader variant and result.",
		}, []string{"variant", "result"}),
		chunkSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "chunk_size_bytes",
			Help:      "Chunk size computed for the most recent deployment.",
		}, []string{"variant"}),
	}
	r.registry.MustRegister(r.submissions, r.bytesWritten, r.deployments, r.chunkSize)
	return r
}

func result(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

// ObserveSubmission counts one submitted transaction.
func (r *Recorder) ObserveSubmission(phase string, err error) {
	if r == nil {
		return
	}
	r.submissions.WithLabelValues(phase, result(err)).Inc()
}

func (r *Recorder) AddProgramBytes(n int) {
	if r == nil || n <= 0 {
		return
	}
	r.bytesWritten.Add(float64(n))
}

func (r *Recorder) ObserveDeployment(variant string, err error) {
	if r == nil {
		return
	}
	r.deployments.WithLabelValues(variant, result(err)).Inc()
}

func (r *Recorder) SetChunkSize(variant string, size int) {
	if r == nil {
		return
	}
	r.chunkSize.WithLabelValues(variant).Set(float64(size))
}

// Registry exposes the private registry for scraping or inspection.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Snapshot flattens every gathered sample into "name{k=v,...}" -> value.
func (r *Recorder) Snapshot() (map[string]float64, error) {
	if r == nil {
		return nil, nil
	}
	families, err := r.registry.Gather()
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64)
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			labels := make([]string, 0, len(m.GetLabel()))
			for _, lp := range m.GetLabel() {
				labels = append(labels, lp.GetName()+"="+lp.GetValue())
			}
			sort.Strings(labels)
			key := mf.GetName()
			if len(labels) > 0 {
				key += "{" + strings.Join(labels, ",") + "}"
			}
			switch {
			case m.GetCounter() != nil:
				out[key] = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				out[key] = m.GetGauge().GetValue()
			}
		}
	}
	return out, nil
}
