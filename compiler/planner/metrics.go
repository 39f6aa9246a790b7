package planner

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	RuleApplications *prometheus.CounterVec
	Partitions       *prometheus.CounterVec
	Plans            *prometheus.CounterVec
	PlanDuration     *prometheus.HistogramVec
}

// NewMetrics creates the planner metrics and registers them with reg
// unless reg is nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RuleApplications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pipeplan",
			Subsystem: "planner",
			Name:      "rule_applications_total",
			Help:      "Number of times a rule changed or partitioned a graph.",
		}, []string{"platform", "rule"}),
		Partitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pipeplan",
			Subsystem: "planner",
			Name:      "partitions_total",
			Help:      "Number of subgraphs produced by partition rules.",
		}, []string{"platform", "phase"}),
		Plans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pipeplan",
			Subsystem: "planner",
			Name:      "plans_total",
			Help:      "Number of assemblies planned, by outcome.",
		}, []string{"platform", "outcome"}),
		PlanDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pipeplan",
			Subsystem: "planner",
			Name:      "plan_duration_seconds",
			Help:      "Time taken to plan one assembly.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
		}, []string{"platform"}),
	}
	if reg != nil {
		reg.MustRegister(m.RuleApplications, m.Partitions, m.Plans, m.PlanDuration)
	}
	return m
}
