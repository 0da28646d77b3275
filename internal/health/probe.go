// Package health implements C7, the aggregated health probe: a parallel
// fan-out of an INFRA/Health/Check envelope to every configured
// microservice, folded into a single overall status.
package health

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aras-services/aras-gateway/internal/domain"
	"github.com/aras-services/aras-gateway/internal/routing"
)

const probeDeadline = 2 * time.Second

// Caller is the subset of busclient.Client the probe depends on.
type Caller interface {
	Call(ctx context.Context, queue string, payload []byte) ([]byte, error)
}

// Prober owns the gauge that records each microservice's last-observed
// health, refreshed on every probe run rather than by a background
// poller (spec §4.7 runs strictly on-demand).
type Prober struct {
	router routing.Router
	bus    Caller
	gauge  *prometheus.GaugeVec
}

func NewProber(router routing.Router, bus Caller, reg prometheus.Registerer) *Prober {
	return &Prober{router: router, bus: bus, gauge: newHealthGauge(reg)}
}

func newHealthGauge(reg prometheus.Registerer) *prometheus.GaugeVec {
	g := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gateway_microservice_health",
		Help: "Last observed health of each configured microservice (1=Healthy, 0.5=Degraded, 0=Unhealthy).",
	}, []string{"microservice"})
	reg.MustRegister(g)
	return g
}

// Run fans the health envelope out to every configured microservice in
// parallel, each bounded by a 2-second deadline (or the caller's
// deadline, whichever is sooner), and folds the results.
func (p *Prober) Run(ctx context.Context) domain.HealthReport {
	ids := p.router.ListMicroservices()

	checks := make([]domain.HealthCheck, len(ids))
	var wg sync.WaitGroup
	wg.Add(len(ids))

	for i, id := range ids {
		i, id := i, id
		go func() {
			defer wg.Done()
			checks[i] = p.probeOne(ctx, id)
		}()
	}
	wg.Wait()

	// Overall is Healthy iff every component is Healthy; a Degraded
	// component still flips the overall result, same as an Unhealthy one
	// (spec §4.7 step 3, §8 "Health fold").
	overall := domain.HealthHealthy
	for _, c := range checks {
		p.observe(c)
		if c.Status != domain.HealthHealthy {
			overall = domain.HealthUnhealthy
		}
	}

	return domain.HealthReport{Status: overall, Checks: checks}
}

func (p *Prober) probeOne(ctx context.Context, ms string) domain.HealthCheck {
	queue, ok := p.router.ResolveQueue(ms)
	if !ok {
		return domain.HealthCheck{Name: ms, Status: domain.HealthUnhealthy}
	}

	payload, err := json.Marshal(domain.BusEnvelope{Type: "INFRA", Resource: "Health", Action: "Check"})
	if err != nil {
		return domain.HealthCheck{Name: ms, Status: domain.HealthUnhealthy}
	}

	probeCtx, cancel := context.WithTimeout(ctx, probeDeadline)
	defer cancel()

	reply, err := p.bus.Call(probeCtx, queue, payload)
	if err != nil {
		return domain.HealthCheck{Name: ms, Status: domain.HealthUnhealthy}
	}

	var parsed domain.MicroserviceHealth
	if err := json.Unmarshal(reply, &parsed); err != nil {
		return domain.HealthCheck{Name: ms, Status: domain.HealthUnhealthy}
	}
	switch parsed.Status {
	case domain.HealthHealthy, domain.HealthDegraded, domain.HealthUnhealthy:
	default:
		parsed.Status = domain.HealthUnhealthy
	}
	return domain.HealthCheck{Name: ms, Status: parsed.Status, Data: parsed.Details}
}

func (p *Prober) observe(c domain.HealthCheck) {
	var value float64
	switch c.Status {
	case domain.HealthHealthy:
		value = 1
	case domain.HealthDegraded:
		value = 0.5
	default:
		value = 0
	}
	p.gauge.WithLabelValues(c.Name).Set(value)
}

// HTTPStatus maps the overall report status to the response code spec
// §4.7 mandates: Healthy or Degraded answer 200, Unhealthy answers 503.
func HTTPStatus(overall domain.HealthStatus) int {
	if overall == domain.HealthUnhealthy {
		return 503
	}
	return 200
}
