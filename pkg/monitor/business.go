package monitor

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// BusinessMetrics 定义业务监控指标。所有记录方法对 nil 接收者安全。
type BusinessMetrics struct {
	IdentitiesCreatedTotal prometheus.Counter
	TipsTotal              *prometheus.CounterVec // result
	DroptipsCreatedTotal   prometheus.Counter
	DroptipsSettledTotal   *prometheus.CounterVec // outcome: refund, split
	ClaimsTotal            *prometheus.CounterVec // result: accepted, already_claimed, closed, rejected
	PayoutsFailedTotal     prometheus.Counter
	GasSubsidiesTotal      prometheus.Counter
	GasSubsidizedWei       prometheus.Counter
	ReserveNativeBalance   prometheus.Gauge
	TransferDuration       *prometheus.HistogramVec // kind
}

// Global Metrics Instance
var Business *BusinessMetrics

var businessOnce sync.Once

// InitBusinessMetrics 初始化业务指标 (注册到默认 Registry，只执行一次)
func InitBusinessMetrics() {
	businessOnce.Do(func() {
		Business = NewBusinessMetrics(prometheus.DefaultRegisterer)
	})
}

// NewBusinessMetrics 在指定 Registerer 上创建指标，测试中使用独立的 Registry
func NewBusinessMetrics(reg prometheus.Registerer) *BusinessMetrics {
	f := promauto.With(reg)
	return &BusinessMetrics{
		IdentitiesCreatedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "tipbot_identities_created_total",
			Help: "The total number of custodial identities created",
		}),
		TipsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tipbot_tips_total",
			Help: "Direct tips by result",
		}, []string{"result"}),
		DroptipsCreatedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "tipbot_droptips_created_total",
			Help: "The total number of funded droptips",
		}),
		DroptipsSettledTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tipbot_droptips_settled_total",
			Help: "Settled droptips by outcome",
		}, []string{"outcome"}),
		ClaimsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tipbot_droptip_claims_total",
			Help: "Droptip claim attempts by result",
		}, []string{"result"}),
		PayoutsFailedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "tipbot_droptip_payouts_failed_total",
			Help: "Settlement transfers that failed and need reconciliation",
		}),
		GasSubsidiesTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "tipbot_gas_subsidies_total",
			Help: "Number of gas top-ups sent from the reserve wallet",
		}),
		GasSubsidizedWei: f.NewCounter(prometheus.CounterOpts{
			Name: "tipbot_gas_subsidized_wei_total",
			Help: "Native currency sent as gas subsidy (wei)",
		}),
		ReserveNativeBalance: f.NewGauge(prometheus.GaugeOpts{
			Name: "tipbot_reserve_native_balance_wei",
			Help: "Native balance of the gas reserve wallet (wei)",
		}),
		TransferDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tipbot_transfer_duration_seconds",
			Help:    "Time from submit to confirmation of ledger transfers",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"kind"}),
	}
}

func (m *BusinessMetrics) IdentityCreated() {
	if m == nil {
		return
	}
	m.IdentitiesCreatedTotal.Inc()
}

func (m *BusinessMetrics) Tip(result string) {
	if m == nil {
		return
	}
	m.TipsTotal.WithLabelValues(result).Inc()
}

func (m *BusinessMetrics) DroptipCreated() {
	if m == nil {
		return
	}
	m.DroptipsCreatedTotal.Inc()
}

func (m *BusinessMetrics) DroptipSettled(outcome string, failedPayouts int) {
	if m == nil {
		return
	}
	m.DroptipsSettledTotal.WithLabelValues(outcome).Inc()
	m.PayoutsFailedTotal.Add(float64(failedPayouts))
}

func (m *BusinessMetrics) Claim(result string) {
	if m == nil {
		return
	}
	m.ClaimsTotal.WithLabelValues(result).Inc()
}

// GasSubsidy 记录一次补贴，wei 超出 float64 精度时只影响指标精度
func (m *BusinessMetrics) GasSubsidy(wei float64) {
	if m == nil {
		return
	}
	m.GasSubsidiesTotal.Inc()
	m.GasSubsidizedWei.Add(wei)
}

func (m *BusinessMetrics) SetReserveBalance(wei float64) {
	if m == nil {
		return
	}
	m.ReserveNativeBalance.Set(wei)
}

func (m *BusinessMetrics) ObserveTransfer(kind string, since time.Time) {
	if m == nil {
		return
	}
	m.TransferDuration.WithLabelValues(kind).Observe(time.Since(since).Seconds())
}
