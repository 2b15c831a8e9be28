package network

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 空间查询类型，用作指标的op标签
const (
	OpFindClosestLane   = "find_closest_lane"
	OpNextWaypointIndex = "next_waypoint_index"
	OpProject           = "project"
)

// Collector 路网的Prometheus指标
// 说明：nil Collector上的所有方法均为空操作
type Collector struct {
	gatherer prometheus.Gatherer

	Queries         *prometheus.CounterVec // 空间查询次数
	Misses          *prometheus.CounterVec // 没有结果的空间查询次数
	TrafficLanes    prometheus.Gauge
	PedestrianPaths prometheus.Gauge
	Intersections   prometheus.Gauge
	Occupants       prometheus.Gauge // 所有路口内的agent总数，经Network进出路口时立即更新，每步Prepare时与路口状态对齐
}

// NewCollector 创建并注册路网指标
// 参数：reg-注册器，为nil时使用prometheus.DefaultRegisterer
// 说明：同名指标已注册时复用已有的指标
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	queries, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "roadnet_spatial_queries_total",
		Help: "Number of spatial queries served, by operation.",
	}, []string{"op"}), "roadnet_spatial_queries_total")
	if err != nil {
		return nil, err
	}
	misses, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "roadnet_spatial_query_misses_total",
		Help: "Number of spatial queries that found no lane or segment, by operation.",
	}, []string{"op"}), "roadnet_spatial_query_misses_total")
	if err != nil {
		return nil, err
	}

	gauges := make([]prometheus.Gauge, 0, 4)
	for _, opts := range []prometheus.GaugeOpts{
		{Name: "roadnet_traffic_lanes", Help: "Number of traffic lanes loaded."},
		{Name: "roadnet_pedestrian_paths", Help: "Number of pedestrian paths loaded."},
		{Name: "roadnet_intersections", Help: "Number of intersections loaded."},
		{Name: "roadnet_intersection_occupants", Help: "Number of agents currently inside any intersection."},
	} {
		g, err := registerGauge(reg, prometheus.NewGauge(opts), opts.Name)
		if err != nil {
			return nil, err
		}
		gauges = append(gauges, g)
	}

	return &Collector{
		gatherer:        gatherer,
		Queries:         queries,
		Misses:          misses,
		TrafficLanes:    gauges[0],
		PedestrianPaths: gauges[1],
		Intersections:   gauges[2],
		Occupants:       gauges[3],
	}, nil
}

// Handler 指标的HTTP处理器
func (c *Collector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func (c *Collector) observeQuery(op string, hit bool) {
	if c == nil {
		return
	}
	c.Queries.WithLabelValues(op).Inc()
	if !hit {
		c.Misses.WithLabelValues(op).Inc()
	}
}

func (c *Collector) setSizes(trafficLanes, pedestrianPaths, intersections int) {
	if c == nil {
		return
	}
	c.TrafficLanes.Set(float64(trafficLanes))
	c.PedestrianPaths.Set(float64(pedestrianPaths))
	c.Intersections.Set(float64(intersections))
}

func (c *Collector) setOccupants(n int) {
	if c == nil {
		return
	}
	c.Occupants.Set(float64(n))
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
