package network_test

import (
	"context"
	"math"
	"testing"

	"connectrpc.com/connect"
	"git.fiblab.net/general/common/v2/geometry"
	geov2 "git.fiblab.net/sim/protos/v2/go/city/geo/v2"
	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	mapv2connect "git.fiblab.net/sim/protos/v2/go/city/map/v2/mapv2connect"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/agentsociety-roadnet/clock"
	"github.com/tsinghua-fib-lab/agentsociety-roadnet/entity"
	"github.com/tsinghua-fib-lab/agentsociety-roadnet/entity/junction"
	"github.com/tsinghua-fib-lab/agentsociety-roadnet/entity/network"
	"github.com/tsinghua-fib-lab/agentsociety-roadnet/utils/config"
	"github.com/tsinghua-fib-lab/agentsociety-roadnet/utils/geomutil"
	"golang.org/x/exp/rand"
)

type testContext struct {
	clock *clock.Clock
	rc    *config.RuntimeConfig
}

func newTestContext() *testContext {
	rc := config.NewRuntimeConfig(config.Config{Control: config.Control{
		Step: config.ControlStep{Start: 0, Total: 100, Interval: 1},
	}})
	return &testContext{clock: clock.New(rc.C.Step, rc.C.Episodes), rc: rc}
}

func (c *testContext) Clock() *clock.Clock                   { return c.clock }
func (c *testContext) RuntimeConfig() *config.RuntimeConfig { return c.rc }

func pt(x, y, z float64) geometry.Point {
	return geometry.Point{X: x, Y: y, Z: z}
}

func newLane(id int32, typ mapv2.LaneType, points ...geometry.Point) *mapv2.Lane {
	nodes := make([]*geov2.XYPosition, 0, len(points))
	for _, p := range points {
		z := p.Z
		nodes = append(nodes, &geov2.XYPosition{X: p.X, Y: p.Y, Z: &z})
	}
	return &mapv2.Lane{Id: id, Type: typ, CenterLine: &geov2.Polyline{Nodes: nodes}}
}

func driving(id int32, points ...geometry.Point) *mapv2.Lane {
	return newLane(id, mapv2.LaneType_LANE_TYPE_DRIVING, points...)
}

func newNetwork(t *testing.T, m *mapv2.Map) *network.Network {
	t.Helper()
	n := network.New(newTestContext(), nil)
	n.Init(m)
	return n
}

func TestEmptyNetwork(t *testing.T) {
	n := newNetwork(t, nil)

	_, ok := n.LaneAt(0)
	assert.False(t, ok)
	_, ok = n.PedestrianPathAt(0)
	assert.False(t, ok)
	_, ok = n.IntersectionAt(0)
	assert.False(t, ok)

	_, ok = n.FindClosestLane(pt(1, 2, 3))
	assert.False(t, ok)
	_, err := n.ProjectOntoNetwork(pt(1, 2, 3))
	assert.ErrorIs(t, err, network.ErrNoLane)

	assert.NotPanics(t, func() {
		n.OnAgentRemoved(1)
		n.ResetAll()
		n.Start()
		n.Prepare()
		n.Update(1)
	})
	assert.ErrorIs(t, n.EnterIntersection(1, 1), junction.ErrUnknownJunction)
}

func TestIndexAccess(t *testing.T) {
	n := newNetwork(t, &mapv2.Map{
		Lanes: []*mapv2.Lane{
			driving(1, pt(0, 0, 0), pt(1, 0, 0)),
			newLane(2, mapv2.LaneType_LANE_TYPE_WALKING, pt(0, 1, 0), pt(1, 1, 0)),
			driving(3, pt(0, 2, 0), pt(1, 2, 0)),
		},
		Junctions: []*mapv2.Junction{{Id: 9, LaneIds: []int32{3}}},
	})

	l, ok := n.LaneAt(1)
	require.True(t, ok)
	assert.Equal(t, int32(3), l.ID())
	_, ok = n.LaneAt(5)
	assert.False(t, ok)
	_, ok = n.LaneAt(-1)
	assert.False(t, ok)

	p, ok := n.PedestrianPathAt(0)
	require.True(t, ok)
	assert.Equal(t, int32(2), p.ID())
	_, ok = n.PedestrianPathAt(1)
	assert.False(t, ok)

	j, ok := n.IntersectionAt(0)
	require.True(t, ok)
	assert.Equal(t, int32(9), j.ID())
	_, ok = n.IntersectionAt(1)
	assert.False(t, ok)

	// 人行道不参与最近车道查询
	closest, ok := n.FindClosestLane(pt(0.5, 1, 0))
	require.True(t, ok)
	assert.Equal(t, int32(1), closest.ID())
}

func TestNextWaypointIndex(t *testing.T) {
	n := newNetwork(t, &mapv2.Map{Lanes: []*mapv2.Lane{
		driving(1, pt(0, 0, 0), pt(10, 0, 0), pt(10, 0, 10)),
		driving(2, pt(3, 3, 3)),
		driving(3),
	}})
	l, _ := n.LaneAt(0)
	assert.Equal(t, 1, n.NextWaypointIndex(pt(5, 0, 1), l))
	assert.Equal(t, 2, n.NextWaypointIndex(pt(11, 0, 6), l))
	// 线段端点之外截断到端点
	assert.Equal(t, 1, n.NextWaypointIndex(pt(-5, 0, 0), l))

	for _, i := range []int{1, 2} {
		degenerate, ok := n.LaneAt(i)
		require.True(t, ok)
		assert.Equal(t, -1, n.NextWaypointIndex(pt(3, 3, 3), degenerate))
	}
	assert.Equal(t, -1, n.NextWaypointIndex(pt(0, 0, 0), nil))
}

func TestFindClosestLane(t *testing.T) {
	n := newNetwork(t, &mapv2.Map{Lanes: []*mapv2.Lane{
		driving(1, pt(0, 0, 0), pt(10, 0, 0)),
		driving(2, pt(0, 2, 0), pt(10, 2, 0)),
		driving(3, pt(5, 1, 0)), // 退化车道，即使与查询点重合也不参与
		driving(4, pt(0, 10, 0), pt(10, 10, 0), pt(10, 10, 50)),
	}})

	l, ok := n.FindClosestLane(pt(5, 1, 0))
	require.True(t, ok)
	assert.Equal(t, int32(1), l.ID(), "ties resolve to the first lane")

	l, _ = n.FindClosestLane(pt(5, 1.5, 0))
	assert.Equal(t, int32(2), l.ID())

	l, _ = n.FindClosestLane(pt(10, 9, 30))
	assert.Equal(t, int32(4), l.ID())

	// 车道4的包围盒距离已大于当前最小值，整条车道被跳过
	l, _ = n.FindClosestLane(pt(5, 3, 0))
	assert.Equal(t, int32(2), l.ID())
}

func TestFindClosestLaneMatchesBruteForce(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	random := func() geometry.Point {
		return pt(r.Float64()*100, r.Float64()*100, r.Float64()*10)
	}
	lanes := make([]*mapv2.Lane, 0)
	for id := int32(0); id < 50; id++ {
		points := make([]geometry.Point, 1+r.Intn(4))
		for i := range points {
			points[i] = random()
		}
		lanes = append(lanes, driving(id, points...))
	}
	n := newNetwork(t, &mapv2.Map{Lanes: lanes})
	all := n.LaneManager().TrafficLanes()

	for range 200 {
		pos := random()
		var want entity.ILane
		best := math.Inf(1)
		for _, l := range all {
			line := l.Line()
			for i := 0; i+1 < len(line); i++ {
				if d := geomutil.SqrDistanceToSegment(line[i], line[i+1], pos); d < best {
					best, want = d, l
				}
			}
		}
		got, ok := n.FindClosestLane(pos)
		require.True(t, ok)
		assert.Equal(t, want.ID(), got.ID())
	}
}

func TestProjection(t *testing.T) {
	n := newNetwork(t, &mapv2.Map{Lanes: []*mapv2.Lane{
		driving(1, pt(0, 0, 0), pt(0, 10, 0), pt(10, 10, 0)),
		driving(2, pt(100, 0, 0), pt(110, 0, 10)),
		driving(3, pt(50, 50, 50)),
	}})

	p, err := n.ProjectOntoNetwork(pt(0, 5.35, 0.01))
	require.NoError(t, err)
	assert.Equal(t, int32(1), p.Lane.ID())
	assert.Equal(t, 0, p.SegmentIndex)
	assert.InDelta(t, 0.0, p.Position.X, 1e-9)
	assert.InDelta(t, 5.35, p.Position.Y, 1e-9)
	assert.InDelta(t, 0.0, p.Position.Z, 1e-9)
	assert.InDelta(t, 5.35, p.S, 1e-9)
	forward := p.Orientation.Forward()
	assert.InDelta(t, 0.0, forward.X, 1e-9)
	assert.InDelta(t, 1.0, forward.Y, 1e-9)
	assert.InDelta(t, 0.0, forward.Z, 1e-9)

	// 第二段线段
	p, err = n.ProjectOntoNetwork(pt(4, 12, 0))
	require.NoError(t, err)
	assert.Equal(t, 1, p.SegmentIndex)
	assert.InDelta(t, 14.0, p.S, 1e-9)
	assert.InDelta(t, 0.0, p.Orientation.Yaw, 1e-9)

	// 带坡度的车道
	l, _ := n.LaneAt(1)
	p, err = n.ProjectOntoLane(pt(105, 0, 5), l)
	require.NoError(t, err)
	assert.InDelta(t, math.Pi/4, p.Orientation.Pitch, 1e-9)
	assert.InDelta(t, 105.0, p.Position.X, 1e-9)
	assert.InDelta(t, 5.0, p.Position.Z, 1e-9)

	degenerate, _ := n.LaneAt(2)
	_, err = n.ProjectOntoLane(pt(50, 50, 50), degenerate)
	assert.ErrorIs(t, err, network.ErrNoSegment)
	_, err = n.ProjectOntoLane(pt(0, 0, 0), nil)
	assert.ErrorIs(t, err, network.ErrNoSegment)
}

func intersectionMap() *mapv2.Map {
	return &mapv2.Map{
		Lanes: []*mapv2.Lane{
			driving(1, pt(0, 0, 0), pt(10, 0, 0)),
			driving(2, pt(0, 2, 0), pt(10, 2, 0)),
		},
		Junctions: []*mapv2.Junction{
			{Id: 100, LaneIds: []int32{1}},
			{
				Id:      200,
				LaneIds: []int32{2},
				Phases: []*mapv2.AvailablePhase{
					{States: []mapv2.LightState{mapv2.LightState_LIGHT_STATE_RED}},
				},
			},
		},
	}
}

func TestIntersectionOccupancy(t *testing.T) {
	n := newNetwork(t, intersectionMap())
	stop, err := n.Intersection(100)
	require.NoError(t, err)
	signal, err := n.Intersection(200)
	require.NoError(t, err)

	require.NoError(t, n.EnterIntersection(100, 1))
	require.NoError(t, n.EnterIntersection(100, 1))
	require.NoError(t, n.EnterIntersection(200, 1))
	require.NoError(t, n.EnqueueStop(100, 1))
	require.NoError(t, n.EnqueueStop(100, 2))
	require.NoError(t, n.EnqueueStop(200, 1))
	assert.Equal(t, []int32{1}, stop.Occupants())
	assert.Equal(t, []int32{1, 2}, stop.StopQueue())
	assert.Empty(t, signal.StopQueue())

	require.NoError(t, n.DequeueStop(100, 1))
	assert.Equal(t, []int32{2}, stop.StopQueue())
	require.NoError(t, n.ExitIntersection(100, 1))
	assert.Empty(t, stop.Occupants())
	assert.True(t, signal.InIntersection(1))

	n.OnAgentRemoved(1)
	assert.False(t, signal.InIntersection(1))
	n.OnAgentRemoved(2)
	assert.Empty(t, stop.StopQueue())

	assert.ErrorIs(t, n.ExitIntersection(300, 1), junction.ErrUnknownJunction)
	assert.ErrorIs(t, n.EnqueueStop(300, 1), junction.ErrUnknownJunction)
	assert.ErrorIs(t, n.DequeueStop(300, 1), junction.ErrUnknownJunction)
}

func TestResetAll(t *testing.T) {
	n := newNetwork(t, intersectionMap())
	stop, _ := n.Intersection(100)
	signal, _ := n.Intersection(200)
	assert.Equal(t, entity.ControlIdle, signal.ControlState())

	n.Start()
	n.Start()
	assert.Equal(t, entity.ControlActive, signal.ControlState())
	n.Prepare()
	l, _ := n.LaneAt(1)
	assert.True(t, l.IsNoEntry())

	require.NoError(t, n.EnterIntersection(100, 1))
	require.NoError(t, n.EnqueueStop(100, 1))
	require.NoError(t, n.EnterIntersection(200, 2))
	signal.StopControlLoop()

	n.ResetAll()
	for _, j := range []entity.IJunction{stop, signal} {
		assert.Empty(t, j.Occupants())
		assert.Empty(t, j.StopQueue())
		assert.Equal(t, entity.ControlActive, j.ControlState())
	}
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := network.NewCollector(reg)
	require.NoError(t, err)
	again, err := network.NewCollector(reg)
	require.NoError(t, err)
	assert.Same(t, metrics.Queries, again.Queries)

	n := network.New(newTestContext(), metrics)
	_, ok := n.FindClosestLane(pt(0, 0, 0))
	assert.False(t, ok)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Misses.WithLabelValues(network.OpFindClosestLane)))

	n.Init(intersectionMap())
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.TrafficLanes))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.PedestrianPaths))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.Intersections))

	_, ok = n.FindClosestLane(pt(0, 0, 0))
	assert.True(t, ok)
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.Queries.WithLabelValues(network.OpFindClosestLane)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Misses.WithLabelValues(network.OpFindClosestLane)))

	l, _ := n.LaneAt(0)
	n.NextWaypointIndex(pt(0, 0, 0), l)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Queries.WithLabelValues(network.OpNextWaypointIndex)))

	require.NoError(t, n.EnterIntersection(100, 1))
	require.NoError(t, n.EnterIntersection(200, 2))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.Occupants))
	n.OnAgentRemoved(1)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Occupants))
	n.ResetAll()
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.Occupants))

	// 绕过Network直接进入路口，Prepare时对齐
	j, err := n.Intersection(100)
	require.NoError(t, err)
	j.Enter(3)
	j.Enter(4)
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.Occupants))
	n.Prepare()
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.Occupants))

	var nilCollector *network.Collector
	assert.NotNil(t, nilCollector.Handler())
}

func TestManagersSurviveInit(t *testing.T) {
	n := network.New(newTestContext(), nil)
	lanes := n.LaneManager()
	junctions := n.JunctionManager()
	service, ok := junctions.(mapv2connect.TrafficLightServiceHandler)
	require.True(t, ok)
	ctx := context.Background()

	n.Init(intersectionMap())
	assert.Same(t, lanes, n.LaneManager())
	assert.Same(t, junctions, n.JunctionManager())
	assert.Len(t, lanes.TrafficLanes(), 2)
	l, err := lanes.GetOrError(2)
	require.NoError(t, err)
	assert.Equal(t, int32(2), l.ID())
	assert.Equal(t, 2, junctions.Len())

	res, err := service.GetTrafficLight(ctx, connect.NewRequest(&mapv2.GetTrafficLightRequest{JunctionId: 200}))
	require.NoError(t, err)
	require.NotNil(t, res.Msg.TrafficLight)
	assert.Equal(t, int32(200), res.Msg.TrafficLight.JunctionId)
	assert.Len(t, res.Msg.TrafficLight.Phases, 1)

	_, err = service.SetTrafficLightStatus(ctx, connect.NewRequest(&mapv2.SetTrafficLightStatusRequest{JunctionId: 200, Ok: false}))
	assert.NoError(t, err)

	// 重新加载后旧地图的路口与车道不再可见
	n.Init(&mapv2.Map{})
	_, err = service.GetTrafficLight(ctx, connect.NewRequest(&mapv2.GetTrafficLightRequest{JunctionId: 200}))
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))
	assert.ErrorIs(t, err, junction.ErrUnknownJunction)
	assert.Empty(t, lanes.TrafficLanes())
	assert.Equal(t, 0, junctions.Len())
}

func TestProjectionDegenerateSegment(t *testing.T) {
	n := newNetwork(t, &mapv2.Map{Lanes: []*mapv2.Lane{
		driving(1, pt(0, 0, 0), pt(0, 0, 0), pt(0, 10, 0)),
		driving(2, pt(20, 0, 0), pt(20, 0, 0), pt(20, 0, 0), pt(30, 0, 0)),
		driving(3, pt(50, 0, 0), pt(50, 0, 0)),
	}})

	// 与第0段（长度为0）和第1段距离相等，朝向取第1段
	p, err := n.ProjectOntoNetwork(pt(0, -3, 0))
	require.NoError(t, err)
	assert.Equal(t, int32(1), p.Lane.ID())
	assert.Equal(t, 0, p.SegmentIndex)
	assert.InDelta(t, 0.0, p.S, 1e-9)
	assert.InDelta(t, math.Pi/2, p.Orientation.Yaw, 1e-9)

	// 连续两段退化
	l, ok := n.LaneAt(1)
	require.True(t, ok)
	p, err = n.ProjectOntoLane(pt(15, 1, 0), l)
	require.NoError(t, err)
	assert.Equal(t, 0, p.SegmentIndex)
	assert.InDelta(t, 0.0, p.S, 1e-9)
	assert.InDelta(t, 1.0, p.Orientation.Forward().X, 1e-9)

	// 全部退化时为零朝向
	l, ok = n.LaneAt(2)
	require.True(t, ok)
	p, err = n.ProjectOntoLane(pt(50, 5, 0), l)
	require.NoError(t, err)
	assert.Equal(t, geomutil.Orientation{}, p.Orientation)
}
