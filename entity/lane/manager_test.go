package lane_test

import (
	"testing"

	geov2 "git.fiblab.net/sim/protos/v2/go/city/geo/v2"
	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/agentsociety-roadnet/entity/lane"
)

func xyz(x, y, z float64) *geov2.XYPosition {
	return &geov2.XYPosition{X: x, Y: y, Z: &z}
}

func newPb(id int32, typ mapv2.LaneType, nodes ...*geov2.XYPosition) *mapv2.Lane {
	return &mapv2.Lane{
		Id:         id,
		Type:       typ,
		CenterLine: &geov2.Polyline{Nodes: nodes},
	}
}

func TestManagerOrder(t *testing.T) {
	m := lane.NewManager()
	m.Init([]*mapv2.Lane{
		newPb(7, mapv2.LaneType_LANE_TYPE_DRIVING, xyz(0, 0, 0), xyz(3, 4, 0)),
		newPb(3, mapv2.LaneType_LANE_TYPE_WALKING, xyz(0, 0, 0), xyz(0, 1, 0)),
		newPb(5, mapv2.LaneType_LANE_TYPE_DRIVING, xyz(1, 1, 1)),
		newPb(9, mapv2.LaneType_LANE_TYPE_RAIL_TRANSIT, xyz(0, 0, 0), xyz(1, 0, 0)),
		newPb(4, mapv2.LaneType_LANE_TYPE_WALKING),
	})

	require.Len(t, m.TrafficLanes(), 2)
	require.Len(t, m.PedestrianPaths(), 2)
	assert.Equal(t, int32(7), m.TrafficLanes()[0].ID())
	assert.Equal(t, int32(5), m.TrafficLanes()[1].ID())
	assert.Equal(t, int32(3), m.PedestrianPaths()[0].ID())
	assert.Equal(t, int32(4), m.PedestrianPaths()[1].ID())

	l, ok := m.TrafficLaneAt(1)
	assert.True(t, ok)
	assert.Equal(t, int32(5), l.ID())
	_, ok = m.TrafficLaneAt(2)
	assert.False(t, ok)
	_, ok = m.TrafficLaneAt(-1)
	assert.False(t, ok)
	p, ok := m.PedestrianPathAt(0)
	assert.True(t, ok)
	assert.True(t, p.IsWalkLane())
	assert.Equal(t, "PedestrianPath 3", p.String())

	// 轨道交通车道不被接受
	_, err := m.GetOrError(9)
	assert.Error(t, err)
	assert.Panics(t, func() { m.Get(9) })
	got, err := m.GetOrError(7)
	assert.NoError(t, err)
	assert.Equal(t, "Lane 7", got.String())
}

func TestLaneGeometry(t *testing.T) {
	m := lane.NewManager()
	m.Init([]*mapv2.Lane{
		newPb(1, mapv2.LaneType_LANE_TYPE_DRIVING, xyz(0, 0, 0), xyz(3, 4, 0), xyz(3, 4, 12)),
		newPb(2, mapv2.LaneType_LANE_TYPE_DRIVING, xyz(1, 1, 1)),
		newPb(3, mapv2.LaneType_LANE_TYPE_DRIVING),
		{Id: 4, Type: mapv2.LaneType_LANE_TYPE_DRIVING},
	})

	l := m.Get(1)
	assert.True(t, l.HasSegment())
	assert.InDelta(t, 17.0, l.Length(), 1e-9)
	assert.InDeltaSlice(t, []float64{0, 5, 17}, l.CenterLineLengths(), 1e-9)
	assert.Equal(t, 0.0, l.Bound().Min[0])
	assert.Equal(t, 4.0, l.Bound().Max[1])

	for _, id := range []int32{2, 3, 4} {
		d := m.Get(id)
		assert.False(t, d.HasSegment())
		assert.Equal(t, 0.0, d.Length())
	}
}

func TestLaneLight(t *testing.T) {
	m := lane.NewManager()
	m.Init([]*mapv2.Lane{newPb(1, mapv2.LaneType_LANE_TYPE_DRIVING, xyz(0, 0, 0), xyz(1, 0, 0))})
	l := m.Get(1)

	state, _, _ := l.Light()
	assert.Equal(t, mapv2.LightState_LIGHT_STATE_GREEN, state)
	l.SetLight(mapv2.LightState_LIGHT_STATE_RED, 30, 12)
	state, total, remaining := l.Light()
	assert.Equal(t, mapv2.LightState_LIGHT_STATE_RED, state)
	assert.Equal(t, 30.0, total)
	assert.Equal(t, 12.0, remaining)
	// 不在路口内的车道不受信号灯限制
	assert.False(t, l.IsNoEntry())
	assert.False(t, l.InJunction())
}
