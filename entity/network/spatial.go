package network

import (
	"errors"
	"fmt"
	"math"

	"git.fiblab.net/general/common/v2/geometry"
	"github.com/tsinghua-fib-lab/agentsociety-roadnet/entity"
	"github.com/tsinghua-fib-lab/agentsociety-roadnet/utils/geomutil"
)

var (
	ErrNoLane    = errors.New("no lane in the network")
	ErrNoSegment = errors.New("lane has no segment")
)

// Projection 点在车道中心线上的投影
type Projection struct {
	Lane         entity.ILane
	Position     geometry.Point       // 投影点
	SegmentIndex int                  // 投影点所在线段的起点下标i，线段为line[i]->line[i+1]
	S            float64              // 投影点距车道起点的中心线长度
	Orientation  geomutil.Orientation // 沿线段方向的朝向，线段长度为0时取其后第一条非退化线段
}

// SpatialIndex 车道空间查询
// 功能：最近车道、下一个waypoint、点到车道的投影
// 说明：只读访问车道几何，车道列表顺序决定距离相等时的结果（先出现者优先）
type SpatialIndex struct {
	lanes   []entity.ILane
	metrics *Collector
}

// NewSpatialIndex 基于车道列表创建空间查询
// 参数：lanes-参与查询的车道（保持加载顺序），metrics-指标，可为nil
func NewSpatialIndex(lanes []entity.ILane, metrics *Collector) *SpatialIndex {
	return &SpatialIndex{lanes: lanes, metrics: metrics}
}

// FindClosestLane 查找距离pos最近的车道
// 功能：在所有至少有一条线段的车道中，求点到线段距离平方的全局最小值
// 参数：pos-查询点
// 返回：最近的车道；没有可用车道时返回false
// 算法说明：
// 1. 按加载顺序遍历车道，跳过waypoint少于2个的车道
// 2. 车道水平包围盒的距离平方是车道上任意点距离平方的下界，大于当前最小值时整条车道跳过
// 3. 逐线段计算截断投影距离平方，严格小于当前最小值才更新
func (s *SpatialIndex) FindClosestLane(pos geometry.Point) (entity.ILane, bool) {
	var best entity.ILane
	bestDistance := math.Inf(1)
	for _, lane := range s.lanes {
		if !lane.HasSegment() {
			continue
		}
		if geomutil.SqrDistanceToBound2D(lane.Bound(), pos) > bestDistance {
			continue
		}
		line := lane.Line()
		for i := 0; i < len(line)-1; i++ {
			if d := geomutil.SqrDistanceToSegment(line[i], line[i+1], pos); d < bestDistance {
				bestDistance = d
				best = lane
			}
		}
	}
	s.metrics.observeQuery(OpFindClosestLane, best != nil)
	return best, best != nil
}

// NextWaypointIndex pos在车道上对应的下一个waypoint下标
// 参数：pos-查询点，lane-车道，不要求属于本索引
// 返回：距离最近的线段line[i]->line[i+1]的终点下标i+1；车道为nil或waypoint少于2个时返回-1
func (s *SpatialIndex) NextWaypointIndex(pos geometry.Point, lane entity.ILane) int {
	i, _ := closestSegment(lane, pos)
	s.metrics.observeQuery(OpNextWaypointIndex, i >= 0)
	if i < 0 {
		return -1
	}
	return i + 1
}

// ProjectOntoNetwork 将pos投影到最近车道的中心线上
// 返回：投影结果；路网中没有可用车道时返回ErrNoLane
func (s *SpatialIndex) ProjectOntoNetwork(pos geometry.Point) (Projection, error) {
	lane, ok := s.FindClosestLane(pos)
	if !ok {
		s.metrics.observeQuery(OpProject, false)
		return Projection{}, fmt.Errorf("project %v: %w", pos, ErrNoLane)
	}
	return s.ProjectOntoLane(pos, lane)
}

// ProjectOntoLane 将pos投影到指定车道的中心线上
// 返回：投影结果，朝向沿投影点所在线段、以+Z为上方向；车道没有线段时返回ErrNoSegment
func (s *SpatialIndex) ProjectOntoLane(pos geometry.Point, lane entity.ILane) (Projection, error) {
	i, position := closestSegment(lane, pos)
	s.metrics.observeQuery(OpProject, i >= 0)
	if i < 0 {
		if lane == nil {
			return Projection{}, fmt.Errorf("project %v onto nil lane: %w", pos, ErrNoSegment)
		}
		return Projection{}, fmt.Errorf("project %v onto %v: %w", pos, lane, ErrNoSegment)
	}
	line := lane.Line()
	return Projection{
		Lane:         lane,
		Position:     position,
		SegmentIndex: i,
		S:            lane.CenterLineLengths()[i] + math.Sqrt(geomutil.SqrDistance(line[i], position)),
		Orientation:  geomutil.LookRotation(headingDirection(line, i)),
	}, nil
}

// headingDirection 第i段线段的方向向量
// 说明：第i段长度为0时向后取第一条非退化线段，全部退化时返回零向量；
// 最近线段严格取先出现者，退化线段只会在其前面的线段同样退化时被选中，因此无需向前查找
func headingDirection(line []geometry.Point, i int) geometry.Point {
	for k := i; k < len(line)-1; k++ {
		if d := geomutil.Sub(line[k+1], line[k]); geomutil.SqrMagnitude(d) > 0 {
			return d
		}
	}
	return geometry.Point{}
}

// closestSegment 车道上距离pos最近的线段
// 返回：线段起点下标与线段上的最近点；没有线段时下标为-1
func closestSegment(lane entity.ILane, pos geometry.Point) (int, geometry.Point) {
	if lane == nil || !lane.HasSegment() {
		return -1, geometry.Point{}
	}
	line := lane.Line()
	index := -1
	var closest geometry.Point
	bestDistance := math.Inf(1)
	for i := 0; i < len(line)-1; i++ {
		p := geomutil.ClosestPointOnSegment(line[i], line[i+1], pos)
		if d := geomutil.SqrDistance(p, pos); d < bestDistance {
			bestDistance = d
			index = i
			closest = p
		}
	}
	return index, closest
}
