package network

import (
	"git.fiblab.net/general/common/v2/geometry"
	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	"git.fiblab.net/sim/syncer/v3"
	"github.com/tsinghua-fib-lab/agentsociety-roadnet/entity"
	"github.com/tsinghua-fib-lab/agentsociety-roadnet/entity/junction"
	"github.com/tsinghua-fib-lab/agentsociety-roadnet/entity/lane"
)

// Network 路网状态
// 功能：持有车道、路口、人行道三个有序集合，提供空间查询与路口占用操作
// 说明：所有写操作由仿真主线程执行；集合顺序即地图中的顺序
type Network struct {
	ctx entity.ITaskContext

	laneManager     *lane.LaneManager
	junctionManager *junction.JunctionManager
	index           *SpatialIndex
	metrics         *Collector
}

// New 创建空路网
// 参数：ctx-任务上下文，metrics-指标，可为nil
func New(ctx entity.ITaskContext, metrics *Collector) *Network {
	n := &Network{
		ctx:             ctx,
		laneManager:     lane.NewManager(),
		junctionManager: junction.NewManager(ctx),
		metrics:         metrics,
	}
	n.Init(nil)
	return n
}

// Init 根据地图初始化路网
// 功能：建立车道（执行每条车道的setupTrigger）与路口（装载每个路口的初始信控），重建空间查询
// 参数：m-地图，为nil时路网为空但仍可查询
// 说明：复用New中创建的管理器实例，只重建其内部状态；路口的控制循环在Start之前保持Idle
func (n *Network) Init(m *mapv2.Map) {
	if m == nil {
		m = &mapv2.Map{}
	}
	n.laneManager.Init(m.Lanes)
	n.junctionManager.Init(m.Junctions, n.laneManager)
	n.index = NewSpatialIndex(n.laneManager.TrafficLanes(), n.metrics)

	n.metrics.setSizes(len(n.laneManager.TrafficLanes()), len(n.laneManager.PedestrianPaths()), n.junctionManager.Len())
	n.metrics.setOccupants(0)
	log.Infof(
		"network: %d traffic lanes, %d pedestrian paths, %d intersections",
		len(n.laneManager.TrafficLanes()), len(n.laneManager.PedestrianPaths()), n.junctionManager.Len(),
	)
}

// Register 注册信控RPC服务
func (n *Network) Register(sidecar *syncer.Sidecar) {
	n.junctionManager.Register(sidecar)
}

func (n *Network) LaneManager() entity.ILaneManager {
	return n.laneManager
}

func (n *Network) JunctionManager() entity.IJunctionManager {
	return n.junctionManager
}

// 按序号访问

// LaneAt 按地图顺序获取第index条行车道，越界或为空时返回false
func (n *Network) LaneAt(index int) (entity.ILane, bool) {
	return n.laneManager.TrafficLaneAt(index)
}

// PedestrianPathAt 按地图顺序获取第index条人行道，越界或为空时返回false
func (n *Network) PedestrianPathAt(index int) (entity.ILane, bool) {
	return n.laneManager.PedestrianPathAt(index)
}

// IntersectionAt 按地图顺序获取第index个路口，越界或为空时返回false
func (n *Network) IntersectionAt(index int) (entity.IJunction, bool) {
	return n.junctionManager.At(index)
}

// Intersection 根据ID获取路口
func (n *Network) Intersection(id int32) (entity.IJunction, error) {
	return n.junctionManager.GetOrError(id)
}

// 空间查询

func (n *Network) FindClosestLane(pos geometry.Point) (entity.ILane, bool) {
	return n.index.FindClosestLane(pos)
}

func (n *Network) NextWaypointIndex(pos geometry.Point, lane entity.ILane) int {
	return n.index.NextWaypointIndex(pos, lane)
}

func (n *Network) ProjectOntoNetwork(pos geometry.Point) (Projection, error) {
	return n.index.ProjectOntoNetwork(pos)
}

func (n *Network) ProjectOntoLane(pos geometry.Point, lane entity.ILane) (Projection, error) {
	return n.index.ProjectOntoLane(pos, lane)
}

// 路口占用

// EnterIntersection agent进入路口
// 返回：路口不存在时返回包装了junction.ErrUnknownJunction的错误
func (n *Network) EnterIntersection(junctionID, agentID int32) error {
	j, err := n.junctionManager.GetOrError(junctionID)
	if err != nil {
		return err
	}
	j.Enter(agentID)
	n.metrics.setOccupants(n.junctionManager.OccupantCount())
	return nil
}

// ExitIntersection agent离开路口
func (n *Network) ExitIntersection(junctionID, agentID int32) error {
	j, err := n.junctionManager.GetOrError(junctionID)
	if err != nil {
		return err
	}
	j.Exit(agentID)
	n.metrics.setOccupants(n.junctionManager.OccupantCount())
	return nil
}

// EnqueueStop agent加入路口的停车让行队列，非停车让行路口无效果
func (n *Network) EnqueueStop(junctionID, agentID int32) error {
	j, err := n.junctionManager.GetOrError(junctionID)
	if err != nil {
		return err
	}
	j.EnqueueStop(agentID)
	return nil
}

// DequeueStop agent移出路口的停车让行队列，非停车让行路口无效果
func (n *Network) DequeueStop(junctionID, agentID int32) error {
	j, err := n.junctionManager.GetOrError(junctionID)
	if err != nil {
		return err
	}
	j.DequeueStop(agentID)
	return nil
}

// OnAgentRemoved agent被移出仿真
// 功能：从所有路口的占用集合与停车让行队列中移除该agent，返回时已全部完成
func (n *Network) OnAgentRemoved(agentID int32) {
	n.junctionManager.RemoveAgent(agentID)
	n.metrics.setOccupants(n.junctionManager.OccupantCount())
}

// 控制循环

// Start 启动所有路口的控制循环
func (n *Network) Start() {
	n.junctionManager.Start()
}

// ResetAll 复位所有路口，返回时所有路口均已复位且控制循环处于Active
func (n *Network) ResetAll() {
	n.junctionManager.ResetAll()
	n.metrics.setOccupants(0)
	log.Debugf("network: %d intersections reset", n.junctionManager.Len())
}

// Prepare 准备阶段，将信控结果写入车道
// 说明：同时按各路口的实际占用刷新占用指标，直接通过IJunction进出路口的agent在此计入
func (n *Network) Prepare() {
	n.junctionManager.Prepare()
	n.metrics.setOccupants(n.junctionManager.OccupantCount())
}

// Update 更新阶段，推进所有路口的控制循环
func (n *Network) Update(dt float64) {
	n.junctionManager.Update(dt)
}
