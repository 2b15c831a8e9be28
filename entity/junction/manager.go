package junction

import (
	"fmt"

	"git.fiblab.net/general/common/v2/parallel"
	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	mapv2connect "git.fiblab.net/sim/protos/v2/go/city/map/v2/mapv2connect"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/agentsociety-roadnet/entity"
)

// Junction管理器
type JunctionManager struct {
	mapv2connect.UnimplementedTrafficLightServiceHandler
	mapv2connect.UnimplementedJunctionServiceHandler

	ctx entity.ITaskContext

	data      map[int32]*Junction
	junctions []*Junction
}

// NewManager 创建Junction管理器实例
// 参数：ctx-任务上下文
// 返回：新创建的Junction管理器实例
func NewManager(ctx entity.ITaskContext) *JunctionManager {
	return &JunctionManager{
		ctx:       ctx,
		data:      make(map[int32]*Junction),
		junctions: make([]*Junction, 0),
	}
}

// Init 初始化所有Junction及其信控
// 功能：根据protobuf数据创建Junction对象，建立车道映射关系，并为每个路口装载一次初始信控
// 参数：pbs-Junction的protobuf数据列表，laneManager-车道管理器
// 说明：junctions保持地图顺序；控制循环在Start之前保持Idle
func (m *JunctionManager) Init(pbs []*mapv2.Junction, laneManager entity.ILaneManager) {
	m.junctions = parallel.GoMap(pbs, func(pb *mapv2.Junction) *Junction {
		return newJunction(m.ctx, pb, laneManager)
	})
	parallel.GoFor(m.junctions, func(j *Junction) { j.setTriggerAndState() })
	m.data = lo.SliceToMap(m.junctions, func(j *Junction) (int32, *Junction) {
		return j.id, j
	})
	if len(m.data) != len(m.junctions) {
		log.Warnf("duplicated junction ids: %d junctions but %d ids", len(m.junctions), len(m.data))
	}
	stopSigns := lo.CountBy(m.junctions, func(j *Junction) bool { return j.isStopSign })
	log.Infof("junction: %d junctions, %d stop-sign controlled", len(m.junctions), stopSigns)
}

// Get 根据ID获取Junction实例，如果不存在则panic
func (m *JunctionManager) Get(id int32) entity.IJunction {
	if junction, ok := m.data[id]; !ok {
		log.Panicf("no id %d in junction data", id)
		return nil
	} else {
		return junction
	}
}

// GetOrError 根据ID获取Junction实例
// 返回：不存在时返回包装了ErrUnknownJunction的错误
func (m *JunctionManager) GetOrError(id int32) (entity.IJunction, error) {
	if junction, ok := m.data[id]; !ok {
		return nil, fmt.Errorf("no id %d in junction data: %w", id, ErrUnknownJunction)
	} else {
		return junction, nil
	}
}

// At 按地图顺序获取第index个Junction
func (m *JunctionManager) At(index int) (entity.IJunction, bool) {
	if index < 0 || index >= len(m.junctions) {
		return nil, false
	}
	return m.junctions[index], true
}

func (m *JunctionManager) Len() int {
	return len(m.junctions)
}

// Start 启动所有路口的控制循环
func (m *JunctionManager) Start() {
	for _, j := range m.junctions {
		j.StartControlLoop()
	}
}

// ResetAll 复位所有路口，返回时所有路口均已复位
func (m *JunctionManager) ResetAll() {
	for _, j := range m.junctions {
		j.Reset()
	}
}

// RemoveAgent 从所有路口的占用集合与停车让行队列中移除agent
func (m *JunctionManager) RemoveAgent(agentID int32) {
	for _, j := range m.junctions {
		j.Exit(agentID)
		j.DequeueStop(agentID)
	}
}

// OccupantCount 所有路口内agent的总数
func (m *JunctionManager) OccupantCount() int {
	return lo.SumBy(m.junctions, func(j *Junction) int { return len(j.occupants) })
}

// Prepare 准备阶段，将各路口信控结果写入车道
func (m *JunctionManager) Prepare() {
	parallel.GoFor(m.junctions, func(j *Junction) { j.prepare() })
}

// Update 更新阶段，推进各路口的控制循环
// 参数：dt-时间步长
func (m *JunctionManager) Update(dt float64) {
	parallel.GoFor(m.junctions, func(j *Junction) { j.update(dt) })
}
