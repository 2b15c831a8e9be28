package lane

import (
	"fmt"

	"git.fiblab.net/general/common/v2/parallel"
	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/agentsociety-roadnet/entity"
)

// LaneManager Lane管理器
// 功能：管理所有Lane实体，按地图顺序维护行车道与人行道两个列表
// 说明：列表顺序即加载顺序，按序号访问与最近车道查询的平局规则都依赖该顺序
type LaneManager struct {
	data            map[int32]*Lane
	lanes           []*Lane
	trafficLanes    []entity.ILane
	pedestrianPaths []entity.ILane
}

// NewManager 创建Lane管理器实例
func NewManager() *LaneManager {
	return &LaneManager{
		data:            make(map[int32]*Lane),
		lanes:           make([]*Lane, 0),
		trafficLanes:    make([]entity.ILane, 0),
		pedestrianPaths: make([]entity.ILane, 0),
	}
}

// Init 初始化所有Lane
// 功能：根据protobuf数据创建Lane对象，执行每条车道的setupTrigger，建立ID映射与两个有序列表
// 参数：pbs-Lane的protobuf数据列表
// 说明：只接受行车道与人行道，其他类型（如轨道交通）记录警告后忽略
func (m *LaneManager) Init(pbs []*mapv2.Lane) {
	pbs = lo.Filter(pbs, func(pb *mapv2.Lane, _ int) bool {
		switch pb.Type {
		case mapv2.LaneType_LANE_TYPE_DRIVING, mapv2.LaneType_LANE_TYPE_WALKING:
			return true
		default:
			log.Warnf("ignore lane %d with unsupported type %v", pb.Id, pb.Type)
			return false
		}
	})
	m.lanes = parallel.GoMap(pbs, newLane)
	parallel.GoFor(m.lanes, func(l *Lane) { l.setupTrigger() })
	m.data = make(map[int32]*Lane, len(m.lanes))
	for _, l := range m.lanes {
		if _, ok := m.data[l.id]; ok {
			log.Warnf("duplicated lane id %d, the later one shadows the former in id lookup", l.id)
		}
		m.data[l.id] = l
	}
	m.trafficLanes = make([]entity.ILane, 0)
	m.pedestrianPaths = make([]entity.ILane, 0)
	for _, l := range m.lanes {
		if l.IsWalkLane() {
			m.pedestrianPaths = append(m.pedestrianPaths, l)
		} else {
			m.trafficLanes = append(m.trafficLanes, l)
		}
	}
	log.Infof("lane: %d traffic lanes, %d pedestrian paths", len(m.trafficLanes), len(m.pedestrianPaths))
}

// Get 根据ID获取Lane实例，如果不存在则panic
func (m *LaneManager) Get(id int32) entity.ILane {
	if lane, ok := m.data[id]; !ok {
		log.Panicf("no id %d in lane data", id)
		return nil
	} else {
		return lane
	}
}

// GetOrError 根据ID获取Lane实例，如果不存在则返回错误
func (m *LaneManager) GetOrError(id int32) (entity.ILane, error) {
	if lane, ok := m.data[id]; !ok {
		return nil, fmt.Errorf("no id %d in lane data", id)
	} else {
		return lane, nil
	}
}

func (m *LaneManager) TrafficLanes() []entity.ILane {
	return m.trafficLanes
}

func (m *LaneManager) PedestrianPaths() []entity.ILane {
	return m.pedestrianPaths
}

// TrafficLaneAt 按加载顺序获取第index条行车道
func (m *LaneManager) TrafficLaneAt(index int) (entity.ILane, bool) {
	return at(m.trafficLanes, index)
}

// PedestrianPathAt 按加载顺序获取第index条人行道
func (m *LaneManager) PedestrianPathAt(index int) (entity.ILane, bool) {
	return at(m.pedestrianPaths, index)
}

func at(lanes []entity.ILane, index int) (entity.ILane, bool) {
	if index < 0 || index >= len(lanes) {
		return nil, false
	}
	return lanes[index], true
}
