package entity

import (
	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	"git.fiblab.net/sim/syncer/v3"
)

// Manager依赖倒置

// entity/lane/manager.go的依赖倒置
type ILaneManager interface {
	Init(pbs []*mapv2.Lane) // 初始化，按地图顺序建立行车道与人行道两个列表

	// 输入Lane ID，查找Lane，如果不存在则panic
	Get(id int32) ILane
	// 输入Lane ID，查找Lane，如果不存在则返回error
	GetOrError(id int32) (ILane, error)

	TrafficLanes() []ILane    // 行车道（地图顺序）
	PedestrianPaths() []ILane // 人行道（地图顺序）
	// 按序号获取行车道，越界或为空时返回false
	TrafficLaneAt(index int) (ILane, bool)
	// 按序号获取人行道，越界或为空时返回false
	PedestrianPathAt(index int) (ILane, bool)
}

// entity/junction/manager.go的依赖倒置
type IJunctionManager interface {
	Init(pbs []*mapv2.Junction, laneManager ILaneManager) // 初始化
	Register(sidecar *syncer.Sidecar)                     // 注册到Sidecar

	// 输入Junction ID，查找Junction，如果不存在则panic
	Get(id int32) IJunction
	// 输入Junction ID，查找Junction，如果不存在则返回error
	GetOrError(id int32) (IJunction, error)
	// 按序号获取Junction，越界或为空时返回false
	At(index int) (IJunction, bool)
	Len() int // Junction数量

	Start()                    // 启动所有路口的控制循环
	ResetAll()                 // 复位所有路口
	RemoveAgent(agentID int32) // 从所有路口的记录中移除agent
	OccupantCount() int        // 所有路口内agent总数

	Prepare()          // 准备阶段
	Update(dt float64) // 更新阶段
}
