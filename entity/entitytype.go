package entity

import (
	"git.fiblab.net/general/common/v2/geometry"
	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	"github.com/paulmach/orb"
)

// 路口控制循环状态
type ControlState int

const (
	ControlIdle   ControlState = iota // 控制循环未运行
	ControlActive                     // 控制循环运行中
)

func (s ControlState) String() string {
	switch s {
	case ControlIdle:
		return "Idle"
	case ControlActive:
		return "Active"
	default:
		return "Unknown"
	}
}

// entity/lane/lane.go的依赖倒置
type ILane interface {
	ILaneTrafficLightSetter

	// 初始化

	SetParentJunctionWhenInit(parent IJunction) // 设置lane所在junction

	// Print

	String() string

	// getter

	ID() int32                    // 获取Lane ID
	Type() mapv2.LaneType         // 获取Lane类型
	Length() float64              // 获取Lane长度（三维折线长度）
	Width() float64               // 获取Lane宽度
	Line() []geometry.Point       // 获取Lane的中心线（waypoint序列）
	CenterLineLengths() []float64 // 中心线各waypoint处的累计长度
	Bound() orb.Bound             // 中心线的水平包围盒
	HasSegment() bool             // 是否至少有一条线段（waypoint数>=2）

	ParentJunction() IJunction // 获取Lane所在的Junction
	InJunction() bool          // 检查Lane是否为Junction Lane
	IsNoEntry() bool           // 检查车道是否不能通行（不是绿灯）

	Light() (state mapv2.LightState, totalTime float64, remainingTime float64) // 获取信号灯状态
}

// 车道的信控接口
type ILaneTrafficLightSetter interface {
	SetLight(state mapv2.LightState, totalTime float64, remainingTime float64) // 设置信号灯状态
	IsWalkLane() bool                                                          // 检查是否是人行道
}

// entity/junction/junction.go的依赖倒置
type IJunction interface {
	ID() int32              // 获取Junction ID
	Lanes() map[int32]ILane // 获取Junction内的所有车道（Lane ID -> Lane）
	HasTrafficLight() bool  // 判断是否有信号灯
	IsStopSign() bool       // 是否为停车让行路口

	// 路口占用

	Enter(agentID int32)               // agent进入路口（幂等）
	Exit(agentID int32)                // agent离开路口（幂等）
	InIntersection(agentID int32) bool // agent是否在路口内
	Occupants() []int32                // 路口内的agent（按ID升序）

	// 停车让行队列

	EnqueueStop(agentID int32)    // 加入停车队列（非停车让行路口无操作）
	DequeueStop(agentID int32)    // 按身份移出停车队列（非停车让行路口无操作）
	StopQueue() []int32           // 停车队列（到达顺序）
	StopQueueHead() (int32, bool) // 队首agent，即当前可以通行的agent

	// 控制循环

	StartControlLoop()          // 启动控制循环，已运行时无操作
	StopControlLoop()           // 停止控制循环，未运行时无操作
	ControlState() ControlState // 控制循环状态
	Reset()                     // 清空占用与停车队列，重新装载初始信控并重启控制循环
}
