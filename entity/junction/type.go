package junction

import (
	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
)

// 依赖倒置，表达junction对信号灯实现的接口需求

// 给交通参与者提供的信控读取接口
type ITrafficLightGetter interface {
	Get() *mapv2.TrafficLight // 当前程序
	Step() int32              // 当前相位
	RemainingTime() float64   // 当前相位剩余时长
	Ok() bool                 // 当前信控开关情况
}

// 信号灯接口
// 信号灯即路口的控制循环，由仿真主循环的Prepare/Update驱动，不自行启动协程
type ITrafficLight interface {
	ITrafficLightGetter
	Prepare()          // 准备阶段，处理各种写入buffer，将信控结果写入到lane中
	Update(dt float64) // 更新阶段，推进信控相位

	Load(tl *mapv2.TrafficLight) error            // 立即装载信控程序（nil表示全绿），用于初始化与复位
	Set(tl *mapv2.TrafficLight) error             // 修改信控程序（下一次Update生效）
	Unset()                                       // 删除信控程序（全绿）
	SetPhase(offset int32, remainingTime float64) // 修改信控相位到指定值
	SetOk(ok bool)                                // 设置信控开关情况（true信控工作|false信控失效-全绿）

	Start()        // 启动控制循环，已运行时无操作
	Stop()         // 停止控制循环，停止后Prepare/Update不再推进
	Running() bool // 控制循环是否运行中
}
