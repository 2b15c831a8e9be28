package junction

import (
	"errors"
	"fmt"
	"slices"

	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/agentsociety-roadnet/entity"
	"github.com/tsinghua-fib-lab/agentsociety-roadnet/entity/junction/trafficlight"
	"google.golang.org/protobuf/proto"
)

var (
	ErrDisabledTrafficLight = errors.New("traffic light is disabled for the junction")
	ErrUnknownJunction      = errors.New("unknown junction")
)

// Junction 路口实体
// 功能：维护路口内的agent占用集合、停车让行队列以及路口的控制循环（信号灯）
// 说明：所有写操作由仿真主线程执行，Prepare/Update阶段每个路口只被一个协程访问
type Junction struct {
	ctx entity.ITaskContext

	id           int32
	laneIDs      []int32
	lanes        map[int32]entity.ILane // 车道id->车道指针映射表
	trafficLight ITrafficLight          // 控制循环
	phases       [][]mapv2.LightState   // 可用相位
	fixedProgram *mapv2.TrafficLight    // 地图给出的固定信控程序
	isStopSign   bool                   // 停车让行路口（没有任何信控数据）

	occupants map[int32]struct{} // 路口内的agent
	stopQueue []int32            // 停车让行队列，按到达顺序排列
}

// newJunction 创建并初始化一个新的Junction实例
// 功能：根据基础数据创建Junction对象，建立车道映射并创建信号灯控制器
// 参数：ctx-任务上下文，base-基础Junction数据，laneManager-车道管理器
// 返回：Junction实例，需再调用setTriggerAndState装载初始信控
// 说明：地图中不存在或类型不受支持的车道记录警告后跳过
func newJunction(
	ctx entity.ITaskContext,
	base *mapv2.Junction,
	laneManager entity.ILaneManager,
) *Junction {
	j := &Junction{
		ctx:          ctx,
		id:           base.Id,
		laneIDs:      make([]int32, 0, len(base.LaneIds)),
		lanes:        make(map[int32]entity.ILane),
		fixedProgram: base.FixedProgram,
		occupants:    make(map[int32]struct{}),
		stopQueue:    make([]int32, 0),
	}

	// 初始化车道映射和信号灯设置
	lanes := make([]entity.ILaneTrafficLightSetter, 0, len(base.LaneIds))
	for _, laneID := range base.LaneIds {
		lane, err := laneManager.GetOrError(laneID)
		if err != nil {
			log.Warnf("junction %d: skip lane: %v", j.id, err)
			continue
		}
		lane.SetParentJunctionWhenInit(j)
		j.laneIDs = append(j.laneIDs, laneID)
		j.lanes[laneID] = lane
		lanes = append(lanes, lane)
	}

	// 转换可用相位数据
	j.phases = lo.Map(base.Phases, func(p *mapv2.AvailablePhase, _ int) []mapv2.LightState {
		return p.States
	})
	j.isStopSign = (j.fixedProgram == nil || len(j.fixedProgram.Phases) == 0) && len(j.phases) == 0
	j.trafficLight = trafficlight.NewLocalTrafficLight(j.id, lanes)
	return j
}

// initialProgram 路口的初始信控程序
// 算法说明：
// 1. 优先使用地图给出的固定程序
// 2. 只有可用相位时，每个相位取默认时长生成程序
// 3. 停车让行路口没有程序（全绿）
func (j *Junction) initialProgram() *mapv2.TrafficLight {
	if j.isStopSign {
		return nil
	}
	if j.fixedProgram != nil && len(j.fixedProgram.Phases) > 0 {
		tl := proto.Clone(j.fixedProgram).(*mapv2.TrafficLight)
		tl.JunctionId = j.id
		return tl
	}
	duration := j.ctx.RuntimeConfig().C.DefaultPhaseTime
	return &mapv2.TrafficLight{
		JunctionId: j.id,
		Phases: lo.Map(j.phases, func(states []mapv2.LightState, _ int) *mapv2.Phase {
			return &mapv2.Phase{Duration: duration, States: states}
		}),
	}
}

// setTriggerAndState 装载初始信控程序
// 说明：程序与车道不匹配时记录警告并退化为全绿
func (j *Junction) setTriggerAndState() {
	if err := j.trafficLight.Load(j.initialProgram()); err != nil {
		log.Warnf("junction %d: invalid initial traffic light, fallback to all green: %v", j.id, err)
		if err := j.trafficLight.Load(nil); err != nil {
			log.Panicf("junction %d: load empty traffic light: %v", j.id, err)
		}
	}
}

func (j *Junction) prepare() {
	j.trafficLight.Prepare()
}

func (j *Junction) update(dt float64) {
	j.trafficLight.Update(dt)
}

// ID 获取Junction的唯一标识符
// 返回：Junction的ID，如果Junction为nil则返回-1
func (j *Junction) ID() int32 {
	if j == nil {
		return -1
	}
	return j.id
}

func (j *Junction) String() string {
	return fmt.Sprintf("Junction %d", j.id)
}

// Lanes 获取Junction内的所有车道映射
func (j *Junction) Lanes() map[int32]entity.ILane {
	return j.lanes
}

// HasTrafficLight 判断是否有信号灯
// 返回：true表示有信控程序且正常工作，false表示没有信号灯或信号灯失效
func (j *Junction) HasTrafficLight() bool {
	return j.trafficLight.Get() != nil && j.trafficLight.Ok()
}

func (j *Junction) IsStopSign() bool {
	return j.isStopSign
}

// 路口占用

// Enter agent进入路口，重复进入无效果
func (j *Junction) Enter(agentID int32) {
	j.occupants[agentID] = struct{}{}
}

// Exit agent离开路口，不在路口内时无效果
func (j *Junction) Exit(agentID int32) {
	delete(j.occupants, agentID)
}

func (j *Junction) InIntersection(agentID int32) bool {
	_, ok := j.occupants[agentID]
	return ok
}

// Occupants 路口内的agent，按ID升序
func (j *Junction) Occupants() []int32 {
	ids := lo.Keys(j.occupants)
	slices.Sort(ids)
	return ids
}

// 停车让行队列

// EnqueueStop 加入停车让行队列
// 说明：已在队列中或路口不是停车让行路口时无效果
func (j *Junction) EnqueueStop(agentID int32) {
	if !j.isStopSign || lo.Contains(j.stopQueue, agentID) {
		return
	}
	j.stopQueue = append(j.stopQueue, agentID)
}

// DequeueStop 按身份移出停车让行队列，其余agent保持原有顺序
func (j *Junction) DequeueStop(agentID int32) {
	if !j.isStopSign {
		return
	}
	j.stopQueue = lo.Without(j.stopQueue, agentID)
}

// StopQueue 停车让行队列的副本
func (j *Junction) StopQueue() []int32 {
	return slices.Clone(j.stopQueue)
}

// StopQueueHead 队首agent，即当前可以通过路口的agent
func (j *Junction) StopQueueHead() (int32, bool) {
	if len(j.stopQueue) == 0 {
		return 0, false
	}
	return j.stopQueue[0], true
}

// 控制循环

// StartControlLoop 启动控制循环，已运行时无效果
func (j *Junction) StartControlLoop() {
	j.trafficLight.Start()
}

// StopControlLoop 停止控制循环，未运行时无效果
func (j *Junction) StopControlLoop() {
	j.trafficLight.Stop()
}

func (j *Junction) ControlState() entity.ControlState {
	if j.trafficLight.Running() {
		return entity.ControlActive
	}
	return entity.ControlIdle
}

// Reset 复位路口
// 功能：清空占用集合与停车让行队列，停止控制循环，重新装载初始信控后再次启动
func (j *Junction) Reset() {
	clear(j.occupants)
	j.stopQueue = j.stopQueue[:0]
	j.StopControlLoop()
	j.setTriggerAndState()
	j.StartControlLoop()
}

// 信控接口

// SetTrafficLight 设置信号灯程序
// 返回：停车让行路口返回ErrDisabledTrafficLight，程序无效时返回错误
func (j *Junction) SetTrafficLight(tl *mapv2.TrafficLight) error {
	if j.isStopSign {
		return ErrDisabledTrafficLight
	}
	return j.trafficLight.Set(tl)
}

func (j *Junction) unsetTrafficLight() error {
	if j.isStopSign {
		return ErrDisabledTrafficLight
	}
	j.trafficLight.Unset()
	return nil
}

func (j *Junction) setPhase(offset int32, remainingTime float64) error {
	if j.isStopSign {
		return ErrDisabledTrafficLight
	}
	j.trafficLight.SetPhase(offset, remainingTime)
	return nil
}

func (j *Junction) setStatus(ok bool) error {
	if j.isStopSign {
		return ErrDisabledTrafficLight
	}
	j.trafficLight.SetOk(ok)
	return nil
}
