package trafficlight

import (
	"fmt"

	"git.fiblab.net/general/common/v2/mathutil"
	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	"github.com/tsinghua-fib-lab/agentsociety-roadnet/entity"
)

// localTlRuntime 本地信号灯运行时数据结构
type localTlRuntime struct {
	tl           *mapv2.TrafficLight
	tlStep       int32
	tlTotalTime  float64
	tlRemainingT float64
}

// localTrafficLight 本地固定相位信号灯控制器
// 功能：按照预设的相位顺序和时间循环切换，作为路口的控制循环
// 说明：running为false时为Idle状态，Prepare/Update不做任何事
type localTrafficLight struct {
	JunctionID int32                            // 所属junction ID
	lanes      []entity.ILaneTrafficLightSetter // 车道数据，与相位states一一对应

	timeBeforeChange [][]float64     // 下一次信号灯变化时间（相位切换时不一定所有的信号灯都变）
	snapshot         localTlRuntime  // snapshot，用于保存输出的数据
	runtime          localTlRuntime  // 运行时数据
	buffer           *localTlRuntime // 数据buffer，用于交互式接口写入(optional)
	ok               bool            // 信号灯状态，true为开启，false为关闭
	okBuffer         bool            // 信号灯状态buffer，用于交互式接口写入
	running          bool            // 控制循环是否运行
}

// NewLocalTrafficLight 创建固定相位信号灯控制器
// 参数：junctionID-路口ID，lanes-车道列表
// 返回：处于Idle状态、没有信控程序的控制器
func NewLocalTrafficLight(junctionID int32, lanes []entity.ILaneTrafficLightSetter) *localTrafficLight {
	return &localTrafficLight{
		JunctionID:       junctionID,
		lanes:            lanes,
		timeBeforeChange: make([][]float64, 0),
		runtime:          localTlRuntime{},
		ok:               true,
		okBuffer:         true,
	}
}

// Start 启动控制循环
func (l *localTrafficLight) Start() {
	l.running = true
}

// Stop 停止控制循环
func (l *localTrafficLight) Stop() {
	l.running = false
}

func (l *localTrafficLight) Running() bool {
	return l.running
}

// Prepare 准备阶段
// 功能：更新信号灯开关状态与snapshot，将当前相位信息写入车道
// 说明：没有信控程序或信号灯关闭时所有车道为全绿
func (l *localTrafficLight) Prepare() {
	if !l.running {
		return
	}
	l.ok = l.okBuffer
	l.snapshot = l.runtime
	l.writeLanes()
}

func (l *localTrafficLight) writeLanes() {
	if l.snapshot.tl == nil || !l.ok {
		for _, lane := range l.lanes {
			lane.SetLight(mapv2.LightState_LIGHT_STATE_GREEN, mathutil.INF, mathutil.INF)
		}
		return
	}
	p := l.snapshot.tl.Phases[l.snapshot.tlStep]
	for i, lane := range l.lanes {
		lane.SetLight(
			p.States[i],
			l.snapshot.tlTotalTime+l.timeBeforeChange[i][l.snapshot.tlStep],  // total time
			l.snapshot.tlRemainingT+l.timeBeforeChange[i][l.snapshot.tlStep], // remaining time
		)
	}
}

// Update 更新阶段，推进固定相位信号灯
// 参数：dt-时间步长
// 算法说明：
// 1. 处理buffer中的新程序设置
// 2. 根据剩余时间进行相位切换，跳过时长为0的相位
func (l *localTrafficLight) Update(dt float64) {
	if !l.running {
		return
	}
	if l.buffer != nil {
		l.apply(*l.buffer)
		l.buffer = nil
	}
	if l.runtime.tl == nil || !l.ok {
		return
	}

	l.runtime.tlRemainingT -= dt
	if l.runtime.tlRemainingT <= 0 {
		l.runtime.tlRemainingT = 0
		l.runtime.tlTotalTime = 0
		for {
			l.runtime.tlStep = (l.runtime.tlStep + 1) % int32(len(l.runtime.tl.Phases))
			l.runtime.tlRemainingT += l.runtime.tl.Phases[l.runtime.tlStep].Duration
			if l.runtime.tlRemainingT > 0 {
				l.runtime.tlTotalTime = l.runtime.tlRemainingT
				break
			}
		}
	}
}

// apply 切换运行时数据并重新计算每个车道在后续相位中的状态变化时间
func (l *localTrafficLight) apply(rt localTlRuntime) {
	l.runtime = rt
	if l.runtime.tlTotalTime == 0 {
		l.runtime.tlTotalTime = l.runtime.tlRemainingT
	}
	l.timeBeforeChange = make([][]float64, 0, len(l.lanes))
	if l.runtime.tl == nil {
		return
	}
	phases := l.runtime.tl.Phases
	numPhases := len(phases)
	for laneIndex := range l.lanes {
		time := make([]float64, numPhases)

		// 从后往前累计后续相位中状态保持不变的时长
		allTheSame := true
		for phaseIndex := numPhases - 2; phaseIndex >= 0; phaseIndex-- {
			if phases[phaseIndex].States[laneIndex] == phases[phaseIndex+1].States[laneIndex] {
				time[phaseIndex] = time[phaseIndex+1] + phases[phaseIndex+1].Duration
			} else {
				allTheSame = false
			}
		}

		if allTheSame {
			for idx := range time {
				time[idx] = mathutil.INF
			}
		} else {
			// 首尾相位状态一致时，尾部相位的剩余时长要加上首段的时长
			t0 := time[0] + phases[0].Duration
			lastState := phases[numPhases-1].States[laneIndex]
			if lastState == phases[0].States[laneIndex] {
				for phaseIndex := numPhases - 1; phaseIndex >= 0; phaseIndex-- {
					if lastState != phases[phaseIndex].States[laneIndex] {
						break
					}
					time[phaseIndex] += t0
				}
			}
		}
		l.timeBeforeChange = append(l.timeBeforeChange, time)
	}
}

// validate 检查信控程序与本路口是否匹配
func (l *localTrafficLight) validate(tl *mapv2.TrafficLight) error {
	if tl.JunctionId != l.JunctionID {
		return fmt.Errorf("set junction %d with wrong traffic light id %d", l.JunctionID, tl.JunctionId)
	}
	if len(tl.Phases) == 0 {
		return fmt.Errorf("set with empty traffic light")
	}
	for _, p := range tl.Phases {
		if len(p.States) != len(l.lanes) {
			return fmt.Errorf("number of lanes %d and traffic light states %d does not match", len(l.lanes), len(p.States))
		}
		if p.Duration < 0 {
			return fmt.Errorf("negative phase duration %v", p.Duration)
		}
	}
	if cycle := sumDuration(tl); cycle <= 0 {
		return fmt.Errorf("traffic light cycle length %v must be positive", cycle)
	}
	return nil
}

func sumDuration(tl *mapv2.TrafficLight) float64 {
	total := 0.0
	for _, p := range tl.Phases {
		total += p.Duration
	}
	return total
}

// initialRuntime 程序的初始相位，按路口ID错开
func (l *localTrafficLight) initialRuntime(tl *mapv2.TrafficLight) localTlRuntime {
	phaseIndex := l.JunctionID % int32(len(tl.Phases))
	if phaseIndex < 0 {
		phaseIndex += int32(len(tl.Phases))
	}
	return localTlRuntime{
		tl: tl, tlStep: phaseIndex, tlRemainingT: tl.Phases[phaseIndex].Duration,
	}
}

// Load 立即装载信控程序
// 功能：清空buffer，恢复信号灯开启状态，直接切换运行时数据与snapshot
// 参数：tl-信控程序，nil表示全绿
// 返回：程序无效时返回错误，原状态不变
func (l *localTrafficLight) Load(tl *mapv2.TrafficLight) error {
	rt := localTlRuntime{}
	if tl != nil {
		if err := l.validate(tl); err != nil {
			return err
		}
		rt = l.initialRuntime(tl)
	}
	l.buffer = nil
	l.ok, l.okBuffer = true, true
	l.apply(rt)
	l.snapshot = l.runtime
	return nil
}

// Get 获取当前信号灯程序
func (l *localTrafficLight) Get() *mapv2.TrafficLight {
	return l.snapshot.tl
}

// Set 设置信号灯程序
// 功能：验证程序有效性后写入buffer，延迟到下一个更新周期生效
func (l *localTrafficLight) Set(tl *mapv2.TrafficLight) error {
	if err := l.validate(tl); err != nil {
		return err
	}
	rt := l.initialRuntime(tl)
	l.buffer = &rt
	return nil
}

// Unset 取消信号灯程序（全绿），下一个更新周期生效
func (l *localTrafficLight) Unset() {
	l.buffer = &localTlRuntime{tl: nil, tlStep: 0, tlRemainingT: 0}
}

// SetPhase 设置信号灯相位
// 参数：offset-相位索引，remainingT-剩余时间
// 说明：没有信控程序或相位越界时忽略
func (l *localTrafficLight) SetPhase(offset int32, remainingT float64) {
	tl := l.runtime.tl
	if l.buffer != nil {
		tl = l.buffer.tl
	}
	if tl == nil || offset < 0 || int(offset) >= len(tl.Phases) {
		return
	}
	if l.buffer != nil {
		l.buffer.tlRemainingT = remainingT
		l.buffer.tlTotalTime = 0
		l.buffer.tlStep = offset
	} else {
		l.buffer = &localTlRuntime{
			tl: tl, tlStep: offset, tlRemainingT: remainingT,
		}
	}
}

// SetOk 设置信号灯开关状态
func (l *localTrafficLight) SetOk(ok bool) {
	l.okBuffer = ok
}

// Step 获取当前相位索引
func (l *localTrafficLight) Step() int32 {
	return l.snapshot.tlStep
}

// RemainingTime 获取当前相位剩余时间
func (l *localTrafficLight) RemainingTime() float64 {
	return l.snapshot.tlRemainingT
}

// Ok 获取信号灯状态
func (l *localTrafficLight) Ok() bool {
	return l.ok
}
