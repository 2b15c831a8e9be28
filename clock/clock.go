package clock

import (
	"fmt"
	"math"
	"sync/atomic"

	"git.fiblab.net/sim/protos/v2/go/city/clock/v1/clockv1connect"
	"github.com/tsinghua-fib-lab/agentsociety-roadnet/utils/config"
)

// Clock 仿真时钟管理器
// 功能：管理仿真系统的时间推进与episode计数
// 说明：每个episode覆盖[START_STEP, END_STEP)，episode结束后回到START_STEP
type Clock struct {
	clockv1connect.UnimplementedClockServiceHandler

	DT         float64 // 每个模拟步时间间隔（秒）
	START_STEP int32   // 起始步
	END_STEP   int32   // 结束步，模拟区间[START, END)
	EPISODES   int32   // episode总数

	T            float64 // 当前时间（秒）
	InternalStep int32   // 当前步数
	Episode      int32   // 当前episode序号，从0开始

	snapshot atomic.Uint64 // 供RPC读取的T（float64 bits）
}

// New 根据配置创建新的时钟实例
// 参数：stepConfig-控制步配置，episodes-episode总数
// 返回：初始化完成的时钟实例
func New(stepConfig config.ControlStep, episodes int32) *Clock {
	c := &Clock{
		DT:         stepConfig.Interval,
		START_STEP: stepConfig.Start,
		END_STEP:   stepConfig.Start + stepConfig.Total,
		EPISODES:   episodes,
	}
	c.Init()
	return c
}

// Init 重置到当前episode的起始时刻
func (c *Clock) Init() {
	c.InternalStep = c.START_STEP
	c.T = float64(c.InternalStep) * c.DT
	c.publish()
}

// Step 推进一步
func (c *Clock) Step() {
	c.InternalStep++
	c.T = float64(c.InternalStep) * c.DT
	c.publish()
}

func (c *Clock) publish() {
	c.snapshot.Store(math.Float64bits(c.T))
}

func (c *Clock) published() float64 {
	return math.Float64frombits(c.snapshot.Load())
}

// EpisodeDone 当前episode是否已到最后一步
func (c *Clock) EpisodeDone() bool {
	return c.InternalStep+1 >= c.END_STEP
}

// LastEpisode 是否处于最后一个episode
func (c *Clock) LastEpisode() bool {
	return c.Episode+1 >= c.EPISODES
}

// NextEpisode 进入下一个episode，时间回到起始时刻
func (c *Clock) NextEpisode() {
	c.Episode++
	c.Init()
}

// String 获取时钟的字符串表示
// 返回：格式化的时间字符串（E<episode> HH:MM:SS）
func (c *Clock) String() string {
	t := c.T
	h := int(t / 3600)
	t -= float64(h * 3600)
	m := int(t / 60)
	t -= float64(m * 60)
	s := int(t)
	return fmt.Sprintf("E%d %02d:%02d:%02d", c.Episode, h, m, s)
}

// GetHourMinuteSecond 获取当前时间的小时、分钟、秒
// 返回：小时、分钟、秒（秒为浮点数，支持亚秒级精度）
func (c *Clock) GetHourMinuteSecond() (int, int, float64) {
	hour := int(c.T) / 3600
	minute := int(c.T) % 3600 / 60
	second := c.T - float64(hour*3600+minute*60)
	return hour, minute, second
}
