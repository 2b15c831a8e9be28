package lane

import (
	"fmt"
	"math"

	"git.fiblab.net/general/common/v2/geometry"
	"git.fiblab.net/general/common/v2/mathutil"
	geov2 "git.fiblab.net/sim/protos/v2/go/city/geo/v2"
	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	"github.com/paulmach/orb"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/agentsociety-roadnet/entity"
	"github.com/tsinghua-fib-lab/agentsociety-roadnet/utils/geomutil"
)

// Lane 车道实体
// 功能：表示地图中的行车道或人行道，保存中心线waypoint与信号灯状态
// 说明：中心线在加载后不再修改，空间查询只读访问
type Lane struct {
	id int32

	typ            mapv2.LaneType   // 车道类型
	turn           mapv2.LaneTurn   // 转向类型
	width          float64          // 车道宽度
	parentJunction entity.IJunction // 所在路口
	line           []geometry.Point // 中心线waypoint

	// setupTrigger计算的派生数据

	triggerReady bool
	lineLengths  []float64 // 中心线折线点对应的累计长度
	length       float64   // 以中心线的长度为车道长度
	bound        orb.Bound // 中心线水平包围盒

	lightState              mapv2.LightState // 车道信号灯状态
	lightStateTotalTime     float64          // 车道信号灯本相位总时长
	lightStateRemainingTime float64          // 车道信号灯下一次切换时间
}

// newLane 创建一个新的Lane实例
// 功能：从地图数据复制中心线与基础属性
// 参数：base-基础Lane数据
// 返回：Lane实例，需再调用setupTrigger完成初始化
// 说明：CenterLine缺失时视为没有waypoint的退化车道
func newLane(base *mapv2.Lane) *Lane {
	l := &Lane{
		id:                      base.Id,
		typ:                     base.Type,
		turn:                    base.Turn,
		width:                   base.Width,
		line:                    make([]geometry.Point, 0),
		lineLengths:             make([]float64, 0),
		lightState:              mapv2.LightState_LIGHT_STATE_GREEN,
		lightStateTotalTime:     mathutil.INF,
		lightStateRemainingTime: mathutil.INF,
	}
	if base.CenterLine != nil {
		l.line = lo.Map(base.CenterLine.Nodes, func(node *geov2.XYPosition, _ int) geometry.Point {
			return geometry.NewPointFromPb(node)
		})
	}
	return l
}

// setupTrigger 加载阶段的一次性初始化
// 功能：计算累计长度与水平包围盒
// 说明：只在加载时由管理器调用一次，重复调用无效果
func (l *Lane) setupTrigger() {
	if l.triggerReady {
		return
	}
	l.triggerReady = true
	if len(l.line) == 0 {
		return
	}
	l.lineLengths = make([]float64, len(l.line))
	for i := 1; i < len(l.line); i++ {
		l.lineLengths[i] = l.lineLengths[i-1] + math.Sqrt(geomutil.SqrDistance(l.line[i-1], l.line[i]))
	}
	l.length = l.lineLengths[len(l.lineLengths)-1]
	l.bound = geomutil.Bound2D(l.line)
	if len(l.line) < 2 {
		log.Debugf("%v has %d waypoint(s) and takes no part in segment queries", l, len(l.line))
	}
}

// SetParentJunctionWhenInit 设置lane所在junction
func (l *Lane) SetParentJunctionWhenInit(parent entity.IJunction) {
	l.parentJunction = parent
}

// 静态数据

func (l *Lane) String() string {
	if l.typ == mapv2.LaneType_LANE_TYPE_WALKING {
		return fmt.Sprintf("PedestrianPath %d", l.id)
	}
	return fmt.Sprintf("Lane %d", l.id)
}

// 获取Lane ID
func (l *Lane) ID() int32 {
	if l == nil {
		return -1
	}
	return l.id
}

// 获取Lane类型
func (l *Lane) Type() mapv2.LaneType {
	return l.typ
}

// 获取Lane转向类型
func (l *Lane) Turn() mapv2.LaneTurn {
	return l.turn
}

// 获取Lane长度
func (l *Lane) Length() float64 {
	return l.length
}

// 获取Lane宽度
func (l *Lane) Width() float64 {
	return l.width
}

// 获取Lane的中心线
func (l *Lane) Line() []geometry.Point {
	return l.line
}

// 获取Lane的中心线累计长度
func (l *Lane) CenterLineLengths() []float64 {
	return l.lineLengths
}

func (l *Lane) Bound() orb.Bound {
	return l.bound
}

func (l *Lane) HasSegment() bool {
	return len(l.line) >= 2
}

// 获取Lane所在的Junction
func (l *Lane) ParentJunction() entity.IJunction {
	return l.parentJunction
}

// 检查Lane是否为Junction Lane
func (l *Lane) InJunction() bool {
	return l.parentJunction != nil
}

// 检查是否是人行道
func (l *Lane) IsWalkLane() bool {
	return l.typ == mapv2.LaneType_LANE_TYPE_WALKING
}

// 信号灯

// 获取信号灯状态
func (l *Lane) Light() (mapv2.LightState, float64, float64) {
	return l.lightState, l.lightStateTotalTime, l.lightStateRemainingTime
}

// 设置信号灯状态
func (l *Lane) SetLight(state mapv2.LightState, totalTime float64, remainingTime float64) {
	l.lightState = state
	l.lightStateTotalTime = totalTime
	l.lightStateRemainingTime = remainingTime
}

// 检查车道是否不能通行（不是绿灯）
func (l *Lane) IsNoEntry() bool {
	return l.InJunction() && l.lightState != mapv2.LightState_LIGHT_STATE_GREEN
}
