package geomutil

import (
	"math"

	"git.fiblab.net/general/common/v2/geometry"
)

// Orientation 朝向，上方向固定为+Z
type Orientation struct {
	Yaw   float64 // 水平面内的航向角（atan2(dy,dx)，弧度）
	Pitch float64 // 俯仰角，向上为正（弧度）
}

// LookRotation 计算沿dir方向看去的朝向
// 功能：以+Z为上方向，把方向向量拆成水平航向与俯仰
// 参数：dir-方向向量，不要求单位化
// 返回：朝向，dir为零向量时返回零朝向
func LookRotation(dir geometry.Point) Orientation {
	horizontal := math.Hypot(dir.X, dir.Y)
	if horizontal == 0 && dir.Z == 0 {
		return Orientation{}
	}
	return Orientation{
		Yaw:   math.Atan2(dir.Y, dir.X),
		Pitch: math.Atan2(dir.Z, horizontal),
	}
}

// Forward 朝向对应的单位前向向量
func (o Orientation) Forward() geometry.Point {
	c := math.Cos(o.Pitch)
	return geometry.Point{
		X: c * math.Cos(o.Yaw),
		Y: c * math.Sin(o.Yaw),
		Z: math.Sin(o.Pitch),
	}
}

// Direction 水平航向，与geometry.PolylineDirection的约定一致
func (o Orientation) Direction() geometry.PolylineDirection {
	return geometry.PolylineDirection{Direction: o.Yaw}
}
