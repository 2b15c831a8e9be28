// 三维折线段相关的几何计算
// 坐标约定与geometry.Point一致：X、Y为水平面，Z为竖直方向
package geomutil

import (
	"math"

	"git.fiblab.net/general/common/v2/geometry"
	"github.com/paulmach/orb"
	"github.com/samber/lo"
)

// Sub 向量减法 a-b
func Sub(a, b geometry.Point) geometry.Point {
	return geometry.Point{X: a.X - b.X, Y: a.Y - b.Y, Z: a.Z - b.Z}
}

// Dot 向量点积
func Dot(a, b geometry.Point) float64 {
	return a.X*b.X + a.Y*b.Y + a.Z*b.Z
}

// SqrMagnitude 向量长度的平方
func SqrMagnitude(v geometry.Point) float64 {
	return Dot(v, v)
}

// SqrDistance 两点间距离的平方
func SqrDistance(a, b geometry.Point) float64 {
	return SqrMagnitude(Sub(a, b))
}

// ClosestPointOnSegment 线段p0p1上距离p最近的点
// 功能：将p-p0投影到p1-p0上，投影系数截断到[0,1]后求出线段上的点
// 参数：p0,p1-线段端点，p-查询点
// 返回：线段上的最近点，线段退化为一点时返回p0
func ClosestPointOnSegment(p0, p1, p geometry.Point) geometry.Point {
	d := Sub(p1, p0)
	l2 := SqrMagnitude(d)
	if l2 == 0 {
		return p0
	}
	t := lo.Clamp(Dot(Sub(p, p0), d)/l2, 0, 1)
	return geometry.Point{
		X: p0.X + d.X*t,
		Y: p0.Y + d.Y*t,
		Z: p0.Z + d.Z*t,
	}
}

// SqrDistanceToSegment 点p到线段p0p1距离的平方（到线段，而非到直线）
func SqrDistanceToSegment(p0, p1, p geometry.Point) float64 {
	return SqrDistance(p, ClosestPointOnSegment(p0, p1, p))
}

// Bound2D 折线在水平面上的包围盒
func Bound2D(line []geometry.Point) orb.Bound {
	return orb.LineString(lo.Map(line, func(p geometry.Point, _ int) orb.Point {
		return orb.Point{p.X, p.Y}
	})).Bound()
}

// SqrDistanceToBound2D 点p到水平包围盒距离的平方
// 说明：忽略Z，因此是p到包围盒内任意三维点距离平方的下界
func SqrDistanceToBound2D(b orb.Bound, p geometry.Point) float64 {
	dx := math.Max(math.Max(b.Min[0]-p.X, 0), p.X-b.Max[0])
	dy := math.Max(math.Max(b.Min[1]-p.Y, 0), p.Y-b.Max[1])
	return dx*dx + dy*dy
}
