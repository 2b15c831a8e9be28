package geomutil_test

import (
	"math"
	"testing"

	"git.fiblab.net/general/common/v2/geometry"
	"github.com/stretchr/testify/assert"
	"github.com/tsinghua-fib-lab/agentsociety-roadnet/utils/geomutil"
)

func pt(x, y, z float64) geometry.Point {
	return geometry.Point{X: x, Y: y, Z: z}
}

func TestClosestPointOnSegment(t *testing.T) {
	p0, p1 := pt(0, 0, 0), pt(10, 0, 0)

	// 投影落在线段内部
	assert.Equal(t, pt(5, 0, 0), geomutil.ClosestPointOnSegment(p0, p1, pt(5, 3, 1)))
	// 截断到起点
	assert.Equal(t, p0, geomutil.ClosestPointOnSegment(p0, p1, pt(-4, 1, 0)))
	// 截断到终点
	assert.Equal(t, p1, geomutil.ClosestPointOnSegment(p0, p1, pt(25, -1, 0)))
	// 退化线段
	assert.Equal(t, p0, geomutil.ClosestPointOnSegment(p0, p0, pt(3, 3, 3)))
}

func TestSqrDistanceToSegment(t *testing.T) {
	p0, p1 := pt(0, 0, 0), pt(10, 0, 0)
	assert.InDelta(t, 1.0, geomutil.SqrDistanceToSegment(p0, p1, pt(5, 0, 1)), 1e-12)
	// 到线段而不是到直线：直线距离为0，线段距离为5^2
	assert.InDelta(t, 25.0, geomutil.SqrDistanceToSegment(p0, p1, pt(15, 0, 0)), 1e-12)
	assert.InDelta(t, 4.0+9.0, geomutil.SqrDistanceToSegment(p0, p1, pt(-2, 3, 0)), 1e-12)
}

func TestSqrDistanceToBound2D(t *testing.T) {
	b := geomutil.Bound2D([]geometry.Point{pt(0, 0, 5), pt(10, 4, -5)})
	assert.Equal(t, 0.0, geomutil.SqrDistanceToBound2D(b, pt(3, 2, 100)))
	assert.InDelta(t, 9.0, geomutil.SqrDistanceToBound2D(b, pt(13, 2, 0)), 1e-12)
	assert.InDelta(t, 1.0+4.0, geomutil.SqrDistanceToBound2D(b, pt(-1, 6, 0)), 1e-12)

	// 包围盒距离是三维线段距离的下界
	p := pt(12, 7, 3)
	assert.LessOrEqual(t,
		geomutil.SqrDistanceToBound2D(b, p),
		geomutil.SqrDistanceToSegment(pt(0, 0, 5), pt(10, 4, -5), p),
	)
}

func TestLookRotation(t *testing.T) {
	o := geomutil.LookRotation(pt(0, 3, 0))
	assert.InDelta(t, math.Pi/2, o.Yaw, 1e-12)
	assert.InDelta(t, 0, o.Pitch, 1e-12)

	dir := pt(3, 4, 12)
	f := geomutil.LookRotation(dir).Forward()
	n := math.Sqrt(geomutil.SqrMagnitude(dir))
	assert.InDelta(t, dir.X/n, f.X, 1e-12)
	assert.InDelta(t, dir.Y/n, f.Y, 1e-12)
	assert.InDelta(t, dir.Z/n, f.Z, 1e-12)

	// 竖直向上
	up := geomutil.LookRotation(pt(0, 0, 2))
	assert.InDelta(t, math.Pi/2, up.Pitch, 1e-12)

	assert.Equal(t, geomutil.Orientation{}, geomutil.LookRotation(pt(0, 0, 0)))
}
