package clock

import (
	"context"
	"net/http"

	"connectrpc.com/connect"
	clockv1 "git.fiblab.net/sim/protos/v2/go/city/clock/v1"
	"git.fiblab.net/sim/protos/v2/go/city/clock/v1/clockv1connect"
	"git.fiblab.net/sim/syncer/v3"
)

// Register 将ClockService注册到sidecar
func (c *Clock) Register(sidecar *syncer.Sidecar) {
	sidecar.Register(
		clockv1connect.ClockServiceName,
		func(opts ...connect.HandlerOption) (pattern string, handler http.Handler) {
			return clockv1connect.NewClockServiceHandler(c, opts...)
		},
	)
}

// Now RPC接口：获取当前仿真时间
// 说明：RPC在sidecar协程中执行，读取的是最近一次Step/Init发布的时间快照
func (c *Clock) Now(ctx context.Context, in *connect.Request[clockv1.NowRequest]) (*connect.Response[clockv1.NowResponse], error) {
	return connect.NewResponse(&clockv1.NowResponse{
		T: c.published(),
	}), nil
}
