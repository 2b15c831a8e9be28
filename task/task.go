package task

import (
	"sync/atomic"

	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	"git.fiblab.net/sim/syncer/v3"
	"github.com/tsinghua-fib-lab/agentsociety-roadnet/clock"
	"github.com/tsinghua-fib-lab/agentsociety-roadnet/entity/network"
	"github.com/tsinghua-fib-lab/agentsociety-roadnet/utils/config"
	"github.com/tsinghua-fib-lab/agentsociety-roadnet/utils/input"
)

// Context 仿真任务上下文
// 功能：包含一次仿真任务的所有变量和状态，替代全局变量
// 说明：持有时钟、路网与sidecar，由Run驱动逐步推进
type Context struct {

	// 任务名
	job string
	// 关闭指令
	closed atomic.Bool

	// 时钟
	clock *clock.Clock

	// 辅助程序，处理分布式模式下相关调用，包括与syncer、其他服务的交互
	sidecar *syncer.Sidecar
	// sidecar close channel
	sidecarCloseCh chan struct{}
	// 缓存文件夹
	cacheDir string

	// 路网
	network *network.Network

	// 运行时配置文件
	runtimeConfig *config.RuntimeConfig

	// 用于初始化的地图，为nil表示空路网
	mapData *mapv2.Map
}

// NewContext 创建新的仿真任务上下文
// 参数：
//   - job: 任务名称
//   - cacheDir: 缓存目录
//   - c: 配置对象
//   - sidecar: sidecar实例，为nil时不注册RPC服务
//   - metrics: 路网指标，可为nil
//   - startSidecarServe: 是否启动sidecar服务
//
// 返回：初始化完成的Context实例
// 算法说明：
// 1. 创建时钟与运行时配置
// 2. 加载地图，失败时记录错误并以空路网运行
// 3. 创建路网，注册时钟与信控RPC服务
// 4. 启动sidecar服务（如果需要）
func NewContext(
	job string,
	cacheDir string,
	c config.Config,
	sidecar *syncer.Sidecar,
	metrics *network.Collector,
	startSidecarServe bool,
) *Context {
	ctx := &Context{
		job:            job,
		cacheDir:       cacheDir,
		sidecar:        sidecar,
		sidecarCloseCh: make(chan struct{}),
	}
	ctx.runtimeConfig = config.NewRuntimeConfig(c)
	ctx.clock = clock.New(ctx.runtimeConfig.C.Step, ctx.runtimeConfig.C.Episodes)

	// 下载模拟器启动所需的地图
	mapData, err := input.LoadMap(c, ctx.cacheDir)
	if err != nil {
		log.Errorf("failed to load map, start with an empty network: %v", err)
		mapData = nil
	}
	ctx.mapData = mapData

	ctx.network = network.New(ctx, metrics)

	if ctx.sidecar != nil {
		ctx.clock.Register(ctx.sidecar)
		ctx.network.Register(ctx.sidecar)
	}

	// sidecar协程，用于提供gRPC服务
	if startSidecarServe && ctx.sidecar != nil {
		go func() {
			err := ctx.sidecar.Serve()
			if err != nil {
				log.Panicf("failed to serve: %v", err)
			}
			ctx.sidecarCloseCh <- struct{}{}
		}()
	}

	return ctx
}

func (ctx *Context) Clock() *clock.Clock {
	return ctx.clock
}

func (ctx *Context) Network() *network.Network {
	return ctx.network
}

func (ctx *Context) RuntimeConfig() *config.RuntimeConfig {
	return ctx.runtimeConfig
}

// Init 初始化时钟与路网，并启动所有路口的控制循环
func (ctx *Context) Init() {
	ctx.clock.Init()
	ctx.network.Init(ctx.mapData)
	ctx.network.Start()
	log.Infof("job %s: %d episode(s), steps [%d, %d)", ctx.job, ctx.clock.EPISODES, ctx.clock.START_STEP, ctx.clock.END_STEP)
}

func (ctx *Context) Close() {
	if ctx.closed.Load() {
		return
	}
	if ctx.sidecar != nil {
		ctx.sidecar.Close()
		// wait for graceful stop
		<-ctx.sidecarCloseCh
	}
	ctx.closed.Store(true)
}
