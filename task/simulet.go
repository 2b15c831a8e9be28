package task

import (
	"flag"
)

const (
	SelfName = "roadnet" // 本程序在模拟任务集群中的名字
)

var (
	heartBeatInterval = flag.Int("log.heartbeat_interval", 100, "心跳日志间隔步数")
)

// prepare 准备阶段，每步执行一次
// 算法说明：
// 1. 更新时钟：增加内部步数并计算当前时间
// 2. 心跳日志：定期输出系统状态信息
// 3. 路网准备：各路口将信控结果写入车道
func (ctx *Context) prepare() {
	ctx.clock.Step()

	if interval := int32(*heartBeatInterval); interval > 0 && ctx.clock.InternalStep%interval == 0 {
		log.Infof("STEP: %d(%v)", ctx.clock.InternalStep, ctx.clock)
	}

	ctx.network.Prepare()
}

// update 更新阶段，每步执行一次，推进所有路口的控制循环
func (ctx *Context) update() {
	ctx.network.Update(ctx.clock.DT)
}

// finalStep 当前步是否为整个任务的最后一步（最后一个episode的最后一步）
func (ctx *Context) finalStep() bool {
	return ctx.clock.EpisodeDone() && ctx.clock.LastEpisode()
}

// nextEpisodeIfDone episode结束时复位路网并进入下一个episode
// 返回：是否开始了新的episode
func (ctx *Context) nextEpisodeIfDone() bool {
	if !ctx.clock.EpisodeDone() || ctx.clock.LastEpisode() {
		return false
	}
	ctx.network.ResetAll()
	ctx.clock.NextEpisode()
	log.Infof("episode %d/%d start", ctx.clock.Episode+1, ctx.clock.EPISODES)
	return true
}

// Run 运行
func (ctx *Context) Run() {
	// 初始化
	ctx.Init()
	// init syncer
	ctx.sidecar.Step(false)
	for {
		ctx.prepare()
		// 通知准备阶段完成
		log.Debugf("step %d: prepare complete and call NotifyStepReady", ctx.clock.InternalStep)
		ctx.sidecar.NotifyStepReady()
		log.Debugf("step %d: NotifyStepReady complete", ctx.clock.InternalStep)
		ctx.update()
		log.Debugf("step %d: update complete", ctx.clock.InternalStep)
		close := ctx.sidecar.Step(ctx.finalStep())
		if close || ctx.closed.Load() {
			break
		}
		ctx.nextEpisodeIfDone()
	}
	log.Infof("engine complete")
	ctx.Close()
}
