package config

const (
	defaultEpisodes         = 1
	defaultDefaultPhaseTime = 30
)

// RuntimeConfig 运行时配置
// 功能：存储仿真运行时的配置信息，缺省项已填入默认值
type RuntimeConfig struct {
	All Config  // 全部配置
	C   Control // 全局控制配置（已填充默认值）
}

// NewRuntimeConfig 根据配置初始化运行时配置
// 功能：创建运行时配置对象，填充默认值
// 参数：config-原始配置对象
// 返回：初始化的运行时配置指针
// 算法说明：
// 1. episode数量未指定或非法时取1
// 2. 默认相位时长未指定或非法时取30s
func NewRuntimeConfig(config Config) *RuntimeConfig {
	rc := &RuntimeConfig{}

	rc.All = config
	rc.C = config.Control
	if rc.C.Episodes <= 0 {
		rc.C.Episodes = defaultEpisodes
	}
	if rc.C.DefaultPhaseTime <= 0 {
		rc.C.DefaultPhaseTime = defaultDefaultPhaseTime
	}

	return rc
}
