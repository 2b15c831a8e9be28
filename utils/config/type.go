package config

// InputPath 指定输入数据来源的配置（MongoDB、文件系统）
// 功能：定义数据输入路径的配置结构，支持多种数据源
// 说明：支持MongoDB数据库和文件系统两种数据源，支持缓存机制
type InputPath struct {
	DB        string `yaml:"db"`                   // 数据库名
	Col       string `yaml:"col"`                  // 集合名
	Cache     string `yaml:"cache,omitempty"`      // 缓存文件名，为空则采用默认路径{db}.{col}.pb
	OnlyCache bool   `yaml:"only_cache,omitempty"` // 只从缓存中获取
	File      string `yaml:"file,omitempty"`       // 文件路径（优先级高于MongoDB）
}

// GetDb 获取数据库名
func (p InputPath) GetDb() string {
	return p.DB
}

// GetColl 获取集合名
func (p InputPath) GetColl() string {
	return p.Col
}

// GetCachePath 获取缓存文件路径
// 功能：返回缓存文件的完整路径
// 返回：缓存文件路径字符串
// 说明：未指定时使用默认命名规则：{数据库名}.{集合名}.pb
func (p InputPath) GetCachePath() string {
	if p.Cache != "" {
		return p.Cache
	}
	return p.DB + "." + p.Col + ".pb"
}

// Empty 是否没有配置任何数据来源
func (p InputPath) Empty() bool {
	return p.File == "" && (p.DB == "" || p.Col == "")
}

// Input 指定模拟器所有输入数据的配置项
type Input struct {
	URI string     `yaml:"uri"`           // MongoDB连接字符串
	Map *InputPath `yaml:"map,omitempty"` // 地图，为空表示不加载地图（空路网）
}

// ControlStep 指定模拟器模拟时间范围和间隔的配置项
type ControlStep struct {
	Start    int32   `yaml:"start"`    // 开始步数
	Total    int32   `yaml:"total"`    // 每个episode的总步数
	Interval float64 `yaml:"interval"` // 每步的时间间隔
}

// Control 模拟器控制配置
// 功能：定义仿真系统的核心控制参数
// 说明：包含时间控制、episode数量、信控默认参数
type Control struct {
	Step ControlStep `yaml:"step"`
	// episode数量，每个episode结束后路口状态整体复位，默认为1
	Episodes int32 `yaml:"episodes,omitempty"`
	// 地图中只有可用相位而没有固定程序时，为每个相位生成的默认时长(s)，默认为30
	DefaultPhaseTime float64 `yaml:"default_phase_time,omitempty"`
}

// Config YAML配置文件的根结构
type Config struct {
	Input   Input   `yaml:"input"`   // 输入
	Control Control `yaml:"control"` // 模拟过程控制
}
