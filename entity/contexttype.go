package entity

import (
	"github.com/tsinghua-fib-lab/agentsociety-roadnet/clock"
	"github.com/tsinghua-fib-lab/agentsociety-roadnet/utils/config"
)

type ITaskContext interface {
	Clock() *clock.Clock
	RuntimeConfig() *config.RuntimeConfig
}
