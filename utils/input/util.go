package input

import (
	"os"
)

// preCheckCache cacheDir为已存在的目录时启用地图缓存
func preCheckCache(cacheDir string) bool {
	if cacheDir == "" {
		log.Info("map cache disabled")
		return false
	}
	stat, err := os.Stat(cacheDir)
	if err != nil || !stat.IsDir() {
		log.Errorf("map cache disabled, %s is not a directory", cacheDir)
		return false
	}
	log.Infof("map cache at %s", cacheDir)
	return true
}
