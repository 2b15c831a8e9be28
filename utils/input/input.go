package input

import (
	"context"
	"errors"
	"fmt"

	"git.fiblab.net/general/common/v2/cache"
	"git.fiblab.net/general/common/v2/mongoutil"
	"git.fiblab.net/general/common/v2/protoutil"
	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	"github.com/tsinghua-fib-lab/agentsociety-roadnet/utils/config"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"google.golang.org/protobuf/proto"
)

// LoadMap 加载地图
// 功能：根据配置从文件或MongoDB（带本地缓存）加载地图
// 参数：config-配置对象，cacheDir-缓存目录，为空或无效时不使用缓存
// 返回：地图；没有配置地图时返回nil, nil；加载失败时返回错误
// 算法说明：
// 1. 配置了文件路径时直接从文件读取（优先级高于MongoDB）
// 2. 否则连接MongoDB，经由缓存下载地图数据
func LoadMap(config config.Config, cacheDir string) (*mapv2.Map, error) {
	path := config.Input.Map
	if path == nil || path.Empty() {
		log.Warn("no map configured, start with an empty network")
		return nil, nil
	}
	if path.File != "" {
		var m mapv2.Map
		if err := protoutil.UnmarshalFromFile(&m, path.File); err != nil {
			return nil, fmt.Errorf("failed to load map from file %s: %w", path.File, err)
		}
		return &m, nil
	}

	if !preCheckCache(cacheDir) {
		cacheDir = ""
	}
	var client *mongo.Client
	if !path.OnlyCache {
		if config.Input.URI == "" {
			return nil, errors.New("mongodb uri is required to download the map")
		}
		client = mongoutil.NewClient(config.Input.URI)
		defer client.Disconnect(context.Background())
	}
	return load[mapv2.Map](client, *path, cacheDir, nil, nil)
}

// load 从MongoDB或缓存中加载数据（泛型函数）
// 参数：client-MongoDB客户端，只读缓存时为nil；inputPath-输入路径配置；cacheDir-缓存目录；
// classNameMapper-类名映射器；handler-数据处理函数；opts-查询选项
// 返回：加载的数据对象，下载或读取缓存失败时返回错误
func load[T any, PT interface {
	proto.Message
	*T
}](
	client *mongo.Client,
	inputPath config.InputPath,
	cacheDir string,
	classNameMapper func(string) string,
	handler func(className string, pb any, rawBson bson.Raw) error,
	opts ...*options.FindOptions,
) (PT, error) {
	var downloadFunc func() PT
	var downloadErrs []error
	if !inputPath.OnlyCache {
		coll := mongoutil.GetMongoColl(client, inputPath)
		downloadFunc = func() PT {
			pb, errs := mongoutil.DownloadPbFromMongo[T, PT](context.Background(), coll, classNameMapper, handler, opts...)
			downloadErrs = errs
			return pb
		}
	}
	log.Infof("start fetching from %s.%s", inputPath.DB, inputPath.Col)
	res, err := cache.LoadWithCache(cacheDir, inputPath, downloadFunc)
	if len(downloadErrs) > 0 {
		for _, err := range downloadErrs {
			log.Errorf("failed to download: %v", err)
		}
		return nil, fmt.Errorf("failed to download %s.%s: %w", inputPath.DB, inputPath.Col, errors.Join(downloadErrs...))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load with cache: %w", err)
	}
	log.Infof("finish fetching from %s.%s", inputPath.DB, inputPath.Col)
	return res, nil
}
