package bootstrap

import (
	"context"

	"github.com/nacos-group/nacos-sdk-go/v2/clients"
	"github.com/nacos-group/nacos-sdk-go/v2/clients/config_client"
	"github.com/nacos-group/nacos-sdk-go/v2/vo"
	"github.com/pkg/errors"
	"stocksaga/internal/pkg/logger"
	"stocksaga/internal/pkg/nacos"
)

// nacosConfigClient 在服务关停时关闭
var nacosConfigClient config_client.IConfigClient

// loadFromNacos 从配置中心拉取 yaml，并监听后续变更 (热更新)
func loadFromNacos(nc NacosConfig) (*Config, error) {
	serverConfigs, err := nacos.ServerConfigs(nc.ServerAddrs)
	if err != nil {
		return nil, err
	}
	clientConfig := nacos.ClientConfig(nc.Namespace)

	client, err := clients.NewConfigClient(vo.NacosClientParam{
		ClientConfig:  &clientConfig,
		ServerConfigs: serverConfigs,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create nacos config client")
	}

	content, err := client.GetConfig(vo.ConfigParam{DataId: nc.DataID, Group: nc.Group})
	if err != nil {
		return nil, errors.Wrapf(err, "get config %s/%s", nc.Group, nc.DataID)
	}
	cfg, err := ParseConfig([]byte(content))
	if err != nil {
		return nil, err
	}

	err = client.ListenConfig(vo.ConfigParam{
		DataId: nc.DataID,
		Group:  nc.Group,
		OnChange: func(namespace, group, dataId, data string) {
			updated, err := ParseConfig([]byte(data))
			if err != nil {
				logger.Ctx(context.Background()).Error().Err(err).Str("dataId", dataId).Msg("ignoring invalid config update from nacos")
				return
			}
			applyEnvOverrides(updated)
			setCurrentConfig(updated)
			logger.Ctx(context.Background()).Info().Str("dataId", dataId).Str("group", group).Msg("config reloaded from nacos")
		},
	})
	if err != nil {
		logger.Ctx(context.Background()).Warn().Err(err).Msg("failed to listen nacos config changes")
	}

	nacosConfigClient = client
	return cfg, nil
}
