package chain

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ClusterDefinitions 对应 configs/chain.yaml 的结构。
type ClusterDefinitions struct {
	Clusters map[string]ClusterDefinition `yaml:"clusters"`
}

// ClusterDefinition 描述单个集群端点的接入信息。
type ClusterDefinition struct {
	Type        string `yaml:"type"`
	RPCURL      string `yaml:"rpc_url"`
	Commitment  string `yaml:"commitment"`
	Description string `yaml:"description"`
}

// LoadClusterDefinitions 解析集群定义文件。路径为空时返回空定义。
func LoadClusterDefinitions(path string) (ClusterDefinitions, error) {
	if strings.TrimSpace(path) == "" {
		return ClusterDefinitions{Clusters: map[string]ClusterDefinition{}}, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return ClusterDefinitions{}, fmt.Errorf("读取集群配置失败: %w", err)
	}

	var defs ClusterDefinitions
	if err := yaml.Unmarshal(content, &defs); err != nil {
		return ClusterDefinitions{}, fmt.Errorf("解析集群配置失败: %w", err)
	}
	if defs.Clusters == nil {
		defs.Clusters = map[string]ClusterDefinition{}
	}
	return defs, nil
}
