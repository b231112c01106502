package provider

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"AgentPay-Chain/internal/chain"
	"AgentPay-Chain/internal/chain/solana"
)

// Config 描述注册表的初始化参数。
type Config struct {
	ClusterConfig  string
	RPCURL         string
	DefaultCluster string
}

// Registry 按名字管理一组集群客户端。
type Registry struct {
	defaultCluster string
	clients        map[string]chain.Client
}

// NewRegistry 加载集群定义并实例化对应的客户端。
func NewRegistry(ctx context.Context, cfg Config) (*Registry, error) {
	defs, err := chain.LoadClusterDefinitions(cfg.ClusterConfig)
	if err != nil {
		return nil, err
	}

	clients := make(map[string]chain.Client)
	for name, cluster := range defs.Clusters {
		clusterType := strings.ToLower(strings.TrimSpace(cluster.Type))
		if clusterType == "" {
			clusterType = "solana"
		}
		switch clusterType {
		case "solana":
			client, err := solana.NewClient(ctx, solana.Config{
				Name:       name,
				RPCURL:     cluster.RPCURL,
				Commitment: cluster.Commitment,
				Notes:      cluster.Description,
			})
			if err != nil {
				return nil, fmt.Errorf("初始化集群 %s 失败: %w", name, err)
			}
			clients[name] = client
		default:
			return nil, fmt.Errorf("集群 %s 使用了不支持的类型 %s", name, cluster.Type)
		}
	}

	defaultCluster := cfg.DefaultCluster
	if len(clients) == 0 && strings.TrimSpace(cfg.RPCURL) != "" {
		client, err := solana.NewClient(ctx, solana.Config{Name: "default", RPCURL: cfg.RPCURL})
		if err != nil {
			return nil, err
		}
		clients["default"] = client
		if defaultCluster == "" {
			defaultCluster = "default"
		}
	}

	if len(clients) == 0 {
		return nil, errors.New("未配置任何集群的 RPC 端点")
	}

	if defaultCluster == "" {
		names := make([]string, 0, len(clients))
		for name := range clients {
			names = append(names, name)
		}
		sort.Strings(names)
		defaultCluster = names[0]
	}
	if _, ok := clients[defaultCluster]; !ok {
		return nil, fmt.Errorf("默认集群 %s 未在配置中找到", defaultCluster)
	}

	return &Registry{defaultCluster: defaultCluster, clients: clients}, nil
}

// DefaultClient 返回默认集群的客户端。
func (r *Registry) DefaultClient() (chain.Client, error) {
	if r == nil {
		return nil, errors.New("未初始化的集群注册表")
	}
	client, ok := r.clients[r.defaultCluster]
	if !ok {
		return nil, fmt.Errorf("默认集群 %s 未在注册表中", r.defaultCluster)
	}
	return client, nil
}

// Client 返回指定名字的集群客户端。
func (r *Registry) Client(name string) (chain.Client, bool) {
	if r == nil {
		return nil, false
	}
	client, ok := r.clients[name]
	return client, ok
}

// Clusters 返回已注册的集群名列表。
func (r *Registry) Clusters() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close 释放注册表中的所有客户端。
func (r *Registry) Close() {
	if r == nil {
		return
	}
	for name, client := range r.clients {
		if client != nil {
			client.Close()
		}
		delete(r.clients, name)
	}
}
