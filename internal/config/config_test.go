package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("无配置文件时应依赖默认值: %v", err)
	}

	if cfg.Poller.Interval != 5*time.Second {
		t.Fatalf("默认轮询间隔应为 5s, 实际 %s", cfg.Poller.Interval)
	}
	if cfg.Poller.PageLimit != 500 || cfg.Poller.MaxPages != 5 {
		t.Fatalf("默认分页参数不正确: %+v", cfg.Poller)
	}
	if cfg.Fetcher.MinFillUSD != 10.0 {
		t.Fatalf("默认服务端过滤应为 $10, 实际 %v", cfg.Fetcher.MinFillUSD)
	}
	if cfg.Dedup.CacheSize != 10000 || cfg.Dedup.RetentionTTL != 72*time.Hour {
		t.Fatalf("默认去重参数不正确: %+v", cfg.Dedup)
	}
	if cfg.Aggregator.Window != 60*time.Second || cfg.Aggregator.MinAlertUSD != 500.0 {
		t.Fatalf("默认聚合参数不正确: %+v", cfg.Aggregator)
	}
	if cfg.Dispatch.QueueSize != 256 {
		t.Fatalf("默认队列容量应为 256, 实际 %d", cfg.Dispatch.QueueSize)
	}
	if cfg.Database.Path != "polywhales.db" {
		t.Fatalf("默认数据库路径不正确: %s", cfg.Database.Path)
	}
}

func TestLoadFromFile(t *testing.T) {
	body := `
poller:
  interval: 2s
  page_limit: 100
aggregator:
  min_alert_usd: 1000
subscribers:
  - chat_id: "12345"
    min_usd: 2000
    categories: ["crypto", "sports"]
    language: ru
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("写入临时配置失败: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}

	if cfg.Poller.Interval != 2*time.Second || cfg.Poller.PageLimit != 100 {
		t.Fatalf("文件值未覆盖默认值: %+v", cfg.Poller)
	}
	// 未覆盖的键保持默认
	if cfg.Poller.MaxPages != 5 {
		t.Fatalf("未覆盖的键应保持默认: %d", cfg.Poller.MaxPages)
	}
	if len(cfg.Subscribers) != 1 {
		t.Fatalf("期望 1 个订阅者, 实际 %d", len(cfg.Subscribers))
	}
	sub := cfg.Subscribers[0]
	if sub.ChatID != "12345" || sub.MinUSD != 2000 || sub.Language != "ru" {
		t.Fatalf("订阅者字段不正确: %+v", sub)
	}
	if len(sub.Categories) != 2 {
		t.Fatalf("分类列表不正确: %v", sub.Categories)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	write := func(t *testing.T, body string) string {
		t.Helper()
		path := filepath.Join(t.TempDir(), "config.yaml")
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatalf("写入临时配置失败: %v", err)
		}
		return path
	}

	cases := []struct {
		name string
		body string
	}{
		{"负的最小成交额", "fetcher:\n  min_fill_usd: -1\n"},
		{"缺少 bot token", "alerting:\n  telegram:\n    enabled: true\n"},
		{"缺少 chat_id", "subscribers:\n  - min_usd: 100\n"},
		{"非法概率区间", "subscribers:\n  - chat_id: \"1\"\n    prob_min: 0.8\n    prob_max: 0.2\n"},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if _, err := Load(write(t, c.body)); err == nil {
				t.Fatalf("%s 应校验失败", c.name)
			}
		})
	}
}
