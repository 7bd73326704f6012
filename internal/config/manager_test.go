package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const validYAML = `telegram:
  token: "123:abc"
  target_chat_id: -100123
  owner_user_ids: [42]
logging:
  level: info
  console: true
  file:
    enabled: false
    path: ""
feed:
  base_url: "https://hub.example.com"
watch:
  groups: 6
  misfire_grace: "1h"
  daily_refresh: "23:50"
storage:
  path: "./data/test.db"
`

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadYAML(t *testing.T) {
	m := NewManager(writeConfig(t, "config.yaml", validYAML))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.TargetChatID != -100123 {
		t.Fatalf("target chat = %d", cfg.Telegram.TargetChatID)
	}
	if cfg.Watch.Groups != 6 || cfg.Watch.DailyRefresh != "23:50" {
		t.Fatalf("watch config = %+v", cfg.Watch)
	}
	if got := m.Get(); got != cfg {
		t.Fatal("Get must return the committed config")
	}
}

func TestLoadJSON(t *testing.T) {
	content := `{
  "telegram": {"token": "123:abc", "target_chat_id": -1},
  "logging": {"level": "debug", "console": true, "file": {"enabled": false, "path": ""}},
  "feed": {"base_url": "https://hub.example.com"},
  "watch": {},
  "storage": {"path": "./data/test.db"}
}`
	m := NewManager(writeConfig(t, "config.json", content))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("level = %q", cfg.Logging.Level)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	content := strings.Replace(validYAML, "watch:", "wach:", 1)
	m := NewManager(writeConfig(t, "config.yaml", content))
	if _, err := m.Load(); err == nil {
		t.Fatal("misspelled section must be rejected")
	}
}

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("TEST_BOT_TOKEN", "999:secret")
	content := strings.Replace(validYAML, `"123:abc"`, `"${TEST_BOT_TOKEN}"`, 1)
	m := NewManager(writeConfig(t, "config.yaml", content))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.Token != "999:secret" {
		t.Fatalf("token = %q", cfg.Telegram.Token)
	}
}

func TestValidateRequiredFields(t *testing.T) {
	base := func() *Config {
		return &Config{
			Telegram: TelegramConfig{Token: "123:abc", TargetChatID: -1},
			Feed:     FeedConfig{BaseURL: "https://hub.example.com"},
			Storage:  StorageConfig{Path: "./x.db"},
		}
	}

	if err := Validate(base()); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing token", func(c *Config) { c.Telegram.Token = " " }},
		{"missing target chat", func(c *Config) { c.Telegram.TargetChatID = 0 }},
		{"missing feed url", func(c *Config) { c.Feed.BaseURL = "" }},
		{"bad duration", func(c *Config) { c.Watch.Cooldown = "one hour" }},
		{"negative retries", func(c *Config) { c.Watch.FetchRetries = -1 }},
		{"bad refresh time", func(c *Config) { c.Watch.DailyRefresh = "25:00" }},
		{"bad timezone", func(c *Config) { c.Watch.Timezone = "Mars/Olympus" }},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cfg := base()
			c.mutate(cfg)
			if err := Validate(cfg); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestSubscribePublishUnsubscribe(t *testing.T) {
	m := NewManager(writeConfig(t, "config.yaml", validYAML))
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	sub := m.Subscribe(1)
	cfg := m.Get()
	m.publish(cfg)

	select {
	case got := <-sub:
		if got != cfg {
			t.Fatal("published config mismatch")
		}
	case <-time.After(time.Second):
		t.Fatal("publish did not reach subscriber")
	}

	// A full buffer drops the stale entry rather than blocking the publisher.
	m.publish(cfg)
	m.publish(cfg)

	m.Unsubscribe(sub)
	if _, ok := <-sub; ok {
		// Drain the one remaining buffered item, then expect closed.
		if _, ok := <-sub; ok {
			t.Fatal("channel still open after Unsubscribe")
		}
	}
}

func TestParseDurationField(t *testing.T) {
	if d, err := ParseDurationField("x", "90s"); err != nil || d != 90*time.Second {
		t.Fatalf("got %v, %v", d, err)
	}
	if d, err := ParseDurationField("x", ""); err != nil || d != 0 {
		t.Fatalf("empty must be zero: %v, %v", d, err)
	}
	if _, err := ParseDurationField("x", "-5s"); err == nil {
		t.Fatal("negative must fail")
	}
	if _, err := ParseDurationField("x", "soon"); err == nil {
		t.Fatal("garbage must fail")
	}
	if d, err := ParseDurationOrDefault("x", "", time.Minute); err != nil || d != time.Minute {
		t.Fatalf("default not applied: %v, %v", d, err)
	}
}

func TestParseHHMM(t *testing.T) {
	h, m, err := ParseHHMM("23:50")
	if err != nil || h != 23 || m != 50 {
		t.Fatalf("got %d:%d, %v", h, m, err)
	}
	for _, bad := range []string{"", "24:00", "12:60", "noon", "1200", "12:0x"} {
		if _, _, err := ParseHHMM(bad); err == nil {
			t.Fatalf("ParseHHMM(%q) unexpectedly succeeded", bad)
		}
	}
}
