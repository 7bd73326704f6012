package config

// Config is the full on-disk configuration.
//
// The file may be JSON or YAML (YAML is coerced to JSON before decoding so
// both formats share the strict DisallowUnknownFields decoder).
//
// All duration fields are Go duration strings (e.g. "5s", "1m", "1h").
type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`
	Feed     FeedConfig     `json:"feed"`
	Watch    WatchConfig    `json:"watch"`
	Storage  StorageConfig  `json:"storage"`
}

type TelegramConfig struct {
	Token string `json:"token"`

	// TargetChatID is the chat all delivered posts go to.
	TargetChatID int64 `json:"target_chat_id"`
	// AdminChatID receives error alerts. Falls back to TargetChatID when 0.
	AdminChatID int64 `json:"admin_chat_id,omitempty"`

	// OwnerUserIDs may use management commands (/add_id etc.).
	// Empty list means every command is rejected.
	OwnerUserIDs []int64 `json:"owner_user_ids,omitempty"`

	PollTimeout string `json:"poll_timeout,omitempty"`

	// AlertRatePerMin caps admin alerts; excess alerts are dropped (logged only).
	AlertRatePerMin int `json:"alert_rate_per_min,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// FeedConfig points at the RSS-hub style endpoint that exposes per-account
// media feeds under /twitter/media/<id>.
type FeedConfig struct {
	BaseURL string `json:"base_url"`
	Timeout string `json:"timeout,omitempty"`
}

// WatchConfig tunes the scheduling and delivery engine.
//
// Defaults (applied when fields are omitted/zero):
//   - groups: 6
//   - misfire_grace: "1h"
//   - daily_refresh: "23:50"
//   - cooldown: "1h"
//   - pacing: "1m"
//   - fetch_retries: 3
//   - fetch_backoff: "5s"
type WatchConfig struct {
	Groups       int    `json:"groups,omitempty"`
	MisfireGrace string `json:"misfire_grace,omitempty"`
	// DailyRefresh is the HH:MM time-of-day the partitioner recomputes groups.
	DailyRefresh string `json:"daily_refresh,omitempty"`
	Cooldown     string `json:"cooldown,omitempty"`
	Pacing       string `json:"pacing,omitempty"`
	FetchRetries int    `json:"fetch_retries,omitempty"`
	FetchBackoff string `json:"fetch_backoff,omitempty"`
	// Timezone for trigger times (IANA name). Empty means the process local zone.
	Timezone string `json:"timezone,omitempty"`
}

type StorageConfig struct {
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}
