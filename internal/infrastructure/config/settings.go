package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"
)

// Settings are the collaboration settings shared by the hub and its tools.
// Numeric values are clamped to their documented ranges by Clamp.
type Settings struct {
	// Collaboration
	EnableLiveCollaboration bool `yaml:"enable_live_collaboration" toml:"enable_live_collaboration" json:"enable_live_collaboration"`

	// Wire previews
	EnableWirePreviews    bool `yaml:"enable_wire_previews" toml:"enable_wire_previews" json:"enable_wire_previews"`
	WirePreviewUpdateRate int  `yaml:"wire_preview_update_rate" toml:"wire_preview_update_rate" json:"wire_preview_update_rate"`

	// Node locking
	EnableNodeLocking   bool    `yaml:"enable_node_locking" toml:"enable_node_locking" json:"enable_node_locking"`
	DefaultLockDuration float64 `yaml:"default_lock_duration" toml:"default_lock_duration" json:"default_lock_duration"`
	LockExtensionTime   float64 `yaml:"lock_extension_time" toml:"lock_extension_time" json:"lock_extension_time"`

	// Capacity
	MaxConcurrentUsers  int  `yaml:"max_concurrent_users" toml:"max_concurrent_users" json:"max_concurrent_users"`
	MaxMessageQueueSize int  `yaml:"max_message_queue_size" toml:"max_message_queue_size" json:"max_message_queue_size"`
	ThrottleMessages    bool `yaml:"throttle_messages" toml:"throttle_messages" json:"throttle_messages"`

	// Notifications
	ShowActivityNotifications bool    `yaml:"show_activity_notifications" toml:"show_activity_notifications" json:"show_activity_notifications"`
	NotificationDuration      float64 `yaml:"notification_duration" toml:"notification_duration" json:"notification_duration"`

	// Testing
	StressTestMessageCount int `yaml:"stress_test_message_count" toml:"stress_test_message_count" json:"stress_test_message_count"`
	StressTestUserCount    int `yaml:"stress_test_user_count" toml:"stress_test_user_count" json:"stress_test_user_count"`

	// Advanced
	EnableConflictResolution          bool    `yaml:"enable_conflict_resolution" toml:"enable_conflict_resolution" json:"enable_conflict_resolution"`
	UseBinarySerializationForPreviews bool    `yaml:"use_binary_serialization_for_previews" toml:"use_binary_serialization_for_previews" json:"use_binary_serialization_for_previews"`
	MinimumMovementThreshold          float64 `yaml:"minimum_movement_threshold" toml:"minimum_movement_threshold" json:"minimum_movement_threshold"`
	MaxHistoryEntries                 int     `yaml:"max_history_entries" toml:"max_history_entries" json:"max_history_entries"`
	AutoCleanupExpiredLocks           bool    `yaml:"auto_cleanup_expired_locks" toml:"auto_cleanup_expired_locks" json:"auto_cleanup_expired_locks"`
	HistoryCleanupInterval            float64 `yaml:"history_cleanup_interval" toml:"history_cleanup_interval" json:"history_cleanup_interval"`

	// Debug
	EnableVerboseLogging bool `yaml:"enable_verbose_logging" toml:"enable_verbose_logging" json:"enable_verbose_logging"`
	LogAllMessages       bool `yaml:"log_all_messages" toml:"log_all_messages" json:"log_all_messages"`
}

// DefaultSettings returns the stock collaboration settings.
func DefaultSettings() Settings {
	return Settings{
		EnableLiveCollaboration:           true,
		EnableWirePreviews:                true,
		WirePreviewUpdateRate:             10,
		EnableNodeLocking:                 true,
		DefaultLockDuration:               30,
		LockExtensionTime:                 5,
		MaxConcurrentUsers:                10,
		MaxMessageQueueSize:               100,
		ThrottleMessages:                  true,
		ShowActivityNotifications:         true,
		NotificationDuration:              3,
		StressTestMessageCount:            1000,
		StressTestUserCount:               5,
		EnableConflictResolution:          true,
		UseBinarySerializationForPreviews: true,
		MinimumMovementThreshold:          0.1,
		MaxHistoryEntries:                 500,
		AutoCleanupExpiredLocks:           true,
		HistoryCleanupInterval:            60,
	}
}

// Clamp forces every numeric setting into its allowed range.
func (s *Settings) Clamp() {
	s.WirePreviewUpdateRate = clampInt(s.WirePreviewUpdateRate, 1, 60)
	s.DefaultLockDuration = clampFloat(s.DefaultLockDuration, 5, 300)
	s.LockExtensionTime = clampFloat(s.LockExtensionTime, 1, 60)
	s.MaxConcurrentUsers = clampInt(s.MaxConcurrentUsers, 1, 20)
	s.MaxMessageQueueSize = clampInt(s.MaxMessageQueueSize, 10, 1000)
	s.NotificationDuration = clampFloat(s.NotificationDuration, 1, 10)
	s.StressTestMessageCount = clampInt(s.StressTestMessageCount, 10, 10000)
	s.StressTestUserCount = clampInt(s.StressTestUserCount, 1, 20)
	s.MinimumMovementThreshold = clampFloat(s.MinimumMovementThreshold, 0.01, 1)
	s.MaxHistoryEntries = clampInt(s.MaxHistoryEntries, 10, 5000)
	s.HistoryCleanupInterval = clampFloat(s.HistoryCleanupInterval, 1, 3600)
}

// WirePreviewInterval is the minimum spacing between two wire previews from
// the same user.
func (s Settings) WirePreviewInterval() time.Duration {
	rate := clampInt(s.WirePreviewUpdateRate, 1, 60)
	return time.Second / time.Duration(rate)
}

// LockDuration returns DefaultLockDuration as a time.Duration.
func (s Settings) LockDuration() time.Duration {
	return seconds(s.DefaultLockDuration)
}

// LockExtension returns LockExtensionTime as a time.Duration.
func (s Settings) LockExtension() time.Duration {
	return seconds(s.LockExtensionTime)
}

// CleanupInterval returns HistoryCleanupInterval as a time.Duration.
func (s Settings) CleanupInterval() time.Duration {
	return seconds(s.HistoryCleanupInterval)
}

// LoadSettingsFile reads settings from a YAML (.yaml, .yml) or TOML (.toml)
// file. Keys missing from the file keep their default values.
func LoadSettingsFile(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("read settings: %w", err)
	}
	return ParseSettings(data, filepath.Ext(path))
}

// ParseSettings decodes settings in the format named by ext.
func ParseSettings(data []byte, ext string) (Settings, error) {
	s := DefaultSettings()

	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &s); err != nil {
			return Settings{}, fmt.Errorf("parse yaml settings: %w", err)
		}
	case "toml":
		if err := toml.Unmarshal(data, &s); err != nil {
			return Settings{}, fmt.Errorf("parse toml settings: %w", err)
		}
	default:
		return Settings{}, fmt.Errorf("unsupported settings format %q", ext)
	}

	s.Clamp()
	return s, nil
}

// MarshalSettings encodes settings in the format named by ext.
func MarshalSettings(s Settings, ext string) ([]byte, error) {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "yaml", "yml":
		return yaml.Marshal(s)
	case "toml":
		return toml.Marshal(s)
	default:
		return nil, fmt.Errorf("unsupported settings format %q", ext)
	}
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

func clampInt(v, lo, hi int) int {
	return min(max(v, lo), hi)
}

func clampFloat(v, lo, hi float64) float64 {
	return min(max(v, lo), hi)
}
