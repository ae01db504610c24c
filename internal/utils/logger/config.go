// internal/utils/logger/config.go
package logger

type Config struct {
	// Level is a zap level name. Empty means debug in development and info otherwise.
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`

	// LogFile enables the rotating JSON file output.
	LogFile    string `mapstructure:"file"`
	MaxSize    int    `mapstructure:"max_size"` // megabytes
	MaxAge     int    `mapstructure:"max_age"`  // days
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

func DefaultConfig() *Config {
	return &Config{
		LogFile:    "curved.log",
		MaxSize:    100,
		MaxAge:     7,
		MaxBackups: 3,
		Compress:   true,
	}
}
