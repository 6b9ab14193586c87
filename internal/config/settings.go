package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type DBConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	PoolSize int    `mapstructure:"pool_size"`
}

func (d DBConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		d.Username, d.Password, d.Host, d.Port, d.Name)
}

// Enabled reports whether a database was configured at all. The turn core
// runs fully in memory when it wasn't.
func (d DBConfig) Enabled() bool {
	return d.Host != ""
}

type RedisConfig struct {
	Addr string `mapstructure:"addr"`
	Pass string `mapstructure:"pass"`
}

func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

type LLMModelConfig struct {
	Name string `mapstructure:"name"`
	URL  string `mapstructure:"url"`
}

type OllamaConfig struct {
	Models []LLMModelConfig `mapstructure:"models"`
}

type LLMConfig struct {
	// Provider selects the default completion backend: "openai" or "ollama".
	Provider     string       `mapstructure:"provider"`
	OpenAIAPIKey string       `mapstructure:"open_ai_api_key"`
	OpenAIModel  string       `mapstructure:"open_ai_model"`
	Ollama       OllamaConfig `mapstructure:"ollama"`
}

// TurnConfig carries every runtime-tunable knob of the turn detection
// pipeline. All durations are milliseconds in the config file.
type TurnConfig struct {
	SilenceThresholdMs     int `mapstructure:"silence_threshold_ms"`
	JudgeTimeoutMs         int `mapstructure:"judge_timeout_ms"`
	PreReplyTimeoutMs      int `mapstructure:"pre_reply_timeout_ms"`
	RecentJudgmentWindow   int `mapstructure:"recent_judgment_window"`
	ClassifierJoinWindowMs int `mapstructure:"classifier_join_window_ms"`
	FrameTailBytes         int `mapstructure:"frame_tail_bytes"`
}

func (t TurnConfig) SilenceThreshold() time.Duration {
	return time.Duration(t.SilenceThresholdMs) * time.Millisecond
}

func (t TurnConfig) JudgeTimeout() time.Duration {
	return time.Duration(t.JudgeTimeoutMs) * time.Millisecond
}

func (t TurnConfig) PreReplyTimeout() time.Duration {
	return time.Duration(t.PreReplyTimeoutMs) * time.Millisecond
}

func (t TurnConfig) ClassifierJoinWindow() time.Duration {
	return time.Duration(t.ClassifierJoinWindowMs) * time.Millisecond
}

func DefaultTurnConfig() TurnConfig {
	return TurnConfig{
		SilenceThresholdMs:     300,
		JudgeTimeoutMs:         1500,
		PreReplyTimeoutMs:      2500,
		RecentJudgmentWindow:   8,
		ClassifierJoinWindowMs: 3000,
		FrameTailBytes:         1024 * 1024,
	}
}

type Settings struct {
	DB    DBConfig    `mapstructure:"database"`
	Redis RedisConfig `mapstructure:"redis"`
	LLM   LLMConfig   `mapstructure:"llm"`
	Turn  TurnConfig  `mapstructure:"turn"`
	Addr  string      `mapstructure:"addr"`
	Env   string      `mapstructure:"env"`
	Debug bool        `mapstructure:"debug"`
}

func Load() (*Settings, error) {
	viper.SetConfigName("config_" + genEnv())
	viper.AddConfigPath(".")
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	setTurnDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var settings Settings
	if err := viper.Unmarshal(&settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &settings, nil
}

func setTurnDefaults() {
	d := DefaultTurnConfig()
	viper.SetDefault("addr", ":8080")
	viper.SetDefault("turn.silence_threshold_ms", d.SilenceThresholdMs)
	viper.SetDefault("turn.judge_timeout_ms", d.JudgeTimeoutMs)
	viper.SetDefault("turn.pre_reply_timeout_ms", d.PreReplyTimeoutMs)
	viper.SetDefault("turn.recent_judgment_window", d.RecentJudgmentWindow)
	viper.SetDefault("turn.classifier_join_window_ms", d.ClassifierJoinWindowMs)
	viper.SetDefault("turn.frame_tail_bytes", d.FrameTailBytes)
	viper.SetDefault("llm.provider", "openai")
	viper.SetDefault("llm.open_ai_model", "gpt-4o-mini")
}

func genEnv() string {
	env := viper.GetString("ENV")
	if env == "" {
		return "dev"
	}
	return env
}
