package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Kafka      KafkaConfig
	ClickHouse ClickHouseConfig
	Auth       AuthConfig
	Logging    LoggingConfig
	Teams      TeamsConfig
	Reaper     ReaperConfig
	Notifier   NotifierConfig
	Kubernetes KubernetesConfig
}

type ServerConfig struct {
	HTTPPort    int           `mapstructure:"http_port"`
	MetricsPort int           `mapstructure:"metrics_port"`
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	BaseURL     string        `mapstructure:"base_url"`
}

type DatabaseConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	SSLMode      string `mapstructure:"ssl_mode"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

// RedisConfig lists the event fabric endpoints. More than one address
// means cluster mode.
type RedisConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Password  string   `mapstructure:"password"`
	DB        int      `mapstructure:"db"`
	PoolSize  int      `mapstructure:"pool_size"`
}

type KafkaConfig struct {
	Brokers          []string `mapstructure:"brokers"`
	ClientID         string   `mapstructure:"client_id"`
	InviteTopic      string   `mapstructure:"invite_topic"`
	InviteRetryTopic string   `mapstructure:"invite_retry_topic"`
	InviteDLQTopic   string   `mapstructure:"invite_dlq_topic"`
	MailerGroup      string   `mapstructure:"mailer_group"`
}

type ClickHouseConfig struct {
	Hosts    []string `mapstructure:"hosts"`
	Database string   `mapstructure:"database"`
	User     string   `mapstructure:"user"`
	Password string   `mapstructure:"password"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

type LoggingConfig struct {
	Level       string `mapstructure:"level"`
	Format      string `mapstructure:"format"`       // json or console
	AuditDriver string `mapstructure:"audit_driver"` // postgres or clickhouse
}

type TeamsConfig struct {
	ProposalTTL time.Duration `mapstructure:"proposal_ttl"`
}

type ReaperConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

type NotifierConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	BatchSize    int           `mapstructure:"batch_size"`
}

type KubernetesConfig struct {
	InCluster  bool   `mapstructure:"in_cluster"`
	KubeConfig string `mapstructure:"kubeconfig"`
	Namespace  string `mapstructure:"namespace"`
	VMImage    string `mapstructure:"vm_image"`
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("/etc/courselab/")
	viper.AddConfigPath(".")

	viper.SetEnvPrefix("COURSELAB")
	viper.AutomaticEnv()

	viper.SetDefault("server.http_port", 8080)
	viper.SetDefault("server.metrics_port", 9091)
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.base_url", "http://localhost:8080")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("redis.pool_size", 100)
	viper.SetDefault("auth.token_ttl", "24h")
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.audit_driver", "postgres")
	viper.SetDefault("kafka.client_id", "courselab")
	viper.SetDefault("kafka.invite_topic", "courselab.team.invites")
	viper.SetDefault("kafka.invite_retry_topic", "courselab.team.invites.retry")
	viper.SetDefault("kafka.invite_dlq_topic", "courselab.team.invites.dlq")
	viper.SetDefault("kafka.mailer_group", "courselab-mailers")
	viper.SetDefault("teams.proposal_ttl", "30m")
	viper.SetDefault("reaper.interval", "10s")
	viper.SetDefault("notifier.poll_interval", "5s")
	viper.SetDefault("notifier.batch_size", 100)
	viper.SetDefault("kubernetes.namespace", "courselab")
	viper.SetDefault("kubernetes.vm_image", "ghcr.io/courselab/vm-sandbox:latest")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
