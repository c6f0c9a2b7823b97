// Package config loads familyq settings from defaults, an optional YAML file
// and FAMILYQ_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/spf13/viper"

	"github.com/dukerupert/familyq/internal/backup"
	"github.com/dukerupert/familyq/internal/insight"
	"github.com/dukerupert/familyq/internal/model"
	"github.com/dukerupert/familyq/internal/push"
)

const envPrefix = "FAMILYQ"

const (
	keyPort             = "port"
	keyDBPath           = "db_path"
	keyLogLevel         = "log_level"
	keyLogFormat        = "log_format"
	keyTimezone         = "timezone"
	keyMinMembers       = "min_members"
	keyInsightAPIURL    = "insight.api_url"
	keyInsightAPIKey    = "insight.api_key"
	keyInsightModel     = "insight.model"
	keyInsightConnect   = "insight.connect_timeout"
	keyInsightRead      = "insight.read_timeout"
	keyInsightTimeout   = "insight.timeout"
	keySchedulerEnabled = "scheduler.enabled"
	keySchedulerWorkers = "scheduler.concurrency"
	keyAdminTokenHash   = "admin.token_hash"
	keyAnswersPerMinute = "ratelimit.answers_per_minute"
	keyBackupEndpoint   = "backup.s3.endpoint"
	keyBackupBucket     = "backup.s3.bucket"
	keyBackupRegion     = "backup.s3.region"
	keyBackupAccessKey  = "backup.s3.access_key"
	keyBackupSecretKey  = "backup.s3.secret_key"
	keyBackupPrefix     = "backup.prefix"
	keyBackupPassphrase = "backup.passphrase"
	keyBackupKeep       = "backup.keep"
	keyBackupInterval   = "backup.interval"
	keyPushPublicKey    = "push.vapid_public_key"
	keyPushPrivateKey   = "push.vapid_private_key"
	keyPushSubscriber   = "push.subscriber"
)

type Config struct {
	Port      string
	DBPath    string
	LogLevel  string
	LogFormat string

	Timezone string
	Location *time.Location

	MinMembers int

	Insight insight.Config

	// InsightTimeout bounds the insight call made after an entry completes.
	InsightTimeout time.Duration

	SchedulerEnabled     bool
	SchedulerConcurrency int

	// AdminTokenHash is a bcrypt hash of the admin bearer token. Empty
	// disables the admin API.
	AdminTokenHash string

	AnswersPerMinute int

	Backup backup.Config

	// BackupKeep is how many backups prune retains.
	BackupKeep int

	// BackupInterval spaces the backups serve takes on its own. Zero leaves
	// backups to the CLI.
	BackupInterval time.Duration

	// Push is disabled unless both VAPID keys are set.
	Push push.Config
}

// InsightEnabled reports whether a remote insight API is configured.
func (c Config) InsightEnabled() bool {
	return c.Insight.APIKey != ""
}

// NewViper returns a viper instance with defaults and environment binding in
// place. A non-empty configFile is read; a missing file is an error.
func NewViper(configFile string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}
	return v, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(keyPort, "8080")
	v.SetDefault(keyDBPath, "familyq.db")
	v.SetDefault(keyLogLevel, "info")
	v.SetDefault(keyLogFormat, "text")
	v.SetDefault(keyTimezone, "Asia/Seoul")
	v.SetDefault(keyMinMembers, model.MinMembersToStart)
	v.SetDefault(keyInsightAPIURL, insight.DefaultAPIURL)
	v.SetDefault(keyInsightAPIKey, "")
	v.SetDefault(keyInsightModel, insight.DefaultModel)
	v.SetDefault(keyInsightConnect, insight.DefaultConnectTimeout)
	v.SetDefault(keyInsightRead, insight.DefaultReadTimeout)
	v.SetDefault(keyInsightTimeout, 45*time.Second)
	v.SetDefault(keySchedulerEnabled, true)
	v.SetDefault(keySchedulerWorkers, 4)
	v.SetDefault(keyAdminTokenHash, "")
	v.SetDefault(keyAnswersPerMinute, 30)
	v.SetDefault(keyBackupEndpoint, "")
	v.SetDefault(keyBackupBucket, "")
	v.SetDefault(keyBackupRegion, "us-east-1")
	v.SetDefault(keyBackupAccessKey, "")
	v.SetDefault(keyBackupSecretKey, "")
	v.SetDefault(keyBackupPrefix, "familyq/")
	v.SetDefault(keyBackupPassphrase, "")
	v.SetDefault(keyBackupKeep, 14)
	v.SetDefault(keyBackupInterval, 24*time.Hour)
	v.SetDefault(keyPushPublicKey, "")
	v.SetDefault(keyPushPrivateKey, "")
	v.SetDefault(keyPushSubscriber, "mailto:admin@familyq.local")
}

// Load reads and validates the settings held by v.
func Load(v *viper.Viper) (Config, error) {
	cfg := Config{
		Port:      v.GetString(keyPort),
		DBPath:    v.GetString(keyDBPath),
		LogLevel:  v.GetString(keyLogLevel),
		LogFormat: v.GetString(keyLogFormat),
		Timezone:  v.GetString(keyTimezone),

		MinMembers: v.GetInt(keyMinMembers),

		Insight: insight.Config{
			APIURL:         v.GetString(keyInsightAPIURL),
			APIKey:         v.GetString(keyInsightAPIKey),
			Model:          v.GetString(keyInsightModel),
			ConnectTimeout: v.GetDuration(keyInsightConnect),
			ReadTimeout:    v.GetDuration(keyInsightRead),
		},
		InsightTimeout: v.GetDuration(keyInsightTimeout),

		SchedulerEnabled:     v.GetBool(keySchedulerEnabled),
		SchedulerConcurrency: v.GetInt(keySchedulerWorkers),

		AdminTokenHash:   v.GetString(keyAdminTokenHash),
		AnswersPerMinute: v.GetInt(keyAnswersPerMinute),

		Backup: backup.Config{
			S3: backup.S3Config{
				Endpoint:  v.GetString(keyBackupEndpoint),
				Bucket:    v.GetString(keyBackupBucket),
				Region:    v.GetString(keyBackupRegion),
				AccessKey: v.GetString(keyBackupAccessKey),
				SecretKey: v.GetString(keyBackupSecretKey),
			},
			Prefix:     v.GetString(keyBackupPrefix),
			Passphrase: v.GetString(keyBackupPassphrase),
		},
		BackupKeep:     v.GetInt(keyBackupKeep),
		BackupInterval: v.GetDuration(keyBackupInterval),

		Push: push.Config{
			VAPIDPublicKey:  v.GetString(keyPushPublicKey),
			VAPIDPrivateKey: v.GetString(keyPushPrivateKey),
			Subscriber:      v.GetString(keyPushSubscriber),
		},
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return Config{}, fmt.Errorf("invalid %s %q: %w", keyTimezone, cfg.Timezone, err)
	}
	cfg.Location = loc

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	var errs []error
	if strings.TrimSpace(c.Port) == "" {
		errs = append(errs, fmt.Errorf("%s is required", keyPort))
	}
	if strings.TrimSpace(c.DBPath) == "" {
		errs = append(errs, fmt.Errorf("%s is required", keyDBPath))
	}
	if c.MinMembers < 1 {
		errs = append(errs, fmt.Errorf("%s must be at least 1, got %d", keyMinMembers, c.MinMembers))
	}
	for key, d := range map[string]time.Duration{
		keyInsightConnect: c.Insight.ConnectTimeout,
		keyInsightRead:    c.Insight.ReadTimeout,
		keyInsightTimeout: c.InsightTimeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", key, d))
		}
	}
	if c.SchedulerConcurrency < 1 {
		errs = append(errs, fmt.Errorf("%s must be at least 1, got %d", keySchedulerWorkers, c.SchedulerConcurrency))
	}
	if c.AnswersPerMinute < 1 {
		errs = append(errs, fmt.Errorf("%s must be at least 1, got %d", keyAnswersPerMinute, c.AnswersPerMinute))
	}
	if c.BackupKeep < 1 {
		errs = append(errs, fmt.Errorf("%s must be at least 1, got %d", keyBackupKeep, c.BackupKeep))
	}
	if c.BackupInterval < 0 {
		errs = append(errs, fmt.Errorf("%s must not be negative, got %s", keyBackupInterval, c.BackupInterval))
	}
	if (c.Push.VAPIDPublicKey == "") != (c.Push.VAPIDPrivateKey == "") {
		errs = append(errs, fmt.Errorf("%s and %s must be set together", keyPushPublicKey, keyPushPrivateKey))
	}
	return errors.Join(errs...)
}
