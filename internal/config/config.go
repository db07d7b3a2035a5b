package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	keyFlowiseAPIURL        = "flowise_api_url"
	keyFlowiseAPIKey        = "flowise_api_key"
	keyGmailUser            = "gmail_user"
	keyGmailPass            = "gmail_pass"
	keyPort                 = "port"
	keyLogLevel             = "log_level"
	keyLogFormat            = "log_format"
	keyUploadFolder         = "upload_folder"
	keyPredictionTimeoutSec = "prediction_timeout_sec"
	keySMTPHost             = "smtp_host"
	keySMTPPort             = "smtp_port"
	keySMTPTimeoutSec       = "smtp_timeout_sec"
	keyDatabasePath         = "database_path"
	keyAllowedOrigins       = "http_allowed_origins"
)

const (
	DefaultFlowiseAPIURL = "http://localhost:3000/api/v1/prediction/e2b5a8fb-f99c-4818-a338-53e439ff1f79"
	DefaultPort          = 5000
	DefaultUploadFolder  = "uploads"
	DefaultSMTPHost      = "smtp.gmail.com"
	DefaultSMTPPort      = 465

	defaultPredictionTimeoutSec = 60
	defaultSMTPTimeoutSec       = 30
)

// Config is built once at startup and handed to every component by value.
type Config struct {
	FlowiseAPIURL     string
	FlowiseAPIKey     string
	PredictionTimeout time.Duration

	GmailUser   string
	GmailPass   string
	SMTPHost    string
	SMTPPort    int
	SMTPTimeout time.Duration

	Port           int
	AllowedOrigins []string
	UploadFolder   string

	LogLevel  string
	LogFormat string

	// DatabasePath enables the delivery log when non-empty.
	DatabasePath string
}

// ApplyDefaults registers default values on the viper instance and binds it to the environment.
func ApplyDefaults(v *viper.Viper) {
	v.SetDefault(keyFlowiseAPIURL, DefaultFlowiseAPIURL)
	v.SetDefault(keyFlowiseAPIKey, "")
	v.SetDefault(keyGmailUser, "")
	v.SetDefault(keyGmailPass, "")
	v.SetDefault(keyPort, DefaultPort)
	v.SetDefault(keyLogLevel, "INFO")
	v.SetDefault(keyLogFormat, "text")
	v.SetDefault(keyUploadFolder, DefaultUploadFolder)
	v.SetDefault(keyPredictionTimeoutSec, defaultPredictionTimeoutSec)
	v.SetDefault(keySMTPHost, DefaultSMTPHost)
	v.SetDefault(keySMTPPort, DefaultSMTPPort)
	v.SetDefault(keySMTPTimeoutSec, defaultSMTPTimeoutSec)
	v.SetDefault(keyDatabasePath, "")
	v.SetDefault(keyAllowedOrigins, "")
	v.AutomaticEnv()
}

// Load reads the relay configuration from the environment and, when configFile is set, from that file.
// Environment variables win over file values.
func Load(v *viper.Viper, configFile string) (Config, error) {
	ApplyDefaults(v)
	if strings.TrimSpace(configFile) != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", configFile, err)
		}
	}

	configuration := Config{
		FlowiseAPIURL:     strings.TrimSpace(v.GetString(keyFlowiseAPIURL)),
		FlowiseAPIKey:     strings.TrimSpace(v.GetString(keyFlowiseAPIKey)),
		PredictionTimeout: time.Duration(v.GetInt(keyPredictionTimeoutSec)) * time.Second,
		GmailUser:         strings.TrimSpace(v.GetString(keyGmailUser)),
		GmailPass:         v.GetString(keyGmailPass),
		SMTPHost:          strings.TrimSpace(v.GetString(keySMTPHost)),
		SMTPPort:          v.GetInt(keySMTPPort),
		SMTPTimeout:       time.Duration(v.GetInt(keySMTPTimeoutSec)) * time.Second,
		Port:              v.GetInt(keyPort),
		AllowedOrigins:    parseCSV(v.GetString(keyAllowedOrigins)),
		UploadFolder:      strings.TrimSpace(v.GetString(keyUploadFolder)),
		LogLevel:          strings.TrimSpace(v.GetString(keyLogLevel)),
		LogFormat:         strings.TrimSpace(v.GetString(keyLogFormat)),
		DatabasePath:      strings.TrimSpace(v.GetString(keyDatabasePath)),
	}

	if err := configuration.validate(); err != nil {
		return Config{}, err
	}
	return configuration, nil
}

func (configuration Config) validate() error {
	var errorMessages []string

	parsedURL, parseErr := url.Parse(configuration.FlowiseAPIURL)
	if parseErr != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		errorMessages = append(errorMessages, fmt.Sprintf("invalid FLOWISE_API_URL %q", configuration.FlowiseAPIURL))
	}
	if configuration.Port <= 0 || configuration.Port > 65535 {
		errorMessages = append(errorMessages, fmt.Sprintf("invalid PORT %d", configuration.Port))
	}
	if configuration.SMTPPort <= 0 || configuration.SMTPPort > 65535 {
		errorMessages = append(errorMessages, fmt.Sprintf("invalid SMTP_PORT %d", configuration.SMTPPort))
	}
	if configuration.SMTPHost == "" {
		errorMessages = append(errorMessages, "missing SMTP_HOST")
	}
	if configuration.PredictionTimeout <= 0 {
		errorMessages = append(errorMessages, "PREDICTION_TIMEOUT_SEC must be positive")
	}
	if configuration.SMTPTimeout <= 0 {
		errorMessages = append(errorMessages, "SMTP_TIMEOUT_SEC must be positive")
	}
	if configuration.UploadFolder == "" {
		errorMessages = append(errorMessages, "missing UPLOAD_FOLDER")
	}

	if len(errorMessages) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errorMessages, ", "))
	}
	return nil
}

// ListenAddr returns the address the HTTP server binds to.
func (configuration Config) ListenAddr() string {
	return fmt.Sprintf("0.0.0.0:%d", configuration.Port)
}

// EmailConfigured reports whether sender credentials are present.
func (configuration Config) EmailConfigured() bool {
	return configuration.GmailUser != "" && configuration.GmailPass != ""
}

// DeliveryLogEnabled reports whether email attempts are persisted.
func (configuration Config) DeliveryLogEnabled() bool {
	return configuration.DatabasePath != ""
}

func parseCSV(value string) []string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	rawParts := strings.Split(trimmed, ",")
	var normalized []string
	for _, part := range rawParts {
		candidate := strings.TrimSpace(part)
		if candidate == "" {
			continue
		}
		normalized = append(normalized, candidate)
	}
	return normalized
}
