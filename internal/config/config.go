package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/ini.v1"
)

// Config holds all configuration
type Config struct {
	HTTPAddr    string
	StateFile   string
	DNS         DNSConfig
	ACME        ACMEConfig
	RenewWorker RenewWorkerConfig
}

// DNSConfig holds DNS provider configuration
type DNSConfig struct {
	ParentZone   string
	HostedZoneID string
	Strict       bool // surface provider errors instead of fire-and-forget
	TimeoutSec   int
}

// ACMEConfig holds certificate issuance configuration
type ACMEConfig struct {
	DirectoryURL        string
	ContactEmail        string
	ManagedSubdomain    string
	OperatorIP          string
	ChallengeTimeoutSec int
	ValidityDays        int
}

// RenewWorkerConfig holds renew worker configuration
type RenewWorkerConfig struct {
	Enabled     bool
	IntervalSec int
}

const defaultDirectoryURL = "https://acme-v02.api.letsencrypt.org/directory"

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		HTTPAddr:  getEnv("HTTP_ADDR", ":8335"),
		StateFile: getEnv("STATE_FILE", "settings.json"),
		DNS: DNSConfig{
			ParentZone:   getEnv("DNS_PARENT_ZONE", "theremote.io"),
			HostedZoneID: getEnv("DNS_HOSTED_ZONE_ID", "Z3OXPV1SZLXM0K"),
			Strict:       getEnv("DNS_STRICT", "0") == "1",
			TimeoutSec:   getEnvInt("DNS_TIMEOUT_SEC", 30),
		},
		ACME: ACMEConfig{
			DirectoryURL:        getEnv("ACME_DIRECTORY_URL", defaultDirectoryURL),
			ContactEmail:        getEnv("ACME_CONTACT_EMAIL", ""),
			ManagedSubdomain:    getEnv("ACME_MANAGED_SUBDOMAIN", "certification"),
			OperatorIP:          getEnv("ACME_OPERATOR_IP", ""),
			ChallengeTimeoutSec: getEnvInt("ACME_CHALLENGE_TIMEOUT_SEC", 120),
			ValidityDays:        getEnvInt("ACME_VALIDITY_DAYS", 30),
		},
		RenewWorker: RenewWorkerConfig{
			Enabled:     getEnv("RENEW_WORKER_ENABLED", "1") == "1",
			IntervalSec: getEnvInt("RENEW_WORKER_INTERVAL_SEC", 3600),
		},
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromINI loads configuration from an INI file with environment
// variable override (priority: ENV > INI > default)
func LoadFromINI(iniPath string) (*Config, error) {
	cfgFile, err := ini.Load(iniPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load INI file: %w", err)
	}

	getValue := func(envKey, iniSection, iniKey, defaultValue string) string {
		if value := os.Getenv(envKey); value != "" {
			return value
		}
		if value := cfgFile.Section(iniSection).Key(iniKey).String(); value != "" {
			return value
		}
		return defaultValue
	}

	getValueInt := func(envKey, iniSection, iniKey string, defaultValue int) int {
		if value := os.Getenv(envKey); value != "" {
			if intValue, err := strconv.Atoi(value); err == nil {
				return intValue
			}
		}
		if cfgFile.Section(iniSection).HasKey(iniKey) {
			if value, err := cfgFile.Section(iniSection).Key(iniKey).Int(); err == nil {
				return value
			}
		}
		return defaultValue
	}

	getValueBool := func(envKey, iniSection, iniKey string, defaultValue bool) bool {
		if value := os.Getenv(envKey); value != "" {
			return value == "1" || value == "true"
		}
		if value, err := cfgFile.Section(iniSection).Key(iniKey).Bool(); err == nil {
			return value
		}
		return defaultValue
	}

	cfg := &Config{
		HTTPAddr:  getValue("HTTP_ADDR", "http", "addr", ":8335"),
		StateFile: getValue("STATE_FILE", "state", "file", "settings.json"),
		DNS: DNSConfig{
			ParentZone:   getValue("DNS_PARENT_ZONE", "dns", "parent_zone", "theremote.io"),
			HostedZoneID: getValue("DNS_HOSTED_ZONE_ID", "dns", "hosted_zone_id", "Z3OXPV1SZLXM0K"),
			Strict:       getValueBool("DNS_STRICT", "dns", "strict", false),
			TimeoutSec:   getValueInt("DNS_TIMEOUT_SEC", "dns", "timeout_sec", 30),
		},
		ACME: ACMEConfig{
			DirectoryURL:        getValue("ACME_DIRECTORY_URL", "acme", "directory_url", defaultDirectoryURL),
			ContactEmail:        getValue("ACME_CONTACT_EMAIL", "acme", "contact_email", ""),
			ManagedSubdomain:    getValue("ACME_MANAGED_SUBDOMAIN", "acme", "managed_subdomain", "certification"),
			OperatorIP:          getValue("ACME_OPERATOR_IP", "acme", "operator_ip", ""),
			ChallengeTimeoutSec: getValueInt("ACME_CHALLENGE_TIMEOUT_SEC", "acme", "challenge_timeout_sec", 120),
			ValidityDays:        getValueInt("ACME_VALIDITY_DAYS", "acme", "validity_days", 30),
		},
		RenewWorker: RenewWorkerConfig{
			Enabled:     getValueBool("RENEW_WORKER_ENABLED", "renew_worker", "enabled", true),
			IntervalSec: getValueInt("RENEW_WORKER_INTERVAL_SEC", "renew_worker", "interval_sec", 3600),
		},
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(cfg *Config) error {
	if cfg.ACME.ContactEmail == "" {
		return fmt.Errorf("ACME_CONTACT_EMAIL is required")
	}
	if cfg.ACME.OperatorIP == "" {
		return fmt.Errorf("ACME_OPERATOR_IP is required")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
