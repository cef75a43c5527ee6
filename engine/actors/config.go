package actors

import (
	"fmt"
	"os"
	"time"

	"equitydesk/engine/library"
	"github.com/spf13/viper"
)

// InitConfig sets up our Viper config object
func InitConfig(config *viper.Viper) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		library.LogCLI(err.Error(), 0)
	}
	config.SetDefault("rootDir", homeDir+"/equitydesk/")
	config.SetConfigType("yaml")
	config.SetConfigFile(config.GetString("rootDir") + "config.yaml")
	err = config.ReadInConfig()
	if err != nil {
		library.LogCLI(err.Error(), 4)
	}
	config.SetDefault("flatFileDir", "data/")
	config.SetDefault("logLevel", 4)
	config.SetDefault("sweepInterval", "1m")
	config.SetDefault("settlementInterval", "5m")
	config.SetDefault("maxParallelGrants", 8)
	config.SetDefault("lockRetryAttempts", 5)
	config.SetDefault("lockRetryBackoff", "50ms")
	config.SetDefault("certificateWorkers", 2)
	config.SetDefault("persistOnShutdown", true)
	config.SetDefault("seedFile", "")
	config.SetDefault("doNotPublish", true)
	config.SetDefault("relays", []string{"wss://nostr.688.org"})
	// Create our working directory and config file if not exist
	initRootDir(config)
	touch(config.GetString("rootDir") + "config.yaml")
	err = config.WriteConfig()
	if err != nil {
		library.LogCLI(err.Error(), 2)
	}
}

func initRootDir(conf *viper.Viper) {
	_, err := os.Stat(conf.GetString("rootDir"))
	if os.IsNotExist(err) {
		err = os.MkdirAll(conf.GetString("rootDir"), 0755)
		if err != nil {
			library.LogCLI(err, 0)
		}
	}
}

func touch(name string) {
	f, err := os.OpenFile(name, os.O_RDONLY|os.O_CREATE, 0644)
	if err != nil {
		library.LogCLI(err, 2)
		return
	}
	f.Close()
}

var conf *viper.Viper

func MakeOrGetConfig() *viper.Viper {
	return conf
}

func SetConfig(config *viper.Viper) {
	conf = config
}

// Settings is the typed view of the engine configuration.
type Settings struct {
	LogLevel           int
	SweepInterval      time.Duration
	SettlementInterval time.Duration
	MaxParallelGrants  int
	LockRetryAttempts  int
	LockRetryBackoff   time.Duration
	CertificateWorkers int
	PersistOnShutdown  bool
	SeedFile           string
	DoNotPublish       bool
	Relays             []string
}

func LoadSettings(config *viper.Viper) Settings {
	return Settings{
		LogLevel:           config.GetInt("logLevel"),
		SweepInterval:      config.GetDuration("sweepInterval"),
		SettlementInterval: config.GetDuration("settlementInterval"),
		MaxParallelGrants:  config.GetInt("maxParallelGrants"),
		LockRetryAttempts:  config.GetInt("lockRetryAttempts"),
		LockRetryBackoff:   config.GetDuration("lockRetryBackoff"),
		CertificateWorkers: config.GetInt("certificateWorkers"),
		PersistOnShutdown:  config.GetBool("persistOnShutdown"),
		SeedFile:           config.GetString("seedFile"),
		DoNotPublish:       config.GetBool("doNotPublish"),
		Relays:             config.GetStringSlice("relays"),
	}
}

// Validate checks the settings the sweeper depends on.
func (s Settings) Validate() error {
	if s.LogLevel < 0 || s.LogLevel > 5 {
		return fmt.Errorf("logLevel must be within [0,5], got %d", s.LogLevel)
	}
	if s.SweepInterval <= 0 {
		return fmt.Errorf("sweepInterval must be > 0, got %s", s.SweepInterval)
	}
	if s.SettlementInterval <= 0 {
		return fmt.Errorf("settlementInterval must be > 0, got %s", s.SettlementInterval)
	}
	if s.MaxParallelGrants < 1 {
		return fmt.Errorf("maxParallelGrants must be >= 1, got %d", s.MaxParallelGrants)
	}
	if s.LockRetryAttempts < 1 {
		return fmt.Errorf("lockRetryAttempts must be >= 1, got %d", s.LockRetryAttempts)
	}
	if s.LockRetryBackoff < 0 {
		return fmt.Errorf("lockRetryBackoff must be >= 0, got %s", s.LockRetryBackoff)
	}
	if s.CertificateWorkers < 1 {
		return fmt.Errorf("certificateWorkers must be >= 1, got %d", s.CertificateWorkers)
	}
	if !s.DoNotPublish && len(s.Relays) == 0 {
		return fmt.Errorf("relays must not be empty when publishing is enabled")
	}
	return nil
}
