// config/config.go
package config

import (
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Configuration stores all the configurations
type Configuration struct {
	Server    ServerConfiguration
	Backend   BackendConfiguration
	Queue     QueueConfiguration
	Entity    EntityConfiguration
	RateLimit RateLimitConfiguration
	Redis     RedisConfiguration
}

// ServerConfiguration stores the port and other web server settings
type ServerConfiguration struct {
	Port            string
	ShutdownTimeout time.Duration
}

// BackendConfiguration stores the entity backend location
type BackendConfiguration struct {
	URL      string
	Database string
	Timeout  time.Duration
}

// QueueConfiguration stores the per-entity queue settings
type QueueConfiguration struct {
	CoolDown         time.Duration
	GrantConcurrency int
}

// EntityConfiguration names the backend types and properties the resolvers read
type EntityConfiguration struct {
	TaskType      string
	PersonType    string
	GroupProperty string
	SearchLimit   int
}

// RateLimitConfiguration stores the webhook rate limit
type RateLimitConfiguration struct {
	Requests int
	Window   time.Duration
}

// RedisConfiguration stores data for the optional shared rate limiter
type RedisConfiguration struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

var config *Configuration

func setDefaults() {
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.shutdownTimeout", "10s")
	viper.SetDefault("backend.url", "https://entu.app/api")
	viper.SetDefault("backend.database", "esmuseum")
	viper.SetDefault("backend.timeout", "10s")
	viper.SetDefault("queue.coolDown", "2s")
	viper.SetDefault("queue.grantConcurrency", 4)
	viper.SetDefault("entity.taskType", "ulesanne")
	viper.SetDefault("entity.personType", "person")
	viper.SetDefault("entity.groupProperty", "grupp")
	viper.SetDefault("entity.searchLimit", 1000)
	viper.SetDefault("rateLimit.requests", 120)
	viper.SetDefault("rateLimit.window", "1m")
	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("log.dir", "")
}

func InitConfig() error {
	viper.AddConfigPath("config") // path to look for the config file in
	viper.SetConfigName("config") // name of the config file (without extension)
	viper.SetConfigType("yaml")   // REQUIRED if the config file does not have the extension in the name

	// BACKEND_URL overrides backend.url
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	// Attempt to read the config file
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("No config file found. Using default settings and environment variables.")
		} else {
			return err
		}
	}

	// Unmarshal the configuration into the Configuration struct
	if err := viper.Unmarshal(&config); err != nil {
		return err
	}

	return nil
}

// GetConfig returns the loaded configuration
func GetConfig() *Configuration {
	return config
}

// GetString retrieves a string value from the configuration
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt retrieves an integer value from the configuration
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool retrieves a boolean value from the configuration
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetDuration retrieves a duration value from the configuration
func GetDuration(key string) time.Duration {
	return viper.GetDuration(key)
}
