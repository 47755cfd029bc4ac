package config

const (
	defaultAPITarget     = "http://localhost:5000"
	defaultAPIPrefix     = "/api"
	defaultMaxConcurrent = 5

	defaultListen                = ":5000"
	defaultMaxUpstreamConcurrent = 8

	defaultStorageDriver = StorageSQLite
	defaultRedisAddr     = "localhost:6379"

	defaultOllamaURL = "http://localhost:11434"
	defaultGroqURL   = "https://api.groq.com/openai/v1"

	defaultKafkaTopic = "canvas-events"

	// Paths relative to the .canvas/ directory.
	DefaultGraphFile  = "graph.yaml"
	DefaultSQLiteFile = "canvas.db"
)

// Storage drivers.
const (
	StorageMemory   = "memory"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
	StorageRedis    = "redis"
)

// StorageDrivers returns the supported storage driver names.
func StorageDrivers() []string {
	return []string{StorageMemory, StorageSQLite, StoragePostgres, StorageRedis}
}

// IsValidStorageDriver reports whether name is a supported storage driver.
func IsValidStorageDriver(name string) bool {
	for _, d := range StorageDrivers() {
		if d == name {
			return true
		}
	}
	return false
}

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values. Paths left empty
// resolve inside the .canvas/ directory at startup.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Client: ClientConfig{
			APITarget:     defaultAPITarget,
			APIPrefix:     defaultAPIPrefix,
			MaxConcurrent: defaultMaxConcurrent,
		},
		Server: ServerConfig{
			Listen:                defaultListen,
			MaxUpstreamConcurrent: defaultMaxUpstreamConcurrent,
		},
		Storage: StorageConfig{
			Driver:    defaultStorageDriver,
			RedisAddr: defaultRedisAddr,
		},
		Backends: BackendsConfig{
			OllamaURL: defaultOllamaURL,
			GroqURL:   defaultGroqURL,
		},
		Events: EventsConfig{
			KafkaTopic: defaultKafkaTopic,
		},
	}
}
