package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# relaystream configuration file
#
# Every key can be overridden with an environment variable:
#   RELAYSTREAM_<SECTION>_<KEY>, e.g. RELAYSTREAM_LOGGING_LEVEL=DEBUG

logging:
  level: INFO        # DEBUG, INFO, WARN, ERROR (hot-reloaded)
  format: text       # text, json
  output: stdout     # stdout, stderr or a file path

shutdown_timeout: 30s

server:
  port: 8080
  # public_url: https://media.example.com
  read_timeout: 10s
  write_timeout: 0s  # streams run for as long as the client reads
  idle_timeout: 120s

admin:
  enabled: true
  jwt_secret: %q
  token_duration: 24h

cache:
  type: badger       # badger, memory
  path: %q
  size: 16GiB

pool:
  policy: least_loaded   # least_loaded, round_robin
  cooldown: 60s
  failure_threshold: 3

stream:
  max_attempts: 3
  retry_delay: 1s
  worker_wait_attempts: 60
  worker_wait_delay: 1s
  max_concurrent_fetches: 3

upstream:
  type: memory       # memory, s3
  memory:
    dir: %q
  # s3:
  #   bucket: media
  #   region: us-east-1
  #   endpoint: http://localhost:9000
  #   force_path_style: true
  workers:
    - name: local
  #   - name: key-1
  #     access_key_id: AKIA...
  #     secret_access_key: ...

database:
  type: sqlite       # sqlite, postgres
  sqlite:
    path: %q

metrics:
  enabled: false
  port: 9090

telemetry:
  enabled: false
  endpoint: localhost:4317
  insecure: true
  sample_rate: 1.0

profiling:
  enabled: false
  endpoint: http://localhost:4040
`

// InitConfig writes a sample config to the default location and returns
// its path. An existing file is kept unless force is set.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes a sample config to path with a fresh JWT secret.
func InitConfigToPath(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("configuration file already exists at %s (use --force to overwrite)", path)
	}

	secret, err := generateSecret()
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	content := fmt.Sprintf(configTemplate,
		secret,
		filepath.ToSlash(defaultCacheDir()),
		filepath.ToSlash(filepath.Join(dir, "media")),
		filepath.ToSlash(filepath.Join(dir, "metadata.db")),
	)

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func generateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate JWT secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
