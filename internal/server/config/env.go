package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// dotenvFile is loaded, when present, before the environment is read.
// Variables already set in the process environment win over the file.
var dotenvFile = ".env"

// parseEnv overlays values from environment variables. Unset variables leave
// the field untouched; a value that does not parse panics.
//
// TTL variables are whole seconds ("2592000") or Go durations ("720h").
// Booleans accept 1/0 and anything strconv.ParseBool understands.
func parseEnv(config *Config) {
	if err := godotenv.Load(dotenvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		panic(err)
	}

	envString("API_ENDPOINT", &config.EndpointAddr)
	envString("API_TLS_CERT", &config.TLSCertFile)
	envString("API_TLS_KEY", &config.TLSKeyFile)
	envString("API_TLS_CA", &config.TLSClientCAFile)
	envInt("API_MAX_CONNECTIONS", &config.MaxConnections)
	envDuration("API_TLS_HANDSHAKE_TIMEOUT", &config.HandshakeTimeout)

	envString("DATABASE_DSN", &config.DatabaseDSN)
	envInt("DATABASE_MAX_CONNS", &config.DatabaseMaxConns)

	envString("TOKEN_ALGO_PRIVATE_KEY", &config.TokenPrivateKeyFile)
	envString("TOKEN_ALGO_PUBLIC_KEY", &config.TokenPublicKeyFile)
	envString("TOKEN_ORG", &config.TokenOrg)
	envString("TOKEN_HEADER", &config.TokenHeader)
	envDuration("TOKEN_EXPIRATION_SECONDS_INTO_FUTURE", &config.TokenTTL)

	envDuration("USER_OTP_EXP_IN_SECONDS", &config.ResetTokenTTL)
	envDuration("USER_EMAIL_VERIFICATION_EXP_IN_SECONDS", &config.VerificationTTL)
	envBool("USER_EMAIL_VERIFICATION_ENABLED", &config.VerificationEnabled)
	envBool("USER_EMAIL_VERIFICATION_REQUIRED", &config.VerificationRequired)

	envString("SERVER_PASSWORD_SALT", &config.PasswordSalt)
	envString("ADMIN_EMAIL", &config.AdminEmail)

	envBool("KAFKA_PUBLISH_EVENTS", &config.KafkaPublishEvents)
	envList("KAFKA_BROKERS", &config.KafkaBrokers)
	envString("KAFKA_TOPIC", &config.KafkaTopic)

	envString("S3_ROOT_USER", &config.S3RootUser)
	envString("S3_ROOT_PASSWORD", &config.S3RootPassword)
	envString("S3_DATA_BUCKET", &config.S3Bucket)
	envString("S3_REGION", &config.S3Region)
	envString("S3_BASE_ENDPOINT", &config.S3BaseEndpoint)
	envString("S3_DATA_PREFIX", &config.S3DataPrefix)

	envString("SERVER_NAME_LABEL", &config.ServerName)
	envBool("DEBUG", &config.Debug)
}

func envString(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		panic(fmt.Errorf("%s: %w", key, err))
	}
	*dst = n
}

func envBool(key string, dst *bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		panic(fmt.Errorf("%s: %w", key, err))
	}
	*dst = b
}

func envDuration(key string, dst *time.Duration) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return
	}
	v = strings.TrimSpace(v)
	if secs, err := strconv.ParseInt(v, 10, 64); err == nil {
		*dst = time.Duration(secs) * time.Second
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		panic(fmt.Errorf("%s: %w", key, err))
	}
	*dst = d
}

func envList(key string, dst *[]string) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	*dst = out
}
