package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/authgate/internal/flagx"
	"github.com/dmitrijs2005/authgate/internal/timex"
)

// JsonConfig is the on-disk shape of the config file. Durations use
// timex.Duration so both "30s" and integer nanoseconds are accepted.
type JsonConfig struct {
	EndpointAddr     string         `json:"endpoint_addr"`
	TLSCertFile      string         `json:"tls_cert_file"`
	TLSKeyFile       string         `json:"tls_key_file"`
	TLSClientCAFile  string         `json:"tls_client_ca_file"`
	MaxConnections   int            `json:"max_connections"`
	HandshakeTimeout timex.Duration `json:"handshake_timeout"`
	ShutdownTimeout  timex.Duration `json:"shutdown_timeout"`

	DatabaseDSN      string `json:"database_dsn"`
	DatabaseMaxConns int    `json:"database_max_conns"`

	TokenPrivateKeyFile string         `json:"token_private_key_file"`
	TokenPublicKeyFile  string         `json:"token_public_key_file"`
	TokenOrg            string         `json:"token_org"`
	TokenHeader         string         `json:"token_header"`
	TokenTTL            timex.Duration `json:"token_ttl"`

	ResetTokenTTL        timex.Duration `json:"reset_token_ttl"`
	VerificationTTL      timex.Duration `json:"verification_ttl"`
	VerificationEnabled  bool           `json:"verification_enabled"`
	VerificationRequired bool           `json:"verification_required"`

	PasswordSalt string `json:"password_salt"`
	AdminEmail   string `json:"admin_email"`

	KafkaPublishEvents bool     `json:"kafka_publish_events"`
	KafkaBrokers       []string `json:"kafka_brokers"`
	KafkaTopic         string   `json:"kafka_topic"`

	S3RootUser     string `json:"s3_root_user"`
	S3RootPassword string `json:"s3_root_password"`
	S3Bucket       string `json:"s3_bucket"`
	S3Region       string `json:"s3_region"`
	S3BaseEndpoint string `json:"s3_base_endpoint"`
	S3DataPrefix   string `json:"s3_data_prefix"`
	MaxUploadBytes int64  `json:"max_upload_bytes"`

	ServerName string `json:"server_name"`
	Debug      bool   `json:"debug"`
}

// parseJson overlays values from the file named by -c/-config onto config.
// Keys missing from the file keep their current value. A missing flag means
// nothing is loaded; an unreadable file or invalid JSON panics.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := toJson(config)
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}
	fromJson(c, config)
}

func toJson(c *Config) *JsonConfig {
	return &JsonConfig{
		EndpointAddr:         c.EndpointAddr,
		TLSCertFile:          c.TLSCertFile,
		TLSKeyFile:           c.TLSKeyFile,
		TLSClientCAFile:      c.TLSClientCAFile,
		MaxConnections:       c.MaxConnections,
		HandshakeTimeout:     timex.Duration{Duration: c.HandshakeTimeout},
		ShutdownTimeout:      timex.Duration{Duration: c.ShutdownTimeout},
		DatabaseDSN:          c.DatabaseDSN,
		DatabaseMaxConns:     c.DatabaseMaxConns,
		TokenPrivateKeyFile:  c.TokenPrivateKeyFile,
		TokenPublicKeyFile:   c.TokenPublicKeyFile,
		TokenOrg:             c.TokenOrg,
		TokenHeader:          c.TokenHeader,
		TokenTTL:             timex.Duration{Duration: c.TokenTTL},
		ResetTokenTTL:        timex.Duration{Duration: c.ResetTokenTTL},
		VerificationTTL:      timex.Duration{Duration: c.VerificationTTL},
		VerificationEnabled:  c.VerificationEnabled,
		VerificationRequired: c.VerificationRequired,
		PasswordSalt:         c.PasswordSalt,
		AdminEmail:           c.AdminEmail,
		KafkaPublishEvents:   c.KafkaPublishEvents,
		KafkaBrokers:         c.KafkaBrokers,
		KafkaTopic:           c.KafkaTopic,
		S3RootUser:           c.S3RootUser,
		S3RootPassword:       c.S3RootPassword,
		S3Bucket:             c.S3Bucket,
		S3Region:             c.S3Region,
		S3BaseEndpoint:       c.S3BaseEndpoint,
		S3DataPrefix:         c.S3DataPrefix,
		MaxUploadBytes:       c.MaxUploadBytes,
		ServerName:           c.ServerName,
		Debug:                c.Debug,
	}
}

func fromJson(j *JsonConfig, c *Config) {
	c.EndpointAddr = j.EndpointAddr
	c.TLSCertFile = j.TLSCertFile
	c.TLSKeyFile = j.TLSKeyFile
	c.TLSClientCAFile = j.TLSClientCAFile
	c.MaxConnections = j.MaxConnections
	c.HandshakeTimeout = j.HandshakeTimeout.Duration
	c.ShutdownTimeout = j.ShutdownTimeout.Duration
	c.DatabaseDSN = j.DatabaseDSN
	c.DatabaseMaxConns = j.DatabaseMaxConns
	c.TokenPrivateKeyFile = j.TokenPrivateKeyFile
	c.TokenPublicKeyFile = j.TokenPublicKeyFile
	c.TokenOrg = j.TokenOrg
	c.TokenHeader = j.TokenHeader
	c.TokenTTL = j.TokenTTL.Duration
	c.ResetTokenTTL = j.ResetTokenTTL.Duration
	c.VerificationTTL = j.VerificationTTL.Duration
	c.VerificationEnabled = j.VerificationEnabled
	c.VerificationRequired = j.VerificationRequired
	c.PasswordSalt = j.PasswordSalt
	c.AdminEmail = j.AdminEmail
	c.KafkaPublishEvents = j.KafkaPublishEvents
	c.KafkaBrokers = j.KafkaBrokers
	c.KafkaTopic = j.KafkaTopic
	c.S3RootUser = j.S3RootUser
	c.S3RootPassword = j.S3RootPassword
	c.S3Bucket = j.S3Bucket
	c.S3Region = j.S3Region
	c.S3BaseEndpoint = j.S3BaseEndpoint
	c.S3DataPrefix = j.S3DataPrefix
	c.MaxUploadBytes = j.MaxUploadBytes
	c.ServerName = j.ServerName
	c.Debug = j.Debug
}
