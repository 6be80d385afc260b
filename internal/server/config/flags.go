package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/authgate/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   TLS listener bind address (e.g., "0.0.0.0:3000")
//	-d string   PostgreSQL DSN
//	-t string   TLS certificate file
//	-k string   TLS private key file
//	-s string   session token signing key (ES256 private key PEM)
//	-v string   session token verification key (public key PEM)
//	-m int      max concurrent connections
//	-x int      session token validity, seconds
//	-u string   S3 root user
//	-p string   S3 root password
//	-b string   S3 bucket name
//	-g string   S3 region
//	-e string   S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//
// Only these flags are looked at, so the -c/-config flag read by parseJson
// does not collide.
func parseFlags(config *Config) {
	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddr, "a", config.EndpointAddr, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.TLSCertFile, "t", config.TLSCertFile, "TLS certificate file")
	fs.StringVar(&config.TLSKeyFile, "k", config.TLSKeyFile, "TLS key file")
	fs.StringVar(&config.TokenPrivateKeyFile, "s", config.TokenPrivateKeyFile, "token signing key file")
	fs.StringVar(&config.TokenPublicKeyFile, "v", config.TokenPublicKeyFile, "token verification key file")
	fs.IntVar(&config.MaxConnections, "m", config.MaxConnections, "max concurrent connections")

	tokenTTL := fs.Int("x", int(config.TokenTTL.Seconds()), "token validity (in seconds)")

	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")

	if err := flagx.ParseKnown(fs, os.Args[1:]); err != nil {
		panic(err)
	}

	config.TokenTTL = time.Duration(*tokenTTL) * time.Second
}
