package config

import (
	"flag"
	"os"
	"time"

	"github.com/mpetrovs/attachsync/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-d string   PostgreSQL DSN
//	-k string   storage backend ("disk" or "s3")
//	-f string   storage base path
//	-w string   webhook shared secret
//	-r string   remote tracker base URL
//	-t string   remote tracker personal access token
//	-n int      queue worker count
//	-m int      max retry count
//	-u string   S3 root user
//	-p string   S3 root password
//	-b string   S3 bucket name
//	-g string   S3 region
//	-e string   S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//	-s int      chunked upload session TTL, minutes
//
// The function first filters os.Args to only the flags it recognizes using
// flagx.FilterArgs, avoiding collisions with the -c/-config flags consumed
// by the JSON layer.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{
		"-a", "-d", "-k", "-f", "-w", "-r", "-t", "-n", "-m", "-u", "-p", "-b", "-g", "-e", "-s",
	})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.Addr, "a", config.Addr, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.StorageBackend, "k", config.StorageBackend, "storage backend (disk|s3)")
	fs.StringVar(&config.StorageBasePath, "f", config.StorageBasePath, "storage base path")
	fs.StringVar(&config.WebhookSecret, "w", config.WebhookSecret, "webhook shared secret")
	fs.StringVar(&config.RemoteBaseURL, "r", config.RemoteBaseURL, "remote tracker base URL")
	fs.StringVar(&config.RemotePAT, "t", config.RemotePAT, "remote tracker personal access token")
	fs.IntVar(&config.WorkerCount, "n", config.WorkerCount, "queue worker count")
	fs.IntVar(&config.MaxRetryCount, "m", config.MaxRetryCount, "max retry count for sync jobs")

	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")

	sessionTTL := fs.Int("s", int(config.SessionTTL.Minutes()), "upload session TTL (in minutes)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.SessionTTL = time.Duration(*sessionTTL) * time.Minute
}
