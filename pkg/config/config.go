// Package config builds the immutable run configuration once at process
// start. Values come from AWS SSM Parameter Store when reachable, with a
// per-key environment-variable fallback; no component reads ambient state
// after construction.
package config

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// Parameter names looked up in SSM and the environment.
const (
	KeySiteLong       = "SITE_NAME_LONG"
	KeySiteShort      = "SITE_NAME_SHORT"
	KeyUser           = "SITE_USER"
	KeyPassword       = "SITE_PASSWORD"
	KeyDBFile         = "DB_FILE"
	KeyRSSFile        = "RSS_FILE"
	KeyFileHostToken  = "FILEHOST_ACCESS_TOKEN"
	KeySnapshotBucket = "SNAPSHOT_BUCKET"
)

var parameterNames = []string{
	KeySiteLong, KeySiteShort, KeyUser, KeyPassword,
	KeyDBFile, KeyRSSFile, KeyFileHostToken, KeySnapshotBucket,
}

// Config is the run configuration. Constructed once in main and passed by
// parameter into every component.
type Config struct {
	SiteLong  string // name used in the feed title and description
	SiteShort string // URL host stem, media tag and articles table name
	RootURL   string
	User      string
	Password  string

	DBFile  string
	RSSFile string

	// FileHostToken empty means photo publishing is skipped.
	FileHostToken string
	// SnapshotBucket empty means the snapshot restore/archive is skipped.
	SnapshotBucket string
}

// Load resolves the configuration: SSM parameters first (prefix taken from
// the SSM_PREFIX environment variable, decryption on), environment
// variables as fallback. An SSM failure is a logged warning, not fatal; the
// invocation role may lack the permission.
func Load(ctx context.Context) (*Config, error) {
	params := fetchSSMParameters(ctx, os.Getenv("SSM_PREFIX"))

	return FromLookup(func(name string) string {
		if v := params[name]; v != "" {
			return v
		}
		return os.Getenv(name)
	})
}

// FromLookup builds a Config from a value lookup function. Site identity,
// credentials and filenames are required; the file-host token and snapshot
// bucket degrade functionality when absent instead of aborting.
func FromLookup(lookup func(name string) string) (*Config, error) {
	cfg := &Config{
		SiteLong:       lookup(KeySiteLong),
		SiteShort:      lookup(KeySiteShort),
		User:           lookup(KeyUser),
		Password:       lookup(KeyPassword),
		DBFile:         lookup(KeyDBFile),
		RSSFile:        lookup(KeyRSSFile),
		FileHostToken:  lookup(KeyFileHostToken),
		SnapshotBucket: lookup(KeySnapshotBucket),
	}

	for name, v := range map[string]string{
		KeySiteShort: cfg.SiteShort,
		KeyUser:      cfg.User,
		KeyPassword:  cfg.Password,
		KeyDBFile:    cfg.DBFile,
		KeyRSSFile:   cfg.RSSFile,
	} {
		if v == "" {
			return nil, fmt.Errorf("required configuration value %s is not set", name)
		}
	}

	if cfg.SiteLong == "" {
		cfg.SiteLong = cfg.SiteShort
	}
	cfg.RootURL = fmt.Sprintf("https://www.%s.com", cfg.SiteShort)

	return cfg, nil
}

// fetchSSMParameters returns whatever parameters SSM yields, keyed by bare
// name (prefix stripped). Any failure returns an empty map after a warning.
func fetchSSMParameters(ctx context.Context, prefix string) map[string]string {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		log.Printf("Warning: AWS config load failed, falling back to env vars: %v", err)
		return nil
	}

	names := make([]string, len(parameterNames))
	for i, n := range parameterNames {
		if prefix != "" {
			names[i] = strings.TrimSuffix(prefix, "/") + "/" + n
		} else {
			names[i] = n
		}
	}

	client := ssm.NewFromConfig(awsCfg)
	resp, err := client.GetParameters(ctx, &ssm.GetParametersInput{
		Names:          names,
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		log.Printf("Warning: SSM parameter fetch failed, falling back to env vars: %v", err)
		return nil
	}

	params := make(map[string]string, len(resp.Parameters))
	for _, p := range resp.Parameters {
		name := aws.ToString(p.Name)
		if i := strings.LastIndex(name, "/"); i >= 0 {
			name = name[i+1:]
		}
		params[name] = aws.ToString(p.Value)
	}
	return params
}
