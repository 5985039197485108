package metadatautils

import (
	"context"
	"fmt"

	"github.com/totenbilder/imagesearch/pkg/metadata"
	"github.com/totenbilder/imagesearch/pkg/metadata/mysql"
	"github.com/totenbilder/imagesearch/pkg/metadata/postgres"
)

// NewSourceOpts selects and configures a metadata source.
type NewSourceOpts struct {
	// ProviderType is "mysql" or "postgres".
	ProviderType string

	// DatabaseURL wins over the individual connection parts.
	DatabaseURL string

	Host     string
	User     string
	Password string
	Name     string

	Table string
}

// ConnString returns the connection string the source for o would use.
func ConnString(o NewSourceOpts) (string, error) {
	if o.DatabaseURL != "" {
		return o.DatabaseURL, nil
	}
	switch o.ProviderType {
	case "mysql":
		if o.Host == "" || o.User == "" || o.Name == "" {
			return "", fmt.Errorf("mysql metadata source needs a database URL or host, user and name")
		}
		return mysql.DSN(o.Host, o.User, o.Password, o.Name), nil
	case "postgres":
		return "", fmt.Errorf("postgres metadata source needs a database URL")
	default:
		return "", fmt.Errorf("unsupported metadata provider: %q", o.ProviderType)
	}
}

// NewSource connects the metadata source for o.ProviderType.
func NewSource(ctx context.Context, o NewSourceOpts) (metadata.Source, error) {
	conn, err := ConnString(o)
	if err != nil {
		return nil, err
	}

	switch o.ProviderType {
	case "mysql":
		return mysql.NewSource(ctx, conn, o.Table)
	case "postgres":
		return postgres.NewSource(ctx, conn, o.Table)
	default:
		return nil, fmt.Errorf("unsupported metadata provider: %q", o.ProviderType)
	}
}
