package archive

import (
	"context"
	"fmt"

	"guard-go/internal/config"
)

// NewVaultFromConfig creates a Vault implementation based on the archive
// config type. Returns (nil, nil) when exports are disabled.
func NewVaultFromConfig(ctx context.Context, cfg config.ArchiveConfig) (Vault, error) {
	switch cfg.Type {
	case "", "none":
		return nil, nil
	case "memory":
		return NewMemoryVault(), nil
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("s3 vault requires s3_bucket to be set")
		}
		return NewS3Vault(ctx, cfg)
	case "filesystem":
		if cfg.FSVaultRoot == "" {
			return nil, fmt.Errorf("filesystem vault requires fs_vault_root to be set")
		}
		return NewFileSystemVault(cfg.FSVaultRoot)
	default:
		return nil, fmt.Errorf("unknown vault type: %s", cfg.Type)
	}
}
