package db

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
)

//go:embed sql/post_automigrate.sql
var postAutoMigrateSQL string

func (p *Pool) autoMigrate(ctx context.Context) error {
	if p == nil || p.gdb == nil {
		return errPoolClosed
	}

	if err := p.gdb.WithContext(ctx).AutoMigrate(&Document{}); err != nil {
		return fmt.Errorf("gorm auto-migrate models: %w", err)
	}

	trimmed := strings.TrimSpace(postAutoMigrateSQL)
	if trimmed == "" {
		return nil
	}
	if err := p.gdb.WithContext(ctx).Exec(trimmed).Error; err != nil {
		return fmt.Errorf("execute post-auto-migrate SQL: %w", err)
	}
	return nil
}
