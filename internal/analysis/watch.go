package analysis

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Reload loads rules from path and swaps them in. On error the current
// rules are kept.
func (a *RuleAnalyzer) Reload(path string) error {
	rules, err := LoadRulesFromFile(path)
	if err != nil {
		return err
	}
	a.SetRules(rules)
	a.logger.Info("analysis rules reloaded", "path", path, "categories", len(rules.Categories))
	return nil
}

// Watch reloads the rules whenever path is written or recreated, until ctx
// is done. The directory is watched so editors that replace the file are
// handled.
func (a *RuleAnalyzer) Watch(ctx context.Context, path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve rules path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		return fmt.Errorf("failed to watch directory: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Name != absPath {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if err := a.Reload(absPath); err != nil {
				a.logger.Warn("analysis rules reload failed, keeping previous rules", "path", absPath, "error", err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			a.logger.Warn("rules watcher error", "error", err)
		}
	}
}
