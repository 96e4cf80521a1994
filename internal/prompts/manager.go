// Package prompts renders the leader's prompt templates. Built-in templates
// are embedded; a directory of *.tmpl files may override any of them.
package prompts

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"text/template"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const (
	Planner        = "planner"
	Replanner      = "replanner"
	ExecutorSelect = "executor_select"
	ExecutorTask   = "executor_task"
	Validator      = "validator"
	Responder      = "responder"
)

//go:embed templates/*.tmpl
var builtin embed.FS

var funcs = template.FuncMap{
	"join": strings.Join,
	"inc":  func(i int) int { return i + 1 },
}

type Manager struct {
	Directory string

	mu        sync.RWMutex
	templates map[string]*template.Template
}

// NewManager loads the built-in templates and, when dir is set, the
// overrides found there.
func NewManager(dir string) (*Manager, error) {
	pm := &Manager{Directory: dir}
	if err := pm.Reload(); err != nil {
		return nil, err
	}
	return pm, nil
}

// Reload rebuilds the template set from scratch.
func (pm *Manager) Reload() error {
	set := make(map[string]*template.Template)

	entries, err := fs.ReadDir(builtin, "templates")
	if err != nil {
		return fmt.Errorf("failed to read built-in prompts: %w", err)
	}
	for _, e := range entries {
		data, err := fs.ReadFile(builtin, "templates/"+e.Name())
		if err != nil {
			return err
		}
		if err := addTemplate(set, e.Name(), string(data)); err != nil {
			return err
		}
	}

	if pm.Directory != "" {
		files, err := os.ReadDir(pm.Directory)
		if err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to read prompts directory: %w", err)
		}
		for _, f := range files {
			if f.IsDir() || !strings.HasSuffix(f.Name(), ".tmpl") {
				continue
			}
			data, err := os.ReadFile(filepath.Join(pm.Directory, f.Name()))
			if err != nil {
				return fmt.Errorf("failed to read prompt file %s: %w", f.Name(), err)
			}
			if err := addTemplate(set, f.Name(), string(data)); err != nil {
				return err
			}
		}
	}

	pm.mu.Lock()
	pm.templates = set
	pm.mu.Unlock()
	return nil
}

func addTemplate(set map[string]*template.Template, file, body string) error {
	name := strings.TrimSuffix(file, ".tmpl")
	t, err := template.New(name).Funcs(funcs).Option("missingkey=error").Parse(body)
	if err != nil {
		return fmt.Errorf("failed to parse prompt %s: %w", file, err)
	}
	set[name] = t
	return nil
}

// Render executes the named template with data.
func (pm *Manager) Render(name string, data any) (string, error) {
	pm.mu.RLock()
	t, ok := pm.templates[name]
	pm.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("unknown prompt %q", name)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render prompt %s: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// Watch reloads the templates whenever the override directory changes,
// until ctx is done. A failed reload keeps the previous templates.
func (pm *Manager) Watch(ctx context.Context, logger *zap.Logger) error {
	if pm.Directory == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create prompt watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(pm.Directory); err != nil {
		return fmt.Errorf("failed to watch %s: %w", pm.Directory, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !strings.HasSuffix(evt.Name, ".tmpl") || evt.Has(fsnotify.Chmod) {
				continue
			}
			if err := pm.Reload(); err != nil {
				logger.Warn("prompt reload failed", zap.String("file", evt.Name), zap.Error(err))
				continue
			}
			logger.Info("prompts reloaded", zap.String("file", evt.Name))
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("prompt watcher error", zap.Error(err))
		}
	}
}
