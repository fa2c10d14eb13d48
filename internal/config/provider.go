package config

import (
	"errors"
	"fmt"
	"io/fs"
	"sync"

	"askrelay/internal/domain"
)

// FileProvider serves the configuration record from a config file. Every
// Get re-reads the file so edits from the settings form or `config set`
// apply to the next request without a restart.
type FileProvider struct {
	path string
	mu   sync.Mutex // serializes Set's read-modify-write
}

func NewFileProvider(path string) *FileProvider {
	return &FileProvider{path: ExpandPath(path)}
}

func (p *FileProvider) Path() string { return p.path }

func (p *FileProvider) Get() (domain.Settings, error) {
	cfg, err := Load(p.path)
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultSettings(), nil
	}
	if err != nil {
		return domain.Settings{}, fmt.Errorf("load settings: %w", err)
	}
	return withSettingsDefaults(cfg.Settings), nil
}

func (p *FileProvider) Set(s domain.Settings) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	cfg, err := Load(p.path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg, err = Defaults(), nil
	}
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	cfg.Settings = s
	if err := Validate(cfg); err != nil {
		return err
	}
	return Save(p.path, cfg)
}

// StaticProvider keeps the configuration record in memory.
type StaticProvider struct {
	mu       sync.RWMutex
	settings domain.Settings
}

func NewStaticProvider(s domain.Settings) *StaticProvider {
	return &StaticProvider{settings: s}
}

func (p *StaticProvider) Get() (domain.Settings, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return withSettingsDefaults(p.settings), nil
}

func (p *StaticProvider) Set(s domain.Settings) error {
	p.mu.Lock()
	p.settings = s
	p.mu.Unlock()
	return nil
}

var (
	_ domain.SettingsProvider = (*FileProvider)(nil)
	_ domain.SettingsProvider = (*StaticProvider)(nil)
)
