package strategy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"kelpie/internal/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/mitchellh/mapstructure"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Builder 把模板参数实例化为策略。
type Builder func(params map[string]any) (Strategy, error)

// Template 描述单个策略模板：builder id、默认参数与参数 schema。
type Template struct {
	ID          string         `mapstructure:"id" yaml:"id"`
	Description string         `mapstructure:"description" yaml:"description"`
	Builder     string         `mapstructure:"builder" yaml:"builder"`
	Version     int            `mapstructure:"version" yaml:"version"`
	Params      map[string]any `mapstructure:"params" yaml:"params"`
	Schema      map[string]any `mapstructure:"schema" yaml:"schema"`

	schemaCompiled *jsonschema.Schema
}

// FileConfig 映射 strategies 配置文件。
type FileConfig struct {
	Strategies map[string]Template `mapstructure:"strategies" yaml:"strategies"`
}

// Snapshot 是模板集的只读视图。
type Snapshot struct {
	Version   int64
	LoadedAt  time.Time
	Templates map[string]Template
}

// Registry 管理策略模板：从 YAML 加载、jsonschema 校验参数、
// 文件变更时热重载。
type Registry struct {
	path     string
	v        *viper.Viper
	builders map[string]Builder

	mu       sync.RWMutex
	snapshot Snapshot
}

// NewRegistry 读取模板文件并监听更新。
func NewRegistry(path string) (*Registry, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("strategy registry requires path")
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read strategy config failed: %w", err)
	}
	r := &Registry{path: path, v: v, builders: builtinBuilders()}
	if err := r.reload(); err != nil {
		return nil, err
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if err := r.reload(); err != nil {
			logger.Errorf("strategy registry reload failed: %v", err)
		}
	})
	v.WatchConfig()
	return r, nil
}

func builtinBuilders() map[string]Builder {
	return map[string]Builder{
		"sma_cross": func(params map[string]any) (Strategy, error) {
			var p SMACrossParams
			if err := decodeParams(params, &p); err != nil {
				return nil, err
			}
			return NewSMACross(p)
		},
		"rsi_reversion": func(params map[string]any) (Strategy, error) {
			var p RSIReversionParams
			if err := decodeParams(params, &p); err != nil {
				return nil, err
			}
			return NewRSIReversion(p)
		},
	}
}

// RegisterBuilder 注册自定义策略构造器，覆盖同名内置项。
func (r *Registry) RegisterBuilder(id string, b Builder) {
	r.mu.Lock()
	r.builders[id] = b
	r.mu.Unlock()
}

// Snapshot 返回当前模板集。
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneSnapshot(r.snapshot)
}

// Template 返回指定 ID 的模板。
func (r *Registry) Template(id string) (Template, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tpl, ok := r.snapshot.Templates[strings.TrimSpace(id)]
	return tpl, ok
}

// Build 实例化模板，overrides 覆盖默认参数并经 schema 校验。
func (r *Registry) Build(id string, overrides map[string]any) (Strategy, error) {
	tpl, ok := r.Template(id)
	if !ok {
		return nil, fmt.Errorf("未知策略模板: %s", id)
	}
	params := make(map[string]any, len(tpl.Params)+len(overrides))
	for k, v := range tpl.Params {
		params[k] = v
	}
	for k, v := range overrides {
		params[k] = v
	}
	if err := tpl.Validate(params); err != nil {
		return nil, fmt.Errorf("策略 %s 参数校验失败: %w", id, err)
	}
	r.mu.RLock()
	builder, ok := r.builders[tpl.Builder]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("策略 %s 缺少 builder %q", id, tpl.Builder)
	}
	return builder(params)
}

func (r *Registry) reload() error {
	cfg, err := readStrategyFile(r.path)
	if err != nil {
		return err
	}
	templates := make(map[string]Template)
	for name, tpl := range cfg.Strategies {
		norm := normalizeTemplate(name, tpl)
		templates[norm.ID] = norm
	}
	r.mu.Lock()
	r.snapshot = Snapshot{
		Version:   r.snapshot.Version + 1,
		LoadedAt:  time.Now(),
		Templates: templates,
	}
	r.mu.Unlock()
	logger.Infof("strategy registry loaded %d templates from %s", len(templates), filepath.Base(r.path))
	return nil
}

func normalizeTemplate(name string, tpl Template) Template {
	tpl.ID = strings.TrimSpace(tpl.ID)
	if tpl.ID == "" {
		tpl.ID = strings.TrimSpace(name)
	}
	if tpl.Builder == "" {
		tpl.Builder = tpl.ID
	}
	if tpl.Version <= 0 {
		tpl.Version = 1
	}
	tpl.Description = strings.TrimSpace(tpl.Description)
	if len(tpl.Schema) > 0 {
		if compiled, err := compileSchema(tpl.Schema); err != nil {
			logger.Errorf("strategy schema compile failed id=%s: %v", tpl.ID, err)
		} else {
			tpl.schemaCompiled = compiled
		}
	}
	return tpl
}

func cloneSnapshot(src Snapshot) Snapshot {
	dst := Snapshot{
		Version:   src.Version,
		LoadedAt:  src.LoadedAt,
		Templates: make(map[string]Template, len(src.Templates)),
	}
	for id, tpl := range src.Templates {
		dst.Templates[id] = tpl
	}
	return dst
}

func compileSchema(data map[string]any) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", strings.NewReader(string(raw))); err != nil {
		return nil, err
	}
	return compiler.Compile("schema.json")
}

func readStrategyFile(path string) (FileConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return FileConfig{}, fmt.Errorf("read strategy config failed: %w", err)
	}
	var cfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return FileConfig{}, fmt.Errorf("parse strategy config failed: %w", err)
	}
	return cfg, nil
}

// Validate 按模板 schema 校验参数，无 schema 时放行。
func (t Template) Validate(params map[string]any) error {
	if t.schemaCompiled == nil {
		return nil
	}
	return t.schemaCompiled.Validate(normalizeNumbers(params))
}

// normalizeNumbers 把 YAML 解出的 int 统一为 float64，
// 以免 jsonschema 的 number 校验对整数报错。
func normalizeNumbers(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, child := range val {
			out[k] = normalizeNumbers(child)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, child := range val {
			out[i] = normalizeNumbers(child)
		}
		return out
	case int:
		return float64(val)
	case int64:
		return float64(val)
	default:
		return v
	}
}

func decodeParams(params map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return dec.Decode(params)
}
