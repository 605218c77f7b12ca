// Package config loads the HCL build description into an immutable Config.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	apperrors "github.com/maxkimambo/assetpipe/internal/errors"
	"github.com/maxkimambo/assetpipe/internal/fileset"
	"github.com/maxkimambo/assetpipe/internal/transform"
)

// DefaultFile is the configuration file looked up when none is given
const DefaultFile = "assetpipe.hcl"

const (
	defaultPort     = 8000
	defaultDebounce = 100 * time.Millisecond
)

// Config is the validated build description. Paths are absolute.
type Config struct {
	// Path is the configuration file the values were read from
	Path string
	// Root is the source root all input patterns are relative to
	Root string
	// Output is the output tree removed by the clean command
	Output string
	// Concurrency caps parallel transforms; zero means one per CPU
	Concurrency int
	// Journal is the build history database, empty when disabled
	Journal string

	Server ServerConfig
	Watch  WatchConfig
	Tasks  []TaskConfig
}

// ServerConfig configures the development server
type ServerConfig struct {
	Port int
	// Base is the directory served over HTTP
	Base string
	// Open is the page opened in a browser once the server is up, relative
	// to Base. Empty leaves the browser alone unless --open is given.
	Open string
}

// WatchConfig configures the file watcher
type WatchConfig struct {
	Debounce time.Duration
	// Reload matches files no task consumes whose changes only reload
	// connected browsers
	Reload fileset.FileSet
}

// TaskConfig is a single task declaration
type TaskConfig struct {
	Name      string
	Transform string
	Include   []string
	Exclude   []string
	// Output is absolute, or empty for tasks without output
	Output    string
	DependsOn []string
	Timeout   time.Duration
	Options   transform.Options
}

// fileRoot mirrors the top level of a configuration file for decoding
type fileRoot struct {
	Root        string       `hcl:"root,optional"`
	Output      string       `hcl:"output,optional"`
	Concurrency int          `hcl:"concurrency,optional"`
	Journal     string       `hcl:"journal,optional"`
	Server      *serverBlock `hcl:"server,block"`
	Watch       *watchBlock  `hcl:"watch,block"`
	Tasks       []*taskBlock `hcl:"task,block"`
}

type serverBlock struct {
	Port int    `hcl:"port,optional"`
	Base string `hcl:"base,optional"`
	Open string `hcl:"open,optional"`
}

type watchBlock struct {
	Debounce string   `hcl:"debounce,optional"`
	Reload   []string `hcl:"reload,optional"`
}

type taskBlock struct {
	Name      string         `hcl:"name,label"`
	Transform string         `hcl:"transform"`
	Inputs    *inputsBlock   `hcl:"inputs,block"`
	Output    string         `hcl:"output,optional"`
	DependsOn []string       `hcl:"depends_on,optional"`
	Timeout   string         `hcl:"timeout,optional"`
	Options   hcl.Expression `hcl:"options,optional"`
}

type inputsBlock struct {
	Include []string `hcl:"include"`
	Exclude []string `hcl:"exclude,optional"`
}

// Load reads and validates the configuration file at path. Relative paths
// inside the file are resolved against the file's directory.
func Load(path string) (*Config, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, apperrors.NewConfigParseError(path, err)
	}
	src, err := os.ReadFile(abs)
	if err != nil {
		return nil, apperrors.NewConfigParseError(path, err)
	}
	return Parse(src, abs)
}

// Parse decodes configuration source. filename names the source in
// diagnostics and anchors relative paths.
func Parse(src []byte, filename string) (*Config, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, apperrors.NewConfigParseError(filename, diags)
	}

	var root fileRoot
	if diags := gohcl.DecodeBody(file.Body, nil, &root); diags.HasErrors() {
		return nil, apperrors.NewConfigParseError(filename, diags)
	}

	return translate(&root, filename)
}

func translate(root *fileRoot, filename string) (*Config, error) {
	dir := filepath.Dir(filename)
	cfg := &Config{
		Path:        filename,
		Root:        resolvePath(dir, root.Root, "."),
		Concurrency: root.Concurrency,
		Server:      ServerConfig{Port: defaultPort},
		Watch:       WatchConfig{Debounce: defaultDebounce},
	}
	if cfg.Concurrency < 0 {
		return nil, apperrors.NewInvalidValueError("concurrency", fmt.Sprint(root.Concurrency), "must not be negative")
	}
	if root.Output != "" {
		cfg.Output = resolvePath(cfg.Root, root.Output, "")
	}
	if root.Journal != "" {
		cfg.Journal = resolvePath(cfg.Root, root.Journal, "")
	}

	cfg.Server.Base = cfg.Root
	if s := root.Server; s != nil {
		if s.Port != 0 {
			cfg.Server.Port = s.Port
		}
		if s.Base != "" {
			cfg.Server.Base = resolvePath(cfg.Root, s.Base, "")
		}
		cfg.Server.Open = strings.TrimPrefix(filepath.ToSlash(s.Open), "/")
	}
	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		return nil, apperrors.NewInvalidValueError("server.port", fmt.Sprint(cfg.Server.Port), "must be between 0 and 65535")
	}

	if w := root.Watch; w != nil {
		if w.Debounce != "" {
			d, err := parseDuration("watch.debounce", w.Debounce)
			if err != nil {
				return nil, err
			}
			cfg.Watch.Debounce = d
		}
		cfg.Watch.Reload = fileset.New(w.Reload, nil)
		if err := cfg.Watch.Reload.Validate(); err != nil {
			return nil, err
		}
	}

	for _, block := range root.Tasks {
		task, err := translateTask(cfg.Root, block)
		if err != nil {
			return nil, err
		}
		cfg.Tasks = append(cfg.Tasks, task)
	}
	return cfg, nil
}

func translateTask(root string, block *taskBlock) (TaskConfig, error) {
	task := TaskConfig{
		Name:      block.Name,
		Transform: block.Transform,
		DependsOn: block.DependsOn,
	}
	if block.Name == "" {
		return task, apperrors.NewInvalidTaskError("", "task label cannot be empty")
	}
	if block.Transform == "" {
		return task, apperrors.NewInvalidTaskError(block.Name, "transform cannot be empty")
	}
	if block.Inputs != nil {
		task.Include = block.Inputs.Include
		task.Exclude = block.Inputs.Exclude
	}
	if block.Output != "" {
		task.Output = resolvePath(root, block.Output, "")
	}
	if block.Timeout != "" {
		d, err := parseDuration(fmt.Sprintf("task.%s.timeout", block.Name), block.Timeout)
		if err != nil {
			return task, err
		}
		task.Timeout = d
	}

	options, err := decodeOptions(block.Options)
	if err != nil {
		return task, apperrors.NewInvalidTaskError(block.Name, err.Error())
	}
	task.Options = options
	return task, nil
}

func parseDuration(field, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, apperrors.NewInvalidValueError(field, value, "expected a duration such as 250ms or 30s")
	}
	if d < 0 {
		return 0, apperrors.NewInvalidValueError(field, value, "must not be negative")
	}
	return d, nil
}

func resolvePath(base, p, def string) string {
	if p == "" {
		p = def
	}
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(base, filepath.FromSlash(p))
}
