package transform

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	"github.com/tdewolff/minify/v2/html"
	"github.com/tdewolff/minify/v2/js"
	minjson "github.com/tdewolff/minify/v2/json"
	"github.com/tdewolff/minify/v2/svg"
)

var mediaTypes = map[string]string{
	".css":  "text/css",
	".htm":  "text/html",
	".html": "text/html",
	".js":   "application/javascript",
	".mjs":  "application/javascript",
	".json": "application/json",
	".svg":  "image/svg+xml",
}

// Minify compresses CSS, JavaScript, HTML, SVG and JSON.
//
// By default every input is minified into the output directory under its
// root-relative path. With bundle = true the inputs are concatenated and
// minified into the single output file, and source_map = true additionally
// writes "<output>.map" carrying the bundled sources.
type Minify struct {
	m *minify.M
}

// NewMinify creates the minify transform.
func NewMinify() *Minify {
	m := minify.New()
	m.AddFunc("text/css", css.Minify)
	m.AddFunc("text/html", html.Minify)
	m.AddFunc("application/javascript", js.Minify)
	m.AddFunc("application/json", minjson.Minify)
	m.AddFunc("image/svg+xml", svg.Minify)
	return &Minify{m: m}
}

// Name returns "minify".
func (t *Minify) Name() string { return "minify" }

// Run minifies the inputs.
func (t *Minify) Run(ctx context.Context, req Request) error {
	if err := requireOutput(req); err != nil {
		return err
	}
	if req.Options.Bool("bundle", false) {
		return t.bundle(ctx, req)
	}

	for _, in := range req.Inputs {
		if err := ctx.Err(); err != nil {
			return err
		}
		dst, err := destination(req, in)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(in)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", in, err)
		}
		out, err := t.minify(in, data)
		if err != nil {
			return err
		}
		if err := writeFile(dst, out); err != nil {
			return err
		}
	}
	return nil
}

func (t *Minify) bundle(ctx context.Context, req Request) error {
	data, err := concatInputs(ctx, req.Inputs, req.Options.String("separator", "\n"))
	if err != nil {
		return err
	}
	out, err := t.minify(req.Output, data)
	if err != nil {
		return err
	}

	if req.Options.Bool("source_map", false) {
		mapPath := req.Output + ".map"
		sourceMap, err := buildSourceMap(req, filepath.Base(req.Output))
		if err != nil {
			return err
		}
		if err := writeFile(mapPath, sourceMap); err != nil {
			return err
		}
		if mediaTypes[strings.ToLower(filepath.Ext(req.Output))] == "application/javascript" {
			out = append(out, []byte("\n//# sourceMappingURL="+filepath.Base(mapPath)+"\n")...)
		}
	}

	return writeFile(req.Output, out)
}

func (t *Minify) minify(name string, data []byte) ([]byte, error) {
	mediaType, ok := mediaTypes[strings.ToLower(filepath.Ext(name))]
	if !ok {
		return data, nil
	}
	out, err := t.m.Bytes(mediaType, data)
	if err != nil {
		return nil, fmt.Errorf("failed to minify %s: %w", name, err)
	}
	return out, nil
}

type sourceMapV3 struct {
	Version        int      `json:"version"`
	File           string   `json:"file"`
	Sources        []string `json:"sources"`
	SourcesContent []string `json:"sourcesContent"`
	Names          []string `json:"names"`
	Mappings       string   `json:"mappings"`
}

// buildSourceMap records the bundled sources and their contents. Mappings are
// left empty since the minifier does not report positions.
func buildSourceMap(req Request, file string) ([]byte, error) {
	sm := sourceMapV3{
		Version:        3,
		File:           file,
		Sources:        []string{},
		SourcesContent: []string{},
		Names:          []string{},
	}
	for _, in := range req.Inputs {
		rel, err := relPath(req.Root, in, "")
		if err != nil {
			return nil, err
		}
		data, err := os.ReadFile(in)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", in, err)
		}
		sm.Sources = append(sm.Sources, rel)
		sm.SourcesContent = append(sm.SourcesContent, string(data))
	}
	return json.Marshal(sm)
}
