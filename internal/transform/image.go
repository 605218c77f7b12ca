package transform

import (
	"bytes"
	"context"
	"fmt"
	"image/gif"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
)

// Image re-encodes PNG, JPEG and GIF inputs into the output directory. PNGs
// use the best zlib compression and JPEGs the "quality" option (default 85).
// A re-encoded file larger than its source is replaced by the original bytes.
type Image struct{}

// NewImage creates the image transform.
func NewImage() *Image { return &Image{} }

// Name returns "image".
func (t *Image) Name() string { return "image" }

// Run compresses every input.
func (t *Image) Run(ctx context.Context, req Request) error {
	if err := requireOutput(req); err != nil {
		return err
	}
	quality := req.Options.Int("quality", 85)
	if quality < 1 || quality > 100 {
		return fmt.Errorf("task %s: quality must be between 1 and 100, got %d", req.Task, quality)
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
		out, err := compressImage(in, data, quality)
		if err != nil {
			return err
		}
		if len(out) >= len(data) {
			out = data
		}
		if err := writeFile(dst, out); err != nil {
			return err
		}
	}
	return nil
}

func compressImage(name string, data []byte, quality int) ([]byte, error) {
	var buf bytes.Buffer
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png":
		img, err := png.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", name, err)
		}
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		if err := enc.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", name, err)
		}
	case ".jpg", ".jpeg":
		img, err := jpeg.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", name, err)
		}
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", name, err)
		}
	case ".gif":
		g, err := gif.DecodeAll(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", name, err)
		}
		if err := gif.EncodeAll(&buf, g); err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", name, err)
		}
	default:
		return data, nil
	}
	return buf.Bytes(), nil
}
