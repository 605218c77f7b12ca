package transform

import (
	"bytes"
	"context"
	"fmt"
	"os"
)

// Copy mirrors each input into the output directory under its root-relative
// path. The "strip" option removes a leading directory from that path.
type Copy struct{}

// NewCopy creates the copy transform.
func NewCopy() *Copy { return &Copy{} }

// Name returns "copy".
func (c *Copy) Name() string { return "copy" }

// Run copies every input.
func (c *Copy) Run(ctx context.Context, req Request) error {
	if err := requireOutput(req); err != nil {
		return err
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
		// Leave identical files untouched so watchers downstream see no change.
		if existing, err := os.ReadFile(dst); err == nil && bytes.Equal(existing, data) {
			continue
		}
		if err := writeFile(dst, data); err != nil {
			return err
		}
	}
	return nil
}
