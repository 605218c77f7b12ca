package transform

import (
	"bytes"
	"context"
	"fmt"
	"os"
)

// Concat joins all inputs, in resolution order, into the single output file.
type Concat struct{}

// NewConcat creates the concat transform.
func NewConcat() *Concat { return &Concat{} }

// Name returns "concat".
func (c *Concat) Name() string { return "concat" }

// Run writes the concatenation of the inputs.
func (c *Concat) Run(ctx context.Context, req Request) error {
	if err := requireOutput(req); err != nil {
		return err
	}
	data, err := concatInputs(ctx, req.Inputs, req.Options.String("separator", "\n"))
	if err != nil {
		return err
	}
	return writeFile(req.Output, data)
}

func concatInputs(ctx context.Context, inputs []string, sep string) ([]byte, error) {
	var buf bytes.Buffer
	for i, in := range inputs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(in)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", in, err)
		}
		if i > 0 {
			buf.WriteString(sep)
		}
		buf.Write(data)
	}
	return buf.Bytes(), nil
}
