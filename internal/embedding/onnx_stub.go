//go:build !cgo
// +build !cgo

package embedding

import (
	"fmt"

	"github.com/hyperjump/kotae/internal/models"
)

func newONNXEmbedder(_ string, _, _ int) (Embedder, error) {
	return nil, fmt.Errorf("%w: ONNX embedder requires CGO; build with CGO_ENABLED=1 and onnxruntime", models.ErrConfiguration)
}
