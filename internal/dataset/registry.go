package dataset

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/stellarlinkco/benchkit/internal/eval"
)

var builders = map[string]func() eval.Adapter{
	"gsm8k": func() eval.Adapter { return GSM8K{} },
	"mmlu":  func() eval.Adapter { return MMLU{} },
}

// Names lists the built-in adapters in sorted order.
func Names() []string {
	out := make([]string, 0, len(builders))
	for n := range builders {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// New resolves a dataset name or file path to its adapter. Paths are matched
// by basename, so "data/gsm8k.jsonl" picks the gsm8k adapter.
func New(name string) (eval.Adapter, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	key = filepath.Base(key)
	if i := strings.IndexByte(key, '.'); i > 0 {
		key = key[:i]
	}
	build, ok := builders[key]
	if !ok {
		return nil, fmt.Errorf("dataset: unknown dataset %q, available: %s", name, strings.Join(Names(), ", "))
	}
	return build(), nil
}
