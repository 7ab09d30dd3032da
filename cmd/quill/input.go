package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/klejdi94/quill/core"
)

// parseAssignments turns field=value arguments into raw input. Values stay
// strings; the flow's field types decide how they are read.
func parseAssignments(args []string) (core.RawInput, error) {
	raw := make(core.RawInput, len(args))
	for _, a := range args {
		k, v, ok := strings.Cut(a, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("argument %q: expected field=value", a)
		}
		raw[k] = v
	}
	return raw, nil
}

func decodeInput(data []byte) (core.RawInput, error) {
	raw := core.RawInput{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode input: %w", err)
	}
	return raw, nil
}

func readAll(r io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r, 1<<20))
}

func joinArgs(args []string) string {
	return strings.Join(args, " ")
}
