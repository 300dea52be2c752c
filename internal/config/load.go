package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

// LoadFile reads a credential table from a YAML (.yaml, .yml) or CUE (.cue)
// file. Nested mappings are flattened into dotted keys, so
//
//	service:
//	  wml:
//	    host: us-south.ml.cloud.ibm.com
//
// and `service.wml.host: ...` are equivalent.
func LoadFile(path string) (*Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Code: ErrCodeLoad, Message: fmt.Sprintf("read %s", path), Err: err}
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseYAML(data)
	case ".cue":
		return ParseCUE(path, data)
	default:
		return nil, &Error{Code: ErrCodeLoad, Message: fmt.Sprintf("unsupported settings file extension %q", filepath.Ext(path))}
	}
}

// ParseYAML decodes a YAML document into a credential table.
func ParseYAML(data []byte) (*Credentials, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &Error{Code: ErrCodeLoad, Message: "decode yaml", Err: err}
	}
	flat := make(map[string]string)
	flatten("", doc, flat)
	return NewCredentials(flat), nil
}

// ParseCUE evaluates a CUE document and decodes its concrete value into a
// credential table. The filename is only used in error positions.
func ParseCUE(filename string, data []byte) (*Credentials, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(data)
	if err := v.Err(); err != nil {
		return nil, &Error{Code: ErrCodeLoad, Message: fmt.Sprintf("compile %s", filename), Err: err}
	}
	if err := v.Validate(); err != nil {
		return nil, &Error{Code: ErrCodeLoad, Message: fmt.Sprintf("validate %s", filename), Err: err}
	}

	var doc map[string]any
	if err := v.Decode(&doc); err != nil {
		return nil, &Error{Code: ErrCodeLoad, Message: fmt.Sprintf("decode %s", filename), Err: err}
	}
	flat := make(map[string]string)
	flatten("", doc, flat)
	return NewCredentials(flat), nil
}

func flatten(prefix string, v any, out map[string]string) {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			flatten(join(prefix, k), child, out)
		}
	case map[any]any:
		for k, child := range t {
			flatten(join(prefix, fmt.Sprint(k)), child, out)
		}
	case nil:
		out[prefix] = ""
	case string:
		out[prefix] = t
	case bool:
		out[prefix] = strconv.FormatBool(t)
	case int:
		out[prefix] = strconv.Itoa(t)
	case int64:
		out[prefix] = strconv.FormatInt(t, 10)
	case float64:
		out[prefix] = strconv.FormatFloat(t, 'g', -1, 64)
	default:
		out[prefix] = fmt.Sprint(t)
	}
}

func join(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}
