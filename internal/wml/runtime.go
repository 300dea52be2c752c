package wml

import (
	"fmt"
	"strings"

	"github.com/blang/semver/v4"
)

// Runtime is a Decision Optimization runtime version.
type Runtime struct {
	v semver.Version
}

// Supported runtimes.
var (
	Runtime12_9  = mustRuntime("12.9")
	Runtime12_10 = mustRuntime("12.10")
	Runtime20_1  = mustRuntime("20.1")
	Runtime22_1  = mustRuntime("22.1")

	DefaultRuntime = Runtime20_1
)

var runtimes = []Runtime{Runtime12_9, Runtime12_10, Runtime20_1, Runtime22_1}

func mustRuntime(s string) Runtime {
	return Runtime{v: semver.MustParse(s + ".0")}
}

// ParseRuntime accepts "22.1", "22.1.0", "do_22.1" and similar spellings
// of a supported runtime.
func ParseRuntime(s string) (Runtime, error) {
	raw := strings.TrimPrefix(strings.TrimSpace(s), "do_")
	v, err := semver.ParseTolerant(raw)
	if err != nil {
		return Runtime{}, fmt.Errorf("runtime %q: %w", s, err)
	}
	for _, r := range runtimes {
		if r.v.Major == v.Major && r.v.Minor == v.Minor {
			return r, nil
		}
	}
	return Runtime{}, fmt.Errorf("runtime %q is not supported", s)
}

// Runtimes returns the supported runtimes, oldest first.
func Runtimes() []Runtime {
	return append([]Runtime(nil), runtimes...)
}

// String returns the major.minor form, e.g. "20.1".
func (r Runtime) String() string {
	return fmt.Sprintf("%d.%d", r.v.Major, r.v.Minor)
}

// SoftwareSpec is the software specification name, e.g. "do_20.1".
func (r Runtime) SoftwareSpec() string {
	return "do_" + r.String()
}

// ModelKind is the kind of model asset deployed on a runtime.
type ModelKind string

const (
	KindCPLEX   ModelKind = "cplex"
	KindCPO     ModelKind = "cpo"
	KindOPL     ModelKind = "opl"
	KindDOcplex ModelKind = "docplex"
)

// ModelType returns the model asset type, e.g. "do-cplex_20.1".
func (r Runtime) ModelType(kind ModelKind) string {
	return fmt.Sprintf("do-%s_%s", kind, r)
}

// TShirtSize is the hardware specification of a deployment.
type TShirtSize string

const (
	SizeS  TShirtSize = "S"
	SizeM  TShirtSize = "M"
	SizeXL TShirtSize = "XL"
)

// ParseSize accepts S, M or XL in any case.
func ParseSize(s string) (TShirtSize, error) {
	switch size := TShirtSize(strings.ToUpper(strings.TrimSpace(s))); size {
	case SizeS, SizeM, SizeXL:
		return size, nil
	}
	return "", fmt.Errorf("unknown T-shirt size %q", s)
}

// Engine is the solver a bridge drives remotely.
type Engine int

const (
	EngineCPLEX Engine = iota
	EngineCPO
)

func (e Engine) String() string {
	if e == EngineCPO {
		return "CPO"
	}
	return "CPLEX"
}

// ResultsFormat is the solution encoding requested from the engine.
func (e Engine) ResultsFormat() string {
	if e == EngineCPO {
		return "JSON"
	}
	return "XML"
}

// Kind is the model kind deployed for the engine.
func (e Engine) Kind() ModelKind {
	if e == EngineCPO {
		return KindCPO
	}
	return KindCPLEX
}

// DeploymentName is the conventional name of the shared deployment for an
// engine and shape, e.g. "CPLEXWithWML.20.1.M.1".
func DeploymentName(e Engine, r Runtime, size TShirtSize, nodes int) string {
	return fmt.Sprintf("%sWithWML.%s.%s.%d", e, r, size, nodes)
}
