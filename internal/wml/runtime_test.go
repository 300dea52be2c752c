package wml

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRuntime(t *testing.T) {
	tests := []struct {
		in   string
		want Runtime
	}{
		{"12.9", Runtime12_9},
		{"12.10", Runtime12_10},
		{"20.1", Runtime20_1},
		{"22.1.0", Runtime22_1},
		{"do_22.1", Runtime22_1},
		{"v20.1", Runtime20_1},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRuntime(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	for _, bad := range []string{"", "21.1", "twelve"} {
		_, err := ParseRuntime(bad)
		assert.Error(t, err, "ParseRuntime(%q)", bad)
	}
}

func TestRuntimeNames(t *testing.T) {
	assert.Equal(t, "12.10", Runtime12_10.String())
	assert.Equal(t, "do_12.10", Runtime12_10.SoftwareSpec())
	assert.Equal(t, "do-docplex_20.1", Runtime20_1.ModelType(KindDOcplex))
	assert.Equal(t, "do-opl_22.1", Runtime22_1.ModelType(KindOPL))
	assert.Len(t, Runtimes(), 4)
	assert.Equal(t, Runtime20_1, DefaultRuntime)
}

func TestParseSize(t *testing.T) {
	for in, want := range map[string]TShirtSize{"s": SizeS, "M": SizeM, " xl ": SizeXL} {
		got, err := ParseSize(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseSize("L")
	assert.Error(t, err)
}

func TestDeploymentName(t *testing.T) {
	assert.Equal(t, "CPLEXWithWML.20.1.M.1", DeploymentName(EngineCPLEX, Runtime20_1, SizeM, 1))
	assert.Equal(t, "CPOWithWML.22.1.XL.4", DeploymentName(EngineCPO, Runtime22_1, SizeXL, 4))
	assert.Equal(t, "XML", EngineCPLEX.ResultsFormat())
	assert.Equal(t, KindCPO, EngineCPO.Kind())
}
