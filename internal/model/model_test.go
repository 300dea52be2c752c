package model

import (
	"compress/gzip"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstraintKind(t *testing.T) {
	assert.Equal(t, "lin", KindLinear.String())
	assert.Equal(t, "sos", KindSOS.String())
	assert.True(t, KindOr.Disjunctive())
	assert.False(t, KindIndicator.Disjunctive())
	assert.Equal(t, "kind(99)", ConstraintKind(99).String())
}

func TestLP_IsMIP(t *testing.T) {
	m := NewLP()
	m.NumVar(0, 1, "x")
	assert.False(t, m.IsMIP())

	m.IntVar(0, 5, "n")
	assert.True(t, m.IsMIP())
}

func TestLP_TimeLimitDefault(t *testing.T) {
	m := NewLP()
	_, isDefault := m.TimeLimit()
	assert.True(t, isDefault)

	m.SetTimeLimit(3600)
	limit, isDefault := m.TimeLimit()
	assert.False(t, isDefault)
	assert.Equal(t, 3600.0, limit)
}

func TestLP_ExportModel(t *testing.T) {
	m := NewLP()
	x := m.NumVar(0, 10, "x")
	y := m.IntVar(0, math.Inf(1), "y")
	m.Minimize(Sum(Prod(2, x), Prod(-3, y)))
	m.AddGe(Sum(Prod(1, x), Prod(1, y)), 2, "c1")
	m.AddRange(1, Sum(Prod(1, x)), 4, "r1")

	path := filepath.Join(t.TempDir(), "m.lp")
	require.NoError(t, m.ExportModel(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `\Problem name: wmlbridge

Minimize
 obj: 2 x - 3 y
Subject To
 c1: x + y >= 2
 r1: x - Rgr1 = 1
Bounds
 0 <= x <= 10
 0 <= Rgr1 <= 3
Generals
 y
End
`, string(data))
}

func TestLP_ExportModelGzip(t *testing.T) {
	m := NewLP()
	m.NumVar(0, 1, "x")

	path := filepath.Join(t.TempDir(), "m.lp.gz")
	require.NoError(t, m.ExportModel(path))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	zr, err := gzip.NewReader(f)
	require.NoError(t, err)
	data, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Minimize")
}

func TestLP_WriteParameters(t *testing.T) {
	m := NewLP()
	path := filepath.Join(t.TempDir(), "p.prm")

	require.NoError(t, m.WriteParameters(path))
	data, _ := os.ReadFile(path)
	assert.NotContains(t, string(data), "TimeLimit")

	m.SetTimeLimit(120)
	require.NoError(t, m.WriteParameters(path))
	data, _ = os.ReadFile(path)
	assert.Contains(t, string(data), "CPXPARAM_TimeLimit")
	assert.Contains(t, string(data), " 120\n")
}

func TestRangeConstraint_String(t *testing.T) {
	m := NewLP()
	x := m.NumVar(0, 1, "x")
	assert.Equal(t, "c: x <= 3", m.AddLe(Sum(Prod(1, x)), 3, "c").String())
	assert.Equal(t, "-x = 1", m.AddEq(Sum(Prod(-1, x)), 1, "").String())
	assert.Equal(t, "0 <= 0.5 x <= 1", m.AddRange(0, Sum(Prod(0.5, x)), 1, "").String())
}

func TestCP_ExportModel(t *testing.T) {
	m := NewCP()
	x := m.IntVar(0, 10, "x")
	m.IntVar(1, 3, "")
	a := m.IntervalVar(5, true, "task a")
	b := m.IntervalVar(2, false, "b")
	m.SequenceVar([]*IntervalVar{a, b}, "seq")
	m.StateFunction("sf")
	m.Add("x <= 7", "cap")
	m.Add("noOverlap(seq)", "")
	m.Minimize("endOf(b)")
	m.SetTimeLimit(30)

	assert.Len(t, m.IntVars(), 2)
	assert.Same(t, x, m.IntVars()[0])

	path := filepath.Join(t.TempDir(), "m.cpo")
	require.NoError(t, m.ExportModel(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `// CPO model generated by wmlbridge

x = intVar(0..10);
_int1 = intVar(1..3);
"task a" = intervalVar(size=5, optional);
b = intervalVar(size=2);
seq = sequenceVar(["task a", b]);
sf = stateFunction();

cap = x <= 7;
noOverlap(seq);

minimize(endOf(b));

parameters {
  TimeLimit = 30;
}
`, string(data))
}
