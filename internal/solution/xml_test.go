package solution

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeXML_KnownNamesOnly(t *testing.T) {
	doc := `<CPLEXSolution version="1.2">
 <header objectiveValue="3.5" solutionStatusValue="1"/>
 <variables>
  <variable name="x" index="0" value="3.5" reducedCost="0.0"/>
  <variable name="z" index="1" value="9"/>
 </variables>
</CPLEXSolution>`

	sol, err := DecodeXML(strings.NewReader(doc), Known("x", "y"), Known())
	require.NoError(t, err)

	if diff := cmp.Diff(map[string]float64{"x": 3.5}, sol.Values); diff != "" {
		t.Errorf("values mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[string]float64{"x": 0}, sol.ReducedCosts); diff != "" {
		t.Errorf("reduced costs mismatch (-want +got):\n%s", diff)
	}
	assert.True(t, sol.Feasible)
	assert.Equal(t, 3.5, sol.Objective)
	assert.Equal(t, 1, sol.Status)
	assert.False(t, sol.PrimalFeasible)
}

func TestDecodeXML_FullFile(t *testing.T) {
	data, err := os.ReadFile("testdata/solution.xml")
	require.NoError(t, err)

	sol, err := DecodeXML(bytes.NewReader(data), Known("vv1", "vv2"), Any)
	require.NoError(t, err)

	want := &XMLSolution{
		Feasible:       true,
		Objective:      42.5,
		Status:         1,
		PrimalFeasible: true,
		DualFeasible:   true,
		Values:         map[string]float64{"vv1": 10, "vv2": 0},
		ReducedCosts:   map[string]float64{"vv1": 0, "vv2": -0.5},
		Duals:          map[string]float64{"cc1": 1.5, "cc2": 0},
		Slacks:         map[string]float64{"cc1": 0, "cc2": 2.25},
	}
	if diff := cmp.Diff(want, sol); diff != "" {
		t.Errorf("solution mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeXML_Idempotent(t *testing.T) {
	data, err := os.ReadFile("testdata/solution.xml")
	require.NoError(t, err)

	first, err := DecodeXML(bytes.NewReader(data), Any, Any)
	require.NoError(t, err)
	second, err := DecodeXML(bytes.NewReader(data), Any, Any)
	require.NoError(t, err)

	assert.Empty(t, cmp.Diff(first, second))
}

func TestDecodeXML_MissingAttributesAreAbsent(t *testing.T) {
	doc := `<CPLEXSolution>
 <header objectiveValue="1" solutionStatusValue="101" primalFeasible="1"/>
 <variables><variable name="b"/></variables>
 <indicatorConstraints><constraint name="ind" slack="0.5"/></indicatorConstraints>
</CPLEXSolution>`

	sol, err := DecodeXML(strings.NewReader(doc), Any, Any)
	require.NoError(t, err)

	assert.Empty(t, sol.Values)
	assert.Empty(t, sol.Duals)
	assert.Equal(t, map[string]float64{"ind": 0.5}, sol.Slacks)
	assert.True(t, sol.PrimalFeasible)
	assert.False(t, sol.DualFeasible)
	assert.Equal(t, 101, sol.Status)
}

func TestDecodeXML_SkipsUnknownSections(t *testing.T) {
	doc := `<CPLEXSolution>
 <header objectiveValue="0" solutionStatusValue="1"/>
 <objectiveValues><objective index="0"><nested/></objective></objectiveValues>
 <variables><variable name="x" value="1"/></variables>
</CPLEXSolution>`

	sol, err := DecodeXML(strings.NewReader(doc), Any, Any)
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"x": 1}, sol.Values)
}

func TestDecodeXML_OnlyFirstSolution(t *testing.T) {
	doc := `<CPLEXSolutions>
<CPLEXSolution><header objectiveValue="1" solutionStatusValue="1"/></CPLEXSolution>
</CPLEXSolutions>`

	_, err := DecodeXML(strings.NewReader(doc), Any, Any)
	require.Error(t, err)
	assert.True(t, IsMalformed(err), "root must be a solution")

	doc = `<CPLEXSolution><header objectiveValue="1" solutionStatusValue="1"/></CPLEXSolution>
<trailing-garbage`
	sol, err := DecodeXML(strings.NewReader(doc), Any, Any)
	require.NoError(t, err)
	assert.Equal(t, 1.0, sol.Objective)
}

func TestDecodeXML_Malformed(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{
			name: "mismatched close",
			doc:  `<CPLEXSolution><variables></linearConstraints></CPLEXSolution>`,
		},
		{
			name: "child of header",
			doc:  `<CPLEXSolution><header objectiveValue="1" solutionStatusValue="1"><x/></header></CPLEXSolution>`,
		},
		{
			name: "child of quality",
			doc:  `<CPLEXSolution><quality><x/></quality></CPLEXSolution>`,
		},
		{
			name: "non-variable in variables",
			doc:  `<CPLEXSolution><variables><constraint name="c"/></variables></CPLEXSolution>`,
		},
		{
			name: "missing objective",
			doc:  `<CPLEXSolution><header solutionStatusValue="1"/></CPLEXSolution>`,
		},
		{
			name: "missing status",
			doc:  `<CPLEXSolution><header objectiveValue="1"/></CPLEXSolution>`,
		},
		{
			name: "bad number",
			doc:  `<CPLEXSolution><variables><variable name="x" value="abc"/></variables></CPLEXSolution>`,
		},
		{
			name: "wrong root",
			doc:  `<solution/>`,
		},
		{
			name: "truncated",
			doc:  `<CPLEXSolution><variables>`,
		},
		{
			name: "empty",
			doc:  ``,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sol, err := DecodeXML(strings.NewReader(tt.doc), Any, Any)
			require.Error(t, err)
			assert.Nil(t, sol)
			assert.True(t, IsMalformed(err), "got %T: %v", err, err)
		})
	}
}

func TestDecodeXML_Latin1(t *testing.T) {
	doc := []byte("<?xml version=\"1.0\" encoding=\"ISO-8859-1\"?>\n" +
		"<CPLEXSolution><header objectiveValue=\"2\" solutionStatusValue=\"1\"/>" +
		"<variables><variable name=\"caf\xe9\" value=\"4\"/></variables></CPLEXSolution>")

	sol, err := DecodeXML(bytes.NewReader(doc), Any, Any)
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"café": 4}, sol.Values)
}

func TestDecodeXML_NilFiltersKeepNothing(t *testing.T) {
	data, err := os.ReadFile("testdata/solution.xml")
	require.NoError(t, err)

	sol, err := DecodeXML(bytes.NewReader(data), nil, nil)
	require.NoError(t, err)
	assert.Empty(t, sol.Values)
	assert.Empty(t, sol.Duals)
	assert.Equal(t, 42.5, sol.Objective)
}
