package graph

import (
	"errors"
	"testing"

	"github.com/Meesho/BharatMLStack/choreographer/internal/data/models"
	cerrors "github.com/Meesho/BharatMLStack/choreographer/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const linearJSON = `{
  "StartAt": "A",
  "States": {
    "A": {"Type": "Task", "Next": "B"},
    "B": {"Type": "Task", "End": true}
  }
}`

const branchingYAML = `
StartAt: Classify
States:
  Classify:
    Type: Choice
    Choices:
      - Next: Fast
      - Next: Deep
    Default: Deep
  Fast:
    Type: Task
    Next: Report
  Deep:
    Type: Task
    Next: Report
  Report:
    Type: Succeed
  Orphan:
    Type: Fail
`

func TestBuildLinear(t *testing.T) {
	def, err := Parse([]byte(linearJSON))
	require.NoError(t, err)
	topo, err := Build(def)
	require.NoError(t, err)

	assert.Equal(t, "A", topo.Start)
	assert.Equal(t, []string{"A", "B"}, topo.States)
	assert.Equal(t, []string{"B"}, topo.Terminal)
	assert.Equal(t, models.Deps{Upstream: []string{}, Downstream: []string{"B"}}, topo.Deps["A"])
	assert.Equal(t, models.Deps{Upstream: []string{"A"}, Downstream: []string{}}, topo.Deps["B"])
	assert.Equal(t, []string{"A"}, topo.Roots())
	assert.Empty(t, topo.Warnings())
}

func TestBuildBranchingYAML(t *testing.T) {
	def, err := Parse([]byte(branchingYAML))
	require.NoError(t, err)
	topo, err := Build(def)
	require.NoError(t, err)

	assert.Equal(t, []string{"Deep", "Fast"}, topo.Deps["Classify"].Downstream)
	assert.Equal(t, []string{"Deep", "Fast"}, topo.Deps["Report"].Upstream)
	assert.Equal(t, []string{"Orphan", "Report"}, topo.Terminal)
	assert.Equal(t, []string{"Orphan"}, topo.Unreachable)
	require.Len(t, topo.Warnings(), 1)
	assert.Contains(t, topo.Warnings()[0], "Orphan")
	assert.Equal(t, "Classify", topo.States[0])
	assert.Equal(t, "Report", topo.States[len(topo.States)-1])
}

func TestBuildRejectsInvalidGraphs(t *testing.T) {
	tests := []struct {
		name string
		def  Definition
		want string
	}{
		{
			name: "missing start",
			def:  Definition{StartAt: "X", States: map[string]State{"A": {Type: TypeSucceed}}},
			want: `StartAt "X"`,
		},
		{
			name: "dangling transition",
			def:  Definition{StartAt: "A", States: map[string]State{"A": {Type: TypeTask, Next: "Nope"}}},
			want: `unknown state "Nope"`,
		},
		{
			name: "no transition",
			def:  Definition{StartAt: "A", States: map[string]State{"A": {Type: TypeTask}}},
			want: "not terminal",
		},
		{
			name: "cycle",
			def: Definition{StartAt: "A", States: map[string]State{
				"A": {Type: TypeTask, Next: "B"},
				"B": {Type: TypeChoice, Choices: []Choice{{Next: "A"}}, Default: "C"},
				"C": {Type: TypeSucceed},
			}},
			want: "cycle",
		},
		{
			name: "cycle between tasks",
			def: Definition{StartAt: "A", States: map[string]State{
				"A": {Type: TypeTask, Next: "B"},
				"B": {Type: TypeTask, Next: "C"},
				"C": {Type: TypeTask, Next: "B"},
				"D": {Type: TypeSucceed},
			}},
			want: "cycle",
		},
		{
			name: "empty",
			def:  Definition{},
			want: "no states",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(tt.def)
			require.Error(t, err)
			assert.ErrorIs(t, err, cerrors.ErrInvalidGraph)
			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Contains(t, verr.Error(), tt.want)
		})
	}
}

func TestBuildReportsAllProblems(t *testing.T) {
	_, err := Build(Definition{StartAt: "A", States: map[string]State{
		"A": {Type: TypeTask, Next: "X"},
		"B": {Type: TypeTask},
	}})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Len(t, verr.Problems, 2)
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := Parse([]byte("   "))
	assert.ErrorIs(t, err, cerrors.ErrInvalidGraph)
	_, err = Parse([]byte(`{"StartAt": `))
	assert.ErrorIs(t, err, cerrors.ErrInvalidGraph)
	_, err = Parse([]byte("StartAt: [unterminated"))
	assert.ErrorIs(t, err, cerrors.ErrInvalidGraph)
}

func TestFingerprintIsStable(t *testing.T) {
	def, err := Parse([]byte(linearJSON))
	require.NoError(t, err)
	first, err := Build(def)
	require.NoError(t, err)
	second, err := Build(def)
	require.NoError(t, err)
	assert.Equal(t, first.Fingerprint, second.Fingerprint)
	assert.Len(t, first.Fingerprint, 32)

	def.States["A"] = State{Type: TypeTask, Next: "C"}
	def.States["C"] = State{Type: TypeTask, Next: "B"}
	changed, err := Build(def)
	require.NoError(t, err)
	assert.NotEqual(t, first.Fingerprint, changed.Fingerprint)
}
