package dag

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftlabs/weft/internal/record"
)

// stepFunc adapts a function to TransformStep for tests.
type stepFunc struct {
	name string
	fn   func(ctx context.Context, p record.Object) ([]record.Object, error)
}

func (s stepFunc) Name() string { return s.name }
func (s stepFunc) Apply(ctx context.Context, p record.Object) ([]record.Object, error) {
	return s.fn(ctx, p)
}

func identityResolver(names ...string) StepResolver {
	steps := make(map[string]TransformStep)
	for _, n := range names {
		steps[n] = stepFunc{name: n, fn: func(_ context.Context, p record.Object) ([]record.Object, error) {
			return []record.Object{p}, nil
		}}
	}
	return func(spec NodeSpec) (TransformStep, error) {
		step, ok := steps[spec.Step]
		if !ok {
			return nil, fmt.Errorf("no step %q", spec.Step)
		}
		return step, nil
	}
}

func TestBuild_ValidLinearGraph(t *testing.T) {
	g, err := Build(
		[]NodeSpec{
			{Name: "src", Type: NodeSource},
			{Name: "clean", Type: NodeTransform, Step: "clean"},
			{Name: "vec", Type: NodeDestination},
		},
		[]EdgeSpec{{From: "src", To: "clean"}, {From: "clean", To: "vec"}},
		identityResolver("clean"),
	)
	require.NoError(t, err)
	assert.Equal(t, "src", g.Root())
	assert.Equal(t, []string{"vec"}, g.Destinations())
}

func TestBuild_RejectsCycle(t *testing.T) {
	_, err := Build(
		[]NodeSpec{
			{Name: "src", Type: NodeSource},
			{Name: "a", Type: NodeTransform, Step: "a"},
			{Name: "b", Type: NodeTransform, Step: "b"},
			{Name: "out", Type: NodeDestination},
		},
		[]EdgeSpec{
			{From: "src", To: "a"},
			{From: "a", To: "b"},
			{From: "b", To: "a"},
			{From: "a", To: "out"},
		},
		identityResolver("a", "b"),
	)
	require.Error(t, err)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, ErrCodeCycle, verr.Code)
}

func TestBuild_RejectsSelfLoop(t *testing.T) {
	_, err := Build(
		[]NodeSpec{
			{Name: "src", Type: NodeSource},
			{Name: "a", Type: NodeTransform, Step: "a"},
			{Name: "out", Type: NodeDestination},
		},
		[]EdgeSpec{
			{From: "src", To: "a"},
			{From: "a", To: "a"},
			{From: "a", To: "out"},
		},
		identityResolver("a"),
	)
	require.Error(t, err)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, ErrCodeCycle, verr.Code)
}

func TestBuild_RejectsMissingSource(t *testing.T) {
	_, err := Build(
		[]NodeSpec{{Name: "out", Type: NodeDestination}},
		nil,
		nil,
	)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, ErrCodeNoSource, verr.Code)
}

func TestBuild_RejectsMultipleSources(t *testing.T) {
	_, err := Build(
		[]NodeSpec{
			{Name: "s1", Type: NodeSource},
			{Name: "s2", Type: NodeSource},
		},
		nil,
		nil,
	)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, ErrCodeMultipleSources, verr.Code)
}

func TestBuild_RejectsNonDestinationLeaf(t *testing.T) {
	_, err := Build(
		[]NodeSpec{
			{Name: "src", Type: NodeSource},
			{Name: "dangling", Type: NodeTransform, Step: "dangling"},
		},
		[]EdgeSpec{{From: "src", To: "dangling"}},
		identityResolver("dangling"),
	)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, ErrCodeDanglingLeaf, verr.Code)
}

func TestBuild_RejectsUnreachableNode(t *testing.T) {
	_, err := Build(
		[]NodeSpec{
			{Name: "src", Type: NodeSource},
			{Name: "out", Type: NodeDestination},
			{Name: "island", Type: NodeDestination},
		},
		[]EdgeSpec{{From: "src", To: "out"}},
		nil,
	)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, ErrCodeUnreachable, verr.Code)
}

func TestBuild_RejectsUnknownStep(t *testing.T) {
	_, err := Build(
		[]NodeSpec{
			{Name: "src", Type: NodeSource},
			{Name: "t", Type: NodeTransform, Step: "nope"},
			{Name: "out", Type: NodeDestination},
		},
		[]EdgeSpec{{From: "src", To: "t"}, {From: "t", To: "out"}},
		identityResolver("other"),
	)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, ErrCodeUnknownStep, verr.Code)
}

func TestBuild_RejectsEdgeFromDestination(t *testing.T) {
	_, err := Build(
		[]NodeSpec{
			{Name: "src", Type: NodeSource},
			{Name: "out", Type: NodeDestination},
			{Name: "out2", Type: NodeDestination},
		},
		[]EdgeSpec{{From: "src", To: "out"}, {From: "out", To: "out2"}},
		nil,
	)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, ErrCodeBadEdge, verr.Code)
}
