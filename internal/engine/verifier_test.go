package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/koehnden/dragon-lens/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ambiguousCandidate(name string) model.ScoredCandidate {
	return model.ScoredCandidate{
		EntityCandidate: model.EntityCandidate{Name: name, Type: model.EntityTypeBrand},
		BrandScore:      0.5,
		ProductScore:    0.5,
	}
}

func confidentCandidate(name string) model.ScoredCandidate {
	return model.ScoredCandidate{
		EntityCandidate: model.EntityCandidate{Name: name, Type: model.EntityTypeBrand},
		BrandScore:      0.75,
		ProductScore:    0.5,
	}
}

func keptNames(candidates []model.ScoredCandidate) []string {
	names := make([]string, len(candidates))
	for i, c := range candidates {
		names[i] = c.Name
	}
	return names
}

func TestVerifierSkipsConfidentCandidates(t *testing.T) {
	mock := NewMockLLM()
	v := NewVerifier(mock, NewLimiter(0, 0), 0, 0)

	out := v.Verify(context.Background(),
		[]model.ScoredCandidate{confidentCandidate("比亚迪")}, "SUV Cars", "", nil)

	assert.Equal(t, []string{"比亚迪"}, keptNames(out))
	assert.Zero(t, mock.CallCount(), "confident candidates never reach the LLM")
}

func TestVerifierDropsOnExplicitNo(t *testing.T) {
	mock := NewMockLLM()
	mock.QueueResponse(`[{"name": "FooBar", "is_brand": false}]`)
	mock.QueueResponse(`[{"name": "FooBar", "is_product": false}]`)
	v := NewVerifier(mock, NewLimiter(0, 0), 0, 0)

	out := v.Verify(context.Background(),
		[]model.ScoredCandidate{ambiguousCandidate("FooBar")}, "SUV Cars", "", nil)

	assert.Empty(t, out)
	assert.Equal(t, 2, mock.CallCount())
}

func TestVerifierBrandConfirmationIsTerminal(t *testing.T) {
	mock := NewMockLLM()
	mock.QueueResponse(`[{"name": "FooBar", "is_brand": true}]`)
	v := NewVerifier(mock, NewLimiter(0, 0), 0, 0)

	out := v.Verify(context.Background(),
		[]model.ScoredCandidate{ambiguousCandidate("FooBar")}, "SUV Cars", "", nil)

	require.Len(t, out, 1)
	assert.Equal(t, model.EntityTypeBrand, out[0].Type)
	assert.Equal(t, 1, mock.CallCount(), "a confirmed brand is never offered to the product check")
}

func TestVerifierProductConfirmation(t *testing.T) {
	mock := NewMockLLM()
	mock.QueueResponse(`[{"name": "X5", "is_brand": false}]`)
	mock.QueueResponse(`[{"name": "X5", "is_product": true}]`)
	v := NewVerifier(mock, NewLimiter(0, 0), 0, 0)

	out := v.Verify(context.Background(),
		[]model.ScoredCandidate{ambiguousCandidate("X5")}, "SUV Cars", "", nil)

	require.Len(t, out, 1)
	assert.Equal(t, model.EntityTypeProduct, out[0].Type)
}

func TestVerifierUnavailableKeepsPriorClassification(t *testing.T) {
	mock := NewMockLLM()
	mock.FailWith(errors.New("connection refused"))
	v := NewVerifier(mock, NewLimiter(0, 0), 0, 0)

	out := v.Verify(context.Background(),
		[]model.ScoredCandidate{ambiguousCandidate("FooBar")}, "SUV Cars", "", nil)

	require.Len(t, out, 1)
	assert.Equal(t, "FooBar", out[0].Name)
	assert.Equal(t, model.EntityTypeBrand, out[0].Type)
}

func TestVerifierUnparseableResponseKeepsPriorClassification(t *testing.T) {
	mock := NewMockLLM()
	mock.QueueResponse("I cannot help with that.")
	v := NewVerifier(mock, NewLimiter(0, 0), 0, 0)

	out := v.Verify(context.Background(),
		[]model.ScoredCandidate{ambiguousCandidate("FooBar")}, "SUV Cars", "", nil)

	require.Len(t, out, 1)
	assert.Equal(t, "FooBar", out[0].Name)
}

func TestVerifierBypassNeverEscalated(t *testing.T) {
	mock := NewMockLLM()
	v := NewVerifier(mock, NewLimiter(0, 0), 0, 0)

	cand := ambiguousCandidate("自主")
	cand.Bypass = true
	out := v.Verify(context.Background(), []model.ScoredCandidate{cand}, "SUV Cars", "", nil)

	assert.Equal(t, []string{"自主"}, keptNames(out))
	assert.Zero(t, mock.CallCount())
}
