package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWikiGenError_ErrorString(t *testing.T) {
	e := New(CategoryStructure, SeverityFatal, "no structure")
	require.Equal(t, "structure (fatal): no structure", e.Error())

	wrapped := Wrap(fmt.Errorf("boom"), CategoryCache, SeverityWarning, "cache read")
	require.Equal(t, "cache (warning): cache read: boom", wrapped.Error())
}

func TestWikiGenError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	e := StructureUnavailable(cause, "backend unreachable")
	require.True(t, errors.Is(e, cause))
}

func TestCategoryHelpers(t *testing.T) {
	e := GenerationFailed(fmt.Errorf("timeout"), "page-1")
	require.True(t, IsCategory(e, CategoryGeneration))
	require.False(t, IsCategory(e, CategoryStructure))
	require.Equal(t, CategoryGeneration, GetCategory(e))
	require.Equal(t, "page-1", e.Context["page_id"])

	plain := fmt.Errorf("plain")
	require.Equal(t, CategoryInternal, GetCategory(plain))
	require.False(t, IsRetryable(plain))
}

func TestRetryable(t *testing.T) {
	e := WrapRetryable(fmt.Errorf("503"), CategoryNetwork, SeverityError, "backend busy")
	require.True(t, IsRetryable(e))
	require.False(t, IsRetryable(ExportUnavailable("no structure")))
}
