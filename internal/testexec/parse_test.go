package testexec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseCounts_Pytest(t *testing.T) {
	p, f, s := ParseCounts("===== 12 passed, 2 failed, 1 skipped, 1 xfailed in 3.21s =====")
	require.NotNil(t, p)
	require.Equal(t, 12, *p)
	require.NotNil(t, f)
	require.Equal(t, 2, *f)
	require.NotNil(t, s)
	require.Equal(t, 2, *s) // skipped + xfailed
}

func TestParseCounts_PytestMissingBucketsStayNil(t *testing.T) {
	p, f, s := ParseCounts("5 passed in 0.10s")
	require.NotNil(t, p)
	require.Equal(t, 5, *p)
	require.Nil(t, f)
	require.Nil(t, s)
}

func TestParseCounts_JSRunner(t *testing.T) {
	p, f, s := ParseCounts("Tests:       3 passed, 1 failed, 2 skipped, 6 total")
	require.NotNil(t, p)
	require.Equal(t, 3, *p)
	require.NotNil(t, f)
	require.Equal(t, 1, *f)
	require.NotNil(t, s)
	require.Equal(t, 2, *s)
}

func TestParseCounts_GoTest(t *testing.T) {
	output := "=== RUN   TestFoo\n--- PASS: TestFoo (0.00s)\n=== RUN   TestBar\n--- FAIL: TestBar (0.00s)\nFAIL\n"
	p, f, s := ParseCounts(output)
	require.NotNil(t, p)
	require.Equal(t, 1, *p)
	require.NotNil(t, f)
	require.Equal(t, 1, *f)
	require.NotNil(t, s)
	require.Equal(t, 0, *s)
}

func TestParseCounts_UnrecognizedOutputAllNil(t *testing.T) {
	p, f, s := ParseCounts("some arbitrary log output with no known summary format")
	require.Nil(t, p)
	require.Nil(t, f)
	require.Nil(t, s)
}
