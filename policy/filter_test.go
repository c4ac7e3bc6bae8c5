package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(n int) *int { return &n }

func TestLoadDir_Testdata(t *testing.T) {
	f, err := LoadDir(context.Background(), "testdata", zerolog.Nop())
	require.NoError(t, err)
	require.True(t, f.Enabled())
	assert.Equal(t, []string{"scope.rego"}, f.Modules())

	tests := []struct {
		name  string
		input Input
		want  []string
	}{
		{
			name: "kept",
			input: Input{
				Account:  "111111111111",
				Resource: ResourceInput{ID: "vol-1", Tags: map[string]string{"Team": "web"}, AgeDays: intPtr(30)},
			},
		},
		{
			name: "protected account",
			input: Input{
				Account:  "999999999999",
				Resource: ResourceInput{ID: "vol-1", AgeDays: intPtr(30)},
			},
			want: []string{"protected account"},
		},
		{
			name: "multiple reasons sorted",
			input: Input{
				Account:  "111111111111",
				Resource: ResourceInput{ID: "vol-1", Tags: map[string]string{"Team": "platform"}, AgeDays: intPtr(1)},
			},
			want: []string{"team owns resource", "too young"},
		},
		{
			name: "unknown age never matches",
			input: Input{
				Resource: ResourceInput{ID: "vol-1"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.Excluded(context.Background(), tt.input)
			require.NoError(t, err)
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewFilter_NoModulesExcludesNothing(t *testing.T) {
	f, err := NewFilter(context.Background(), nil, zerolog.Nop())
	require.NoError(t, err)
	assert.False(t, f.Enabled())

	got, err := f.Excluded(context.Background(), Input{Resource: ResourceInput{ID: "x"}})
	require.NoError(t, err)
	assert.Empty(t, got)

	var nilFilter *Filter
	assert.False(t, nilFilter.Enabled())
}

func TestNewFilter_OtherPackageIsUndefined(t *testing.T) {
	f, err := NewFilter(context.Background(), map[string]string{
		"other.rego": "package other\n\nexclude contains \"x\" if { true }\n",
	}, zerolog.Nop())
	require.NoError(t, err)

	got, err := f.Excluded(context.Background(), Input{Resource: ResourceInput{ID: "x"}})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestNewFilter_CompileError(t *testing.T) {
	_, err := NewFilter(context.Background(), map[string]string{
		"broken.rego": "package sweeper\n\nexclude contains if {",
	}, zerolog.Nop())
	assert.ErrorContains(t, err, "failed to compile scope policies")
}

func TestLoadDir_Errors(t *testing.T) {
	_, err := LoadDir(context.Background(), filepath.Join(t.TempDir(), "missing"), zerolog.Nop())
	assert.Error(t, err)

	f, err := LoadDir(context.Background(), "", zerolog.Nop())
	require.NoError(t, err)
	assert.False(t, f.Enabled())
}

func TestLoadDir_SkipsRegoTests(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.rego"),
		[]byte("package sweeper\n\nexclude contains \"tagged\" if input.resource.tags.Keep == \"true\"\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a_test.rego"),
		[]byte("this is not rego"), 0644))

	f, err := LoadDir(context.Background(), dir, zerolog.Nop())
	require.NoError(t, err)

	got, err := f.Excluded(context.Background(), Input{
		Resource: ResourceInput{ID: "q", Tags: map[string]string{"Keep": "true"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"tagged"}, got)
}
