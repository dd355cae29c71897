package variables

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wasmfactors/runtime/pkg/manifest"
)

func TestTemplateRoundTrip(t *testing.T) {
	cases := []string{
		"hello, world",
		"{{greeting}}, world",
		"{{ greeting }}, world",
		"prefix {{ a }} mid {{b}} suffix",
		"",
	}
	for _, s := range cases {
		tpl, err := ParseTemplate(s)
		require.NoError(t, err)
		assert.Equal(t, s, tpl.Display())
	}
}

func TestParseTemplateRejectsUnmatchedBraces(t *testing.T) {
	_, err := ParseTemplate("hello {{ world")
	assert.Error(t, err)
}

func TestResolveVariableResolution(t *testing.T) {
	def := "hello"
	r := NewResolver(map[string]manifest.Variable{
		"greeting": {Default: &def},
	})
	r.AddComponentVariables("c1", map[string]string{"message": "{{ greeting }}, world"})

	tpl, err := ParseTemplate(r.scopes["c1"]["message"])
	require.NoError(t, err)
	v, err := r.ResolveTemplate(context.Background(), "c1", tpl)
	require.NoError(t, err)
	assert.Equal(t, "hello, world", v)
}

func TestResolveProviderOverridesDefault(t *testing.T) {
	def := "hello"
	r := NewResolver(map[string]manifest.Variable{"greeting": {Default: &def}})
	r.AddProvider(ProviderFunc(func(_ context.Context, key string) (string, bool, error) {
		if key == "greeting" {
			return "hi", true, nil
		}
		return "", false, nil
	}))

	v, err := r.Resolve(context.Background(), "c1", "greeting")
	require.NoError(t, err)
	assert.Equal(t, "hi", v)
}

func TestResolveRequiredVariableMissingIsUndefined(t *testing.T) {
	r := NewResolver(map[string]manifest.Variable{"token": {Required: true}})
	_, err := r.Resolve(context.Background(), "c1", "token")
	require.Error(t, err)
	var vErr *Error
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, Undefined, vErr.Kind)
}

func TestResolveComponentScopeTakesPriority(t *testing.T) {
	def := "app-default"
	r := NewResolver(map[string]manifest.Variable{"greeting": {Default: &def}})
	r.AddComponentVariables("c1", map[string]string{"greeting": "scoped"})

	v, err := r.Resolve(context.Background(), "c1", "greeting")
	require.NoError(t, err)
	assert.Equal(t, "scoped", v)
}

func TestIsSecretReportsDeclaredSecrets(t *testing.T) {
	r := NewResolver(map[string]manifest.Variable{"password": {Required: true, Secret: true}})
	assert.True(t, r.IsSecret("password"))
	assert.False(t, r.IsSecret("unknown"))
}
