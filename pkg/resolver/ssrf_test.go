package resolver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateHost_BlocksKnownLocalHostnames(t *testing.T) {
	for _, host := range []string{"localhost", "LOCALHOST", "metadata.google.internal", "169.254.169.254"} {
		require.Error(t, ValidateHost(context.Background(), host), host)
	}
}

func TestValidateHost_BlocksSuffixes(t *testing.T) {
	for _, host := range []string{"foo.local", "bar.internal", "baz.localhost"} {
		require.Error(t, ValidateHost(context.Background(), host), host)
	}
}

func TestValidateHost_BlocksPrivateAndLoopbackIPs(t *testing.T) {
	for _, host := range []string{"127.0.0.1", "10.0.0.1", "192.168.1.1", "::1", "fe80::1"} {
		require.Error(t, ValidateHost(context.Background(), host), host)
	}
}

func TestValidateHost_AllowsPublicIP(t *testing.T) {
	require.NoError(t, ValidateHost(context.Background(), "8.8.8.8"))
}

func TestValidateHost_RejectsEmptyHostname(t *testing.T) {
	require.Error(t, ValidateHost(context.Background(), ""))
}

func TestValidateAndPinURL_ReturnsIPForRawIPHost(t *testing.T) {
	pinned, err := ValidateAndPinURL(context.Background(), "8.8.8.8")
	require.NoError(t, err)
	require.Equal(t, []string{"8.8.8.8"}, pinned)
}

func TestValidateAndPinURL_BlocksPrivateRawIP(t *testing.T) {
	_, err := ValidateAndPinURL(context.Background(), "10.0.0.5")
	require.Error(t, err)
}
