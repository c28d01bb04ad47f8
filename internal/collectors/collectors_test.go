package collectors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Harvey-AU/site-report/internal/whois"
)

func TestDefaultSettings(t *testing.T) {
	s := DefaultSettings()

	assert.Equal(t, ModeLocal, s.Mode)
	assert.Equal(t, ResolverDirect, s.DNSResolver)
	assert.Equal(t, whois.DefaultAPIURL, s.WhoisAPIURL)
	assert.False(t, s.TechFingerprint)
	assert.Empty(t, s.WhoisAPIKey)
}

func TestBuild_Local(t *testing.T) {
	s := DefaultSettings()
	s.DNSResolver = ResolverSystem

	c, err := Build(s, nil)
	require.NoError(t, err)

	assert.NotNil(t, c.Whois)
	assert.NotNil(t, c.TechStack)
	assert.NotNil(t, c.Existence)
	assert.NotNil(t, c.SEO)
	assert.NotNil(t, c.DNS)
	assert.NotNil(t, c.Hosting)
}

func TestBuild_DirectResolverWithExplicitServer(t *testing.T) {
	s := DefaultSettings()
	s.DNSServer = "127.0.0.1:5353"

	c, err := Build(s, nil)
	require.NoError(t, err)
	assert.NotNil(t, c.DNS)
}

func TestBuild_Remote(t *testing.T) {
	s := DefaultSettings()
	s.Mode = ModeRemote
	s.RemoteURL = "http://collector.internal:8080"

	c, err := Build(s, nil)
	require.NoError(t, err)
	assert.NotNil(t, c.Whois)
	assert.NotNil(t, c.Hosting)

	s.RemoteURL = ""
	_, err = Build(s, nil)
	assert.ErrorContains(t, err, "remote collector URL is required")
}

func TestBuild_RejectsUnknownSettings(t *testing.T) {
	s := DefaultSettings()
	s.Mode = "hybrid"
	_, err := Build(s, nil)
	assert.ErrorContains(t, err, "unknown collector mode")

	s = DefaultSettings()
	s.DNSResolver = "doh"
	_, err = Build(s, nil)
	assert.ErrorContains(t, err, "unknown DNS resolver")
}
