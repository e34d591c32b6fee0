// ABOUTME: Tests for the soap-gateway command helpers
// ABOUTME: Covers option flags, config loading, the sample config and the log handler

package main

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/soap-gateway/internal/config"
)

func TestOptionFlags(t *testing.T) {
	opts := optionFlags{}
	require.NoError(t, opts.Set("localService=hello"))
	require.NoError(t, opts.Set("wsdlLocation=a=b.wsdl"))
	assert.Equal(t, "a=b.wsdl", opts["wsdlLocation"])

	assert.Error(t, opts.Set("novalue"))
	assert.Error(t, opts.Set("=x"))
}

func TestLoadConfigFromOptions(t *testing.T) {
	cfg, source, err := loadConfig("", optionFlags{
		"localService": "hello",
		"wsdlLocation": "HelloWebService.wsdl",
		"waitTimeout":  "500",
	})
	require.NoError(t, err)
	assert.Equal(t, "(options)", source)
	assert.Equal(t, "hello", cfg.Inbound.LocalService)
	assert.Equal(t, int64(500), cfg.Inbound.WaitTimeout.Milliseconds())

	_, _, err = loadConfig("", optionFlags{"bogus": "1"})
	assert.ErrorContains(t, err, "parsing options")
}

func TestLoadConfigMissing(t *testing.T) {
	t.Setenv("SOAP_GATEWAY_CONFIG", "")
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())

	_, _, err := loadConfig("", nil)
	assert.ErrorContains(t, err, "soap-gateway init")
}

func TestSampleConfigLoads(t *testing.T) {
	content, err := sampleConfig()
	require.NoError(t, err)
	assert.NotContains(t, content, "${SOAP_GATEWAY_JWT_SECRET}")

	t.Setenv("SOAP_GATEWAY_WSDL", "HelloWebService.wsdl")
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Len(t, cfg.Auth.JWTSecret, 44, "base64 of 32 random bytes")
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"hello", "echo"}, splitList(" hello, ,echo "))
	assert.Nil(t, splitList(""))
}

func TestColorHandler(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	logger := slog.New(newColorHandler(&buf, slog.LevelInfo))

	logger.Debug("hidden")
	logger.With("component", "inbound").WithGroup("call").Info("← reply", "operation", "sayHello")
	logger.Error("failed", "error", "boom")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "INF ← reply component=inbound call.operation=sayHello")
	assert.Contains(t, lines[1], "ERR failed error=boom")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warn"))
	assert.Equal(t, slog.LevelInfo, parseLevel("verbose"))
}
