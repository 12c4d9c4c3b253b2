package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/amirasaad/unitconv/pkg/commands"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func offline(t *testing.T) {
	t.Helper()
	t.Setenv("EXCHANGE_RATE_PROVIDER", "static")
	t.Setenv("SNAPSHOT_DRIVER", "none")
	t.Setenv("EVENT_BUS_DRIVER", "memory")
}

func TestRun_OneShot(t *testing.T) {
	offline(t)
	var stdout, stderr bytes.Buffer

	err := run(context.Background(), []string{"100", "m", "->", "km"}, strings.NewReader(""), &stdout, &stderr)
	require.NoError(t, err)
	assert.Equal(t, "0.1 kilometer (km)\n", stdout.String())
}

func TestRun_OneShotFailure(t *testing.T) {
	offline(t)
	var stdout, stderr bytes.Buffer

	err := run(context.Background(), []string{"100", "m", "->", "kg"}, strings.NewReader(""), &stdout, &stderr)
	assert.ErrorIs(t, err, errEvalFailed)
	assert.Equal(t, "Conversion error: cannot convert from meter (m) to kilogram (kg)\n", stdout.String())
}

func TestRun_Interactive(t *testing.T) {
	offline(t)
	var stdout, stderr bytes.Buffer

	input := "1 kg -> g\n100 USD -> USD\nunits\nexit\n"
	err := run(context.Background(), nil, strings.NewReader(input), &stdout, &stderr)
	require.NoError(t, err)

	out := stdout.String()
	assert.True(t, strings.HasPrefix(out, commands.Banner+"\n"))
	assert.Contains(t, out, "1000 gram (g)\n")
	assert.Contains(t, out, "100 USD\n")
	assert.Contains(t, out, "Available units:\n")
	assert.NotContains(t, out, "Using static exchange rates", "logs belong on stderr")
}

func TestRun_StaticCurrency(t *testing.T) {
	offline(t)
	var stdout, stderr bytes.Buffer

	err := run(context.Background(), []string{"1", "USD", "->", "EUR"}, strings.NewReader(""), &stdout, &stderr)
	require.NoError(t, err)
	assert.Equal(t, "0.92 EUR\n", stdout.String())
}
