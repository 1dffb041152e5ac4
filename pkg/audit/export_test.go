package audit

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/sdnguard/pkg/catalog"
)

func TestExportImport_PreservesChain(t *testing.T) {
	sink := &memSink{}
	l := NewLog(sink)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := l.Append(ctx, "ops", okResult(catalog.ActionGetFirewallRules, nil))
		require.NoError(t, err)
	}

	var buf bytes.Buffer
	require.NoError(t, Export(&buf, sink.snapshot()))
	assert.Equal(t, 3, strings.Count(buf.String(), "\n"))

	got, err := Import(&buf)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.NoError(t, VerifyChain(got, Genesis))
}

func TestImport_DetectsTampering(t *testing.T) {
	sink := &memSink{}
	l := NewLog(sink)
	ctx := context.Background()
	_, err := l.Append(ctx, "ops", okResult(catalog.ActionGetFirewallRules, nil))
	require.NoError(t, err)
	_, err = l.Append(ctx, "ops", failedResult(catalog.ActionGetNetworkStatus))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Export(&buf, sink.snapshot()))
	tampered := strings.Replace(buf.String(), `"outcome":"failure"`, `"outcome":"success"`, 1)

	got, err := Import(strings.NewReader(tampered))
	require.NoError(t, err)
	assert.ErrorIs(t, VerifyChain(got, Genesis), ErrChainBroken)
}

func TestImport_BadLine(t *testing.T) {
	_, err := Import(strings.NewReader("{\"sequence\":1}\n\nnot json\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 3")
}
