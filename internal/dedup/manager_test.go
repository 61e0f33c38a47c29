package dedup

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var pools = []common.Address{
	common.HexToAddress("0x8ad599c3A0ff1De082011EFDDc58f1908eb6e6D8"),
	common.HexToAddress("0x4e68Ccd3E89f51C3074ca5072bbAC773960dFa36"),
	common.HexToAddress("0x11b815efB8f581194ae79006d24E0d814B7697F6"),
}

func testCfg() Config {
	return Config{
		FingerprintTTL: 5 * time.Minute,
		Cooldown:       30 * time.Second,
		HysteresisPct:  d("0.05"),
	}
}

func TestNormalizeRouteID_RotationsAndReverseCollapse(t *testing.T) {
	a := NormalizeRouteID([]string{"WETH", "USDT", "WBTC", "WETH"}, pools)
	rotated := NormalizeRouteID([]string{"USDT", "WBTC", "WETH", "USDT"}, pools)
	reversed := NormalizeRouteID([]string{"WETH", "WBTC", "USDT", "WETH"}, pools)

	assert.Equal(t, a, rotated)
	assert.Equal(t, a, reversed)

	shuffledPools := []common.Address{pools[2], pools[0], pools[1]}
	assert.Equal(t, a, NormalizeRouteID([]string{"WETH", "USDT", "WBTC", "WETH"}, shuffledPools))

	other := NormalizeRouteID([]string{"WETH", "USDC", "WBTC", "WETH"}, pools)
	assert.NotEqual(t, a, other)
}

func TestFingerprint_Deterministic(t *testing.T) {
	id := NormalizeRouteID([]string{"WETH", "USDT", "WBTC", "WETH"}, pools)

	fp1 := Fingerprint(id, 19_000_000, 125, 90, d("1.80"))
	fp2 := Fingerprint(id, 19_000_000, 125, 90, d("1.80"))
	assert.Equal(t, fp1, fp2)
	assert.Len(t, fp1, 64)

	// Sub-cent gas differences round away; anything else changes the hash.
	assert.Equal(t, fp1, Fingerprint(id, 19_000_000, 125, 90, d("1.801")))
	assert.NotEqual(t, fp1, Fingerprint(id, 19_000_001, 125, 90, d("1.80")))
	assert.NotEqual(t, fp1, Fingerprint(id, 19_000_000, 126, 90, d("1.80")))
}

func TestShouldExecute_FirstAlwaysAllowed(t *testing.T) {
	m := NewManager(testCfg())
	now := time.Now()

	dec := m.ShouldExecute("route-a", "fp-1", 100, d("0.40"), now)
	assert.True(t, dec.Allowed)
}

func TestShouldExecute_RepeatedFingerprint(t *testing.T) {
	m := NewManager(testCfg())
	now := time.Now()

	m.RecordExecution("route-a", "fp-1", 100, d("0.40"), now)

	dec := m.ShouldExecute("route-a", "fp-1", 101, d("0.90"), now.Add(time.Second))
	require.False(t, dec.Allowed)
	assert.Contains(t, dec.Reason, "repeated fingerprint")
}

func TestShouldExecute_SameBlockEvenWithFreshFingerprint(t *testing.T) {
	m := NewManager(testCfg())
	now := time.Now()

	m.RecordExecution("route-a", "fp-1", 100, d("0.40"), now)

	dec := m.ShouldExecute("route-a", "fp-2", 100, d("0.90"), now.Add(time.Second))
	require.False(t, dec.Allowed)
	assert.Contains(t, dec.Reason, "already executed in block 100")
}

func TestShouldExecute_Cooldown(t *testing.T) {
	m := NewManager(testCfg())
	now := time.Now()

	m.RecordExecution("route-a", "fp-1", 100, d("0.40"), now)

	dec := m.ShouldExecute("route-a", "fp-2", 101, d("0.90"), now.Add(10*time.Second))
	require.False(t, dec.Allowed)
	assert.Contains(t, dec.Reason, "cooldown")
}

func TestShouldExecute_Hysteresis(t *testing.T) {
	m := NewManager(testCfg())
	now := time.Now()
	after := now.Add(time.Minute) // past cooldown

	m.RecordExecution("route-a", "fp-1", 100, d("0.40"), now)

	// Unchanged net is blocked.
	dec := m.ShouldExecute("route-a", "fp-2", 101, d("0.40"), after)
	require.False(t, dec.Allowed)
	assert.Contains(t, dec.Reason, "hysteresis")
	assert.Contains(t, dec.Reason, "need 0.45")

	// net >= last + margin passes.
	dec = m.ShouldExecute("route-a", "fp-3", 101, d("0.45"), after)
	assert.True(t, dec.Allowed)
}

func TestFingerprintTTLExpiry(t *testing.T) {
	cfg := testCfg()
	cfg.Cooldown = 0
	cfg.HysteresisPct = decimal.Zero
	m := NewManager(cfg)
	now := time.Now()

	m.RecordExecution("route-a", "fp-1", 100, d("0.40"), now)

	// Within TTL the fingerprint still blocks.
	dec := m.ShouldExecute("route-a", "fp-1", 101, d("0.40"), now.Add(time.Minute))
	require.False(t, dec.Allowed)

	// After TTL it expires and only the route-level gates apply.
	dec = m.ShouldExecute("route-a", "fp-1", 101, d("0.40"), now.Add(6*time.Minute))
	assert.True(t, dec.Allowed)
}

func TestCleanupAndStats(t *testing.T) {
	m := NewManager(testCfg())
	now := time.Now()

	m.RecordExecution("route-a", "fp-1", 100, d("0.40"), now)
	m.RecordExecution("route-b", "fp-2", 100, d("0.10"), now)

	s := m.GetStats()
	assert.Equal(t, 2, s.Fingerprints)
	assert.Equal(t, 2, s.Routes)

	m.CleanupExpired(now.Add(10 * time.Minute))
	s = m.GetStats()
	assert.Equal(t, 0, s.Fingerprints)
	assert.Equal(t, 2, s.Routes, "route records outlive fingerprint TTL")
}
