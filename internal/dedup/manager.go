// Package dedup gates route execution against duplicates, same-block
// repeats, cooldown windows and hysteresis.
package dedup

import (
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/sha3"

	"github.com/evanward1/Triangular-Arbitrage-sub001/internal/types"
)

// NormalizeRouteID collapses all rotations (and the reverse traversal, see
// DESIGN.md) of a cycle into one stable id: path tokens and pool addresses
// are sorted independently and joined.
func NormalizeRouteID(path []string, pools []common.Address) string {
	tokens := make([]string, len(path))
	for i, t := range path {
		tokens[i] = strings.ToUpper(t)
	}
	sort.Strings(tokens)

	addrs := make([]string, len(pools))
	for i, p := range pools {
		addrs[i] = strings.ToLower(p.Hex())
	}
	sort.Strings(addrs)

	return strings.Join(tokens, "-") + "|" + strings.Join(addrs, "-")
}

// Fingerprint hashes the route id and its rounded economics at a point in
// time. Identical inputs always produce the same 64-char hex digest.
func Fingerprint(routeID string, blockOrTick uint64, grossBps, feeBps int64, gasUSD decimal.Decimal) string {
	payload := fmt.Sprintf("%s|%d|%d|%d|%s",
		routeID, blockOrTick, grossBps, feeBps, gasUSD.RoundBank(2).StringFixed(2))

	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(payload))
	return hex.EncodeToString(h.Sum(nil))
}

// Decision is the outcome of a ShouldExecute check. Rejections are expected
// filtering, not errors; Reason is for one-line-per-decision logging and
// Stage is a low-cardinality label for metrics.
type Decision struct {
	Allowed bool
	Stage   string
	Reason  string
}

// Stage values for rejected decisions.
const (
	StageFingerprint = "fingerprint"
	StageSameBlock   = "same_block"
	StageCooldown    = "cooldown"
	StageHysteresis  = "hysteresis"
)

// Stats reports the manager's tracked state sizes.
type Stats struct {
	Fingerprints int
	Routes       int
}

// Config bounds the manager's gating behavior.
type Config struct {
	FingerprintTTL time.Duration
	Cooldown       time.Duration

	// HysteresisPct is the minimum net-percent improvement over the last
	// execution before the same route may trigger again.
	HysteresisPct decimal.Decimal
}

// Manager is the one piece of shared mutable state in the solving path.
// It is explicitly owned and passed in; all methods are mutex-guarded so the
// check-then-act sequence ShouldExecute + RecordExecution can be observed
// atomically by holding callers to a single writer.
type Manager struct {
	mu           sync.Mutex
	cfg          Config
	fingerprints map[string]time.Time
	routes       map[string]types.RouteExecutionRecord
}

// NewManager returns an empty manager with the given gating config.
func NewManager(cfg Config) *Manager {
	return &Manager{
		cfg:          cfg,
		fingerprints: make(map[string]time.Time),
		routes:       make(map[string]types.RouteExecutionRecord),
	}
}

// ShouldExecute runs the gating checks in fixed order: fingerprint TTL
// expiry, repeated fingerprint, same block/tick, cooldown, hysteresis.
// Same-block and cooldown are independent reasons to reject even with a
// fresh fingerprint.
func (m *Manager) ShouldExecute(routeID, fingerprint string, blockOrTick uint64, netPct decimal.Decimal, now time.Time) Decision {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.expireLocked(now)

	if seen, ok := m.fingerprints[fingerprint]; ok {
		return Decision{Stage: StageFingerprint, Reason: fmt.Sprintf("repeated fingerprint (age %s)", now.Sub(seen).Round(time.Millisecond))}
	}

	rec, ok := m.routes[routeID]
	if !ok {
		return Decision{Allowed: true}
	}

	if rec.BlockOrTick == blockOrTick {
		return Decision{Stage: StageSameBlock, Reason: fmt.Sprintf("already executed in block %d", blockOrTick)}
	}

	if elapsed := now.Sub(rec.ExecutedAt); elapsed < m.cfg.Cooldown {
		remaining := m.cfg.Cooldown - elapsed
		return Decision{Stage: StageCooldown, Reason: fmt.Sprintf("cooldown: %.1fs remaining", remaining.Seconds())}
	}

	need := rec.NetPct.Add(m.cfg.HysteresisPct)
	if netPct.LessThan(need) {
		return Decision{Stage: StageHysteresis, Reason: fmt.Sprintf("hysteresis: need %s, got %s", need, netPct)}
	}

	return Decision{Allowed: true}
}

// RecordExecution stores the fingerprint and the route's last execution.
// Call only after the caller has committed to execute.
func (m *Manager) RecordExecution(routeID, fingerprint string, blockOrTick uint64, netPct decimal.Decimal, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.fingerprints[fingerprint] = now
	m.routes[routeID] = types.RouteExecutionRecord{
		RouteID:     routeID,
		BlockOrTick: blockOrTick,
		NetPct:      netPct,
		ExecutedAt:  now,
		Fingerprint: fingerprint,
	}
}

// CleanupExpired drops fingerprints older than the TTL.
func (m *Manager) CleanupExpired(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expireLocked(now)
}

// GetStats returns counts of tracked fingerprints and routes.
func (m *Manager) GetStats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{Fingerprints: len(m.fingerprints), Routes: len(m.routes)}
}

func (m *Manager) expireLocked(now time.Time) {
	for fp, seen := range m.fingerprints {
		if now.Sub(seen) > m.cfg.FingerprintTTL {
			delete(m.fingerprints, fp)
		}
	}
}
