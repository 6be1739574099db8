package dedup

import (
	"testing"
	"time"
)

func ptr(f float64) *float64 { return &f }

func TestShouldSendSuppressesDuplicate(t *testing.T) {
	d := New(5*time.Second, 10)
	alert := Alert{Rule: "rf_strong_signal", SensorID: "sensor-123", Severity: "warn", Lat: ptr(35.2714), Lon: ptr(-78.6376)}

	if !d.ShouldSend(alert) {
		t.Fatal("first call should send")
	}
	if d.ShouldSend(alert) {
		t.Fatal("second call within TTL should be suppressed")
	}
}

func TestShouldSendAllowsAfterTTL(t *testing.T) {
	d := New(10*time.Millisecond, 10)
	alert := Alert{Rule: "r", SensorID: "s", Severity: "info", Lat: ptr(1), Lon: ptr(2)}

	if !d.ShouldSend(alert) {
		t.Fatal("first call should send")
	}
	time.Sleep(20 * time.Millisecond)
	if !d.ShouldSend(alert) {
		t.Fatal("call after TTL expiry should send again")
	}
}

func TestKeyUsesNoneLiteralForMissingLocation(t *testing.T) {
	d := New(5*time.Second, 10)
	withLoc := Alert{Rule: "r", SensorID: "s", Severity: "crit", Lat: ptr(1), Lon: ptr(2)}
	withoutLoc := Alert{Rule: "r", SensorID: "s", Severity: "crit"}

	if !d.ShouldSend(withLoc) {
		t.Fatal("expected first distinct key to send")
	}
	if !d.ShouldSend(withoutLoc) {
		t.Fatal("expected a different key (missing location) to send independently")
	}
	if d.ShouldSend(withoutLoc) {
		t.Fatal("repeat of the missing-location key should suppress")
	}
}

func TestPruneOnMaxKeys(t *testing.T) {
	d := New(5*time.Millisecond, 2)
	d.ShouldSend(Alert{Rule: "a", SensorID: "s", Severity: "info"})
	time.Sleep(10 * time.Millisecond)
	d.ShouldSend(Alert{Rule: "b", SensorID: "s", Severity: "info"})
	d.ShouldSend(Alert{Rule: "c", SensorID: "s", Severity: "info"})

	stats := d.Stats()
	if stats.CheckedTotal != 3 {
		t.Errorf("CheckedTotal = %d, want 3", stats.CheckedTotal)
	}
	// "c" pushes the map past maxKeys=2; "a" is older than the TTL by then,
	// so the prune pass removes it.
	if _, ok := d.seen[Alert{Rule: "a", SensorID: "s", Severity: "info"}.key()]; ok {
		t.Error("expected expired key for rule a to be pruned")
	}
}
