package logic

import (
	"math/rand"
	"testing"
	"time"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

// at returns t0 plus ms milliseconds.
func at(ms int) time.Time {
	return t0.Add(time.Duration(ms) * time.Millisecond)
}

// feed samples raw every millisecond from..to inclusive and returns the
// final debounced value.
func feed(d *RequestDetector, raw bool, from, to int) bool {
	var stable bool
	for ms := from; ms <= to; ms++ {
		stable, _ = d.Sample(raw, at(ms))
	}
	return stable
}

func TestRequestInitialValue(t *testing.T) {
	d := NewRequestDetector(true, 500*time.Millisecond)
	if !d.Stable() {
		t.Error("stable should start at the initial raw value")
	}
	if d.OverridePending() {
		t.Error("override should not be pending at startup")
	}
}

func TestRequestCommitsAfterWindow(t *testing.T) {
	d := NewRequestDetector(false, 500*time.Millisecond)

	if stable, _ := d.Sample(true, at(0)); stable {
		t.Fatal("raw change must not update stable immediately")
	}
	if stable, _ := d.Sample(true, at(20)); stable {
		t.Fatal("stable must not change at exactly the debounce window")
	}
	if stable, _ := d.Sample(true, at(21)); !stable {
		t.Fatal("stable should change once the raw value held past the window")
	}
}

func TestRequestIgnoresShortGlitch(t *testing.T) {
	d := NewRequestDetector(false, 500*time.Millisecond)

	feed(d, true, 0, 10)
	if stable := feed(d, false, 11, 80); stable {
		t.Error("a 10ms glitch must not change stable")
	}
}

func TestRequestRestartsWindowOnEveryChange(t *testing.T) {
	d := NewRequestDetector(false, 500*time.Millisecond)

	// Chatter: the line never holds true for more than 15ms
	for i := 0; i < 10; i++ {
		base := i * 30
		feed(d, true, base, base+15)
		feed(d, false, base+16, base+29)
	}
	if d.Stable() {
		t.Error("chattering line must never commit true")
	}
}

func TestRequestStableChangesAtMostOncePerRun(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	d := NewRequestDetector(false, 500*time.Millisecond)

	ms := 0
	raw := false
	for run := 0; run < 2000; run++ {
		raw = !raw
		length := 1 + rng.Intn(50)

		changes := 0
		prev := d.Stable()
		for i := 0; i < length; i++ {
			stable, _ := d.Sample(raw, at(ms))
			if stable != prev {
				changes++
				prev = stable
			}
			ms++
		}

		if changes > 1 {
			t.Fatalf("run %d (%dms of %v): stable changed %d times", run, length, raw, changes)
		}
		// A run of n 1ms samples spans n-1 ms; commit needs more than 20ms.
		if length <= 21 && changes != 0 {
			t.Fatalf("run %d: stable changed during a %dms run", run, length)
		}
	}
}

// gesture releases the request at releaseAt (confirmed 21ms later) and
// presses it again so that the rising edge is confirmed delta after the
// release was confirmed. It returns the override flag after the press.
func gesture(d *RequestDetector, releaseAt int, delta int) bool {
	feed(d, false, releaseAt, releaseAt+21)
	confirmed := releaseAt + 21
	pressAt := confirmed + delta - 21
	feed(d, false, confirmed+1, pressAt-1)
	var pending bool
	for ms := pressAt; ms <= confirmed+delta; ms++ {
		_, pending = d.Sample(true, at(ms))
	}
	return pending
}

func TestOverrideWindow(t *testing.T) {
	tests := []struct {
		name  string
		delta int
		want  bool
	}{
		{"quick re-press", 300, true},
		{"just inside window", 499, true},
		{"at window", 500, false},
		{"slow re-press", 600, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewRequestDetector(true, 500*time.Millisecond)
			got := gesture(d, 100, tt.delta)
			if !d.Stable() {
				t.Fatal("request should be back on after the gesture")
			}
			if got != tt.want {
				t.Errorf("delta %dms: pending=%v, want %v", tt.delta, got, tt.want)
			}
		})
	}
}

func TestOverrideNeedsPriorRelease(t *testing.T) {
	d := NewRequestDetector(false, 500*time.Millisecond)
	feed(d, true, 0, 30)
	if d.OverridePending() {
		t.Error("first press after startup must not arm override")
	}
}

func TestOverridePersistsUntilConsumed(t *testing.T) {
	d := NewRequestDetector(true, 500*time.Millisecond)
	if !gesture(d, 0, 100) {
		t.Fatal("expected override pending")
	}

	feed(d, true, 200, 2000)
	if !d.OverridePending() {
		t.Fatal("override must persist across ticks until consumed")
	}

	if !d.ConsumeOverride() {
		t.Error("ConsumeOverride should report the pending flag")
	}
	if d.ConsumeOverride() {
		t.Error("second ConsumeOverride should report nothing pending")
	}
}

func TestOverrideRearms(t *testing.T) {
	d := NewRequestDetector(true, 500*time.Millisecond)
	gesture(d, 0, 100)
	d.ConsumeOverride()

	if !gesture(d, 1000, 200) {
		t.Error("a second gesture should arm override again")
	}
}

func TestOverrideIgnoresGlitchAfterRelease(t *testing.T) {
	d := NewRequestDetector(true, 500*time.Millisecond)
	gesture(d, 0, 100)
	d.ConsumeOverride()

	// 5ms dropout shortly after: never confirmed, so no new edge
	feed(d, false, 200, 205)
	feed(d, true, 206, 300)
	if d.OverridePending() {
		t.Error("an unconfirmed dropout must not arm override")
	}
}

func TestConfirmedRunAtStableValueKeepsReleaseTime(t *testing.T) {
	d := NewRequestDetector(true, 500*time.Millisecond)
	if feed(d, false, 0, 30) {
		t.Fatal("release should commit at 21ms")
	}

	// Blip high then a confirmed low run that matches the stable value
	feed(d, true, 200, 205)
	feed(d, false, 206, 599)

	// 600ms after the committed release, 394ms after the blip
	if !feed(d, true, 600, 630) {
		t.Fatal("press should commit")
	}
	if d.OverridePending() {
		t.Error("override window must run from the committed release, not the blip")
	}
}
