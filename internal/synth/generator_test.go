package synth

import (
	"bytes"
	"testing"
	"time"

	"Go2NetMonitor/internal/engine/protocol"
	"Go2NetMonitor/internal/model"
)

func TestGenerator_FlowsAndMix(t *testing.T) {
	g, err := New(Options{Seed: 7, Flows: 20, UDPRatio: 0.3, OtherRatio: 0.1})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	keys := map[model.FlowKey]bool{}
	protos := map[model.Protocol]int{}
	for i := 0; i < 2000; i++ {
		data, ci, err := g.Next()
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		if ci.CaptureLength != len(data) {
			t.Fatalf("CaptureLength %d != len %d", ci.CaptureLength, len(data))
		}
		obs, err := protocol.Classify(data)
		if err != nil {
			t.Fatalf("Generated frame %d is unclassifiable: %v", i, err)
		}
		keys[obs.Key()] = true
		protos[obs.Protocol]++
	}

	if len(keys) > g.Flows() {
		t.Errorf("Expected at most %d flows, saw %d", g.Flows(), len(keys))
	}
	if protos[model.ProtocolTCP] == 0 {
		t.Errorf("Expected TCP frames in the mix, got %v", protos)
	}
}

func TestGenerator_Deterministic(t *testing.T) {
	start := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	a, _ := New(Options{Seed: 1, Flows: 5, Start: start})
	b, _ := New(Options{Seed: 1, Flows: 5, Start: start})

	for i := 0; i < 50; i++ {
		fa, ca, _ := a.Next()
		fa = append([]byte(nil), fa...)
		fb, cb, _ := b.Next()
		if !bytes.Equal(fa, fb) || !ca.Timestamp.Equal(cb.Timestamp) {
			t.Fatalf("Frame %d differs between generators with the same seed", i)
		}
	}
}

func TestGenerator_Timestamps(t *testing.T) {
	start := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	g, _ := New(Options{Seed: 1, Flows: 1, Start: start, Gap: 10 * time.Millisecond})

	g.Next()
	_, ci, _ := g.Next()
	if want := start.Add(10 * time.Millisecond); !ci.Timestamp.Equal(want) {
		t.Errorf("Expected second frame at %v, got %v", want, ci.Timestamp)
	}
}

func TestNew_Invalid(t *testing.T) {
	tests := []Options{
		{Flows: 0},
		{Flows: 1, UDPRatio: -0.1},
		{Flows: 1, UDPRatio: 0.8, OtherRatio: 0.5},
	}
	for _, opts := range tests {
		if _, err := New(opts); err == nil {
			t.Errorf("Expected an error for %+v", opts)
		}
	}
}
