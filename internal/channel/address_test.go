package channel

import (
	"context"
	"errors"
	"testing"
)

// fakeProber resolves addresses from a fixed map and records every probe.
type fakeProber struct {
	known  map[string]string
	probes []string
	err    error
}

func (f *fakeProber) Exists(ctx context.Context, address string) (bool, string, error) {
	f.probes = append(f.probes, address)
	if f.err != nil {
		return false, "", f.err
	}
	resolved, ok := f.known[address]
	return ok, resolved, nil
}

func TestResolveAddressCanonicalHit(t *testing.T) {
	p := &fakeProber{known: map[string]string{
		"5511987654321@s.whatsapp.net": "5511987654321@s.whatsapp.net",
	}}
	got, err := ResolveAddress(context.Background(), p, "+55 (11) 98765-4321")
	if err != nil {
		t.Fatalf("ResolveAddress: %v", err)
	}
	if got != "5511987654321@s.whatsapp.net" {
		t.Errorf("address = %q", got)
	}
	if len(p.probes) != 1 {
		t.Errorf("probes = %v, want one", p.probes)
	}
}

func TestResolveAddressInsertsNinthDigit(t *testing.T) {
	// 12 digits total: the corrected variant gets a "9" inserted at
	// index 4 of the national part.
	p := &fakeProber{known: map[string]string{
		"5511879654321@s.whatsapp.net": "5511879654321@s.whatsapp.net",
	}}
	got, err := ResolveAddress(context.Background(), p, "551187654321")
	if err != nil {
		t.Fatalf("ResolveAddress: %v", err)
	}
	if got != "5511879654321@s.whatsapp.net" {
		t.Errorf("address = %q", got)
	}
	want := []string{"551187654321@s.whatsapp.net", "5511879654321@s.whatsapp.net"}
	if len(p.probes) != 2 || p.probes[0] != want[0] || p.probes[1] != want[1] {
		t.Errorf("probes = %v, want %v", p.probes, want)
	}
}

func TestResolveAddressRemovesExtraDigit(t *testing.T) {
	// 13 digits total: the corrected variant drops index 3 of the
	// national part.
	p := &fakeProber{known: map[string]string{
		"551197654321@s.whatsapp.net": "551197654321@s.whatsapp.net",
	}}
	got, err := ResolveAddress(context.Background(), p, "5511987654321")
	if err != nil {
		t.Fatalf("ResolveAddress: %v", err)
	}
	if got != "551197654321@s.whatsapp.net" {
		t.Errorf("address = %q", got)
	}
	want := []string{"5511987654321@s.whatsapp.net", "551197654321@s.whatsapp.net"}
	if len(p.probes) != 2 || p.probes[0] != want[0] || p.probes[1] != want[1] {
		t.Errorf("probes = %v, want %v", p.probes, want)
	}
}

func TestResolveAddressFallsBackToCanonical(t *testing.T) {
	p := &fakeProber{known: map[string]string{}}
	got, err := ResolveAddress(context.Background(), p, "551187654321")
	if err != nil {
		t.Fatalf("ResolveAddress: %v", err)
	}
	if got != "551187654321@s.whatsapp.net" {
		t.Errorf("address = %q", got)
	}
	if len(p.probes) != 2 {
		t.Errorf("probes = %v, want canonical plus one correction", p.probes)
	}
}

func TestResolveAddressUnambiguousLengthProbesOnce(t *testing.T) {
	p := &fakeProber{known: map[string]string{}}
	got, err := ResolveAddress(context.Background(), p, "5511-4321")
	if err != nil {
		t.Fatalf("ResolveAddress: %v", err)
	}
	if got != "55114321@s.whatsapp.net" {
		t.Errorf("address = %q", got)
	}
	if len(p.probes) != 1 {
		t.Errorf("probes = %v, want one", p.probes)
	}
}

func TestResolveAddressProbeError(t *testing.T) {
	wantErr := errors.New("gateway down")
	p := &fakeProber{err: wantErr}
	if _, err := ResolveAddress(context.Background(), p, "5511987654321"); !errors.Is(err, wantErr) {
		t.Errorf("err = %v, want %v", err, wantErr)
	}
}
