package version_test

import (
	"testing"

	v "github.com/ligadeals/ligadeals-web/internal/version"
)

func TestVCSDirtyTriState(t *testing.T) {
	orig := v.VCSDirty
	t.Cleanup(func() { v.VCSDirty = orig })

	trueVal := true
	v.VCSDirty = &trueVal
	if info := v.Get(); info.VCSDirty == nil || !*info.VCSDirty {
		t.Fatalf("VCSDirty = %v, want true", info.VCSDirty)
	}

	falseVal := false
	v.VCSDirty = &falseVal
	if info := v.Get(); info.VCSDirty == nil || *info.VCSDirty {
		t.Fatalf("VCSDirty = %v, want false", info.VCSDirty)
	}
}

func TestGet_LdflagsWin(t *testing.T) {
	origV, origC := v.Version, v.Commit
	t.Cleanup(func() { v.Version, v.Commit = origV, origC })

	v.Version = "1.4.0"
	v.Commit = "0123456789abcdef0123"
	info := v.Get()
	if info.Version != "1.4.0" {
		t.Fatalf("Version = %q", info.Version)
	}
	if info.Commit != "0123456789abcdef0123" {
		t.Fatalf("Commit = %q", info.Commit)
	}
	if info.Short() != "0123456789ab" {
		t.Fatalf("Short = %q", info.Short())
	}
	if info.AppName != v.AppName {
		t.Fatalf("AppName = %q", info.AppName)
	}
}
