package backup

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func writeArchives(t *testing.T, dir string, stamps ...string) {
	t.Helper()
	for _, s := range stamps {
		name := ArchivePrefix + s + ".zip"
		if err := os.WriteFile(filepath.Join(dir, name), []byte(s), 0644); err != nil {
			t.Fatalf("WriteFile() error: %v", err)
		}
	}
}

func archiveNames(archives []ArchiveInfo) []string {
	names := make([]string, len(archives))
	for i, a := range archives {
		names[i] = a.Name
	}
	return names
}

func TestRetentionPolicy_Validate(t *testing.T) {
	tests := []struct {
		name    string
		policy  RetentionPolicy
		wantErr bool
	}{
		{name: "empty policy", policy: RetentionPolicy{}},
		{name: "keep last", policy: RetentionPolicy{KeepLast: 5}},
		{name: "mixed", policy: RetentionPolicy{KeepLast: 1, KeepDaily: 7, KeepWeekly: 4, KeepMonthly: 6}},
		{name: "negative keep_last", policy: RetentionPolicy{KeepLast: -1}, wantErr: true},
		{name: "negative keep_daily", policy: RetentionPolicy{KeepDaily: -1}, wantErr: true},
		{name: "negative keep_weekly", policy: RetentionPolicy{KeepWeekly: -1}, wantErr: true},
		{name: "negative keep_monthly", policy: RetentionPolicy{KeepMonthly: -1}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.policy.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRetentionPolicy_String(t *testing.T) {
	tests := []struct {
		policy RetentionPolicy
		want   string
	}{
		{RetentionPolicy{}, "keep all"},
		{RetentionPolicy{KeepLast: 3}, "keep last 3"},
		{RetentionPolicy{KeepDaily: 7, KeepMonthly: 12}, "keep 7 daily, 12 monthly"},
	}
	for _, tt := range tests {
		if got := tt.policy.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestRetentionEnforcer_KeepLast(t *testing.T) {
	dir := t.TempDir()
	writeArchives(t, dir, "20240101000000", "20240102000000", "20240103000000", "20240104000000")

	r := NewRetentionEnforcer(zerolog.Nop())
	result, err := r.Apply(dir, "zip", RetentionPolicy{KeepLast: 2}, false)
	if err != nil {
		t.Fatalf("Apply() error: %v", err)
	}

	if len(result.Kept) != 2 || len(result.Removed) != 2 {
		t.Fatalf("kept %v, removed %v", archiveNames(result.Kept), archiveNames(result.Removed))
	}
	remaining, _ := ListArchives(dir, "zip")
	want := []string{"plex_backup_20240104000000.zip", "plex_backup_20240103000000.zip"}
	got := archiveNames(remaining)
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("remaining = %v, want %v", got, want)
	}
}

func TestRetentionEnforcer_DailyBuckets(t *testing.T) {
	dir := t.TempDir()
	writeArchives(t, dir,
		"20240101080000", "20240101200000",
		"20240102080000", "20240102200000",
		"20240103080000",
	)

	r := NewRetentionEnforcer(zerolog.Nop())
	result, err := r.Apply(dir, "zip", RetentionPolicy{KeepDaily: 2}, false)
	if err != nil {
		t.Fatalf("Apply() error: %v", err)
	}

	want := map[string]bool{
		"plex_backup_20240103080000.zip": true,
		"plex_backup_20240102200000.zip": true,
	}
	if len(result.Kept) != len(want) {
		t.Fatalf("kept %v", archiveNames(result.Kept))
	}
	for _, a := range result.Kept {
		if !want[a.Name] {
			t.Errorf("unexpected archive kept: %s", a.Name)
		}
	}
}

func TestRetentionEnforcer_MonthlyAndLast(t *testing.T) {
	archives := []ArchiveInfo{}
	for _, s := range []string{"20240315000000", "20240310000000", "20240228000000", "20240201000000", "20240115000000"} {
		ts, err := time.Parse(TimestampLayout, s)
		if err != nil {
			t.Fatal(err)
		}
		archives = append(archives, ArchiveInfo{Name: s, Timestamp: ts})
	}

	keep := selectRetained(archives, RetentionPolicy{KeepLast: 1, KeepMonthly: 3})
	want := []bool{true, false, true, false, true}
	for i := range want {
		if keep[i] != want[i] {
			t.Errorf("keep[%d] (%s) = %v, want %v", i, archives[i].Name, keep[i], want[i])
		}
	}
}

func TestRetentionEnforcer_DryRun(t *testing.T) {
	dir := t.TempDir()
	writeArchives(t, dir, "20240101000000", "20240102000000", "20240103000000")

	r := NewRetentionEnforcer(zerolog.Nop())
	result, err := r.Apply(dir, "zip", RetentionPolicy{KeepLast: 1}, true)
	if err != nil {
		t.Fatalf("Apply() error: %v", err)
	}
	if len(result.Removed) != 2 {
		t.Errorf("expected 2 archives reported for removal, got %d", len(result.Removed))
	}

	remaining, _ := ListArchives(dir, "zip")
	if len(remaining) != 3 {
		t.Errorf("dry run removed archives: %v", archiveNames(remaining))
	}
}

func TestRetentionEnforcer_DisabledKeepsAll(t *testing.T) {
	dir := t.TempDir()
	writeArchives(t, dir, "20240101000000", "20240102000000")

	r := NewRetentionEnforcer(zerolog.Nop())
	result, err := r.Apply(dir, "zip", RetentionPolicy{}, false)
	if err != nil {
		t.Fatalf("Apply() error: %v", err)
	}
	if len(result.Kept) != 2 || len(result.Removed) != 0 {
		t.Errorf("kept %d, removed %d", len(result.Kept), len(result.Removed))
	}
}

func TestRetentionEnforcer_NewestAlwaysKept(t *testing.T) {
	dir := t.TempDir()
	writeArchives(t, dir, "20240101000000", "20240102000000")

	r := NewRetentionEnforcer(zerolog.Nop())
	result, err := r.Apply(dir, "zip", RetentionPolicy{KeepMonthly: 1}, false)
	if err != nil {
		t.Fatalf("Apply() error: %v", err)
	}
	if len(result.Kept) != 1 || result.Kept[0].Name != "plex_backup_20240102000000.zip" {
		t.Errorf("kept %v", archiveNames(result.Kept))
	}
}

func TestRetentionEnforcer_InvalidPolicy(t *testing.T) {
	r := NewRetentionEnforcer(zerolog.Nop())
	if _, err := r.Apply(t.TempDir(), "zip", RetentionPolicy{KeepLast: -2}, false); err == nil {
		t.Error("expected error for negative keep_last")
	}
}
