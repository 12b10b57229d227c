package backup

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// RetentionPolicy selects which archives survive pruning. Each rule keeps
// the newest archive of its bucket; an archive kept by any rule survives.
type RetentionPolicy struct {
	KeepLast    int
	KeepDaily   int
	KeepWeekly  int
	KeepMonthly int
}

// Enabled reports whether any rule is set.
func (p RetentionPolicy) Enabled() bool {
	return p.KeepLast > 0 || p.KeepDaily > 0 || p.KeepWeekly > 0 || p.KeepMonthly > 0
}

// Validate checks that no rule is negative.
func (p RetentionPolicy) Validate() error {
	if p.KeepLast < 0 {
		return errors.New("keep_last cannot be negative")
	}
	if p.KeepDaily < 0 {
		return errors.New("keep_daily cannot be negative")
	}
	if p.KeepWeekly < 0 {
		return errors.New("keep_weekly cannot be negative")
	}
	if p.KeepMonthly < 0 {
		return errors.New("keep_monthly cannot be negative")
	}
	return nil
}

// String returns a human-readable description of the policy.
func (p RetentionPolicy) String() string {
	var parts []string
	if p.KeepLast > 0 {
		parts = append(parts, fmt.Sprintf("last %d", p.KeepLast))
	}
	if p.KeepDaily > 0 {
		parts = append(parts, fmt.Sprintf("%d daily", p.KeepDaily))
	}
	if p.KeepWeekly > 0 {
		parts = append(parts, fmt.Sprintf("%d weekly", p.KeepWeekly))
	}
	if p.KeepMonthly > 0 {
		parts = append(parts, fmt.Sprintf("%d monthly", p.KeepMonthly))
	}
	if len(parts) == 0 {
		return "keep all"
	}
	return "keep " + strings.Join(parts, ", ")
}

// RetentionResult lists the archives a prune kept and removed.
type RetentionResult struct {
	Kept    []ArchiveInfo
	Removed []ArchiveInfo
}

// RetentionEnforcer removes archives that fall outside a retention policy.
type RetentionEnforcer struct {
	logger zerolog.Logger
}

// NewRetentionEnforcer creates a new RetentionEnforcer.
func NewRetentionEnforcer(logger zerolog.Logger) *RetentionEnforcer {
	return &RetentionEnforcer{
		logger: logger.With().Str("component", "retention").Logger(),
	}
}

// Apply prunes the archives in dir for extension ext. With dryRun set nothing
// is deleted. A disabled policy keeps everything. The newest archive is
// always kept.
func (r *RetentionEnforcer) Apply(dir, ext string, policy RetentionPolicy, dryRun bool) (*RetentionResult, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	archives, err := ListArchives(dir, ext)
	if err != nil {
		return nil, err
	}
	if !policy.Enabled() {
		return &RetentionResult{Kept: archives}, nil
	}

	keep := selectRetained(archives, policy)
	result := &RetentionResult{}
	for i, a := range archives {
		if keep[i] {
			result.Kept = append(result.Kept, a)
			continue
		}
		if !dryRun {
			if err := os.Remove(a.Path); err != nil {
				return result, fmt.Errorf("remove %s: %w", a.Name, err)
			}
		}
		result.Removed = append(result.Removed, a)
	}

	r.logger.Info().
		Str("policy", policy.String()).
		Bool("dry_run", dryRun).
		Int("kept", len(result.Kept)).
		Int("removed", len(result.Removed)).
		Msg("retention policy applied")
	return result, nil
}

// selectRetained marks the archives to keep. archives must be sorted newest
// first, as ListArchives returns them.
func selectRetained(archives []ArchiveInfo, policy RetentionPolicy) []bool {
	keep := make([]bool, len(archives))
	if len(archives) > 0 {
		keep[0] = true
	}
	for i := 0; i < len(archives) && i < policy.KeepLast; i++ {
		keep[i] = true
	}

	buckets := []struct {
		n   int
		key func(ArchiveInfo) string
	}{
		{policy.KeepDaily, func(a ArchiveInfo) string { return a.Timestamp.Format("2006-01-02") }},
		{policy.KeepWeekly, func(a ArchiveInfo) string {
			y, w := a.Timestamp.ISOWeek()
			return fmt.Sprintf("%d-%02d", y, w)
		}},
		{policy.KeepMonthly, func(a ArchiveInfo) string { return a.Timestamp.Format("2006-01") }},
	}
	for _, b := range buckets {
		seen := make(map[string]bool)
		for i, a := range archives {
			if len(seen) >= b.n {
				break
			}
			k := b.key(a)
			if seen[k] {
				continue
			}
			seen[k] = true
			keep[i] = true
		}
	}
	return keep
}
