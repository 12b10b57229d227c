//go:build !windows

package registry

import "context"

// lookupInstallPath falls back to "reg query" where no native registry API exists.
func (s *RegStore) lookupInstallPath(ctx context.Context) (string, error) {
	return s.queryInstallPath(ctx)
}
