//go:build windows

package registry

import (
	"context"
	"errors"
	"fmt"

	winreg "golang.org/x/sys/windows/registry"
)

var hives = map[string]winreg.Key{
	"HKEY_CURRENT_USER":  winreg.CURRENT_USER,
	"HKCU":               winreg.CURRENT_USER,
	"HKEY_LOCAL_MACHINE": winreg.LOCAL_MACHINE,
	"HKLM":               winreg.LOCAL_MACHINE,
	"HKEY_USERS":         winreg.USERS,
	"HKU":                winreg.USERS,
}

// lookupInstallPath reads the install folder directly from the registry.
func (s *RegStore) lookupInstallPath(ctx context.Context) (string, error) {
	root, path := splitKey(s.key)
	hive, ok := hives[root]
	if !ok {
		return "", fmt.Errorf("%w: unknown registry hive %q", ErrInstallPathNotFound, root)
	}

	k, err := winreg.OpenKey(hive, path, winreg.QUERY_VALUE)
	if err != nil {
		if errors.Is(err, winreg.ErrNotExist) {
			return "", ErrInstallPathNotFound
		}
		return "", fmt.Errorf("%w: open key: %v", ErrInstallPathNotFound, err)
	}
	defer k.Close()

	value, _, err := k.GetStringValue(InstallFolderValue)
	if err != nil {
		if errors.Is(err, winreg.ErrNotExist) {
			return "", ErrInstallPathNotFound
		}
		return "", fmt.Errorf("%w: read value: %v", ErrInstallPathNotFound, err)
	}
	if value == "" {
		return "", ErrInstallPathNotFound
	}
	return value, nil
}
