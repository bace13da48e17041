package security

import (
	"fmt"
	"os"

	"go.uber.org/zap"
)

// CheckFilePermissions tightens path to expectedPerms when it is more permissive
func CheckFilePermissions(path string, expectedPerms os.FileMode, logger *zap.Logger) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // File doesn't exist yet, that's okay
		}
		return fmt.Errorf("failed to check file permissions: %w", err)
	}

	actualPerms := info.Mode().Perm()
	if actualPerms == expectedPerms {
		return nil
	}

	logger.Warn("fixing file permissions",
		zap.String("path", path),
		zap.String("actual", fmt.Sprintf("%o", actualPerms)),
		zap.String("expected", fmt.Sprintf("%o", expectedPerms)),
	)

	if err := os.Chmod(path, expectedPerms); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	return nil
}

// SecureCertDatabase restricts the certificate database and its WAL files to the owner
func SecureCertDatabase(dbPath string, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}

	for _, path := range []string{dbPath, dbPath + "-wal", dbPath + "-shm"} {
		if err := CheckFilePermissions(path, 0600, logger); err != nil {
			logger.Warn("could not secure certificate database", zap.String("path", path), zap.Error(err))
		}
	}
}
