package service

import (
	"strings"

	"github.com/Laisky/errors/v2"
	"golang.org/x/crypto/bcrypt"

	"github.com/zlnvch/deskfolio/models"
)

// bcrypt rejects longer inputs
const maxLockPasswordBytes = 72

func hashPassword(password string) (string, error) {
	if len(password) > maxLockPasswordBytes {
		return "", newError(ErrValidation, "Password must be at most 72 bytes")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", errors.Wrap(err, "hash password")
	}
	return string(hash), nil
}

// checkUnlock gates writes to a locked file. A successful check authorizes
// the current request only.
func checkUnlock(file models.File, unlockPassword *string) error {
	if !file.IsLocked() {
		return nil
	}
	if unlockPassword == nil || *unlockPassword == "" {
		return newError(ErrFileLocked, "File is password protected")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(file.PasswordHash), []byte(*unlockPassword)); err != nil {
		return newError(ErrWrongUnlockPassword, "Incorrect password")
	}
	return nil
}

// resolvePasswordHash applies the write's password field: nil keeps the
// existing hash, blank clears it, anything else replaces it.
func resolvePasswordHash(existingHash string, password *string) (string, error) {
	if password == nil {
		return existingHash, nil
	}
	if strings.TrimSpace(*password) == "" {
		return "", nil
	}
	return hashPassword(*password)
}
