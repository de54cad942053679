package totp

import (
	"crypto/rand"
	"fmt"
	"strings"
)

// Charset for backup codes. Excludes 0/O/1/I so codes survive being read
// aloud or written down.
const backupCodeCharset = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

func GenerateBackupCodes(count int) ([]string, error) {
	codes := make([]string, 0, count)

	for i := 0; i < count; i++ {
		code, err := generateBackupCode()
		if err != nil {
			return nil, fmt.Errorf("failed to generate backup code: %w", err)
		}
		codes = append(codes, code)
	}

	return codes, nil
}

func generateBackupCode() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}

	chars := make([]byte, 8)
	for i, b := range buf {
		chars[i] = backupCodeCharset[int(b)%len(backupCodeCharset)]
	}

	return string(chars[:4]) + "-" + string(chars[4:]), nil
}

// NormalizeBackupCode strips whitespace and uppercases so user re-entry
// matches the generated form.
func NormalizeBackupCode(code string) string {
	return strings.ToUpper(strings.Join(strings.Fields(code), ""))
}

// VerifyBackupCode checks code against the remaining set. On a match it
// returns the set with that code removed; the code can never match again.
// On a miss the original set is returned unchanged.
func VerifyBackupCode(remaining []string, code string) (bool, []string) {
	normalized := NormalizeBackupCode(code)
	if normalized == "" {
		return false, remaining
	}

	for i, candidate := range remaining {
		if NormalizeBackupCode(candidate) == normalized {
			result := make([]string, 0, len(remaining)-1)
			result = append(result, remaining[:i]...)
			result = append(result, remaining[i+1:]...)
			return true, result
		}
	}

	return false, remaining
}
