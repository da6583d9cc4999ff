package deepwell

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	minPasswordLength = 8
	maxPasswordLength = 72 // bcrypt ignores anything past 72 bytes
)

// PasswordBlacklist is a case-insensitive set of passwords that CreateUser refuses.
type PasswordBlacklist map[string]struct{}

// LoadPasswordBlacklist reads one password per line. Blank lines and lines starting
// with '#' are skipped. An empty path yields an empty blacklist.
func LoadPasswordBlacklist(path string) (PasswordBlacklist, error) {
	if strings.TrimSpace(path) == "" {
		return PasswordBlacklist{}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open password blacklist: %w", err)
	}
	defer f.Close()

	list, err := ReadPasswordBlacklist(f)
	if err != nil {
		return nil, fmt.Errorf("read password blacklist %s: %w", path, err)
	}
	return list, nil
}

func ReadPasswordBlacklist(r io.Reader) (PasswordBlacklist, error) {
	list := PasswordBlacklist{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		list[strings.ToLower(line)] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return list, nil
}

func (b PasswordBlacklist) Contains(password string) bool {
	_, found := b[strings.ToLower(strings.TrimSpace(password))]
	return found
}

func (s *Server) validatePassword(password string) error {
	if len(password) < minPasswordLength {
		return WrapError(KindPasswordRejected, "password not allowed",
			fmt.Errorf("must be at least %d characters", minPasswordLength))
	}
	if len(password) > maxPasswordLength {
		return WrapError(KindPasswordRejected, "password not allowed",
			fmt.Errorf("must be at most %d bytes", maxPasswordLength))
	}
	if s.blacklist.Contains(password) {
		return WrapError(KindPasswordRejected, "password not allowed",
			fmt.Errorf("password is too common"))
	}
	return nil
}

func (s *Server) hashPassword(password string) ([]byte, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return nil, Internal(fmt.Errorf("hash password: %w", err))
	}
	return hash, nil
}

func checkPassword(hash []byte, password string) bool {
	if len(hash) == 0 {
		return false
	}
	return bcrypt.CompareHashAndPassword(hash, []byte(password)) == nil
}
