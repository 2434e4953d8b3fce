package registry

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"certchain/certerr"
)

const (
	minIDLength          = 5
	minContentHashLength = 40
	maxFieldLength       = 256
	maxReasonLength      = 512
)

type issueRequest struct {
	id          string
	studentName string
	nim         string
	degree      string
	contentHash string
}

func (r issueRequest) validate() error {
	fields := []struct {
		name, value string
	}{
		{"id", r.id},
		{"studentName", r.studentName},
		{"nim", r.nim},
		{"degree", r.degree},
		{"contentHash", r.contentHash},
	}
	for _, f := range fields {
		if len(f.value) > maxFieldLength {
			return certerr.New(certerr.CodeValidation, fmt.Sprintf("%s exceeds maximum length of %d", f.name, maxFieldLength))
		}
	}
	if utf8.RuneCountInString(r.id) < minIDLength {
		return certerr.New(certerr.CodeValidation, fmt.Sprintf("id must be at least %d characters", minIDLength))
	}
	if strings.TrimSpace(r.studentName) == "" {
		return certerr.New(certerr.CodeValidation, "studentName is required")
	}
	if !isDigits(r.nim) {
		return certerr.New(certerr.CodeValidation, "nim must contain only digits")
	}
	if len(r.contentHash) < minContentHashLength {
		return certerr.New(certerr.CodeValidation, fmt.Sprintf("contentHash must be at least %d characters", minContentHashLength))
	}
	return nil
}

func validateReason(reason string) error {
	if len(reason) > maxReasonLength {
		return certerr.New(certerr.CodeValidation, fmt.Sprintf("reason exceeds maximum length of %d", maxReasonLength))
	}
	return nil
}

// isDigits reports whether s is non-empty and made of ASCII digits only.
func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
