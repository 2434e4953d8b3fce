package certerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/suite"
)

type CertErrSuite struct {
	suite.Suite
}

func TestCertErrSuite(t *testing.T) {
	suite.Run(t, new(CertErrSuite))
}

func (s *CertErrSuite) TestErrorString() {
	s.Run("prefixes message with code", func() {
		err := New(CodeNotFound, "certificate CERT-0001 does not exist")
		s.Equal("NOT_FOUND: certificate CERT-0001 does not exist", err.Error())
	})

	s.Run("returns code when message is empty", func() {
		err := &Error{Code: CodeDuplicate}
		s.Equal("DUPLICATE", err.Error())
	})
}

func (s *CertErrSuite) TestIsMatching() {
	s.Run("matches by code only", func() {
		err := New(CodeAlreadyRevoked, "a")
		s.True(errors.Is(err, &Error{Code: CodeAlreadyRevoked}))
		s.False(errors.Is(err, &Error{Code: CodeNotFound}))
	})

	s.Run("finds code through fmt wrapping", func() {
		err := fmt.Errorf("revoke: %w", New(CodeNotFound, "missing"))
		s.True(HasCode(err, CodeNotFound))
		s.Equal(CodeNotFound, CodeOf(err))
	})

	s.Run("plain errors have no code", func() {
		s.Equal(Code(""), CodeOf(errors.New("boom")))
		s.False(HasCode(nil, CodeInternal))
	})
}

func (s *CertErrSuite) TestWrap() {
	s.Run("preserves existing code", func() {
		inner := New(CodeValidation, "nim must be numeric")
		err := Wrap(inner, CodeInternal, "issue failed")
		s.True(HasCode(err, CodeValidation))
		s.ErrorIs(err, inner)
	})

	s.Run("applies code to plain errors", func() {
		inner := errors.New("disk full")
		err := Wrap(inner, CodeInternal, "put state")
		s.True(HasCode(err, CodeInternal))
		s.Equal(inner, errors.Unwrap(err))
	})
}

func (s *CertErrSuite) TestParse() {
	s.Run("recovers code from bare message", func() {
		e, ok := Parse("DUPLICATE: certificate CERT-0001 already exists")
		s.Require().True(ok)
		s.Equal(CodeDuplicate, e.Code)
		s.Equal("certificate CERT-0001 already exists", e.Message)
	})

	s.Run("recovers code behind transport context", func() {
		e, ok := Parse("rpc error: code = Aborted desc = chaincode response 500, ALREADY_REVOKED: certificate CERT-0001 is already revoked")
		s.Require().True(ok)
		s.Equal(CodeAlreadyRevoked, e.Code)
	})

	s.Run("ignores codes embedded in longer words", func() {
		_, ok := Parse("XVALIDATION: nope")
		s.False(ok)
	})

	s.Run("reports absence", func() {
		_, ok := Parse("connection refused")
		s.False(ok)
	})

	s.Run("round trips every known code", func() {
		for _, code := range knownCodes {
			e, ok := Parse(New(code, "msg").Error())
			s.Require().True(ok, code)
			s.Equal(code, e.Code)
			s.Equal("msg", e.Message)
		}
	})
}
