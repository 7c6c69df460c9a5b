package rooms

import (
	nanoid "github.com/jaevor/go-nanoid"
)

const (
	// CodeAlphabet matches the upper-case base36 codes handed out to clients.
	CodeAlphabet      = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	DefaultCodeLength = 6

	maxCodeAttempts = 32
)

// CodeGenerator returns a fresh candidate join code. Uniqueness is checked by
// the Directory, not by the generator.
type CodeGenerator func() (string, error)

// NewCodeGenerator builds a nanoid backed generator over CodeAlphabet.
func NewCodeGenerator(length int) (CodeGenerator, error) {
	if length <= 0 {
		length = DefaultCodeLength
	}
	gen, err := nanoid.CustomASCII(CodeAlphabet, length)
	if err != nil {
		return nil, err
	}
	return func() (string, error) {
		return gen(), nil
	}, nil
}
