package model

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/google/uuid"
)

// GenerateUUIDWithSuffix generates a UUID with a given module name as a prefix.
// This is useful for creating unique identifiers with context-specific prefixes.
func GenerateUUIDWithSuffix(module string) string {
	id := uuid.New()
	uuidStr := id.String()
	idWithSuffix := fmt.Sprintf("%s_%s", module, uuidStr)
	return idWithSuffix
}

// GenerateAccountNumber generates an opaque wallet account number.
// The number carries no customer information and cannot be derived from one.
func GenerateAccountNumber() string {
	max := big.NewInt(0).Exp(big.NewInt(10), big.NewInt(12), nil)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		// crypto/rand only fails when the OS entropy source is broken.
		return fmt.Sprintf("WAL%s", uuid.New().String()[:12])
	}
	return fmt.Sprintf("WAL%012d", n)
}

// GenerateReference generates a transaction reference shared by the legs of
// one transfer.
func GenerateReference() string {
	return GenerateUUIDWithSuffix("ref")
}
