package core

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Patient is an identity record resolved during verification. The raw phone
// number is never stored; only its hash is kept for matching.
type Patient struct {
	ID        int64     `json:"id"`
	FullName  string    `json:"full_name"`
	DOB       string    `json:"dob"` // YYYY-MM-DD
	PhoneHash string    `json:"phone_hash"`
	CreatedAt time.Time `json:"created_at"`
}

// HashPhone derives the stored phone hash from a raw phone number.
func HashPhone(phone string) string {
	sum := sha256.Sum256([]byte(phone))
	return hex.EncodeToString(sum[:])
}
