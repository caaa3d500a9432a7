// Package ledgeraddr encodes and validates the ledger's account address
// format: a 58-character base32 string (RFC 4648 without padding) wrapping
// a 32-byte ed25519 public key plus a 4-byte checksum, the same shape the
// teacher's wallet package used base58/bech32 for on Bitcoin addresses,
// adapted to this ledger's base32 (A-Z, 2-7) alphabet.
package ledgeraddr

import (
	"crypto/ed25519"
	"crypto/sha512"
	"encoding/base32"
	"errors"
)

// addressLen is the length of an encoded address: ceil((32+4)*8/5) with
// base32's 5-bits-per-char packing, rounded to the fixed 58 the validator
// checks for.
const addressLen = 58

const checksumLen = 4

var encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// ErrInvalidAddress is returned when decoding fails length or checksum
// validation.
var ErrInvalidAddress = errors.New("ledgeraddr: invalid address")

// FromPublicKey encodes an ed25519 public key into the ledger's
// human-readable address form: base32(pubkey || checksum(pubkey)).
func FromPublicKey(pub ed25519.PublicKey) string {
	sum := checksum(pub)
	raw := append(append([]byte{}, pub...), sum...)
	return encoding.EncodeToString(raw)
}

// ToPublicKey decodes and validates an address, returning the embedded
// public key. Returns ErrInvalidAddress if the checksum does not match.
func ToPublicKey(address string) (ed25519.PublicKey, error) {
	if len(address) != addressLen {
		return nil, ErrInvalidAddress
	}
	raw, err := encoding.DecodeString(address)
	if err != nil {
		return nil, ErrInvalidAddress
	}
	if len(raw) < ed25519.PublicKeySize+checksumLen {
		return nil, ErrInvalidAddress
	}

	pub := raw[:ed25519.PublicKeySize]
	gotSum := raw[ed25519.PublicKeySize : ed25519.PublicKeySize+checksumLen]
	wantSum := checksum(pub)
	for i := range wantSum {
		if gotSum[i] != wantSum[i] {
			return nil, ErrInvalidAddress
		}
	}
	return ed25519.PublicKey(pub), nil
}

// checksum is the last checksumLen bytes of SHA-512/256 of the public key.
func checksum(pub []byte) []byte {
	sum := sha512.Sum512_256(pub)
	return sum[len(sum)-checksumLen:]
}

// Valid reports whether address has the right shape to be a ledger
// address: exactly 58 characters from the base32 A-Z2-7 alphabet with a
// matching checksum. Used by the command parser's address validator.
func Valid(address string) bool {
	_, err := ToPublicKey(address)
	return err == nil
}
