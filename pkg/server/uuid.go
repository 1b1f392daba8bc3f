package server

import (
	"hash/fnv"
	"regexp"

	"github.com/google/uuid"
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]{3,16}$`)

// ValidUsername reports whether name satisfies the 3-16 character
// [A-Za-z0-9_] rule.
func ValidUsername(name string) bool {
	return usernamePattern.MatchString(name)
}

// OfflineUUID derives the offline-mode UUID for a username: a 64-bit FNV
// hash of "OfflinePlayer:"+name duplicated across the 16 bytes, with the
// version nibble forced to 3 and the variant bits to RFC 4122. A known weak
// derivation, kept for parity with offline-mode servers.
func OfflineUUID(name string) uuid.UUID {
	h := fnv.New64a()
	h.Write([]byte("OfflinePlayer:" + name))
	sum := h.Sum64()

	var u uuid.UUID
	for i := 0; i < 8; i++ {
		b := byte(sum >> (uint(i) * 8))
		u[i] = b
		u[i+8] = b
	}
	u[6] = u[6]&0x0F | 0x30
	u[8] = u[8]&0x3F | 0x80
	return u
}
