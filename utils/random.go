package utils

import (
	"crypto/rand"
)

// codeAlphabet skips 0/O/1/I so codes survive being read aloud or written
// on a whiteboard.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// GenerateQueueCode returns a short human-typeable queue code. Codes are
// not guaranteed unique; the caller handles collisions by retrying the
// insert.
func GenerateQueueCode(length int) (string, error) {
	code := make([]byte, length)
	if _, err := rand.Read(code); err != nil {
		return "", err
	}
	for i := 0; i < length; i++ {
		code[i] = codeAlphabet[int(code[i])%len(codeAlphabet)]
	}
	return string(code), nil
}
