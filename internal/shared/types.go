package shared

import (
	"crypto/rand"
	"encoding/hex"
)

func NewID(prefix string) string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return prefix + hex.EncodeToString(b)
}

// ClientID identifies a peer within a session. Empty means "no peer",
// which doubles as "no controller" in arbitration state.
type ClientID string

func (c ClientID) String() string {
	return string(c)
}
