package token

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"

	"github.com/jrsteele09/go-token-manager/oauthmodel"
)

const (
	clientKeyKind  = "client"
	refreshKeyKind = "refresh"
)

// Key derives an unambiguous cache key from its parts. Each part is length prefixed before
// hashing, so no choice of part values can make two different part lists collide:
// ("a::b", "") and ("a", "b") produce different keys.
func Key(prefix, kind string, parts ...string) string {
	h := sha256.New()
	var length [8]byte
	for _, p := range parts {
		binary.BigEndian.PutUint64(length[:], uint64(len(p)))
		h.Write(length[:])
		h.Write([]byte(p))
	}
	return prefix + kind + ":" + hex.EncodeToString(h.Sum(nil))
}

// ClientCacheKey is the cache key for a client token. It is a pure function of the client
// name and the parameters that change the issued token (resource and scope).
func ClientCacheKey(prefix, clientName string, parameters oauthmodel.ClientAccessTokenParameters) string {
	return Key(prefix, clientKeyKind, clientName, parameters.Resource, parameters.Scope)
}

// RefreshSyncKey is the synchronization key for a refresh operation. It is derived from the
// refresh token itself, so callers sharing a session collapse into one refresh call.
func RefreshSyncKey(refreshToken string) string {
	return Key("", refreshKeyKind, refreshToken)
}
