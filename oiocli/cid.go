package oiocli

import (
	"crypto/sha256"
	"encoding/hex"
)

// ContainerID derives the client-side container id from an account and
// a reference name, grounded on oiopy/utils.py:name2cid (SHA-256 of the
// NUL-joined "account\0ref" byte sequence). spec.md is silent on how
// container ids are computed; this supplements that gap.
func ContainerID(account, ref string) string {
	h := sha256.New()
	h.Write([]byte(account))
	h.Write([]byte{0})
	h.Write([]byte(ref))
	return hex.EncodeToString(h.Sum(nil))
}
