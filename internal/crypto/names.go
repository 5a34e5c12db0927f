package crypto

import (
	muerrors "github.com/yuyake44/munge/internal/errors"
)

// Name tables mapping enum values to the lowercase names the CLI accepts
// for -c/-m/-z and prints for -C/-M/-Z. Index equals enum value.

var cipherNames = [...]string{"none", "default", "blowfish", "cast5", "aes128", "aes256"}
var macNames = [...]string{"none", "default", "md5", "sha1", "ripemd160", "sha256"}
var zipNames = [...]string{"none", "default", "bzlib", "zlib"}

func (c Cipher) String() string {
	if c < 0 || int(c) >= len(cipherNames) {
		return "unknown"
	}
	return cipherNames[c]
}

func (m MAC) String() string {
	if m < 0 || int(m) >= len(macNames) {
		return "unknown"
	}
	return macNames[m]
}

func (z Zip) String() string {
	if z < 0 || int(z) >= len(zipNames) {
		return "unknown"
	}
	return zipNames[z]
}

// ParseCipher maps a cipher name to its enum value.
func ParseCipher(name string) (Cipher, error) {
	for i, n := range cipherNames {
		if n == name {
			return Cipher(i), nil
		}
	}
	return CipherNone, muerrors.ErrUnknownCipher
}

// ParseMAC maps a MAC name to its enum value.
func ParseMAC(name string) (MAC, error) {
	for i, n := range macNames {
		if n == name {
			return MAC(i), nil
		}
	}
	return MACNone, muerrors.ErrUnknownMAC
}

// ParseZip maps a compression name to its enum value.
func ParseZip(name string) (Zip, error) {
	for i, n := range zipNames {
		if n == name {
			return Zip(i), nil
		}
	}
	return ZipNone, muerrors.ErrUnknownZip
}

// CipherNames lists the recognized cipher names, in enum order.
func CipherNames() []string { return append([]string(nil), cipherNames[:]...) }

// MACNames lists the recognized MAC names, in enum order.
func MACNames() []string { return append([]string(nil), macNames[:]...) }

// ZipNames lists the recognized compression names, in enum order.
func ZipNames() []string { return append([]string(nil), zipNames[:]...) }
