package credential

import (
	"crypto/sha256"
	"time"

	"github.com/yuyake44/munge/internal/crypto"
	"github.com/yuyake44/munge/internal/defs"
	muerrors "github.com/yuyake44/munge/internal/errors"
)

// ReplayChecker is the subset of internal/replay.Cache's interface the
// codec needs. Accepting an interface here — rather than importing
// internal/replay directly — keeps the codec testable in isolation and
// lets internal/daemon wire in the real cache.
type ReplayChecker interface {
	// ProbeAndInsert atomically checks whether fingerprint has been seen
	// before and, if not, inserts it with the given expiry. It reports
	// whether the fingerprint was already present (a replay) and, when
	// not, a transaction token the caller can Confirm or Rescind. retry
	// asks the cache to displace a prior insertion of the same
	// fingerprint instead of reporting it replayed — the client-retry
	// policy. err is non-nil only when the cache is at its soft capacity
	// ceiling.
	ProbeAndInsert(fingerprint [32]byte, expiry time.Time, retry bool) (replayed bool, token string, err error)
	Confirm(token string)
	Rescind(token string)
}

// DecodeOptions carries everything a Decode call needs beyond the
// encoded string and the shared secret.
type DecodeOptions struct {
	// Replay is consulted for replay-suppression. A nil Replay disables
	// the check entirely — used by tests exercising the codec alone.
	Replay ReplayChecker

	// CallerUID/CallerGID identify the peer asking to decode the
	// credential, checked against UIDRestriction/GIDRestriction.
	// NoRestriction means the caller's identity isn't checked.
	CallerUID int64
	CallerGID int64

	// RetryPermitted marks this decode as a client's resend of a request
	// it never saw a reply to: the replay cache displaces the earlier
	// insertion instead of flagging the resend as a replay.
	RetryPermitted bool

	// GroupMember reports whether uid is a member of gid in the daemon's
	// group snapshot, used when GIDRestriction names a group the caller's
	// primary GID doesn't match. A nil GroupMember means only the primary
	// GID is consulted.
	GroupMember func(uid, gid uint32) bool

	// AllowRootOverride lets a root caller (UID 0) decode a credential
	// despite a UID restriction naming someone else.
	AllowRootOverride bool

	// Now overrides the current time, for deterministic tests. The zero
	// value means time.Now().
	Now time.Time
}

func (o *DecodeOptions) now() time.Time {
	if o.Now.IsZero() {
		return time.Now()
	}
	return o.Now
}

// EncodeOptions carries the parameters Encode doesn't take from the
// Record itself. UID and GID always come from the Record.
type EncodeOptions struct {
	// Now overrides the encode timestamp, for deterministic tests.
	Now time.Time
}

func (o *EncodeOptions) now() time.Time {
	if o.Now.IsZero() {
		return time.Now()
	}
	return o.Now
}

// Encode seals rec into the opaque "MUNGE:<base64>:" string form, using
// secret as the shared key all subkeys are derived from.
//
// Order of operations: generate a fresh salt, derive the cipher/IV/MAC
// subkeys from secret and that salt, compress and serialize the inner
// fields, encrypt the result, serialize the header around the
// ciphertext, then MAC the header+ciphertext and append the tag —
// verification on decode always covers the full transmitted envelope,
// never just a piece of it.
func Encode(rec *Record, secret []byte, opts EncodeOptions) (string, error) {
	if err := validateRecord(rec); err != nil {
		return "", err
	}

	salt, err := crypto.RandomBytes(defs.CredSaltLen)
	if err != nil {
		return "", err
	}

	keys, err := deriveSubkeys(secret, salt, resolveCipher(rec.Cipher), resolveMAC(rec.MAC))
	if err != nil {
		return "", muerrors.NewCryptoError("derive-subkeys", err)
	}
	defer keys.Close()

	zipType := resolveZip(rec.Zip)
	compressed, err := crypto.Compress(zipType, rec.Payload)
	if err != nil {
		return "", err
	}
	// Compression that doesn't pay for itself is dropped, so the wire
	// never carries a payload larger than the original.
	if zipType != crypto.ZipNone && len(compressed) >= len(rec.Payload) {
		zipType = crypto.ZipNone
		compressed = rec.Payload
	}

	encodeTime := opts.now()
	inner := &wireInner{
		uid:            rec.UID,
		gid:            rec.GID,
		encodeTime:     encodeTime.Unix(),
		ttl:            uint32(rec.TTL / time.Second),
		uidRestriction: rec.UIDRestriction,
		gidRestriction: rec.GIDRestriction,
		payload:        compressed,
	}
	innerBytes := inner.marshal()

	cipherType := resolveCipher(rec.Cipher)
	bc, err := crypto.NewBlockCipher(cipherType, true, keys.cipherKey, keys.iv)
	if err != nil {
		return "", err
	}
	defer bc.Close()

	ciphertext, err := encryptAll(bc, innerBytes)
	if err != nil {
		return "", err
	}

	var salt8 [defs.CredSaltLen]byte
	copy(salt8[:], salt)
	header := &wireHeader{
		version:    wireVersion,
		cipher:     uint8(cipherType),
		mac:        uint8(resolveMAC(rec.MAC)),
		zip:        uint8(zipType),
		salt:       salt8,
		realm:      rec.Realm,
		iv:         keys.iv,
		ciphertext: ciphertext,
	}
	headerBytes := header.marshal()

	tag, err := crypto.Sum(resolveMAC(rec.MAC), keys.macKey, headerBytes)
	if err != nil {
		return "", err
	}

	body := append(headerBytes, tag...)
	return envelopeWrap(body), nil
}

// Decode unseals s, verifying its MAC before decrypting, decrypting
// before parsing the inner fields, and checking replay, temporal
// validity, and identity restrictions before ever returning Success —
// each stage runs only once the one before it has passed, so a
// tampered or expired credential never gets partially interpreted.
func Decode(s string, secret []byte, opts DecodeOptions) (*Record, Status, error) {
	body, err := envelopeUnwrap(s)
	if err != nil {
		return nil, StatusInvalidCred, err
	}

	if len(body) < 1 {
		return nil, StatusInvalidCred, muerrors.ErrCryptoFailed
	}
	headerBytes, tag, err := splitHeaderAndTag(body)
	if err != nil {
		return nil, StatusInvalidCred, err
	}

	header, err := unmarshalHeader(headerBytes)
	if err != nil {
		return nil, StatusInvalidCred, err
	}
	if header.version != wireVersion {
		return nil, StatusInvalidCred, muerrors.ErrCryptoFailed
	}

	cipherType := crypto.Cipher(header.cipher)
	macType := crypto.MAC(header.mac)
	zipType := crypto.Zip(header.zip)
	if !validCipher(cipherType) || !validMAC(macType) || !validZip(zipType) {
		return nil, StatusInvalidCred, muerrors.ErrUnknownCipher
	}

	keys, err := deriveSubkeys(secret, header.salt[:], cipherType, macType)
	if err != nil {
		return nil, StatusInvalidCred, muerrors.NewCryptoError("derive-subkeys", err)
	}
	defer keys.Close()

	if !crypto.Verify(macType, keys.macKey, headerBytes, tag) {
		return nil, StatusInvalidCred, muerrors.ErrCryptoFailed
	}

	bc, err := crypto.NewBlockCipher(cipherType, false, keys.cipherKey, header.iv)
	if err != nil {
		return nil, StatusInvalidCred, err
	}
	defer bc.Close()

	innerBytes, err := decryptAll(bc, header.ciphertext)
	if err != nil {
		return nil, StatusInvalidCred, muerrors.ErrCryptoFailed
	}

	inner, err := unmarshalInner(innerBytes)
	if err != nil {
		return nil, StatusInvalidCred, muerrors.ErrCryptoFailed
	}

	var token string
	if opts.Replay != nil {
		fp := sha256.Sum256(headerBytes)
		expiry := time.Unix(inner.encodeTime, 0).
			Add(time.Duration(inner.ttl)*time.Second + defs.CredSkew)
		replayed, tok, rerr := opts.Replay.ProbeAndInsert(fp, expiry, opts.RetryPermitted)
		if rerr != nil {
			return nil, StatusInvalidCred, rerr
		}
		token = tok
		if replayed {
			return nil, StatusReplayedCred, muerrors.ErrCryptoFailed
		}
	}

	now := opts.now()
	encodeTime := time.Unix(inner.encodeTime, 0)
	if encodeTime.After(now.Add(defs.CredSkew)) {
		if opts.Replay != nil {
			opts.Replay.Rescind(token)
		}
		return nil, StatusRewoundCred, muerrors.ErrCryptoFailed
	}
	expiry := encodeTime.Add(time.Duration(inner.ttl)*time.Second + defs.CredSkew)
	if now.After(expiry) {
		if opts.Replay != nil {
			opts.Replay.Rescind(token)
		}
		return nil, StatusExpiredCred, muerrors.ErrCryptoFailed
	}

	if inner.uidRestriction != NoRestriction && opts.CallerUID != NoRestriction &&
		int64(inner.uidRestriction) != opts.CallerUID &&
		!(opts.AllowRootOverride && opts.CallerUID == 0) {
		if opts.Replay != nil {
			opts.Replay.Rescind(token)
		}
		return nil, StatusUIDMismatch, muerrors.ErrCryptoFailed
	}
	if inner.gidRestriction != NoRestriction && opts.CallerGID != NoRestriction &&
		int64(inner.gidRestriction) != opts.CallerGID {
		member := false
		if opts.GroupMember != nil && opts.CallerUID >= 0 && inner.gidRestriction >= 0 {
			member = opts.GroupMember(uint32(opts.CallerUID), uint32(inner.gidRestriction))
		}
		if !member {
			if opts.Replay != nil {
				opts.Replay.Rescind(token)
			}
			return nil, StatusGIDMismatch, muerrors.ErrCryptoFailed
		}
	}

	payload, err := crypto.Decompress(zipType, inner.payload)
	if err != nil || len(payload) > defs.MaxReqLen {
		if opts.Replay != nil {
			opts.Replay.Rescind(token)
		}
		return nil, StatusInvalidCred, muerrors.ErrCryptoFailed
	}

	if opts.Replay != nil {
		opts.Replay.Confirm(token)
	}

	rec := &Record{
		Cipher:         cipherType,
		MAC:            macType,
		Zip:            zipType,
		Realm:          header.realm,
		UID:            inner.uid,
		GID:            inner.gid,
		EncodeTime:     encodeTime,
		TTL:            time.Duration(inner.ttl) * time.Second,
		UIDRestriction: inner.uidRestriction,
		GIDRestriction: inner.gidRestriction,
		Payload:        payload,
	}
	return rec, StatusSuccess, nil
}

func splitHeaderAndTag(body []byte) ([]byte, []byte, error) {
	// The MAC type is the third byte of the header; read it first to
	// know the tag size before splitting.
	if len(body) < 4 {
		return nil, nil, muerrors.ErrCryptoFailed
	}
	macType := crypto.MAC(body[2])
	size := macType.Size()
	if size == 0 {
		return nil, nil, muerrors.ErrUnknownMAC
	}
	if len(body) < size {
		return nil, nil, muerrors.ErrCryptoFailed
	}
	split := len(body) - size
	return body[:split], body[split:], nil
}

func encryptAll(bc *crypto.BlockCipher, data []byte) ([]byte, error) {
	out, err := bc.Update(data)
	if err != nil {
		return nil, err
	}
	final, err := bc.Final()
	if err != nil {
		return nil, err
	}
	return append(out, final...), nil
}

func decryptAll(bc *crypto.BlockCipher, data []byte) ([]byte, error) {
	out, err := bc.Update(data)
	if err != nil {
		return nil, err
	}
	final, err := bc.Final()
	if err != nil {
		return nil, err
	}
	return append(out, final...), nil
}

func resolveCipher(c crypto.Cipher) crypto.Cipher {
	if c == crypto.CipherDefault {
		return crypto.CipherAES128
	}
	return c
}

func resolveMAC(m crypto.MAC) crypto.MAC {
	if m == crypto.MACDefault {
		return crypto.MACSHA1
	}
	return m
}

func resolveZip(z crypto.Zip) crypto.Zip {
	if z == crypto.ZipDefault {
		return crypto.ZipNone
	}
	return z
}

func validCipher(c crypto.Cipher) bool {
	switch c {
	case crypto.CipherBlowfish, crypto.CipherCAST5, crypto.CipherAES128, crypto.CipherAES256:
		return true
	default:
		// CipherNone is a valid primitive but never a valid credential:
		// the wire always encrypts.
		return false
	}
}

func validMAC(m crypto.MAC) bool {
	switch m {
	case crypto.MACMD5, crypto.MACSHA1, crypto.MACRIPEMD160, crypto.MACSHA256:
		return true
	default:
		return false
	}
}

func validZip(z crypto.Zip) bool {
	switch z {
	case crypto.ZipNone, crypto.ZipBzlib, crypto.ZipZlib:
		return true
	default:
		return false
	}
}

func validateRecord(rec *Record) error {
	if !validCipher(resolveCipher(rec.Cipher)) || !validMAC(resolveMAC(rec.MAC)) {
		return muerrors.BadArg
	}
	if rec.TTL < 0 || rec.TTL > defs.MaxTTL*time.Second {
		return muerrors.BadArg
	}
	if len(rec.Payload) > defs.MaxReqLen {
		return muerrors.BadLength
	}
	return nil
}
