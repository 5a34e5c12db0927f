package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yuyake44/munge/internal/credential"
	"github.com/yuyake44/munge/internal/crypto"
	"github.com/yuyake44/munge/internal/defs"
)

func TestBuildEncodeReqFromString(t *testing.T) {
	opts := &options{
		inputString: "hello",
		cipherName:  "aes256",
		macName:     "sha256",
		zipName:     "zlib",
		restrictUID: "1000",
		restrictGID: "1000",
		ttl:         300,
	}
	req, err := buildEncodeReq(opts, strings.NewReader("ignored"))
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), req.Payload)
	require.Equal(t, crypto.CipherAES256, req.Cipher)
	require.Equal(t, crypto.MACSHA256, req.MAC)
	require.Equal(t, crypto.ZipZlib, req.Zip)
	require.Equal(t, int64(1000), req.UIDRestriction)
	require.Equal(t, int64(1000), req.GIDRestriction)
	require.Equal(t, 300*time.Second, req.TTL)
}

func TestBuildEncodeReqDefaults(t *testing.T) {
	opts := &options{noInput: true, cipherName: "default", macName: "default", zipName: "default"}
	req, err := buildEncodeReq(opts, strings.NewReader(""))
	require.NoError(t, err)
	require.Empty(t, req.Payload)
	require.Equal(t, crypto.CipherDefault, req.Cipher)
	require.Equal(t, credential.NoRestriction, req.UIDRestriction)
	require.Equal(t, credential.NoRestriction, req.GIDRestriction)
	require.Equal(t, time.Duration(0), req.TTL)
}

func TestBuildEncodeReqReadsStdin(t *testing.T) {
	opts := &options{cipherName: "default", macName: "default", zipName: "default"}
	req, err := buildEncodeReq(opts, strings.NewReader("from stdin"))
	require.NoError(t, err)
	require.Equal(t, []byte("from stdin"), req.Payload)
}

func TestBuildEncodeReqRejectsConflictingInputs(t *testing.T) {
	opts := &options{noInput: true, inputString: "x", cipherName: "default", macName: "default", zipName: "default"}
	_, err := buildEncodeReq(opts, strings.NewReader(""))
	require.Error(t, err)
}

func TestBuildEncodeReqRejectsUnknownCipher(t *testing.T) {
	opts := &options{noInput: true, cipherName: "rot13", macName: "default", zipName: "default"}
	_, err := buildEncodeReq(opts, strings.NewReader(""))
	require.Error(t, err)
}

func TestResolveTTL(t *testing.T) {
	require.Equal(t, time.Duration(0), resolveTTL(0))
	require.Equal(t, 42*time.Second, resolveTTL(42))
	require.Equal(t, time.Duration(defs.MaxTTL)*time.Second, resolveTTL(-1))
}

func TestPrintNames(t *testing.T) {
	var buf bytes.Buffer
	printNames(&buf, "cipher", crypto.CipherNames())
	out := buf.String()
	require.Contains(t, out, "cipher types:")
	require.Contains(t, out, "aes128")
	require.Contains(t, out, "blowfish")
}
