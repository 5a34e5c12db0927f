// munge is the client-side credential encoder: it reads an optional
// payload, asks the local munged daemon to seal it into a credential,
// and prints the resulting "MUNGE:...:" string.
package main

import (
	"fmt"
	"io"
	"os"
	"os/user"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/yuyake44/munge/internal/client"
	"github.com/yuyake44/munge/internal/credential"
	"github.com/yuyake44/munge/internal/crypto"
	"github.com/yuyake44/munge/internal/defs"
	"github.com/yuyake44/munge/internal/dispatcher"
	muerrors "github.com/yuyake44/munge/internal/errors"
)

var version = "dev"

const licenseText = `munge is free software: you can redistribute it and/or modify it
under the terms of the GNU General Public License as published by the
Free Software Foundation, either version 3 of the License, or (at your
option) any later version.  It is distributed WITHOUT ANY WARRANTY.`

type options struct {
	noInput     bool
	inputString string
	inputFile   string
	outputFile  string
	cipherName  string
	macName     string
	zipName     string
	restrictUID string
	restrictGID string
	ttl         int
	socketPath  string

	listCiphers bool
	listMACs    bool
	listZips    bool
	license     bool
	showVersion bool
}

func main() {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "munge",
		Short: "MUNGE credential encoder",
		Long:  "munge seals a payload (or no payload) into a credential\nasserting your UID/GID, via the local munged daemon.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.OutOrStdout(), opts)
		},
	}

	flags := rootCmd.Flags()
	flags.BoolVarP(&opts.noInput, "no-input", "n", false, "discard all input for the payload")
	flags.StringVarP(&opts.inputString, "string", "s", "", "input payload from the given string")
	flags.StringVarP(&opts.inputFile, "input", "i", "", "input payload from the given file (\"-\" for stdin)")
	flags.StringVarP(&opts.outputFile, "output", "o", "", "output credential to the given file")
	flags.StringVarP(&opts.cipherName, "cipher", "c", "default", "cipher used to encrypt the credential")
	flags.BoolVarP(&opts.listCiphers, "list-ciphers", "C", false, "print the recognized cipher names and exit")
	flags.StringVarP(&opts.macName, "mac", "m", "default", "MAC used to authenticate the credential")
	flags.BoolVarP(&opts.listMACs, "list-macs", "M", false, "print the recognized MAC names and exit")
	flags.StringVarP(&opts.zipName, "zip", "z", "default", "compression applied to the payload")
	flags.BoolVarP(&opts.listZips, "list-zips", "Z", false, "print the recognized compression names and exit")
	flags.StringVarP(&opts.restrictUID, "restrict-uid", "u", "", "restrict decoding to the given user or UID")
	flags.StringVarP(&opts.restrictGID, "restrict-gid", "g", "", "restrict decoding to the given group or GID")
	flags.IntVarP(&opts.ttl, "ttl", "t", 0, "time-to-live in seconds (0=default, negative=maximum)")
	flags.StringVarP(&opts.socketPath, "socket", "S", "", "socket path of the munged daemon")
	flags.BoolVarP(&opts.license, "license", "L", false, "print the license and exit")
	flags.BoolVarP(&opts.showVersion, "version", "V", false, "print the version and exit")

	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "munge: %v\n", err)
		os.Exit(muerrors.KindOf(err).ExitStatus())
	}
}

func run(stdout io.Writer, opts *options) error {
	switch {
	case opts.showVersion:
		fmt.Fprintf(stdout, "munge %s\n", version)
		return nil
	case opts.license:
		fmt.Fprintln(stdout, licenseText)
		return nil
	case opts.listCiphers:
		printNames(stdout, "cipher", crypto.CipherNames())
		return nil
	case opts.listMACs:
		printNames(stdout, "mac", crypto.MACNames())
		return nil
	case opts.listZips:
		printNames(stdout, "zip", crypto.ZipNames())
		return nil
	}

	req, err := buildEncodeReq(opts, os.Stdin)
	if err != nil {
		return err
	}

	c := client.New(client.DefaultSocketPath(opts.socketPath))
	cred, err := c.Encode(req)
	if err != nil {
		return err
	}

	out := stdout
	if opts.outputFile != "" && opts.outputFile != "-" {
		f, ferr := os.Create(opts.outputFile)
		if ferr != nil {
			return muerrors.Wrap(ferr, "open output")
		}
		defer f.Close()
		out = f
	}
	fmt.Fprintln(out, cred)
	return nil
}

func printNames(w io.Writer, kind string, names []string) {
	fmt.Fprintf(w, "%s types:\n", kind)
	for _, n := range names {
		fmt.Fprintf(w, "  %s\n", n)
	}
}

// buildEncodeReq turns the parsed flags into an encode request,
// resolving the payload source, the enum names, the restriction
// identities, and the TTL convention (0 means the daemon default,
// negative means the maximum).
func buildEncodeReq(opts *options, stdin io.Reader) (dispatcher.EncodeReq, error) {
	var req dispatcher.EncodeReq

	payload, err := readPayload(opts, stdin)
	if err != nil {
		return req, err
	}
	req.Payload = payload

	if req.Cipher, err = crypto.ParseCipher(opts.cipherName); err != nil {
		return req, muerrors.Wrap(muerrors.BadArg, fmt.Sprintf("invalid cipher %q", opts.cipherName))
	}
	if req.MAC, err = crypto.ParseMAC(opts.macName); err != nil {
		return req, muerrors.Wrap(muerrors.BadArg, fmt.Sprintf("invalid mac %q", opts.macName))
	}
	if req.Zip, err = crypto.ParseZip(opts.zipName); err != nil {
		return req, muerrors.Wrap(muerrors.BadArg, fmt.Sprintf("invalid zip %q", opts.zipName))
	}

	if req.UIDRestriction, err = resolveUID(opts.restrictUID); err != nil {
		return req, err
	}
	if req.GIDRestriction, err = resolveGID(opts.restrictGID); err != nil {
		return req, err
	}

	req.TTL = resolveTTL(opts.ttl)
	return req, nil
}

func readPayload(opts *options, stdin io.Reader) ([]byte, error) {
	set := 0
	for _, b := range []bool{opts.noInput, opts.inputString != "", opts.inputFile != ""} {
		if b {
			set++
		}
	}
	if set > 1 {
		return nil, muerrors.Wrap(muerrors.BadArg, "only one of --no-input, --string, --input may be given")
	}

	switch {
	case opts.noInput:
		return nil, nil
	case opts.inputString != "":
		return []byte(opts.inputString), nil
	case opts.inputFile != "" && opts.inputFile != "-":
		data, err := os.ReadFile(opts.inputFile)
		if err != nil {
			return nil, muerrors.Wrap(err, "read input")
		}
		return data, nil
	default:
		data, err := io.ReadAll(io.LimitReader(stdin, defs.MaxReqLen+1))
		if err != nil {
			return nil, muerrors.Wrap(err, "read stdin")
		}
		if len(data) > defs.MaxReqLen {
			return nil, muerrors.Wrap(muerrors.BadLength, "payload exceeds maximum request length")
		}
		return data, nil
	}
}

// resolveTTL maps the CLI convention onto seconds: 0 asks the daemon
// for its default, a negative value means the maximum permitted.
func resolveTTL(ttl int) time.Duration {
	switch {
	case ttl < 0:
		return defs.MaxTTL * time.Second
	default:
		return time.Duration(ttl) * time.Second
	}
}

func resolveUID(s string) (int64, error) {
	if s == "" {
		return credential.NoRestriction, nil
	}
	if n, err := strconv.ParseUint(s, 10, 32); err == nil {
		return int64(n), nil
	}
	u, err := user.Lookup(s)
	if err != nil {
		return 0, muerrors.Wrap(muerrors.BadArg, fmt.Sprintf("unknown user %q", s))
	}
	n, err := strconv.ParseUint(u.Uid, 10, 32)
	if err != nil {
		return 0, muerrors.Wrap(muerrors.BadArg, fmt.Sprintf("non-numeric uid for %q", s))
	}
	return int64(n), nil
}

func resolveGID(s string) (int64, error) {
	if s == "" {
		return credential.NoRestriction, nil
	}
	if n, err := strconv.ParseUint(s, 10, 32); err == nil {
		return int64(n), nil
	}
	g, err := user.LookupGroup(s)
	if err != nil {
		return 0, muerrors.Wrap(muerrors.BadArg, fmt.Sprintf("unknown group %q", s))
	}
	n, err := strconv.ParseUint(g.Gid, 10, 32)
	if err != nil {
		return 0, muerrors.Wrap(muerrors.BadArg, fmt.Sprintf("non-numeric gid for %q", s))
	}
	return int64(n), nil
}
