// unmunge is the client-side credential decoder: it reads a credential
// string, asks the local munged daemon to validate it, and prints the
// authenticated identity metadata followed by the payload.
package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/yuyake44/munge/internal/client"
	"github.com/yuyake44/munge/internal/credential"
	"github.com/yuyake44/munge/internal/dispatcher"
	muerrors "github.com/yuyake44/munge/internal/errors"
)

var version = "dev"

func main() {
	var (
		inputFile  string
		outputFile string
		noOutput   bool
		socketPath string
	)

	rootCmd := &cobra.Command{
		Use:     "unmunge",
		Short:   "MUNGE credential decoder",
		Long:    "unmunge validates a credential via the local munged daemon and\nprints the originator's UID/GID, the credential metadata, and the payload.",
		Version: version,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cred, err := readCredential(inputFile, os.Stdin)
			if err != nil {
				return err
			}

			c := client.New(client.DefaultSocketPath(socketPath))
			resp, err := c.Decode(cred)
			if err != nil {
				return err
			}

			if noOutput {
				return nil
			}
			out := cmd.OutOrStdout()
			if outputFile != "" && outputFile != "-" {
				f, ferr := os.Create(outputFile)
				if ferr != nil {
					return muerrors.Wrap(ferr, "open output")
				}
				defer f.Close()
				out = f
			}
			printDecodeResp(out, resp)
			return nil
		},
	}

	flags := rootCmd.Flags()
	flags.StringVarP(&inputFile, "input", "i", "", "input credential from the given file (\"-\" for stdin)")
	flags.StringVarP(&outputFile, "output", "o", "", "output metadata and payload to the given file")
	flags.BoolVarP(&noOutput, "no-output", "n", false, "discard all output; exit status alone reports validity")
	flags.StringVarP(&socketPath, "socket", "S", "", "socket path of the munged daemon")

	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "unmunge: %v\n", err)
		os.Exit(muerrors.KindOf(err).ExitStatus())
	}
}

func readCredential(inputFile string, stdin io.Reader) (string, error) {
	var data []byte
	var err error
	if inputFile != "" && inputFile != "-" {
		data, err = os.ReadFile(inputFile)
	} else {
		data, err = io.ReadAll(stdin)
	}
	if err != nil {
		return "", muerrors.Wrap(err, "read credential")
	}
	cred := strings.TrimSpace(string(data))
	if cred == "" {
		return "", muerrors.Wrap(muerrors.BadCred, "no credential supplied")
	}
	return cred, nil
}

func printDecodeResp(w io.Writer, resp dispatcher.DecodeResp) {
	fmt.Fprintf(w, "STATUS:          %s (%d)\n", resp.Status, int(resp.Status))
	fmt.Fprintf(w, "ENCODE_TIME:     %s\n", resp.EncodeTime.Format(time.RFC3339))
	fmt.Fprintf(w, "TTL:             %d\n", int(resp.TTL/time.Second))
	fmt.Fprintf(w, "UID:             %d\n", resp.UID)
	fmt.Fprintf(w, "GID:             %d\n", resp.GID)
	fmt.Fprintf(w, "UID_RESTRICTION: %s\n", restrictionString(resp.UIDRestriction))
	fmt.Fprintf(w, "GID_RESTRICTION: %s\n", restrictionString(resp.GIDRestriction))
	fmt.Fprintf(w, "LENGTH:          %d\n", len(resp.Payload))
	if len(resp.Payload) > 0 {
		fmt.Fprintf(w, "\n%s", resp.Payload)
	}
}

func restrictionString(v int64) string {
	if v == credential.NoRestriction {
		return "NONE"
	}
	return fmt.Sprintf("%d", v)
}
