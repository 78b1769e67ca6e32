package cli

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"orgsafe/internal/reader"
)

func newReadCmd(opts *globalOptions) *cobra.Command {
	var (
		encoding string
		maxBytes int64
		offset   int64
		showMeta bool
	)

	cmd := &cobra.Command{
		Use:   "read <path>",
		Short: "Print a file's content safely",
		Long: `Read prints a file inside the allowed directories. Symbolic links are
refused, credential files are blocked and the read is capped at the
configured limit.

Examples:
  orgsafe read ~/Documents/notes.txt
  orgsafe read --offset 1024 --max-bytes 4096 ~/Documents/big.log
  orgsafe read --encoding base64 --meta ~/Pictures/icon.png`,
		GroupID: "core",
		Args:    cobra.ExactArgs(1),
		RunE: withApp(opts, func(cmd *cobra.Command, a *app, args []string) error {
			enc, err := reader.ParseEncoding(encoding)
			if err != nil {
				return err
			}

			res, err := a.reader.Read(cmd.Context(), args[0], reader.ReadOptions{
				Encoding: enc,
				MaxBytes: maxBytes,
				Offset:   offset,
			})
			if err != nil {
				return err
			}

			w := out(cmd)
			if showMeta {
				printTitle(w, "%s", shortPath(res.Metadata.Path))
				printKV(w, "type", res.Metadata.MIMEType)
				printKV(w, "size", humanize.IBytes(uint64(res.Metadata.Size)))
				printKV(w, "read", fmt.Sprintf("%s from offset %d", humanize.IBytes(uint64(res.BytesRead)), offset))
				printKV(w, "sha256", res.Metadata.Checksum)
				if res.Truncated {
					printKV(w, "truncated", "yes, raise --max-bytes or use --offset for more")
				}
				fmt.Fprintln(w)
			}

			if enc == reader.EncodingBinary {
				_, err = w.Write(res.Data)
				return err
			}
			fmt.Fprint(w, res.Text)
			if res.Truncated && !showMeta {
				fmt.Fprintln(cmd.ErrOrStderr(), warnStyle.Render(fmt.Sprintf(
					"\n[truncated after %s of %s]", humanize.IBytes(uint64(res.BytesRead)), humanize.IBytes(uint64(res.Metadata.Size)))))
			}
			return nil
		}),
	}

	cmd.Flags().StringVarP(&encoding, "encoding", "e", "utf-8", "Output encoding: utf-8, base64 or binary")
	cmd.Flags().Int64Var(&maxBytes, "max-bytes", 0, "Maximum bytes to read (default: configured max_read_bytes)")
	cmd.Flags().Int64Var(&offset, "offset", 0, "Byte offset to start reading at")
	cmd.Flags().BoolVarP(&showMeta, "meta", "m", false, "Print metadata before the content")
	return cmd
}
