package app

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/darshan-rambhia/netutil"
)

func newUploadCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "upload LOCAL_DIR REMOTE_DIR",
		Short: "Upload every file under a local folder to a remote folder",
		Long: `Upload every file found under LOCAL_DIR, recursively, into REMOTE_DIR.
Files are flattened to their base names. Names matching --ignore are skipped.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := o.sftpClient()
			if err != nil {
				return err
			}
			defer o.destroy(client)

			result, err := client.UploadFiles(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			printSummary(cmd.OutOrStdout(), "uploaded", result, false)
			return nil
		},
	}
}

func newDownloadCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "download REMOTE_DIR LOCAL_DIR",
		Short: "Download every file in a remote folder to a local folder",
		Long: `Download every file listed in REMOTE_DIR into LOCAL_DIR, overwriting
existing local files. Remote subfolders and names matching --ignore are skipped.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := o.sftpClient()
			if err != nil {
				return err
			}
			defer o.destroy(client)

			result, err := client.DownloadFiles(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			printSummary(cmd.OutOrStdout(), "downloaded", result, true)
			return nil
		},
	}
}

func (o *rootOptions) destroy(client *netutil.Client) {
	if err := client.Close(); err != nil {
		o.logger.Warn("failed to close SFTP session", "error", err)
	}
}

func printSummary(w io.Writer, verb string, result *netutil.TransferResult, download bool) {
	for _, f := range result.Files {
		from, to := f.LocalPath, f.RemotePath
		if download {
			from, to = to, from
		}
		note := ""
		if f.Overwritten {
			note = ", overwritten"
		}
		fmt.Fprintf(w, "%s -> %s (%d bytes%s)\n", from, to, f.Size, note)
	}
	fmt.Fprintf(w, "%s %d files (%d bytes), skipped %d\n", verb, result.Transferred, result.TotalSize, result.Skipped)
}
