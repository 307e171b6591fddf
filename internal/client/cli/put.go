package cli

import (
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/bridgeupload/internal/client/models"
	"github.com/dmitrijs2005/bridgeupload/internal/filex"
	"github.com/dmitrijs2005/bridgeupload/internal/netx"
	"github.com/spf13/cobra"
)

func newPutCommand(app func() *App) *cobra.Command {
	var file, metadata string
	var wait bool

	cmd := &cobra.Command{
		Use:   "put",
		Short: "Upload a file and complete it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := app()
			ctx := cmd.Context()

			f, err := filex.ReadForUpload(file)
			if err != nil {
				return err
			}

			var meta json.RawMessage
			if metadata != "" {
				var obj map[string]any
				if err := json.Unmarshal([]byte(metadata), &obj); err != nil {
					return fmt.Errorf("--metadata must be a JSON object: %w", err)
				}
				meta = json.RawMessage(metadata)
			}

			session, err := a.api.CreateUpload(ctx, models.UploadRequest{
				Name:          f.Name,
				ContentLength: int64(len(f.Data)),
				ContentMD5:    f.ContentMD5,
				ContentType:   f.ContentType,
				Metadata:      meta,
			})
			if err != nil {
				return fmt.Errorf("request upload: %w", err)
			}

			if err := netx.UploadToPresignedURL(ctx, a.http, session.URL, f.Data, f.ContentMD5, f.ContentType); err != nil {
				return fmt.Errorf("upload %s: %w", session.ID, err)
			}

			st, err := a.api.CompleteUpload(ctx, session.ID, wait)
			if err != nil {
				return fmt.Errorf("complete upload %s: %w", session.ID, err)
			}

			if st == nil {
				fmt.Fprintln(a.out, session.ID)
				return nil
			}
			a.printStatus(st)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "File to upload")
	cmd.Flags().StringVar(&metadata, "metadata", "", "Upload metadata as a JSON object")
	cmd.Flags().BoolVar(&wait, "wait", false, "Wait for validation to finish")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}
