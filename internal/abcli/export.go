package abcli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/spf13/cobra"

	"github.com/ligadeals/ligadeals-web/internal/abtest"
	"github.com/ligadeals/ligadeals-web/internal/abtest/sqlitestore"
	"github.com/ligadeals/ligadeals-web/internal/xerrors"
)

// Report is the document export writes.
type Report struct {
	GeneratedAt time.Time                           `json:"generatedAt"`
	Clients     int                                 `json:"clients"`
	Tests       map[string]map[string]abtest.Result `json:"tests"`
}

func (a *App) exportCmd() *cobra.Command {
	var bucket, key string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Upload a JSON results report to S3",
		Long: `Write results for every test, summed over all clients, to
s3://<bucket>/<key>. Without --s3-key the key is
<prefix>/ab-report-<UTC timestamp>.json.

Example:
  abctl export --s3-bucket ligadeals-reports`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if bucket == "" {
				return xerrors.New("--s3-bucket or LIGADEALS_AB_S3_BUCKET is required")
			}

			var rep Report
			err := a.withStore(func(s *sqlitestore.Store) error {
				ids, err := s.Clients(ctx)
				if err != nil {
					return err
				}
				rep.Clients = len(ids)
				rep.Tests, err = a.collect(ctx, s, "")
				return err
			})
			if err != nil {
				return err
			}
			rep.GeneratedAt = time.Now().UTC()

			body, err := json.MarshalIndent(rep, "", "  ")
			if err != nil {
				return xerrors.Wrap(err, "encode report")
			}
			if key == "" {
				key = path.Join(a.Config.S3Prefix, "ab-report-"+rep.GeneratedAt.Format("20060102T150405Z")+".json")
			}

			client, err := a.s3(ctx)
			if err != nil {
				return err
			}
			if _, err := client.PutObject(ctx, &s3.PutObjectInput{
				Bucket:      aws.String(bucket),
				Key:         aws.String(key),
				Body:        bytes.NewReader(body),
				ContentType: aws.String("application/json"),
			}); err != nil {
				return xerrors.Wrapf(err, "put s3://%s/%s", bucket, key)
			}

			a.logger.Info(ctx, "ab report exported", "bucket", bucket, "key", key, "tests", len(rep.Tests))
			fmt.Fprintf(cmd.OutOrStdout(), "exported %d test(s) to s3://%s/%s\n", len(rep.Tests), bucket, key)
			return nil
		},
	}
	cmd.Flags().StringVar(&bucket, "s3-bucket", a.Config.S3Bucket, "destination bucket")
	cmd.Flags().StringVar(&key, "s3-key", "", "destination key")
	return cmd
}

func (a *App) s3(ctx context.Context) (ObjectPutter, error) {
	if a.NewS3 != nil {
		return a.NewS3(ctx)
	}
	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, xerrors.Wrap(err, "load AWS config")
	}
	return s3.NewFromConfig(awsCfg), nil
}
