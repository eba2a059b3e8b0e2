package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	certService "oddcert/internal/certification/service"
	certPostgres "oddcert/internal/certification/store/postgres"
	"oddcert/internal/platform/config"
	"oddcert/internal/platform/logger"
	platformpg "oddcert/internal/platform/postgres"
)

var certificateEvidence bool

func init() {
	rootCmd.AddCommand(certificateCmd)
	certificateCmd.AddCommand(certificateVerifyCmd)
	certificateVerifyCmd.Flags().BoolVar(&certificateEvidence, "evidence", false, "Recompute the evidence hash from stored records")
}

var certificateCmd = &cobra.Command{
	Use:   "certificate",
	Short: "Inspect issued certificates",
}

var certificateVerifyCmd = &cobra.Command{
	Use:   "verify NUMBER",
	Short: "Check a certificate number against the database",
	Long: "Prints whether the certificate is currently valid. With --evidence the\n" +
		"stored evidence records of the issuing CAT-72 attempt are rehashed and\n" +
		"compared with the hash on the certificate.",
	Args: cobra.ExactArgs(1),
	RunE: runCertificateVerify,
}

func runCertificateVerify(cmd *cobra.Command, args []string) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	if cfg.Postgres.URL == "" {
		return errNoDatabase
	}
	ctx := cmd.Context()
	db, err := platformpg.Open(ctx, platformpg.Config{URL: cfg.Postgres.URL})
	if err != nil {
		return err
	}
	defer db.Close()

	pg := certPostgres.NewPostgres(db)
	svc := certService.New(
		certService.Stores{Applications: pg, Certificates: pg, Evidence: pg, Tx: pg},
		nil, nil,
		certService.WithLogger(logger.New(cfg.LogLevel, cfg.LogFormat)),
	)

	out := map[string]any{}
	verification, err := svc.Verify(ctx, args[0])
	if err != nil {
		return err
	}
	out["verification"] = verification
	if certificateEvidence {
		audit, err := svc.AuditEvidence(ctx, args[0])
		if err != nil {
			return err
		}
		out["evidence"] = audit
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
