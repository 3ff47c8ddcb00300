package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/majorcontext/bastion/internal/secretbox"
	"github.com/majorcontext/bastion/internal/store"
)

var secretsCmd = &cobra.Command{
	Use:   "secrets",
	Short: "Manage encrypted stored fields",
}

var secretsMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Encrypt any plaintext sensitive fields at rest",
	Long: `Walk every stored record and encrypt sensitive fields that are still in
plaintext. Already-encrypted values are left untouched, so running the
migration twice changes nothing on the second pass.`,
	RunE: runSecretsMigrate,
}

func init() {
	rootCmd.AddCommand(secretsCmd)
	secretsCmd.AddCommand(secretsMigrateCmd)
}

func runSecretsMigrate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	records, err := a.records.List(ctx)
	if err != nil {
		return err
	}

	migrated := 0
	for _, rec := range records {
		changed, err := encryptRecord(rec, a.credCodec, a.piiCodec)
		if err != nil {
			return fmt.Errorf("migrating record %s: %w", rec.UserID, err)
		}
		if !changed {
			continue
		}
		if err := a.records.Upsert(ctx, rec); err != nil {
			return err
		}
		migrated++
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%d of %d records migrated\n", migrated, len(records))
	return nil
}

// encryptRecord encrypts any plaintext sensitive fields in place and reports
// whether the record changed.
func encryptRecord(rec *store.Record, credCodec, piiCodec *secretbox.Codec) (bool, error) {
	changed := false

	for _, field := range []*string{&rec.Credential, &rec.TelegramToken, &rec.GatewayToken} {
		value, didEncrypt, err := credCodec.EncryptIfNeeded(*field)
		if err != nil {
			return false, err
		}
		if didEncrypt {
			*field = value
			changed = true
		}
	}

	value, didEncrypt, err := piiCodec.EncryptIfNeeded(rec.Email)
	if err != nil {
		return false, err
	}
	if didEncrypt {
		rec.Email = value
		changed = true
	}

	return changed, nil
}
