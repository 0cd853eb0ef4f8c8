package cmd

import (
	"fmt"

	"github.com/Unidata/tds-sub001/cli"
	"github.com/Unidata/tds-sub001/config"
	"github.com/Unidata/tds-sub001/errors"
	"github.com/Unidata/tds-sub001/internal/daemon/keyfile"
	"github.com/Unidata/tds-sub001/pkg/paths"
	"github.com/Unidata/tds-sub001/pkg/signer"
	"github.com/spf13/cobra"
)

// NewSignCmd creates the `sign` command.
func NewSignCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sign <url>",
		Short: "Sign a GET URL with the daemon's key",
		Long: `Prints a signature token for the URL, made with the key the running
daemon wrote at startup. Send it as "Authorization: Signature <token>".

Examples:
  curl -H "Authorization: Signature $(tdm sign 'http://localhost:8080/thredds/local/collection/trigger?collection=radar&trigger=never')" ...
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSigner(cmd)
			if err != nil {
				return err
			}
			token, err := s.GenerateSignatureGet(args[0])
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeSignatureMalformed, "cannot sign URL").WithDetail("url", args[0])
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	addKeyFlags(cmd)
	return cmd
}

// NewVerifyCmd creates the `verify` command.
func NewVerifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify <url> <token>",
		Short: "Check a signature token against a URL",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSigner(cmd)
			if err != nil {
				return err
			}
			ok, err := s.VerifySignatureGet(args[0], args[1])
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeSignatureMalformed, "cannot verify token")
			}
			if !ok {
				return errors.New(errors.ErrCodeSignatureInvalid, "signature does not match or has expired")
			}
			fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render("valid"))
			return nil
		},
	}
	addKeyFlags(cmd)
	return cmd
}

func addKeyFlags(cmd *cobra.Command) {
	cmd.Flags().String("key", "", "Key file (default: secret_key_file from config, then the runtime directory)")
	cmd.Flags().Duration("timeout", config.DefaultTokenTimeout, "Token lifetime used when verifying")
}

func loadSigner(cmd *cobra.Command) (*signer.Signer, error) {
	path, _ := cmd.Flags().GetString("key")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	if path == "" {
		path = paths.SecretKeyPath()
		if cfg, _, err := cli.LoadConfig(cmd); err == nil {
			if cfg.SecretKeyFile != "" {
				path = cfg.SecretKeyFile
			}
			if !cmd.Flags().Changed("timeout") {
				timeout = cfg.TokenTimeout.Std()
			}
		}
	}

	key, err := keyfile.Read(path)
	if err != nil {
		return nil, err
	}
	return signer.New(key, signer.WithTimeout(timeout)), nil
}
