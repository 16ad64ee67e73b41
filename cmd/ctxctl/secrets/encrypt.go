// Package secrets implements the encrypt-layer command.
package secrets

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/dobrovols/ctxctl/pkg/fragment"
	secrethandler "github.com/dobrovols/ctxctl/pkg/secrets"
)

var (
	isTerminal   = term.IsTerminal
	readPassword = term.ReadPassword
	stdinFD      = func() int { return int(os.Stdin.Fd()) }
)

// EncryptedLayerSuffix is appended to the input path when --output is omitted.
const EncryptedLayerSuffix = ".enc"

type encryptOptions struct {
	LayerPath  string
	OutputPath string
	Passphrase string
	Overwrite  bool
	Format     string
}

// NewEncryptCommand returns the `ctxctl encrypt-layer` command implementation.
// The layer file is a positional argument; the output defaults to the layer
// path with an ".enc" suffix so encrypted layers sit next to their source.
func NewEncryptCommand() *cobra.Command {
	opts := encryptOptions{}

	cmd := &cobra.Command{
		Use:   "encrypt-layer LAYER_FILE",
		Short: "Encrypt a plaintext personal layer for safe distribution",
		Long: "Encrypt a plaintext personal layer file so it can be committed or " +
			"distributed alongside shared configuration. The layer must parse as " +
			"a YAML or JSON mapping; profiles reference the encrypted file like " +
			"any other layer and decrypt it at resolution time.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			opts.LayerPath = args[0]
			return runEncryptCommand(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.OutputPath, "output", "", "Destination for the encrypted layer (default LAYER_FILE.enc)")
	cmd.Flags().StringVar(&opts.Passphrase, "passphrase", "", "Encryption passphrase (interactive prompt if omitted)")
	cmd.Flags().BoolVar(&opts.Overwrite, "confirm", false, "Allow overwriting an existing output file")
	cmd.Flags().StringVar(&opts.Format, "format", "text", "Output format: text or json")

	return cmd
}

func runEncryptCommand(cmd *cobra.Command, opts encryptOptions) error {
	output, err := resolveOutputPath(opts)
	if err != nil {
		return err
	}
	format, err := normalizeEncryptFormat(opts.Format)
	if err != nil {
		return err
	}
	if err := checkLayerPlaintext(opts.LayerPath); err != nil {
		return err
	}
	passphrase, err := resolvePassphrase(cmd.ErrOrStderr(), opts.Passphrase)
	if err != nil {
		return err
	}

	result, err := secrethandler.EncryptFile(secrethandler.EncryptOptions{
		InputPath:  opts.LayerPath,
		OutputPath: output,
		Passphrase: passphrase,
		Overwrite:  opts.Overwrite,
	})
	if err != nil {
		return err
	}

	return renderEncryptResult(cmd, format, result)
}

// resolveOutputPath applies the ".enc" sibling default and refuses an output
// identical to the input, which would clobber the plaintext.
func resolveOutputPath(opts encryptOptions) (string, error) {
	layer := strings.TrimSpace(opts.LayerPath)
	if layer == "" {
		return "", secrethandler.NewError(secrethandler.ErrCodeValidation, errors.New("layer file path is required"))
	}
	output := strings.TrimSpace(opts.OutputPath)
	if output == "" {
		output = layer + EncryptedLayerSuffix
	}
	if output == layer {
		return "", secrethandler.NewError(secrethandler.ErrCodeValidation, errors.New("output path must differ from the layer file"))
	}
	return output, nil
}

// checkLayerPlaintext rejects inputs that are already envelopes or that do
// not parse as a layer mapping. Encrypting a broken layer would only surface
// the problem at resolution time, after the plaintext is gone.
func checkLayerPlaintext(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return secrethandler.NewError(secrethandler.ErrCodeValidation, fmt.Errorf("read layer file: %w", err))
	}
	if secrethandler.IsEncrypted(data) {
		return secrethandler.NewError(secrethandler.ErrCodeValidation, fmt.Errorf("%s is already encrypted", path))
	}
	if _, err := fragment.Parse(data, path, "plaintext"); err != nil {
		return secrethandler.NewError(secrethandler.ErrCodeValidation, fmt.Errorf("layer does not parse: %w", err))
	}
	return nil
}

func normalizeEncryptFormat(format string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(format))
	if normalized == "" {
		normalized = "text"
	}
	if normalized != "text" && normalized != "json" {
		return "", secrethandler.NewError(secrethandler.ErrCodeValidation, fmt.Errorf("unsupported format %q", normalized))
	}
	return normalized, nil
}

func resolvePassphrase(writer io.Writer, provided string) (string, error) {
	if strings.TrimSpace(provided) != "" {
		return provided, nil
	}
	passphrase, err := promptForPassphrase(writer)
	if err != nil {
		return "", secrethandler.NewError(secrethandler.ErrCodeValidation, err)
	}
	return passphrase, nil
}

func renderEncryptResult(cmd *cobra.Command, format string, result *secrethandler.EncryptResult) error {
	if result == nil {
		return secrethandler.NewError(secrethandler.ErrCodeEncryption, errors.New("encryption result is nil"))
	}
	switch format {
	case "json":
		payload := map[string]string{
			"outputPath": result.OutputPath,
			"checksum":   result.Checksum,
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(payload); err != nil {
			return secrethandler.NewError(secrethandler.ErrCodeEncryption, err)
		}
	default:
		fmt.Fprintf(cmd.OutOrStdout(), "Encrypted layer written to %s\nChecksum: %s\n", result.OutputPath, result.Checksum)
	}
	return nil
}

func promptForPassphrase(writer io.Writer) (string, error) {
	fd := stdinFD()
	if !isTerminal(fd) {
		return "", errors.New("passphrase must be provided via --passphrase in non-interactive mode")
	}

	fmt.Fprint(writer, "Enter passphrase: ")
	pass1, err := readPassword(fd)
	fmt.Fprintln(writer)
	if err != nil {
		return "", err
	}

	fmt.Fprint(writer, "Confirm passphrase: ")
	pass2, err := readPassword(fd)
	fmt.Fprintln(writer)
	if err != nil {
		zero(pass1)
		return "", err
	}

	if !bytes.Equal(pass1, pass2) {
		zero(pass1)
		zero(pass2)
		return "", errors.New("passphrases do not match")
	}

	passphrase := string(pass1)
	zero(pass1)
	zero(pass2)
	return passphrase, nil
}

func zero(buf []byte) {
	for i := range buf {
		buf[i] = 0
	}
}
