package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"oddcert/internal/boundary"
)

var (
	envelopeFormat string
	envelopeTo     string
	envelopeOutput string
)

func init() {
	rootCmd.AddCommand(envelopeCmd)
	envelopeCmd.AddCommand(envelopeValidateCmd)
	envelopeCmd.AddCommand(envelopeConvertCmd)
	envelopeCmd.PersistentFlags().StringVar(&envelopeFormat, "format", "", "Input format (json|yaml); defaults to the file extension")
	envelopeConvertCmd.Flags().StringVar(&envelopeTo, "to", "", "Output format (json|yaml) (required)")
	envelopeConvertCmd.Flags().StringVarP(&envelopeOutput, "output", "o", "", "Write to file instead of stdout")
	envelopeConvertCmd.MarkFlagRequired("to")
}

var envelopeCmd = &cobra.Command{
	Use:   "envelope",
	Short: "Work with operating envelope documents offline",
}

var envelopeValidateCmd = &cobra.Command{
	Use:   "validate FILE",
	Short: "Check an envelope document",
	Long: "Parses the document with the same rules the API applies and lists its\n" +
		"boundaries. Exit code 1 if the document is invalid.",
	Args: cobra.ExactArgs(1),
	RunE: runEnvelopeValidate,
}

var envelopeConvertCmd = &cobra.Command{
	Use:   "convert FILE",
	Short: "Convert an envelope between JSON and YAML",
	Args:  cobra.ExactArgs(1),
	RunE:  runEnvelopeConvert,
}

func runEnvelopeValidate(cmd *cobra.Command, args []string) error {
	env, err := readEnvelope(args[0])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: %d boundaries, violation_action=%s connection_loss_action=%s\n",
		args[0], len(env.Boundaries), env.FailPolicy.ViolationAction, env.FailPolicy.ConnectionLossAction)
	for _, b := range env.Boundaries {
		fmt.Fprintf(out, "  %-24s %s\n", b.ID, b.Kind())
	}
	return nil
}

func runEnvelopeConvert(cmd *cobra.Command, args []string) error {
	to, err := boundary.ParseFormat(envelopeTo)
	if err != nil {
		return err
	}
	env, err := readEnvelope(args[0])
	if err != nil {
		return err
	}
	data, err := boundary.Encode(env, to)
	if err != nil {
		return err
	}
	if envelopeOutput == "" {
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}
	return os.WriteFile(envelopeOutput, data, 0o644)
}

func readEnvelope(path string) (*boundary.Envelope, error) {
	format, err := inputFormat(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	env, err := boundary.Decode(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return env, nil
}

func inputFormat(path string) (boundary.Format, error) {
	if envelopeFormat != "" {
		return boundary.ParseFormat(envelopeFormat)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return boundary.FormatYAML, nil
	default:
		return boundary.FormatJSON, nil
	}
}
