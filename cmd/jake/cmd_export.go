package main

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zaporter/jake/internal/conversation"
	"github.com/zaporter/jake/internal/training"
)

var exportOut string

// exportCmd compiles conversations into JSON Lines training data
var exportCmd = &cobra.Command{
	Use:   "export [conversation-id...]",
	Short: "Compile conversations into JSON Lines training data",
	Long: `Compile every eligible message into a training example and write one
{"text": ...} object per line. Without ids every conversation is exported.`,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "Output file (default training.output)")
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	kv, convs, err := openStore(ctx, false)
	if err != nil {
		return err
	}
	defer kv.Close()

	var selected []*conversation.Conversation
	if len(args) == 0 {
		if selected, err = convs.List(ctx); err != nil {
			return err
		}
	}
	for _, id := range args {
		c, err := getConversation(cmd, convs, id)
		if err != nil {
			return err
		}
		selected = append(selected, c)
	}

	fs := afero.NewOsFs()
	renderer, err := training.NewTemplateRenderer(fs, cfg.Training.TemplateDir)
	if err != nil {
		return err
	}
	exporter := training.NewExporter(training.NewCompiler(renderer, cfg.Training.Template), fs, cfg.Training.Concurrency)

	out := exportOut
	if out == "" {
		out = cfg.Training.Output
	}
	n, err := exporter.Export(ctx, out, selected)
	if err != nil {
		return err
	}

	logger.Info("training data exported", zap.String("path", out), zap.Int("examples", n), zap.Int("conversations", len(selected)))
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d example(s) from %d conversation(s) to %s\n", n, len(selected), out)
	return nil
}
