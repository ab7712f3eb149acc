package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/manningwu07/seq2seq/IO"
	"github.com/manningwu07/seq2seq/params"
	"github.com/manningwu07/seq2seq/seq2seq"
	"github.com/spf13/cobra"
)

func main() {
	params.ApplyEnv()
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: params.LogLevel()})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := NewCLI().ExecuteContext(ctx); err != nil {
		slog.Error(err.Error())
		stop()
		os.Exit(1)
	}
}

func appendEnvDocs(cmd *cobra.Command, envs []params.EnvVar) {
	if len(envs) == 0 {
		return
	}

	envUsage := `
Environment Variables:
`
	for _, e := range envs {
		envUsage += fmt.Sprintf("      %-24s   %s\n", e.Name, e.Description)
	}

	cmd.SetUsageTemplate(cmd.UsageTemplate() + envUsage)
}

func NewCLI() *cobra.Command {
	cobra.EnableCommandSorting = false
	cfg := &params.Config

	rootCmd := &cobra.Command{
		Use:           "seq2seq",
		Short:         "German to English translation with an attention seq2seq model",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}

	var workers int
	dropout := params.EncoderDefaults.Dropout
	trainCmd := &cobra.Command{
		Use:   "train",
		Short: "Train on a Multi30k style corpus",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("dropout") {
				params.EncoderDefaults.Dropout = dropout
				params.DecoderDefaults.Dropout = dropout
			}
			return TrainModel(cmd.Context(), workers)
		},
	}
	trainCmd.Flags().StringVar(&cfg.DataDir, "data", cfg.DataDir, "Directory holding {train,val,test}.{de,en}")
	trainCmd.Flags().StringVar(&cfg.LogCSV, "log", cfg.LogCSV, "Per-epoch loss log")
	trainCmd.Flags().IntVar(&cfg.MaxEpochs, "epochs", cfg.MaxEpochs, "Number of epochs")
	trainCmd.Flags().IntVar(&cfg.Patience, "patience", cfg.Patience, "Stop after this many epochs without validation improvement (0 disables)")
	trainCmd.Flags().IntVar(&cfg.BatchSize, "batch", cfg.BatchSize, "Sentence pairs per batch")
	trainCmd.Flags().Float64Var(&cfg.LearningRate, "lr", cfg.LearningRate, "Adam learning rate")
	trainCmd.Flags().Float64Var(&cfg.WeightDecay, "weight-decay", cfg.WeightDecay, "Decoupled weight decay")
	trainCmd.Flags().Float64Var(&cfg.GradClip, "clip", cfg.GradClip, "Global gradient norm limit (0 disables)")
	trainCmd.Flags().Float64Var(&cfg.TeacherForcing, "teacher-forcing", cfg.TeacherForcing, "Probability of feeding the ground truth token")
	trainCmd.Flags().IntVar(&cfg.MinFreq, "min-freq", cfg.MinFreq, "Minimum token frequency kept in the vocabulary")
	trainCmd.Flags().Uint64Var(&cfg.Seed, "seed", cfg.Seed, "Seed for initialisation, shuffling and teacher forcing")
	trainCmd.Flags().Float64Var(&dropout, "dropout", dropout, "Drop probability on embeddings and between encoder layers")
	trainCmd.Flags().IntVar(&workers, "workers", 0, "Concurrent evaluation workers (0 uses GOMAXPROCS)")

	translateCmd := &cobra.Command{
		Use:   "translate [sentence]",
		Short: "Translate a sentence, or read sentences from stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := loadCheckpoint(cfg.ModelPath)
			if err != nil {
				return err
			}
			if len(args) == 0 {
				return ChatCLI(cmd.Context(), m, cmd.InOrStdin(), cmd.OutOrStdout(), cfg.MaxDecodeLen)
			}
			tr, err := Translate(m, IO.GermanTokenizer(), strings.Join(args, " "), cfg.MaxDecodeLen)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTokens(tr.Output))
			return nil
		},
	}

	attentionCmd := &cobra.Command{
		Use:   "attention <sentence>",
		Short: "Translate a sentence and print its attention weights",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := loadCheckpoint(cfg.ModelPath)
			if err != nil {
				return err
			}
			tr, err := Translate(m, IO.GermanTokenizer(), strings.Join(args, " "), cfg.MaxDecodeLen)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintln(w, "predicted:", renderTokens(tr.Output))
			renderAttention(w, tr.Source, tr.Output, tr.Attention)
			return nil
		},
	}

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Plot the per-epoch losses of the last training run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			l, err := readLossLog(cfg.LogCSV)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintln(w, "train loss")
			asciiPlot(w, l.Train)
			fmt.Fprintln(w, "valid loss")
			asciiPlot(w, l.Valid)
			return nil
		},
	}
	historyCmd.Flags().StringVar(&cfg.LogCSV, "log", cfg.LogCSV, "Per-epoch loss log")

	vocabCmd := &cobra.Command{
		Use:   "vocab <vocab.json>",
		Short: "Summarise a vocabulary exported by train",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := IO.ImportVocabJSON(args[0])
			if err != nil {
				return err
			}
			renderVocab(cmd.OutOrStdout(), v, vocabHead)
			return nil
		},
	}

	for _, cmd := range []*cobra.Command{trainCmd, translateCmd, attentionCmd} {
		cmd.Flags().StringVar(&cfg.ModelPath, "model", cfg.ModelPath, "Checkpoint path")
	}
	for _, cmd := range []*cobra.Command{translateCmd, attentionCmd} {
		cmd.Flags().IntVar(&cfg.MaxDecodeLen, "max-len", cfg.MaxDecodeLen, "Maximum generated tokens")
	}

	envVars := params.AsMap()
	envs := []params.EnvVar{envVars["SEQ2SEQ_DEBUG"], envVars["SEQ2SEQ_MODEL"]}
	for _, cmd := range []*cobra.Command{trainCmd, translateCmd, attentionCmd, historyCmd} {
		switch cmd {
		case trainCmd:
			appendEnvDocs(cmd, append(envs, envVars["SEQ2SEQ_DATA"], envVars["SEQ2SEQ_SEED"]))
		case historyCmd:
			appendEnvDocs(cmd, envs[:1])
		default:
			appendEnvDocs(cmd, envs)
		}
	}

	rootCmd.AddCommand(trainCmd, translateCmd, attentionCmd, historyCmd, vocabCmd)
	return rootCmd
}

func loadCheckpoint(path string) (*seq2seq.Model, error) {
	m, _, err := seq2seq.LoadModel(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("no checkpoint at %s, run 'seq2seq train' first", path)
	}
	return m, err
}
