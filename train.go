package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/manningwu07/seq2seq/IO"
	"github.com/manningwu07/seq2seq/optimizations"
	"github.com/manningwu07/seq2seq/params"
	"github.com/manningwu07/seq2seq/seq2seq"
	"github.com/manningwu07/seq2seq/utils"
)

// TrainModel builds vocabularies from the training split, trains until
// MaxEpochs or early stopping, and reports the test loss of the best checkpoint.
func TrainModel(ctx context.Context, workers int) error {
	cfg := params.Config
	if cfg.TeacherForcing < 0 || cfg.TeacherForcing > 1 {
		return fmt.Errorf("teacher forcing ratio %v outside [0, 1]", cfg.TeacherForcing)
	}
	if cfg.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", cfg.BatchSize)
	}
	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed))

	splits, err := IO.LoadSplits(ctx, cfg.DataDir)
	if err != nil {
		return err
	}
	srcVocab := IO.BuildVocab(IO.SourceSentences(splits.Train), cfg.MinFreq)
	tgtVocab := IO.BuildVocab(IO.TargetSentences(splits.Train), cfg.MinFreq)
	slog.Info("loaded corpus",
		"train", len(splits.Train), "valid", len(splits.Valid), "test", len(splits.Test),
		"src_vocab", srcVocab.Size(), "tgt_vocab", tgtVocab.Size())

	dir := filepath.Dir(cfg.ModelPath)
	if err := IO.ExportVocabJSON(srcVocab, filepath.Join(dir, "vocab_de.json")); err != nil {
		return err
	}
	if err := IO.ExportVocabJSON(tgtVocab, filepath.Join(dir, "vocab_en.json")); err != nil {
		return err
	}

	m, err := seq2seq.NewModel(srcVocab, tgtVocab, params.EncoderDefaults, params.DecoderDefaults, rng)
	if err != nil {
		return err
	}
	opt := optimizations.NewAdam(cfg.LearningRate, cfg.AdamBeta1, cfg.AdamBeta2, cfg.AdamEps, cfg.WeightDecay)

	iter := func(exs []IO.Example, r *rand.Rand) *IO.BucketIterator {
		pairs := IO.NumericalizeExamples(exs, srcVocab, tgtVocab)
		return IO.NewBucketIterator(pairs, cfg.BatchSize, srcVocab.PadID(), tgtVocab.PadID(), r)
	}
	trainIt := iter(splits.Train, rng)
	validIt := iter(splits.Valid, nil)
	testIt := iter(splits.Test, nil)

	if err := os.MkdirAll(filepath.Dir(cfg.LogCSV), 0o755); err != nil {
		return fmt.Errorf("create loss log: %w", err)
	}
	logFile, err := os.Create(cfg.LogCSV)
	if err != nil {
		return fmt.Errorf("create loss log: %w", err)
	}
	defer logFile.Close()
	logw := csv.NewWriter(logFile)
	if err := logw.Write(lossLogHeader); err != nil {
		return err
	}

	best := math.Inf(1)
	stale := 0
	for epoch := 1; epoch <= cfg.MaxEpochs; epoch++ {
		start := time.Now()
		trainLoss, err := trainEpoch(ctx, m, opt, trainIt.Batches(), rng)
		if err != nil {
			return err
		}
		validLoss, err := seq2seq.EvaluateLoss(ctx, m, validIt.Batches(), workers)
		if err != nil {
			return err
		}
		slog.Info("epoch done",
			"epoch", epoch,
			"train_loss", fmt.Sprintf("%.3f", trainLoss),
			"train_ppl", fmt.Sprintf("%7.3f", math.Exp(trainLoss)),
			"valid_loss", fmt.Sprintf("%.3f", validLoss),
			"valid_ppl", fmt.Sprintf("%7.3f", math.Exp(validLoss)),
			"elapsed", time.Since(start).Round(time.Millisecond))

		if err := logw.Write([]string{
			strconv.Itoa(epoch),
			strconv.FormatFloat(trainLoss, 'f', 6, 64),
			strconv.FormatFloat(validLoss, 'f', 6, 64),
		}); err != nil {
			return err
		}
		logw.Flush()
		if err := logw.Error(); err != nil {
			return err
		}

		if validLoss < best {
			best, stale = validLoss, 0
			if err := seq2seq.SaveModel(m, opt, cfg.ModelPath); err != nil {
				return err
			}
			slog.Info("saved checkpoint", "path", cfg.ModelPath, "valid_loss", fmt.Sprintf("%.3f", validLoss))
			continue
		}
		stale++
		if cfg.Patience > 0 && stale >= cfg.Patience {
			slog.Info("early stopping", "epoch", epoch, "patience", cfg.Patience)
			break
		}
	}

	final := m
	if !math.IsInf(best, 1) {
		if final, _, err = seq2seq.LoadModel(cfg.ModelPath); err != nil {
			return err
		}
	}
	testLoss, err := seq2seq.EvaluateLoss(ctx, final, testIt.Batches(), workers)
	if err != nil {
		return err
	}
	slog.Info("test", "test_loss", fmt.Sprintf("%.3f", testLoss), "test_ppl", fmt.Sprintf("%7.3f", math.Exp(testLoss)))
	return nil
}

// trainEpoch runs one optimizer step per batch and returns the mean batch loss.
func trainEpoch(ctx context.Context, m *seq2seq.Model, opt *optimizations.Adam, batches []seq2seq.Batch, coin seq2seq.Coin) (float64, error) {
	if len(batches) == 0 {
		return 0, errors.New("no training batches")
	}
	cfg := params.Config
	ps := m.Params()
	total := 0.0
	for i, b := range batches {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		optimizations.ZeroGrad(ps)
		loss, _ := m.Loss(b, cfg.TeacherForcing, coin, true)
		if cfg.GradClip > 0 {
			utils.ClipGrads(cfg.GradClip, optimizations.Grads(ps)...)
		}
		opt.Step(ps)
		total += loss

		if cfg.Debug && cfg.DebugEvery > 0 && (i+1)%cfg.DebugEvery == 0 {
			utils.Debugf("step %d/%d loss=%.4f avg=%.4f", i+1, len(batches), loss, total/float64(i+1))
		}
	}
	return total / float64(len(batches)), nil
}
