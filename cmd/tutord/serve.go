package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tutord/internal/composer"
	"tutord/internal/config"
	"tutord/internal/coordinator"
	"tutord/internal/curriculum"
	"tutord/internal/decision"
	"tutord/internal/llm"
	"tutord/internal/memory"
	"tutord/internal/orchestrator"
	"tutord/internal/progress"
	"tutord/internal/server"
	"tutord/internal/session"
	"tutord/internal/specialist"
	"tutord/internal/transcript"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the tutoring server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd)
	},
}

func runServe(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	apiKey := ""
	if !cfg.Anthropic.UseBedrock {
		apiKey, err = config.GetAPIKey(cfg)
		if err != nil {
			return err
		}
	}

	client, err := llm.NewClient(llm.ClientConfig{
		APIKey:        apiKey,
		FastModel:     anthropic.Model(cfg.Anthropic.FastModel),
		DeepModel:     anthropic.Model(cfg.Anthropic.DeepModel),
		UseAWSBedrock: cfg.Anthropic.UseBedrock,
		AWSRegion:     cfg.Anthropic.AWSRegion,
		AWSProfile:    cfg.Anthropic.AWSProfile,
	})
	if err != nil {
		return fmt.Errorf("create model client: %w", err)
	}

	library, err := curriculum.NewLibrary(cfg.Curriculum.Dir, logger.Named("curriculum"))
	if err != nil {
		return fmt.Errorf("load curriculum: %w", err)
	}

	store := session.NewMemoryStore(session.MemoryStoreConfig{
		TTL:           cfg.Sessions.TTL,
		SweepInterval: cfg.Sessions.SweepInterval,
		Logger:        logger.Named("sessions"),
	})
	defer store.Close()

	var trans *transcript.Store
	if cfg.Transcript.Path != "" {
		trans, err = transcript.Open(cfg.Transcript.Path)
		if err != nil {
			return fmt.Errorf("open transcript: %w", err)
		}
		defer trans.Close()
	}

	registry := specialist.NewRegistry(
		specialist.NewExplainer(client),
		specialist.NewEvaluator(client),
		specialist.NewAssessor(client),
		specialist.NewSteering(client),
		specialist.NewPlanner(client),
	)

	orch := orchestrator.New(orchestrator.Config{
		Store:     store,
		Topics:    library,
		Generator: client,
		Window:    memory.NewWindow(cfg.Memory.WindowSize),
		Summarizer: memory.NewSummarizer(memory.SummarizerConfig{
			Generator: client,
			Logger:    logger.Named("summarizer"),
			Timeout:   cfg.Timeouts.Summary,
		}),
		Engine: decision.NewEngine(decision.EngineConfig{
			Generator: client,
			Logger:    logger.Named("decision"),
			Timeout:   cfg.Timeouts.Decision,
		}),
		Coordinator: coordinator.New(coordinator.Config{
			Registry: registry,
			Logger:   logger.Named("coordinator"),
			Timeout:  cfg.Timeouts.Specialist,
		}),
		Composer: composer.New(composer.Config{
			Generator: client,
			Logger:    logger.Named("composer"),
			Timeout:   cfg.Timeouts.Composer,
		}),
		Updater: progress.NewUpdater(progress.Config{
			LearningRate:         cfg.Mastery.LearningRate,
			PenaltyFactor:        cfg.Mastery.PenaltyFactor,
			RemediationThreshold: cfg.Mastery.RemediationThreshold,
			Logger:               logger.Named("progress"),
		}),
		Safety:      specialist.NewSafety(client),
		Transcript:  trans,
		Logger:      logger.Named("orchestrator"),
		TurnTimeout: cfg.Timeouts.Turn,
	})

	srv := server.New(server.Config{
		Addr:         cfg.Server.ListenAddr,
		Orchestrator: orch,
		Store:        store,
		Library:      library,
		Transcript:   trans,
		Logger:       logger.Named("server"),
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.ListenAndServe)
	if cfg.Curriculum.Watch {
		g.Go(func() error {
			err := library.Watch(gctx)
			if gctx.Err() != nil {
				return nil
			}
			return err
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server exited", zap.Error(err))
		return err
	}
	logger.Info("server stopped")
	return nil
}
