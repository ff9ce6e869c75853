// Package app wires configuration, storage, services and handlers into
// one container. Construction order follows dependency order; Close
// releases resources in reverse.
package app

import (
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/trutina/internal/common"
	"github.com/ternarybob/trutina/internal/crypto"
	"github.com/ternarybob/trutina/internal/handlers"
	"github.com/ternarybob/trutina/internal/interfaces"
	"github.com/ternarybob/trutina/internal/scheduler"
	"github.com/ternarybob/trutina/internal/services/alerting"
	"github.com/ternarybob/trutina/internal/services/compare"
	"github.com/ternarybob/trutina/internal/services/embeddings"
	"github.com/ternarybob/trutina/internal/services/integrations"
	"github.com/ternarybob/trutina/internal/services/llm"
	"github.com/ternarybob/trutina/internal/services/monitor"
	"github.com/ternarybob/trutina/internal/services/pipeline"
	"github.com/ternarybob/trutina/internal/services/rag"
	"github.com/ternarybob/trutina/internal/services/regulatory"
	"github.com/ternarybob/trutina/internal/services/reports"
	"github.com/ternarybob/trutina/internal/services/stats"
	"github.com/ternarybob/trutina/internal/services/text2sql"
	"github.com/ternarybob/trutina/internal/services/training"
	"github.com/ternarybob/trutina/internal/storage/sqlite"
	"github.com/ternarybob/trutina/internal/vectorstore"
)

// App holds every constructed component for the lifetime of the process.
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	Manager *sqlite.Manager
	Cipher  *crypto.Cipher
	Vectors vectorstore.Store
	LLM     interfaces.LLMService

	Embedder     *embeddings.Service
	RAG          *rag.Service
	Regulatory   *regulatory.Service
	Runner       *pipeline.Runner
	Scheduler    *scheduler.Scheduler
	Maintenance  *scheduler.Maintenance
	Training     *training.Service
	Stats        *stats.Service
	Alerting     *alerting.Service
	Text2SQL     *text2sql.Service
	Integrations *integrations.Service
	Monitor      *monitor.Service
	Reports      *reports.Service
	Compare      *compare.Service

	SystemHandler      *handlers.SystemHandler
	DatasetHandler     *handlers.DatasetHandler
	StatsHandler       *handlers.StatsHandler
	ScoringHandler     *handlers.ScoringHandler
	TrainingHandler    *handlers.TrainingHandler
	IntegrationHandler *handlers.IntegrationHandler
	MonitorHandler     *handlers.MonitorHandler
	JobHandler         *handlers.JobHandler
	Text2SQLHandler    *handlers.Text2SQLHandler
	LogsHandler        *handlers.LogsHandler
	AlertHandler       *handlers.AlertHandler
	ProcessHandler     *handlers.ProcessHandler
	ReportHandler      *handlers.ReportHandler
	RegulatoryHandler  *handlers.RegulatoryHandler
	CompareHandler     *handlers.CompareHandler
	RAGHandler         *handlers.RAGHandler
}

// New constructs the full application. Any component failing to
// initialize aborts startup.
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	if err := cfg.EnsureDirs(); err != nil {
		return nil, err
	}

	manager, err := sqlite.NewManager(cfg, logger)
	if err != nil {
		return nil, err
	}

	cipher, err := crypto.New(cfg.Security.EncryptionKey, cfg.EncryptionKeyPath(), logger)
	if err != nil {
		manager.Close()
		return nil, err
	}

	vectors, err := vectorstore.New(cfg, logger)
	if err != nil {
		manager.Close()
		return nil, err
	}

	llmService, err := llm.NewLLMService(cfg, logger)
	if err != nil {
		vectors.Close()
		manager.Close()
		return nil, err
	}

	embedder := embeddings.NewService(llmService, cfg.RAG.EmbeddingDim, manager.Cache(), logger)
	ragService := rag.NewService(vectors, embedder, llmService, manager.Cache(), &cfg.RAG, logger)
	regulatoryService := regulatory.NewService(cfg, logger)

	runner := pipeline.NewRunner(cfg, manager.Preprocessing(), vectors, embedder, ragService, regulatoryService, logger)
	schedulerService := scheduler.New(cfg, manager.Jobs(), runner, logger)
	maintenance := scheduler.NewMaintenance(manager.Cache(), manager.Jobs(),
		time.Duration(cfg.Scheduler.OrphanGraceMinutes)*time.Minute, logger)

	a := &App{
		Config: cfg,
		Logger: logger,

		Manager: manager,
		Cipher:  cipher,
		Vectors: vectors,
		LLM:     llmService,

		Embedder:     embedder,
		RAG:          ragService,
		Regulatory:   regulatoryService,
		Runner:       runner,
		Scheduler:    schedulerService,
		Maintenance:  maintenance,
		Training:     training.NewService(manager.Datasets(), manager.Jobs(), cfg, logger),
		Stats:        stats.NewService(manager.Datasets(), cfg, logger),
		Alerting:     alerting.NewService(manager.Alerts(), manager.Audit(), cfg, logger),
		Text2SQL:     text2sql.NewService(cfg.AdminDBPath(), llmService, manager.Text2SQL(), logger),
		Integrations: integrations.NewService(manager.Integrations(), cipher, logger),
		Monitor:      monitor.NewService(cfg, logger),
		Reports:      reports.NewService(cfg, logger),
		Compare:      compare.NewService(cfg, logger),
	}

	a.SystemHandler = handlers.NewSystemHandler(manager, logger)
	a.DatasetHandler = handlers.NewDatasetHandler(manager.Datasets(), manager.Audit(), cfg, logger)
	a.StatsHandler = handlers.NewStatsHandler(a.Stats, logger)
	a.ScoringHandler = handlers.NewScoringHandler(cfg, logger)
	a.TrainingHandler = handlers.NewTrainingHandler(a.Training, manager.Jobs(), logger)
	a.IntegrationHandler = handlers.NewIntegrationHandler(a.Integrations, logger)
	a.MonitorHandler = handlers.NewMonitorHandler(a.Monitor, logger)
	a.JobHandler = handlers.NewJobHandler(manager.Jobs(), vectors, logger)
	a.Text2SQLHandler = handlers.NewText2SQLHandler(a.Text2SQL, logger)
	a.LogsHandler = handlers.NewLogsHandler(cfg, logger)
	a.AlertHandler = handlers.NewAlertHandler(manager.Alerts(), a.Alerting, logger)
	a.ProcessHandler = handlers.NewProcessHandler(schedulerService, logger)
	a.ReportHandler = handlers.NewReportHandler(a.Reports, logger)
	a.RegulatoryHandler = handlers.NewRegulatoryHandler(regulatoryService, logger)
	a.CompareHandler = handlers.NewCompareHandler(a.Compare, logger)
	a.RAGHandler = handlers.NewRAGHandler(ragService, logger)

	logger.Info().
		Str("vector_backend", cfg.Storage.VectorBackend).
		Str("llm_provider", string(cfg.LLM.Provider)).
		Msg("Application initialized")
	return a, nil
}

// Close releases storage resources. The scheduler is drained by the
// caller before Close.
func (a *App) Close() error {
	a.Maintenance.Stop()
	if err := a.Vectors.Close(); err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to close vector store")
	}
	return a.Manager.Close()
}
