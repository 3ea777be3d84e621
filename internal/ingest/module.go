package ingest

import (
	"context"

	"dealerhub_backend/internal/audit"
	"dealerhub_backend/internal/events"
	apphttp "dealerhub_backend/internal/http"
	"dealerhub_backend/internal/ingest/handler"
	"dealerhub_backend/internal/ingest/repository"
	"dealerhub_backend/internal/ingest/service"
	"dealerhub_backend/internal/ingest/transport"
	"dealerhub_backend/platform/config"
	"dealerhub_backend/platform/logger"
	"dealerhub_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the bulk ingestion bounded context implementing http.Module.
type Module struct {
	handler     *handler.Handler
	supervisor  *Supervisor
	coordinator *service.Coordinator
}

// NewModule creates and initializes the ingest module with all its
// dependencies. archiver and recorder may be nil when object storage or the
// task queue is not configured; the module degrades to in-memory-only
// previews and no completion audit.
func NewModule(pool *pgxpool.Pool, eventBus events.Bus, archiver service.FileArchiver, recorder service.CompletionRecorder, val *validator.Validator, cfg *config.Config, log *logger.Logger) *Module {
	repo := repository.New(pool)
	resolver := service.NewResolver(repo)
	merger := service.NewMerger(repo)
	processor := service.NewProcessor(resolver, merger, log, cfg.GetProgressRowInterval())
	coordinator := service.NewCoordinator(processor, nil, recorder, eventBus, val, log, cfg)
	supervisor := NewSupervisor(coordinator, cfg, log)
	coordinator.AttachEmitter(supervisor)

	previewer := service.NewPreviewer(archiver, log)
	h := handler.New(previewer, coordinator, audit.New(pool), log)

	// Completed uploads are announced to every live session of the company.
	eventBus.Subscribe(events.UploadCompleted{}.EventName(), events.HandlerFunc(func(ctx context.Context, event events.Event) error {
		e, ok := event.(events.UploadCompleted)
		if !ok {
			return nil
		}
		supervisor.BroadcastToTenant(e.TenantID, transport.EventUploadActivity, transport.UploadActivityPayload{
			BatchID:   e.BatchID,
			UserID:    e.UserID.String(),
			TotalRows: e.TotalRows,
			Created:   e.Created,
			Updated:   e.Updated,
			Skipped:   e.Skipped,
			Errors:    e.ErrorCount,
		})
		return nil
	}))

	return &Module{
		handler:     h,
		supervisor:  supervisor,
		coordinator: coordinator,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "ingest"
}

// Coordinator exposes the upload coordinator for external use.
func (m *Module) Coordinator() *service.Coordinator {
	return m.coordinator
}

// RegisterRoutes mounts the REST endpoints and the websocket upgrade.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.Protected.Group("/ingest")
	m.handler.RegisterRoutes(group)

	// The websocket endpoint authenticates inside the upgrade handshake, so
	// it mounts outside the auth middleware.
	ctx.V1.GET("/ingest/ws", func(c *gin.Context) {
		m.supervisor.ServeHTTP(c.Writer, c.Request)
	})
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
