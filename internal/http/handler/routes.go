package handler

import (
	"database/sql"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"kbapi/internal/http/middleware"
	"kbapi/internal/repository"
	"kbapi/internal/service"
)

// Deps groups what the HTTP routes need.
type Deps struct {
	DB        *sql.DB
	Documents service.DocumentService
	Approver  Approver
	Access    AccessResolver
	Tenants   repository.TenantRepository
	Members   repository.MemberRepository
	// Gatherer backs /metrics; nil uses the default registry.
	Gatherer prometheus.Gatherer
}

// RegisterRoutes attaches HTTP routes to the provided Fiber app.
// Every document route is scoped to a tenant and passes the tenant guard.
func RegisterRoutes(app *fiber.App, d Deps) {
	gatherer := d.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	app.Get("/health", HealthCheck(d.DB))
	app.Get("/healthz", LivenessProbe())
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	tenant := app.Group("/tenants/:tenant", middleware.TenantGuard(d.Tenants, d.Members))
	admin := middleware.RequireAdmin()

	docs := tenant.Group("/documents")
	docs.Post("/", SubmitDocument(d.Documents))
	docs.Get("/", ListDocuments(d.Documents, d.Access))
	docs.Get("/:id", GetDocument(d.Documents, d.Access))
	docs.Delete("/:id", admin, DeleteDocument(d.Documents))
	docs.Post("/:id/versions", SubmitVersion(d.Documents))
	docs.Get("/:id/versions", admin, ListVersions(d.Documents))
	docs.Post("/:id/versions/:versionId/approve", admin, ApproveVersion(d.Approver))
	docs.Get("/:id/versions/:versionId/ingestion", admin, IngestionStatus(d.Approver))
	docs.Post("/:id/reject", admin, RejectDocument(d.Documents))
	docs.Put("/:id/tags", admin, SetDocumentTags(d.Documents))

	members := tenant.Group("/members", admin)
	members.Put("/:userId/tags", GrantTags(d.Access))
	members.Delete("/:userId/tags", RevokeTags(d.Access))
}
