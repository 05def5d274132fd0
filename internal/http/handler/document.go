package handler

import (
	"context"
	"mime"
	"mime/multipart"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"kbapi/internal/http/middleware"
	"kbapi/internal/ingest"
	"kbapi/internal/model"
	"kbapi/internal/service"
)

// Approver runs approvals through the ingestion pipeline.
type Approver interface {
	Approve(ctx context.Context, tenantID, documentID, versionID, adminUserID string) (*ingest.Result, error)
	ApproveAsync(ctx context.Context, tenantID, documentID, versionID, adminUserID string) (ingest.Job, error)
	Job(versionID string) (ingest.Job, bool)
}

// AccessResolver decides which documents a member may read and manages
// member tag grants.
type AccessResolver interface {
	CanAccess(ctx context.Context, userID, tenantID, documentID string) (bool, error)
	Filter(ctx context.Context, userID, tenantID string, docs []model.Document) ([]model.Document, error)
	Grant(ctx context.Context, tenantID, userID string, names []string) error
	Revoke(ctx context.Context, tenantID, userID string, names []string) error
}

type submitForm struct {
	Name        string   `form:"name" validate:"required_without=DocumentID,max=255"`
	Description string   `form:"description" validate:"max=4000"`
	DocumentID  string   `form:"document_id" validate:"omitempty,uuid"`
	Tags        []string `form:"tags" validate:"max=32,dive,required,max=64"`
}

type rejectRequest struct {
	// Blank reasons are refused by the store as an invalid state.
	Reason string `json:"reason" validate:"max=2000"`
}

type tagsRequest struct {
	Tags []string `json:"tags" validate:"max=32,dive,required,max=64"`
}

// articleResponse is what a reader gets for an approved document.
type articleResponse struct {
	Document    *model.Document        `json:"document"`
	Version     *model.DocumentVersion `json:"version"`
	DownloadURL string                 `json:"download_url"`
}

type versionsResponse struct {
	Items []model.DocumentVersion `json:"data"`
}

type tagListResponse struct {
	Items []model.AccessTag `json:"data"`
}

// SubmitDocument creates a document with its first PENDING version.
//
// @Summary  Submit a document
// @Tags     documents
// @Accept   multipart/form-data
// @Produce  json
// @Param    tenant      path     string true  "Tenant subdomain"
// @Param    file        formData file   true  "Document file"
// @Param    name        formData string false "Document name"
// @Param    description formData string false "Document description"
// @Param    tags        formData []string false "Access tags"
// @Success  201 {object} model.DocumentVersion
// @Failure  400 {object} errorPayload
// @Failure  409 {object} errorPayload
// @Router   /tenants/{tenant}/documents [post]
func SubmitDocument(svc service.DocumentService) fiber.Handler {
	return submit(svc, false)
}

// SubmitVersion adds a new PENDING version to an existing document.
//
// @Summary  Submit a new version
// @Tags     documents
// @Accept   multipart/form-data
// @Produce  json
// @Param    tenant path     string true "Tenant subdomain"
// @Param    id     path     string true "Document ID"
// @Param    file   formData file   true "Document file"
// @Success  201 {object} model.DocumentVersion
// @Failure  409 {object} errorPayload
// @Router   /tenants/{tenant}/documents/{id}/versions [post]
func SubmitVersion(svc service.DocumentService) fiber.Handler {
	return submit(svc, true)
}

func submit(svc service.DocumentService, existing bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		fh, err := c.FormFile("file")
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "FILE_REQUIRED", "file is required")
		}

		var form submitForm
		if err := c.BodyParser(&form); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_FORM", "invalid form data")
		}
		if existing {
			id, ok := documentID(c)
			if !ok {
				return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
			}
			form.DocumentID = id
		}
		if err := validate.Struct(form); err != nil {
			return validationError(c, err)
		}

		f, err := fh.Open()
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "FILE_OPEN_ERROR", "cannot open uploaded file")
		}
		defer f.Close()

		tenant, member := middleware.CurrentTenant(c), middleware.CurrentMember(c)
		v, err := svc.Submit(c.UserContext(), tenant.ID, member.UserID, f, model.SubmitMetadata{
			DocumentID:   form.DocumentID,
			Name:         form.Name,
			Description:  form.Description,
			MimeType:     contentType(fh),
			OriginalName: fh.Filename,
			Size:         fh.Size,
			Tags:         form.Tags,
		})
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(v)
	}
}

// contentType prefers the part's declared type and falls back to the file
// extension when the client sent none or a generic one.
func contentType(fh *multipart.FileHeader) string {
	ct := fh.Header.Get("Content-Type")
	if ct == "" || ct == "application/octet-stream" {
		if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(fh.Filename))); byExt != "" {
			return byExt
		}
	}
	if ct == "" {
		return "application/octet-stream"
	}
	return ct
}

// ListDocuments lists documents. Admins see every status and may filter by
// it; members only see approved documents they can access.
//
// @Summary  List documents
// @Tags     documents
// @Produce  json
// @Param    tenant path  string true  "Tenant subdomain"
// @Param    status query string false "PENDING, APPROVED or REJECTED (admins only)"
// @Param    limit  query int    false "Page size"
// @Param    offset query int    false "Page offset"
// @Success  200 {object} service.DocumentListResult
// @Router   /tenants/{tenant}/documents [get]
func ListDocuments(svc service.DocumentService, acc AccessResolver) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var f service.ListFilter
		if q := c.Query("limit"); q != "" {
			limit, err := strconv.Atoi(q)
			if err != nil {
				return writeError(c, fiber.StatusBadRequest, "INVALID_LIMIT", "invalid limit")
			}
			f.Limit = limit
		}
		if q := c.Query("offset"); q != "" {
			offset, err := strconv.Atoi(q)
			if err != nil {
				return writeError(c, fiber.StatusBadRequest, "INVALID_OFFSET", "invalid offset")
			}
			f.Offset = offset
		}

		tenant, member := middleware.CurrentTenant(c), middleware.CurrentMember(c)
		ctx := c.UserContext()
		if member.IsAdmin() {
			f.Status = model.Status(strings.ToUpper(c.Query("status")))
		} else {
			f.Status = model.StatusApproved
			f.VisibleTo = member.UserID
		}

		res, err := svc.List(ctx, tenant.ID, f)
		if err != nil {
			return respondError(c, err)
		}
		// The query already applies the grants; the resolver re-checks the
		// page in case a grant was revoked between the two reads.
		if !member.IsAdmin() {
			visible, err := acc.Filter(ctx, member.UserID, tenant.ID, res.Items)
			if err != nil {
				return respondError(c, err)
			}
			res = &service.DocumentListResult{
				Items: visible,
				Total: res.Total - (len(res.Items) - len(visible)),
			}
		}
		return c.JSON(res)
	}
}

// GetDocument returns the approved content of a document to a reader who
// passes the access tag check.
//
// @Summary  Read an approved document
// @Tags     documents
// @Produce  json
// @Param    tenant path string true "Tenant subdomain"
// @Param    id     path string true "Document ID"
// @Success  200 {object} articleResponse
// @Failure  403 {object} errorPayload
// @Failure  404 {object} errorPayload
// @Router   /tenants/{tenant}/documents/{id} [get]
func GetDocument(svc service.DocumentService, acc AccessResolver) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := documentID(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		tenant, member := middleware.CurrentTenant(c), middleware.CurrentMember(c)
		ctx := c.UserContext()

		allowed, err := acc.CanAccess(ctx, member.UserID, tenant.ID, id)
		if err != nil {
			return respondError(c, err)
		}
		if !allowed {
			return writeError(c, fiber.StatusForbidden, "FORBIDDEN", "not permitted: document requires an access tag you do not hold")
		}

		doc, err := svc.Get(ctx, tenant.ID, id)
		if err != nil {
			return respondError(c, err)
		}
		v, err := svc.GetActive(ctx, tenant.ID, id)
		if err != nil {
			return respondError(c, err)
		}
		url, err := svc.DownloadURL(ctx, v)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(articleResponse{Document: doc, Version: v, DownloadURL: url})
	}
}

// ListVersions returns a document's version history, newest first.
//
// @Summary  Version history
// @Tags     documents
// @Produce  json
// @Param    tenant path string true "Tenant subdomain"
// @Param    id     path string true "Document ID"
// @Success  200 {object} versionsResponse
// @Router   /tenants/{tenant}/documents/{id}/versions [get]
func ListVersions(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := documentID(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		versions, err := svc.ListVersions(c.UserContext(), middleware.CurrentTenant(c).ID, id)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(versionsResponse{Items: versions})
	}
}

// ApproveVersion ingests a PENDING version and approves it once its chunks
// are stored. With async=true the work is queued and 202 returns the job.
//
// @Summary  Approve a version
// @Tags     approval
// @Produce  json
// @Param    tenant    path  string true  "Tenant subdomain"
// @Param    id        path  string true  "Document ID"
// @Param    versionId path  string true  "Version ID"
// @Param    async     query bool   false "Queue the approval"
// @Success  200 {object} ingest.Result
// @Success  202 {object} ingest.Job
// @Failure  409 {object} errorPayload
// @Failure  422 {object} errorPayload
// @Failure  502 {object} errorPayload
// @Router   /tenants/{tenant}/documents/{id}/versions/{versionId}/approve [post]
func ApproveVersion(appr Approver) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, versionID, ok := versionParams(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		tenant, member := middleware.CurrentTenant(c), middleware.CurrentMember(c)

		if c.QueryBool("async") {
			job, err := appr.ApproveAsync(c.UserContext(), tenant.ID, id, versionID, member.UserID)
			if err != nil {
				return respondError(c, err)
			}
			return c.Status(fiber.StatusAccepted).JSON(job)
		}

		res, err := appr.Approve(c.UserContext(), tenant.ID, id, versionID, member.UserID)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(res)
	}
}

// IngestionStatus reports the asynchronous approval of a version.
//
// @Summary  Ingestion job status
// @Tags     approval
// @Produce  json
// @Param    tenant    path string true "Tenant subdomain"
// @Param    id        path string true "Document ID"
// @Param    versionId path string true "Version ID"
// @Success  200 {object} ingest.Job
// @Failure  404 {object} errorPayload
// @Router   /tenants/{tenant}/documents/{id}/versions/{versionId}/ingestion [get]
func IngestionStatus(appr Approver) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, versionID, ok := versionParams(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		job, found := appr.Job(versionID)
		if !found || job.TenantID != middleware.CurrentTenant(c).ID || job.DocumentID != id {
			return writeError(c, fiber.StatusNotFound, "NOT_FOUND", "no ingestion job for this version")
		}
		return c.JSON(job)
	}
}

// RejectDocument rejects the document's PENDING version with a reason.
//
// @Summary  Reject the pending version
// @Tags     approval
// @Accept   json
// @Produce  json
// @Param    tenant path string        true "Tenant subdomain"
// @Param    id     path string        true "Document ID"
// @Param    body   body rejectRequest true "Rejection"
// @Success  200 {object} model.DocumentVersion
// @Failure  400 {object} errorPayload
// @Router   /tenants/{tenant}/documents/{id}/reject [post]
func RejectDocument(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := documentID(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		var req rejectRequest
		if err := c.BodyParser(&req); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "invalid request body")
		}
		if err := validate.Struct(req); err != nil {
			return validationError(c, err)
		}

		tenant, member := middleware.CurrentTenant(c), middleware.CurrentMember(c)
		v, err := svc.Reject(c.UserContext(), tenant.ID, id, req.Reason, member.UserID)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(v)
	}
}

// SetDocumentTags replaces the access tags a reader needs one of.
//
// @Summary  Set document access tags
// @Tags     access
// @Accept   json
// @Produce  json
// @Param    tenant path string      true "Tenant subdomain"
// @Param    id     path string      true "Document ID"
// @Param    body   body tagsRequest true "Tags"
// @Success  200 {object} tagListResponse
// @Router   /tenants/{tenant}/documents/{id}/tags [put]
func SetDocumentTags(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := documentID(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		var req tagsRequest
		if err := c.BodyParser(&req); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "invalid request body")
		}
		if err := validate.Struct(req); err != nil {
			return validationError(c, err)
		}

		tenant, member := middleware.CurrentTenant(c), middleware.CurrentMember(c)
		tags, err := svc.SetTags(c.UserContext(), tenant.ID, id, req.Tags, member.UserID)
		if err != nil {
			return respondError(c, err)
		}
		if tags == nil {
			tags = []model.AccessTag{}
		}
		return c.JSON(tagListResponse{Items: tags})
	}
}

// DeleteDocument removes a document with all of its versions.
//
// @Summary  Delete a document
// @Tags     documents
// @Param    tenant path string true "Tenant subdomain"
// @Param    id     path string true "Document ID"
// @Success  204
// @Router   /tenants/{tenant}/documents/{id} [delete]
func DeleteDocument(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := documentID(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		tenant, member := middleware.CurrentTenant(c), middleware.CurrentMember(c)
		if err := svc.Delete(c.UserContext(), tenant.ID, id, member.UserID); err != nil {
			return respondError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

func documentID(c *fiber.Ctx) (string, bool) {
	id := c.Params("id")
	if _, err := uuid.Parse(id); err != nil {
		return "", false
	}
	return id, true
}

func versionParams(c *fiber.Ctx) (string, string, bool) {
	id, ok := documentID(c)
	if !ok {
		return "", "", false
	}
	versionID := c.Params("versionId")
	if _, err := uuid.Parse(versionID); err != nil {
		return "", "", false
	}
	return id, versionID, true
}
