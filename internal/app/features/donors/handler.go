// internal/app/features/donors/handler.go
package donors

import (
	"errors"
	"net/http"
	"strconv"

	uierrors "github.com/dalemusser/donorhub/internal/app/features/errors"
	donorsvc "github.com/dalemusser/donorhub/internal/app/services/donors"
	"github.com/dalemusser/donorhub/internal/app/store/audit"
	"github.com/dalemusser/donorhub/internal/app/system/auditlog"
	"github.com/dalemusser/donorhub/internal/app/system/auth"
	"github.com/dalemusser/donorhub/internal/app/system/formutil"
	"github.com/dalemusser/donorhub/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/query"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// MaxUploadBytes caps a document upload.
const MaxUploadBytes = 25 << 20

// Handler serves the donor API. Every route runs behind RequireSignedIn, so
// the actor id comes from the session principal.
type Handler struct {
	Donors   *donorsvc.Service
	Log      *zap.Logger
	ErrLog   *uierrors.ErrorLogger
	AuditLog *auditlog.Logger
}

func NewHandler(svc *donorsvc.Service, errLog *uierrors.ErrorLogger, audit *auditlog.Logger, logger *zap.Logger) *Handler {
	return &Handler{
		Donors:   svc,
		Log:      logger,
		ErrLog:   errLog,
		AuditLog: audit,
	}
}

func actor(r *http.Request) string {
	if u, ok := auth.CurrentUser(r); ok {
		return u.ID
	}
	return ""
}

// ServeList handles GET /donors?active=true|false. Missing or unparsable
// active means all donors.
func (h *Handler) ServeList(w http.ResponseWriter, r *http.Request) {
	activeOnly, _ := strconv.ParseBool(query.Get(r, "active"))
	list, err := h.Donors.List(r.Context(), activeOnly)
	if err != nil {
		h.ErrLog.Respond(w, r, "list donors", err)
		return
	}
	formutil.WriteJSON(w, http.StatusOK, nonNil(list))
}

// ServeSearch handles GET /donors/search?q=.
func (h *Handler) ServeSearch(w http.ResponseWriter, r *http.Request) {
	list, err := h.Donors.Search(r.Context(), query.Get(r, "q"))
	if err != nil {
		h.ErrLog.Respond(w, r, "search donors", err)
		return
	}
	formutil.WriteJSON(w, http.StatusOK, nonNil(list))
}

// ServeGet handles GET /donors/{id}.
func (h *Handler) ServeGet(w http.ResponseWriter, r *http.Request) {
	d, err := h.Donors.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.ErrLog.Respond(w, r, "get donor", err)
		return
	}
	if d == nil {
		uierrors.RenderNotFound(w, donorsvc.ErrNotFound.Error())
		return
	}
	formutil.WriteJSON(w, http.StatusOK, d)
}

// ServeCreate handles POST /donors.
func (h *Handler) ServeCreate(w http.ResponseWriter, r *http.Request) {
	var form models.DonorForm
	if err := formutil.Decode(w, r, &form); err != nil {
		h.ErrLog.LogBadRequest(w, r, "decode donor form", err, "Invalid donor data.")
		return
	}
	uid := actor(r)
	d, err := h.Donors.Create(r.Context(), form, uid)
	if err != nil {
		h.ErrLog.Respond(w, r, "create donor", err)
		return
	}
	h.AuditLog.Donor(r.Context(), r, audit.EventDonorCreated, uid, d.ID.Hex(),
		map[string]string{"email": d.Email, "donor_type": string(d.DonorType)})
	formutil.WriteJSON(w, http.StatusCreated, d)
}

// ServeUpdate handles PATCH /donors/{id}.
func (h *Handler) ServeUpdate(w http.ResponseWriter, r *http.Request) {
	var patch models.DonorPatch
	if err := formutil.Decode(w, r, &patch); err != nil {
		h.ErrLog.LogBadRequest(w, r, "decode donor patch", err, "Invalid donor data.")
		return
	}
	uid := actor(r)
	d, err := h.Donors.Update(r.Context(), chi.URLParam(r, "id"), patch, uid)
	if err != nil {
		h.ErrLog.Respond(w, r, "update donor", err)
		return
	}
	h.AuditLog.Donor(r.Context(), r, audit.EventDonorUpdated, uid, d.ID.Hex(), nil)
	formutil.WriteJSON(w, http.StatusOK, d)
}

// ServeDeactivate handles POST /donors/{id}/deactivate.
func (h *Handler) ServeDeactivate(w http.ResponseWriter, r *http.Request) {
	id, uid := chi.URLParam(r, "id"), actor(r)
	if err := h.Donors.Deactivate(r.Context(), id, uid); err != nil {
		h.ErrLog.Respond(w, r, "deactivate donor", err)
		return
	}
	h.AuditLog.Donor(r.Context(), r, audit.EventDonorDeactivated, uid, id, nil)
	w.WriteHeader(http.StatusNoContent)
}

// ServeReactivate handles POST /donors/{id}/reactivate.
func (h *Handler) ServeReactivate(w http.ResponseWriter, r *http.Request) {
	id, uid := chi.URLParam(r, "id"), actor(r)
	if err := h.Donors.Reactivate(r.Context(), id, uid); err != nil {
		h.ErrLog.Respond(w, r, "reactivate donor", err)
		return
	}
	h.AuditLog.Donor(r.Context(), r, audit.EventDonorReactivated, uid, id, nil)
	w.WriteHeader(http.StatusNoContent)
}

// ServeDelete handles DELETE /donors/{id}. Deleting a donor that does not
// exist still answers 204.
func (h *Handler) ServeDelete(w http.ResponseWriter, r *http.Request) {
	id, uid := chi.URLParam(r, "id"), actor(r)
	if err := h.Donors.Delete(r.Context(), id, uid); err != nil {
		h.ErrLog.Respond(w, r, "delete donor", err)
		return
	}
	h.AuditLog.Donor(r.Context(), r, audit.EventDonorDeleted, uid, id, nil)
	w.WriteHeader(http.StatusNoContent)
}

// ServeAttachDocument handles POST /donors/{id}/documents with a multipart
// "file" field.
func (h *Handler) ServeAttachDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			uierrors.RenderValidation(w, map[string]string{"file": "The file is larger than 25 MB."})
			return
		}
		h.ErrLog.LogBadRequest(w, r, "read upload", err, "A file is required.")
		return
	}
	defer file.Close()

	id, uid := chi.URLParam(r, "id"), actor(r)
	doc, err := h.Donors.AttachDocument(r.Context(), id, donorsvc.Upload{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	}, uid)
	if err != nil {
		h.ErrLog.Respond(w, r, "attach document", err)
		return
	}
	h.AuditLog.Donor(r.Context(), r, audit.EventDonorDocumentAdded, uid, id,
		map[string]string{"document_id": doc.ID, "name": doc.Name})
	formutil.WriteJSON(w, http.StatusCreated, doc)
}

// ServeDocument handles GET /donors/{id}/documents/{docID} by redirecting to
// a short-lived download URL.
func (h *Handler) ServeDocument(w http.ResponseWriter, r *http.Request) {
	u, err := h.Donors.DocumentURL(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "docID"))
	if err != nil {
		h.ErrLog.Respond(w, r, "document url", err)
		return
	}
	http.Redirect(w, r, u, http.StatusFound)
}

// ServeRemoveDocument handles DELETE /donors/{id}/documents/{docID}.
func (h *Handler) ServeRemoveDocument(w http.ResponseWriter, r *http.Request) {
	id, docID, uid := chi.URLParam(r, "id"), chi.URLParam(r, "docID"), actor(r)
	if err := h.Donors.RemoveDocument(r.Context(), id, docID, uid); err != nil {
		h.ErrLog.Respond(w, r, "remove document", err)
		return
	}
	h.AuditLog.Donor(r.Context(), r, audit.EventDonorDocumentRemoved, uid, id,
		map[string]string{"document_id": docID})
	w.WriteHeader(http.StatusNoContent)
}

func nonNil(list []models.Donor) []models.Donor {
	if list == nil {
		return []models.Donor{}
	}
	return list
}
