package api

import (
	"fmt"
	"io"
	"mime/multipart"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	apperrors "github.com/gmsas95/docsheet/internal/errors"
	"github.com/gmsas95/docsheet/internal/export"
	"github.com/gmsas95/docsheet/internal/extract"
	"github.com/gmsas95/docsheet/internal/sheets"
	"github.com/gmsas95/docsheet/internal/store"
	"github.com/gmsas95/docsheet/internal/uploads"
)

type uploadResult struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
}

func (s *Server) handleUpload(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		return fail(c, apperrors.ErrNoFiles)
	}

	docType := c.FormValue("document_type")
	if docType == "" {
		docType = c.FormValue("type")
	}
	files := form.File["files"]
	if len(files) == 0 {
		files = form.File["files[]"]
	}
	if len(files) == 0 {
		return fail(c, apperrors.ErrNoFiles)
	}
	if len(files) > s.config.Uploads.MaxFiles {
		return fail(c, apperrors.ErrTooManyFiles)
	}

	owner := currentEmail(c)
	results := make([]uploadResult, 0, len(files))

	for _, fh := range files {
		data, err := readMultipartFile(fh)
		if err != nil {
			results = append(results, uploadResult{Filename: fh.Filename, Error: "unreadable file"})
			continue
		}

		doc, err := s.uploads.Save(owner, docType, fh.Filename, data)
		if err != nil {
			results = append(results, uploadResult{Filename: fh.Filename, Error: errMessage(err)})
			continue
		}

		if err := s.pipeline.Submit(doc.ID); err != nil {
			s.logger.Error("enqueue failed", zap.String("id", doc.ID), zap.Error(err))
			results = append(results, uploadResult{ID: doc.ID, Filename: fh.Filename, Error: "failed to queue"})
			continue
		}

		results = append(results, uploadResult{ID: doc.ID, Filename: doc.OriginalName, Status: doc.Status})
	}

	return c.Status(202).JSON(fiber.Map{"documents": results})
}

func readMultipartFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func errMessage(err error) string {
	if appErr, ok := err.(*apperrors.AppError); ok {
		return appErr.Message
	}
	return err.Error()
}

func (s *Server) handleListDocuments(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	offset := c.QueryInt("offset", 0)

	owner := currentEmail(c)
	if isAdmin(c) && c.Query("owner") != "" {
		owner = c.Query("owner")
	}

	docs, err := s.store.ListDocuments(owner, limit, offset)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(docs)
}

// ownedDocument loads the document and enforces that only the owner or
// an admin may touch it.
func (s *Server) ownedDocument(c *fiber.Ctx) (*store.Document, error) {
	doc, err := s.store.GetDocument(c.Params("id"))
	if err != nil {
		return nil, apperrors.ErrDocumentNotFound
	}
	if doc.OwnerEmail != currentEmail(c) && !isAdmin(c) {
		return nil, apperrors.ErrDocumentNotFound
	}
	return doc, nil
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	doc, err := s.ownedDocument(c)
	if err != nil {
		return c.Status(404).JSON(fiber.Map{
			"id":     c.Params("id"),
			"status": "not_found",
		})
	}
	return c.JSON(statusPayload(doc))
}

func statusPayload(doc *store.Document) fiber.Map {
	// Clients only distinguish in-flight from terminal, so queued
	// reports as processing
	status := doc.Status
	if status == store.StatusQueued {
		status = store.StatusProcessing
	}
	payload := fiber.Map{
		"id":       doc.ID,
		"filename": doc.OriginalName,
		"type":     doc.Type,
		"status":   status,
	}

	switch doc.Status {
	case store.StatusCompleted, store.StatusSaved:
		var fields map[string]string
		if len(doc.Fields) > 0 {
			_ = store.FromJSON(doc.Fields, &fields)
		}
		payload["fields"] = fields
		payload["report"] = doc.Report
		payload["verified"] = doc.Verified
	case store.StatusFailed:
		payload["error"] = doc.Error
	}
	return payload
}

func (s *Server) handleImage(c *fiber.Ctx) error {
	doc, err := s.ownedDocument(c)
	if err != nil {
		return fail(c, err)
	}

	data, err := s.uploads.Open(doc)
	if err != nil {
		return fail(c, err)
	}

	c.Set("Content-Type", uploads.ContentType(doc.OriginalName))
	return c.Send(data)
}

func (s *Server) handleSave(c *fiber.Ctx) error {
	doc, err := s.ownedDocument(c)
	if err != nil {
		return fail(c, err)
	}
	if doc.Status != store.StatusCompleted && doc.Status != store.StatusSaved {
		return fail(c, apperrors.ErrDocumentPending)
	}

	var req struct {
		Corrections map[string]string `json:"corrections"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
	}

	var fields map[string]string
	if len(doc.Fields) > 0 {
		if err := store.FromJSON(doc.Fields, &fields); err != nil {
			return fail(c, apperrors.Wrap(err, "GEN_003", "stored fields unreadable"))
		}
	}
	if fields == nil {
		fields = map[string]string{}
	}

	// Corrections override the extracted values and are also logged in
	// their own trailing column
	for k, v := range req.Corrections {
		fields[k] = v
	}

	doc.Corrections = store.ToJSON(req.Corrections)
	doc.Fields = store.ToJSON(fields)
	doc.Verified = true
	if err := s.store.UpdateDocument(doc); err != nil {
		return fail(c, err)
	}

	now := time.Now()
	row := sheets.DataRow(doc.OwnerEmail, doc.Type, fields, req.Corrections, now)
	if err := s.sheets.AppendRow(c.Context(), sheets.DataWorksheet(doc.Type), row); err != nil {
		s.metrics.RecordSheetAppend(false)
		s.logger.Error("sheet append failed",
			zap.String("id", doc.ID),
			zap.String("worksheet", sheets.DataWorksheet(doc.Type)),
			zap.Error(err),
		)
		return fail(c, apperrors.ErrSheetsAppend)
	}
	s.metrics.RecordSheetAppend(true)

	doc.Status = store.StatusSaved
	doc.SavedAt = &now
	if err := s.store.UpdateDocument(doc); err != nil {
		return fail(c, err)
	}

	s.metrics.RecordDocumentSaved()

	// The spreadsheet is now the source of record; reclaim the disk copy
	s.uploads.Remove(doc)

	return c.JSON(fiber.Map{
		"status":    doc.Status,
		"worksheet": sheets.DataWorksheet(doc.Type),
	})
}

func (s *Server) handleExport(c *fiber.Ctx) error {
	docType := c.Query("type")
	if !extract.ValidType(docType) {
		return fail(c, apperrors.ErrBadDocumentType)
	}
	format := c.Query("format", "csv")

	owner := currentEmail(c)
	if isAdmin(c) && c.Query("owner") != "" {
		owner = c.Query("owner")
	}

	docs, err := s.store.ListDocumentsForExport(owner, docType, 1000)
	if err != nil {
		return fail(c, err)
	}

	var results []export.Result
	for _, doc := range docs {
		var fields map[string]string
		if len(doc.Fields) > 0 {
			_ = store.FromJSON(doc.Fields, &fields)
		}
		results = append(results, export.Result{
			Filename: doc.OriginalName,
			Fields:   fields,
			Report:   doc.Report,
		})
	}

	stamp := time.Now().Format("20060102_150405")
	var data []byte
	var contentType, filename string

	switch format {
	case "csv":
		data, err = export.CSV(docType, results)
		contentType = "text/csv"
		filename = fmt.Sprintf("%s_export_%s.csv", docType, stamp)
	case "txt":
		data = export.Text(docType, results)
		contentType = "text/plain"
		filename = fmt.Sprintf("%s_export_%s.txt", docType, stamp)
	case "xlsx":
		data, err = export.XLSX(docType, results)
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
		filename = fmt.Sprintf("%s_export_%s.xlsx", docType, stamp)
	default:
		return c.Status(400).JSON(fiber.Map{"error": "unsupported format"})
	}
	if err != nil {
		return fail(c, err)
	}

	s.metrics.RecordExport()
	c.Set("Content-Type", contentType)
	c.Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	return c.Send(data)
}
