package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/Josepassinato/camada-osprey-core-sub001/internal/events"
	"github.com/Josepassinato/camada-osprey-core-sub001/internal/policy"
	"github.com/Josepassinato/camada-osprey-core-sub001/internal/report"
	"github.com/Josepassinato/camada-osprey-core-sub001/internal/store"
	"github.com/Josepassinato/camada-osprey-core-sub001/internal/validation"
)

const (
	maxUploadBytes = 20 << 20
	// Base64 inflates JSON uploads by a third.
	maxJSONBytes = maxUploadBytes*4/3 + 1<<20
)

type Validator interface {
	ValidateDocument(ctx context.Context, req validation.DocumentRequest) validation.ValidationResult
	ValidateMultipleDocuments(ctx context.Context, docs []validation.BatchDocument, cc *validation.CaseContext) validation.BatchResult
	AutoClassifyDocument(ctx context.Context, content []byte, filename, text string) validation.ClassificationSummary
}

type ResultStore interface {
	SaveValidation(ctx context.Context, caseID, batchID string, r validation.ValidationResult) error
	SaveBatch(ctx context.Context, caseID string, b validation.BatchResult) error
	GetValidation(ctx context.Context, documentID string) (store.StoredValidation, error)
	ListValidationsByCase(ctx context.Context, caseID string) ([]store.StoredValidation, error)
	GetBatch(ctx context.Context, batchID string) (validation.BatchResult, error)
}

type PDFRenderer interface {
	Render(ctx context.Context, title, markdown string) ([]byte, error)
}

// TextExtractor pulls text out of uploaded content when the caller sent none.
type TextExtractor func(ctx context.Context, filename string, content []byte) (string, error)

type Deps struct {
	Validator Validator
	Policies  *policy.Store
	Store     ResultStore
	Publisher events.Publisher
	PDF       PDFRenderer
	Extract   TextExtractor
	Logger    *slog.Logger
	Now       func() time.Time
}

type Server struct {
	validator Validator
	policies  *policy.Store
	store     ResultStore
	publisher events.Publisher
	pdf       PDFRenderer
	extract   TextExtractor
	logger    *slog.Logger
	now       func() time.Time
}

func NewServer(d Deps) http.Handler {
	s := &Server{
		validator: d.Validator,
		policies:  d.Policies,
		store:     d.Store,
		publisher: d.Publisher,
		pdf:       d.PDF,
		extract:   d.Extract,
		logger:    d.Logger,
		now:       d.Now,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.publisher == nil {
		s.publisher = events.NewLogPublisher(s.logger)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/health", s.handleHealth)
	mux.HandleFunc("/v1/policies", s.handleListPolicies)
	mux.HandleFunc("/v1/policies/{doc_type}", s.handleGetPolicy)
	mux.HandleFunc("/v1/documents/validate", s.handleValidate)
	mux.HandleFunc("/v1/documents/validate-batch", s.handleValidateBatch)
	mux.HandleFunc("/v1/documents/classify", s.handleClassify)
	mux.HandleFunc("/v1/results/{id}", s.handleGetResult)
	mux.HandleFunc("/v1/results/{id}/report", s.handleResultReport)
	mux.HandleFunc("/v1/results/{id}/report.pdf", s.handleResultPDF)
	mux.HandleFunc("/v1/cases/{case_id}/results", s.handleCaseResults)
	mux.HandleFunc("/v1/batches/{id}", s.handleGetBatch)
	return mux
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func methodOnly(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		w.Header().Set("Allow", method)
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return false
	}
	return true
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.logger.Error("result store failure", "error", err)
	writeError(w, http.StatusInternalServerError, "result store unavailable")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodGet) {
		return
	}
	count := 0
	if s.policies != nil {
		count = s.policies.Len()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":       true,
		"policies": count,
		"store":    s.store != nil,
	})
}

type policySummary struct {
	DocType        string   `json:"doc_type"`
	DisplayName    string   `json:"display_name,omitempty"`
	RequiredFields []string `json:"required_fields"`
	Language       string   `json:"language,omitempty"`
	Rules          int      `json:"rules"`
}

func (s *Server) handleListPolicies(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodGet) {
		return
	}
	out := []policySummary{}
	if s.policies != nil {
		for _, p := range s.policies.All() {
			names := make([]string, 0, len(p.RequiredFields))
			for _, f := range p.RequiredFields {
				names = append(names, f.Name)
			}
			out = append(out, policySummary{
				DocType:        p.DocType,
				DisplayName:    p.DisplayName,
				RequiredFields: names,
				Language:       string(p.Language),
				Rules:          len(p.Rules),
			})
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"policies": out})
}

func (s *Server) handleGetPolicy(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodGet) {
		return
	}
	if s.policies == nil {
		writeError(w, http.StatusNotFound, "no policies loaded")
		return
	}
	p, err := s.policies.Lookup(r.PathValue("doc_type"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type validateRequest struct {
	DocumentID    string                  `json:"document_id"`
	DocType       string                  `json:"doc_type"`
	Filename      string                  `json:"filename"`
	Content       []byte                  `json:"content"`
	ExtractedText string                  `json:"extracted_text"`
	CaseContext   *validation.CaseContext `json:"case_context"`
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodPost) {
		return
	}
	req, err := s.readValidateRequest(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	// Text alone is enough: quality checks then report an empty file.
	if len(req.Content) == 0 && strings.TrimSpace(req.ExtractedText) == "" {
		writeError(w, http.StatusBadRequest, "document content or extracted_text is required")
		return
	}
	if strings.TrimSpace(req.ExtractedText) == "" {
		req.ExtractedText = s.extractText(r.Context(), req.Filename, req.Content)
	}

	dr := validation.DocumentRequest{
		DocumentID:    req.DocumentID,
		Content:       req.Content,
		Filename:      req.Filename,
		DocType:       req.DocType,
		ExtractedText: req.ExtractedText,
		CaseContext:   req.CaseContext,
	}
	var classification *validation.ClassificationSummary
	if strings.TrimSpace(dr.DocType) == "" || dr.DocType == validation.UnknownDocType {
		c := s.validator.AutoClassifyDocument(r.Context(), dr.Content, dr.Filename, dr.ExtractedText)
		dr.DocType = c.SuggestedDocType
		classification = &c
	}

	res := s.validator.ValidateDocument(r.Context(), dr)
	if classification != nil {
		res.Classification = classification
	}
	s.recordValidation(r.Context(), caseID(req.CaseContext), res)
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) readValidateRequest(w http.ResponseWriter, r *http.Request) (validateRequest, error) {
	var req validateRequest
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		r.Body = http.MaxBytesReader(w, r.Body, maxJSONBytes)
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return req, fmt.Errorf("invalid json body: %w", err)
		}
		return req, nil
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return req, fmt.Errorf("invalid multipart form: %w", err)
	}
	file, header, err := r.FormFile("file")
	switch {
	case errors.Is(err, http.ErrMissingFile):
		req.Filename = r.FormValue("filename")
	case err != nil:
		return req, fmt.Errorf("read upload: %w", err)
	default:
		defer file.Close()
		content, err := io.ReadAll(file)
		if err != nil {
			return req, fmt.Errorf("read upload: %w", err)
		}
		req.Content = content
		req.Filename = header.Filename
	}
	req.DocumentID = r.FormValue("document_id")
	req.DocType = r.FormValue("doc_type")
	req.ExtractedText = r.FormValue("extracted_text")
	if cid, name, visa := r.FormValue("case_id"), r.FormValue("beneficiary_name"), r.FormValue("visa_type"); cid != "" || name != "" || visa != "" {
		req.CaseContext = &validation.CaseContext{CaseID: cid, BeneficiaryName: name, VisaType: visa}
	}
	return req, nil
}

func (s *Server) extractText(ctx context.Context, filename string, content []byte) string {
	if s.extract == nil {
		return ""
	}
	text, err := s.extract(ctx, filename, content)
	if err != nil {
		s.logger.Debug("text extraction skipped", "filename", filename, "error", err)
		return ""
	}
	return text
}

type batchRequest struct {
	Documents   []validation.BatchDocument `json:"documents"`
	CaseContext *validation.CaseContext    `json:"case_context"`
}

func (s *Server) handleValidateBatch(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodPost) {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, 4*maxJSONBytes)
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body: "+err.Error())
		return
	}
	for i := range req.Documents {
		d := &req.Documents[i]
		if strings.TrimSpace(d.ExtractedText) == "" && len(d.FileContent) > 0 {
			d.ExtractedText = s.extractText(r.Context(), d.Filename, d.FileContent)
		}
	}

	res := s.validator.ValidateMultipleDocuments(r.Context(), req.Documents, req.CaseContext)
	cid := caseID(req.CaseContext)
	if s.store != nil {
		if err := s.store.SaveBatch(r.Context(), cid, res); err != nil {
			s.logger.Error("persist batch failed", "batch_id", res.BatchID, "error", err)
		}
	}
	if err := s.publisher.Publish(r.Context(), events.BatchValidated(cid, res)); err != nil {
		s.logger.Error("publish batch event failed", "batch_id", res.BatchID, "error", err)
	}
	writeJSON(w, http.StatusOK, res)
}

type classifyRequest struct {
	Content       []byte `json:"content"`
	Filename      string `json:"filename"`
	ExtractedText string `json:"extracted_text"`
}

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodPost) {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBytes)
	var req classifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.ExtractedText) == "" && len(req.Content) > 0 {
		req.ExtractedText = s.extractText(r.Context(), req.Filename, req.Content)
	}
	writeJSON(w, http.StatusOK, s.validator.AutoClassifyDocument(r.Context(), req.Content, req.Filename, req.ExtractedText))
}

func (s *Server) recordValidation(ctx context.Context, caseID string, res validation.ValidationResult) {
	if s.store != nil {
		if err := s.store.SaveValidation(ctx, caseID, "", res); err != nil {
			s.logger.Error("persist validation failed", "document_id", res.DocumentID, "error", err)
		}
	}
	if err := s.publisher.Publish(ctx, events.DocumentValidated(caseID, res, s.now())); err != nil {
		s.logger.Error("publish validation event failed", "document_id", res.DocumentID, "error", err)
	}
}

func (s *Server) requireStore(w http.ResponseWriter) bool {
	if s.store == nil {
		writeError(w, http.StatusNotFound, "result storage is disabled")
		return false
	}
	return true
}

func (s *Server) handleGetResult(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodGet) || !s.requireStore(w) {
		return
	}
	v, err := s.store.GetValidation(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleResultReport(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodGet) || !s.requireStore(w) {
		return
	}
	v, err := s.store.GetValidation(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	md := report.DocumentMarkdown(v.Result, v.CreatedAt)
	if r.URL.Query().Get("format") == "html" {
		page, err := report.RenderHTML("Document Validation Report", md)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = io.WriteString(w, page)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	_, _ = io.WriteString(w, md)
}

func (s *Server) handleResultPDF(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodGet) || !s.requireStore(w) {
		return
	}
	if s.pdf == nil {
		writeError(w, http.StatusNotImplemented, "pdf rendering is not configured")
		return
	}
	id := r.PathValue("id")
	v, err := s.store.GetValidation(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	pdf, err := s.pdf.Render(r.Context(), "Document Validation Report", report.DocumentMarkdown(v.Result, v.CreatedAt))
	if err != nil {
		s.logger.Error("render pdf failed", "document_id", id, "error", err)
		writeError(w, http.StatusBadGateway, "pdf render failed")
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", id+".pdf"))
	_, _ = w.Write(pdf)
}

func (s *Server) handleCaseResults(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodGet) || !s.requireStore(w) {
		return
	}
	cid := r.PathValue("case_id")
	results, err := s.store.ListValidationsByCase(r.Context(), cid)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"case_id": cid, "results": results})
}

func (s *Server) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodGet) || !s.requireStore(w) {
		return
	}
	b, err := s.store.GetBatch(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func caseID(cc *validation.CaseContext) string {
	if cc == nil {
		return ""
	}
	return cc.CaseID
}
