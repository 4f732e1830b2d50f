package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/Josepassinato/camada-osprey-core-sub001/internal/analyzers"
	"github.com/Josepassinato/camada-osprey-core-sub001/internal/apiclient"
	"github.com/Josepassinato/camada-osprey-core-sub001/internal/policy"
	"github.com/Josepassinato/camada-osprey-core-sub001/internal/report"
	"github.com/Josepassinato/camada-osprey-core-sub001/internal/validation"
)

type inputFile struct {
	name    string
	content []byte
	text    string
}

func main() {
	var (
		policyDir   = flag.String("policies", "./policies", "directory of policy YAML files")
		server      = flag.String("server", "", "validate through a running document-validator at this base URL")
		docType     = flag.String("type", "", "document type (single file only; classified when empty)")
		caseID      = flag.String("case-id", "", "case identifier")
		beneficiary = flag.String("beneficiary", "", "beneficiary name for cross-checks")
		mdOut       = flag.String("report", "", "write a markdown report to this path")
		pdfOut      = flag.String("pdf", "", "write a PDF report to this path")
		verbose     = flag.Bool("v", false, "debug logging to stderr")
		timeout     = flag.Duration("timeout", 2*time.Minute, "overall timeout")
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] FILE [FILE...]\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	files := make([]inputFile, 0, flag.NArg())
	for _, path := range flag.Args() {
		text, content, err := analyzers.ExtractText(ctx, path)
		if err != nil && content == nil {
			log.Fatalf("failed to read %s: %v", path, err)
		}
		if err != nil {
			logger.Debug("no text extracted", "file", path, "error", err)
		}
		files = append(files, inputFile{name: filepath.Base(path), content: content, text: text.Text})
	}

	var cc *validation.CaseContext
	if *caseID != "" || *beneficiary != "" {
		cc = &validation.CaseContext{CaseID: *caseID, BeneficiaryName: *beneficiary}
	}

	var (
		out      any
		markdown string
		err      error
	)
	if *server != "" {
		out, markdown, err = runRemote(ctx, apiclient.NewClient(*server), files, *docType, cc)
	} else {
		policies, lerr := policy.LoadDir(*policyDir)
		if lerr != nil {
			log.Fatalf("failed to load policies from %s: %v", *policyDir, lerr)
		}
		engine := validation.NewEngine(policies, analyzers.NewCollaborators(policies, nil), validation.WithLogger(logger))
		out, markdown = runLocal(ctx, engine, files, *docType, cc)
	}
	if err != nil {
		log.Fatal(err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		log.Fatal(err)
	}

	if *mdOut != "" {
		if err := os.WriteFile(*mdOut, []byte(markdown), 0o644); err != nil {
			log.Fatalf("failed to write report: %v", err)
		}
	}
	if *pdfOut != "" {
		pdf, err := report.NewChromiumPDFRenderer().Render(ctx, "Document Validation Report", markdown)
		if err != nil {
			log.Fatalf("failed to render pdf: %v", err)
		}
		if err := os.WriteFile(*pdfOut, pdf, 0o644); err != nil {
			log.Fatalf("failed to write pdf: %v", err)
		}
	}
}

func runLocal(ctx context.Context, engine *validation.Engine, files []inputFile, docType string, cc *validation.CaseContext) (any, string) {
	if len(files) == 1 {
		f := files[0]
		req := validation.DocumentRequest{
			Content:       f.content,
			Filename:      f.name,
			DocType:       docType,
			ExtractedText: f.text,
			CaseContext:   cc,
		}
		var classification *validation.ClassificationSummary
		if req.DocType == "" {
			c := engine.AutoClassifyDocument(ctx, f.content, f.name, f.text)
			req.DocType = c.SuggestedDocType
			classification = &c
		}
		res := engine.ValidateDocument(ctx, req)
		if classification != nil {
			res.Classification = classification
		}
		return res, report.DocumentMarkdown(res, time.Now())
	}
	res := engine.ValidateMultipleDocuments(ctx, batchDocuments(files), cc)
	return res, report.BatchMarkdown(res)
}

func runRemote(ctx context.Context, c *apiclient.Client, files []inputFile, docType string, cc *validation.CaseContext) (any, string, error) {
	if len(files) == 1 {
		f := files[0]
		res, err := c.ValidateDocument(ctx, apiclient.ValidateRequest{
			DocType:       docType,
			Filename:      f.name,
			Content:       f.content,
			ExtractedText: f.text,
			CaseContext:   cc,
		})
		if err != nil {
			return nil, "", err
		}
		md, err := c.ReportMarkdown(ctx, res.DocumentID)
		if err != nil {
			md = report.DocumentMarkdown(res, time.Now())
		}
		return res, md, nil
	}
	res, err := c.ValidateBatch(ctx, batchDocuments(files), cc)
	if err != nil {
		return nil, "", err
	}
	return res, report.BatchMarkdown(res), nil
}

func batchDocuments(files []inputFile) []validation.BatchDocument {
	docs := make([]validation.BatchDocument, 0, len(files))
	for _, f := range files {
		docs = append(docs, validation.BatchDocument{
			FileContent:   f.content,
			Filename:      f.name,
			ExtractedText: f.text,
		})
	}
	return docs
}
