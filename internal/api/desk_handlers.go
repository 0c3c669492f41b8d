package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/stonewallbooks/storefront/internal/backup"
	"github.com/stonewallbooks/storefront/internal/service"
)

const (
	maxDocumentBytes = 8 << 20
	csvFilename      = "catalog.csv"
)

func (s *Server) registerDeskRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "claimDesk",
		Method:      http.MethodPost,
		Path:        "/api/v1/desk/claim",
		Summary:     "Claim the librarian desk",
		Description: "Locks the desk to the caller's email. Only possible while no librarian email is set.",
		Tags:        []string{"Desk"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleClaimDesk)

	huma.Register(s.api, huma.Operation{
		OperationID: "resetStore",
		Method:      http.MethodPost,
		Path:        "/api/v1/desk/reset",
		Summary:     "Reset store",
		Description: "Replaces the whole document with the built-in defaults",
		Tags:        []string{"Desk"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleResetStore)

	huma.Register(s.api, huma.Operation{
		OperationID:  "overwriteDocument",
		Method:       http.MethodPut,
		Path:         "/api/v1/desk/document",
		Summary:      "Overwrite store document",
		Description:  "Stores the request body as the whole document. It must decode as a store document; nothing is written otherwise.",
		Tags:         []string{"Desk"},
		Security:     []map[string][]string{{"bearer": {}}},
		MaxBodyBytes: maxDocumentBytes,
	}, s.handleOverwriteDocument)

	huma.Register(s.api, huma.Operation{
		OperationID: "exportBackup",
		Method:      http.MethodGet,
		Path:        "/api/v1/desk/backup",
		Summary:     "Download JSON backup",
		Tags:        []string{"Desk"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleExportBackup)

	huma.Register(s.api, huma.Operation{
		OperationID:  "importCatalog",
		Method:       http.MethodPost,
		Path:         "/api/v1/desk/import",
		Summary:      "Import catalog",
		Description:  "Replaces the whole catalog with the books in a CSV or TSV file, either a marketplace export or one produced by the CSV export.",
		Tags:         []string{"Desk"},
		Security:     []map[string][]string{{"bearer": {}}},
		MaxBodyBytes: maxDocumentBytes,
	}, s.handleImportCatalog)

	huma.Register(s.api, huma.Operation{
		OperationID: "exportCatalogCSV",
		Method:      http.MethodGet,
		Path:        "/api/v1/desk/export.csv",
		Summary:     "Download catalog CSV",
		Tags:        []string{"Desk"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleExportCatalogCSV)

	if s.services.Backups == nil {
		return
	}

	huma.Register(s.api, huma.Operation{
		OperationID: "listBackups",
		Method:      http.MethodGet,
		Path:        "/api/v1/desk/backups",
		Summary:     "List stored backups",
		Tags:        []string{"Desk"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleListBackups)

	huma.Register(s.api, huma.Operation{
		OperationID:   "createBackup",
		Method:        http.MethodPost,
		Path:          "/api/v1/desk/backups",
		Summary:       "Write a backup now",
		Description:   "Writes the current document to the backup directory, next to the scheduled backups.",
		Tags:          []string{"Desk"},
		Security:      []map[string][]string{{"bearer": {}}},
		DefaultStatus: http.StatusCreated,
	}, s.handleCreateBackup)

	huma.Register(s.api, huma.Operation{
		OperationID: "downloadBackup",
		Method:      http.MethodGet,
		Path:        "/api/v1/desk/backups/{id}",
		Summary:     "Download a stored backup",
		Tags:        []string{"Desk"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleDownloadBackup)
}

// === DTOs ===

// ResetStoreInput confirms a store reset.
type ResetStoreInput struct {
	Body struct {
		Confirm bool `json:"confirm" doc:"Must be true"`
	}
}

// OverwriteDocumentInput carries the raw document text.
type OverwriteDocumentInput struct {
	RawBody []byte `contentType:"application/json"`
}

// ImportCatalogInput carries the delimited file.
type ImportCatalogInput struct {
	Confirm bool   `query:"confirm" doc:"Must be true; the import replaces the whole catalog"`
	RawBody []byte `contentType:"text/csv"`
}

// ImportCatalogOutput wraps the import summary for Huma.
type ImportCatalogOutput struct {
	Body ImportCatalogResponse
}

// ImportCatalogResponse summarizes an import.
type ImportCatalogResponse struct {
	Books      int      `json:"books" doc:"Books now in the catalog"`
	Categories []string `json:"categories" doc:"Category list after the import"`
	MutationResponse
}

// DownloadOutput is a file download. Huma writes byte bodies as-is.
type DownloadOutput struct {
	ContentType        string `header:"Content-Type"`
	ContentDisposition string `header:"Content-Disposition"`
	Body               []byte
}

// BackupListOutput wraps the stored backups for Huma.
type BackupListOutput struct {
	Body BackupListResponse
}

// BackupListResponse lists stored backups, newest first.
type BackupListResponse struct {
	Backups []backup.Info `json:"backups"`
}

// BackupOutput wraps one backup's metadata for Huma.
type BackupOutput struct {
	Body *backup.Info
}

// BackupIDInput names a stored backup.
type BackupIDInput struct {
	ID string `path:"id" doc:"Backup id, e.g. backup-2026-03-14-093000"`
}

// === Handlers ===

func (s *Server) handleClaimDesk(ctx context.Context, _ *struct{}) (*MutationOutput, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	version, err := s.services.Desk.ClaimDesk(ctx, actor)
	return s.mutation(ctx, version, err)
}

func (s *Server) handleResetStore(ctx context.Context, input *ResetStoreInput) (*MutationOutput, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	version, err := s.services.Desk.ResetStore(ctx, actor, input.Body.Confirm)
	return s.mutation(ctx, version, err)
}

func (s *Server) handleOverwriteDocument(ctx context.Context, input *OverwriteDocumentInput) (*MutationOutput, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	version, err := s.services.Desk.OverwriteRaw(ctx, actor, string(input.RawBody))
	return s.mutation(ctx, version, err)
}

func (s *Server) handleExportBackup(ctx context.Context, _ *struct{}) (*DownloadOutput, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	data, err := s.services.Desk.ExportBackup(actor)
	if err != nil {
		return nil, apiError(err)
	}
	return &DownloadOutput{
		ContentType:        "application/json",
		ContentDisposition: attachment(service.BackupFilename),
		Body:               data,
	}, nil
}

func (s *Server) handleImportCatalog(ctx context.Context, input *ImportCatalogInput) (*ImportCatalogOutput, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	res, err := s.services.Desk.ImportCatalog(ctx, actor, string(input.RawBody), input.Confirm)
	if err != nil {
		return nil, apiError(err)
	}
	return &ImportCatalogOutput{Body: ImportCatalogResponse{
		Books:            res.Books,
		Categories:       res.Categories,
		MutationResponse: s.awaitEcho(ctx, res.Version),
	}}, nil
}

func (s *Server) handleExportCatalogCSV(ctx context.Context, _ *struct{}) (*DownloadOutput, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	out, err := s.services.Desk.ExportCatalogCSV(actor)
	if err != nil {
		return nil, apiError(err)
	}
	return &DownloadOutput{
		ContentType:        "text/csv; charset=utf-8",
		ContentDisposition: attachment(csvFilename),
		Body:               []byte(out),
	}, nil
}

func (s *Server) handleListBackups(ctx context.Context, _ *struct{}) (*BackupListOutput, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	backups, err := s.services.Backups.ListBackups(ctx, actor)
	if err != nil {
		return nil, apiError(err)
	}
	return &BackupListOutput{Body: BackupListResponse{Backups: backups}}, nil
}

func (s *Server) handleCreateBackup(ctx context.Context, _ *struct{}) (*BackupOutput, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	info, err := s.services.Backups.CreateBackup(ctx, actor)
	if err != nil {
		return nil, apiError(err)
	}
	return &BackupOutput{Body: info}, nil
}

func (s *Server) handleDownloadBackup(ctx context.Context, input *BackupIDInput) (*DownloadOutput, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	data, err := s.services.Backups.ReadBackup(actor, input.ID)
	if err != nil {
		return nil, apiError(err)
	}
	return &DownloadOutput{
		ContentType:        "application/json",
		ContentDisposition: attachment(input.ID + ".json"),
		Body:               data,
	}, nil
}

func attachment(filename string) string {
	return fmt.Sprintf("attachment; filename=%q", filename)
}
