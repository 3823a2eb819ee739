package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/codebuildervaibhav/recording-processor/internal/types"
)

// DriveClient uploads recordings to a Google Drive folder
type DriveClient struct {
	service    *drive.Service
	folderName string
	folderID   string
}

// NewDriveClient creates a Drive uploader from an OAuth client config and a
// previously issued token. The server never runs the interactive consent flow.
func NewDriveClient(ctx context.Context, credentialsFile, tokenFile, folderName string) (*DriveClient, error) {
	b, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}

	config, err := google.ConfigFromJSON(b, drive.DriveFileScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}

	tok, err := tokenFromFile(tokenFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read token file %s: %w", tokenFile, err)
	}

	srv, err := drive.NewService(ctx, option.WithHTTPClient(config.Client(ctx, tok)))
	if err != nil {
		return nil, fmt.Errorf("unable to create Drive service: %w", err)
	}

	return NewDriveClientWithService(ctx, srv, folderName)
}

// NewDriveClientWithService wraps an existing Drive service and resolves the
// root folder, creating it when missing
func NewDriveClientWithService(ctx context.Context, srv *drive.Service, folderName string) (*DriveClient, error) {
	dc := &DriveClient{
		service:    srv,
		folderName: folderName,
	}
	if err := dc.ensureFolder(ctx); err != nil {
		return nil, err
	}
	return dc, nil
}

// tokenFromFile retrieves a token from a local file
func tokenFromFile(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	err = json.NewDecoder(f).Decode(tok)
	return tok, err
}

// ensureFolder finds or creates the root folder
func (dc *DriveClient) ensureFolder(ctx context.Context) error {
	id, err := dc.findOrCreateFolder(ctx, dc.folderName, "")
	if err != nil {
		return fmt.Errorf("unable to resolve folder %q: %w", dc.folderName, err)
	}
	dc.folderID = id
	return nil
}

// Upload stores the file at path as key inside Recordings/YYYY/MM/DD
func (dc *DriveClient) Upload(ctx context.Context, path, key string) (types.UploadOutcome, error) {
	folderID, err := dc.ensureDateFolder(ctx, time.Now())
	if err != nil {
		return types.UploadOutcome{StatusCode: apiStatus(err)}, err
	}

	f, err := os.Open(path)
	if err != nil {
		return types.UploadOutcome{}, fmt.Errorf("failed to open artifact: %w", err)
	}
	defer f.Close()

	meta := &drive.File{
		Name:     key,
		MimeType: RecordingContentType,
		Parents:  []string{folderID},
	}

	created, err := dc.service.Files.Create(meta).
		Media(f, googleapi.ContentType(RecordingContentType)).
		Fields("id").
		Context(ctx).
		Do()
	if err != nil {
		code := apiStatus(err)
		return types.UploadOutcome{StatusCode: code}, fmt.Errorf("drive upload failed: %w", err)
	}

	code := created.HTTPStatusCode
	log.Printf("Drive upload %s -> file %s: HTTP %d", key, created.Id, code)
	return types.UploadOutcome{Success: code == 200, StatusCode: code}, nil
}

// ensureDateFolder creates nested year/month/day folders
func (dc *DriveClient) ensureDateFolder(ctx context.Context, t time.Time) (string, error) {
	yearID, err := dc.findOrCreateFolder(ctx, fmt.Sprintf("%d", t.Year()), dc.folderID)
	if err != nil {
		return "", err
	}

	monthID, err := dc.findOrCreateFolder(ctx, fmt.Sprintf("%02d", t.Month()), yearID)
	if err != nil {
		return "", err
	}

	return dc.findOrCreateFolder(ctx, fmt.Sprintf("%02d", t.Day()), monthID)
}

// findOrCreateFolder finds or creates a folder with the given parent.
// An empty parentID searches the whole drive.
func (dc *DriveClient) findOrCreateFolder(ctx context.Context, name, parentID string) (string, error) {
	query := fmt.Sprintf("name='%s' and mimeType='application/vnd.google-apps.folder' and trashed=false", name)
	if parentID != "" {
		query += fmt.Sprintf(" and '%s' in parents", parentID)
	}

	r, err := dc.service.Files.List().Q(query).Spaces("drive").Fields("files(id)").Context(ctx).Do()
	if err != nil {
		return "", err
	}

	if len(r.Files) > 0 {
		return r.Files[0].Id, nil
	}

	folder := &drive.File{
		Name:     name,
		MimeType: "application/vnd.google-apps.folder",
	}
	if parentID != "" {
		folder.Parents = []string{parentID}
	}

	file, err := dc.service.Files.Create(folder).Fields("id").Context(ctx).Do()
	if err != nil {
		return "", err
	}

	return file.Id, nil
}

func apiStatus(err error) int {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return 0
}
