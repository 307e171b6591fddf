package cli

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/dmitrijs2005/bridgeupload/internal/client/client"
	"github.com/dmitrijs2005/bridgeupload/internal/client/config"
	"github.com/dmitrijs2005/bridgeupload/internal/client/models"
)

// API is the part of the upload API the commands use.
type API interface {
	CreateUpload(ctx context.Context, req models.UploadRequest) (*models.UploadSession, error)
	CompleteUpload(ctx context.Context, uploadID string, synchronous bool) (*models.ValidationStatus, error)
	Status(ctx context.Context, uploadID string) (*models.ValidationStatus, error)
}

type App struct {
	config *config.Config
	api    API
	http   *http.Client
	out    io.Writer
}

func NewApp(c *config.Config, out io.Writer) *App {
	hc := &http.Client{Timeout: c.Timeout}
	return &App{
		config: c,
		api:    client.NewHTTPClient(c.ServerURL, c.Token, hc),
		http:   hc,
		out:    out,
	}
}

func (a *App) printStatus(st *models.ValidationStatus) {
	fmt.Fprintf(a.out, "%s\t%s\n", st.ID, st.Status)
	for _, m := range st.Messages {
		fmt.Fprintf(a.out, "  - %s\n", m)
	}
}
