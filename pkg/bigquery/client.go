// Package bigquery connects to the analytics dataset and streams rows into it.
package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"

	"github.com/aidigitalagency/storefront-backend/pkg/config"
	"github.com/aidigitalagency/storefront-backend/pkg/logger"
)

const pingTimeout = 10 * time.Second

var ErrNotFound = errors.New("bigquery resource not found")

type Client struct {
	raw     *bigquery.Client
	dataset *bigquery.Dataset
	tables  []string
}

// NewClient opens the configured dataset and checks that every listed table
// exists. Tables are provisioned outside the service.
func NewClient(ctx context.Context, gcp config.GCPConfig, dataset string, tables []string, logg *logger.Logger) (*Client, error) {
	project := strings.TrimSpace(gcp.ProjectID)
	dataset = strings.TrimSpace(dataset)
	switch {
	case project == "":
		return nil, errors.New("gcp project id is required")
	case dataset == "":
		return nil, errors.New("bigquery dataset is required")
	}

	raw, err := bigquery.NewClient(ctx, project, gcp.ClientOptions()...)
	if err != nil {
		return nil, fmt.Errorf("creating bigquery client: %w", err)
	}
	c := &Client{raw: raw, dataset: raw.Dataset(dataset)}
	for _, name := range tables {
		if name = strings.TrimSpace(name); name != "" {
			c.tables = append(c.tables, name)
		}
	}

	if err := c.Ping(ctx); err != nil {
		_ = raw.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"dataset": dataset,
			"tables":  c.tables,
		}), "bigquery client initialized")
	}
	return c, nil
}

// Ping reads the dataset and table metadata.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if _, err := c.dataset.Metadata(ctx); err != nil {
		return lookupError("dataset", c.dataset.DatasetID, err)
	}
	for _, name := range c.tables {
		if _, err := c.dataset.Table(name).Metadata(ctx); err != nil {
			return lookupError("table", name, err)
		}
	}
	return nil
}

// Put streams rows into table. rows is anything bigquery.Inserter.Put accepts.
func (c *Client) Put(ctx context.Context, table string, rows any) error {
	table = strings.TrimSpace(table)
	if table == "" {
		return errors.New("bigquery table name is required")
	}
	return c.dataset.Table(table).Inserter().Put(ctx, rows)
}

func (c *Client) Close() error {
	return c.raw.Close()
}

func lookupError(kind, name string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
		return fmt.Errorf("%w: %s %q", ErrNotFound, kind, name)
	}
	return fmt.Errorf("checking %s %q: %w", kind, name, err)
}
