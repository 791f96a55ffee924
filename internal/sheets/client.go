// Package sheets appends login and document rows to the Google Sheets
// spreadsheet behind a circuit breaker.
package sheets

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"

	"github.com/gmsas95/docsheet/internal/config"
	apperrors "github.com/gmsas95/docsheet/internal/errors"
)

// Appender is what the rest of the service sees; a nil-safe no-op
// implementation stands in when sheets integration is disabled.
type Appender interface {
	AppendRow(ctx context.Context, worksheet string, row []interface{}) error
}

type appendFunc func(ctx context.Context, worksheet string, row []interface{}) error

// Client appends rows to one spreadsheet. A circuit breaker sits in
// front of the API so a dead spreadsheet cannot stall the pipeline.
type Client struct {
	spreadsheetID string
	call          appendFunc
	breaker       *gobreaker.CircuitBreaker[struct{}]
	logger        *zap.Logger
}

// NewClient builds a service-account Sheets client from a JWT
// credentials file.
func NewClient(ctx context.Context, cfg config.SheetsConfig, logger *zap.Logger) (*Client, error) {
	creds, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, apperrors.Wrap(err, "SHEETS_001", "failed to read credentials file")
	}

	jwtConfig, err := google.JWTConfigFromJSON(creds, gsheets.SpreadsheetsScope)
	if err != nil {
		return nil, apperrors.Wrap(err, "SHEETS_001", "invalid service account credentials")
	}

	svc, err := gsheets.NewService(ctx, option.WithHTTPClient(jwtConfig.Client(ctx)))
	if err != nil {
		return nil, apperrors.Wrap(err, "SHEETS_001", "failed to create sheets service")
	}

	call := func(ctx context.Context, worksheet string, row []interface{}) error {
		vr := &gsheets.ValueRange{Values: [][]interface{}{row}}
		_, err := svc.Spreadsheets.Values.
			Append(cfg.SpreadsheetID, worksheet+"!A1", vr).
			ValueInputOption("USER_ENTERED").
			InsertDataOption("INSERT_ROWS").
			Context(ctx).
			Do()
		return err
	}

	return newClient(cfg.SpreadsheetID, call, logger), nil
}

func newClient(spreadsheetID string, call appendFunc, logger *zap.Logger) *Client {
	breaker := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "google-sheets",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("sheets breaker state change",
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return &Client{
		spreadsheetID: spreadsheetID,
		call:          call,
		breaker:       breaker,
		logger:        logger,
	}
}

// AppendRow appends one row to the named worksheet
func (c *Client) AppendRow(ctx context.Context, worksheet string, row []interface{}) error {
	_, err := c.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, c.call(ctx, worksheet, row)
	})
	if err != nil {
		c.logger.Error("sheet append failed",
			zap.String("worksheet", worksheet),
			zap.Error(err))
		return apperrors.Wrap(err, "SHEETS_002", fmt.Sprintf("append to %s failed", worksheet))
	}
	return nil
}

// Disabled is the no-op Appender used when sheets integration is off
type Disabled struct{}

func (Disabled) AppendRow(ctx context.Context, worksheet string, row []interface{}) error {
	return nil
}
