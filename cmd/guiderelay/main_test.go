package main

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tyemirov/guiderelay/internal/db"
	"github.com/tyemirov/guiderelay/internal/model"
	"github.com/tyemirov/guiderelay/pkg/logging"
)

func setRelayEnv(t *testing.T, overrides map[string]string) {
	t.Helper()

	environment := map[string]string{
		"FLOWISE_API_URL":      "http://127.0.0.1:3000/api/v1/prediction/test",
		"FLOWISE_API_KEY":      "",
		"GMAIL_USER":           "",
		"GMAIL_PASS":           "",
		"PORT":                 "5000",
		"LOG_LEVEL":            "ERROR",
		"LOG_FORMAT":           "text",
		"UPLOAD_FOLDER":        filepath.Join(t.TempDir(), "uploads"),
		"DATABASE_PATH":        "",
		"HTTP_ALLOWED_ORIGINS": "",
	}
	for key, value := range overrides {
		environment[key] = value
	}
	for key, value := range environment {
		t.Setenv(key, value)
	}
}

func TestDeliveriesCommandListsNewestRecords(t *testing.T) {
	t.Helper()

	databasePath := filepath.Join(t.TempDir(), "deliveries.db")
	setRelayEnv(t, map[string]string{"DATABASE_PATH": databasePath})

	database, err := db.InitDB(databasePath, logging.Discard())
	if err != nil {
		t.Fatalf("init db error: %v", err)
	}
	deliveryLog := db.NewDeliveryLog(database)
	base := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	seed := []model.DeliveryRecord{
		{Recipient: "older@example.com", Subject: "Paris", Status: model.DeliveryStatusSent, CreatedAt: base},
		{Recipient: "newer@example.com", Subject: "Rome", Status: model.DeliveryStatusFailed, FailureKind: "auth", FailureDetail: "535 rejected", CreatedAt: base.Add(time.Hour)},
	}
	for _, record := range seed {
		if recordErr := deliveryLog.RecordDelivery(context.Background(), record); recordErr != nil {
			t.Fatalf("seed error: %v", recordErr)
		}
	}
	if closeErr := deliveryLog.Close(); closeErr != nil {
		t.Fatalf("close error: %v", closeErr)
	}

	var output bytes.Buffer
	root := newRootCommand(&output)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"deliveries", "--limit", "1"})
	if execErr := root.Execute(); execErr != nil {
		t.Fatalf("deliveries error: %v", execErr)
	}

	printed := output.String()
	if !strings.Contains(printed, "newer@example.com") || !strings.Contains(printed, "auth: 535 rejected") {
		t.Fatalf("expected newest record, got %q", printed)
	}
	if strings.Contains(printed, "older@example.com") {
		t.Fatalf("expected limit to be applied, got %q", printed)
	}
}

func TestDeliveriesCommandRequiresDatabasePath(t *testing.T) {
	t.Helper()

	setRelayEnv(t, nil)

	root := newRootCommand(&bytes.Buffer{})
	root.SetArgs([]string{"deliveries"})
	err := root.Execute()
	if err == nil || !strings.Contains(err.Error(), "DATABASE_PATH") {
		t.Fatalf("expected disabled delivery log error, got %v", err)
	}
}

func TestServeRejectsInvalidConfiguration(t *testing.T) {
	t.Helper()

	setRelayEnv(t, map[string]string{"FLOWISE_API_URL": "not a url", "SMTP_TIMEOUT_SEC": "0"})

	root := newRootCommand(&bytes.Buffer{})
	root.SetArgs(nil)
	err := root.Execute()
	if err == nil || !strings.HasPrefix(err.Error(), "configuration errors:") {
		t.Fatalf("expected configuration errors, got %v", err)
	}
}

func TestServeHonorsPortFlagAndShutsDown(t *testing.T) {
	t.Helper()

	setRelayEnv(t, nil)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen error: %v", err)
	}
	port := listener.Addr().(*net.TCPAddr).Port
	_ = listener.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	root := newRootCommand(&bytes.Buffer{})
	root.SetArgs([]string{"--port", fmt.Sprint(port)})
	finished := make(chan error, 1)
	go func() {
		finished <- root.ExecuteContext(ctx)
	}()

	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", port)
	deadline := time.Now().Add(5 * time.Second)
	for {
		response, getErr := http.Get(healthURL)
		if getErr == nil {
			_ = response.Body.Close()
			if response.StatusCode != http.StatusOK {
				t.Fatalf("expected 200 from health, got %d", response.StatusCode)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("server did not come up on port %d: %v", port, getErr)
		}
		time.Sleep(20 * time.Millisecond)
	}

	cancel()
	select {
	case execErr := <-finished:
		if execErr != nil {
			t.Fatalf("expected clean shutdown, got %v", execErr)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("server did not shut down")
	}
}
