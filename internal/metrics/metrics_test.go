package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	m := New()
	if m == nil {
		t.Error("New() returned nil")
	}
}

func TestDefault(t *testing.T) {
	m1 := Default()
	m2 := Default()

	if m1 != m2 {
		t.Error("Default() should return same instance")
	}
}

func TestRecordUpload(t *testing.T) {
	m := New()
	m.RecordUpload(true)
	m.RecordUpload(false)

	if m.uploadsTotal.Load() != 1 {
		t.Error("Accepted uploads not incremented")
	}
	if m.uploadsRejected.Load() != 1 {
		t.Error("Rejected uploads not incremented")
	}
}

func TestRecordExtraction(t *testing.T) {
	m := New()
	m.RecordExtraction(true)
	m.RecordExtraction(false)
	m.RecordExtractionRetry()

	if m.extractionsTotal.Load() != 2 {
		t.Error("Total extractions not incremented")
	}
	if m.extractionsSuccess.Load() != 1 {
		t.Error("Success extractions not incremented")
	}
	if m.extractionsFailed.Load() != 1 {
		t.Error("Failed extractions not incremented")
	}
	if m.extractionRetries.Load() != 1 {
		t.Error("Retries not incremented")
	}
}

func TestRecordSheetAppend(t *testing.T) {
	m := New()
	m.RecordSheetAppend(true)
	m.RecordSheetAppend(false)

	if m.sheetAppendsTotal.Load() != 2 {
		t.Error("Sheet appends not incremented")
	}
	if m.sheetAppendsFailed.Load() != 1 {
		t.Error("Failed sheet appends not incremented")
	}
}

func TestRecordLogin(t *testing.T) {
	m := New()
	m.RecordLogin(true)
	m.RecordLogin(false)

	if m.loginsTotal.Load() != 2 {
		t.Error("Logins not incremented")
	}
	if m.loginsFailed.Load() != 1 {
		t.Error("Failed logins not incremented")
	}
}

func TestRecordProviderRequest(t *testing.T) {
	m := New()
	m.RecordProviderRequest("openai")
	m.RecordProviderRequest("openai")
	m.RecordProviderRequest("anthropic")

	m.providerLock.Lock()
	defer m.providerLock.Unlock()

	if m.providerRequests["openai"].Load() != 2 {
		t.Error("OpenAI requests not counted correctly")
	}
	if m.providerRequests["anthropic"].Load() != 1 {
		t.Error("Anthropic requests not counted correctly")
	}
}

func TestQueueDepth(t *testing.T) {
	m := New()
	m.SetQueueDepth(5)
	m.IncQueueDepth()
	m.DecQueueDepth()
	m.DecQueueDepth()

	if m.queueDepth.Load() != 4 {
		t.Errorf("Expected queue depth 4, got %d", m.queueDepth.Load())
	}
}

func TestSnapshot(t *testing.T) {
	m := New()
	m.RecordUpload(true)
	m.RecordExtraction(true)
	m.RecordExtraction(false)
	m.RecordSheetAppend(true)
	m.RecordDocumentSaved()
	m.RecordExport()

	s := m.Snapshot()

	if s.UploadsTotal != 1 {
		t.Errorf("Expected 1 upload, got %d", s.UploadsTotal)
	}
	if s.ExtractionsTotal != 2 {
		t.Errorf("Expected 2 extractions, got %d", s.ExtractionsTotal)
	}
	if s.DocumentsSaved != 1 {
		t.Errorf("Expected 1 saved, got %d", s.DocumentsSaved)
	}
	if s.ExportsTotal != 1 {
		t.Errorf("Expected 1 export, got %d", s.ExportsTotal)
	}
	if s.Uptime <= 0 {
		t.Error("Uptime should be positive")
	}
}

func TestSnapshot_SuccessRate(t *testing.T) {
	m := New()
	m.RecordExtraction(true)
	m.RecordExtraction(true)
	m.RecordExtraction(false)

	s := m.Snapshot()

	if s.SuccessRate != 66.66666666666666 {
		t.Errorf("Expected ~66.67%% success rate, got %f", s.SuccessRate)
	}
}

func TestSnapshot_ZeroExtractions(t *testing.T) {
	m := New()
	s := m.Snapshot()

	if s.SuccessRate != 0 {
		t.Errorf("Expected 0%% success rate with no extractions, got %f", s.SuccessRate)
	}
}

func TestPrometheusHandler(t *testing.T) {
	m := New()
	m.RecordUpload(true)
	m.RecordExtraction(true)
	m.RecordLogin(false)
	m.RecordExtractionTime(time.Second)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	body, _ := io.ReadAll(rec.Result().Body)
	output := string(body)

	expectedStrings := []string{
		"docsheet_uploads_total",
		"docsheet_extractions_total",
		"docsheet_logins_total",
		"docsheet_extraction_duration_seconds",
	}
	for _, expected := range expectedStrings {
		if !contains(output, expected) {
			t.Errorf("scrape output missing: %s", expected)
		}
	}
}

func contains(s, substr string) bool {
	for i := 0; i <= len(s)-len(substr); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}

func TestExtractionTimePercentile(t *testing.T) {
	m := New()

	for i := 0; i < 100; i++ {
		m.RecordExtractionTime(time.Duration(i+1) * time.Millisecond)
	}

	s := m.Snapshot()

	if s.AvgExtractionTime <= 0 {
		t.Error("Average extraction time should be positive")
	}
	if s.P99ExtractionTime <= 0 {
		t.Error("P99 extraction time should be positive")
	}
}

func TestExtractionTimeRolling(t *testing.T) {
	m := New()

	for i := 0; i < 1100; i++ {
		m.RecordExtractionTime(time.Duration(i+1) * time.Millisecond)
	}

	m.extractionTimesLock.Lock()
	count := len(m.extractionTimes)
	m.extractionTimesLock.Unlock()

	if count > 1000 {
		t.Errorf("Extraction times should be capped at 1000, got %d", count)
	}
}

func TestConcurrentAccess(t *testing.T) {
	m := New()
	done := make(chan bool)

	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				m.RecordExtraction(true)
				m.RecordUpload(j%2 == 0)
				m.RecordProviderRequest("test")
			}
			done <- true
		}()
	}

	for i := 0; i < 10; i++ {
		<-done
	}

	s := m.Snapshot()
	if s.ExtractionsTotal != 1000 {
		t.Errorf("Expected 1000 extractions, got %d", s.ExtractionsTotal)
	}
}

func BenchmarkRecordExtraction(b *testing.B) {
	m := New()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.RecordExtraction(true)
	}
}

func BenchmarkSnapshot(b *testing.B) {
	m := New()
	for i := 0; i < 100; i++ {
		m.RecordExtraction(true)
		m.RecordUpload(true)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.Snapshot()
	}
}
