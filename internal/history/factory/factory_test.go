package factory

import (
	"testing"

	"github.com/fbaster/mcsupervisor/internal/history/opensearch"
	"github.com/fbaster/mcsupervisor/internal/history/sqlite"
)

func TestNewSinkFromDSNDispatchesSQLiteByDefault(t *testing.T) {
	sink, err := NewSinkFromDSN(":memory:")
	if err != nil {
		t.Fatalf("NewSinkFromDSN: %v", err)
	}
	if _, ok := sink.(*sqlite.Sink); !ok {
		t.Fatalf("sink type = %T, want *sqlite.Sink", sink)
	}
}

func TestNewSinkFromDSNDispatchesSQLiteScheme(t *testing.T) {
	sink, err := NewSinkFromDSN("sqlite://:memory:")
	if err != nil {
		t.Fatalf("NewSinkFromDSN: %v", err)
	}
	if _, ok := sink.(*sqlite.Sink); !ok {
		t.Fatalf("sink type = %T, want *sqlite.Sink", sink)
	}
}

func TestNewSinkFromDSNDispatchesOpenSearch(t *testing.T) {
	sink, err := NewSinkFromDSN("opensearch://localhost:9200")
	if err != nil {
		t.Fatalf("NewSinkFromDSN: %v", err)
	}
	if _, ok := sink.(*opensearch.Sink); !ok {
		t.Fatalf("sink type = %T, want *opensearch.Sink", sink)
	}
}

func TestNewSinkFromDSNRejectsEmpty(t *testing.T) {
	if _, err := NewSinkFromDSN(""); err == nil {
		t.Fatal("empty DSN should be rejected")
	}
}

func TestNewSinkFromDSNRejectsUnknownScheme(t *testing.T) {
	if _, err := NewSinkFromDSN("mongodb://localhost:27017"); err == nil {
		t.Fatal("unknown scheme should be rejected")
	}
}
